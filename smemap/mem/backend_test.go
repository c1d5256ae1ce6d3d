// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package mem

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/shenwei356/smemap/smemap/align"
)

type failedDevice struct{}

func (failedDevice) Name() string        { return "failed" }
func (failedDevice) Run(b *Batch) error { return ErrDeviceUnavailable }

// truncatedDevice returns fewer results than tasks.
type truncatedDevice struct{}

func (truncatedDevice) Name() string { return "truncated" }
func (truncatedDevice) Run(b *Batch) error {
	b.Results = b.Results[:0]
	return nil
}

// simulateReads generates reads with mismatches and small indels from
// both strands.
func simulateReads(rng *rand.Rand, chr []byte, n, l int) [][]byte {
	seqs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		p := rng.Intn(len(chr) - l - 10)
		s := append([]byte{}, chr[p:p+l]...)
		switch i % 4 {
		case 1: // mismatches
			for k := 0; k < 3; k++ {
				s = mutate(s, rng.Intn(l))
			}
		case 2: // deletion
			k := 20 + rng.Intn(l-40)
			s = append(s[:k], chr[p+k+3:p+l+3]...)
		case 3: // insertion
			k := 20 + rng.Intn(l-40)
			s = append(append(append([]byte{}, s[:k]...), "TTAG"...), s[k:l-4]...)
		}
		if rng.Intn(2) == 0 {
			s = revCompBases(s)
		}
		seqs = append(seqs, s)
	}
	return seqs
}

func samOfBackend(t *testing.T, ref *Reference, seqs [][]byte, h Backend) [][]byte {
	opt := DefaultOptions()
	opt.NumThreads = 2
	m := NewMapper(opt, ref, h)
	reads := newReads(seqs...)
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("%s: %s", h.Name(), err)
	}
	out := make([][]byte, len(reads))
	for i, r := range reads {
		out[i] = r.AppendSAM(nil, opt, ref)
	}
	return out
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	chr1 := randBases(rng, 6000)
	chr2 := append(randBases(rng, 1000), chr1[1000:2000]...) // repeats
	ref := testReference(t, nil, chr1, chr2)
	seqs := simulateReads(rng, chr1, 60, 150)

	expected := samOfBackend(t, ref, seqs, InProcess{})
	for _, h := range []Backend{
		NewOffload(&CPUDevice{Threads: 2, LaneSize: 3}),
		NewOffload(&CPUDevice{Threads: 1}),
		NewOffload(failedDevice{}),
		NewOffload(truncatedDevice{}),
	} {
		out := samOfBackend(t, ref, seqs, h)
		for i := range out {
			if !bytes.Equal(out[i], expected[i]) {
				t.Errorf("%s: different output of read %d:\n%s\n%s", h.Name(), i, out[i], expected[i])
			}
		}
	}
}

func TestBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var b Batch
	b.Reset()
	var queries, targets [][]byte
	for i := 0; i < 5; i++ {
		q := toCodes(randBases(rng, 10+i), nil)
		r := toCodes(randBases(rng, 13+2*i), nil)
		queries = append(queries, q)
		targets = append(targets, r)
		b.Add(q, r, 20, 10, 5)
	}
	if b.Len() != 5 {
		t.Fatalf("unexpected number of tasks: %d", b.Len())
	}
	var buf []byte
	for i := range queries {
		if !bytes.Equal(b.Query(i), queries[i]) {
			t.Errorf("task %d: unexpected query", i)
		}
		buf = b.Target(i, buf)
		if !bytes.Equal(buf, targets[i]) {
			t.Errorf("task %d: unexpected target: %v, expected %v", i, buf, targets[i])
		}
	}

	opt := DefaultOptions()
	b.Scoring = *opt.Scoring()
	b.ZDrop = opt.ZDrop
	d := &CPUDevice{Threads: 2, LaneSize: 2}
	if err := d.Run(&b); err != nil {
		t.Fatal(err)
	}
	if len(b.Results) != b.Len() {
		t.Fatalf("unexpected number of results: %d", len(b.Results))
	}
	alg := align.NewAligner(opt.Scoring())
	for i := range queries {
		res := alg.Extend(queries[i], targets[i], 10, 5, opt.ZDrop, 20)
		if res != b.Results[i] {
			t.Errorf("task %d: unexpected result: %+v, expected %+v", i, b.Results[i], res)
		}
	}

	b.Reset()
	if b.Len() != 0 || len(b.QOffsets) != 1 || len(b.TOffsets) != 1 {
		t.Errorf("batch is not reset")
	}
}
