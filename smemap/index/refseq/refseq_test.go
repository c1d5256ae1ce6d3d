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

package refseq

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/shenwei356/smemap/smemap/index/twobit"
)

func testMeta(t *testing.T) (*Meta, *twobit.Pac) {
	seqs := [][]byte{
		[]byte("ACGTACGTAC"),
		[]byte("GGGGCCCCNN"),
		[]byte("TTTAA"),
	}
	m := NewMeta()
	pac := twobit.NewPac(32)
	for i, s := range seqs {
		rid, err := m.Add(string(rune('a'+i)), "", s)
		if err != nil {
			t.Fatal(err)
		}
		if rid != i {
			t.Fatalf("unexpected rid: %d", rid)
		}
		pac.Append(s)
	}
	return m, pac
}

func TestPositions(t *testing.T) {
	m, _ := testMeta(t)

	if m.LPac != 25 {
		t.Errorf("unexpected total length: %d", m.LPac)
	}
	if m.Contigs[1].NAmb != 2 {
		t.Errorf("unexpected ambiguous bases: %d", m.Contigs[1].NAmb)
	}

	for pos, rid := range map[int64]int{0: 0, 9: 0, 10: 1, 19: 1, 20: 2, 24: 2, 25: -1, -1: -1} {
		if r := m.Pos2Rid(pos); r != rid {
			t.Errorf("Pos2Rid(%d): %d, expected %d", pos, r, rid)
		}
	}

	p, isRev := m.Depos(49)
	if p != 0 || !isRev {
		t.Errorf("Depos(49): %d %v", p, isRev)
	}

	if rid := m.Intv2Rid(2, 8); rid != 0 {
		t.Errorf("Intv2Rid within contig 0: %d", rid)
	}
	if rid := m.Intv2Rid(8, 12); rid != -1 {
		t.Errorf("Intv2Rid across contigs: %d", rid)
	}
	if rid := m.Intv2Rid(24, 27); rid != -2 {
		t.Errorf("Intv2Rid across strands: %d", rid)
	}
	// reverse strand of contig 2 is [25, 30)
	if rid := m.Intv2Rid(25, 30); rid != 2 {
		t.Errorf("Intv2Rid on the reverse strand: %d", rid)
	}
}

func TestFetchSeq(t *testing.T) {
	m, pac := testMeta(t)

	s, beg, end, rid := m.FetchSeq(pac, 5, 12, 40, nil)
	if rid != 1 || beg != 10 || end != 20 {
		t.Errorf("unexpected window: [%d, %d) of %d", beg, end, rid)
	}
	if len(s) != 10 || s[0] != 2 {
		t.Errorf("unexpected codes: %v", s)
	}

	// contig 0 on the reverse strand is [40, 50)
	s, beg, end, rid = m.FetchSeq(pac, 30, 45, 60, s)
	if rid != 0 || beg != 40 || end != 50 {
		t.Errorf("unexpected reverse window: [%d, %d) of %d", beg, end, rid)
	}
	// reverse complement of ACGTACGTAC
	if !bytes.Equal(s, []byte{2, 3, 0, 1, 2, 3, 0, 1, 2, 3}) {
		t.Errorf("unexpected reverse codes: %v", s)
	}
}

func TestTOML(t *testing.T) {
	m, _ := testMeta(t)
	if n := m.MarkAlts([]string{"c", "x"}); n != 1 {
		t.Errorf("unexpected ALT contigs: %d", n)
	}

	file := filepath.Join(t.TempDir(), "ref.toml")
	if err := m.WriteToFile(file); err != nil {
		t.Error(err)
		return
	}
	m2, err := ReadMeta(file)
	if err != nil {
		t.Error(err)
		return
	}
	if m2.LPac != m.LPac || len(m2.Contigs) != len(m.Contigs) || m2.NumAlts != 1 {
		t.Errorf("metadata mismatch: %+v vs %+v", m2, m)
		return
	}
	for i := range m.Contigs {
		if m.Contigs[i] != m2.Contigs[i] {
			t.Errorf("contig %d mismatch: %s vs %s", i, m.Contigs[i], m2.Contigs[i])
		}
	}
	if m2.Rid("c") != 2 || !m2.Contigs[2].IsAlt {
		t.Errorf("name lookup failed")
	}
}
