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
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/shenwei356/smemap/smemap/align"
)

func randBases(rng *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[rng.Intn(4)]
	}
	return s
}

func revCompBases(s []byte) []byte {
	r := make([]byte, len(s))
	for i, b := range s {
		r[len(s)-1-i] = complement(b)
	}
	return r
}

// mutate changes the base at i into another one.
func mutate(s []byte, i int) []byte {
	m := append([]byte{}, s...)
	m[i] = "CGTA"[strings.IndexByte("ACGT", m[i])]
	return m
}

func testReference(t *testing.T, alts []string, seqs ...[]byte) *Reference {
	names := make([]string, len(seqs))
	for i := range seqs {
		names[i] = fmt.Sprintf("chr%d", i+1)
	}
	ref, err := BuildReference(names, seqs, alts, 8)
	if err != nil {
		t.Fatalf("failed to build reference: %s", err)
	}
	return ref
}

func newReads(seqs ...[]byte) []*Read {
	reads := make([]*Read, len(seqs))
	for i, s := range seqs {
		reads[i] = &Read{Name: fmt.Sprintf("read%d", i), Seq: s}
	}
	return reads
}

func TestExactMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	chr1 := randBases(rng, 2000)
	chr2 := randBases(rng, 1500)
	ref := testReference(t, nil, chr1, chr2)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	regs := m.Align1(chr1[500:600])
	if len(regs) != 1 {
		t.Fatalf("expect one region, got %d", len(regs))
	}
	if r := regs[0]; r.Score != 100 || r.QB != 0 || r.QE != 100 || r.RB != 500 || r.RE != 600 || r.Rid != 0 {
		t.Errorf("unexpected region: %s", &r)
	}

	reads := newReads(chr1[500:600], revCompBases(chr2[1000:1100]))
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}

	a := reads[0].Alns[0]
	if len(reads[0].Alns) != 1 {
		t.Errorf("expect one record, got %d", len(reads[0].Alns))
	}
	if a.Rid != 0 || a.Pos != 500 || a.IsRev || a.Flag != 0 {
		t.Errorf("unexpected position: %s", a)
	}
	if a.Score != 100 || a.MapQ != 60 || a.Cigar.String() != "100M" || a.NM != 0 || a.MD != "100" {
		t.Errorf("unexpected alignment: %s", a)
	}

	a = reads[1].Alns[0]
	if a.Rid != 1 || a.Pos != 1000 || !a.IsRev || a.Flag != sam.Reverse || a.Cigar.String() != "100M" {
		t.Errorf("unexpected alignment on the reverse strand: %s", a)
	}

	// SEQ is the reverse complement
	line := string(reads[1].AppendSAM(nil, opt, ref))
	fields := strings.Split(strings.TrimSpace(line), "\t")
	if fields[2] != "chr2" || fields[3] != "1001" || fields[9] != string(chr2[1000:1100]) {
		t.Errorf("unexpected SAM record: %s", line)
	}
}

func TestSingleMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	chr1 := randBases(rng, 3000)
	ref := testReference(t, nil, chr1)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	seq := mutate(chr1[1200:1300], 50)
	reads := newReads(seq)
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	a := reads[0].Alns[0]
	if a.Score != 95 || a.Pos != 1200 || a.Cigar.String() != "100M" || a.NM != 1 {
		t.Errorf("unexpected alignment: %s", a)
	}
	if a.MD != fmt.Sprintf("50%c49", chr1[1250]) {
		t.Errorf("unexpected MD: %s", a.MD)
	}

	q := toCodes(seq, nil)
	r := toCodes(chr1[1200:1300], nil)
	runs := align.MatchRuns(a.Cigar, q, r)
	if len(runs) != 3 || runs.String() != "50=1X49=" {
		t.Errorf("unexpected match runs: %s", runs)
	}
}

func TestClippingAndIndel(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	chr1 := randBases(rng, 3000)
	ref := testReference(t, nil, chr1)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	// a 2-bp deletion in the middle
	del := append(append([]byte{}, chr1[400:460]...), chr1[462:522]...)
	// 20 bases not matching the reference at the start
	clip := append([]byte{}, chr1[1980:2080]...)
	for i := 0; i < 20; i++ {
		clip = mutate(clip, i)
	}
	reads := newReads(del, clip)
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}

	a := reads[0].Alns[0]
	if a.Pos != 400 || len(a.Cigar) != 3 || a.NM != 2 || a.RefLen() != 122 {
		t.Errorf("unexpected alignment with a deletion: %s", a)
	} else if op := a.Cigar[1]; op.Type() != sam.CigarDeletion || op.Len() != 2 {
		t.Errorf("unexpected deletion: %s", a.Cigar)
	}
	if a.Score != 120-8 {
		t.Errorf("unexpected score of a deletion: %d", a.Score)
	}

	a = reads[1].Alns[0]
	if a.Pos != 2000 || a.Cigar.String() != "20S80M" || a.Score != 80 {
		t.Errorf("unexpected clipped alignment: %s", a)
	}
}

func TestRepeatsAndXA(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	chr1 := randBases(rng, 2000)
	chr2 := append([]byte{}, chr1[:1000]...) // a copy
	ref := testReference(t, nil, chr1, chr2)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	reads := newReads(chr1[300:400])
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	regs := reads[0].Regions()
	if len(regs) != 2 {
		t.Fatalf("expect two regions, got %d", len(regs))
	}
	var nPri int
	for _, r := range regs {
		if r.Secondary < 0 {
			nPri++
		}
	}
	if nPri != 1 {
		t.Errorf("expect one primary region, got %d", nPri)
	}

	a := reads[0].Alns[0]
	if len(reads[0].Alns) != 1 {
		t.Errorf("secondary alignments should not be output: %d", len(reads[0].Alns))
	}
	if a.MapQ != 0 || a.Sub != 100 {
		t.Errorf("tied hits should have a MAPQ of 0: %s", a)
	}
	other := "chr2"
	if a.Rid == 1 {
		other = "chr1"
	}
	if a.XA != other+",+301,100M,0;" {
		t.Errorf("unexpected XA: %s", a.XA)
	}

	// all alignments
	opt2 := DefaultOptions()
	opt2.Flag |= FlagAll
	reads = newReads(chr1[300:400])
	if _, err := NewMapper(opt2, ref, nil).ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	if len(reads[0].Alns) != 2 || reads[0].Alns[1].Flag&sam.Secondary == 0 || reads[0].Alns[1].XA != "" {
		t.Errorf("expect a secondary alignment without XA")
	}
}

func TestManyRepeats(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	q := randBases(rng, 100)
	var chr []byte
	for i := 0; i < 12; i++ {
		chr = append(chr, randBases(rng, 200)...)
		chr = append(chr, q...)
	}
	chr = append(chr, randBases(rng, 200)...)
	ref := testReference(t, nil, chr)

	run := func(opt *Options) *Read {
		reads := newReads(q)
		if _, err := NewMapper(opt, ref, nil).ProcessSeqs(reads, 0, nil); err != nil {
			t.Fatalf("failed to process reads: %s", err)
		}
		return reads[0]
	}

	// too many hits to be listed
	opt := DefaultOptions()
	r := run(opt)
	if len(r.Regions()) != 12 {
		t.Errorf("expect 12 regions, got %d", len(r.Regions()))
	}
	if len(r.Alns) != 1 || r.Alns[0].XA != "" || r.Alns[0].MapQ != 0 {
		t.Errorf("unexpected alignments: %v", r.Alns)
	}

	opt = DefaultOptions()
	opt.MaxXAHits = 20
	r = run(opt)
	if n := strings.Count(r.Alns[0].XA, ";"); n != 11 {
		t.Errorf("expect 11 alternative hits, got %d: %s", n, r.Alns[0].XA)
	}

	// occurrences are subsampled
	opt = DefaultOptions()
	opt.MaxOcc = 3
	opt.Update()
	r = run(opt)
	if n := len(r.Regions()); n == 0 || n > 3 {
		t.Errorf("expect at most 3 regions, got %d", n)
	}

	ce := NewChainer(opt, ref)
	chains := ce.Chain(toCodes(q, nil))
	if len(chains) == 0 || len(chains) > 3 {
		t.Errorf("expect at most 3 chains, got %d", len(chains))
	}
	RecycleChains(chains)
}

func TestAltContigs(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	chr1 := randBases(rng, 2000)
	chr2 := append([]byte{}, chr1[:1000]...)
	ref := testReference(t, []string{"chr2"}, chr1, chr2)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	for i := 0; i < 8; i++ { // different hashes
		reads := newReads(chr1[300:400])
		if _, err := m.ProcessSeqs(reads, int64(i), nil); err != nil {
			t.Fatalf("failed to process reads: %s", err)
		}
		a := reads[0].Alns[0]
		if a.Rid != 0 || a.MapQ != 60 || a.IsAlt {
			t.Errorf("the primary assembly hit should be the primary one: %s", a)
		}
	}
}

func TestSupplementary(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	chr1 := randBases(rng, 3000)
	chr2 := randBases(rng, 3000)
	for i := 0; i < 10; i++ { // no extension across the junction
		if chr2[2000+i] == chr1[170+i] {
			chr2 = mutate(chr2, 2000+i)
		}
		if chr2[1999-i] == chr1[169-i] {
			chr2 = mutate(chr2, 1999-i)
		}
	}
	ref := testReference(t, nil, chr1, chr2)
	opt := DefaultOptions()
	m := NewMapper(opt, ref, nil)

	// chimeric read
	seq := append(append([]byte{}, chr1[100:170]...), chr2[2000:2060]...)
	reads := newReads(seq)
	if _, err := m.ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	alns := reads[0].Alns
	if len(alns) != 2 {
		t.Fatalf("expect two records, got %d", len(alns))
	}
	if alns[0].Cigar.String() != "70M60S" || alns[0].Rid != 0 {
		t.Errorf("unexpected primary alignment: %s", alns[0])
	}
	if alns[1].Flag&sam.Supplementary == 0 || alns[1].Cigar.String() != "70H60M" || alns[1].Rid != 1 {
		t.Errorf("unexpected supplementary alignment: %s", alns[1])
	}
	if alns[1].MapQ > alns[0].MapQ {
		t.Errorf("MAPQ of a supplementary alignment should be capped")
	}
	if alns[0].SA != fmt.Sprintf("chr2,2001,+,70S60M,%d,0;", alns[1].MapQ) {
		t.Errorf("unexpected SA: %s", alns[0].SA)
	}

	// hard-clipped bases are not output
	line := strings.Split(string(reads[0].AppendSAM(nil, opt, ref)), "\n")[1]
	if fields := strings.Split(line, "\t"); fields[9] != string(chr2[2000:2060]) {
		t.Errorf("unexpected SEQ of a supplementary record: %s", fields[9])
	}

	// soft clipping
	opt2 := DefaultOptions()
	opt2.Flag |= FlagSoftClip
	reads = newReads(seq)
	NewMapper(opt2, ref, nil).ProcessSeqs(reads, 0, nil)
	if reads[0].Alns[1].Cigar.String() != "70S60M" {
		t.Errorf("unexpected supplementary alignment with soft clips: %s", reads[0].Alns[1])
	}
}

func TestUnmapped(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	ref := testReference(t, nil, randBases(rng, 2000))
	opt := DefaultOptions()
	reads := newReads(randBases(rng, 100), randBases(rng, 10))
	if _, err := NewMapper(opt, ref, nil).ProcessSeqs(reads, 0, nil); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	for _, r := range reads {
		if len(r.Alns) != 1 || !r.Alns[0].Unmapped() || r.Alns[0].Flag != sam.Unmapped {
			t.Errorf("expect an unmapped record: %v", r.Alns)
		}
		line := string(r.AppendSAM(nil, opt, ref))
		if !strings.HasPrefix(line, r.Name+"\t4\t*\t0\t0\t*\t*\t0\t0\t") {
			t.Errorf("unexpected unmapped record: %s", line)
		}
	}
}

// simulatePairs returns FR pairs with an insert size of 300±20.
func simulatePairs(rng *rand.Rand, chr []byte, n, l int) ([]*Read, []int) {
	reads := make([]*Read, 0, n<<1)
	inss := make([]int, n)
	for i := 0; i < n; i++ {
		ins := int(rng.NormFloat64()*20 + 300)
		p := rng.Intn(len(chr) - ins)
		name := fmt.Sprintf("pair%d", i)
		reads = append(reads,
			&Read{Name: name + "/1", Seq: append([]byte{}, chr[p:p+l]...)},
			&Read{Name: name + "/2", Seq: revCompBases(chr[p+ins-l : p+ins])})
		inss[i] = ins
	}
	return reads, inss
}

func TestPairedEnd(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	chr1 := randBases(rng, 10000)
	ref := testReference(t, nil, chr1)
	opt := DefaultOptions()
	opt.Flag |= FlagPE
	opt.NumThreads = 4
	m := NewMapper(opt, ref, nil)

	reads, inss := simulatePairs(rng, chr1, 200, 100)
	pes, err := m.ProcessSeqs(reads, 0, nil)
	if err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	if pes[1].Failed {
		t.Fatalf("FR orientation should not fail")
	}
	if pes[1].Avg < 290 || pes[1].Avg > 310 {
		t.Errorf("unexpected average insert size: %f", pes[1].Avg)
	}
	if !(float64(pes[1].Low) <= pes[1].Avg && pes[1].Avg <= float64(pes[1].High)) {
		t.Errorf("unexpected bounds: %s", pes[1])
	}
	for _, d := range []int{0, 2, 3} {
		if !pes[d].Failed {
			t.Errorf("orientation %s should fail", Orientations[d])
		}
	}

	for i := 0; i < len(inss); i++ {
		a1, a2 := reads[i<<1].Alns[0], reads[i<<1|1].Alns[0]
		f := sam.Paired | sam.ProperPair
		if a1.Flag&f != f || a1.Flag&sam.Read1 == 0 || a1.Flag&sam.MateReverse == 0 {
			t.Errorf("unexpected flag of read 1: %s", a1)
		}
		if a2.Flag&f != f || a2.Flag&sam.Read2 == 0 || a2.Flag&sam.Reverse == 0 {
			t.Errorf("unexpected flag of read 2: %s", a2)
		}
		if a1.TLen != int64(inss[i]) || a2.TLen != -int64(inss[i]) {
			t.Errorf("unexpected template length: %d, %d, expected: %d", a1.TLen, a2.TLen, inss[i])
		}
		if a1.MatePos != a2.Pos || a2.MatePos != a1.Pos || a1.MateCigar != "100M" {
			t.Errorf("unexpected mate fields: %s", a1)
		}
	}
}

func TestMateRescue(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	chr1 := randBases(rng, 5000)
	ref := testReference(t, nil, chr1)
	opt := DefaultOptions()
	opt.Flag |= FlagPE
	m := NewMapper(opt, ref, nil)

	p, ins := 1000, 300
	mate := append([]byte{}, chr1[p+ins-100:p+ins]...)
	for i := 10; i < len(mate); i += 15 { // no exact seeds
		mate = mutate(mate, i)
	}
	reads := []*Read{
		{Name: "r", Seq: append([]byte{}, chr1[p:p+100]...)},
		{Name: "r", Seq: revCompBases(mate)},
	}
	pes := [4]PeStat{{Failed: true}, {Low: 200, High: 400, Avg: 300, Std: 20}, {Failed: true}, {Failed: true}}
	if _, err := m.ProcessSeqs(reads, 0, &pes); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	a := reads[1].Alns[0]
	if a.Unmapped() || a.Pos != int64(p+ins-100) || !a.IsRev {
		t.Fatalf("the mate should be rescued: %s", a)
	}
	if a.Flag&sam.ProperPair == 0 || a.NM != 6 || a.Cigar.String() != "100M" {
		t.Errorf("unexpected rescued alignment: %s", a)
	}

	// without rescue, the mate is placed with read 1
	opt2 := *opt
	opt2.Flag |= FlagNoRescue
	for _, r := range reads {
		r.Alns = nil
	}
	if _, err := NewMapper(&opt2, ref, nil).ProcessSeqs(reads, 0, &pes); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	a = reads[1].Alns[0]
	if a.Flag&sam.Unmapped == 0 || a.Rid != 0 || a.Pos != int64(p) {
		t.Errorf("unexpected unmapped mate: %s", a)
	}
	if a1 := reads[0].Alns[0]; a1.Flag&sam.MateUnmapped == 0 || a1.TLen != 0 {
		t.Errorf("unexpected read 1 with an unmapped mate: %s", a1)
	}
}

func TestSmartPE(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	chr1 := randBases(rng, 5000)
	ref := testReference(t, nil, chr1)
	opt := DefaultOptions()
	opt.Flag |= FlagSmartPE
	m := NewMapper(opt, ref, nil)

	pairs, _ := simulatePairs(rng, chr1, 2, 100)
	reads := []*Read{{Name: "single1", Seq: append([]byte{}, chr1[10:110]...)}}
	reads = append(reads, pairs...)
	reads = append(reads, &Read{Name: "single2", Seq: append([]byte{}, chr1[3000:3100]...)})

	singles, ps := ClassifyPairs(reads)
	if len(singles) != 2 || len(ps) != 4 {
		t.Fatalf("unexpected classification: %d singles, %d paired reads", len(singles), len(ps))
	}

	pes := [4]PeStat{{Failed: true}, {Low: 200, High: 400, Avg: 300, Std: 20}, {Failed: true}, {Failed: true}}
	if _, err := m.ProcessSeqs(reads, 0, &pes); err != nil {
		t.Fatalf("failed to process reads: %s", err)
	}
	for _, r := range reads {
		paired := r.Alns[0].Flag&sam.Paired > 0
		if paired != strings.HasPrefix(r.Name, "pair") {
			t.Errorf("unexpected flag of %s: %s", r.Name, r.Alns[0])
		}
	}
}

func TestPairedNames(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	ref := testReference(t, nil, randBases(rng, 1000))
	opt := DefaultOptions()
	opt.Flag |= FlagPE
	m := NewMapper(opt, ref, nil)

	if _, err := m.ProcessSeqs(newReads(randBases(rng, 50)), 0, nil); err == nil {
		t.Errorf("odd number of reads should fail")
	}
	if _, err := m.ProcessSeqs(newReads(randBases(rng, 50), randBases(rng, 50)), 0, nil); err == nil {
		t.Errorf("different names should fail")
	}
	if TrimReadNo("abc/1") != "abc" || TrimReadNo("abc/x") != "abc/x" || TrimReadNo("/1") != "/1" {
		t.Errorf("unexpected trimmed read names")
	}
}
