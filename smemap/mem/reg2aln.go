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

	"github.com/biogo/hts/sam"
	"github.com/shenwei356/smemap/smemap/align"
)

// Alignment is a final alignment of a query, on the forward strand of a
// contig.
type Alignment struct {
	Rid   int   // -1 for unmapped
	Pos   int64 // 0-based position on the contig, -1 for unmapped
	IsRev bool
	IsAlt bool
	Flag  sam.Flags
	MapQ  int

	Cigar sam.Cigar // with soft clips, converted to hard ones in the output
	NM    int
	MD    string

	Score int
	Sub   int // -1 for not reported
	AltSc int

	XA string // alternative hits
	SA string // other parts of a chimeric alignment

	// mate fields, filled for paired reads
	MateRid   int
	MatePos   int64
	TLen      int64
	MateCigar string

	noMulti bool // supplementary reported as secondary
}

func (a *Alignment) String() string {
	return fmt.Sprintf("rid:%d pos:%d rev:%v flag:%d mapq:%d cigar:%s NM:%d MD:%s AS:%d",
		a.Rid, a.Pos, a.IsRev, a.Flag, a.MapQ, a.Cigar, a.NM, a.MD, a.Score)
}

// Unmapped tells if the alignment has no coordinate.
func (a *Alignment) Unmapped() bool { return a.Rid < 0 }

// RefLen returns the length of the alignment on the reference.
func (a *Alignment) RefLen() int {
	var n int
	for _, op := range a.Cigar {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarDeletion, sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	return n
}

func unmappedAlignment() Alignment {
	return Alignment{Rid: -1, Pos: -1, Flag: sam.Unmapped, MateRid: -1, MatePos: -1}
}

// inferBW estimates the band width needed for a global alignment of the
// given lengths and score.
func inferBW(l1, l2, score, a, q, r int) int {
	if l1 == l2 && l1*a-score < (q+r-a)<<1 {
		return 0 // at least two gaps are needed for equal lengths
	}
	w := int(float64(min(l1, l2)*a-score-q)/float64(r) + 2.)
	return max(w, abs(l1-l2))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// revCompCodes writes the reverse complement of codes into dst.
func revCompCodes(dst, src []byte) []byte {
	dst = dst[:0]
	for i := len(src) - 1; i >= 0; i-- {
		if src[i] < 4 {
			dst = append(dst, 3-src[i])
		} else {
			dst = append(dst, 4)
		}
	}
	return dst
}

// genCigar globally aligns query codes to [rb, re) and returns the score,
// the edit script in the forward direction of the reference, NM and MD.
// The returned Cigar is nil if the region is not valid.
func genCigar(opt *Options, ref *Reference, alg *align.Aligner, w int, q []byte, rb, re int64) (int, sam.Cigar, int, string) {
	lPac := ref.LPac()
	if len(q) == 0 || rb >= re || (rb < lPac && re > lPac) {
		return 0, nil, -1, ""
	}
	var rseq []byte
	if rb >= lPac { // align on the forward strand, indels are placed leftmost
		q = revCompCodes(make([]byte, 0, len(q)), q)
		rseq = ref.Pac.Get((lPac<<1)-re, (lPac<<1)-rb, nil)
	} else {
		rseq = ref.Pac.Get(rb, re, nil)
	}
	if int64(len(rseq)) != re-rb {
		return 0, nil, -1, ""
	}

	var score int
	var cigar sam.Cigar
	if len(q) == len(rseq) && w == 0 { // no gap
		cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, len(q))}
		for i, b := range q {
			score += int(opt.Mat[int(rseq[i])*5+int(b)])
		}
	} else {
		l := min(len(q), len(rseq))
		maxIns := int(float64(l*int(opt.Mat[0])-opt.OIns)/float64(opt.EIns) + 1.)
		maxDel := int(float64(l*int(opt.Mat[0])-opt.ODel)/float64(opt.EDel) + 1.)
		maxGap := max(maxIns, maxDel, 1)
		d := abs(len(rseq) - len(q))
		w2 := (maxGap + d + 1) >> 1
		w2 = min(w2, w)
		w2 = max(w2, d+3)
		var ops sam.Cigar
		score, ops = alg.Global(q, rseq, w2)
		cigar = append(make(sam.Cigar, 0, len(ops)+2), ops...)
	}
	nm, md := align.NmMD(cigar, q, rseq)
	return score, cigar, nm, md
}

// Reg2Aln computes the final alignment of a region, q are the query codes.
// Regions kept are never nil, use unmappedAlignment for unaligned reads.
func Reg2Aln(opt *Options, ref *Reference, q []byte, r *Region) Alignment {
	if r == nil || r.RB < 0 || r.RE < 0 {
		return unmappedAlignment()
	}
	a := Alignment{MateRid: -1, MatePos: -1}
	lQuery := len(q)
	qb, qe := r.QB, r.QE
	rb, re := r.RB, r.RE

	if r.Secondary < 0 {
		a.MapQ = ApproxMapQSE(opt, r)
	} else {
		a.Flag |= sam.Secondary
	}

	w2 := inferBW(qe-qb, int(re-rb), r.TrueSc, opt.A, opt.ODel, opt.EDel)
	w2 = max(w2, inferBW(qe-qb, int(re-rb), r.TrueSc, opt.A, opt.OIns, opt.EIns))
	if w2 > opt.W {
		w2 = min(w2, r.W)
	}

	alg := align.GetAligner(opt.Scoring())
	defer align.RecycleAligner(alg)

	var score, nm int
	var md string
	var cigar sam.Cigar
	lastSc := -(1 << 30)
	for i := 0; ; {
		w2 = min(w2, opt.W<<2)
		score, cigar, nm, md = genCigar(opt, ref, alg, w2, q[qb:qe], rb, re)
		if score == lastSc || w2 == opt.W<<2 {
			break
		}
		lastSc = score
		w2 <<= 1
		i++
		if i >= 3 || score >= r.TrueSc-opt.A {
			break
		}
	}
	if cigar == nil {
		panic(fmt.Sprintf("mem: failed to align region %s", r))
	}
	a.NM, a.MD = nm, md

	var pos int64
	if rb < ref.LPac() {
		pos, a.IsRev = ref.Meta.Depos(rb)
	} else {
		pos, a.IsRev = ref.Meta.Depos(re - 1)
	}

	// squeeze out leading or trailing deletions
	if len(cigar) > 0 {
		if cigar[0].Type() == sam.CigarDeletion {
			pos += int64(cigar[0].Len())
			cigar = cigar[1:]
		} else if cigar[len(cigar)-1].Type() == sam.CigarDeletion {
			cigar = cigar[:len(cigar)-1]
		}
	}

	if qb != 0 || qe != lQuery {
		var clip5, clip3 int
		if a.IsRev {
			clip5, clip3 = lQuery-qe, qb
		} else {
			clip5, clip3 = qb, lQuery-qe
		}
		if clip5 > 0 {
			cigar = append(sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, clip5)}, cigar...)
		}
		if clip3 > 0 {
			cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, clip3))
		}
	}
	a.Cigar = cigar

	a.Rid = ref.Meta.Pos2Rid(pos)
	if a.Rid != r.Rid {
		panic(fmt.Sprintf("mem: region on contig %d, alignment on %d", r.Rid, a.Rid))
	}
	a.Pos = pos - ref.Meta.Contigs[a.Rid].Offset
	a.Score = r.Score
	a.Sub = max(r.Sub, r.CSub)
	a.IsAlt = r.IsAlt
	a.AltSc = r.AltSc
	return a
}

// Reg2AlnName is Reg2Aln returning the contig name too, "*" for unmapped.
func Reg2AlnName(opt *Options, ref *Reference, q []byte, r *Region) (Alignment, string) {
	a := Reg2Aln(opt, ref, q, r)
	if a.Rid < 0 {
		return a, "*"
	}
	return a, ref.Meta.Contigs[a.Rid].Name
}
