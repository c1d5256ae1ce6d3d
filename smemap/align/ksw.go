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

package align

import (
	"sync"

	"github.com/biogo/hts/sam"
)

// MinusInf is used as negative infinity in global alignment.
const MinusInf = -0x40000000

// Scoring holds a 5x5 substitution matrix of base codes (A, C, G, T, N)
// and affine gap penalties. A gap of length l costs O + E*l.
type Scoring struct {
	Mat [25]int8

	ODel, EDel int // deletions, i.e., gaps in the query
	OIns, EIns int // insertions, i.e., gaps in the target
}

// FillMatrix fills a matrix with a match score a, a mismatch penalty b,
// and -1 for any comparison with N.
func FillMatrix(a, b int, mat *[25]int8) {
	var i, j, k int
	for i = 0; i < 4; i++ {
		for j = 0; j < 4; j++ {
			if i == j {
				mat[k] = int8(a)
			} else {
				mat[k] = int8(-b)
			}
			k++
		}
		mat[k] = -1 // ambiguous base
		k++
	}
	for j = 0; j < 5; j++ {
		mat[k] = -1
		k++
	}
}

// NewScoring returns a Scoring with the same penalties for insertions and deletions.
func NewScoring(a, b, o, e int) *Scoring {
	sc := &Scoring{ODel: o, EDel: e, OIns: o, EIns: e}
	FillMatrix(a, b, &sc.Mat)
	return sc
}

func (sc *Scoring) maxScore() int {
	var m int8
	for _, v := range sc.Mat {
		if v > m {
			m = v
		}
	}
	return int(m)
}

type eh struct {
	h, e int32
}

// Aligner performs banded dynamic programming with reusable buffers.
// It is not safe for concurrent use, every worker should have its own one.
type Aligner struct {
	Scoring *Scoring

	// reusable variables
	qp  []int8   // query profile
	eh  []eh     // one row
	z   []uint8  // backtrack matrix
	ops []sam.CigarOp

	// local alignment
	hs, es []int32
	hb, eb []int64 // start cells
	peaks  []peak
}

// NewAligner returns an aligner.
func NewAligner(sc *Scoring) *Aligner {
	return &Aligner{
		Scoring: sc,
		qp:      make([]int8, 0, 5<<10),
		eh:      make([]eh, 0, 1<<10),
		z:       make([]uint8, 0, 1<<20),
		ops:     make([]sam.CigarOp, 0, 128),
	}
}

// pools of aligners, keyed by scoring schemes
var poolAligners = &sync.Map{}

// GetAligner returns a pooled aligner for a scoring scheme.
func GetAligner(sc *Scoring) *Aligner {
	p, ok := poolAligners.Load(*sc)
	if !ok {
		_sc := *sc
		p, _ = poolAligners.LoadOrStore(_sc, &sync.Pool{New: func() interface{} {
			return NewAligner(&_sc)
		}})
	}
	return p.(*sync.Pool).Get().(*Aligner)
}

// RecycleAligner puts the aligner back to the pool.
func RecycleAligner(alg *Aligner) {
	if p, ok := poolAligners.Load(*alg.Scoring); ok {
		p.(*sync.Pool).Put(alg)
	}
}

func (alg *Aligner) profile(query []byte) []int8 {
	qlen := len(query)
	n := qlen * 5
	if cap(alg.qp) < n {
		alg.qp = make([]int8, n)
	}
	qp := alg.qp[:n]
	mat := &alg.Scoring.Mat
	var i int
	for k := 0; k < 5; k++ {
		p := mat[k*5 : k*5+5]
		for _, c := range query {
			qp[i] = p[c]
			i++
		}
	}
	return qp
}

func (alg *Aligner) row(n int) []eh {
	if cap(alg.eh) < n {
		alg.eh = make([]eh, n)
	}
	row := alg.eh[:n]
	for i := range row {
		row[i] = eh{}
	}
	return row
}

// ExtendResult is the result of an extension.
type ExtendResult struct {
	Score  int // best local score, at least h0
	QLE    int // query length of the best local extension
	TLE    int // target length of the best local extension
	GTLE   int // target length of the best extension reaching the query end
	GScore int // score reaching the query end, -1 if never reached
	MaxOff int // max diagonal offset of the best cells
}

// Extend extends an alignment with an initial score h0 > 0 from the
// start of both query and target, within a band of width w.
// The extension stops early when the score drops more than zdrop (0 for no
// Z-drop) below the best one seen, with gap lengths adjusted.
func (alg *Aligner) Extend(query, target []byte, w, endBonus, zdrop, h0 int) ExtendResult {
	sc := alg.Scoring
	qlen, tlen := len(query), len(target)
	oeDel := int32(sc.ODel + sc.EDel)
	oeIns := int32(sc.OIns + sc.EIns)
	eDel, eIns := int32(sc.EDel), int32(sc.EIns)

	r := ExtendResult{Score: h0, QLE: 0, TLE: 0, GTLE: 0, GScore: -1}
	if qlen == 0 || tlen == 0 {
		return r
	}

	qp := alg.profile(query)
	row := alg.row(qlen + 1)

	// the first row
	_h0 := int32(h0)
	row[0].h = _h0
	if _h0 > oeIns {
		row[1].h = _h0 - oeIns
	}
	for j := 2; j <= qlen && row[j-1].h > eIns; j++ {
		row[j].h = row[j-1].h - eIns
	}

	// adjust w if it is too large
	maxSc := sc.maxScore()
	maxIns := int(float64(qlen*maxSc+endBonus-sc.OIns)/float64(sc.EIns) + 1.)
	if maxIns < 1 {
		maxIns = 1
	}
	if w > maxIns {
		w = maxIns
	}
	maxDel := int(float64(qlen*maxSc+endBonus-sc.ODel)/float64(sc.EDel) + 1.)
	if maxDel < 1 {
		maxDel = 1
	}
	if w > maxDel {
		w = maxDel
	}

	max := _h0
	maxI, maxJ, maxIE := -1, -1, -1
	gscore := int32(-1)
	var maxOff int
	beg, end := 0, qlen
	var i, j, mj int
	var t, f, h1, m, M, e, h int32
	var q []int8
	var p *eh
	for i = 0; i < tlen; i++ {
		f, m, mj = 0, 0, -1
		q = qp[int(target[i])*qlen:]

		if beg < i-w {
			beg = i - w
		}
		if end > i+w+1 {
			end = i + w + 1
		}
		if end > qlen {
			end = qlen
		}

		// the first column
		if beg == 0 {
			h1 = _h0 - (int32(sc.ODel) + eDel*int32(i+1))
			if h1 < 0 {
				h1 = 0
			}
		} else {
			h1 = 0
		}

		for j = beg; j < end; j++ {
			// row[j] = {H(i-1,j-1), E(i,j)}, f = F(i,j), h1 = H(i,j-1)
			p = &row[j]
			M, e = p.h, p.e
			p.h = h1
			if M != 0 { // no match right after a gap
				M += int32(q[j])
			}
			h = M
			if e > h {
				h = e
			}
			if f > h {
				h = f
			}
			h1 = h
			if m <= h {
				mj = j
				m = h
			}
			t = M - oeDel
			if t < 0 {
				t = 0
			}
			e -= eDel
			if t > e {
				e = t
			}
			p.e = e
			t = M - oeIns
			if t < 0 {
				t = 0
			}
			f -= eIns
			if t > f {
				f = t
			}
		}
		row[end].h, row[end].e = h1, 0

		if j == qlen {
			if gscore <= h1 {
				maxIE = i
				gscore = h1
			}
		}
		if m == 0 {
			break
		}
		if m > max {
			max, maxI, maxJ = m, i, mj
			if d := abs(mj - i); d > maxOff {
				maxOff = d
			}
		} else if zdrop > 0 {
			if i-maxI > mj-maxJ {
				if int(max-m)-((i-maxI)-(mj-maxJ))*sc.EDel > zdrop {
					break
				}
			} else {
				if int(max-m)-((mj-maxJ)-(i-maxI))*sc.EIns > zdrop {
					break
				}
			}
		}

		// shrink the band
		for j = beg; j < end && row[j].h == 0 && row[j].e == 0; j++ {
		}
		beg = j
		for j = end; j >= beg && row[j].h == 0 && row[j].e == 0; j-- {
		}
		if j+2 < qlen {
			end = j + 2
		} else {
			end = qlen
		}
	}

	r.Score = int(max)
	r.QLE = maxJ + 1
	r.TLE = maxI + 1
	r.GTLE = maxIE + 1
	r.GScore = int(gscore)
	r.MaxOff = maxOff
	return r
}

// Global performs a banded global alignment and returns the score and
// the edit script. Ops are M, I (query only) and D (target only).
// The returned Cigar is only valid before the next call.
func (alg *Aligner) Global(query, target []byte, w int) (int, sam.Cigar) {
	sc := alg.Scoring
	qlen, tlen := len(query), len(target)
	if qlen == 0 && tlen == 0 {
		return 0, alg.ops[:0]
	}
	if qlen == 0 {
		alg.ops = append(alg.ops[:0], sam.NewCigarOp(sam.CigarDeletion, tlen))
		return -(sc.ODel + sc.EDel*tlen), alg.ops
	}
	if tlen == 0 {
		alg.ops = append(alg.ops[:0], sam.NewCigarOp(sam.CigarInsertion, qlen))
		return -(sc.OIns + sc.EIns*qlen), alg.ops
	}

	oeDel := int32(sc.ODel + sc.EDel)
	oeIns := int32(sc.OIns + sc.EIns)
	eDel, eIns := int32(sc.EDel), int32(sc.EIns)

	nCol := 2*w + 1
	if qlen < nCol {
		nCol = qlen
	}
	n := nCol * tlen
	if cap(alg.z) < n {
		alg.z = make([]uint8, n)
	}
	z := alg.z[:n]

	qp := alg.profile(query)
	row := alg.row(qlen + 1)

	// the first row
	row[0].h, row[0].e = 0, MinusInf
	var i, j, k int
	for j = 1; j <= qlen && j <= w; j++ {
		row[j].h, row[j].e = -(int32(sc.OIns) + eIns*int32(j)), MinusInf
	}
	for ; j <= qlen; j++ {
		row[j].h, row[j].e = MinusInf, MinusInf
	}

	var beg, end int
	var f, h1, t, h, m, e int32
	var d uint8
	var q []int8
	var zi []uint8
	var p *eh
	for i = 0; i < tlen; i++ {
		f = MinusInf
		q = qp[int(target[i])*qlen:]
		beg = 0
		if i > w {
			beg = i - w
		}
		end = i + w + 1
		if end > qlen {
			end = qlen
		}
		if beg == 0 {
			h1 = -(int32(sc.ODel) + eDel*int32(i+1))
		} else {
			h1 = MinusInf
		}
		zi = z[i*nCol:]
		for j = beg; j < end; j++ {
			// M(i,j) = H(i-1,j-1) + S(i,j)
			// H(i,j) = max{M(i,j), E(i,j), F(i,j)}
			// E(i+1,j) = max{M(i,j)-gapo, E(i,j)} - gape
			// F(i,j+1) = max{M(i,j)-gapo, F(i,j)} - gape
			p = &row[j]
			m, e = p.h, p.e
			p.h = h1
			m += int32(q[j])
			if m >= e {
				d, h = 0, m
			} else {
				d, h = 1, e
			}
			if h < f {
				d, h = 2, f
			}
			h1 = h
			t = m - oeDel
			e -= eDel
			if e > t {
				d |= 1 << 2
			} else {
				e = t
			}
			p.e = e
			t = m - oeIns
			f -= eIns
			if f > t {
				d |= 2 << 4
			} else {
				f = t
			}
			zi[j-beg] = d // h of this cell, e and f of the next cells
		}
		row[end].h, row[end].e = h1, MinusInf
	}
	score := int(row[qlen].h)

	// backtrack
	ops := alg.ops[:0]
	var which uint8
	i = tlen - 1
	k = i + w + 1
	if k > qlen {
		k = qlen
	}
	k--
	for i >= 0 && k >= 0 {
		beg = 0
		if i > w {
			beg = i - w
		}
		which = z[i*nCol+k-beg] >> (which << 1) & 3
		switch which {
		case 0:
			ops = pushOp(ops, sam.CigarMatch, 1)
			i--
			k--
		case 1:
			ops = pushOp(ops, sam.CigarDeletion, 1)
			i--
		default:
			ops = pushOp(ops, sam.CigarInsertion, 1)
			k--
		}
	}
	if i >= 0 {
		ops = pushOp(ops, sam.CigarDeletion, i+1)
	}
	if k >= 0 {
		ops = pushOp(ops, sam.CigarInsertion, k+1)
	}
	for i, j = 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	alg.ops = ops
	return score, ops
}

// pushOp appends an operation, merging it into the last one of the same type.
func pushOp(ops []sam.CigarOp, t sam.CigarOpType, n int) []sam.CigarOp {
	if l := len(ops); l > 0 && ops[l-1].Type() == t {
		ops[l-1] = sam.NewCigarOp(t, ops[l-1].Len()+n)
		return ops
	}
	return append(ops, sam.NewCigarOp(t, n))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
