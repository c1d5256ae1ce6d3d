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

// LocalResult is the result of a local alignment.
// Coordinates are 0-based and half-open, and QB is -1 if nothing aligns.
type LocalResult struct {
	Score  int
	QB, QE int
	TB, TE int

	Score2 int // best score of other target regions, -1 if none
	TE2    int
}

// per-row best score
type peak struct {
	score int32
	te    int
}

func pack(i, j int) int64 { return int64(i)<<32 | int64(j) }

// Local performs a full Smith-Waterman alignment with affine gaps.
// Row maxima of at least minScore are candidates for the second best
// score, which must end far enough from the best hit on the target.
func (alg *Aligner) Local(query, target []byte, minScore int) LocalResult {
	r := LocalResult{QB: -1, QE: -1, TB: -1, TE: -1, Score2: -1, TE2: -1}
	qlen, tlen := len(query), len(target)
	if qlen == 0 || tlen == 0 {
		return r
	}
	sc := alg.Scoring
	oeDel := int32(sc.ODel + sc.EDel)
	oeIns := int32(sc.OIns + sc.EIns)
	eDel, eIns := int32(sc.EDel), int32(sc.EIns)

	n := qlen + 1
	if cap(alg.hs) < n {
		alg.hs = make([]int32, n)
		alg.es = make([]int32, n)
		alg.hb = make([]int64, n)
		alg.eb = make([]int64, n)
	}
	hs, es := alg.hs[:n], alg.es[:n]
	hb, eb := alg.hb[:n], alg.eb[:n]
	for j := range hs {
		hs[j], es[j], hb[j], eb[j] = 0, MinusInf, 0, 0
	}
	peaks := alg.peaks[:0]

	qp := alg.profile(query)

	var best int32
	var bestI, bestJ int
	var bestB int64
	var i, j, rowMaxJ int
	var hDiag, hLeft, f, e, m, h, t, up, rowMax int32
	var bDiag, bLeft, fb, mb, hbv, upb, ebv int64
	var q []int8
	for i = 0; i < tlen; i++ {
		q = qp[int(target[i])*qlen:]
		hDiag, bDiag = 0, 0
		hLeft, bLeft = 0, 0
		f, fb = MinusInf, 0
		rowMax, rowMaxJ = 0, -1
		for j = 0; j < qlen; j++ {
			up, upb = hs[j+1], hb[j+1]

			// deletion, moving along the target
			e, ebv = es[j]-eDel, eb[j]
			if t = up - oeDel; t >= e {
				e, ebv = t, upb
			}
			// insertion, moving along the query
			f -= eIns
			if t = hLeft - oeIns; t >= f {
				f, fb = t, bLeft
			}

			m, mb = hDiag+int32(q[j]), bDiag
			if hDiag == 0 {
				mb = pack(i, j)
			}
			h, hbv = m, mb
			if e > h {
				h, hbv = e, ebv
			}
			if f > h {
				h, hbv = f, fb
			}
			if h <= 0 {
				h, hbv = 0, 0
			}

			es[j], eb[j] = e, ebv
			hDiag, bDiag = up, upb
			hs[j+1], hb[j+1] = h, hbv
			hLeft, bLeft = h, hbv

			if h > rowMax {
				rowMax, rowMaxJ = h, j
			}
		}

		if rowMax > best {
			best, bestI, bestJ, bestB = rowMax, i, rowMaxJ, hb[rowMaxJ+1]
		}
		if int(rowMax) >= minScore && rowMax > 0 {
			if l := len(peaks); l == 0 || peaks[l-1].te+1 != i {
				peaks = append(peaks, peak{score: rowMax, te: i})
			} else if peaks[l-1].score < rowMax {
				peaks[l-1] = peak{score: rowMax, te: i}
			}
		}
	}
	alg.peaks = peaks

	if best == 0 {
		return r
	}
	r.Score = int(best)
	r.TE, r.QE = bestI+1, bestJ+1
	r.TB, r.QB = int(bestB>>32), int(bestB&0xffffffff)

	maxSc := sc.maxScore()
	if maxSc < 1 {
		maxSc = 1
	}
	l := (r.Score + maxSc - 1) / maxSc
	low, high := bestI-l, bestI+l
	for _, p := range peaks {
		if (p.te < low || p.te > high) && int(p.score) > r.Score2 {
			r.Score2, r.TE2 = int(p.score), p.te+1
		}
	}
	return r
}
