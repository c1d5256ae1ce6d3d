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
	"math"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/shenwei356/smemap/smemap/align"
	"github.com/shenwei356/smemap/smemap/util"
)

// mateSW rescues the mate of region a by local alignment in the windows
// where a proper mate is expected. ms are the codes of the mate and ma its
// regions, which are returned sorted and deduplicated, together with the
// number of windows aligned.
func mateSW(opt *Options, ref *Reference, alg *align.Aligner, pes *[4]PeStat, a *Region, ms []byte, ma []Region) ([]Region, int) {
	lPac := ref.LPac()
	var skip [4]bool
	for r := 0; r < 4; r++ {
		skip[r] = pes[r].Failed
	}
	for i := range ma { // orientations already found
		r, dist := inferDir(lPac, a.RB, ma[i].RB)
		if dist >= int64(pes[r].Low) && dist <= int64(pes[r].High) {
			skip[r] = true
		}
	}
	if skip[0] && skip[1] && skip[2] && skip[3] {
		return ma, 0
	}

	var n int
	lms := int64(len(ms))
	var rev, seq, rseq []byte
	var rb, re, low, high int64
	var rid int
	for r := 0; r < 4; r++ {
		if skip[r] {
			continue
		}
		isRev := r>>1 != r&1   // reverse complement the mate
		isLarger := r>>1 == 0 // the mate has a larger coordinate
		seq = ms
		if isRev {
			rev = revCompCodes(rev, ms)
			seq = rev
		}
		low, high = int64(pes[r].Low), int64(pes[r].High)
		if !isRev {
			if isLarger {
				rb, re = a.RB+low, a.RB+high+lms
			} else {
				rb, re = a.RB-high, a.RB-low+lms
			}
		} else {
			if isLarger {
				rb, re = a.RB+low-lms, a.RB+high
			} else {
				rb, re = a.RB-high-lms, a.RB-low
			}
		}
		rb = max(rb, 0)
		re = min(re, lPac<<1)
		if rb >= re {
			continue
		}
		rseq, rb, re, rid = ref.Meta.FetchSeq(ref.Pac, rb, (rb+re)>>1, re, rseq)
		if rid != a.Rid || re-rb < int64(opt.MinSeedLen) {
			continue
		}

		res := alg.Local(seq, rseq, opt.MinSeedLen*opt.A)
		if res.Score >= opt.MinSeedLen && res.QB >= 0 {
			b := Region{
				Rid:          a.Rid,
				IsAlt:        a.IsAlt,
				Score:        res.Score,
				TrueSc:       res.Score,
				CSub:         max(res.Score2, 0),
				W:            opt.W,
				Secondary:    -1,
				SecondaryAll: -1,
				NComp:        1,
			}
			if isRev {
				b.QB, b.QE = len(ms)-res.QE, len(ms)-res.QB
				b.RB, b.RE = (lPac<<1)-(rb+int64(res.TE)), (lPac<<1)-(rb+int64(res.TB))
			} else {
				b.QB, b.QE = res.QB, res.QE
				b.RB, b.RE = rb+int64(res.TB), rb+int64(res.TE)
			}
			b.SeedCov = int(min(b.RE-b.RB, int64(b.QE-b.QB)) >> 1)

			// keep ma sorted by score
			var i int
			for i = 0; i < len(ma); i++ {
				if ma[i].Score < b.Score {
					break
				}
			}
			ma = append(ma, Region{})
			copy(ma[i+1:], ma[i:])
			ma[i] = b
		}
		n++
		ma = sortDedup(opt, ma)
	}
	return ma, n
}

type pairHit struct {
	x uint64 // rid<<32 | position on the contig
	y uint64 // score<<32 | index<<2 | strand<<1 | read
}

// pairRegions finds the best pair of primary regions of the two ends.
// It returns the pair score, the score of the second best pair, the number
// of suboptimal pairs and the indexes of the two regions.
func pairRegions(opt *Options, ref *Reference, pes *[4]PeStat, regs [2][]Region, id int64, nPri [2]int) (o, subo, nSub int, z [2]int) {
	lPac := ref.LPac()
	v := make([]pairHit, 0, nPri[0]+nPri[1])
	var pos int64
	var strand uint64
	for r := 0; r < 2; r++ {
		for i := 0; i < nPri[r]; i++ {
			e := &regs[r][i]
			pos, strand = e.RB, 0
			if e.RB >= lPac {
				pos, strand = (lPac<<1)-1-e.RB, 1
			}
			v = append(v, pairHit{
				x: uint64(e.Rid)<<32 | uint64(pos-ref.Meta.Contigs[e.Rid].Offset),
				y: uint64(e.Score)<<32 | uint64(i)<<2 | strand<<1 | uint64(r),
			})
		}
	}
	sort.Slice(v, func(i, j int) bool {
		if v[i].x != v[j].x {
			return v[i].x < v[j].x
		}
		return v[i].y < v[j].y
	})

	u := make([]pairHit, 0, 8) // x: q<<32 | hash, y: k<<32 | i
	last := [4]int{-1, -1, -1, -1}
	var dir, which int
	var dist int64
	var ns, qf float64
	var q int
	for i := range v {
		for r := 0; r < 2; r++ { // direction
			dir = r<<1 | int(v[i].y>>1&1)
			if pes[dir].Failed {
				continue
			}
			which = r<<1 | int(v[i].y&1^1)
			if last[which] < 0 {
				continue
			}
			for k := last[which]; k >= 0; k-- {
				if int(v[k].y&3) != which {
					continue
				}
				dist = int64(v[i].x) - int64(v[k].x)
				if dist > int64(pes[dir].High) {
					break
				}
				if dist < int64(pes[dir].Low) {
					continue
				}
				ns = 0
				if pes[dir].Std > 0 {
					ns = (float64(dist) - pes[dir].Avg) / pes[dir].Std
				}
				// .721 = 1/log(4)
				qf = float64(v[i].y>>32+v[k].y>>32) +
					.721*math.Log(2.*math.Erfc(math.Abs(ns)/math.Sqrt2))*float64(opt.A) + .499
				q = 0
				if qf > 0 {
					q = int(qf)
				}
				y := uint64(k)<<32 | uint64(i)
				u = append(u, pairHit{
					x: uint64(q)<<32 | util.Hash64(y^uint64(id)<<8)&0xffffffff,
					y: y,
				})
			}
		}
		last[v[i].y&3] = i
	}
	if len(u) == 0 {
		return 0, 0, 0, z
	}

	tmp := max(opt.A+opt.B, opt.ODel+opt.EDel, opt.OIns+opt.EIns)
	sort.Slice(u, func(i, j int) bool {
		if u[i].x != u[j].x {
			return u[i].x < u[j].x
		}
		return u[i].y < u[j].y
	})
	best := u[len(u)-1]
	i, k := int(best.y>>32), int(best.y&0xffffffff)
	z[v[i].y&1] = int(v[i].y & 0xffffffff >> 2)
	z[v[k].y&1] = int(v[k].y & 0xffffffff >> 2)
	o = int(best.x >> 32)
	if len(u) > 1 {
		subo = int(u[len(u)-2].x >> 32)
	}
	for j := len(u) - 2; j >= 0; j-- {
		if subo-int(u[j].x>>32) <= tmp {
			nSub++
		}
	}
	return o, subo, nSub, z
}

var readFlags = [2]sam.Flags{sam.Read1, sam.Read2}

// finalizePair rescues mates, marks primary regions and pairs the two
// ends of a read pair, filling Alns of both reads. It returns the number
// of mate rescue alignments.
func (m *Mapper) finalizePair(pes *[4]PeStat, id int64, s [2]*Read) int {
	opt, ref := m.opt, m.ref
	a := [2][]Region{s[0].regs, s[1].regs}
	var n int

	if opt.Flag&FlagNoRescue == 0 {
		alg := align.GetAligner(opt.Scoring())
		var b [2][]Region
		for i := 0; i < 2; i++ {
			for j := range a[i] {
				if a[i][j].Score >= a[i][0].Score-opt.PenUnpaired {
					b[i] = append(b[i], a[i][j])
				}
			}
		}
		var k int
		for i := 0; i < 2; i++ {
			for j := 0; j < len(b[i]) && j < opt.MaxMateSW; j++ {
				a[1-i], k = mateSW(opt, ref, alg, pes, &b[i][j], s[1-i].codes, a[1-i])
				n += k
			}
		}
		align.RecycleAligner(alg)
	}

	var nPri [2]int
	nPri[0] = markPrimarySE(opt, a[0], id<<1)
	nPri[1] = markPrimarySE(opt, a[1], id<<1|1)
	s[0].regs, s[1].regs = a[0], a[1]

	if opt.Flag&FlagNoPairing == 0 && nPri[0] > 0 && nPri[1] > 0 && m.outputPair(pes, id, s, nPri) {
		return n
	}

	// unpaired
	var h [2]Alignment
	for i := 0; i < 2; i++ {
		which := -1
		if len(a[i]) > 0 {
			if a[i][0].Score >= opt.T {
				which = 0
			} else if nPri[i] < len(a[i]) && a[i][nPri[i]].Score >= opt.T {
				which = nPri[i]
			}
		}
		if which >= 0 {
			h[i] = Reg2Aln(opt, ref, s[i].codes, &a[i][which])
		} else {
			h[i] = unmappedAlignment()
		}
	}
	extra := sam.Paired
	if opt.Flag&FlagNoPairing == 0 && h[0].Rid == h[1].Rid && h[0].Rid >= 0 {
		d, dist := inferDir(ref.LPac(), a[0][0].RB, a[1][0].RB)
		if !pes[d].Failed && dist >= int64(pes[d].Low) && dist <= int64(pes[d].High) {
			extra |= sam.ProperPair
		}
	}
	s[0].Alns = regsToAlignments(opt, ref, s[0].codes, a[0], sam.Read1|extra, &h[1])
	s[1].Alns = regsToAlignments(opt, ref, s[1].codes, a[1], sam.Read2|extra, &h[0])
	return n
}

// outputPair writes the best pair as the primary alignments. It returns
// false if there is no pair or an end still has multiple hits.
func (m *Mapper) outputPair(pes *[4]PeStat, id int64, s [2]*Read, nPri [2]int) bool {
	opt, ref := m.opt, m.ref
	a := [2][]Region{s[0].regs, s[1].regs}

	o, subo, nSub, z := pairRegions(opt, ref, pes, a, id, nPri)
	if o <= 0 {
		return false
	}
	for i := 0; i < 2; i++ { // multiple hits even after rescue
		for j := 1; j < nPri[i]; j++ {
			if a[i][j].Secondary < 0 && a[i][j].Score >= opt.T {
				return false
			}
		}
	}

	scoreUn := a[0][0].Score + a[1][0].Score - opt.PenUnpaired
	subo = max(subo, scoreUn)
	qPE := rawMapQ(o-subo, opt.A)
	if nSub > 0 {
		qPE -= int(4.343*math.Log(float64(nSub+1)) + .499)
	}
	qPE = max(min(qPE, MapQMax), 0)
	qPE = int(float64(qPE)*(1.-.5*float64(a[0][0].FracRep+a[1][0].FracRep)) + .499)

	var qSE [2]int
	extra := sam.Paired
	if o > scoreUn { // paired alignment is preferred
		var c [2]*Region
		for i := 0; i < 2; i++ {
			c[i] = &a[i][z[i]]
			if c[i].Secondary >= 0 {
				c[i].Sub = a[i][c[i].Secondary].Score
				c[i].Secondary = -2
			}
			qSE[i] = ApproxMapQSE(opt, c[i])
		}
		for i := 0; i < 2; i++ {
			if qSE[i] <= qPE {
				qSE[i] = min(qPE, qSE[i]+40)
			}
			// capped by the tandem repeat score
			qSE[i] = min(qSE[i], rawMapQ(c[i].Score-c[i].CSub, opt.A))
		}
		extra |= sam.ProperPair
	} else {
		z = [2]int{0, 0}
		qSE[0] = ApproxMapQSE(opt, &a[0][0])
		qSE[1] = ApproxMapQSE(opt, &a[1][0])
	}

	for i := 0; i < 2; i++ { // the primary one of the pair becomes the representative
		k := a[i][z[i]].SecondaryAll
		if k >= 0 && k < nPri[i] {
			for j := range a[i] {
				if a[i][j].SecondaryAll == k || j == k {
					a[i][j].SecondaryAll = z[i]
				}
			}
			a[i][z[i]].SecondaryAll = -1
		}
	}

	var xa [2][]string
	if opt.Flag&FlagAll == 0 {
		xa[0] = GenAlt(opt, ref, s[0].codes, a[0])
		xa[1] = GenAlt(opt, ref, s[1].codes, a[1])
	}

	var h [2]Alignment
	var aa [2][]*Alignment
	for i := 0; i < 2; i++ {
		h[i] = Reg2Aln(opt, ref, s[i].codes, &a[i][z[i]])
		h[i].MapQ = qSE[i]
		h[i].Flag |= readFlags[i] | extra
		if xa[i] != nil {
			h[i].XA = xa[i][z[i]]
		}
		first := h[i]
		aa[i] = append(aa[i], &first)
		if nPri[i] < len(a[i]) { // ALT hits
			p := &a[i][nPri[i]]
			if p.Score < opt.T || p.Secondary >= 0 || !p.IsAlt {
				continue
			}
			g := Reg2Aln(opt, ref, s[i].codes, p)
			g.Flag |= sam.Supplementary | readFlags[i] | extra
			if xa[i] != nil {
				g.XA = xa[i][nPri[i]]
			}
			aa[i] = append(aa[i], &g)
		}
	}
	finalizeRecords(opt, ref, aa[0], &h[1])
	finalizeRecords(opt, ref, aa[1], &h[0])
	s[0].Alns, s[1].Alns = aa[0], aa[1]
	return true
}
