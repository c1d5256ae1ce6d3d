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

	"github.com/shenwei356/smemap/smemap/align"
)

// MaxBandTry is the number of band widths tried in extension, doubling
// each time.
const MaxBandTry = 2

// Region is an aligned region of a query, without the edit script.
type Region struct {
	RB, RE int64 // [RB, RE) in the doubled coordinate system
	QB, QE int   // [QB, QE) of the query
	Rid    int

	Score   int // best local score
	TrueSc  int // score of the reported region, could be smaller than Score
	Sub     int // second best score
	AltSc   int
	CSub    int // score of a tandem hit
	SubN    int // approximate number of suboptimal hits
	W       int // band width used in extension
	SeedCov int // length of seeds contained in the region

	Secondary    int // index of the parent hit, -1 for primary ones
	SecondaryAll int
	SeedLen0     int // length of the anchor seed
	NComp        int
	IsAlt        bool
	FracRep      float32
	Hash         uint64
}

func (r *Region) String() string {
	return fmt.Sprintf("q[%d, %d) r[%d, %d) rid:%d score:%d sub:%d csub:%d secondary:%d",
		r.QB, r.QE, r.RB, r.RE, r.Rid, r.Score, r.Sub, r.CSub, r.Secondary)
}

// checkRegion panics on impossible regions, which are bugs.
func checkRegion(r *Region, lQuery int) {
	if r.QB < 0 || r.QB >= r.QE || r.QE > lQuery || r.RB >= r.RE {
		panic(fmt.Sprintf("mem: invalid region for a query of %d bp: %s", lQuery, r))
	}
}

// calMaxGap returns the maximum gap length allowed for a query length.
func calMaxGap(opt *Options, qlen int) int {
	lDel := int(float64(qlen*opt.A-opt.ODel)/float64(opt.EDel) + 1.)
	lIns := int(float64(qlen*opt.A-opt.OIns)/float64(opt.EIns) + 1.)
	l := max(lDel, lIns)
	l = max(l, 1)
	return min(l, opt.W<<1)
}

// extendSide is one side of an extension, possibly tried with two
// band widths.
type extendSide struct {
	Query    []byte // reversed for the left side
	Target   []byte
	H0       int
	EndBonus int

	prev int
	aw   int
	try  int
	done bool
	Res  align.ExtendResult
}

// next prepares the next try and returns its band width, or false if the
// side is finished.
func (s *extendSide) next(w int) (int, bool) {
	if s.done || s.try >= MaxBandTry {
		s.done = true
		return 0, false
	}
	s.aw = w << s.try
	return s.aw, true
}

// update records the result of a try.
func (s *extendSide) update(res align.ExtendResult) {
	s.Res = res
	s.try++
	if res.Score == s.prev || res.MaxOff < (s.aw>>1)+(s.aw>>2) {
		s.done = true
	}
	s.prev = res.Score
}

// ExtendJob is the extension of one chain from its longest seed.
type ExtendJob struct {
	Query  []byte // codes
	Chain  *Chain
	Seed   Seed // the anchor
	RMax   [2]int64
	Ref    []byte // codes of [RMax[0], RMax[1])
	Region Region // the result

	left, right extendSide
	hasLeft     bool
	hasRight    bool
	aw          [2]int
}

// NewExtendJob computes the reference window of a chain and fetches it.
func NewExtendJob(opt *Options, ref *Reference, q []byte, c *Chain) *ExtendJob {
	lQuery := len(q)
	lPac := ref.LPac()
	rmax := [2]int64{lPac << 1, 0}
	var b, e int64
	for _, t := range c.Seeds {
		b = t.RBeg - int64(t.QBeg+calMaxGap(opt, t.QBeg))
		l := lQuery - t.QBeg - t.Len
		e = t.RBeg + int64(t.Len) + int64(l+calMaxGap(opt, l))
		rmax[0] = min(rmax[0], b)
		rmax[1] = max(rmax[1], e)
	}
	rmax[0] = max(rmax[0], 0)
	rmax[1] = min(rmax[1], lPac<<1)
	if rmax[0] < lPac && lPac < rmax[1] { // crossing the strands, seeds are on the same one
		if c.Seeds[0].RBeg < lPac {
			rmax[1] = lPac
		} else {
			rmax[0] = lPac
		}
	}

	j := &ExtendJob{Query: q, Chain: c}
	var rid int
	j.Ref, rmax[0], rmax[1], rid = ref.Meta.FetchSeq(ref.Pac, rmax[0], c.Seeds[0].RBeg, rmax[1], make([]byte, 0, rmax[1]-rmax[0]))
	if rid != c.Rid {
		panic(fmt.Sprintf("mem: chain on contig %d, window on %d", c.Rid, rid))
	}
	j.RMax = rmax
	j.Seed = c.Seeds[c.Anchor()]
	j.prepare(opt)
	return j
}

func (j *ExtendJob) prepare(opt *Options) {
	s := &j.Seed
	r := &j.Region
	*r = Region{Rid: j.Chain.Rid, Score: -1, TrueSc: -1, W: opt.W, Secondary: -1, SecondaryAll: -1}
	j.aw = [2]int{opt.W, opt.W}

	j.hasLeft = s.QBeg > 0
	if j.hasLeft {
		qs := make([]byte, s.QBeg)
		for i := range qs {
			qs[i] = j.Query[s.QBeg-1-i]
		}
		tmp := int(s.RBeg - j.RMax[0])
		rs := make([]byte, tmp)
		for i := range rs {
			rs[i] = j.Ref[tmp-1-i]
		}
		j.left = extendSide{Query: qs, Target: rs, H0: s.Len * opt.A, EndBonus: opt.PenClip5, prev: -1}
	} else {
		r.Score, r.TrueSc = s.Len*opt.A, s.Len*opt.A
		r.QB, r.RB = 0, s.RBeg
	}

	j.hasRight = s.QBeg+s.Len != len(j.Query)
	if !j.hasRight {
		r.QE, r.RE = len(j.Query), s.RBeg+int64(s.Len)
	}
}

// finishLeft applies the left extension.
func (j *ExtendJob) finishLeft(opt *Options) {
	s, r, res := &j.Seed, &j.Region, &j.left.Res
	j.aw[0] = j.left.aw
	r.Score = res.Score
	if res.GScore <= 0 || res.GScore <= res.Score-opt.PenClip5 { // local extension
		r.QB = s.QBeg - res.QLE
		r.RB = s.RBeg - int64(res.TLE)
		r.TrueSc = res.Score
	} else { // to the end
		r.QB = 0
		r.RB = s.RBeg - int64(res.GTLE)
		r.TrueSc = res.GScore
	}
}

// prepareRight sets the right side, which starts from the left score.
func (j *ExtendJob) prepareRight(opt *Options) {
	s := &j.Seed
	qe := s.QBeg + s.Len
	re := int(s.RBeg + int64(s.Len) - j.RMax[0])
	j.right = extendSide{
		Query:    j.Query[qe:],
		Target:   j.Ref[re:],
		H0:       j.Region.Score,
		EndBonus: opt.PenClip3,
		prev:     j.Region.Score,
	}
}

// finishRight applies the right extension.
func (j *ExtendJob) finishRight(opt *Options) {
	s, r, res := &j.Seed, &j.Region, &j.right.Res
	j.aw[1] = j.right.aw
	sc0 := j.right.H0
	qe := s.QBeg + s.Len
	re := s.RBeg + int64(s.Len)
	r.Score = res.Score
	if res.GScore <= 0 || res.GScore <= res.Score-opt.PenClip3 {
		r.QE = qe + res.QLE
		r.RE = re + int64(res.TLE)
		r.TrueSc += res.Score - sc0
	} else {
		r.QE = len(j.Query)
		r.RE = re + int64(res.GTLE)
		r.TrueSc += res.GScore - sc0
	}
}

// finish fills the remaining fields of the region.
func (j *ExtendJob) finish() {
	r := &j.Region
	r.SeedCov = 0
	for _, t := range j.Chain.Seeds {
		if t.QBeg >= r.QB && t.QBeg+t.Len <= r.QE && t.RBeg >= r.RB && t.RBeg+int64(t.Len) <= r.RE {
			r.SeedCov += t.Len
		}
	}
	r.W = max(j.aw[0], j.aw[1])
	r.SeedLen0 = j.Seed.Len
	r.FracRep = j.Chain.FracRep
	checkRegion(r, len(j.Query))
}

// runSide runs all tries of one side in process.
func runSide(alg *align.Aligner, opt *Options, s *extendSide) {
	for {
		aw, ok := s.next(opt.W)
		if !ok {
			return
		}
		s.update(alg.Extend(s.Query, s.Target, aw, s.EndBonus, opt.ZDrop, s.H0))
	}
}

// extendInProcess performs the whole extension of a job.
func extendInProcess(alg *align.Aligner, opt *Options, j *ExtendJob) {
	if j.hasLeft {
		runSide(alg, opt, &j.left)
		j.finishLeft(opt)
	}
	if j.hasRight {
		j.prepareRight(opt)
		runSide(alg, opt, &j.right)
		j.finishRight(opt)
	}
	j.finish()
}
