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
	"math"
	"sort"
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/shenwei356/smemap/smemap/index/fmindex"
)

// Chain is a group of co-linear seeds on the same contig and strand.
type Chain struct {
	Seeds []Seed
	Pos   int64 // reference start of the first seed, the key in the chain tree
	Rid   int

	W       int // weight
	Kept    int // 3: best or not overlapping; 2: overlapping; 1: shadowed, kept for MAPQ; 0: dropped
	First   int // index of the first chain it shadows, -1 for none
	IsAlt   bool
	FracRep float32

	id int // insertion order, breaking ties of Pos
}

// Compare implements llrb.Comparable.
func (c *Chain) Compare(b llrb.Comparable) int {
	d := b.(*Chain)
	if c.Pos < d.Pos {
		return -1
	}
	if c.Pos > d.Pos {
		return 1
	}
	return c.id - d.id
}

func (c *Chain) String() string {
	return fmt.Sprintf("chain pos:%d, rid:%d, seeds:%d, weight:%d, kept:%d", c.Pos, c.Rid, len(c.Seeds), c.W, c.Kept)
}

// QBeg returns the query start of the first seed.
func (c *Chain) QBeg() int { return c.Seeds[0].QBeg }

// QEnd returns the query end of the last seed.
func (c *Chain) QEnd() int {
	s := &c.Seeds[len(c.Seeds)-1]
	return s.QBeg + s.Len
}

// Anchor returns the index of the longest seed, the one extension starts
// from. Ties go to the later seed.
func (c *Chain) Anchor() int {
	var a int
	for i, s := range c.Seeds {
		if s.Score >= c.Seeds[a].Score {
			a = i
		}
	}
	return a
}

// Weight returns the minimum of the query and reference lengths covered by
// seeds, without counting overlaps twice.
func (c *Chain) Weight() int {
	var w, wq int
	var end int64
	var b, e int64
	for _, s := range c.Seeds {
		b, e = int64(s.QBeg), int64(s.QBeg+s.Len)
		if b >= end {
			w += s.Len
		} else if e > end {
			w += int(e - end)
		}
		if e > end {
			end = e
		}
	}
	wq, w, end = w, 0, 0
	for _, s := range c.Seeds {
		b, e = s.RBeg, s.RBeg+int64(s.Len)
		if b >= end {
			w += s.Len
		} else if e > end {
			w += int(e - end)
		}
		if e > end {
			end = e
		}
	}
	if wq < w {
		w = wq
	}
	if w >= 1<<30 {
		w = 1<<30 - 1
	}
	return w
}

var poolChain = &sync.Pool{New: func() interface{} {
	return &Chain{Seeds: make([]Seed, 0, 4)}
}}

func newChain() *Chain {
	c := poolChain.Get().(*Chain)
	c.Seeds = c.Seeds[:0]
	c.W, c.Kept, c.First = 0, 0, -1
	c.IsAlt = false
	c.FracRep = 0
	return c
}

// RecycleChains puts chains back to the pool.
// Please remember to call this after using the results.
func RecycleChains(chains []*Chain) {
	for _, c := range chains {
		poolChain.Put(c)
	}
}

// Chainer finds seeds of a query and groups them into chains.
// It is not safe for concurrent use.
type Chainer struct {
	opt *Options
	ref *Reference

	// reusable variables
	scratch fmindex.Scratch
	mem1    []fmindex.Interval
	mems    []fmindex.Interval
	tree    *llrb.Tree
	query   Chain
	chains  []*Chain
	idx     []int
}

// NewChainer creates a new chainer.
func NewChainer(opt *Options, ref *Reference) *Chainer {
	return &Chainer{
		opt:    opt,
		ref:    ref,
		mem1:   make([]fmindex.Interval, 0, 64),
		mems:   make([]fmindex.Interval, 0, 256),
		tree:   &llrb.Tree{},
		chains: make([]*Chain, 0, 64),
		idx:    make([]int, 0, 64),
	}
}

// merge tries to add a seed into chain c.
func (ce *Chainer) merge(c *Chain, s *Seed, rid int) bool {
	if rid != c.Rid {
		return false
	}
	first := &c.Seeds[0]
	last := &c.Seeds[len(c.Seeds)-1]
	qend := last.QBeg + last.Len
	rend := last.RBeg + int64(last.Len)
	if s.QBeg >= first.QBeg && s.QBeg+s.Len <= qend &&
		s.RBeg >= first.RBeg && s.RBeg+int64(s.Len) <= rend {
		return true // contained seed
	}
	lPac := ce.ref.LPac()
	if (last.RBeg < lPac || first.RBeg < lPac) && s.RBeg >= lPac {
		return false // different strands
	}
	x := int64(s.QBeg - last.QBeg)
	y := s.RBeg - last.RBeg
	w := int64(ce.opt.W)
	gap := int64(ce.opt.MaxChainGap)
	if y >= 0 && x-y <= w && y-x <= w && x-int64(last.Len) < gap && y-int64(last.Len) < gap {
		c.Seeds = append(c.Seeds, *s)
		return true
	}
	return false
}

// Chain finds seeds of query codes and chains them. The returned chains are
// sorted by reference position and are only valid before the next call.
// Please remember to call RecycleChains after using the results.
func (ce *Chainer) Chain(q []byte) []*Chain {
	opt := ce.opt
	chains := ce.chains[:0]
	if len(q) < opt.MinSeedLen {
		ce.chains = chains
		return chains
	}
	idx := ce.ref.Index
	meta := ce.ref.Meta
	maxOcc := int64(opt.MaxOcc)

	mems := ce.collectIntervals(q)
	fracRep := float32(repetitiveLength(mems, maxOcc)) / float32(len(q))

	tree := ce.tree
	*tree = llrb.Tree{}
	query := &ce.query
	query.id = math.MaxInt

	var id int
	var step, k, count int64
	var s Seed
	var rid int
	var add bool
	var c *Chain
	for _, m := range mems {
		step = 1
		if m.X[2] > maxOcc {
			step = m.X[2] / maxOcc
		}
		for k, count = 0, 0; k < m.X[2] && count < maxOcc; k, count = k+step, count+1 {
			s.RBeg = idx.SA(m.X[0] + k)
			s.QBeg = m.QBeg
			s.Len = m.Len()
			s.Score = s.Len

			rid = meta.Intv2Rid(s.RBeg, s.RBeg+int64(s.Len))
			if rid < 0 { // bridging two contigs or the two strands
				continue
			}

			add = true
			if tree.Len() > 0 {
				query.Pos = s.RBeg
				if lower := tree.Floor(query); lower != nil && ce.merge(lower.(*Chain), &s, rid) {
					add = false
				}
			}
			if add {
				c = newChain()
				c.Seeds = append(c.Seeds, s)
				c.Pos = s.RBeg
				c.Rid = rid
				c.IsAlt = meta.Contigs[rid].IsAlt
				c.id = id
				id++
				tree.Insert(c)
			}
		}
	}

	tree.Do(func(e llrb.Comparable) (done bool) {
		c := e.(*Chain)
		c.FracRep = fracRep
		chains = append(chains, c)
		return
	})
	*tree = llrb.Tree{}

	ce.chains = chains
	return chains
}

// Filter computes chain weights, sorts chains by weight and drops weak
// chains shadowed by heavier overlapping ones. Dropped chains are
// recycled.
func (ce *Chainer) Filter(chains []*Chain) []*Chain {
	if len(chains) == 0 {
		return chains
	}
	opt := ce.opt

	var k int
	for _, c := range chains {
		c.First, c.Kept = -1, 0
		c.W = c.Weight()
		if c.W < opt.MinChainWeight {
			poolChain.Put(c)
			continue
		}
		chains[k] = c
		k++
	}
	chains = chains[:k]
	if len(chains) == 0 {
		return chains
	}

	sort.SliceStable(chains, func(i, j int) bool { return chains[i].W > chains[j].W })

	// pairwise comparisons
	kept := ce.idx[:0]
	chains[0].Kept = 3
	kept = append(kept, 0)
	var largeOvlp bool
	var bMax, eMin, li, lj, minL int
	var a, b *Chain
	for i := 1; i < len(chains); i++ {
		a = chains[i]
		largeOvlp = false
		for k = 0; k < len(kept); k++ {
			j := kept[k]
			b = chains[j]
			bMax = max(b.QBeg(), a.QBeg())
			eMin = min(b.QEnd(), a.QEnd())
			// ALT chains do not shadow primary ones
			if eMin > bMax && (!b.IsAlt || a.IsAlt) {
				li = a.QEnd() - a.QBeg()
				lj = b.QEnd() - b.QBeg()
				minL = min(li, lj)
				if float64(eMin-bMax) >= float64(minL)*opt.MaskLevel && minL < opt.MaxChainGap {
					largeOvlp = true
					if b.First < 0 {
						b.First = i
					}
					if float64(a.W) < float64(b.W)*opt.DropRatio && b.W-a.W >= opt.MinSeedLen<<1 {
						break
					}
				}
			}
		}
		if k == len(kept) {
			kept = append(kept, i)
			if largeOvlp {
				a.Kept = 2
			} else {
				a.Kept = 3
			}
		}
	}
	for _, j := range kept {
		if c := chains[j]; c.First >= 0 {
			chains[c.First].Kept = 1
		}
	}
	ce.idx = kept

	// limit the number of extended chains with kept of 1 or 2
	var i int
	k = 0
	for i = 0; i < len(chains); i++ {
		if chains[i].Kept == 0 || chains[i].Kept == 3 {
			continue
		}
		k++
		if k >= opt.MaxChainExtend {
			break
		}
	}
	for ; i < len(chains); i++ {
		if chains[i].Kept < 3 {
			chains[i].Kept = 0
		}
	}

	k = 0
	for _, c := range chains {
		if c.Kept == 0 {
			poolChain.Put(c)
			continue
		}
		chains[k] = c
		k++
	}
	return chains[:k]
}
