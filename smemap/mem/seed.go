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
	"sort"

	"github.com/shenwei356/smemap/smemap/index/fmindex"
)

// Seed is an exact match between the query and the reference.
type Seed struct {
	RBeg  int64 // in the doubled coordinate system
	QBeg  int
	Len   int
	Score int
}

func (s Seed) String() string {
	return fmt.Sprintf("q[%d, %d) r[%d, %d)", s.QBeg, s.QBeg+s.Len, s.RBeg, s.RBeg+int64(s.Len))
}

type intervals []fmindex.Interval

func (s intervals) Len() int { return len(s) }
func (s intervals) Less(i, j int) bool {
	if s[i].QBeg == s[j].QBeg {
		return s[i].QEnd < s[j].QEnd
	}
	return s[i].QBeg < s[j].QBeg
}
func (s intervals) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// collectIntervals finds seeding intervals in three rounds:
// SMEMs no shorter than MinSeedLen; shorter MEMs inside long SMEMs with
// few occurrences; and the first forward matches with fewer than
// MaxMemIntv occurrences.
// Intervals are sorted by query positions.
func (ce *Chainer) collectIntervals(q []byte) []fmindex.Interval {
	opt := ce.opt
	idx := ce.ref.Index
	mems := ce.mems[:0]
	splitLen := int(float64(opt.MinSeedLen)*opt.SplitFactor + .499)

	var x int
	var mem1 []fmindex.Interval

	// SMEMs
	for x < len(q) {
		if q[x] > 3 {
			x++
			continue
		}
		mem1, x = idx.SMEM1(q, x, 1, 0, ce.mem1, &ce.scratch)
		ce.mem1 = mem1
		for _, m := range mem1 {
			if m.Len() >= opt.MinSeedLen {
				mems = append(mems, m)
			}
		}
	}

	// re-seeding
	n := len(mems)
	var m fmindex.Interval
	for k := 0; k < n; k++ {
		m = mems[k]
		if m.Len() < splitLen || m.X[2] > int64(opt.SplitWidth) {
			continue
		}
		mem1, _ = idx.SMEM1(q, (m.QBeg+m.QEnd)>>1, m.X[2]+1, 0, ce.mem1, &ce.scratch)
		ce.mem1 = mem1
		for _, m1 := range mem1 {
			if m1.Len() >= opt.MinSeedLen {
				mems = append(mems, m1)
			}
		}
	}

	// LAST-like
	if opt.MaxMemIntv > 0 {
		x = 0
		for x < len(q) {
			if q[x] > 3 {
				x++
				continue
			}
			m, x = idx.SeedStrategy1(q, x, opt.MinSeedLen, opt.MaxMemIntv)
			if m.X[2] > 0 {
				mems = append(mems, m)
			}
		}
	}

	sort.Sort(intervals(mems))
	ce.mems = mems
	return mems
}

// repetitiveLength returns the query length covered by intervals with more
// than maxOcc occurrences. Intervals are sorted by query start.
func repetitiveLength(mems []fmindex.Interval, maxOcc int64) int {
	var b, e, lRep int
	for _, m := range mems {
		if m.X[2] <= maxOcc {
			continue
		}
		if m.QBeg > e {
			lRep += e - b
			b, e = m.QBeg, m.QEnd
		} else if m.QEnd > e {
			e = m.QEnd
		}
	}
	return lRep + e - b
}
