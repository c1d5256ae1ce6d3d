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

package fmindex

import (
	"math"
	"sync"
)

// Scratch holds temporary interval lists for SMEM searching.
type Scratch struct {
	a, b []Interval
}

func reverseIntervals(s []Interval) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// SMEM1 finds the super-maximal exact matches covering query position x.
// q contains codes 0-4 and 4 is never matched. Intervals with fewer than
// minIntv occurrences are not extended further. If maxIntv > 0, extension
// also stops once the occurrence drops below it.
//
// Results are sorted by query start and written to mem[:0].
// The returned position is where the next search should start.
func (idx *Index) SMEM1(q []byte, x int, minIntv, maxIntv int64, mem []Interval, s *Scratch) ([]Interval, int) {
	mem = mem[:0]
	if q[x] > 3 {
		return mem, x + 1
	}
	if minIntv < 1 {
		minIntv = 1
	}
	prev, curr := s.a[:0], s.b[:0]
	var ok [4]Interval
	var c byte

	ik := idx.SetInterval(q[x])
	ik.QEnd = x + 1

	// forward search
	i := x + 1
	for ; i < len(q); i++ {
		if ik.X[2] < maxIntv {
			curr = append(curr, ik)
			break
		}
		if q[i] > 3 { // always stop at an ambiguous base
			curr = append(curr, ik)
			break
		}
		c = 3 - q[i]
		idx.Extend(&ik, &ok, false)
		if ok[c].X[2] != ik.X[2] {
			curr = append(curr, ik)
			if ok[c].X[2] < minIntv {
				break
			}
		}
		ik = ok[c]
		ik.QEnd = i + 1
	}
	if i == len(q) {
		curr = append(curr, ik)
	}
	reverseIntervals(curr) // longer matches first
	ret := curr[0].QEnd
	prev, curr = curr, prev

	// backward search
	var p *Interval
	var b int
	for i = x - 1; i >= -1; i-- {
		b = -1
		if i >= 0 && q[i] < 4 {
			b = int(q[i])
		}
		curr = curr[:0]
		for j := range prev {
			p = &prev[j]
			if b >= 0 && p.X[2] >= maxIntv {
				idx.Extend(p, &ok, true)
			}
			if b < 0 || p.X[2] < maxIntv || ok[b].X[2] < minIntv {
				// a longer match in curr contains this one
				if len(curr) == 0 && (len(mem) == 0 || i+1 < mem[len(mem)-1].QBeg) {
					ik = *p
					ik.QBeg = i + 1
					mem = append(mem, ik)
				}
			} else if len(curr) == 0 || ok[b].X[2] != curr[len(curr)-1].X[2] {
				ok[b].QEnd = p.QEnd
				curr = append(curr, ok[b])
			}
		}
		if len(curr) == 0 {
			break
		}
		prev, curr = curr, prev
	}
	reverseIntervals(mem)

	s.a, s.b = prev, curr
	return mem, ret
}

// SeedStrategy1 returns the first forward match from x that is at least
// minLen long and occurs fewer than maxIntv times. The returned interval has
// zero occurrences if there is none.
func (idx *Index) SeedStrategy1(q []byte, x int, minLen int, maxIntv int64) (Interval, int) {
	var mem Interval
	if q[x] > 3 {
		return mem, x + 1
	}
	var ok [4]Interval
	var c byte
	ik := idx.SetInterval(q[x])
	for i := x + 1; i < len(q); i++ {
		if q[i] > 3 {
			return mem, i + 1
		}
		c = 3 - q[i]
		idx.Extend(&ik, &ok, false)
		if ok[c].X[2] < maxIntv && i-x >= minLen {
			mem = ok[c]
			mem.QBeg, mem.QEnd = x, i+1
			return mem, i + 1
		}
		ik = ok[c]
	}
	return mem, len(q)
}

// SMEMIterator walks a query and returns SMEMs batch by batch.
type SMEMIterator struct {
	idx   *Index
	query []byte
	start int

	minIntv int64
	maxLen  int
	maxIntv int64

	matches []Interval
	scratch Scratch
}

var poolSMEMIterator = &sync.Pool{New: func() interface{} {
	return &SMEMIterator{
		matches: make([]Interval, 0, 64),
		scratch: Scratch{
			a: make([]Interval, 0, 64),
			b: make([]Interval, 0, 64),
		},
	}
}}

// NewSMEMIterator returns an iterator bound to an index.
func NewSMEMIterator(idx *Index) *SMEMIterator {
	itr := poolSMEMIterator.Get().(*SMEMIterator)
	itr.idx = idx
	itr.query = nil
	itr.start = 0
	itr.Config(1, math.MaxInt, 0)
	return itr
}

// Destroy recycles the iterator.
func (itr *SMEMIterator) Destroy() {
	itr.idx = nil
	itr.query = nil
	poolSMEMIterator.Put(itr)
}

// SetQuery sets a query of codes and rewinds the cursor.
func (itr *SMEMIterator) SetQuery(q []byte) {
	itr.query = q
	itr.start = 0
}

// Config sets the minimum occurrence to keep extending, the maximum
// length of reported matches, and the occurrence under which extension stops
// (0 for no limit).
func (itr *SMEMIterator) Config(minIntv int64, maxLen int, maxIntv int64) {
	itr.minIntv = minIntv
	itr.maxLen = maxLen
	itr.maxIntv = maxIntv
}

// Next returns the SMEMs of the next position, or nil when the cursor
// reaches the end of the query. The returned slice is reused by later calls.
func (itr *SMEMIterator) Next() []Interval {
	q := itr.query
	for itr.start < len(q) && q[itr.start] > 3 {
		itr.start++
	}
	if itr.start >= len(q) {
		return nil
	}
	itr.matches, itr.start = itr.idx.SMEM1(q, itr.start, itr.minIntv, itr.maxIntv, itr.matches, &itr.scratch)

	if itr.maxLen < len(q) {
		ms := itr.matches[:0]
		for _, m := range itr.matches {
			if m.Len() <= itr.maxLen {
				ms = append(ms, m)
			}
		}
		itr.matches = ms
	}
	return itr.matches
}
