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
	"bytes"
	"errors"
	"fmt"

	"github.com/twotwotwo/sorts"
)

// ErrEmptyText means there is nothing to index.
var ErrEmptyText = errors.New("fmindex: empty text")

// ErrInvalidCode means the text contains symbols other than 0-3.
var ErrInvalidCode = errors.New("fmindex: invalid code in text")

// DefaultSAInterval is the default sampling interval of the suffix array.
var DefaultSAInterval = 32

const occShift = 6 // one checkpoint every 64 rows

// Index is an FM-index of T$, where T is the forward reference followed by
// its reverse complement. Since T equals its own reverse complement, the
// index supports bidirectional extension with a single BWT.
type Index struct {
	SeqLen  int64    // length of T
	Primary int64    // the row whose BWT symbol is the sentinel, i.e., SA[Primary] = 0
	C       [5]int64 // C[c]: the first row of suffixes starting with c, C[4] = SeqLen+1
	SAIntv  int64

	bwt []byte  // one symbol per row, 4 at Primary
	occ []int64 // occ[k<<2|c]: number of c in bwt[0, k<<occShift)
	sa  []int64 // SA values of rows k*SAIntv
}

// Interval is a bi-interval of a query substring [QBeg, QEnd).
// X[0] is the first row of the substring, X[1] is the first row of its
// reverse complement, and X[2] is the number of occurrences.
type Interval struct {
	X    [3]int64
	QBeg int
	QEnd int
}

// Len returns the length of the matched query substring.
func (ik Interval) Len() int { return ik.QEnd - ik.QBeg }

func (ik Interval) String() string {
	return fmt.Sprintf("[%d, %d) x %d (%d, %d)", ik.QBeg, ik.QEnd, ik.X[2], ik.X[0], ik.X[1])
}

// Build creates an index from 2-bit codes with a naive suffix sorting.
// It is only meant for small references.
func Build(codes []byte, saIntv int) (*Index, error) {
	n := int64(len(codes))
	if n == 0 {
		return nil, ErrEmptyText
	}
	for _, c := range codes {
		if c > 3 {
			return nil, ErrInvalidCode
		}
	}
	if saIntv < 1 {
		saIntv = DefaultSAInterval
	}

	sa := make([]int64, n+1)
	for i := range sa {
		sa[i] = int64(i)
	}
	sorts.Quicksort(suffixes{text: codes, sa: sa})

	idx := &Index{SeqLen: n, SAIntv: int64(saIntv)}
	idx.bwt = make([]byte, n+1)
	var cnt [5]int64
	for i, p := range sa {
		if p == 0 {
			idx.Primary = int64(i)
			idx.bwt[i] = 4
			continue
		}
		idx.bwt[i] = codes[p-1]
		cnt[codes[p-1]]++
	}
	idx.C[0] = 1
	for c := 1; c <= 4; c++ {
		idx.C[c] = idx.C[c-1] + cnt[c-1]
	}

	idx.sa = make([]int64, 0, n/int64(saIntv)+1)
	for i := int64(0); i <= n; i += int64(saIntv) {
		idx.sa = append(idx.sa, sa[i])
	}

	idx.buildOcc()
	return idx, nil
}

type suffixes struct {
	text []byte
	sa   []int64
}

func (s suffixes) Len() int { return len(s.sa) }
func (s suffixes) Less(i, j int) bool {
	return bytes.Compare(s.text[s.sa[i]:], s.text[s.sa[j]:]) < 0
}
func (s suffixes) Swap(i, j int) { s.sa[i], s.sa[j] = s.sa[j], s.sa[i] }

func (idx *Index) buildOcc() {
	n := int64(len(idx.bwt))
	idx.occ = make([]int64, ((n>>occShift)+1)<<2)
	var cnt [4]int64
	var b byte
	for k := int64(0); k < n; k++ {
		if k&(1<<occShift-1) == 0 {
			copy(idx.occ[(k>>occShift)<<2:], cnt[:])
		}
		if b = idx.bwt[k]; b < 4 {
			cnt[b]++
		}
	}
	if n&(1<<occShift-1) == 0 {
		copy(idx.occ[(n>>occShift)<<2:], cnt[:])
	}
}

// Occ returns the number of c in bwt[0, k).
func (idx *Index) Occ(c byte, k int64) int64 {
	if k <= 0 {
		return 0
	}
	n := idx.occ[(k>>occShift)<<2|int64(c)]
	for _, b := range idx.bwt[(k>>occShift)<<occShift : k] {
		if b == c {
			n++
		}
	}
	return n
}

// Occ4 returns the number of each base in bwt[0, k).
func (idx *Index) Occ4(k int64) (cnt [4]int64) {
	if k <= 0 {
		return
	}
	j := (k >> occShift) << 2
	copy(cnt[:], idx.occ[j:j+4])
	for _, b := range idx.bwt[(k>>occShift)<<occShift : k] {
		if b < 4 {
			cnt[b]++
		}
	}
	return
}

// SetInterval returns the bi-interval of a single base.
func (idx *Index) SetInterval(c byte) Interval {
	return Interval{X: [3]int64{idx.C[c], idx.C[3-c], idx.C[c+1] - idx.C[c]}}
}

// Extend computes the bi-intervals of the four one-base extensions of ik.
// With back, ok[c] is the interval of c+P; otherwise ok[c] is the interval of
// P+complement(c), i.e., callers extending forward with base b use ok[3-b].
func (idx *Index) Extend(ik *Interval, ok *[4]Interval, back bool) {
	j, o := 1, 0
	if back {
		j, o = 0, 1
	}
	tk := idx.Occ4(ik.X[j])
	tl := idx.Occ4(ik.X[j] + ik.X[2])
	for c := 0; c < 4; c++ {
		ok[c].X[j] = idx.C[c] + tk[c]
		ok[c].X[2] = tl[c] - tk[c]
	}
	// the sentinel comes first among the children of the other strand
	var d int64
	if ik.X[j] <= idx.Primary && idx.Primary < ik.X[j]+ik.X[2] {
		d = 1
	}
	ok[3].X[o] = ik.X[o] + d
	ok[2].X[o] = ok[3].X[o] + ok[3].X[2]
	ok[1].X[o] = ok[2].X[o] + ok[2].X[2]
	ok[0].X[o] = ok[1].X[o] + ok[1].X[2]
}

// SA returns the position in T of the suffix at row k.
func (idx *Index) SA(k int64) int64 {
	var steps int64
	var c byte
	for k%idx.SAIntv != 0 {
		if k == idx.Primary {
			return steps
		}
		c = idx.bwt[k]
		k = idx.C[c] + idx.Occ(c, k)
		steps++
	}
	return idx.sa[k/idx.SAIntv] + steps
}

// Count returns the number of occurrences of a pattern of codes, with a
// plain backward search.
func (idx *Index) Count(p []byte) int64 {
	if len(p) == 0 {
		return idx.SeqLen + 1
	}
	var c byte
	lo, hi := int64(0), idx.SeqLen+1
	for i := len(p) - 1; i >= 0 && lo < hi; i-- {
		c = p[i]
		if c > 3 {
			return 0
		}
		lo = idx.C[c] + idx.Occ(c, lo)
		hi = idx.C[c] + idx.Occ(c, hi)
	}
	return hi - lo
}
