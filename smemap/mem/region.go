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
	"encoding/binary"
	"math"
	"sort"
	"strconv"

	"github.com/rdleal/intervalst/interval"
	"github.com/zeebo/wyhash"
)

// sortDedup sorts regions by reference end, drops redundant ones which
// are nearly identical to a better region nearby, and then sorts the rest
// by score and removes exact duplicates.
func sortDedup(opt *Options, regs []Region) []Region {
	if len(regs) <= 1 {
		for i := range regs {
			regs[i].NComp = 1
		}
		return regs
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].RE < regs[j].RE })
	for i := range regs {
		regs[i].NComp = 1
	}

	gap := int64(opt.MaxChainGap)
	var p, q *Region
	var or, oq, mr, mq int64
	for i := 1; i < len(regs); i++ {
		p = &regs[i]
		if p.Rid != regs[i-1].Rid || p.RB >= regs[i-1].RE+gap {
			continue
		}
		for j := i - 1; j >= 0 && p.Rid == regs[j].Rid && p.RB < regs[j].RE+gap; j-- {
			q = &regs[j]
			if q.QE == q.QB { // excluded
				continue
			}
			or = q.RE - p.RB
			if q.QB < p.QB {
				oq = int64(q.QE - p.QB)
			} else {
				oq = int64(p.QE - q.QB)
			}
			mr = min(q.RE-q.RB, p.RE-p.RB)
			mq = int64(min(q.QE-q.QB, p.QE-p.QB))
			if float64(or) > opt.MaskLevelRedun*float64(mr) && float64(oq) > opt.MaskLevelRedun*float64(mq) {
				if p.Score < q.Score {
					p.QE = p.QB
					break
				}
				q.QE = q.QB
			}
		}
	}
	regs = excludeEmpty(regs, 0)

	sort.Slice(regs, func(i, j int) bool {
		a, b := &regs[i], &regs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RB != b.RB {
			return a.RB < b.RB
		}
		return a.QB < b.QB
	})
	for i := 1; i < len(regs); i++ {
		if regs[i].Score == regs[i-1].Score && regs[i].RB == regs[i-1].RB && regs[i].QB == regs[i-1].QB {
			regs[i].QE = regs[i].QB
		}
	}
	return excludeEmpty(regs, 1)
}

// excludeEmpty removes regions with QE == QB, keeping the first k ones.
func excludeEmpty(regs []Region, k int) []Region {
	m := k
	for i := k; i < len(regs); i++ {
		if regs[i].QE > regs[i].QB {
			if m != i {
				regs[m] = regs[i]
			}
			m++
		}
	}
	return regs[:m]
}

// regionHash returns the tie-breaking hash of the i-th region of a read.
func regionHash(id int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return wyhash.Hash(buf[:], 0)
}

// markPrimaryCore marks regions overlapping with a better region on the
// query as secondary. Regions must be sorted by score. It returns indexes
// of the primary regions.
func markPrimaryCore(opt *Options, regs []Region, z []int) []int {
	tmp := max(opt.A+opt.B, opt.ODel+opt.EDel, opt.OIns+opt.EIns)

	// query spans of primary regions, [QB, QE-1]. Single-base spans are
	// points, and two primary regions may share a span when mask_level > 1.
	tree := interval.NewMultiValueSearchTreeWithOptions[int, int](
		func(x, y int) int { return x - y }, interval.TreeWithIntervalPoint())

	z = z[:0]
	var j, bMax, eMin, minL, hit int
	var a, b *Region
	var hits []int
	for i := range regs {
		a = &regs[i]
		if a.QE <= a.QB { // empty span overlaps nothing
			z = append(z, i)
			continue
		}
		hit = -1
		hits, _ = tree.AllIntersections(a.QB, a.QE-1)
		sort.Ints(hits) // better regions first
		for _, j = range hits {
			b = &regs[j]
			bMax = max(b.QB, a.QB)
			eMin = min(b.QE, a.QE)
			minL = min(a.QE-a.QB, b.QE-b.QB)
			if float64(eMin-bMax) >= float64(minL)*opt.MaskLevel {
				if b.Sub == 0 {
					b.Sub = a.Score
				}
				if b.Score-a.Score <= tmp && (b.IsAlt || !a.IsAlt) {
					b.SubN++
				}
				hit = j
				break
			}
		}
		if hit >= 0 {
			a.Secondary = hit
			continue
		}
		z = append(z, i)
		if err := tree.Insert(a.QB, a.QE-1, i); err != nil {
			panic(err) // unreachable: QB <= QE-1 and points are allowed
		}
	}
	return z
}

// markPrimarySE sorts the regions of a single-end read and marks primary,
// secondary and supplementary ones. ALT regions are ranked together with
// primary-assembly ones in the first round, which fills SecondaryAll and
// AltSc, and the primary-assembly regions are ranked again among
// themselves. It returns the number of non-ALT regions, which are placed
// first.
func markPrimarySE(opt *Options, regs []Region, id int64) int {
	n := len(regs)
	if n == 0 {
		return 0
	}
	var nPri int
	for i := range regs {
		r := &regs[i]
		r.Sub, r.AltSc = 0, 0
		r.Secondary, r.SecondaryAll = -1, -1
		r.Hash = regionHash(id + int64(i))
		if !r.IsAlt {
			nPri++
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		a, b := &regs[i], &regs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Hash < b.Hash
	})
	z := markPrimaryCore(opt, regs, make([]int, 0, 8))
	for i := range regs {
		p := &regs[i]
		p.SecondaryAll = i // the rank in the first round
		if !p.IsAlt && p.Secondary >= 0 && regs[p.Secondary].IsAlt {
			p.AltSc = regs[p.Secondary].Score
		}
	}

	if nPri < n {
		if nPri > 0 {
			sort.Slice(regs, func(i, j int) bool {
				a, b := &regs[i], &regs[j]
				if a.IsAlt != b.IsAlt {
					return !a.IsAlt
				}
				if a.Score != b.Score {
					return a.Score > b.Score
				}
				return a.Hash < b.Hash
			})
		}
		if cap(z) < n {
			z = make([]int, n)
		}
		z = z[:n]
		for i := range regs {
			z[regs[i].SecondaryAll] = i
		}
		for i := range regs {
			r := &regs[i]
			if r.Secondary >= 0 {
				r.SecondaryAll = z[r.Secondary]
				if r.IsAlt {
					r.Secondary = math.MaxInt
				}
			} else {
				r.SecondaryAll = -1
			}
		}
		if nPri > 0 {
			for i := 0; i < nPri; i++ {
				regs[i].Sub, regs[i].Secondary = 0, -1
			}
			markPrimaryCore(opt, regs[:nPri], z)
		}
	} else {
		for i := range regs {
			regs[i].SecondaryAll = regs[i].Secondary
		}
	}
	return nPri
}

// priIdx returns the index of the primary region of regs[i] if it is good
// enough to be reported as an alternative hit, or -1.
func priIdx(opt *Options, regs []Region, i int) int {
	k := regs[i].SecondaryAll
	if k >= 0 && float64(regs[i].Score) >= float64(regs[k].Score)*opt.XADropRatio {
		return k
	}
	return -1
}

// GenAlt generates the XA strings of alternative hits, indexed by the
// primary region they belong to. It returns nil if there is none.
// q are the query codes.
func GenAlt(opt *Options, ref *Reference, q []byte, regs []Region) []string {
	cnt := make([]int, len(regs))
	hasAlt := make([]bool, len(regs))
	var tot, r int
	for i := range regs {
		if r = priIdx(opt, regs, i); r >= 0 {
			cnt[r]++
			tot++
			if regs[i].IsAlt {
				hasAlt[r] = true
			}
		}
	}
	if tot == 0 {
		return nil
	}

	buf := make([][]byte, len(regs))
	var b []byte
	for i := range regs {
		if r = priIdx(opt, regs, i); r < 0 {
			continue
		}
		if cnt[r] > opt.MaxXAHitsAlt || (!hasAlt[r] && cnt[r] > opt.MaxXAHits) {
			continue
		}
		t := Reg2Aln(opt, ref, q, &regs[i])
		b = buf[r]
		b = append(b, ref.Meta.Contigs[t.Rid].Name...)
		b = append(b, ',')
		if t.IsRev {
			b = append(b, '-')
		} else {
			b = append(b, '+')
		}
		b = strconv.AppendInt(b, t.Pos+1, 10)
		b = append(b, ',')
		b = append(b, t.Cigar.String()...)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(t.NM), 10)
		b = append(b, ';')
		buf[r] = b
	}
	xa := make([]string, len(regs))
	for i, b := range buf {
		xa[i] = string(b)
	}
	return xa
}
