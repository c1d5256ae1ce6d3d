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
	"testing"
)

func TestSortDedup(t *testing.T) {
	opt := DefaultOptions()
	regs := []Region{
		{Rid: 0, RB: 100, RE: 200, QB: 0, QE: 100, Score: 100},
		{Rid: 0, RB: 101, RE: 200, QB: 1, QE: 100, Score: 99}, // redundant
		{Rid: 1, RB: 5000, RE: 5100, QB: 0, QE: 100, Score: 90},
		{Rid: 1, RB: 5000, RE: 5100, QB: 0, QE: 100, Score: 90}, // duplicated
		{Rid: 0, RB: 1000, RE: 1050, QB: 50, QE: 100, Score: 50},
	}
	regs = sortDedup(opt, regs)
	if len(regs) != 3 {
		t.Fatalf("unexpected number of regions: %d", len(regs))
	}
	for i, s := range []int{100, 90, 50} {
		if regs[i].Score != s {
			t.Errorf("region %d: score %d, expected %d", i, regs[i].Score, s)
		}
		if regs[i].NComp != 1 {
			t.Errorf("region %d: NComp %d", i, regs[i].NComp)
		}
	}
	if regs[0].RB != 100 {
		t.Errorf("the better of two redundant regions should be kept: %s", &regs[0])
	}
}

func TestMarkPrimarySE(t *testing.T) {
	opt := DefaultOptions()
	regs := []Region{
		{QB: 100, QE: 150, RB: 5000, RE: 5050, Score: 50},
		{QB: 0, QE: 100, RB: 2000, RE: 2100, Score: 90},
		{QB: 0, QE: 100, RB: 100, RE: 200, Score: 100},
	}
	nPri := markPrimarySE(opt, regs, 0)
	if nPri != 3 {
		t.Errorf("unexpected number of primary-assembly regions: %d", nPri)
	}
	if regs[0].Score != 100 || regs[1].Score != 90 || regs[2].Score != 50 {
		t.Fatalf("regions are not sorted by score")
	}
	if regs[0].Secondary != -1 || regs[0].Sub != 90 || regs[0].SubN != 0 {
		t.Errorf("unexpected best region: %s, subN: %d", &regs[0], regs[0].SubN)
	}
	if regs[1].Secondary != 0 || regs[1].SecondaryAll != 0 {
		t.Errorf("the overlapping region should be secondary: %s", &regs[1])
	}
	if regs[2].Secondary != -1 || regs[2].Sub != 0 {
		t.Errorf("the non-overlapping region should be primary: %s", &regs[2])
	}

	// close scores count as suboptimal hits
	regs = []Region{
		{QB: 0, QE: 100, RB: 100, RE: 200, Score: 100},
		{QB: 0, QE: 100, RB: 2000, RE: 2100, Score: 95},
	}
	markPrimarySE(opt, regs, 10)
	if regs[0].SubN != 1 {
		t.Errorf("unexpected SubN: %d", regs[0].SubN)
	}
}

func TestMarkPrimaryCore(t *testing.T) {
	opt := DefaultOptions()

	// a single-base span still shadows longer regions
	regs := []Region{
		{QB: 50, QE: 51, Score: 100, Secondary: -1},
		{QB: 0, QE: 100, Score: 90, Secondary: -1},
		{QB: 200, QE: 300, Score: 80, Secondary: -1},
	}
	z := markPrimaryCore(opt, regs, nil)
	if len(z) != 2 || z[0] != 0 || z[1] != 2 {
		t.Errorf("unexpected primary regions: %v", z)
	}
	if regs[1].Secondary != 0 || regs[0].Sub != 90 {
		t.Errorf("region %s should be shadowed by %s", &regs[1], &regs[0])
	}

	// the first primary with enough overlap wins, not the first overlapping one
	regs = []Region{
		{QB: 0, QE: 100, Score: 100, Secondary: -1},
		{QB: 90, QE: 200, Score: 95, Secondary: -1},
		{QB: 95, QE: 200, Score: 80, Secondary: -1},
	}
	z = markPrimaryCore(opt, regs, z)
	if len(z) != 2 || z[0] != 0 || z[1] != 1 {
		t.Errorf("unexpected primary regions: %v", z)
	}
	if regs[2].Secondary != 1 || regs[1].Sub != 80 || regs[0].Sub != 0 {
		t.Errorf("unexpected secondary: %d, subs: %d, %d",
			regs[2].Secondary, regs[1].Sub, regs[0].Sub)
	}

	// identical spans are kept apart when mask_level exceeds 1
	opt.MaskLevel = 1.5
	regs = []Region{
		{QB: 0, QE: 100, Score: 100, Secondary: -1},
		{QB: 0, QE: 100, Score: 90, Secondary: -1},
		{QB: 0, QE: 100, Score: 80, Secondary: -1},
	}
	z = markPrimaryCore(opt, regs, z)
	if len(z) != 3 {
		t.Errorf("unexpected primary regions: %v", z)
	}
}

func TestMarkPrimarySEAlt(t *testing.T) {
	opt := DefaultOptions()
	regs := []Region{
		{QB: 0, QE: 100, RB: 100, RE: 200, Score: 100, Rid: 0},
		{QB: 0, QE: 100, RB: 2100, RE: 2200, Score: 110, Rid: 1, IsAlt: true},
	}
	nPri := markPrimarySE(opt, regs, 0)
	if nPri != 1 {
		t.Fatalf("unexpected number of primary-assembly regions: %d", nPri)
	}
	a, b := &regs[0], &regs[1]
	if a.IsAlt || !b.IsAlt {
		t.Fatalf("primary-assembly regions should come first")
	}
	// not a secondary among primary-assembly regions
	if a.Secondary != -1 || a.Sub != 0 {
		t.Errorf("unexpected region: %s", a)
	}
	// but shadowed by the ALT hit in the first round
	if a.SecondaryAll != 1 || a.AltSc != 110 {
		t.Errorf("unexpected SecondaryAll %d or AltSc %d", a.SecondaryAll, a.AltSc)
	}
	if b.Secondary != -1 || b.SecondaryAll != -1 {
		t.Errorf("unexpected ALT region: %s", b)
	}
	if q := ApproxMapQSE(opt, a); q == 0 {
		t.Errorf("ALT hits should not lower the mapping quality")
	}
}

func TestApproxMapQSE(t *testing.T) {
	opt := DefaultOptions()
	r := Region{QB: 0, QE: 100, RB: 0, RE: 100, Score: 100, SeedCov: 100}

	r.Sub = 100
	if q := ApproxMapQSE(opt, &r); q != 0 {
		t.Errorf("tied hits: mapq %d", q)
	}

	r.Sub = 0
	if q := ApproxMapQSE(opt, &r); q != MapQMax {
		t.Errorf("unique hit: mapq %d", q)
	}

	r.Sub = 80
	q80 := ApproxMapQSE(opt, &r)
	r.Sub = 90
	q90 := ApproxMapQSE(opt, &r)
	if q80 <= q90 || q90 <= 0 {
		t.Errorf("mapq should decrease with a better suboptimal hit: %d, %d", q80, q90)
	}

	r.SubN = 3
	if q := ApproxMapQSE(opt, &r); q >= q90 {
		t.Errorf("mapq should decrease with more suboptimal hits: %d, %d", q, q90)
	}

	r.SubN, r.Sub, r.CSub = 0, 0, 100
	if q := ApproxMapQSE(opt, &r); q != 0 {
		t.Errorf("a tandem hit should be counted: mapq %d", q)
	}

	r.CSub, r.FracRep = 0, 1
	if q := ApproxMapQSE(opt, &r); q != 0 {
		t.Errorf("repetitive read: mapq %d", q)
	}
}
