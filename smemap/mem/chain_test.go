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
	"math/rand"
	"testing"
)

func TestChainer(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	chr1 := randBases(rng, 3000)
	chr2 := append(randBases(rng, 500), chr1[:1000]...)
	ref := testReference(t, nil, chr1, chr2)
	opt := DefaultOptions()
	ce := NewChainer(opt, ref)

	// exact match
	chains := ce.Filter(ce.Chain(toCodes(chr1[2000:2100], nil)))
	if len(chains) != 1 {
		t.Fatalf("unexpected number of chains: %d", len(chains))
	}
	c := chains[0]
	if c.Pos != 2000 || c.Rid != 0 || c.W != 100 || c.Kept != 3 {
		t.Errorf("unexpected chain: %s", c)
	}
	RecycleChains(chains)

	// reverse complement
	chains = ce.Filter(ce.Chain(toCodes(revCompBases(chr1[2000:2100]), nil)))
	if len(chains) != 1 || chains[0].Pos != ref.LPac()<<1-2100 {
		t.Errorf("unexpected chains on the reverse strand: %v", chains)
	}
	RecycleChains(chains)

	// a mismatch splits seeds
	chains = ce.Filter(ce.Chain(toCodes(mutate(chr1[1200:1300], 50), nil)))
	if len(chains) != 1 {
		t.Fatalf("unexpected number of chains: %d", len(chains))
	}
	c = chains[0]
	var sum int
	for _, s := range c.Seeds {
		sum += s.Len
		if s.QBeg <= 50 && s.QBeg+s.Len > 50 {
			t.Errorf("seed covers the mismatch: %s", s)
		}
	}
	if c.W != 99 || c.W > sum {
		t.Errorf("unexpected chain weight: %d, sum of seeds: %d", c.W, sum)
	}
	RecycleChains(chains)

	// repeats, sorted by position
	chains = ce.Chain(toCodes(chr1[300:400], nil))
	if len(chains) != 2 {
		t.Fatalf("unexpected number of chains: %d", len(chains))
	}
	for i := 1; i < len(chains); i++ {
		if chains[i-1].Pos > chains[i].Pos {
			t.Errorf("chains not sorted by position")
		}
	}
	if chains[0].Rid != 0 || chains[1].Rid != 1 {
		t.Errorf("unexpected contigs: %d, %d", chains[0].Rid, chains[1].Rid)
	}
	chains = ce.Filter(chains)
	if len(chains) != 2 || chains[1].Kept != 1 {
		t.Errorf("equally good chains should be both extended: %v", chains)
	}
	RecycleChains(chains)

	// short query
	if chains = ce.Chain(toCodes(chr1[:10], nil)); len(chains) != 0 {
		t.Errorf("short queries should have no chains")
	}
}

func TestChainFilter(t *testing.T) {
	opt := DefaultOptions()
	ce := NewChainer(opt, nil)
	mk := func(qb, l int, rb int64) *Chain {
		c := newChain()
		c.Seeds = append(c.Seeds, Seed{QBeg: qb, Len: l, RBeg: rb, Score: l})
		c.Pos = rb
		return c
	}
	chains := []*Chain{
		mk(20, 25, 8000),
		mk(0, 100, 100),
		mk(10, 30, 5000),
		mk(100, 40, 9000), // not overlapping
	}
	chains = ce.Filter(chains)
	if len(chains) != 3 {
		t.Fatalf("unexpected number of chains: %d", len(chains))
	}
	if chains[0].W != 100 || chains[0].Kept != 3 {
		t.Errorf("unexpected best chain: %s", chains[0])
	}
	if chains[1].W != 40 || chains[1].Kept != 3 {
		t.Errorf("unexpected chain: %s", chains[1])
	}
	// the first shadowed one is kept for MAPQ
	if chains[2].W != 30 || chains[2].Kept != 1 {
		t.Errorf("unexpected chain: %s", chains[2])
	}
	RecycleChains(chains)
}
