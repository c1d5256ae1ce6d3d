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

	"github.com/twotwotwo/sorts/sortutil"
	"gonum.org/v1/gonum/stat"
)

const (
	peMinRatio     = 0.8  // a pair is unique if sub <= peMinRatio * score for both ends
	peMinDirCnt    = 10   // minimum number of pairs of an orientation
	peMinDirRatio  = 0.05 // minimum fraction of pairs of an orientation
	peOutlierBound = 2.0  // IQR multiplier of outliers in computing mean and std
	peMappingBound = 3.0  // IQR multiplier of bounds of proper pairs
	peMaxStdDev    = 4.0  // std multiplier of bounds of proper pairs
)

// Orientations is the names of the four orientation classes.
var Orientations = [4]string{"FF", "FR", "RF", "RR"}

// PeStat is the insert size distribution of one orientation class.
type PeStat struct {
	Low, High int // bounds of proper pairs
	Failed    bool
	Avg, Std  float64
}

func (s PeStat) String() string {
	if s.Failed {
		return "failed"
	}
	return fmt.Sprintf("low:%d high:%d avg:%.2f std:%.2f", s.Low, s.High, s.Avg, s.Std)
}

// inferDir returns the orientation class of two positions in the doubled
// coordinate system and their distance.
func inferDir(lPac, b1, b2 int64) (int, int64) {
	r1, r2 := b1 >= lPac, b2 >= lPac
	p2 := b2
	if r1 != r2 { // position of read 2 on the strand of read 1
		p2 = (lPac << 1) - 1 - b2
	}
	var dist int64
	if p2 > b1 {
		dist = p2 - b1
	} else {
		dist = b1 - p2
	}
	var d int
	if r1 != r2 {
		d = 1
	}
	if p2 <= b1 {
		d ^= 3
	}
	return d, dist
}

// calSub returns the score of the best region overlapping with the top
// one on the query.
func calSub(opt *Options, regs []Region) int {
	a0 := &regs[0]
	for j := 1; j < len(regs); j++ {
		a := &regs[j]
		bMax := max(a.QB, a0.QB)
		eMin := min(a.QE, a0.QE)
		if eMin > bMax {
			minL := min(a.QE-a.QB, a0.QE-a0.QB)
			if float64(eMin-bMax) >= float64(minL)*opt.MaskLevel {
				return a.Score
			}
		}
	}
	return opt.MinSeedLen * opt.A
}

// CollectInsertSizes collects distances of uniquely aligned pairs, per
// orientation. regs holds regions of reads 2i and 2i+1, sorted by score.
func CollectInsertSizes(opt *Options, lPac int64, regs [][]Region) [4][]int64 {
	var sizes [4][]int64
	var r0, r1 []Region
	for i := 0; i+1 < len(regs); i += 2 {
		r0, r1 = regs[i], regs[i+1]
		if len(r0) == 0 || len(r1) == 0 {
			continue
		}
		if float64(calSub(opt, r0)) > peMinRatio*float64(r0[0].Score) ||
			float64(calSub(opt, r1)) > peMinRatio*float64(r1[0].Score) {
			continue
		}
		if r0[0].Rid != r1[0].Rid {
			continue
		}
		d, dist := inferDir(lPac, r0[0].RB, r1[0].RB)
		if dist > 0 && dist <= int64(opt.MaxIns) {
			sizes[d] = append(sizes[d], dist)
		}
	}
	return sizes
}

// EstimatePeStat computes the statistics of each orientation class from
// insert sizes, which are sorted in place.
func EstimatePeStat(sizes [4][]int64) [4]PeStat {
	var pes [4]PeStat
	log.Infof("candidate unique pairs for (FF, FR, RF, RR): (%d, %d, %d, %d)",
		len(sizes[0]), len(sizes[1]), len(sizes[2]), len(sizes[3]))

	var nMax int
	for d := 0; d < 4; d++ {
		nMax = max(nMax, len(sizes[d]))
		r := &pes[d]
		q := sizes[d]
		if len(q) < peMinDirCnt {
			log.Infof("skip orientation %s as there are not enough pairs", Orientations[d])
			r.Failed = true
			continue
		}
		log.Infof("analyzing insert size distribution for orientation %s", Orientations[d])
		sortutil.Int64s(q)
		x := make([]float64, len(q))
		for i, v := range q {
			x[i] = float64(v)
		}
		p25 := stat.Quantile(.25, stat.Empirical, x, nil)
		p50 := stat.Quantile(.50, stat.Empirical, x, nil)
		p75 := stat.Quantile(.75, stat.Empirical, x, nil)
		iqr := p75 - p25
		low := math.Max(p25-peOutlierBound*iqr, 1)
		high := p75 + peOutlierBound*iqr
		log.Infof("(25, 50, 75) percentile: (%.0f, %.0f, %.0f)", p25, p50, p75)
		log.Infof("low and high boundaries for computing mean and std.dev: (%.0f, %.0f)", low, high)

		kept := x[:0]
		for _, v := range x {
			if v >= low && v <= high {
				kept = append(kept, v)
			}
		}
		r.Avg, r.Std = stat.PopMeanStdDev(kept, nil)
		log.Infof("mean and std.dev: (%.2f, %.2f)", r.Avg, r.Std)

		r.Low = int(p25 - peMappingBound*iqr + .499)
		r.High = int(p75 + peMappingBound*iqr + .499)
		if float64(r.Low) > r.Avg-peMaxStdDev*r.Std {
			r.Low = int(r.Avg - peMaxStdDev*r.Std + .499)
		}
		if float64(r.High) < r.Avg+peMaxStdDev*r.Std {
			r.High = int(r.Avg + peMaxStdDev*r.Std + .499)
		}
		if float64(r.Low) > r.Avg { // rounding
			r.Low = int(math.Floor(r.Avg))
		}
		if float64(r.High) < r.Avg {
			r.High = int(math.Ceil(r.Avg))
		}
		r.Low = max(r.Low, 1)
		log.Infof("low and high boundaries for proper pairs: (%d, %d)", r.Low, r.High)
	}

	for d := 0; d < 4; d++ {
		if !pes[d].Failed && float64(len(sizes[d])) < float64(nMax)*peMinDirRatio {
			pes[d].Failed = true
			log.Infof("skip orientation %s", Orientations[d])
		}
	}
	return pes
}

// PEStat infers the insert size distribution from regions of a batch of
// paired reads.
func PEStat(opt *Options, lPac int64, regs [][]Region) [4]PeStat {
	return EstimatePeStat(CollectInsertSizes(opt, lPac, regs))
}
