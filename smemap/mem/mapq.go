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

import "math"

// rawMapQ converts a score difference to a phred-scaled quality.
func rawMapQ(diff, a int) int {
	return int(6.02*float64(diff)/float64(a) + .499)
}

// ApproxMapQSE estimates the mapping quality of a single-end region from
// the gap between its score and the best competing one.
func ApproxMapQSE(opt *Options, r *Region) int {
	sub := r.Sub
	if sub == 0 {
		sub = opt.MinSeedLen * opt.A
	}
	sub = max(sub, r.CSub)
	if sub >= r.Score {
		return 0
	}

	l := max(r.QE-r.QB, int(r.RE-r.RB))
	identity := 1. - float64(l*opt.A-r.Score)/float64(opt.A+opt.B)/float64(l)

	var mapq int
	if r.Score == 0 {
		mapq = 0
	} else if opt.MapQCoefLen > 0 {
		var tmp float64
		if float64(l) < opt.MapQCoefLen {
			tmp = 1
		} else {
			tmp = float64(opt.MapQCoefFac) / math.Log(float64(l))
		}
		tmp *= identity * identity
		mapq = int(6.02*float64(r.Score-sub)/float64(opt.A)*tmp*tmp + .499)
	} else {
		mapq = int(MapQCoef*(1.-float64(sub)/float64(r.Score))*math.Log(float64(r.SeedCov)) + .499)
		if identity < 0.95 {
			mapq = int(float64(mapq)*identity*identity + .499)
		}
	}

	if r.SubN > 0 {
		mapq -= int(4.343*math.Log(float64(r.SubN+1)) + .499)
	}
	mapq = min(mapq, MapQMax)
	mapq = max(mapq, 0)
	return int(float64(mapq)*(1.-float64(r.FracRep)) + .499)
}
