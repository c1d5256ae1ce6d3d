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

package align

import (
	"strconv"

	"github.com/biogo/hts/sam"
)

// Code2Base converts base codes to letters.
var Code2Base = [5]byte{'A', 'C', 'G', 'T', 'N'}

// MatchRuns splits M operations into runs of = and X, by comparing the
// aligned query and reference codes. Clipped bases are not included in
// query.
func MatchRuns(cigar sam.Cigar, query, ref []byte) sam.Cigar {
	out := make(sam.Cigar, 0, len(cigar)+4)
	var x, y, i, n int
	for _, op := range cigar {
		n = op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i = 0; i < n; i++ {
				if query[x+i] == ref[y+i] {
					out = pushOp(out, sam.CigarEqual, 1)
				} else {
					out = pushOp(out, sam.CigarMismatch, 1)
				}
			}
			x += n
			y += n
		case sam.CigarInsertion:
			out = pushOp(out, sam.CigarInsertion, n)
			x += n
		case sam.CigarDeletion, sam.CigarSkipped:
			out = pushOp(out, op.Type(), n)
			y += n
		default:
			out = append(out, op)
		}
	}
	return out
}

// NmMD computes the edit distance and the MD string of an alignment.
// Deletions at either end are not written into MD.
func NmMD(cigar sam.Cigar, query, ref []byte) (int, string) {
	md := make([]byte, 0, 16)
	var x, y, u, i, n, nm int
	last := len(cigar) - 1
	for k, op := range cigar {
		n = op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i = 0; i < n; i++ {
				if query[x+i] != ref[y+i] {
					md = strconv.AppendInt(md, int64(u), 10)
					md = append(md, Code2Base[ref[y+i]])
					nm++
					u = 0
				} else {
					u++
				}
			}
			x += n
			y += n
		case sam.CigarDeletion:
			if k > 0 && k < last {
				md = strconv.AppendInt(md, int64(u), 10)
				md = append(md, '^')
				for i = 0; i < n; i++ {
					md = append(md, Code2Base[ref[y+i]])
				}
				u = 0
				nm += n
			}
			y += n
		case sam.CigarInsertion:
			x += n
			nm += n
		}
	}
	md = strconv.AppendInt(md, int64(u), 10)
	return nm, string(md)
}
