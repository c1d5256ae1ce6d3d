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

package twobit

import (
	"github.com/pkg/errors"
)

// Pac is the 2-bit packed forward strand of all reference contigs,
// concatenated without separators.
//
// Positions in [LPac, 2*LPac) address the reverse-complement strand:
// position p there is the complement of forward base 2*LPac-1-p.
type Pac struct {
	data []byte
	n    int64
}

// NewPac creates an empty Pac with room for n bases.
func NewPac(n int) *Pac {
	return &Pac{data: make([]byte, 0, (n+3)>>2)}
}

// Append adds one contig. Ambiguous bases are stored as A.
func (p *Pac) Append(s []byte) {
	var i int64
	for _, b := range s {
		i = p.n
		if i&3 == 0 {
			p.data = append(p.data, 0)
		}
		p.data[i>>2] |= (Nt4[b] & 3) << ((3 - uint(i&3)) << 1)
		p.n++
	}
}

// Len returns the number of bases of the forward strand.
func (p *Pac) Len() int64 { return p.n }

// Base returns the code of the forward base at i.
func (p *Pac) Base(i int64) byte {
	return p.data[i>>2] >> ((3 - uint(i&3)) << 1) & 3
}

// Get returns codes (0-3) of [beg, end) in the doubled coordinate system,
// appending to buf. Nothing is returned if the range bridges the two strands.
func (p *Pac) Get(beg, end int64, buf []byte) []byte {
	buf = buf[:0]
	if end < beg {
		beg, end = end, beg
	}
	if end > p.n<<1 {
		end = p.n << 1
	}
	if beg < 0 {
		beg = 0
	}
	if beg >= p.n { // reverse strand
		begF := (p.n << 1) - 1 - end
		endF := (p.n << 1) - 1 - beg
		for k := endF; k > begF; k-- {
			buf = append(buf, 3-p.Base(k))
		}
	} else if end <= p.n { // forward strand
		for k := beg; k < end; k++ {
			buf = append(buf, p.Base(k))
		}
	}
	return buf
}

// Codes returns the forward strand followed by its reverse complement,
// the text the FM-index is built on.
func (p *Pac) Codes() []byte {
	codes := make([]byte, p.n<<1)
	var i int64
	for i = 0; i < p.n; i++ {
		codes[i] = p.Base(i)
		codes[(p.n<<1)-1-i] = 3 - codes[i]
	}
	return codes
}

// WritePac saves contigs into a 2-bit file.
func WritePac(file string, seqs [][]byte) error {
	w, err := NewWriter(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	for _, s := range seqs {
		if err = w.WriteSeq(s); err != nil {
			return errors.Wrap(err, file)
		}
	}
	return errors.Wrap(w.Close(), file)
}

// ReadPac loads all contigs of a 2-bit file into a Pac.
func ReadPac(file string) (*Pac, error) {
	r, err := NewReader(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	defer r.Close()

	var n int
	for _, info := range r.index {
		n += info.bases
	}

	pac := NewPac(n)
	var s *[]byte
	for i := 0; i < r.NumSeqs(); i++ {
		s, err = r.Seq(i)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: contig %d", file, i)
		}
		pac.Append(*s)
		RecycleSeq(s)
	}
	return pac, nil
}

// PackCodes appends 2-bit packed codes (0-3) to dst, four bases per byte
// with the first base in the highest bits.
func PackCodes(dst []byte, codes []byte) []byte {
	var b byte
	for i, c := range codes {
		b |= (c & 3) << ((3 - uint(i&3)) << 1)
		if i&3 == 3 {
			dst = append(dst, b)
			b = 0
		}
	}
	if len(codes)&3 != 0 {
		dst = append(dst, b)
	}
	return dst
}

// UnpackCodes decodes n codes from 2-bit packed data, appending to buf.
func UnpackCodes(b2 []byte, n int, buf []byte) []byte {
	for i := 0; i < n; i++ {
		buf = append(buf, b2[i>>2]>>((3-uint(i&3))<<1)&3)
	}
	return buf
}
