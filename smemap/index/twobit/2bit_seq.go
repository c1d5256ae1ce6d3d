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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'2', 'b', 'i', 't', 'r', 'e', 'f', 's'}

// the file extension of the index file
const IndexFileExt = ".idx"

// MainVersion is use for checking compatibility
var MainVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// BufferSize is size of reading and writing buffer
var BufferSize = 65536 // os.Getpagesize()

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("2bit refs: invalid binary format")

// ErrEmptySeq means the sequence is empty
var ErrEmptySeq = errors.New("2bit refs: empty seq")

// ErrInvalidTwoBitData means the length of two bit seq slice does not match the number of bases
var ErrInvalidTwoBitData = errors.New("2bit refs: invalid two-bit data")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("2bit refs: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("2bit refs: version mismatch")

// Hole is a run of ambiguous bases (anything but A/C/G/T) in a contig.
// Holes are stored as A in the 2-bit data.
type Hole struct {
	Start int64
	Len   int32
	Base  byte
}

// recordInfo is one line of the index file.
type recordInfo struct {
	offset int
	bytes  int
	bases  int
	holes  []Hole
}

// Writer saves reference contigs into 2bit-encoded format.
// The names of contigs are not saved, they live in the metadata file.
type Writer struct {
	file string
	fh   *os.File
	w    *bufio.Writer

	buf    []byte // 24 bytes buffer
	offset int

	index []recordInfo
}

// NewWriter creates a new Writer.
func NewWriter(file string) (*Writer, error) {
	w := &Writer{file: file}
	var err error
	w.fh, err = os.Create(file)
	if err != nil {
		return nil, err
	}
	w.w = bufio.NewWriterSize(w.fh, BufferSize)

	w.buf = make([]byte, 24)

	// 8-byte magic number
	err = binary.Write(w.w, be, Magic)
	if err != nil {
		return nil, err
	}
	w.offset += 8

	// 8-byte meta info, only 2 bytes are used.
	err = binary.Write(w.w, be, [8]uint8{MainVersion, MinorVersion})
	if err != nil {
		return nil, err
	}
	w.offset += 8
	return w, nil
}

// WriteSeq writes one contig, ambiguous bases are recorded as holes.
func (w *Writer) WriteSeq(s []byte) error {
	b2 := Seq2TwoBit(s)
	err := w.write2Bit(*b2, len(s), FindHoles(s))
	RecycleTwoBit(b2)
	return err
}

func (w *Writer) write2Bit(b2 []byte, bases int, holes []Hole) error {
	if len(b2) == 0 {
		return ErrEmptySeq
	}
	// possible bases for b2 of n bytes: [n*4-3, n*4]
	if bases < (len(b2)<<2)-3 || bases > len(b2)<<2 {
		return ErrInvalidTwoBitData
	}

	// the number of bytes and bases
	be.PutUint64(w.buf[:8], uint64(len(b2)))
	be.PutUint64(w.buf[8:16], uint64(bases))
	_, err := w.w.Write(w.buf[:16])
	if err != nil {
		return err
	}

	_, err = w.w.Write(b2)
	if err != nil {
		return err
	}

	w.index = append(w.index, recordInfo{offset: w.offset, bytes: len(b2), bases: bases, holes: holes})

	w.offset += 16 + len(b2)
	return nil
}

// Close writes the index file and finish writing.
func (w *Writer) Close() error {
	err := w.w.Flush()
	if err != nil {
		return err
	}

	err = w.fh.Close()
	if err != nil {
		return err
	}

	fh, err := os.Create(filepath.Clean(w.file) + IndexFileExt)
	if err != nil {
		return err
	}
	wtr := bufio.NewWriterSize(fh, BufferSize)
	buf := w.buf[:24]

	// the number of records
	be.PutUint64(buf[:8], uint64(len(w.index)))
	_, err = wtr.Write(buf[:8])
	if err != nil {
		return err
	}

	for _, info := range w.index {
		be.PutUint64(buf[:8], uint64(info.offset))
		be.PutUint64(buf[8:16], uint64(info.bytes))
		be.PutUint64(buf[16:24], uint64(info.bases))
		_, err = wtr.Write(buf)
		if err != nil {
			return err
		}

		be.PutUint64(buf[:8], uint64(len(info.holes)))
		_, err = wtr.Write(buf[:8])
		if err != nil {
			return err
		}
		for _, h := range info.holes {
			be.PutUint64(buf[:8], uint64(h.Start))
			be.PutUint32(buf[8:12], uint32(h.Len))
			buf[12] = h.Base
			_, err = wtr.Write(buf[:13])
			if err != nil {
				return err
			}
		}
	}
	err = wtr.Flush()
	if err != nil {
		return err
	}

	return fh.Close()
}

// Reader is for extracting contigs or subsequences of them.
type Reader struct {
	fh     *os.File
	offset int

	buf []byte

	index []recordInfo
}

// NewReader returns a reader from a file
func NewReader(file string) (*Reader, error) {
	var err error
	r := &Reader{buf: make([]byte, 24)}

	r.fh, err = os.Open(file)
	if err != nil {
		return nil, err
	}

	buf := r.buf
	// check the magic number
	n, err := io.ReadFull(r.fh, buf[:8])
	if err != nil {
		return nil, err
	}
	if n < 8 {
		return nil, ErrBrokenFile
	}
	for i := 0; i < 8; i++ {
		if Magic[i] != buf[i] {
			return nil, ErrInvalidFileFormat
		}
	}
	r.offset += 8

	// read metadata
	n, err = io.ReadFull(r.fh, buf[:8])
	if err != nil {
		return nil, err
	}
	if n < 8 {
		return nil, ErrBrokenFile
	}
	r.offset += 8

	// check compatibility
	if MainVersion != buf[0] {
		return nil, ErrVersionMismatch
	}

	// ------------ index file ----------------

	fileIndex := filepath.Clean(file) + IndexFileExt
	fhIdx, err := os.Open(fileIndex)
	if err != nil {
		return nil, err
	}
	defer fhIdx.Close()
	rdr := bufio.NewReaderSize(fhIdx, BufferSize)

	_, err = io.ReadFull(rdr, buf[:8])
	if err != nil {
		return nil, ErrBrokenFile
	}

	r.index = make([]recordInfo, int(be.Uint64(buf[:8])))
	var nHoles int
	for i := range r.index {
		_, err = io.ReadFull(rdr, buf[:24])
		if err != nil {
			return nil, ErrBrokenFile
		}
		info := &r.index[i]
		info.offset = int(be.Uint64(buf[:8]))
		info.bytes = int(be.Uint64(buf[8:16]))
		info.bases = int(be.Uint64(buf[16:24]))

		_, err = io.ReadFull(rdr, buf[:8])
		if err != nil {
			return nil, ErrBrokenFile
		}
		nHoles = int(be.Uint64(buf[:8]))
		if nHoles > 0 {
			info.holes = make([]Hole, nHoles)
			for j := range info.holes {
				_, err = io.ReadFull(rdr, buf[:13])
				if err != nil {
					return nil, ErrBrokenFile
				}
				info.holes[j] = Hole{
					Start: int64(be.Uint64(buf[:8])),
					Len:   int32(be.Uint32(buf[8:12])),
					Base:  buf[12],
				}
			}
		}
	}

	return r, nil
}

// Close the file handler.
func (r *Reader) Close() error {
	return r.fh.Close()
}

// NumSeqs returns the number of contigs in the file.
func (r *Reader) NumSeqs() int {
	return len(r.index)
}

// Holes returns the ambiguous runs of a contig.
func (r *Reader) Holes(idx int) []Hole {
	if idx < 0 || idx >= len(r.index) {
		return nil
	}
	return r.index[idx].holes
}

// Seq returns the sequence with index of idx (0-based).
func (r *Reader) Seq(idx int) (*[]byte, error) {
	if idx < 0 || idx >= len(r.index) {
		return nil, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	return r.SubSeq(idx, 0, r.index[idx].bases-1)
}

// SubSeq returns the subsequence of a contig (idx is 0-based),
// from start to end (both are 0-based and inclusive).
// Please call RecycleSeq() after using the result.
func (r *Reader) SubSeq(idx int, start int, end int) (*[]byte, error) {
	if idx < 0 || idx >= len(r.index) {
		return nil, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	info := r.index[idx]
	offset := info.offset + 16 // 16 is the bytes of #bytes and #bases
	nBases := info.bases
	if start < 0 {
		start = 0
	}
	if end >= nBases-1 {
		end = nBases - 1
	}
	if end < start {
		end = start
	}

	offset += start >> 2
	_, err := r.fh.Seek(int64(offset), 0)
	if err != nil {
		return nil, err
	}

	nBytes := end>>2 - start>>2 + 1
	if nBytes > len(r.buf) {
		r.buf = append(r.buf, make([]byte, nBytes-len(r.buf))...)
	}
	buf := r.buf[:nBytes]
	_, err = io.ReadFull(r.fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}

	l := end - start + 1
	s := poolSubSeq.Get().(*[]byte)
	*s = (*s)[:0]

	var j int
	for i := start; i <= end; i++ {
		j = (i >> 2) - (start >> 2)
		*s = append(*s, bit2base[buf[j]>>((3-uint(i&3))<<1)&3])
	}

	// restore ambiguous bases
	var p, q int64
	for _, h := range info.holes {
		p, q = h.Start, h.Start+int64(h.Len)
		if q <= int64(start) || p > int64(end) {
			continue
		}
		if p < int64(start) {
			p = int64(start)
		}
		if q > int64(end)+1 {
			q = int64(end) + 1
		}
		for ; p < q; p++ {
			(*s)[p-int64(start)] = h.Base
		}
	}

	tmp := (*s)[:l]
	return &tmp, nil
}

// RecycleSeq recycles the sequence
func RecycleSeq(s *[]byte) {
	poolSubSeq.Put(s)
}

var poolSubSeq = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 0, 10<<10)
	return &tmp
}}

// FindHoles returns runs of non-ACGT bases.
func FindHoles(s []byte) []Hole {
	var holes []Hole
	var h *Hole
	for i, b := range s {
		if Nt4[b] < 4 {
			h = nil
			continue
		}
		if h != nil && h.Base == b {
			h.Len++
			continue
		}
		holes = append(holes, Hole{Start: int64(i), Len: 1, Base: b})
		h = &holes[len(holes)-1]
	}
	return holes
}

// Nt4 converts ASCII bases to codes: A=0, C=1, G=2, T=3, others=4.
var Nt4 = [256]uint8{
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// Code2Base converts 0-4 codes back to bases.
var Code2Base = [5]byte{'A', 'C', 'G', 'T', 'N'}

// RecycleTwoBit recycles the 2bit data
func RecycleTwoBit(b2 *[]byte) {
	poolTwoBit.Put(b2)
}

var poolTwoBit = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 0, 1<<20)
	return &tmp
}}

// Seq2TwoBit converts a DNA sequence to 2bit-packed sequence.
// Ambiguous bases become A.
func Seq2TwoBit(s []byte) *[]byte {
	if s == nil {
		return nil
	}
	if len(s) == 0 {
		return &[]byte{}
	}

	codes := poolTwoBit.Get().(*[]byte)
	*codes = (*codes)[:0]

	var b, c byte
	for i, base := range s {
		c = Nt4[base] & 3
		b |= c << ((3 - uint(i&3)) << 1)
		if i&3 == 3 {
			*codes = append(*codes, b)
			b = 0
		}
	}
	if len(s)&3 != 0 {
		*codes = append(*codes, b)
	}

	return codes
}

// TwoBit2Seq converts a 2bit-packed sequence to DNA.
func TwoBit2Seq(b2 []byte, bases int) ([]byte, error) {
	// possible bases for b2 of n bytes: [n*4-3, n*4]
	if bases < (len(b2)<<2)-3 || bases > len(b2)<<2 {
		return nil, ErrInvalidTwoBitData
	}

	s := make([]byte, bases)
	for i := range s {
		s[i] = bit2base[b2[i>>2]>>((3-uint(i&3))<<1)&3]
	}
	return s, nil
}
