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
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'.', 'f', 'm', 'i', 'n', 'd', 'e', 'x'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("fmindex: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("fmindex: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("fmindex: version mismatch")

// WriteTo writes the index. Occurrence checkpoints are not saved and are
// rebuilt when reading.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	var N int64
	err := binary.Write(w, be, Magic)
	if err != nil {
		return N, err
	}
	err = binary.Write(w, be, [8]uint8{MainVersion, MinorVersion})
	if err != nil {
		return N, err
	}
	N += 16

	header := [8]int64{idx.SeqLen, idx.Primary, idx.SAIntv, idx.C[0], idx.C[1], idx.C[2], idx.C[3], idx.C[4]}
	err = binary.Write(w, be, header)
	if err != nil {
		return N, err
	}
	N += 64

	n, err := w.Write(idx.bwt)
	N += int64(n)
	if err != nil {
		return N, err
	}

	buf := make([]byte, 8)
	be.PutUint64(buf, uint64(len(idx.sa)))
	n, err = w.Write(buf)
	N += int64(n)
	if err != nil {
		return N, err
	}
	for _, v := range idx.sa {
		be.PutUint64(buf, uint64(v))
		n, err = w.Write(buf)
		N += int64(n)
		if err != nil {
			return N, err
		}
	}
	return N, nil
}

// WriteToFile writes the index to a file.
func (idx *Index) WriteToFile(file string) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(fh, 65536)
	_, err = idx.WriteTo(w)
	if err != nil {
		return err
	}
	err = w.Flush()
	if err != nil {
		return err
	}
	return fh.Close()
}

// Read reads an index.
func Read(r io.Reader) (*Index, error) {
	buf := make([]byte, 64)

	_, err := io.ReadFull(r, buf[:8])
	if err != nil {
		return nil, ErrBrokenFile
	}
	for i := 0; i < 8; i++ {
		if Magic[i] != buf[i] {
			return nil, ErrInvalidFileFormat
		}
	}
	_, err = io.ReadFull(r, buf[:8])
	if err != nil {
		return nil, ErrBrokenFile
	}
	if buf[0] != MainVersion {
		return nil, ErrVersionMismatch
	}

	_, err = io.ReadFull(r, buf[:64])
	if err != nil {
		return nil, ErrBrokenFile
	}
	idx := &Index{
		SeqLen:  int64(be.Uint64(buf[:8])),
		Primary: int64(be.Uint64(buf[8:16])),
		SAIntv:  int64(be.Uint64(buf[16:24])),
	}
	for c := 0; c < 5; c++ {
		idx.C[c] = int64(be.Uint64(buf[24+c*8 : 32+c*8]))
	}

	idx.bwt = make([]byte, idx.SeqLen+1)
	_, err = io.ReadFull(r, idx.bwt)
	if err != nil {
		return nil, ErrBrokenFile
	}

	_, err = io.ReadFull(r, buf[:8])
	if err != nil {
		return nil, ErrBrokenFile
	}
	idx.sa = make([]int64, be.Uint64(buf[:8]))
	for i := range idx.sa {
		_, err = io.ReadFull(r, buf[:8])
		if err != nil {
			return nil, ErrBrokenFile
		}
		idx.sa[i] = int64(be.Uint64(buf[:8]))
	}

	idx.buildOcc()
	return idx, nil
}

// NewFromFile reads an index from a file.
func NewFromFile(file string) (*Index, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Read(bufio.NewReaderSize(fh, 65536))
}
