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
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSeqConversion(t *testing.T) {
	_seq := []byte("ACTAGACGACGTACGCGTACGTAGTACGATGCTCGA")
	var s, s2 []byte
	var b2 *[]byte
	var err error
	for n := 1; n < len(_seq); n++ {
		s = _seq[:n]
		b2 = Seq2TwoBit(s)
		s2, err = TwoBit2Seq(*b2, n)
		if err != nil {
			t.Error(err)
			return
		}
		if !bytes.Equal(s, s2) {
			t.Errorf("expected: %s, results: %s\n", s, s2)
			return
		}
		RecycleTwoBit(b2)
	}
}

func TestReadAndWrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.2bit")

	_seqs := [][]byte{
		[]byte("A"),
		[]byte("CAT"),
		[]byte("CATGCCACG"),
		[]byte("ACCCTCGNNNAGCGACTAG"),
		[]byte("NNACTAGACGACGTACGCGTACGTAGTACGATGCTCGAN"),
	}

	err := WritePac(file, _seqs)
	if err != nil {
		t.Error(err)
		return
	}

	r, err := NewReader(file)
	if err != nil {
		t.Error(err)
		return
	}
	if r.NumSeqs() != len(_seqs) {
		t.Errorf("unexpected number of contigs: %d", r.NumSeqs())
	}
	for i, s := range _seqs {
		s2, err := r.Seq(i)
		if err != nil {
			t.Error(err)
			return
		}
		if !bytes.Equal(s, *s2) {
			t.Errorf("contig %d, expected: %s, results: %s", i, s, *s2)
		}
		RecycleSeq(s2)

		if len(s) > 4 {
			s2, err = r.SubSeq(i, 2, 4)
			if err != nil {
				t.Error(err)
				return
			}
			if !bytes.Equal(s[2:5], *s2) {
				t.Errorf("contig %d, subseq expected: %s, results: %s", i, s[2:5], *s2)
			}
			RecycleSeq(s2)
		}
	}
	if h := r.Holes(4); len(h) != 2 || h[0].Len != 2 || h[1].Start != 38 {
		t.Errorf("unexpected holes: %v", h)
	}
	r.Close()

	pac, err := ReadPac(file)
	if err != nil {
		t.Error(err)
		return
	}
	var n int
	for _, s := range _seqs {
		n += len(s)
	}
	if pac.Len() != int64(n) {
		t.Errorf("pac length: %d, expected %d", pac.Len(), n)
	}

	os.Remove(file)
}

func TestPacStrands(t *testing.T) {
	pac := NewPac(16)
	pac.Append([]byte("ACGTTGCA"))
	pac.Append([]byte("GGGAC"))
	l := pac.Len()
	if l != 13 {
		t.Errorf("unexpected length: %d", l)
		return
	}

	fwd := pac.Get(8, 13, nil)
	if !bytes.Equal(fwd, []byte{2, 2, 2, 0, 1}) {
		t.Errorf("unexpected forward codes: %v", fwd)
	}

	// reverse complement of GGGAC is GTCCC
	rev := pac.Get(2*l-13, 2*l-8, nil)
	if !bytes.Equal(rev, []byte{2, 3, 1, 1, 1}) {
		t.Errorf("unexpected reverse codes: %v", rev)
	}

	if s := pac.Get(l-2, l+2, nil); len(s) != 0 {
		t.Errorf("bridging the strands should return nothing: %v", s)
	}

	codes := pac.Codes()
	for i := int64(0); i < 2*l; i++ {
		if b := pac.Get(i, i+1, nil); len(b) != 1 || b[0] != codes[i] {
			t.Errorf("position %d: %v vs %d", i, b, codes[i])
		}
	}
}

func TestPackCodes(t *testing.T) {
	codes := []byte{0, 1, 2, 3, 3, 2, 1}
	b2 := PackCodes(nil, codes)
	if len(b2) != 2 {
		t.Errorf("unexpected packed size: %d", len(b2))
	}
	if s := UnpackCodes(b2, len(codes), nil); !bytes.Equal(s, codes) {
		t.Errorf("unpacked codes: %v, expected %v", s, codes)
	}
}
