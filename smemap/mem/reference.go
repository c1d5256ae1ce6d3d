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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shenwei356/smemap/smemap/index/fmindex"
	"github.com/shenwei356/smemap/smemap/index/refseq"
	"github.com/shenwei356/smemap/smemap/index/twobit"
)

// Files in an index directory.
const (
	FileMeta    = "refs.toml" // reference metadata
	FilePac     = "refs.2bit" // 2-bit packed contigs, with holes of Ns
	FileFMIndex = "refs.fmi"  // FM-index of both strands
)

// Reference bundles the read-only structures shared by all workers.
type Reference struct {
	Index *fmindex.Index
	Meta  *refseq.Meta
	Pac   *twobit.Pac
}

// NewReference creates a Reference from existing parts.
func NewReference(idx *fmindex.Index, meta *refseq.Meta, pac *twobit.Pac) *Reference {
	return &Reference{Index: idx, Meta: meta, Pac: pac}
}

// LPac returns the length of the forward strand.
func (ref *Reference) LPac() int64 { return ref.Meta.LPac }

// BuildReference builds a Reference from sequences in memory.
// alts are names of ALT contigs.
func BuildReference(names []string, seqs [][]byte, alts []string, saIntv int) (*Reference, error) {
	if len(names) != len(seqs) {
		return nil, errors.Errorf("%d names for %d sequences", len(names), len(seqs))
	}
	meta := refseq.NewMeta()
	var n int
	for i, s := range seqs {
		if _, err := meta.Add(names[i], "", s); err != nil {
			return nil, err
		}
		n += len(s)
	}
	meta.MarkAlts(alts)

	pac := twobit.NewPac(n)
	for _, s := range seqs {
		pac.Append(s)
	}
	idx, err := fmindex.Build(pac.Codes(), saIntv)
	if err != nil {
		return nil, errors.Wrap(err, "build FM-index")
	}
	return NewReference(idx, meta, pac), nil
}

// WriteToDir saves the reference into a directory, with the original
// contigs for restoring ambiguous bases.
func (ref *Reference) WriteToDir(dir string, seqs [][]byte) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrap(err, dir)
	}
	if err := ref.Meta.WriteToFile(filepath.Join(dir, FileMeta)); err != nil {
		return err
	}
	if err := twobit.WritePac(filepath.Join(dir, FilePac), seqs); err != nil {
		return err
	}
	return ref.Index.WriteToFile(filepath.Join(dir, FileFMIndex))
}

// NewReferenceFromDir loads a Reference saved by WriteToDir.
func NewReferenceFromDir(dir string) (*Reference, error) {
	meta, err := refseq.ReadMeta(filepath.Join(dir, FileMeta))
	if err != nil {
		return nil, err
	}
	pac, err := twobit.ReadPac(filepath.Join(dir, FilePac))
	if err != nil {
		return nil, err
	}
	if pac.Len() != meta.LPac {
		return nil, errors.Errorf("inconsistent index: %d bases in metadata, %d in %s", meta.LPac, pac.Len(), FilePac)
	}
	idx, err := fmindex.NewFromFile(filepath.Join(dir, FileFMIndex))
	if err != nil {
		return nil, err
	}
	if idx.SeqLen != meta.LPac<<1 {
		return nil, errors.Errorf("inconsistent index: %d bases in metadata, %d in %s", meta.LPac<<1, idx.SeqLen, FileFMIndex)
	}
	return NewReference(idx, meta, pac), nil
}
