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

package refseq

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/smemap/smemap/index/twobit"
)

// MainVersion is use for checking compatibility
var MainVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("reference metadata: version mismatch")

// ErrEmptyContig means the contig has no bases.
var ErrEmptyContig = errors.New("reference metadata: empty contig")

// Contig is one reference sequence. Offset is its start in the
// concatenated forward strand.
type Contig struct {
	Name    string `toml:"name"`
	Comment string `toml:"comment,omitempty"`
	Offset  int64  `toml:"offset"`
	Len     int64  `toml:"len"`
	NAmb    int64  `toml:"ambiguous-bases"`
	IsAlt   bool   `toml:"alt"`
}

func (c Contig) String() string {
	return fmt.Sprintf("%s, offset:%d, len:%d, alt:%v", c.Name, c.Offset, c.Len, c.IsAlt)
}

// Meta is the reference metadata.
type Meta struct {
	MainVersion  uint8 `toml:"main-version" comment:"Reference metadata, do not edit this file"`
	MinorVersion uint8 `toml:"minor-version"`

	LPac    int64    `toml:"total-bases"`
	NumAlts int      `toml:"alt-contigs"`
	Contigs []Contig `toml:"contigs"`

	name2rid map[string]int
}

// NewMeta returns an empty Meta.
func NewMeta() *Meta {
	return &Meta{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,
		name2rid:     make(map[string]int, 128),
	}
}

// Add appends a contig and returns its id.
func (m *Meta) Add(name, comment string, seq []byte) (int, error) {
	if len(seq) == 0 {
		return -1, errors.Wrap(ErrEmptyContig, name)
	}
	var nAmb int64
	for _, b := range seq {
		if twobit.Nt4[b] > 3 {
			nAmb++
		}
	}
	m.Contigs = append(m.Contigs, Contig{
		Name:    name,
		Comment: comment,
		Offset:  m.LPac,
		Len:     int64(len(seq)),
		NAmb:    nAmb,
	})
	m.LPac += int64(len(seq))
	rid := len(m.Contigs) - 1
	m.name2rid[name] = rid
	return rid, nil
}

// Rid returns the id of a contig name, -1 for missing ones.
func (m *Meta) Rid(name string) int {
	if rid, ok := m.name2rid[name]; ok {
		return rid
	}
	return -1
}

// MarkAlts flags contigs as ALT/decoy ones and returns the number of
// contigs matched.
func (m *Meta) MarkAlts(names []string) int {
	var n int
	var rid int
	for _, name := range names {
		if rid = m.Rid(name); rid < 0 || m.Contigs[rid].IsAlt {
			continue
		}
		m.Contigs[rid].IsAlt = true
		n++
	}
	m.NumAlts += n
	return n
}

// Pos2Rid returns the contig containing the forward position pos.
func (m *Meta) Pos2Rid(pos int64) int {
	if pos < 0 || pos >= m.LPac {
		return -1
	}
	// the last contig whose offset <= pos
	return sort.Search(len(m.Contigs), func(i int) bool {
		return m.Contigs[i].Offset > pos
	}) - 1
}

// Depos converts a position in the doubled coordinate system to the forward
// strand.
func (m *Meta) Depos(pos int64) (int64, bool) {
	if pos >= m.LPac {
		return (m.LPac << 1) - 1 - pos, true
	}
	return pos, false
}

// Intv2Rid returns the contig of [rb, re), -1 if the span covers more than
// one contig and -2 if it bridges the two strands.
func (m *Meta) Intv2Rid(rb, re int64) int {
	if rb < m.LPac && re > m.LPac {
		return -2
	}
	if rb > re {
		panic(fmt.Sprintf("refseq: invalid interval [%d, %d)", rb, re))
	}
	p, _ := m.Depos(rb)
	ridB := m.Pos2Rid(p)
	ridE := ridB
	if rb < re {
		p, _ = m.Depos(re - 1)
		ridE = m.Pos2Rid(p)
	}
	if ridB == ridE {
		return ridB
	}
	return -1
}

// FetchSeq clamps [beg, end) to the contig containing mid, on the same
// strand, and returns the codes of the window together with the contig id.
func (m *Meta) FetchSeq(pac *twobit.Pac, beg, mid, end int64, buf []byte) ([]byte, int64, int64, int) {
	if end < beg {
		beg, end = end, beg
	}
	if mid < beg || mid >= end {
		panic(fmt.Sprintf("refseq: mid %d out of [%d, %d)", mid, beg, end))
	}
	p, isRev := m.Depos(mid)
	rid := m.Pos2Rid(p)
	farBeg := m.Contigs[rid].Offset
	farEnd := farBeg + m.Contigs[rid].Len
	if isRev {
		farBeg, farEnd = (m.LPac<<1)-farEnd, (m.LPac<<1)-farBeg
	}
	if beg < farBeg {
		beg = farBeg
	}
	if end > farEnd {
		end = farEnd
	}
	buf = pac.Get(beg, end, buf)
	return buf, beg, end, rid
}

// WriteToFile saves the metadata in TOML format.
func (m *Meta) WriteToFile(file string) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal reference metadata")
	}
	return errors.Wrap(os.WriteFile(file, data, 0644), file)
}

// ReadMeta reads metadata from a TOML file.
func ReadMeta(file string) (*Meta, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	m := NewMeta()
	err = toml.NewDecoder(bytes.NewReader(data)).Decode(m)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	if m.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}
	for i, c := range m.Contigs {
		m.name2rid[c.Name] = i
	}
	return m, nil
}
