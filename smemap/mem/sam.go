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
	"strconv"

	"github.com/biogo/hts/sam"
)

// regsToAlignments converts regions of a read into output records: the
// primary one, supplementary ones and, with FlagAll, secondary ones.
// extra flags are added to all records and mate is the primary
// alignment of the other end for paired reads.
func regsToAlignments(opt *Options, ref *Reference, q []byte, regs []Region, extra sam.Flags, mate *Alignment) []*Alignment {
	var xa []string
	if opt.Flag&FlagAll == 0 {
		xa = GenAlt(opt, ref, q, regs)
	}

	list := make([]*Alignment, 0, 2)
	for k := range regs {
		p := &regs[k]
		if p.Score < opt.T {
			continue
		}
		if p.Secondary >= 0 && (p.IsAlt || opt.Flag&FlagAll == 0) {
			continue
		}
		if p.Secondary >= 0 && p.Secondary < len(regs) &&
			float64(p.Score) < float64(regs[p.Secondary].Score)*opt.DropRatio {
			continue
		}
		a := Reg2Aln(opt, ref, q, p)
		if xa != nil {
			a.XA = xa[k]
		}
		a.Flag |= extra
		if p.Secondary >= 0 {
			a.Sub = -1
		}
		if len(list) > 0 && p.Secondary < 0 { // supplementary
			if opt.Flag&FlagNoMulti > 0 {
				a.noMulti = true
			} else {
				a.Flag |= sam.Supplementary
			}
			if !p.IsAlt && a.MapQ > list[0].MapQ {
				a.MapQ = list[0].MapQ
			}
		}
		list = append(list, &a)
	}
	if len(list) == 0 {
		a := unmappedAlignment()
		a.Flag |= extra
		list = append(list, &a)
	}
	finalizeRecords(opt, ref, list, mate)
	return list
}

// clipCigar returns the Cigar used in the output. Clips of records except
// the first one are hard ones.
func clipCigar(opt *Options, a *Alignment, which int) sam.Cigar {
	if opt.Flag&FlagSoftClip > 0 || a.IsAlt || len(a.Cigar) == 0 {
		return a.Cigar
	}
	c := sam.CigarSoftClipped
	if which > 0 {
		c = sam.CigarHardClipped
	}
	cigar := make(sam.Cigar, len(a.Cigar))
	for i, op := range a.Cigar {
		switch op.Type() {
		case sam.CigarSoftClipped, sam.CigarHardClipped:
			cigar[i] = sam.NewCigarOp(c, op.Len())
		default:
			cigar[i] = op
		}
	}
	return cigar
}

// appendSA appends the SA tag value of list[which].
func appendSA(b []byte, ref *Reference, list []*Alignment, which int) []byte {
	for i, r := range list {
		if i == which || r.Flag&sam.Secondary > 0 {
			continue
		}
		b = append(b, ref.Meta.Contigs[r.Rid].Name...)
		b = append(b, ',')
		b = strconv.AppendInt(b, r.Pos+1, 10)
		b = append(b, ',')
		if r.IsRev {
			b = append(b, '-')
		} else {
			b = append(b, '+')
		}
		b = append(b, ',')
		b = append(b, r.Cigar.String()...)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(r.MapQ), 10)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(r.NM), 10)
		b = append(b, ';')
	}
	return b
}

// finalizeRecords sets flags, mate fields, template lengths, SA tags and
// output Cigars of records of a read.
func finalizeRecords(opt *Options, ref *Reference, list []*Alignment, m *Alignment) {
	var buf []byte
	for which, p := range list {
		if p.Flag&sam.Secondary > 0 {
			continue
		}
		var others bool
		for i, r := range list {
			if i != which && r.Flag&sam.Secondary == 0 {
				others = true
				break
			}
		}
		if !others {
			continue
		}
		buf = appendSA(buf[:0], ref, list, which)
		p.SA = string(buf)
	}

	var mt Alignment
	for which, p := range list {
		var mp *Alignment
		if m != nil {
			mt = *m
			mp = &mt
			p.Flag |= sam.Paired
		}
		if p.Rid < 0 {
			p.Flag |= sam.Unmapped
		}
		if mp != nil && mp.Rid < 0 {
			p.Flag |= sam.MateUnmapped
		}
		if p.Rid < 0 && mp != nil && mp.Rid >= 0 { // placed with the mate
			p.Rid, p.Pos, p.IsRev, p.Cigar = mp.Rid, mp.Pos, mp.IsRev, nil
		}
		if mp != nil && mp.Rid < 0 && p.Rid >= 0 {
			mp.Rid, mp.Pos, mp.IsRev, mp.Cigar = p.Rid, p.Pos, p.IsRev, nil
		}
		if p.IsRev {
			p.Flag |= sam.Reverse
		}
		if mp != nil && mp.IsRev {
			p.Flag |= sam.MateReverse
		}

		p.MateRid, p.MatePos, p.TLen = -1, -1, 0
		if mp != nil && mp.Rid >= 0 {
			p.MateRid, p.MatePos = mp.Rid, mp.Pos
			if p.Rid == mp.Rid && len(mp.Cigar) > 0 && len(p.Cigar) > 0 {
				p.TLen = templateLen(p, mp)
			}
		}
		if mp != nil && len(mp.Cigar) > 0 {
			p.MateCigar = clipCigar(opt, mp, which).String()
		}
		p.Cigar = clipCigar(opt, p, which)
	}
}

// templateLen returns the signed observed template length between the
// 5' ends of two alignments.
func templateLen(p, m *Alignment) int64 {
	p0 := p.Pos
	if p.IsRev {
		p0 += int64(p.RefLen()) - 1
	}
	p1 := m.Pos
	if m.IsRev {
		p1 += int64(m.RefLen()) - 1
	}
	var d int64
	if p0 > p1 {
		d = 1
	} else if p0 < p1 {
		d = -1
	}
	return -(p0 - p1 + d)
}

// AppendSAMHeader appends @SQ lines of all contigs.
func (ref *Reference) AppendSAMHeader(b []byte) []byte {
	for _, c := range ref.Meta.Contigs {
		b = append(b, "@SQ\tSN:"...)
		b = append(b, c.Name...)
		b = append(b, "\tLN:"...)
		b = strconv.AppendInt(b, c.Len, 10)
		if c.IsAlt {
			b = append(b, "\tAH:*"...)
		}
		b = append(b, '\n')
	}
	return b
}

var comp = [256]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'a': 't', 'c': 'g', 'g': 'c', 't': 'a'}

func complement(b byte) byte {
	if c := comp[b]; c != 0 {
		return c
	}
	return b
}

// AppendSAM appends SAM records of a read.
func (r *Read) AppendSAM(b []byte, opt *Options, ref *Reference) []byte {
	for _, a := range r.Alns {
		b = r.appendRecord(b, opt, ref, a)
	}
	return b
}

func (r *Read) appendRecord(b []byte, opt *Options, ref *Reference, p *Alignment) []byte {
	b = append(b, r.Name...)
	b = append(b, '\t')
	flag := p.Flag
	if p.noMulti {
		flag |= sam.Secondary
	}
	b = strconv.AppendInt(b, int64(flag), 10)
	b = append(b, '\t')

	if p.Rid >= 0 {
		b = append(b, ref.Meta.Contigs[p.Rid].Name...)
		b = append(b, '\t')
		b = strconv.AppendInt(b, p.Pos+1, 10)
		b = append(b, '\t')
		b = strconv.AppendInt(b, int64(p.MapQ), 10)
		b = append(b, '\t')
		b = append(b, p.Cigar.String()...) // "*" when empty
	} else {
		b = append(b, "*\t0\t0\t*"...)
	}
	b = append(b, '\t')

	if p.MateRid >= 0 {
		if p.MateRid == p.Rid {
			b = append(b, '=')
		} else {
			b = append(b, ref.Meta.Contigs[p.MateRid].Name...)
		}
		b = append(b, '\t')
		b = strconv.AppendInt(b, p.MatePos+1, 10)
		b = append(b, '\t')
		b = strconv.AppendInt(b, p.TLen, 10)
	} else {
		b = append(b, "*\t0\t0"...)
	}
	b = append(b, '\t')

	if p.Flag&sam.Secondary > 0 {
		b = append(b, "*\t*"...)
	} else {
		qb, qe := 0, len(r.Seq)
		if n := len(p.Cigar); n > 0 {
			if op := p.Cigar[0]; op.Type() == sam.CigarHardClipped {
				qb += op.Len()
			}
			if op := p.Cigar[n-1]; op.Type() == sam.CigarHardClipped {
				qe -= op.Len()
			}
		}
		if !p.IsRev {
			b = append(b, r.Seq[qb:qe]...)
			b = append(b, '\t')
			if len(r.Qual) > 0 {
				b = append(b, r.Qual[qb:qe]...)
			} else {
				b = append(b, '*')
			}
		} else {
			// qb and qe are on the reverse complement
			l := len(r.Seq)
			for i := l - 1 - qb; i >= l-qe; i-- {
				b = append(b, complement(r.Seq[i]))
			}
			b = append(b, '\t')
			if len(r.Qual) > 0 {
				for i := l - 1 - qb; i >= l-qe; i-- {
					b = append(b, r.Qual[i])
				}
			} else {
				b = append(b, '*')
			}
		}
	}

	if len(p.Cigar) > 0 {
		b = append(b, "\tNM:i:"...)
		b = strconv.AppendInt(b, int64(p.NM), 10)
		b = append(b, "\tMD:Z:"...)
		b = append(b, p.MD...)
	}
	if p.MateCigar != "" {
		b = append(b, "\tMC:Z:"...)
		b = append(b, p.MateCigar...)
	}
	if p.Score >= 0 {
		b = append(b, "\tAS:i:"...)
		b = strconv.AppendInt(b, int64(p.Score), 10)
	}
	if p.Sub >= 0 {
		b = append(b, "\tXS:i:"...)
		b = strconv.AppendInt(b, int64(p.Sub), 10)
	}
	if p.SA != "" {
		b = append(b, "\tSA:Z:"...)
		b = append(b, p.SA...)
	}
	if p.XA != "" {
		b = append(b, "\tXA:Z:"...)
		b = append(b, p.XA...)
	}
	if r.Comment != "" {
		b = append(b, '\t')
		b = append(b, r.Comment...)
	}
	if opt.Flag&FlagRefHeader > 0 && p.Rid >= 0 && ref.Meta.Contigs[p.Rid].Comment != "" {
		b = append(b, "\tXR:Z:"...)
		b = append(b, ref.Meta.Contigs[p.Rid].Comment...)
	}
	b = append(b, '\n')
	return b
}
