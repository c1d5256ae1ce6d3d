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
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/smemap/smemap/index/twobit"
	"github.com/shenwei356/smemap/smemap/util"
)

// Read is a query sequence. Alignments are written back into Alns.
type Read struct {
	Name    string
	Comment string
	Seq     []byte // bases
	Qual    []byte // phred+33, could be empty

	Alns []*Alignment

	codes []byte
	regs  []Region
}

// Regions returns the regions found in the first pass.
func (r *Read) Regions() []Region { return r.regs }

// toCodes converts bases to codes 0-4.
func toCodes(seq, buf []byte) []byte {
	buf = buf[:0]
	for _, b := range seq {
		buf = append(buf, twobit.Nt4[b])
	}
	return buf
}

// TrimReadNo removes the /1 or /2 suffix of a read name.
func TrimReadNo(name string) string {
	l := len(name)
	if l > 2 && name[l-2] == '/' && name[l-1] >= '0' && name[l-1] <= '9' {
		return name[:l-2]
	}
	return name
}

// ClassifyPairs splits interleaved reads into single ones and pairs of
// consecutive reads with the same name.
func ClassifyPairs(reads []*Read) (singles, pairs []*Read) {
	if len(reads) == 0 {
		return
	}
	hasLast := true
	var i int
	for i = 1; i < len(reads); i++ {
		if hasLast {
			if TrimReadNo(reads[i].Name) == TrimReadNo(reads[i-1].Name) {
				pairs = append(pairs, reads[i-1], reads[i])
				hasLast = false
			} else {
				singles = append(singles, reads[i-1])
			}
		} else {
			hasLast = true
		}
	}
	if hasLast {
		singles = append(singles, reads[i-1])
	}
	return
}

// Mapper aligns reads against a reference. It is safe for concurrent use
// as long as the backend is.
type Mapper struct {
	opt     *Options
	ref     *Reference
	backend Backend

	poolChainers *sync.Pool
}

// NewMapper creates a Mapper. A nil backend means InProcess.
func NewMapper(opt *Options, ref *Reference, backend Backend) *Mapper {
	if backend == nil {
		backend = InProcess{}
	}
	return &Mapper{
		opt:     opt,
		ref:     ref,
		backend: backend,
		poolChainers: &sync.Pool{New: func() interface{} {
			return NewChainer(opt, ref)
		}},
	}
}

// Options returns the options.
func (m *Mapper) Options() *Options { return m.opt }

// Reference returns the reference.
func (m *Mapper) Reference() *Reference { return m.ref }

// Backend returns the extension backend.
func (m *Mapper) Backend() Backend { return m.backend }

// chainJobs finds seeds and chains of query codes, and creates the
// extension jobs of kept chains.
func (m *Mapper) chainJobs(q []byte) []*ExtendJob {
	ce := m.poolChainers.Get().(*Chainer)
	chains := ce.Filter(ce.Chain(q))
	jobs := make([]*ExtendJob, 0, len(chains))
	for _, c := range chains {
		jobs = append(jobs, NewExtendJob(m.opt, m.ref, q, c))
	}
	m.poolChainers.Put(ce)
	return jobs
}

// resolve collects regions of extended jobs and removes redundant ones.
// Chains of the jobs are recycled.
func (m *Mapper) resolve(jobs []*ExtendJob) []Region {
	regs := make([]Region, 0, len(jobs))
	for _, j := range jobs {
		regs = append(regs, j.Region)
		poolChain.Put(j.Chain)
		j.Chain = nil
	}
	regs = sortDedup(m.opt, regs)
	contigs := m.ref.Meta.Contigs
	for i := range regs {
		if r := &regs[i]; r.Rid >= 0 && contigs[r.Rid].IsAlt {
			r.IsAlt = true
		}
	}
	return regs
}

// AlignCore finds regions of a query with a given backend, which could be
// one shared by a caller collecting its own batches.
func (m *Mapper) AlignCore(seq []byte, h Backend) ([]Region, error) {
	q := toCodes(seq, nil)
	jobs := m.chainJobs(q)
	if err := h.Extend(m.opt, jobs); err != nil {
		return nil, errors.Wrap(err, h.Name())
	}
	return m.resolve(jobs), nil
}

// Align1 finds regions of a query, which are sorted by score and not
// marked as primary or secondary yet.
func (m *Mapper) Align1(seq []byte) []Region {
	regs, _ := m.AlignCore(seq, InProcess{}) // never fails
	return regs
}

// firstPass finds regions of all reads.
func (m *Mapper) firstPass(reads []*Read) error {
	threads := m.opt.NumThreads
	if _, ok := m.backend.(InProcess); ok {
		util.ParallelFor(threads, len(reads), func(i, _ int) {
			r := reads[i]
			jobs := m.chainJobs(r.codes)
			InProcess{}.Extend(m.opt, jobs)
			r.regs = m.resolve(jobs)
		})
		return nil
	}

	// chain, extend all jobs of the batch in bulk, and resolve
	jobs := make([][]*ExtendJob, len(reads))
	util.ParallelFor(threads, len(reads), func(i, _ int) {
		jobs[i] = m.chainJobs(reads[i].codes)
	})
	var n int
	for _, js := range jobs {
		n += len(js)
	}
	all := make([]*ExtendJob, 0, n)
	for _, js := range jobs {
		all = append(all, js...)
	}
	if err := m.backend.Extend(m.opt, all); err != nil {
		return errors.Wrap(err, m.backend.Name())
	}
	util.ParallelFor(threads, len(reads), func(i, _ int) {
		reads[i].regs = m.resolve(jobs[i])
	})
	return nil
}

// withFlag returns a Mapper sharing the reference and backend, with
// a different alignment flag.
func (m *Mapper) withFlag(flag int) *Mapper {
	opt := *m.opt
	opt.Flag = flag
	return NewMapper(&opt, m.ref, m.backend)
}

// ProcessSeqs aligns a batch of reads and fills their Alns. In
// paired-end mode, reads 2i and 2i+1 are the two ends of a pair, and the
// insert size distribution is inferred from the batch unless pes0 is
// given. nProcessed is the number of reads processed before, which seeds
// tie-breaking hashes. It returns the insert size statistics used.
func (m *Mapper) ProcessSeqs(reads []*Read, nProcessed int64, pes0 *[4]PeStat) ([4]PeStat, error) {
	opt := m.opt
	var pes [4]PeStat

	if opt.Flag&FlagSmartPE > 0 {
		singles, pairs := ClassifyPairs(reads)
		flag := opt.Flag &^ FlagSmartPE
		var err error
		if len(singles) > 0 {
			if _, err = m.withFlag(flag&^FlagPE).ProcessSeqs(singles, nProcessed, nil); err != nil {
				return pes, err
			}
		}
		if len(pairs) > 0 {
			pes, err = m.withFlag(flag|FlagPE).ProcessSeqs(pairs, nProcessed+int64(len(singles)), pes0)
		}
		return pes, err
	}

	pe := opt.Flag&FlagPE > 0
	if pe {
		if len(reads)&1 == 1 {
			return pes, errors.Errorf("odd number of reads in paired-end mode: %d", len(reads))
		}
		for i := 0; i < len(reads); i += 2 {
			if TrimReadNo(reads[i].Name) != TrimReadNo(reads[i+1].Name) {
				return pes, errors.Errorf("paired reads have different names: %s, %s", reads[i].Name, reads[i+1].Name)
			}
		}
	}

	for _, r := range reads {
		r.codes = toCodes(r.Seq, r.codes)
		r.Alns = nil
	}

	if err := m.firstPass(reads); err != nil {
		return pes, err
	}

	if !pe {
		util.ParallelFor(opt.NumThreads, len(reads), func(i, _ int) {
			r := reads[i]
			markPrimarySE(opt, r.regs, nProcessed+int64(i))
			r.Alns = regsToAlignments(opt, m.ref, r.codes, r.regs, 0, nil)
		})
		return pes, nil
	}

	if pes0 != nil {
		pes = *pes0
	} else {
		regs := make([][]Region, len(reads))
		for i, r := range reads {
			regs[i] = r.regs
		}
		pes = PEStat(opt, m.ref.LPac(), regs)
	}

	util.ParallelFor(opt.NumThreads, len(reads)>>1, func(i, _ int) {
		m.finalizePair(&pes, (nProcessed>>1)+int64(i), [2]*Read{reads[i<<1], reads[i<<1|1]})
	})
	return pes, nil
}
