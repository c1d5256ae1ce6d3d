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
	"fmt"

	"github.com/pkg/errors"
	"github.com/shenwei356/smemap/smemap/align"
	"github.com/shenwei356/smemap/smemap/index/twobit"
	"github.com/shenwei356/smemap/smemap/util"
)

// Backend extends batches of chain anchors into regions.
// Results must not depend on which backend is used.
type Backend interface {
	Name() string
	Extend(opt *Options, jobs []*ExtendJob) error
}

// InProcess runs banded DP on the calling goroutine.
type InProcess struct{}

// Name returns the name of the backend.
func (InProcess) Name() string { return "in-process" }

// Extend extends all jobs one by one.
func (InProcess) Extend(opt *Options, jobs []*ExtendJob) error {
	if len(jobs) == 0 {
		return nil
	}
	alg := align.GetAligner(opt.Scoring())
	for _, j := range jobs {
		extendInProcess(alg, opt, j)
	}
	align.RecycleAligner(alg)
	return nil
}

// ErrDeviceUnavailable means the device can not run batches.
var ErrDeviceUnavailable = errors.New("mem: device unavailable")

// Batch is a flat buffer of one-sided extension tasks.
// Targets are 2-bit packed, and each one starts at a byte boundary.
type Batch struct {
	Scoring align.Scoring
	ZDrop   int

	Queries  []byte
	QOffsets []int // len: n+1
	Targets  []byte
	TOffsets []int // byte offsets, len: n+1
	TLens    []int
	H0       []int
	W        []int
	EndBonus []int

	Results []align.ExtendResult
}

// Reset clears all tasks.
func (b *Batch) Reset() {
	b.Queries = b.Queries[:0]
	b.QOffsets = append(b.QOffsets[:0], 0)
	b.Targets = b.Targets[:0]
	b.TOffsets = append(b.TOffsets[:0], 0)
	b.TLens = b.TLens[:0]
	b.H0 = b.H0[:0]
	b.W = b.W[:0]
	b.EndBonus = b.EndBonus[:0]
	b.Results = b.Results[:0]
}

// Len returns the number of tasks.
func (b *Batch) Len() int { return len(b.H0) }

// Add appends a task.
func (b *Batch) Add(query, target []byte, h0, w, endBonus int) {
	b.Queries = append(b.Queries, query...)
	b.QOffsets = append(b.QOffsets, len(b.Queries))
	b.Targets = twobit.PackCodes(b.Targets, target)
	b.TOffsets = append(b.TOffsets, len(b.Targets))
	b.TLens = append(b.TLens, len(target))
	b.H0 = append(b.H0, h0)
	b.W = append(b.W, w)
	b.EndBonus = append(b.EndBonus, endBonus)
}

// Query returns the query of task i.
func (b *Batch) Query(i int) []byte {
	return b.Queries[b.QOffsets[i]:b.QOffsets[i+1]]
}

// Target decodes the target of task i into buf.
func (b *Batch) Target(i int, buf []byte) []byte {
	return twobit.UnpackCodes(b.Targets[b.TOffsets[i]:b.TOffsets[i+1]], b.TLens[i], buf[:0])
}

// Device runs a whole batch. It must fill b.Results with one result per
// task, in order.
type Device interface {
	Name() string
	Run(b *Batch) error
}

// CPUDevice runs batches lane by lane with several goroutines.
type CPUDevice struct {
	Threads  int
	LaneSize int // tasks in a lane
}

// Name returns the name of the device.
func (d *CPUDevice) Name() string { return fmt.Sprintf("cpu(%d)", d.Threads) }

// Run runs all tasks of a batch.
func (d *CPUDevice) Run(b *Batch) error {
	n := b.Len()
	if cap(b.Results) < n {
		b.Results = make([]align.ExtendResult, n)
	}
	b.Results = b.Results[:n]

	lane := d.LaneSize
	if lane < 1 {
		lane = 64
	}
	lanes := (n + lane - 1) / lane
	threads := max(d.Threads, 1)
	bufs := make([][]byte, threads)

	util.ParallelFor(threads, lanes, func(l, tid int) {
		alg := align.GetAligner(&b.Scoring)
		end := min((l+1)*lane, n)
		for i := l * lane; i < end; i++ {
			bufs[tid] = b.Target(i, bufs[tid])
			b.Results[i] = alg.Extend(b.Query(i), bufs[tid], b.W[i], b.EndBonus[i], b.ZDrop, b.H0[i])
		}
		align.RecycleAligner(alg)
	})
	return nil
}

// Offload packs all jobs of a call into flat batches and runs them on a
// device. If the device fails, jobs are extended in process.
// It is not safe for concurrent use.
type Offload struct {
	Device Device

	batch Batch
	sides []*extendSide
}

// NewOffload returns an Offload backend on a device.
func NewOffload(d Device) *Offload {
	return &Offload{Device: d}
}

// Name returns the name of the backend.
func (o *Offload) Name() string { return "offload:" + o.Device.Name() }

// Extend extends all jobs. Device errors are not returned.
func (o *Offload) Extend(opt *Options, jobs []*ExtendJob) error {
	if len(jobs) == 0 {
		return nil
	}
	err := o.extend(opt, jobs)
	if err == nil {
		return nil
	}
	log.Warningf("%s failed, fall back to in-process extension: %s", o.Name(), err)
	for _, j := range jobs {
		j.prepare(opt)
	}
	return InProcess{}.Extend(opt, jobs)
}

func (o *Offload) extend(opt *Options, jobs []*ExtendJob) error {
	var err error

	// left sides
	sides := o.sides[:0]
	for _, j := range jobs {
		if j.hasLeft {
			sides = append(sides, &j.left)
		}
	}
	if err = o.runSides(opt, sides); err != nil {
		return err
	}
	for _, j := range jobs {
		if j.hasLeft {
			j.finishLeft(opt)
		}
	}

	// right sides, which start from the left scores
	sides = sides[:0]
	for _, j := range jobs {
		if j.hasRight {
			j.prepareRight(opt)
			sides = append(sides, &j.right)
		}
	}
	if err = o.runSides(opt, sides); err != nil {
		return err
	}
	for _, j := range jobs {
		if j.hasRight {
			j.finishRight(opt)
		}
		j.finish()
	}
	o.sides = sides[:0]
	return nil
}

// runSides runs rounds of batches until all tries of all sides finish.
func (o *Offload) runSides(opt *Options, sides []*extendSide) error {
	b := &o.batch
	b.Scoring = *opt.Scoring()
	b.ZDrop = opt.ZDrop
	pending := make([]*extendSide, 0, len(sides))
	for {
		b.Reset()
		pending = pending[:0]
		for _, s := range sides {
			aw, ok := s.next(opt.W)
			if !ok {
				continue
			}
			b.Add(s.Query, s.Target, s.H0, aw, s.EndBonus)
			pending = append(pending, s)
		}
		if len(pending) == 0 {
			return nil
		}
		if err := o.Device.Run(b); err != nil {
			return err
		}
		if len(b.Results) != len(pending) {
			return errors.Errorf("%d results for %d tasks", len(b.Results), len(pending))
		}
		for i, s := range pending {
			s.update(b.Results[i])
		}
	}
}
