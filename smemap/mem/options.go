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
	"bytes"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/smemap/smemap/align"
)

// Flags of Options.Flag.
const (
	FlagPE        = 0x2   // paired-end mode
	FlagNoPairing = 0x4   // do not pair reads, still rescue mates
	FlagAll       = 0x8   // output all alignments
	FlagNoMulti   = 0x10  // mark supplementary alignments as secondary
	FlagNoRescue  = 0x20  // skip mate rescue
	FlagRefHeader = 0x100 // output the reference header in the XR tag
	FlagSoftClip  = 0x200 // soft clipping for supplementary alignments
	FlagSmartPE   = 0x400 // interleaved input with single and paired reads
)

// MapQCoef is the coefficient of the mapping quality without the length
// coefficient.
const MapQCoef = 30.0

// MapQMax is the maximum mapping quality.
const MapQMax = 60

// Options contains all alignment parameters. It is read-only during
// alignment and shared by all workers.
type Options struct {
	A int `toml:"match-score"`       // match score
	B int `toml:"mismatch-penalty"`  // mismatch penalty

	ODel int `toml:"gap-open-del"`
	EDel int `toml:"gap-ext-del"`
	OIns int `toml:"gap-open-ins"`
	EIns int `toml:"gap-ext-ins"`

	PenUnpaired int `toml:"pen-unpaired"` // phred-scaled penalty for unpaired reads
	PenClip5    int `toml:"pen-clip5"`    // clipping penalty, not deducted from the DP score
	PenClip3    int `toml:"pen-clip3"`

	W     int `toml:"band-width"`
	ZDrop int `toml:"z-drop"`

	MaxMemIntv int64 `toml:"max-mem-intv"` // occurrence threshold of the third seeding round

	T    int `toml:"min-out-score"` // output score threshold
	Flag int `toml:"flag"`

	MinSeedLen     int     `toml:"min-seed-len"`
	MinChainWeight int     `toml:"min-chain-weight"`
	MaxChainExtend int     `toml:"max-chain-extend"`
	SplitFactor    float64 `toml:"split-factor"` // re-seed if a MEM is longer than MinSeedLen*SplitFactor
	SplitWidth     int     `toml:"split-width"`  // re-seed if the occurrence is not larger than this
	MaxOcc         int     `toml:"max-occ"`      // skip seeds with more occurrences
	MaxChainGap    int     `toml:"max-chain-gap"`

	NumThreads int `toml:"threads"`
	ChunkSize  int `toml:"chunk-size"` // bases of a batch

	// a hit is redundant if its overlap with a better hit is over
	// MaskLevel times the shorter length.
	MaskLevel float64 `toml:"mask-level"`
	// drop a chain if its seed coverage is below DropRatio times the
	// coverage of a better overlapping chain.
	DropRatio float64 `toml:"drop-ratio"`
	// alignments with score < XADropRatio * best score are not in XA.
	XADropRatio    float64 `toml:"xa-drop-ratio"`
	MaskLevelRedun float64 `toml:"mask-level-redun"`

	MapQCoefLen float64 `toml:"mapq-coef-len"`
	MapQCoefFac int     `toml:"-"` // integer part of ln(MapQCoefLen)

	MaxIns       int `toml:"max-ins"`    // skip pairs with longer insert size in estimation
	MaxMateSW    int `toml:"max-matesw"` // rounds of mate rescue for each end
	MaxXAHits    int `toml:"max-xa-hits"`
	MaxXAHitsAlt int `toml:"max-xa-hits-alt"`

	Mat [25]int8 `toml:"-"`

	scoring *align.Scoring // built by Update
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	o := &Options{
		A: 1, B: 4,
		ODel: 6, EDel: 1,
		OIns: 6, EIns: 1,

		PenUnpaired: 17,
		PenClip5:    5,
		PenClip3:    5,

		W:     100,
		ZDrop: 100,

		MaxMemIntv: 20,

		T: 30,

		MinSeedLen:     19,
		MinChainWeight: 0,
		MaxChainExtend: 1 << 30,
		SplitFactor:    1.5,
		SplitWidth:     10,
		MaxOcc:         500,
		MaxChainGap:    10000,

		NumThreads: 1,
		ChunkSize:  10000000,

		MaskLevel:      0.50,
		DropRatio:      0.50,
		XADropRatio:    0.80,
		MaskLevelRedun: 0.95,

		MapQCoefLen: 50,

		MaxIns:       10000,
		MaxMateSW:    50,
		MaxXAHits:    5,
		MaxXAHitsAlt: 200,
	}
	o.Update()
	return o
}

// FillScoreMatrix fills the substitution matrix from a match score and a
// mismatch penalty.
func FillScoreMatrix(a, b int, mat *[25]int8) {
	align.FillMatrix(a, b, mat)
}

// Update recomputes derived fields after scores are changed.
func (o *Options) Update() {
	if o.MapQCoefLen > 0 {
		o.MapQCoefFac = int(math.Log(o.MapQCoefLen))
	}
	FillScoreMatrix(o.A, o.B, &o.Mat)
	o.scoring = o.newScoring()
}

func (o *Options) newScoring() *align.Scoring {
	return &align.Scoring{
		Mat:  o.Mat,
		ODel: o.ODel, EDel: o.EDel,
		OIns: o.OIns, EIns: o.EIns,
	}
}

// Scoring returns the scoring scheme of DP, which is shared and must not
// be modified. Call Update after changing scores.
func (o *Options) Scoring() *align.Scoring {
	if o.scoring == nil {
		return o.newScoring()
	}
	return o.scoring
}

// Save writes options into a TOML file.
func (o *Options) Save(file string) error {
	data, err := toml.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal options")
	}
	return errors.Wrap(os.WriteFile(file, data, 0644), file)
}

// LoadOptions reads options from a TOML file. Missing items keep the
// default values.
func LoadOptions(file string) (*Options, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	o := DefaultOptions()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err = dec.Decode(o); err != nil {
		return nil, errors.Wrapf(err, "parse options file: %s", file)
	}
	o.Update()
	return o, nil
}
