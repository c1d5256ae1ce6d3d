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
	"testing"
)

func TestOptionsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "opt.toml")

	opt := DefaultOptions()
	opt.A, opt.B = 2, 6
	opt.MinSeedLen = 25
	opt.Flag |= FlagPE | FlagAll
	opt.MapQCoefLen = 100
	if err := opt.Save(file); err != nil {
		t.Fatalf("failed to save options: %s", err)
	}

	opt2, err := LoadOptions(file)
	if err != nil {
		t.Fatalf("failed to load options: %s", err)
	}
	if opt2.A != 2 || opt2.B != 6 || opt2.MinSeedLen != 25 || opt2.Flag != opt.Flag {
		t.Errorf("unexpected options: %+v", opt2)
	}
	if opt2.MapQCoefFac != 4 {
		t.Errorf("derived fields are not updated: %d", opt2.MapQCoefFac)
	}
	if opt2.Mat[0] != 2 || opt2.Mat[1] != -6 {
		t.Errorf("score matrix is not updated: %v", opt2.Mat)
	}

	// partial file
	if err = os.WriteFile(file, []byte("min-seed-len = 15\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if opt2, err = LoadOptions(file); err != nil {
		t.Fatalf("failed to load options: %s", err)
	}
	if opt2.MinSeedLen != 15 || opt2.W != 100 || opt2.XADropRatio != 0.8 {
		t.Errorf("unexpected options: %+v", opt2)
	}

	// unknown item
	if err = os.WriteFile(file, []byte("seed-length = 15\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err = LoadOptions(file); err == nil {
		t.Errorf("unknown items should be reported")
	}

	if _, err = LoadOptions(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("missing file should be reported")
	}
}

func TestOptionsScoring(t *testing.T) {
	opt := DefaultOptions()
	sc := opt.Scoring()
	if opt.Scoring() != sc {
		t.Errorf("scoring should be reused")
	}
	if sc.Mat[0] != 1 || sc.Mat[1] != -4 || sc.ODel != 6 || sc.EIns != 1 {
		t.Errorf("unexpected scoring: %+v", sc)
	}

	opt.A, opt.ODel = 2, 5
	opt.Update()
	sc2 := opt.Scoring()
	if sc2 == sc || sc2.Mat[0] != 2 || sc2.ODel != 5 {
		t.Errorf("scoring is not updated: %+v", sc2)
	}
	if sc.Mat[0] != 1 || sc.ODel != 6 {
		t.Errorf("the previous scoring should be kept: %+v", sc)
	}

	var o Options
	o.ODel = 3
	if s := o.Scoring(); s.ODel != 3 {
		t.Errorf("unexpected scoring of options without Update: %+v", s)
	}
}
