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

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseInsertSize(t *testing.T) {
	pes, err := parseInsertSize("300")
	if err != nil {
		t.Fatal(err)
	}
	r := pes[1]
	if r.Failed || r.Avg != 300 || r.Std != 30 || r.High != 420 || r.Low != 180 {
		t.Errorf("unexpected statistics: %s", r)
	}
	if !pes[0].Failed || !pes[2].Failed || !pes[3].Failed {
		t.Errorf("only FR should be set")
	}

	pes, err = parseInsertSize("500,50,800,100")
	if err != nil {
		t.Fatal(err)
	}
	if r = pes[1]; r.Std != 50 || r.High != 800 || r.Low != 100 {
		t.Errorf("unexpected statistics: %s", r)
	}

	for _, s := range []string{"", "abc", "-5", "1,2,3,4,5", "300,10,100,200"} {
		if _, err = parseInsertSize(s); err == nil {
			t.Errorf("invalid value should be reported: %s", s)
		}
	}
}

func TestParseRegion(t *testing.T) {
	start, end, err := parseRegion("101:200")
	if err != nil || start != 101 || end != 200 {
		t.Errorf("unexpected region: %d, %d, %v", start, end, err)
	}
	for _, s := range []string{"0:10", "10:5", "10-20", "a:b", "-1:5"} {
		if _, _, err = parseRegion(s); err == nil {
			t.Errorf("invalid region should be reported: %s", s)
		}
	}
}

func TestParseIntPair(t *testing.T) {
	a, b, err := parseIntPair("5,200")
	if err != nil || a != 5 || b != 200 {
		t.Errorf("unexpected values: %d, %d, %v", a, b, err)
	}
	a, b, err = parseIntPair("6")
	if err != nil || a != 6 || b != 6 {
		t.Errorf("unexpected values: %d, %d, %v", a, b, err)
	}
	if _, _, err = parseIntPair("1,2,3"); err == nil {
		t.Errorf("too many values should be reported")
	}
}

func writeFastq(t *testing.T, file string, names []string, l int) {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "@%s comment\n%s\n+\n%s\n", name, strings.Repeat("ACGT", l/4), strings.Repeat("I", l/4*4))
	}
	if err := os.WriteFile(file, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBatchReader(t *testing.T) {
	dir := t.TempDir()

	// interleaved: a pair should not be split
	file := filepath.Join(dir, "reads.fq")
	writeFastq(t, file, []string{"r1/1", "r1/2", "s1", "r2/1", "r2/2", "s2"}, 100)
	br, err := newBatchReader([]string{file}, 100, true, true)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	var names []string
	for {
		reads, err := br.Next()
		if err != nil && err != io.EOF {
			t.Fatal(err)
		}
		for i, r := range reads {
			names = append(names, r.Name)
			if r.Comment != "comment" || len(r.Qual) != len(r.Seq) {
				t.Errorf("unexpected read: %s", r.Name)
			}
			if i > 0 && i == len(reads)-1 && r.Name != reads[i-1].Name && strings.HasPrefix(r.Name, "r") {
				t.Errorf("a pair is split: %s", r.Name)
			}
		}
		n++
		if err == io.EOF || len(reads) == 0 {
			break
		}
	}
	br.Close()
	if strings.Join(names, ",") != "r1,r1,s1,r2,r2,s2" {
		t.Errorf("unexpected reads: %v", names)
	}

	// two files
	file2 := filepath.Join(dir, "reads2.fq")
	writeFastq(t, file, []string{"a/1", "b/1", "c/1"}, 40)
	writeFastq(t, file2, []string{"a/2", "b/2", "c/2"}, 40)
	br, err = newBatchReader([]string{file, file2}, 1<<20, false, false)
	if err != nil {
		t.Fatal(err)
	}
	reads, err := br.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(reads) != 6 || reads[0].Name != "a" || reads[1].Name != "a" || reads[5].Name != "c" {
		t.Errorf("unexpected reads: %d", len(reads))
	}
	if reads[0].Comment != "" {
		t.Errorf("comments should be dropped")
	}
	if _, err = br.Next(); err != io.EOF {
		t.Errorf("io.EOF expected, got %v", err)
	}
	br.Close()

	// different numbers of reads
	writeFastq(t, file2, []string{"a/2", "b/2"}, 40)
	br, err = newBatchReader([]string{file, file2}, 1<<20, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = br.Next(); err == nil || err == io.EOF {
		t.Errorf("unpaired files should be reported")
	}
	br.Close()
}

func TestReadAltNames(t *testing.T) {
	file := filepath.Join(t.TempDir(), "alt.sam")
	data := "@SQ\tSN:chr1\tLN:100\nchr1_alt\t0\tchr1\t1\t60\t10M\nchr2_alt\t0\tchr1\t5\t60\t10M\n\ndecoy\n"
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	names, err := readAltNames(file)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "chr1_alt,chr2_alt,decoy" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestWrapText(t *testing.T) {
	s := wrapText("aaa bbb ccc", 7)
	if s != "aaa bbb\nccc" {
		t.Errorf("unexpected wrapped text: %q", s)
	}
}
