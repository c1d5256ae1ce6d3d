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
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/smemap/smemap/mem"
	"github.com/shenwei356/smemap/smemap/util"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var pestatCmd = &cobra.Command{
	Use:   "pestat",
	Short: "Estimate the insert size distribution of paired-end reads",
	Long: `Estimate the insert size distribution of paired-end reads

Reads are aligned as single-end ones, and distances of uniquely aligned
pairs are collected for four orientations: FF, FR, RF and RR.

Output (tab-delimited):
  orientation, pairs, mean, std, low, high, failed

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		fhLog := setupLog(opt)
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		dbDir := getFlagPath(cmd, "index")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}
		outFile := getFlagPath(cmd, "out-file")
		plotFile := getFlagPath(cmd, "plot")
		bins := getFlagPositiveInt(cmd, "bins")
		maxPairs := getFlagPositiveInt(cmd, "max-pairs")
		smartPE := getFlagBool(cmd, "smart-pairing")

		files := getFileList(args, true)
		if smartPE {
			files = files[:1]
		} else if len(files) != 2 {
			checkError(fmt.Errorf("two read files needed, or one interleaved file with -p/--smart-pairing"))
		}

		ref, err := mem.NewReferenceFromDir(dbDir)
		checkError(err)

		aopt := mem.DefaultOptions()
		aopt.NumThreads = opt.NumCPUs
		mapper := mem.NewMapper(aopt, ref, nil)

		// ---------------------------------------------------------------
		// reads

		br, err := newBatchReader(files, 1<<62, false, false)
		checkError(err)
		defer br.Close()

		reads, err := readPairs(br, smartPE, maxPairs)
		checkError(err)
		if len(reads) == 0 {
			checkError(fmt.Errorf("no read pairs found"))
		}
		if outputLog {
			log.Infof("aligning %d read pairs ...", len(reads)>>1)
		}

		regs := make([][]mem.Region, len(reads))
		util.ParallelFor(opt.NumCPUs, len(reads), func(i, _ int) {
			regs[i] = mapper.Align1(reads[i].Seq)
		})

		sizes := mem.CollectInsertSizes(aopt, ref.LPac(), regs)
		pes := mem.EstimatePeStat(sizes)

		// ---------------------------------------------------------------
		// output

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		fmt.Fprintf(outfh, "orientation\tpairs\tmean\tstd\tlow\thigh\tfailed\n")
		for d, r := range pes {
			fmt.Fprintf(outfh, "%s\t%d\t%.2f\t%.2f\t%d\t%d\t%v\n",
				mem.Orientations[d], len(sizes[d]), r.Avg, r.Std, r.Low, r.High, r.Failed)
		}

		if plotFile != "" {
			checkError(plotInsertSizes(plotFile, sizes, pes, bins))
			if outputLog {
				log.Infof("histogram saved to: %s", plotFile)
			}
		}
	},
}

// readPairs reads at most n pairs of reads.
func readPairs(br *batchReader, smartPE bool, n int) ([]*mem.Read, error) {
	reads := make([]*mem.Read, 0, 1024)
	if !smartPE {
		var r1, r2 *mem.Read
		var err error
		for len(reads) < n<<1 {
			if r1, err = br.read1(br.readers[0]); err != nil {
				break
			}
			if r2, err = br.read1(br.readers[1]); err != nil {
				break
			}
			reads = append(reads, r1, r2)
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		return reads, nil
	}

	var r, last *mem.Read
	var err error
	for len(reads) < n<<1 {
		if r, err = br.read1(br.readers[0]); err != nil {
			break
		}
		if last != nil && r.Name == last.Name {
			reads = append(reads, last, r)
			last = nil
			continue
		}
		last = r
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return reads, nil
}

// plotInsertSizes plots histograms of orientations which do not fail.
func plotInsertSizes(file string, sizes [4][]int64, pes [4]mem.PeStat, bins int) error {
	p := plot.New()
	p.Title.Text = "Insert size distribution"
	p.X.Label.Text = "Insert size"
	p.Y.Label.Text = "Pairs"

	var n int
	for d := range sizes {
		if pes[d].Failed || len(sizes[d]) == 0 {
			continue
		}
		values := make(plotter.Values, 0, len(sizes[d]))
		for _, v := range sizes[d] {
			if v >= int64(pes[d].Low) && v <= int64(pes[d].High) {
				values = append(values, float64(v))
			}
		}
		if len(values) == 0 {
			continue
		}
		h, err := plotter.NewHist(values, bins)
		if err != nil {
			return errors.Wrap(err, "plot histogram")
		}
		h.FillColor = plotutil.Color(n)
		p.Add(h)
		p.Legend.Add(mem.Orientations[d], h)
		n++
	}
	if n == 0 {
		return errors.New("no orientations to plot")
	}
	return errors.Wrap(p.Save(6*vg.Inch, 4*vg.Inch, file), file)
}

func init() {
	RootCmd.AddCommand(pestatCmd)

	pestatCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "smemap index".`))

	pestatCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	pestatCmd.Flags().BoolP("smart-pairing", "p", false,
		formatFlagUsage(`Read pairs from an interleaved file.`))

	pestatCmd.Flags().IntP("max-pairs", "n", 100000,
		formatFlagUsage(`Use at most this number of read pairs.`))

	pestatCmd.Flags().StringP("plot", "", "",
		formatFlagUsage(`Plot histograms into a file, the format is decided by the suffix, e.g., ".png", ".pdf", ".svg".`))

	pestatCmd.Flags().IntP("bins", "", 50,
		formatFlagUsage(`Number of bins of histograms.`))

	pestatCmd.SetUsageTemplate(usageTemplate("-d <index dir> {<read1.fq.gz> <read2.fq.gz> | -p <reads.fq.gz>} [--plot hist.png]"))
}
