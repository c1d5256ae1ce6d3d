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
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/smemap/smemap/mem"
	"github.com/spf13/cobra"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align short reads against an index",
	Long: `Align short reads against an index

Input:
  1. Single-end reads: one plain or gzipped FASTA/Q file (or stdin).
  2. Paired-end reads: two files, or one interleaved file with -p/--smart-pairing,
     where consecutive reads with the same name are treated as a pair and
     the others as single-end reads.

Output:
  SAM records, with tags of NM, MD, MC, AS, XS, SA and XA.

Attentions:
  1. Options could be given in a TOML file via --config, which is created
     by --save-config. Flags given in the command line override it.
  2. The insert size distribution is estimated from each batch, unless it
     is given via -I/--insert-size.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		fhLog := setupLog(opt)

		verbose := opt.Verbose
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

		// ---------------------------------------------------------------

		dbDir := getFlagPath(cmd, "index")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}
		outFile := getFlagPath(cmd, "out-file")
		if outFile == "" {
			outFile = "-"
		}

		aopt := getAlignOptions(cmd, opt.NumCPUs)
		if file := getFlagPath(cmd, "save-config"); file != "" {
			checkError(aopt.Save(file))
			if outputLog {
				log.Infof("options saved to: %s", file)
			}
			return
		}

		var pes0 *[4]mem.PeStat
		if s := getFlagString(cmd, "insert-size"); s != "" {
			pes, err := parseInsertSize(s)
			checkError(errors.Wrap(err, "-I/--insert-size"))
			pes0 = &pes
		}

		files := getFileList(args, true)
		if len(files) > 2 {
			checkError(fmt.Errorf("at most two read files are accepted, %d given", len(files)))
		}
		if aopt.Flag&mem.FlagSmartPE > 0 && len(files) > 1 {
			log.Warningf("the second read file is ignored with -p/--smart-pairing: %s", files[1])
			files = files[:1]
		}
		if len(files) == 2 {
			aopt.Flag |= mem.FlagPE
		}

		outFileClean := filepath.Clean(outFile)
		for _, file := range files {
			if !isStdin(file) && filepath.Clean(file) == outFileClean {
				checkError(fmt.Errorf("out file should not be one of the input file"))
			}
		}

		// ---------------------------------------------------------------
		// loading index

		if outputLog {
			log.Infof("SMEMap v%s", VERSION)
			log.Info()
			log.Infof("loading index: %s", dbDir)
		}

		ref, err := mem.NewReferenceFromDir(dbDir)
		checkError(err)

		if outputLog {
			log.Infof("  %d contigs with %d bases, %d ALT contigs", len(ref.Meta.Contigs), ref.LPac(), ref.Meta.NumAlts)
			log.Infof("index loaded in %s", time.Since(timeStart))
			log.Info()
		}

		var backend mem.Backend
		if getFlagBool(cmd, "offload") {
			backend = mem.NewOffload(&mem.CPUDevice{
				Threads:  opt.NumCPUs,
				LaneSize: getFlagPositiveInt(cmd, "lane-size"),
			})
		}
		mapper := mem.NewMapper(aopt, ref, backend)
		if outputLog {
			log.Infof("extension backend: %s", mapper.Backend().Name())
			if aopt.Flag&mem.FlagSmartPE > 0 {
				log.Info("input: interleaved reads with smart pairing")
			} else if aopt.Flag&mem.FlagPE > 0 {
				log.Info("input: paired-end reads")
			} else {
				log.Info("input: single-end reads")
			}
			log.Info("aligning ...")
		}

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

		header := make([]byte, 0, 1024)
		header = append(header, "@HD\tVN:1.6\tSO:unsorted\tGO:query\n"...)
		header = ref.AppendSAMHeader(header)
		header = append(header, fmt.Sprintf("@PG\tID:smemap\tPN:smemap\tVN:%s\tCL:%s\n",
			VERSION, strings.Join(os.Args, " "))...)
		outfh.Write(header)

		// ---------------------------------------------------------------
		// aligning

		br, err := newBatchReader(files, int64(aopt.ChunkSize)*int64(aopt.NumThreads),
			aopt.Flag&mem.FlagSmartPE > 0, getFlagBool(cmd, "comment"))
		checkError(err)
		defer br.Close()

		// reading the next batch while aligning the current one
		type batch struct {
			reads []*mem.Read
			err   error
		}
		ch := make(chan batch, 1)
		go func() {
			for {
				reads, err := br.Next()
				if len(reads) > 0 || err != nil {
					ch <- batch{reads: reads, err: err}
				}
				if err != nil || len(reads) == 0 {
					close(ch)
					return
				}
			}
		}()

		timeStart1 := time.Now()
		var total, mapped int64
		var speed float64 // million reads per minute
		buf := make([]byte, 0, 1<<20)
		for b := range ch {
			if b.err != nil && b.err != io.EOF {
				checkError(b.err)
			}
			if len(b.reads) == 0 {
				continue
			}

			_, err = mapper.ProcessSeqs(b.reads, total, pes0)
			checkError(err)

			for _, r := range b.reads {
				buf = r.AppendSAM(buf[:0], aopt, ref)
				outfh.Write(buf)
				if len(r.Alns) > 0 && !r.Alns[0].Unmapped() {
					mapped++
				}
			}
			total += int64(len(b.reads))

			if verbose {
				speed = float64(total) / 1000000 / time.Since(timeStart1).Minutes()
				fmt.Fprintf(os.Stderr, "processed reads: %d, speed: %.3f million reads per minute\r", total, speed)
			}
		}

		if outputLog {
			if verbose {
				fmt.Fprintf(os.Stderr, "\n")
			}
			speed = float64(total) / 1000000 / time.Since(timeStart1).Minutes()
			log.Infof("")
			log.Infof("processed reads: %d, speed: %.3f million reads per minute", total, speed)
			if total > 0 {
				log.Infof("%.4f%% (%d/%d) reads mapped", float64(mapped)/float64(total)*100, mapped, total)
			}
			log.Infof("done aligning")
			if outFile != "-" {
				log.Infof("alignments saved to: %s", outFile)
			}
		}
	},
}

// getAlignOptions returns the default options, overridden by a config
// file and then flags given in the command line.
func getAlignOptions(cmd *cobra.Command, threads int) *mem.Options {
	var aopt *mem.Options
	var err error
	if file := getFlagPath(cmd, "config"); file != "" {
		aopt, err = mem.LoadOptions(file)
		checkError(err)
	} else {
		aopt = mem.DefaultOptions()
	}
	aopt.NumThreads = threads

	fs := cmd.Flags()
	setInt := func(flag string, v *int) {
		if fs.Changed(flag) {
			*v = getFlagInt(cmd, flag)
			if *v < 0 {
				checkError(fmt.Errorf("value of flag --%s should be greater than or equal to 0", flag))
			}
		}
	}
	setFloat := func(flag string, v *float64) {
		if fs.Changed(flag) {
			*v = getFlagNonNegativeFloat64(cmd, flag)
		}
	}
	setFlag := func(flag string, bit int) {
		if fs.Changed(flag) {
			if getFlagBool(cmd, flag) {
				aopt.Flag |= bit
			} else {
				aopt.Flag &^= bit
			}
		}
	}

	// seeding and chaining
	setInt("min-seed-len", &aopt.MinSeedLen)
	setInt("band-width", &aopt.W)
	setInt("z-drop", &aopt.ZDrop)
	setFloat("split-factor", &aopt.SplitFactor)
	setInt("split-width", &aopt.SplitWidth)
	setInt("max-occ", &aopt.MaxOcc)
	setInt("min-chain-weight", &aopt.MinChainWeight)
	setInt("max-chain-extend", &aopt.MaxChainExtend)
	setInt("max-chain-gap", &aopt.MaxChainGap)
	setFloat("drop-ratio", &aopt.DropRatio)
	setFloat("mask-level", &aopt.MaskLevel)
	if fs.Changed("max-mem-intv") {
		aopt.MaxMemIntv = int64(getFlagNonNegativeInt(cmd, "max-mem-intv"))
	}

	// scoring
	setInt("match-score", &aopt.A)
	setInt("mismatch-penalty", &aopt.B)
	if fs.Changed("gap-open") {
		aopt.ODel, aopt.OIns, _ = getFlagIntPair(cmd, "gap-open")
	}
	if fs.Changed("gap-ext") {
		aopt.EDel, aopt.EIns, _ = getFlagIntPair(cmd, "gap-ext")
	}
	if fs.Changed("clip-penalty") {
		aopt.PenClip5, aopt.PenClip3, _ = getFlagIntPair(cmd, "clip-penalty")
	}
	setInt("unpaired-penalty", &aopt.PenUnpaired)
	if aopt.A < 1 {
		checkError(fmt.Errorf("value of flag --match-score should be greater than 0"))
	}

	// paired-end
	setInt("max-mate-sw", &aopt.MaxMateSW)
	setFlag("no-rescue", mem.FlagNoRescue)
	setFlag("no-pairing", mem.FlagNoPairing)
	setFlag("smart-pairing", mem.FlagSmartPE)
	if aopt.Flag&mem.FlagSmartPE > 0 {
		aopt.Flag |= mem.FlagPE
	}

	// output
	setInt("min-score", &aopt.T)
	if fs.Changed("max-xa-hits") {
		var paired bool
		aopt.MaxXAHits, aopt.MaxXAHitsAlt, paired = getFlagIntPair(cmd, "max-xa-hits")
		if !paired {
			aopt.MaxXAHitsAlt = mem.DefaultOptions().MaxXAHitsAlt
		}
	}
	setFloat("xa-drop-ratio", &aopt.XADropRatio)
	setFlag("all", mem.FlagAll)
	setFlag("mark-secondary", mem.FlagNoMulti)
	setFlag("soft-clip", mem.FlagSoftClip)
	setFlag("ref-header", mem.FlagRefHeader)

	setInt("chunk-size", &aopt.ChunkSize)
	if aopt.ChunkSize < 1 {
		checkError(fmt.Errorf("value of flag --chunk-size should be greater than 0"))
	}

	aopt.Update()
	return aopt
}

// parseInsertSize parses "mean[,std[,max[,min]]]" of FR pairs.
// The standard deviation defaults to 10% of the mean, and the bounds
// default to 4 standard deviations around the mean.
func parseInsertSize(s string) ([4]mem.PeStat, error) {
	var pes [4]mem.PeStat
	for i := range pes {
		pes[i].Failed = true
	}
	items := strings.Split(s, ",")
	if len(items) > 4 {
		return pes, errors.Errorf("too many values: %s", s)
	}
	vals := make([]float64, len(items))
	var err error
	for i, item := range items {
		if vals[i], err = strconv.ParseFloat(strings.TrimSpace(item), 64); err != nil {
			return pes, errors.Wrapf(err, "invalid insert size: %s", s)
		}
	}
	r := &pes[1]
	r.Failed = false
	r.Avg = vals[0]
	if r.Avg <= 0 {
		return pes, errors.Errorf("mean insert size should be positive: %s", s)
	}
	r.Std = r.Avg * .1
	if len(vals) > 1 {
		r.Std = vals[1]
	}
	r.High = int(r.Avg + 4*r.Std + .499)
	if len(vals) > 2 {
		r.High = int(vals[2])
	}
	r.Low = int(r.Avg - 4*r.Std + .499)
	if len(vals) > 3 {
		r.Low = int(vals[3])
	}
	r.Low = max(r.Low, 1)
	if r.High < r.Low {
		return pes, errors.Errorf("the maximum insert size is smaller than the minimum: %s", s)
	}
	log.Infof("mean insert size: %.3f, standard deviation: %.3f, max: %d, min: %d", r.Avg, r.Std, r.High, r.Low)
	return pes, nil
}

// batchReader reads batches of reads with a given number of bases.
// Reads of two files are interleaved.
type batchReader struct {
	readers []*fastx.Reader
	chunk   int64
	smartPE bool
	comment bool

	pending *mem.Read
	eof     bool
}

func newBatchReader(files []string, chunk int64, smartPE, comment bool) (*batchReader, error) {
	br := &batchReader{chunk: chunk, smartPE: smartPE, comment: comment}
	for _, file := range files {
		r, err := fastx.NewReader(nil, file, "")
		if err != nil {
			br.Close()
			return nil, errors.Wrap(err, file)
		}
		br.readers = append(br.readers, r)
	}
	return br, nil
}

// Close closes all files.
func (br *batchReader) Close() {
	for _, r := range br.readers {
		r.Close()
	}
	br.readers = nil
}

func (br *batchReader) read1(r *fastx.Reader) (*mem.Read, error) {
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	read := &mem.Read{
		Name: mem.TrimReadNo(string(record.ID)),
		Seq:  append([]byte{}, record.Seq.Seq...),
	}
	if len(record.Seq.Qual) > 0 {
		read.Qual = append([]byte{}, record.Seq.Qual...)
	}
	if br.comment {
		read.Comment = headerComment(record.Name, record.ID)
	}
	return read, nil
}

// Next returns the next batch, and io.EOF after the last one.
func (br *batchReader) Next() ([]*mem.Read, error) {
	if br.eof {
		return nil, io.EOF
	}
	reads := make([]*mem.Read, 0, 1024)
	var bases int64
	if br.pending != nil {
		reads = append(reads, br.pending)
		bases += int64(len(br.pending.Seq))
		br.pending = nil
	}

	paired := len(br.readers) == 2
	var r1, r2 *mem.Read
	var err, err2 error
	for bases < br.chunk {
		r1, err = br.read1(br.readers[0])
		if paired {
			r2, err2 = br.read1(br.readers[1])
			if err == io.EOF && err2 != io.EOF || err != io.EOF && err2 == io.EOF {
				return reads, errors.New("paired files have different numbers of reads")
			}
			if err == nil {
				err = err2
			}
		}
		if err != nil {
			if err == io.EOF {
				br.eof = true
				return reads, nil
			}
			return reads, err
		}
		reads = append(reads, r1)
		bases += int64(len(r1.Seq))
		if paired {
			reads = append(reads, r2)
			bases += int64(len(r2.Seq))
		}
	}

	// do not split a pair of interleaved reads
	if br.smartPE && len(reads) > 0 {
		r1, err = br.read1(br.readers[0])
		if err == io.EOF {
			br.eof = true
			return reads, nil
		}
		if err != nil {
			return reads, err
		}
		if r1.Name == reads[len(reads)-1].Name {
			reads = append(reads, r1)
		} else {
			br.pending = r1
		}
	}
	return reads, nil
}

func init() {
	RootCmd.AddCommand(alignCmd)

	alignCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "smemap index".`))

	alignCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))

	alignCmd.Flags().StringP("config", "", "",
		formatFlagUsage(`TOML file of alignment options.`))

	alignCmd.Flags().StringP("save-config", "", "",
		formatFlagUsage(`Save alignment options into a TOML file and exit.`))

	// -----------------------------  algorithm  -----------------------------

	alignCmd.Flags().IntP("min-seed-len", "k", 19,
		formatFlagUsage(`Minimum seed length.`))

	alignCmd.Flags().IntP("band-width", "w", 100,
		formatFlagUsage(`Band width for banded alignment.`))

	alignCmd.Flags().IntP("z-drop", "", 100,
		formatFlagUsage(`Off-diagonal X-dropoff.`))

	alignCmd.Flags().Float64P("split-factor", "r", 1.5,
		formatFlagUsage(`Look for internal seeds inside a seed longer than min-seed-len * split-factor.`))

	alignCmd.Flags().IntP("split-width", "", 10,
		formatFlagUsage(`Look for internal seeds inside a seed with no more occurrences than this.`))

	alignCmd.Flags().IntP("max-mem-intv", "y", 20,
		formatFlagUsage(`Seed occurrence threshold for the third round of seeding.`))

	alignCmd.Flags().IntP("max-occ", "c", 500,
		formatFlagUsage(`Skip seeds with more occurrences than this.`))

	alignCmd.Flags().Float64P("drop-ratio", "D", 0.5,
		formatFlagUsage(`Drop chains shorter than this fraction of the longest overlapping chain.`))

	alignCmd.Flags().IntP("min-chain-weight", "W", 0,
		formatFlagUsage(`Discard a chain if seeded bases are shorter than this.`))

	alignCmd.Flags().IntP("max-chain-extend", "", 1<<30,
		formatFlagUsage(`Maximum number of overlapping chains to extend.`))

	alignCmd.Flags().IntP("max-chain-gap", "", 10000,
		formatFlagUsage(`Maximum gap between seeds in a chain.`))

	alignCmd.Flags().Float64P("mask-level", "", 0.5,
		formatFlagUsage(`Fraction of overlap on the query for a hit to be treated as a secondary one.`))

	alignCmd.Flags().IntP("max-mate-sw", "m", 50,
		formatFlagUsage(`Perform at most this rounds of mate rescues for each read.`))

	alignCmd.Flags().BoolP("no-rescue", "S", false,
		formatFlagUsage(`Skip mate rescue.`))

	alignCmd.Flags().BoolP("no-pairing", "P", false,
		formatFlagUsage(`Skip pairing. Mate rescue is performed unless -S/--no-rescue is also given.`))

	alignCmd.Flags().BoolP("offload", "", false,
		formatFlagUsage(`Extend seeds of a whole batch in bulk on the offload device.`))

	alignCmd.Flags().IntP("lane-size", "", 64,
		formatFlagUsage(`Number of extension tasks in a lane of the offload device.`))

	// -----------------------------  scoring  -----------------------------

	alignCmd.Flags().IntP("match-score", "A", 1,
		formatFlagUsage(`Score for a sequence match.`))

	alignCmd.Flags().IntP("mismatch-penalty", "B", 4,
		formatFlagUsage(`Penalty for a mismatch.`))

	alignCmd.Flags().StringP("gap-open", "O", "6,6",
		formatFlagUsage(`Gap open penalties for deletions and insertions.`))

	alignCmd.Flags().StringP("gap-ext", "E", "1,1",
		formatFlagUsage(`Gap extension penalty. A gap of size k costs gap-open + k*gap-ext.`))

	alignCmd.Flags().StringP("clip-penalty", "L", "5,5",
		formatFlagUsage(`Penalty for 5'- and 3'-end clipping.`))

	alignCmd.Flags().IntP("unpaired-penalty", "U", 17,
		formatFlagUsage(`Penalty for an unpaired read pair.`))

	// -----------------------------  input/output  -----------------------------

	alignCmd.Flags().BoolP("smart-pairing", "p", false,
		formatFlagUsage(`Smart pairing of an interleaved file, the second file is ignored.`))

	alignCmd.Flags().StringP("insert-size", "I", "",
		formatFlagUsage(`Insert size distribution of FR pairs: mean[,std[,max[,min]]].`))

	alignCmd.Flags().IntP("min-score", "T", 30,
		formatFlagUsage(`Minimum score to output.`))

	alignCmd.Flags().StringP("max-xa-hits", "", "5,200",
		formatFlagUsage(`If there are fewer hits than this with a score at least xa-drop-ratio of the best, output them all in the XA tag. The second value is used for hits on ALT contigs.`))

	alignCmd.Flags().Float64P("xa-drop-ratio", "", 0.8,
		formatFlagUsage(`Minimum score ratio to the best hit for a hit in the XA tag.`))

	alignCmd.Flags().BoolP("all", "a", false,
		formatFlagUsage(`Output all alignments for single-end or unpaired paired-end reads.`))

	alignCmd.Flags().BoolP("comment", "C", false,
		formatFlagUsage(`Append the FASTA/Q comment to SAM records.`))

	alignCmd.Flags().BoolP("ref-header", "V", false,
		formatFlagUsage(`Output the reference FASTA header in the XR tag.`))

	alignCmd.Flags().BoolP("soft-clip", "Y", false,
		formatFlagUsage(`Use soft clipping for supplementary alignments.`))

	alignCmd.Flags().BoolP("mark-secondary", "M", false,
		formatFlagUsage(`Mark shorter split hits as secondary.`))

	alignCmd.Flags().IntP("chunk-size", "K", 10000000,
		formatFlagUsage(`Number of bases of each batch for each thread.`))

	alignCmd.SetUsageTemplate(usageTemplate("-d <index dir> <read1.fq.gz> [read2.fq.gz] [-o out.sam.gz]"))
}
