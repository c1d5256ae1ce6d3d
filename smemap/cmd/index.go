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
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/smemap/smemap/index/fmindex"
	"github.com/shenwei356/smemap/smemap/mem"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Generate an index from reference FASTA/Q sequences",
	Long: `Generate an index from reference FASTA/Q sequences

Input:
  1. Input plain or gzipped FASTA/Q files can be given via positional
     arguments or the flag -X/--infile-list with the list of input files,
  2. Or a directory containing sequence files via the flag -I/--in-dir,
     with multiple-level sub-directories allowed. A regular expression
     for matching sequencing files is available via the flag -r/--file-regexp.

Output (in the directory given by -O/--out-dir):
  refs.toml   Metadata of contigs.
  refs.2bit   2-bit packed contigs, ambiguous bases are saved separately.
  refs.fmi    FM-index of both strands.

Attentions:
  1. Sequence IDs are used as contig names, which should be distinct.
  2. Ambiguous bases are converted to random bases in the FM-index.
  3. Unwanted sequences like plasmid can be filtered out by
     the name via regular expressions (-B/--seq-name-filter).
  4. ALT contigs are given via --alt, with their names in the first
     column of a plain list or a SAM file.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		fhLog := setupLog(opt)
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// basic flags

		saIntv := getFlagPositiveInt(cmd, "sa-intv")
		outDir := getFlagPath(cmd, "out-dir")
		force := getFlagBool(cmd, "force")
		skipFileCheck := getFlagBool(cmd, "skip-file-check")
		altFile := getFlagPath(cmd, "alt")

		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}

		var err error

		inDir := getFlagPath(cmd, "in-dir")

		outDir = filepath.Clean(outDir)

		if filepath.Clean(inDir) == outDir {
			checkError(fmt.Errorf("intput and output paths should not be the same: %s", outDir))
		}

		readFromDir := inDir != ""
		if readFromDir {
			var isDir bool
			isDir, err = pathutil.IsDir(inDir)
			if err != nil {
				checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			}
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
		}

		reFileStr := getFlagString(cmd, "file-regexp")
		reFile, err := compileIgnoreCase(reFileStr)
		checkError(err)

		reSeqNameStrs := getFlagStringSlice(cmd, "seq-name-filter")
		reSeqNames := make([]*regexp.Regexp, 0, len(reSeqNameStrs))
		for _, kw := range reSeqNameStrs {
			re, err := compileIgnoreCase(kw)
			checkError(err)
			reSeqNames = append(reSeqNames, re)
		}

		// ---------------------------------------------------------------
		// input files

		if opt.Verbose || opt.Log2File {
			log.Infof("SMEMap v%s", VERSION)
			log.Info()
			log.Info("checking input files ...")
		}

		var files []string
		if readFromDir {
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			if err != nil {
				checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			}
			if len(files) == 0 {
				log.Warningf("  no files matching regular expression: %s", reFileStr)
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, !skipFileCheck, "infile-list", !skipFileCheck)
			if opt.Verbose || opt.Log2File {
				if len(files) == 1 && isStdin(files[0]) {
					log.Info("  no files given, reading from stdin")
				}
			}
		}
		if len(files) < 1 {
			checkError(fmt.Errorf("FASTA/Q files needed"))
		} else if opt.Verbose || opt.Log2File {
			log.Infof("  %d input file(s) given", len(files))
		}

		var alts []string
		if altFile != "" {
			alts, err = readAltNames(altFile)
			checkError(errors.Wrapf(err, "read ALT contigs: %s", altFile))
		}

		makeOutDir(outDir, force)

		// ---------------------------------------------------------------
		// reading sequences

		if opt.Verbose || opt.Log2File {
			log.Info()
			log.Info("reading sequences ...")
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(files)),
				mpb.PrependDecorators(
					decor.Name("processed files: ", decor.WC{W: len("processed files: "), C: decor.DindentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.EwmaETA(decor.ET_STYLE_GO, 3),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
		}

		names := make([]string, 0, 1024)
		comments := make([]string, 0, 1024)
		seqs := make([][]byte, 0, 1024)
		var nBases int64
		var startTime time.Time
		for _, file := range files {
			startTime = time.Now()
			n, err := readContigs(file, reSeqNames, &names, &comments, &seqs)
			checkError(err)
			for _, s := range seqs[len(seqs)-n:] {
				nBases += int64(len(s))
			}
			if opt.Verbose {
				bar.EwmaIncrBy(1, time.Since(startTime))
			}
		}
		if opt.Verbose {
			pbs.Wait()
		}
		if len(seqs) == 0 {
			checkError(fmt.Errorf("no valid sequences found"))
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("  %d contigs with %d bases in total", len(seqs), nBases)
			log.Info()
			log.Info("building index ...")
		}

		// ---------------------------------------------------------------
		// index

		ref, err := mem.BuildReference(names, seqs, nil, saIntv)
		checkError(err)
		for i, c := range comments {
			ref.Meta.Contigs[i].Comment = c
		}
		if len(alts) > 0 {
			n := ref.Meta.MarkAlts(alts)
			if opt.Verbose || opt.Log2File {
				log.Infof("  %d ALT contigs marked", n)
			}
		}

		checkError(ref.WriteToDir(outDir, seqs))

		if opt.Verbose || opt.Log2File {
			log.Infof("finished building index in %s from %d files", time.Since(timeStart), len(files))
			log.Info()
			log.Infof("index saved: %s", outDir)
		}
	},
}

// readContigs reads sequences of a file and appends them, skipping the
// ones matching any of the filters. It returns the number of new contigs.
func readContigs(file string, filters []*regexp.Regexp, names, comments *[]string, seqs *[][]byte) (int, error) {
	fastxReader, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return 0, errors.Wrap(err, file)
	}
	defer fastxReader.Close()

	var record *fastx.Record
	var n int
	var ignore bool
	for {
		record, err = fastxReader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return n, errors.Wrap(err, file)
		}

		ignore = false
		for _, re := range filters {
			if re.Match(record.Name) {
				ignore = true
				break
			}
		}
		if ignore || len(record.Seq.Seq) == 0 {
			continue
		}

		*names = append(*names, string(record.ID))
		*comments = append(*comments, headerComment(record.Name, record.ID))
		*seqs = append(*seqs, append([]byte{}, record.Seq.Seq...))
		n++
	}
	return n, nil
}

func init() {
	RootCmd.AddCommand(indexCmd)

	// -----------------------------  input  -----------------------------

	indexCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line). If given, they are appended to files from CLI arguments.`))

	indexCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA/Q files. Directory symlinks are followed.`))

	indexCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	indexCmd.Flags().StringSliceP("seq-name-filter", "B", []string{},
		formatFlagUsage(`List of regular expressions for filtering out sequences by header/name, case ignored.`))

	indexCmd.Flags().BoolP("skip-file-check", "S", false,
		formatFlagUsage(`Skip input file checking when given files or a file list.`))

	indexCmd.Flags().StringP("alt", "", "",
		formatFlagUsage(`File of ALT contig names, in the first column of a plain list or a SAM file.`))

	// -----------------------------  output  -----------------------------

	indexCmd.Flags().StringP("out-dir", "O", "",
		formatFlagUsage(`Output directory.`))

	indexCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existed output directory.`))

	// -----------------------------  FM-index  -----------------------------

	indexCmd.Flags().IntP("sa-intv", "", fmindex.DefaultSAInterval,
		formatFlagUsage(`Interval of sampled suffix array values. Smaller values use more memory and speed up locating seeds.`))

	indexCmd.SetUsageTemplate(usageTemplate("{[-I <seqs dir>] | <seq files> | -X <file list>} -O <out dir> [--alt <file>]"))
}
