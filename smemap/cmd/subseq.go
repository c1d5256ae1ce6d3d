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
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/smemap/smemap/index/refseq"
	"github.com/shenwei356/smemap/smemap/index/twobit"
	"github.com/shenwei356/smemap/smemap/mem"
	"github.com/spf13/cobra"
)

var subseqCmd = &cobra.Command{
	Use:   "subseq",
	Short: "Extract subsequence via contig name, position and strand",
	Long: `Extract subsequence via contig name, position and strand

Attention:
  1. Positions are 1-based, and the end is included.
  2. Ambiguous bases are restored from the index.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		dbDir := getFlagPath(cmd, "index")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}

		refname := getFlagString(cmd, "ref-name")
		if refname == "" {
			checkError(fmt.Errorf("flag -n/--ref-name needed"))
		}

		region := getFlagString(cmd, "region")
		if region == "" {
			checkError(fmt.Errorf("flag -r/--region needed"))
		}
		revcom := getFlagBool(cmd, "revcom")
		lineWidth := getFlagNonNegativeInt(cmd, "line-width")
		outFile := getFlagPath(cmd, "out-file")

		start, end, err := parseRegion(region)
		checkError(err)

		// ---------------------------------------------------------------

		meta, err := refseq.ReadMeta(filepath.Join(dbDir, mem.FileMeta))
		checkError(err)
		rid := meta.Rid(refname)
		if rid < 0 {
			checkError(fmt.Errorf("contig not found: %s", refname))
		}
		if int64(start) > meta.Contigs[rid].Len {
			checkError(fmt.Errorf("begin position (%d) is larger than the contig length (%d)", start, meta.Contigs[rid].Len))
		}
		end = min(end, int(meta.Contigs[rid].Len))

		rdr, err := twobit.NewReader(filepath.Join(dbDir, mem.FilePac))
		checkError(err)
		tSeq, err := rdr.SubSeq(rid, start-1, end-1)
		if err != nil {
			checkError(fmt.Errorf("failed to read subsequence: %s", err))
		}

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		s, err := seq.NewSeq(seq.DNAredundant, *tSeq)
		checkError(err)
		if revcom {
			s.RevComInplace()
		}

		fmt.Fprintf(outfh, ">%s:%d-%d\n", refname, start, end)
		outfh.Write(s.FormatSeq(lineWidth))
		outfh.WriteByte('\n')

		twobit.RecycleSeq(tSeq)
		checkError(rdr.Close())
	},
}

var reRegion = regexp.MustCompile(`^\d+:\d+$`)

// parseRegion parses a 1-based region "begin:end".
func parseRegion(region string) (int, int, error) {
	if !reRegion.MatchString(region) {
		return 0, 0, fmt.Errorf(`invalid region: %s. type "smemap subseq -h" for more examples`, region)
	}
	r := strings.Split(region, ":")
	start, err := strconv.Atoi(r[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.Atoi(r[1])
	if err != nil {
		return 0, 0, err
	}
	if start <= 0 || end <= 0 {
		return 0, 0, fmt.Errorf("both begin and end position should not be <= 0")
	}
	if start > end {
		return 0, 0, fmt.Errorf("begin position should be <= end position")
	}
	return start, end, nil
}

func init() {
	RootCmd.AddCommand(subseqCmd)

	subseqCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "smemap index".`))

	subseqCmd.Flags().StringP("ref-name", "n", "",
		formatFlagUsage(`Contig name.`))

	subseqCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	subseqCmd.Flags().StringP("region", "r", "",
		formatFlagUsage(`Region of the subsequence (1-based), e.g., 101:200.`))

	subseqCmd.Flags().BoolP("revcom", "R", false,
		formatFlagUsage("Extract subsequence on the negative strand."))

	subseqCmd.Flags().IntP("line-width", "w", 60,
		formatFlagUsage("Line width of sequence (0 for no wrap)."))

	subseqCmd.SetUsageTemplate(usageTemplate("-d <index dir> -n <contig> -r <begin:end>"))
}
