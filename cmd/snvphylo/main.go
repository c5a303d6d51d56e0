// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

/*
snvphylo computes per-cluster presence/absence log-likelihoods of SNVs,
conditioned on each cluster's allele-specific copy number, and optionally runs
a maximum-likelihood Dollo tree search over them.

  snvphylo loglik -snvs snv_counts.tsv -clusters clusters.tsv \
      -segments cn_segments.tsv -out snv_log_likelihoods.tsv
  snvphylo mltree -snvs ... -clusters ... -segments ... \
      -tree-out tree.newick -posteriors-out posteriors.tsv
*/

import (
	"fmt"
	"log"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/marcjwilliams1/scgenome/dollo"
	"github.com/marcjwilliams1/scgenome/snvphylo"
	"v.io/x/lib/cmdline"
)

type inputFlags struct {
	snvsPath     *string
	clustersPath *string
	segmentsPath *string
}

// addCommonFlags binds the input and Opts flags shared by all subcommands.
func addCommonFlags(cmd *cmdline.Command, opts *snvphylo.Opts) inputFlags {
	in := inputFlags{
		snvsPath:     cmd.Flags.String("snvs", "", "SNV read count table (sample_id, chrom, coord, ref, alt, ref_counts, alt_counts); required"),
		clustersPath: cmd.Flags.String("clusters", "", "Cluster assignment table (sample_id, cluster_id); required"),
		segmentsPath: cmd.Flags.String("segments", "", "Copy-number segment table (chr, start, end, cluster_id, major_cn, minor_cn, total_cn); required"),
	}
	cmd.Flags.StringVar(&opts.BedPath, "bed", snvphylo.DefaultOpts.BedPath, "Restrict to SNVs in this BED file (SNV coords are 1-based)")
	cmd.Flags.BoolVar(&opts.BedOneBased, "bed-one-based", snvphylo.DefaultOpts.BedOneBased, "Interpret -bed intervals as 1-based [start, end] instead of 0-based [start, end)")
	cmd.Flags.StringVar(&opts.Region, "region", snvphylo.DefaultOpts.Region, "Restrict to SNVs in these comma-separated regions, each formatted as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
	cmd.Flags.BoolVar(&opts.DropUnassigned, "drop-unassigned", snvphylo.DefaultOpts.DropUnassigned, "Drop (variant, cluster) rows not covered by a copy-number segment")
	cmd.Flags.Float64Var(&opts.ErrorRate, "error-rate", snvphylo.DefaultOpts.ErrorRate, "Sequencing error rate, in (0, 1)")
	cmd.Flags.StringVar(&opts.Format, "format", snvphylo.DefaultOpts.Format, "Output format; 'tsv', 'tsv-gz' and 'tsv-bgz' supported")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", snvphylo.DefaultOpts.Parallelism, "Maximum number of simultaneous jobs; 0 = runtime.NumCPU()")
	return in
}

func (f inputFlags) inputs() (snvphylo.Inputs, error) {
	in := snvphylo.Inputs{
		SnvReadsPath:   *f.snvsPath,
		ClustersPath:   *f.clustersPath,
		CopyNumberPath: *f.segmentsPath,
	}
	if in.SnvReadsPath == "" || in.ClustersPath == "" || in.CopyNumberPath == "" {
		return in, fmt.Errorf("-snvs, -clusters and -segments are required")
	}
	return in, nil
}

func newCmdLoglik() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "loglik",
		Short: "Compute per-cluster SNV presence/absence log-likelihoods",
	}
	opts := snvphylo.DefaultOpts
	flags := addCommonFlags(cmd, &opts)
	outPath := cmd.Flags.String("out", "snv_log_likelihoods.tsv", "Output path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("loglik takes no positional arguments, but got %v", argv)
		}
		in, err := flags.inputs()
		if err != nil {
			return err
		}
		return snvphylo.Run(vcontext.Background(), in, *outPath, &opts)
	})
	return cmd
}

func newCmdMLTree() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "mltree",
		Short: "Compute SNV log-likelihoods and find the maximum-likelihood Dollo tree",
		Long: `
mltree runs an external tree search program on the likelihood table.  See
package dollo for the program's calling convention.`,
	}
	opts := snvphylo.DefaultOpts
	flags := addCommonFlags(cmd, &opts)
	searcher := dollo.CommandSearcher{}
	cmd.Flags.StringVar(&searcher.Path, "dollo-cmd", dollo.DefaultProgram, "Tree search program; looked up in $PATH unless it contains a path separator")
	cmd.Flags.StringVar(&searcher.TempDir, "temp-dir", "", "Directory to write temporary files to (default os.TempDir())")
	out := snvphylo.MLTreeOutputs{}
	cmd.Flags.StringVar(&out.TablePath, "table-out", "", "If set, also write the likelihood table here")
	cmd.Flags.StringVar(&out.TreePath, "tree-out", "tree.newick", "Output path of the selected tree")
	cmd.Flags.StringVar(&out.PosteriorsPath, "posteriors-out", "posteriors.tsv", "Output path of the per-(variant, cluster) presence posteriors")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("mltree takes no positional arguments, but got %v", argv)
		}
		in, err := flags.inputs()
		if err != nil {
			return err
		}
		return snvphylo.RunMLTree(vcontext.Background(), in, out, &searcher, &opts)
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "snvphylo",
			Short:    "SNV presence/absence likelihoods for Dollo phylogenies of tumor clusters",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdLoglik(),
				newCmdMLTree(),
			},
		})
}
