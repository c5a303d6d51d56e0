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

package snvphylo

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/marcjwilliams1/scgenome/interval"
)

// Inputs names the input tables of a run.
type Inputs struct {
	SnvReadsPath   string
	ClustersPath   string
	CopyNumberPath string
}

// loadRegions returns the target regions named by opts.BedPath and
// opts.Region, and false if neither is set.
func loadRegions(ctx context.Context, opts *Opts) (interval.RegionSet, bool, error) {
	switch {
	case opts.BedPath != "" && opts.Region != "":
		return interval.RegionSet{}, false, fmt.Errorf("snvphylo: bed and region options cannot both be set")
	case opts.BedPath != "":
		set, err := interval.NewRegionSetFromPath(ctx, opts.BedPath, interval.RegionOpts{OneBasedInput: opts.BedOneBased})
		return set, true, err
	case opts.Region != "":
		set, err := interval.ParseRegionStrings(opts.Region)
		return set, true, err
	}
	return interval.RegionSet{}, false, nil
}

// ComputeTable loads the input tables and returns the likelihood table.
func ComputeTable(ctx context.Context, in Inputs, opts *Opts) ([]VariantClusterRecord, error) {
	if err := ValidateErrorRate(opts.ErrorRate); err != nil {
		return nil, err
	}
	regions, haveRegions, err := loadRegions(ctx, opts)
	if err != nil {
		return nil, err
	}
	var (
		reads       []SnvRead
		assignments []ClusterAssignment
		segs        []CopyNumberSegment
	)
	// The three tables are independent.
	err = traverse.Each(3, func(i int) (err error) {
		switch i {
		case 0:
			reads, err = LoadSnvReads(ctx, in.SnvReadsPath)
		case 1:
			assignments, err = LoadClusterAssignments(ctx, in.ClustersPath)
		case 2:
			segs, err = LoadCopyNumberSegments(ctx, in.CopyNumberPath)
		}
		return
	})
	if err != nil {
		return nil, err
	}
	log.Printf("ComputeTable: loaded %d read row(s), %d cluster assignment(s), %d copy-number segment(s)",
		len(reads), len(assignments), len(segs))
	if haveRegions {
		reads = FilterReads(reads, regions)
	}
	return BuildLikelihoodTable(reads, assignments, segs, opts)
}

// Run computes the likelihood table from the input tables and writes it to
// outPath in opts.Format.
func Run(ctx context.Context, in Inputs, outPath string, opts *Opts) error {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	records, err := ComputeTable(ctx, in, opts)
	if err != nil {
		return err
	}
	if err = SaveLikelihoodTable(ctx, outPath, records, format, opts.Parallelism); err != nil {
		return err
	}
	log.Printf("Run: wrote %d record(s) to %s", len(records), outPath)
	return nil
}

// MLTreeOutputs names the outputs of RunMLTree.  Empty paths are skipped.
type MLTreeOutputs struct {
	TablePath      string
	TreePath       string
	PosteriorsPath string
}

// RunMLTree computes the likelihood table, searches for the maximum-likelihood
// tree, and writes the table, tree and posteriors.
func RunMLTree(ctx context.Context, in Inputs, out MLTreeOutputs, searcher TreeSearcher, opts *Opts) error {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	records, err := ComputeTable(ctx, in, opts)
	if err != nil {
		return err
	}
	if out.TablePath != "" {
		if err = SaveLikelihoodTable(ctx, out.TablePath, records, format, opts.Parallelism); err != nil {
			return err
		}
	}
	result, err := ComputeMLTree(ctx, searcher, records, DefaultTreeSearchKeys)
	if err != nil {
		return err
	}
	if out.TreePath != "" {
		if err = SaveTree(ctx, out.TreePath, result.Tree); err != nil {
			return err
		}
	}
	if out.PosteriorsPath != "" {
		if err = SavePosteriors(ctx, out.PosteriorsPath, result.Posteriors, format); err != nil {
			return err
		}
	}
	return nil
}
