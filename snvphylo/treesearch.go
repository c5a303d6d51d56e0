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
	"math"

	"github.com/grailbio/base/log"
)

// Tree is a phylogeny over clusters.
type Tree interface {
	// Newick returns the tree in Newick format.
	Newick() string
}

// TreeSearchKeys names the table columns that identify the leaves (samples)
// and the characters (variants) of the tree search.
type TreeSearchKeys struct {
	SampleCol  string
	VariantCol string
}

// DefaultTreeSearchKeys uses clusters as leaves and variant ids as characters.
var DefaultTreeSearchKeys = TreeSearchKeys{SampleCol: "cluster_id", VariantCol: "variant_id"}

// TreeSearchResult is the outcome of a maximum-likelihood tree search.
type TreeSearchResult struct {
	Tree Tree
	// LogLikelihood is the log-likelihood of Tree, or NaN if the searcher
	// doesn't report it.
	LogLikelihood float64
	Posteriors    []Posterior
}

// TreeSearcher finds the maximum-likelihood Dollo tree for a likelihood table.
// Every record passed to SearchML has copy number and finite-or-(-Inf)
// likelihoods.
type TreeSearcher interface {
	SearchML(ctx context.Context, records []VariantClusterRecord, keys TreeSearchKeys) (TreeSearchResult, error)
}

// ComputeMLTree runs searcher on the records that have copy number.  Records
// without copy number are dropped, since their likelihoods are undefined.
func ComputeMLTree(ctx context.Context, searcher TreeSearcher, records []VariantClusterRecord, keys TreeSearchKeys) (TreeSearchResult, error) {
	usable := make([]VariantClusterRecord, 0, len(records))
	for _, r := range records {
		if !r.HasCopyNumber || math.IsNaN(r.LogLikelihoodAbsent) || math.IsNaN(r.LogLikelihoodPresent) {
			continue
		}
		usable = append(usable, r)
	}
	if n := len(records) - len(usable); n > 0 {
		log.Printf("ComputeMLTree: dropped %d of %d record(s) without copy number", n, len(records))
	}
	if len(usable) == 0 {
		return TreeSearchResult{}, fmt.Errorf("ComputeMLTree: no records with copy number")
	}
	result, err := searcher.SearchML(ctx, usable, keys)
	if err != nil {
		return TreeSearchResult{}, err
	}
	if result.Tree == nil {
		return TreeSearchResult{}, fmt.Errorf("ComputeMLTree: tree search returned no tree")
	}
	log.Printf("ComputeMLTree: selected tree %s with %d posterior(s)", result.Tree.Newick(), len(result.Posteriors))
	return result, nil
}
