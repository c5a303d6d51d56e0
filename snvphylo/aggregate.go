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
	"sort"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"github.com/marcjwilliams1/scgenome/interval"
	"github.com/pkg/errors"
)

type variantKey struct {
	chrom string
	coord interval.PosType
	ref   string
	alt   string
}

func (k variantKey) compare(k2 variantKey) int {
	if c := strings.Compare(k.chrom, k2.chrom); c != 0 {
		return c
	}
	if k.coord != k2.coord {
		if k.coord < k2.coord {
			return -1
		}
		return 1
	}
	if c := strings.Compare(k.ref, k2.ref); c != 0 {
		return c
	}
	return strings.Compare(k.alt, k2.alt)
}

type alleleCounts struct {
	ref, alt int
}

// variantGroup accumulates the per-cluster counts of one variant.
type variantGroup struct {
	key    variantKey
	counts map[string]*alleleCounts
}

// Compare compares two variantGroup objects by variant key, for use in llrb.
func (g *variantGroup) Compare(c2 llrb.Comparable) int {
	return g.key.compare(c2.(*variantGroup).key)
}

// clusterIndex maps each sample to its cluster, rejecting samples with more
// than one assignment row.
func clusterIndex(assignments []ClusterAssignment) (map[string]string, error) {
	idx := make(map[string]string, len(assignments))
	for _, a := range assignments {
		if prev, ok := idx[a.SampleID]; ok {
			return nil, errors.Wrapf(ErrAmbiguousClusterAssignment,
				"sample %q: clusters %q and %q", a.SampleID, prev, a.ClusterID)
		}
		idx[a.SampleID] = a.ClusterID
	}
	return idx, nil
}

func validateRead(r *SnvRead) error {
	if r.RefCounts < 0 || r.AltCounts < 0 {
		return errors.Wrapf(ErrSchema, "negative read count for sample %q at %s:%d", r.SampleID, r.Chrom, r.Coord)
	}
	for _, field := range []string{r.Chrom, r.Ref, r.Alt} {
		if strings.Contains(field, VariantIDDelimiter) {
			return errors.Wrapf(ErrVariantIDDelimiter, "%q (sample %q, %s:%d)", field, r.SampleID, r.Chrom, r.Coord)
		}
	}
	return nil
}

// Aggregate sums the read counts of each variant over the samples of each
// cluster.  Reads from samples without a cluster assignment are dropped.
//
// Every variant gets a record for every cluster that has at least one read
// (of any variant), with zero counts where the cluster has no reads for the
// variant.  Records are ordered by (chrom, coord, ref, alt), then cluster id.
// Copy number is left unset.
func Aggregate(reads []SnvRead, assignments []ClusterAssignment) ([]VariantClusterRecord, error) {
	clusterOf, err := clusterIndex(assignments)
	if err != nil {
		return nil, err
	}
	var (
		variants llrb.Tree
		clusters = make(map[string]struct{})
		nDropped int
		query    variantGroup
	)
	for i := range reads {
		r := &reads[i]
		if err := validateRead(r); err != nil {
			return nil, err
		}
		clusterID, ok := clusterOf[r.SampleID]
		if !ok {
			nDropped++
			continue
		}
		clusters[clusterID] = struct{}{}
		query.key = variantKey{chrom: r.Chrom, coord: r.Coord, ref: r.Ref, alt: r.Alt}
		var g *variantGroup
		if c := variants.Get(&query); c != nil {
			g = c.(*variantGroup)
		} else {
			g = &variantGroup{key: query.key, counts: make(map[string]*alleleCounts)}
			variants.Insert(g)
		}
		counts := g.counts[clusterID]
		if counts == nil {
			counts = &alleleCounts{}
			g.counts[clusterID] = counts
		}
		counts.ref += r.RefCounts
		counts.alt += r.AltCounts
	}
	if nDropped > 0 {
		log.Printf("Aggregate: dropped %d of %d read row(s) from samples without a cluster assignment", nDropped, len(reads))
	}

	clusterIDs := make([]string, 0, len(clusters))
	for c := range clusters {
		clusterIDs = append(clusterIDs, c)
	}
	sort.Strings(clusterIDs)

	records := make([]VariantClusterRecord, 0, variants.Len()*len(clusterIDs))
	variants.Do(func(c llrb.Comparable) bool {
		g := c.(*variantGroup)
		for _, clusterID := range clusterIDs {
			var counts alleleCounts
			if cnt := g.counts[clusterID]; cnt != nil {
				counts = *cnt
			}
			records = append(records, newRecord(g.key, clusterID, counts.ref, counts.alt))
		}
		return false
	})
	log.Debug.Printf("Aggregate: %d variant(s) x %d cluster(s)", variants.Len(), len(clusterIDs))
	return records, nil
}

// FilterReads returns the reads whose coordinate lies in regions.  Coordinates
// are taken to be 1-based, as in VCF, and regions 0-based.
func FilterReads(reads []SnvRead, regions interval.RegionSet) []SnvRead {
	out := make([]SnvRead, 0, len(reads))
	for _, r := range reads {
		if regions.ContainsByName(r.Chrom, r.Coord-1) {
			out = append(out, r)
		}
	}
	log.Printf("FilterReads: kept %d of %d read row(s) in target regions", len(out), len(reads))
	return out
}
