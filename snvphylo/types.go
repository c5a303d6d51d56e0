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
	"math"
	"strconv"
	"strings"

	"github.com/marcjwilliams1/scgenome/interval"
)

// VariantIDDelimiter separates the chrom, coord, ref and alt components of a
// variant id.
const VariantIDDelimiter = ":"

// SnvRead is the per-sample read count evidence for one variant.
type SnvRead struct {
	SampleID  string
	Chrom     string
	Coord     interval.PosType
	Ref       string
	Alt       string
	RefCounts int
	AltCounts int
}

// ClusterAssignment maps a sample (cell) to a cluster.
type ClusterAssignment struct {
	SampleID  string
	ClusterID string
}

// CopyNumberSegment is the allele-specific copy number of a cluster over the
// interval [Start, End) of a chromosome.
type CopyNumberSegment struct {
	Chrom     string
	Start     interval.PosType
	End       interval.PosType
	ClusterID string
	MajorCN   int
	MinorCN   int
	TotalCN   int
}

// VariantClusterRecord is one row of the likelihood table: the summed read
// counts of a variant in a cluster, the cluster's copy number at the variant
// and the presence/absence log-likelihoods.
//
// When HasCopyNumber is false the copy-number fields are meaningless and both
// likelihoods are NaN.
type VariantClusterRecord struct {
	Chrom     string
	Coord     interval.PosType
	Ref       string
	Alt       string
	ClusterID string
	VariantID string

	RefCounts   int
	AltCounts   int
	TotalCounts int

	HasCopyNumber bool
	MajorCN       int
	MinorCN       int
	TotalCN       int

	LogLikelihoodAbsent  float64
	LogLikelihoodPresent float64
}

// VariantID returns the chrom:coord:ref:alt identifier of a variant.
func VariantID(chrom string, coord interval.PosType, ref, alt string) string {
	var b strings.Builder
	b.Grow(len(chrom) + len(ref) + len(alt) + 3*len(VariantIDDelimiter) + 10)
	b.WriteString(chrom)
	b.WriteString(VariantIDDelimiter)
	b.WriteString(strconv.FormatInt(int64(coord), 10))
	b.WriteString(VariantIDDelimiter)
	b.WriteString(ref)
	b.WriteString(VariantIDDelimiter)
	b.WriteString(alt)
	return b.String()
}

func newRecord(k variantKey, clusterID string, refCounts, altCounts int) VariantClusterRecord {
	return VariantClusterRecord{
		Chrom:                k.chrom,
		Coord:                k.coord,
		Ref:                  k.ref,
		Alt:                  k.alt,
		ClusterID:            clusterID,
		VariantID:            VariantID(k.chrom, k.coord, k.ref, k.alt),
		RefCounts:            refCounts,
		AltCounts:            altCounts,
		TotalCounts:          refCounts + altCounts,
		LogLikelihoodAbsent:  math.NaN(),
		LogLikelihoodPresent: math.NaN(),
	}
}

func (r *VariantClusterRecord) clearCopyNumber() {
	r.HasCopyNumber = false
	r.MajorCN = 0
	r.MinorCN = 0
	r.TotalCN = 0
	r.LogLikelihoodAbsent = math.NaN()
	r.LogLikelihoodPresent = math.NaN()
}
