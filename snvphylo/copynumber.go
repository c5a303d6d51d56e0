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
	"github.com/grailbio/base/log"
	"github.com/marcjwilliams1/scgenome/interval"
	"github.com/pkg/errors"
)

// NormalizeSegments validates the copy-number fields of segs and removes
// exact duplicate rows, keeping the first occurrence.  Segments that share a
// cluster, chromosome, start and end but differ in copy number are kept, and
// later rejected by AnnotateCopyNumber.
func NormalizeSegments(segs []CopyNumberSegment) ([]CopyNumberSegment, error) {
	seen := make(map[CopyNumberSegment]struct{}, len(segs))
	out := make([]CopyNumberSegment, 0, len(segs))
	for _, s := range segs {
		if s.MajorCN < 0 || s.MinorCN < 0 || s.TotalCN < 0 {
			return nil, errors.Wrapf(ErrSchema,
				"negative copy number in segment %s:%d-%d of cluster %q", s.Chrom, s.Start, s.End, s.ClusterID)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if n := len(segs) - len(out); n > 0 {
		log.Debug.Printf("NormalizeSegments: removed %d duplicate segment row(s)", n)
	}
	return out, nil
}

// AnnotateCopyNumber returns a copy of records with the copy number of the
// segment covering each record's coordinate in the record's cluster.  Records
// not covered by any segment get HasCopyNumber == false.
//
// Within a cluster and chromosome, segments must not share both start and
// end; otherwise an error wrapping ErrDuplicateSegmentBoundary is returned.
// Segments are left-closed, right-open.
func AnnotateCopyNumber(records []VariantClusterRecord, segs []CopyNumberSegment, parallelism int) ([]VariantClusterRecord, error) {
	points := make([]interval.Point, len(records))
	for i, r := range records {
		points[i] = interval.Point{Group: r.ClusterID, Chrom: r.Chrom, Pos: r.Coord}
	}
	isegs := make([]interval.Segment, len(segs))
	for i, s := range segs {
		isegs[i] = interval.Segment{Group: s.ClusterID, Chrom: s.Chrom, Start: s.Start, End: s.End}
	}
	assigned, err := interval.AssignSegments(points, isegs, parallelism)
	if err != nil {
		return nil, err
	}
	out := make([]VariantClusterRecord, len(records))
	nUnassigned := 0
	for i, r := range records {
		out[i] = r
		if assigned[i] == interval.NoSegment {
			out[i].clearCopyNumber()
			nUnassigned++
			continue
		}
		s := &segs[assigned[i]]
		out[i].HasCopyNumber = true
		out[i].MajorCN = s.MajorCN
		out[i].MinorCN = s.MinorCN
		out[i].TotalCN = s.TotalCN
	}
	if nUnassigned > 0 {
		log.Printf("AnnotateCopyNumber: %d of %d record(s) are not covered by a copy-number segment", nUnassigned, len(records))
	}
	return out, nil
}

// DropUnassigned returns the records that have copy number.
func DropUnassigned(records []VariantClusterRecord) []VariantClusterRecord {
	out := make([]VariantClusterRecord, 0, len(records))
	for _, r := range records {
		if r.HasCopyNumber {
			out = append(out, r)
		}
	}
	return out
}

// BuildLikelihoodTable aggregates reads by cluster, annotates copy number and
// computes the presence/absence log-likelihoods of every (variant, cluster).
// Only opts.ErrorRate, opts.Parallelism and opts.DropUnassigned are used.
func BuildLikelihoodTable(reads []SnvRead, assignments []ClusterAssignment, segs []CopyNumberSegment, opts *Opts) ([]VariantClusterRecord, error) {
	if err := ValidateErrorRate(opts.ErrorRate); err != nil {
		return nil, err
	}
	records, err := Aggregate(reads, assignments)
	if err != nil {
		return nil, err
	}
	if segs, err = NormalizeSegments(segs); err != nil {
		return nil, err
	}
	if records, err = AnnotateCopyNumber(records, segs, opts.Parallelism); err != nil {
		return nil, err
	}
	if opts.DropUnassigned {
		records = DropUnassigned(records)
	}
	return ComputeLogLikelihoods(records, opts.ErrorRate, opts.Parallelism)
}
