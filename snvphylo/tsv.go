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
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/marcjwilliams1/scgenome/interval"
	"github.com/pkg/errors"
)

// Column names of the input and output tables.
var (
	snvReadColumns           = []string{"sample_id", "chrom", "coord", "ref", "alt", "ref_counts", "alt_counts"}
	clusterAssignmentColumns = []string{"sample_id", "cluster_id"}
	segmentColumns           = []string{"chr", "start", "end", "cluster_id", "major_cn", "minor_cn", "total_cn"}
	likelihoodColumns        = []string{
		"chrom", "coord", "ref", "alt", "cluster_id", "variant_id",
		"ref_counts", "alt_counts", "total_counts",
		"major_cn", "minor_cn", "total_cn",
		"log_likelihood_absent", "log_likelihood_present",
	}
	posteriorColumns = []string{"variant_id", "cluster_id", "presence"}
)

type snvReadRow struct {
	SampleID  string `tsv:"sample_id"`
	Chrom     string `tsv:"chrom"`
	Coord     int64  `tsv:"coord"`
	Ref       string `tsv:"ref"`
	Alt       string `tsv:"alt"`
	RefCounts int64  `tsv:"ref_counts"`
	AltCounts int64  `tsv:"alt_counts"`
}

type clusterAssignmentRow struct {
	SampleID  string `tsv:"sample_id"`
	ClusterID string `tsv:"cluster_id"`
}

// Copy numbers are frequently written as floats ("2.0"), so they are parsed
// as such and checked.
type segmentRow struct {
	Chr       string  `tsv:"chr"`
	Start     int64   `tsv:"start"`
	End       int64   `tsv:"end"`
	ClusterID string  `tsv:"cluster_id"`
	MajorCN   float64 `tsv:"major_cn"`
	MinorCN   float64 `tsv:"minor_cn"`
	TotalCN   float64 `tsv:"total_cn"`
}

// Copy number and likelihood columns may be empty.
type likelihoodRow struct {
	Chrom       string `tsv:"chrom"`
	Coord       int64  `tsv:"coord"`
	Ref         string `tsv:"ref"`
	Alt         string `tsv:"alt"`
	ClusterID   string `tsv:"cluster_id"`
	VariantID   string `tsv:"variant_id"`
	RefCounts   int64  `tsv:"ref_counts"`
	AltCounts   int64  `tsv:"alt_counts"`
	TotalCounts int64  `tsv:"total_counts"`
	MajorCN     string `tsv:"major_cn"`
	MinorCN     string `tsv:"minor_cn"`
	TotalCN     string `tsv:"total_cn"`
	Absent      string `tsv:"log_likelihood_absent"`
	Present     string `tsv:"log_likelihood_present"`
}

// Posterior is the posterior probability, under the selected tree, that a
// variant is present in a cluster.
type Posterior struct {
	VariantID string  `tsv:"variant_id"`
	ClusterID string  `tsv:"cluster_id"`
	Presence  float64 `tsv:"presence"`
}

// newTableReader checks that the header of r names every column in required,
// then returns a tsv.Reader positioned at the header.
func newTableReader(r io.Reader, table string, required []string) (*tsv.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || header == "") {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrSchema, "%s table is empty", table)
		}
		return nil, err
	}
	present := make(map[string]bool)
	for _, col := range strings.Split(strings.TrimRight(header, "\r\n"), "\t") {
		present[col] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrSchema, "%s table is missing column(s) %s", table, strings.Join(missing, ", "))
	}
	tr := tsv.NewReader(io.MultiReader(strings.NewReader(header), br))
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	return tr, nil
}

// readRows calls fn on each row of the table.
func readRows(tr *tsv.Reader, table string, row interface{}, fn func() error) error {
	for line := 2; ; line++ {
		if err := tr.Read(row); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(ErrSchema, "%s table line %d: %v", table, line, err)
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

// ReadSnvReads reads a table with columns sample_id, chrom, coord, ref, alt,
// ref_counts and alt_counts.  Other columns are ignored.
func ReadSnvReads(r io.Reader) ([]SnvRead, error) {
	tr, err := newTableReader(r, "SNV read", snvReadColumns)
	if err != nil {
		return nil, err
	}
	var (
		row   snvReadRow
		reads []SnvRead
	)
	err = readRows(tr, "SNV read", &row, func() error {
		if row.RefCounts < 0 || row.AltCounts < 0 {
			return errors.Wrapf(ErrSchema, "negative read count for sample %q at %s:%d", row.SampleID, row.Chrom, row.Coord)
		}
		reads = append(reads, SnvRead{
			SampleID:  row.SampleID,
			Chrom:     row.Chrom,
			Coord:     interval.PosType(row.Coord),
			Ref:       row.Ref,
			Alt:       row.Alt,
			RefCounts: int(row.RefCounts),
			AltCounts: int(row.AltCounts),
		})
		return nil
	})
	return reads, err
}

// ReadClusterAssignments reads a table with columns sample_id and cluster_id.
func ReadClusterAssignments(r io.Reader) ([]ClusterAssignment, error) {
	tr, err := newTableReader(r, "cluster assignment", clusterAssignmentColumns)
	if err != nil {
		return nil, err
	}
	var (
		row         clusterAssignmentRow
		assignments []ClusterAssignment
	)
	err = readRows(tr, "cluster assignment", &row, func() error {
		assignments = append(assignments, ClusterAssignment{SampleID: row.SampleID, ClusterID: row.ClusterID})
		return nil
	})
	return assignments, err
}

// parseCopyNumber truncates a copy number read as a float to an int.
func parseCopyNumber(v float64, col string) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrSchema, "invalid %s %v", col, v)
	}
	return int(v), nil
}

// ReadCopyNumberSegments reads a table with columns chr, start, end,
// cluster_id, major_cn, minor_cn and total_cn.  Copy numbers may be written as
// floats; they are truncated to integers.
func ReadCopyNumberSegments(r io.Reader) ([]CopyNumberSegment, error) {
	tr, err := newTableReader(r, "copy number", segmentColumns)
	if err != nil {
		return nil, err
	}
	var (
		row  segmentRow
		segs []CopyNumberSegment
	)
	err = readRows(tr, "copy number", &row, func() error {
		s := CopyNumberSegment{
			Chrom:     row.Chr,
			Start:     interval.PosType(row.Start),
			End:       interval.PosType(row.End),
			ClusterID: row.ClusterID,
		}
		var err error
		if s.MajorCN, err = parseCopyNumber(row.MajorCN, "major_cn"); err != nil {
			return err
		}
		if s.MinorCN, err = parseCopyNumber(row.MinorCN, "minor_cn"); err != nil {
			return err
		}
		if s.TotalCN, err = parseCopyNumber(row.TotalCN, "total_cn"); err != nil {
			return err
		}
		segs = append(segs, s)
		return nil
	})
	return segs, err
}

func parseOptionalFloat(s, col string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrSchema, "invalid %s %q", col, s)
	}
	return v, nil
}

// ReadLikelihoodTable reads a table written by WriteLikelihoodTable.
func ReadLikelihoodTable(r io.Reader) ([]VariantClusterRecord, error) {
	tr, err := newTableReader(r, "likelihood", likelihoodColumns)
	if err != nil {
		return nil, err
	}
	var (
		row     likelihoodRow
		records []VariantClusterRecord
	)
	err = readRows(tr, "likelihood", &row, func() error {
		rec := VariantClusterRecord{
			Chrom:         row.Chrom,
			Coord:         interval.PosType(row.Coord),
			Ref:           row.Ref,
			Alt:           row.Alt,
			ClusterID:     row.ClusterID,
			VariantID:     row.VariantID,
			RefCounts:     int(row.RefCounts),
			AltCounts:     int(row.AltCounts),
			TotalCounts:   int(row.TotalCounts),
			HasCopyNumber: row.MajorCN != "",
		}
		if rec.HasCopyNumber {
			var cn [3]float64
			for i, s := range []string{row.MajorCN, row.MinorCN, row.TotalCN} {
				v, err := parseOptionalFloat(s, likelihoodColumns[9+i])
				if err != nil {
					return err
				}
				cn[i] = v
			}
			var err error
			if rec.MajorCN, err = parseCopyNumber(cn[0], "major_cn"); err != nil {
				return err
			}
			if rec.MinorCN, err = parseCopyNumber(cn[1], "minor_cn"); err != nil {
				return err
			}
			if rec.TotalCN, err = parseCopyNumber(cn[2], "total_cn"); err != nil {
				return err
			}
		}
		var err error
		if rec.LogLikelihoodAbsent, err = parseOptionalFloat(row.Absent, "log_likelihood_absent"); err != nil {
			return err
		}
		if rec.LogLikelihoodPresent, err = parseOptionalFloat(row.Present, "log_likelihood_present"); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

func writeHeader(w *tsv.Writer, cols []string) error {
	for _, col := range cols {
		w.WriteString(col)
	}
	return w.EndLine()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteLikelihoodTable writes records as a TSV with a header row.  Missing
// copy numbers and likelihoods are written as empty fields.
func WriteLikelihoodTable(writer io.Writer, records []VariantClusterRecord) error {
	w := tsv.NewWriter(writer)
	if err := writeHeader(w, likelihoodColumns); err != nil {
		return err
	}
	for i := range records {
		r := &records[i]
		w.WriteString(r.Chrom)
		w.WriteInt64(int64(r.Coord))
		w.WriteString(r.Ref)
		w.WriteString(r.Alt)
		w.WriteString(r.ClusterID)
		w.WriteString(r.VariantID)
		w.WriteInt64(int64(r.RefCounts))
		w.WriteInt64(int64(r.AltCounts))
		w.WriteInt64(int64(r.TotalCounts))
		if r.HasCopyNumber {
			w.WriteInt64(int64(r.MajorCN))
			w.WriteInt64(int64(r.MinorCN))
			w.WriteInt64(int64(r.TotalCN))
		} else {
			w.WriteString("")
			w.WriteString("")
			w.WriteString("")
		}
		w.WriteString(formatFloat(r.LogLikelihoodAbsent))
		w.WriteString(formatFloat(r.LogLikelihoodPresent))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WritePosteriors writes posteriors as a TSV with columns variant_id,
// cluster_id and presence.
func WritePosteriors(writer io.Writer, posteriors []Posterior) error {
	w := tsv.NewWriter(writer)
	if err := writeHeader(w, posteriorColumns); err != nil {
		return err
	}
	for _, p := range posteriors {
		w.WriteString(p.VariantID)
		w.WriteString(p.ClusterID)
		w.WriteString(strconv.FormatFloat(p.Presence, 'g', -1, 64))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadPosteriors reads a table written by WritePosteriors.
func ReadPosteriors(r io.Reader) ([]Posterior, error) {
	tr, err := newTableReader(r, "posterior", posteriorColumns)
	if err != nil {
		return nil, err
	}
	var (
		row        Posterior
		posteriors []Posterior
	)
	err = readRows(tr, "posterior", &row, func() error {
		posteriors = append(posteriors, row)
		return nil
	})
	return posteriors, err
}
