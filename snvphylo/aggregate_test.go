package snvphylo

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/marcjwilliams1/scgenome/interval"
	"github.com/pkg/errors"
	tassert "github.com/stretchr/testify/assert"
)

type countsRow struct {
	variantID, clusterID string
	ref, alt             int
}

func toCountsRows(records []VariantClusterRecord) []countsRow {
	rows := make([]countsRow, len(records))
	for i, r := range records {
		rows[i] = countsRow{r.VariantID, r.ClusterID, r.RefCounts, r.AltCounts}
	}
	return rows
}

func TestAggregate(t *testing.T) {
	reads := []SnvRead{
		{"s1", "2", 50, "G", "A", 5, 1},
		{"s1", "1", 100, "A", "T", 8, 2},
		{"s2", "1", 100, "A", "T", 4, 1},
		{"s3", "1", 100, "A", "T", 10, 0},
		{"s3", "1", 100, "A", "C", 9, 1},
		// Not assigned to a cluster.
		{"s4", "1", 100, "A", "T", 100, 100},
	}
	assignments := []ClusterAssignment{
		{"s1", "c1"},
		{"s2", "c1"},
		{"s3", "c2"},
	}
	got, err := Aggregate(reads, assignments)
	assert.NoError(t, err)
	expect.EQ(t, toCountsRows(got), []countsRow{
		{"1:100:A:C", "c1", 0, 0},
		{"1:100:A:C", "c2", 9, 1},
		{"1:100:A:T", "c1", 12, 3},
		{"1:100:A:T", "c2", 10, 0},
		{"2:50:G:A", "c1", 5, 1},
		{"2:50:G:A", "c2", 0, 0},
	})
	for _, r := range got {
		expect.EQ(t, r.TotalCounts, r.RefCounts+r.AltCounts)
		expect.False(t, r.HasCopyNumber)
		expect.True(t, math.IsNaN(r.LogLikelihoodPresent))
	}
	expect.EQ(t, got[2].Chrom, "1")
	expect.EQ(t, got[2].Coord, interval.PosType(100))
	expect.EQ(t, got[2].Ref, "A")
	expect.EQ(t, got[2].Alt, "T")
}

// A single-sample cluster reproduces the sample's own counts.
func TestAggregateSingleSample(t *testing.T) {
	reads := []SnvRead{
		{"s1", "1", 100, "A", "T", 8, 2},
		{"s1", "1", 200, "C", "G", 0, 3},
		{"s1", "X", 7, "T", "A", 11, 0},
	}
	got, err := Aggregate(reads, []ClusterAssignment{{"s1", "only"}})
	assert.NoError(t, err)
	assert.EQ(t, len(got), len(reads))
	for i, r := range got {
		expect.EQ(t, r.ClusterID, "only")
		expect.EQ(t, r.RefCounts, reads[i].RefCounts)
		expect.EQ(t, r.AltCounts, reads[i].AltCounts)
		expect.EQ(t, r.VariantID, VariantID(reads[i].Chrom, reads[i].Coord, reads[i].Ref, reads[i].Alt))
	}
}

func TestAggregateErrors(t *testing.T) {
	ok := []ClusterAssignment{{"s1", "c1"}}
	tests := []struct {
		name        string
		reads       []SnvRead
		assignments []ClusterAssignment
		want        error
	}{
		{"ambiguous", []SnvRead{{"s1", "1", 1, "A", "T", 1, 1}}, []ClusterAssignment{{"s1", "c1"}, {"s1", "c2"}}, ErrAmbiguousClusterAssignment},
		{"duplicate assignment row", nil, []ClusterAssignment{{"s1", "c1"}, {"s1", "c1"}}, ErrAmbiguousClusterAssignment},
		{"delimiter in chrom", []SnvRead{{"s1", "chr:1", 1, "A", "T", 1, 1}}, ok, ErrVariantIDDelimiter},
		{"delimiter in alt", []SnvRead{{"s1", "1", 1, "A", "T:C", 1, 1}}, ok, ErrVariantIDDelimiter},
		{"negative count", []SnvRead{{"s1", "1", 1, "A", "T", -1, 1}}, ok, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.reads, tt.assignments)
			expect.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestAggregateNoReads(t *testing.T) {
	got, err := Aggregate(nil, []ClusterAssignment{{"s1", "c1"}})
	assert.NoError(t, err)
	expect.EQ(t, len(got), 0)
}

func TestFilterReads(t *testing.T) {
	regions, err := interval.ParseRegionStrings("1:100-200")
	assert.NoError(t, err)
	reads := []SnvRead{
		{"s1", "1", 99, "A", "T", 1, 1},
		{"s1", "1", 100, "A", "T", 1, 1},
		{"s1", "1", 200, "A", "T", 1, 1},
		{"s1", "1", 201, "A", "T", 1, 1},
		{"s1", "2", 150, "A", "T", 1, 1},
	}
	got := FilterReads(reads, regions)
	expect.EQ(t, got, []SnvRead{reads[1], reads[2]})
}

// reads={(sampleA, chr1, 100, A, T, ref=8, alt=2)}, one segment [0, 200) with
// copy number 1/1.
func TestBuildLikelihoodTableSingleVariant(t *testing.T) {
	opts := DefaultOpts
	got, err := BuildLikelihoodTable(
		[]SnvRead{{"sampleA", "chr1", 100, "A", "T", 8, 2}},
		[]ClusterAssignment{{"sampleA", "cluster1"}},
		[]CopyNumberSegment{{"chr1", 0, 200, "cluster1", 1, 1, 2}},
		&opts)
	assert.NoError(t, err)
	assert.EQ(t, len(got), 1)
	r := got[0]
	expect.EQ(t, r.VariantID, "chr1:100:A:T")
	expect.EQ(t, r.ClusterID, "cluster1")
	expect.EQ(t, r.RefCounts, 8)
	expect.EQ(t, r.AltCounts, 2)
	expect.EQ(t, r.TotalCounts, 10)
	expect.True(t, r.HasCopyNumber)
	expect.EQ(t, r.MajorCN, 1)
	expect.EQ(t, r.MinorCN, 1)
	expect.EQ(t, r.TotalCN, 2)
	tassert.InDelta(t, -10.016852070862623, r.LogLikelihoodAbsent, tol)
	tassert.InDelta(t, -3.1248093158291335, r.LogLikelihoodPresent, tol)
}

func TestBuildLikelihoodTableOutOfSegment(t *testing.T) {
	segs := []CopyNumberSegment{{"chr1", 0, 200, "cluster1", 1, 1, 2}}
	assignments := []ClusterAssignment{{"sampleA", "cluster1"}}
	for _, coord := range []interval.PosType{200, 5000} {
		opts := DefaultOpts
		got, err := BuildLikelihoodTable(
			[]SnvRead{{"sampleA", "chr1", coord, "A", "T", 8, 2}}, assignments, segs, &opts)
		assert.NoError(t, err)
		assert.EQ(t, len(got), 1)
		expect.False(t, got[0].HasCopyNumber)
		expect.True(t, math.IsNaN(got[0].LogLikelihoodAbsent))
		expect.True(t, math.IsNaN(got[0].LogLikelihoodPresent))

		opts.DropUnassigned = true
		got, err = BuildLikelihoodTable(
			[]SnvRead{{"sampleA", "chr1", coord, "A", "T", 8, 2}}, assignments, segs, &opts)
		assert.NoError(t, err)
		expect.EQ(t, len(got), 0)
	}
}

func TestBuildLikelihoodTableInvalidErrorRate(t *testing.T) {
	opts := DefaultOpts
	opts.ErrorRate = 1
	_, err := BuildLikelihoodTable(nil, nil, nil, &opts)
	expect.True(t, errors.Is(err, ErrInvalidErrorRate))
}
