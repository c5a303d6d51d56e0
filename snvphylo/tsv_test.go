package snvphylo

import (
	"bytes"
	"context"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	tassert "github.com/stretchr/testify/assert"
)

const (
	testReads = "sample_id\tchrom\tcoord\tref\talt\tref_counts\talt_counts\textra\n" +
		"sampleA\tchr1\t100\tA\tT\t8\t2\tx\n" +
		"sampleB\tchr1\t100\tA\tT\t1\t0\tx\n" +
		"sampleA\tchr1\t300\tC\tG\t4\t4\tx\n"
	testClusters = "cluster_id\tsample_id\n" +
		"cluster1\tsampleA\n" +
		"cluster2\tsampleB\n"
	testSegments = "chr\tstart\tend\tcluster_id\tmajor_cn\tminor_cn\ttotal_cn\n" +
		"chr1\t0\t200\tcluster1\t1.0\t1.0\t2.0\n" +
		"chr1\t0\t200\tcluster1\t1.0\t1.0\t2.0\n" +
		"chr1\t0\t1000\tcluster2\t2\t0\t2\n"
)

func TestReadTables(t *testing.T) {
	reads, err := ReadSnvReads(strings.NewReader(testReads))
	assert.NoError(t, err)
	expect.EQ(t, reads, []SnvRead{
		{"sampleA", "chr1", 100, "A", "T", 8, 2},
		{"sampleB", "chr1", 100, "A", "T", 1, 0},
		{"sampleA", "chr1", 300, "C", "G", 4, 4},
	})
	assignments, err := ReadClusterAssignments(strings.NewReader(testClusters))
	assert.NoError(t, err)
	expect.EQ(t, assignments, []ClusterAssignment{{"sampleA", "cluster1"}, {"sampleB", "cluster2"}})
	segs, err := ReadCopyNumberSegments(strings.NewReader(testSegments))
	assert.NoError(t, err)
	expect.EQ(t, len(segs), 3)
	expect.EQ(t, segs[2], CopyNumberSegment{"chr1", 0, 1000, "cluster2", 2, 0, 2})
}

func TestReadTablesSchema(t *testing.T) {
	tests := []struct {
		name string
		read func() error
		msg  string
	}{
		{
			"missing columns",
			func() error {
				_, err := ReadSnvReads(strings.NewReader("sample_id\tchrom\tcoord\tref\tref_counts\n"))
				return err
			},
			"alt, alt_counts",
		},
		{
			"empty",
			func() error {
				_, err := ReadClusterAssignments(strings.NewReader(""))
				return err
			},
			"empty",
		},
		{
			"negative copy number",
			func() error {
				_, err := ReadCopyNumberSegments(strings.NewReader(
					"chr\tstart\tend\tcluster_id\tmajor_cn\tminor_cn\ttotal_cn\nchr1\t0\t10\tc\t-1\t0\t0\n"))
				return err
			},
			"major_cn",
		},
		{
			"bad count",
			func() error {
				_, err := ReadSnvReads(strings.NewReader(
					"sample_id\tchrom\tcoord\tref\talt\tref_counts\talt_counts\ns\t1\t5\tA\tT\tmany\t1\n"))
				return err
			},
			"line 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			expect.True(t, errors.Is(err, ErrSchema), "got %v", err)
			expect.HasSubstr(t, err.Error(), tt.msg)
		})
	}
}

func TestLikelihoodTableRoundTrip(t *testing.T) {
	records := []VariantClusterRecord{
		newRecord(variantKey{chrom: "chr1", coord: 100, ref: "A", alt: "T"}, "cluster1", 8, 2),
		newRecord(variantKey{chrom: "chr1", coord: 100, ref: "A", alt: "T"}, "cluster2", 0, 0),
		newRecord(variantKey{chrom: "chr1", coord: 300, ref: "C", alt: "G"}, "cluster1", 300, 41),
	}
	records[0].HasCopyNumber = true
	records[0].MajorCN, records[0].MinorCN, records[0].TotalCN = 1, 1, 2
	records[2].HasCopyNumber = true
	records[2].MajorCN, records[2].MinorCN, records[2].TotalCN = 1, 0, 1
	records, err := ComputeLogLikelihoods(records, DefaultErrorRate, 1)
	assert.NoError(t, err)
	expect.True(t, math.IsInf(records[2].LogLikelihoodPresent, -1))

	var buf bytes.Buffer
	assert.NoError(t, WriteLikelihoodTable(&buf, records))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.EQ(t, len(lines), 4)
	expect.EQ(t, lines[0], strings.Join(likelihoodColumns, "\t"))
	fields := strings.Split(lines[1], "\t")
	assert.EQ(t, len(fields), len(likelihoodColumns))
	expect.EQ(t, strings.Join(fields[:12], "\t"), "chr1\t100\tA\tT\tcluster1\tchr1:100:A:T\t8\t2\t10\t1\t1\t2")
	expect.HasSubstr(t, fields[12], "-10.0168520708626")
	expect.EQ(t, lines[2], "chr1\t100\tA\tT\tcluster2\tchr1:100:A:T\t0\t0\t0\t\t\t\t\t")

	got, err := ReadLikelihoodTable(&buf)
	assert.NoError(t, err)
	assert.EQ(t, len(got), len(records))
	for i := range got {
		g, w := got[i], records[i]
		expect.EQ(t, g.VariantID, w.VariantID)
		expect.EQ(t, g.ClusterID, w.ClusterID)
		expect.EQ(t, g.Coord, w.Coord)
		expect.EQ(t, g.TotalCounts, w.TotalCounts)
		expect.EQ(t, g.HasCopyNumber, w.HasCopyNumber)
		expect.EQ(t, g.MajorCN, w.MajorCN)
		if math.IsNaN(w.LogLikelihoodAbsent) {
			expect.True(t, math.IsNaN(g.LogLikelihoodAbsent))
			expect.True(t, math.IsNaN(g.LogLikelihoodPresent))
			continue
		}
		tassert.InDelta(t, w.LogLikelihoodAbsent, g.LogLikelihoodAbsent, tol)
		if math.IsInf(w.LogLikelihoodPresent, -1) {
			expect.True(t, math.IsInf(g.LogLikelihoodPresent, -1))
		} else {
			tassert.InDelta(t, w.LogLikelihoodPresent, g.LogLikelihoodPresent, tol)
		}
	}
}

func TestPosteriorsRoundTrip(t *testing.T) {
	posteriors := []Posterior{
		{"chr1:100:A:T", "cluster1", 0.75},
		{"chr1:100:A:T", "cluster2", 1e-5},
	}
	var buf bytes.Buffer
	assert.NoError(t, WritePosteriors(&buf, posteriors))
	got, err := ReadPosteriors(&buf)
	assert.NoError(t, err)
	expect.EQ(t, got, posteriors)
}

func TestLoadErrors(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	path := filepath.Join(tmpdir, "snvs.tsv")
	assert.NoError(t, ioutil.WriteFile(path, []byte("sample_id\tchrom\n"), 0644))
	_, err := LoadSnvReads(ctx, path)
	assert.NotNil(t, err)
	expect.HasSubstr(t, err.Error(), path)
	expect.HasSubstr(t, err.Error(), "missing column(s) coord")

	missing := filepath.Join(tmpdir, "nonexistent.tsv")
	_, err = LoadClusterAssignments(ctx, missing)
	assert.NotNil(t, err)
	expect.HasSubstr(t, err.Error(), missing)
}

func TestRun(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()

	in := Inputs{
		SnvReadsPath:   filepath.Join(tmpdir, "snvs.tsv"),
		ClustersPath:   filepath.Join(tmpdir, "clusters.tsv"),
		CopyNumberPath: filepath.Join(tmpdir, "segments.tsv"),
	}
	assert.NoError(t, ioutil.WriteFile(in.SnvReadsPath, []byte(testReads), 0644))
	assert.NoError(t, ioutil.WriteFile(in.ClustersPath, []byte(testClusters), 0644))
	assert.NoError(t, ioutil.WriteFile(in.CopyNumberPath, []byte(testSegments), 0644))

	for _, format := range []string{"tsv", "tsv-gz", "tsv-bgz"} {
		opts := DefaultOpts
		opts.Format = format
		opts.Parallelism = 2
		outPath := filepath.Join(tmpdir, "out."+format)
		assert.NoError(t, Run(ctx, in, outPath, &opts))

		got, err := LoadLikelihoodTable(ctx, outPath)
		assert.NoError(t, err, format)
		// 2 variants x 2 clusters.
		assert.EQ(t, len(got), 4, format)
		expect.EQ(t, got[0].VariantID, "chr1:100:A:T")
		expect.EQ(t, got[0].ClusterID, "cluster1")
		tassert.InDelta(t, -10.016852070862623, got[0].LogLikelihoodAbsent, tol)
		tassert.InDelta(t, -3.1248093158291335, got[0].LogLikelihoodPresent, tol)
		expect.EQ(t, got[1].ClusterID, "cluster2")
		expect.EQ(t, got[1].MajorCN, 2)
		// chr1:300 is outside cluster1's segment.
		expect.EQ(t, got[2].VariantID, "chr1:300:C:G")
		expect.False(t, got[2].HasCopyNumber)
	}

	opts := DefaultOpts
	opts.Region = "chr1:1-200"
	outPath := filepath.Join(tmpdir, "region.tsv")
	assert.NoError(t, Run(ctx, in, outPath, &opts))
	got, err := LoadLikelihoodTable(ctx, outPath)
	assert.NoError(t, err)
	expect.EQ(t, len(got), 2)

	// 1-based [100, 100] is chr1:100 only; read as 0-based it is empty.
	bedPath := filepath.Join(tmpdir, "targets.bed")
	assert.NoError(t, ioutil.WriteFile(bedPath, []byte("chr1\t100\t100\n"), 0644))
	opts = DefaultOpts
	opts.BedPath = bedPath
	opts.BedOneBased = true
	assert.NoError(t, Run(ctx, in, outPath, &opts))
	got, err = LoadLikelihoodTable(ctx, outPath)
	assert.NoError(t, err)
	assert.EQ(t, len(got), 2)
	expect.EQ(t, got[0].VariantID, "chr1:100:A:T")
	opts.BedOneBased = false
	assert.NoError(t, Run(ctx, in, outPath, &opts))
	got, err = LoadLikelihoodTable(ctx, outPath)
	assert.NoError(t, err)
	expect.EQ(t, len(got), 0)

	opts = DefaultOpts
	opts.BedPath = bedPath
	opts.Region = "chr1"
	expect.NotNil(t, Run(ctx, in, outPath, &opts))

	opts = DefaultOpts
	opts.Format = "vcf"
	expect.NotNil(t, Run(ctx, in, outPath, &opts))

	opts = DefaultOpts
	opts.ErrorRate = 0
	err = Run(ctx, in, outPath, &opts)
	expect.True(t, errors.Is(err, ErrInvalidErrorRate))
}
