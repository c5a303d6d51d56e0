package snvphylo

import (
	"context"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type newickTree string

func (t newickTree) Newick() string { return string(t) }

// fakeSearcher returns a fixed tree and a posterior of 1 for every alt-bearing
// (variant, cluster).
type fakeSearcher struct {
	calls int
	got   []VariantClusterRecord
	keys  TreeSearchKeys
}

func (s *fakeSearcher) SearchML(ctx context.Context, records []VariantClusterRecord, keys TreeSearchKeys) (TreeSearchResult, error) {
	s.calls++
	s.got = records
	s.keys = keys
	result := TreeSearchResult{Tree: newickTree("(cluster1,cluster2);"), LogLikelihood: math.NaN()}
	for _, r := range records {
		p := 0.0
		if r.AltCounts > 0 {
			p = 1
		}
		result.Posteriors = append(result.Posteriors, Posterior{r.VariantID, r.ClusterID, p})
	}
	return result, nil
}

func TestComputeMLTree(t *testing.T) {
	records := []VariantClusterRecord{
		newRecord(variantKey{chrom: "1", coord: 10, ref: "A", alt: "T"}, "cluster1", 8, 2),
		newRecord(variantKey{chrom: "1", coord: 10, ref: "A", alt: "T"}, "cluster2", 9, 0),
	}
	records[0].HasCopyNumber = true
	records[0].MajorCN, records[0].MinorCN, records[0].TotalCN = 1, 1, 2
	records, err := ComputeLogLikelihoods(records, DefaultErrorRate, 1)
	assert.NoError(t, err)

	s := &fakeSearcher{}
	result, err := ComputeMLTree(context.Background(), s, records, DefaultTreeSearchKeys)
	assert.NoError(t, err)
	expect.EQ(t, s.calls, 1)
	expect.EQ(t, s.keys, TreeSearchKeys{SampleCol: "cluster_id", VariantCol: "variant_id"})
	// The record without copy number is not passed on.
	assert.EQ(t, len(s.got), 1)
	expect.EQ(t, s.got[0].ClusterID, "cluster1")
	expect.EQ(t, result.Tree.Newick(), "(cluster1,cluster2);")
	expect.EQ(t, result.Posteriors, []Posterior{{"1:10:A:T", "cluster1", 1}})

	_, err = ComputeMLTree(context.Background(), s, records[1:], DefaultTreeSearchKeys)
	expect.HasSubstr(t, err.Error(), "no records with copy number")
	expect.EQ(t, s.calls, 1)
}

func TestRunMLTree(t *testing.T) {
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
	out := MLTreeOutputs{
		TablePath:      filepath.Join(tmpdir, "table.tsv"),
		TreePath:       filepath.Join(tmpdir, "tree.newick"),
		PosteriorsPath: filepath.Join(tmpdir, "posteriors.tsv"),
	}
	opts := DefaultOpts
	s := &fakeSearcher{}
	assert.NoError(t, RunMLTree(ctx, in, out, s, &opts))
	// chr1:300 in cluster1 has no copy number.
	expect.EQ(t, len(s.got), 3)

	table, err := LoadLikelihoodTable(ctx, out.TablePath)
	assert.NoError(t, err)
	expect.EQ(t, len(table), 4)
	tree, err := ioutil.ReadFile(out.TreePath)
	assert.NoError(t, err)
	expect.EQ(t, strings.TrimSpace(string(tree)), "(cluster1,cluster2);")
	posteriors, err := LoadPosteriors(ctx, out.PosteriorsPath)
	assert.NoError(t, err)
	expect.EQ(t, len(posteriors), 3)
}
