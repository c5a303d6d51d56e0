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

// Package dollo runs a maximum-likelihood Dollo tree search implemented by an
// external program.
//
// The program is invoked as
//   <path> [args...] -input <table.tsv> -sample-col <col> -variant-col <col>
//       -tree <out.newick> -posteriors <out.tsv>
// where table.tsv is a likelihood table as written by
// snvphylo.WriteLikelihoodTable.  It must write the selected tree in Newick
// format to -tree, and a TSV with columns variant_id, cluster_id and presence
// to -posteriors.  It may print "log_likelihood=<float>" on a line of its
// standard output.
package dollo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/marcjwilliams1/scgenome/snvphylo"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// DefaultProgram is the tree-search executable looked up in $PATH when
// CommandSearcher.Path is empty.
const DefaultProgram = "dollo-ml"

// CommandSearcher implements snvphylo.TreeSearcher by running an external
// program.
type CommandSearcher struct {
	// Path is the program name or path.  Names without a path separator are
	// looked up in $PATH.
	Path string
	// Args are passed to the program before the standard arguments.
	Args []string
	// TempDir is the parent of the per-search scratch directory.  Empty means
	// os.TempDir().
	TempDir string
}

func (s *CommandSearcher) resolve() (string, error) {
	name := s.Path
	if name == "" {
		name = DefaultProgram
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	return lookpath.Look(envvar.SliceToMap(os.Environ()), name)
}

// SearchML implements snvphylo.TreeSearcher.
func (s *CommandSearcher) SearchML(ctx context.Context, records []snvphylo.VariantClusterRecord, keys snvphylo.TreeSearchKeys) (result snvphylo.TreeSearchResult, err error) {
	exe, err := s.resolve()
	if err != nil {
		return result, errors.E(err, "dollo: couldn't find tree search program")
	}
	dir, err := ioutil.TempDir(s.TempDir, "dollo")
	if err != nil {
		return result, err
	}
	defer func() {
		if e := os.RemoveAll(dir); e != nil {
			log.Printf("dollo: couldn't remove %s: %v", dir, e)
		}
	}()
	var (
		tablePath      = filepath.Join(dir, "snv_log_likelihoods.tsv")
		treePath       = filepath.Join(dir, "tree.newick")
		posteriorsPath = filepath.Join(dir, "posteriors.tsv")
	)
	if err = snvphylo.SaveLikelihoodTable(ctx, tablePath, records, snvphylo.FormatTSV, 1); err != nil {
		return result, err
	}
	args := append(append([]string(nil), s.Args...),
		"-input", tablePath,
		"-sample-col", keys.SampleCol,
		"-variant-col", keys.VariantCol,
		"-tree", treePath,
		"-posteriors", posteriorsPath)
	cmd := exec.CommandContext(ctx, exe, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Printf("dollo: running %s on %d record(s)", exe, len(records))
	if err = cmd.Run(); err != nil {
		return result, errors.E(err, fmt.Sprintf("dollo: %s failed: %s", exe, strings.TrimSpace(stderr.String())))
	}
	result.LogLikelihood = parseLogLikelihood(stdout.Bytes())

	t, err := readNewick(treePath)
	if err != nil {
		return result, err
	}
	checkTips(t, records)
	result.Tree = t
	if result.Posteriors, err = snvphylo.LoadPosteriors(ctx, posteriorsPath); err != nil {
		return result, err
	}
	return result, nil
}

func readNewick(path string) (*tree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "dollo: tree search wrote no tree")
	}
	defer f.Close() // nolint: errcheck
	t, err := newick.NewParser(f).Parse()
	if err != nil {
		return nil, errors.E(err, "dollo: couldn't parse tree", path)
	}
	return t, nil
}

// checkTips logs tree leaves that aren't clusters of the table.
func checkTips(t *tree.Tree, records []snvphylo.VariantClusterRecord) {
	clusters := make(map[string]bool)
	for _, r := range records {
		clusters[r.ClusterID] = true
	}
	for _, tip := range t.Tips() {
		if !clusters[tip.Name()] {
			log.Printf("dollo: tree leaf %q is not a cluster of the likelihood table", tip.Name())
		}
	}
}

// parseLogLikelihood returns the value of the last "log_likelihood=" line of
// out, or NaN.
func parseLogLikelihood(out []byte) float64 {
	const prefix = "log_likelihood="
	ll := math.NaN()
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		if v, err := strconv.ParseFloat(line[len(prefix):], 64); err == nil {
			ll = v
		}
	}
	return ll
}
