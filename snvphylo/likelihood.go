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

	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"
)

// DefaultErrorRate is the per-read probability of observing the alt allele
// at a site where the variant is absent.
const DefaultErrorRate = 1e-3

// ValidateErrorRate returns an error wrapping ErrInvalidErrorRate unless
// 0 < errorRate < 1.
func ValidateErrorRate(errorRate float64) error {
	if !(errorRate > 0 && errorRate < 1) {
		return errors.Wrapf(ErrInvalidErrorRate, "got %v", errorRate)
	}
	return nil
}

// logChoose returns log(n choose x).  Requires 0 <= x <= n.
func logChoose(x, n int) float64 {
	return combin.LogGeneralizedBinomial(float64(n), float64(x))
}

// logBinomialTerm evaluates the binomial log-PMF given a precomputed
// log(n choose x).
func logBinomialTerm(lchoose float64, x, n int, p float64) float64 {
	switch {
	case x < 0 || x > n:
		return math.Inf(-1)
	case math.IsNaN(p) || p < 0 || p > 1:
		return math.NaN()
	case p == 0:
		if x == 0 {
			return 0
		}
		return math.Inf(-1)
	case p == 1:
		if x == n {
			return 0
		}
		return math.Inf(-1)
	}
	return lchoose + float64(x)*math.Log(p) + float64(n-x)*math.Log1p(-p)
}

// LogBinomialPMF returns log P(X = x) for X ~ Binomial(n, p).  It is -Inf for
// x outside [0, n] and exact at p = 0 and p = 1.
func LogBinomialPMF(x, n int, p float64) float64 {
	if x < 0 || x > n {
		return math.Inf(-1)
	}
	return logBinomialTerm(logChoose(x, n), x, n, p)
}

// LogLikelihoodAbsent returns the log-likelihood of the counts when the
// variant is absent, i.e. every alt read is a sequencing error.
func LogLikelihoodAbsent(refCounts, altCounts int, errorRate float64) float64 {
	return LogBinomialPMF(altCounts, refCounts+altCounts, errorRate)
}

// LogLikelihoodPresent returns the log-likelihood of the counts when the
// variant is present on some number c of the majorCN copies of the major
// allele, marginalizing c over 1..majorCN with unnormalized uniform weight.
// The alt-read probability for a given c is c/(majorCN+minorCN).
//
// A locus with majorCN == 0 cannot carry the variant, so this equals
// LogLikelihoodAbsent.
func LogLikelihoodPresent(majorCN, minorCN int, errorRate float64, refCounts, altCounts int) float64 {
	n := refCounts + altCounts
	lchoose := math.Inf(-1)
	if altCounts >= 0 && altCounts <= n {
		lchoose = logChoose(altCounts, n)
	}
	return logLikelihoodPresent(lchoose, majorCN, minorCN, errorRate, altCounts, n, nil)
}

// logLikelihoodPresent is LogLikelihoodPresent with a precomputed lchoose.
// scratch is reused across calls when non-nil.
func logLikelihoodPresent(lchoose float64, majorCN, minorCN int, errorRate float64, x, n int, scratch *[]float64) float64 {
	if majorCN <= 0 {
		return logBinomialTerm(lchoose, x, n, errorRate)
	}
	var terms []float64
	if scratch != nil {
		terms = (*scratch)[:0]
	}
	totalCN := float64(majorCN + minorCN)
	for c := 1; c <= majorCN; c++ {
		terms = append(terms, logBinomialTerm(lchoose, x, n, float64(c)/totalCN))
	}
	if scratch != nil {
		*scratch = terms
	}
	return floats.LogSumExp(terms)
}

// ComputeLogLikelihoods returns a copy of records with LogLikelihoodAbsent and
// LogLikelihoodPresent filled in.  Records without copy number get NaN for
// both.  parallelism <= 0 means runtime.NumCPU().
func ComputeLogLikelihoods(records []VariantClusterRecord, errorRate float64, parallelism int) ([]VariantClusterRecord, error) {
	if err := ValidateErrorRate(errorRate); err != nil {
		return nil, err
	}
	out := make([]VariantClusterRecord, len(records))
	copy(out, records)
	if len(out) == 0 {
		return out, nil
	}
	nJob := parallelismOrCPU(parallelism)
	if nJob > len(out) {
		nJob = len(out)
	}
	err := traverse.Each(nJob, func(jobIdx int) error {
		startIdx := (jobIdx * len(out)) / nJob
		endIdx := ((jobIdx + 1) * len(out)) / nJob
		var scratch []float64
		for i := startIdx; i < endIdx; i++ {
			r := &out[i]
			if !r.HasCopyNumber {
				r.LogLikelihoodAbsent = math.NaN()
				r.LogLikelihoodPresent = math.NaN()
				continue
			}
			x, n := r.AltCounts, r.RefCounts+r.AltCounts
			lchoose := math.Inf(-1)
			if x >= 0 && x <= n {
				lchoose = logChoose(x, n)
			}
			r.LogLikelihoodAbsent = logBinomialTerm(lchoose, x, n, errorRate)
			r.LogLikelihoodPresent = logLikelihoodPresent(lchoose, r.MajorCN, r.MinorCN, errorRate, x, n, &scratch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
