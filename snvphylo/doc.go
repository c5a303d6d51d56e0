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

// Package snvphylo computes, for each (variant, cluster) pair, the
// log-likelihood that a single-nucleotide variant is present or absent in the
// cluster, given the cluster's allele-specific copy number at the variant's
// locus.
//
// The usual flow is
//   reads + cluster assignments -> Aggregate
//     -> AnnotateCopyNumber (copy-number segments)
//     -> ComputeLogLikelihoods
// producing one VariantClusterRecord per (variant, cluster).  The resulting
// table is the input of a maximum-likelihood Dollo tree search, which is
// reached through the TreeSearcher interface (see package dollo for an
// implementation that runs an external program).
//
// Coordinates are opaque to this package beyond their ordering: a variant at
// coord c is covered by a segment [start, end) iff start <= c < end, so callers
// must use the same convention for both tables.
package snvphylo
