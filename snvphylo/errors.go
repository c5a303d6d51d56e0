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
	"github.com/marcjwilliams1/scgenome/interval"
	"github.com/pkg/errors"
)

var (
	// ErrAmbiguousClusterAssignment is returned when a sample is assigned to
	// more than one cluster.
	ErrAmbiguousClusterAssignment = errors.New("sample assigned to more than one cluster")
	// ErrInvalidErrorRate is returned for a sequencing error rate outside (0, 1).
	ErrInvalidErrorRate = errors.New("error rate must be in (0, 1)")
	// ErrSchema is returned for a table with missing columns or invalid values.
	ErrSchema = errors.New("invalid table")
	// ErrVariantIDDelimiter is returned when a chromosome, ref or alt contains
	// VariantIDDelimiter.
	ErrVariantIDDelimiter = errors.New("variant field contains the variant id delimiter")
	// ErrDuplicateSegmentBoundary is returned when a cluster has two copy-number
	// segments with the same chromosome, start and end but different copy
	// numbers.
	ErrDuplicateSegmentBoundary = interval.ErrDuplicateSegmentBoundary
)
