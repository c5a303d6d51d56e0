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
	"fmt"
	"runtime"
)

type Opts struct {
	// Commandline options.
	BedPath        string
	BedOneBased    bool
	Region         string
	DropUnassigned bool
	ErrorRate      float64
	Format         string
	Parallelism    int
}

var DefaultOpts = Opts{
	DropUnassigned: false,
	ErrorRate:      DefaultErrorRate,
	Format:         "tsv",
	Parallelism:    0,
}

// Format is the encoding of an output table.
type Format int

const (
	FormatTSV Format = iota
	// FormatTSVGzip is gzip-compressed TSV.
	FormatTSVGzip
	// FormatTSVBgzip is bgzip-compressed TSV, suitable for tabix indexing.
	FormatTSVBgzip
)

// ParseFormat converts a -format flag value to a Format.
func ParseFormat(format string) (Format, error) {
	switch format {
	case "tsv", "":
		return FormatTSV, nil
	case "tsv-gz":
		return FormatTSVGzip, nil
	case "tsv-bgz":
		return FormatTSVBgzip, nil
	}
	return FormatTSV, fmt.Errorf("snvphylo: unknown format %q (expected tsv, tsv-gz or tsv-bgz)", format)
}

func parallelismOrCPU(parallelism int) int {
	if parallelism <= 0 {
		return runtime.NumCPU()
	}
	return parallelism
}
