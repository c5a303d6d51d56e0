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
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// readPath opens path, transparently decompressing it, and passes the
// contents to read.
func readPath(ctx context.Context, path string, read func(io.Reader) error) (err error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "couldn't open", path)
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = read(reader); err != nil {
		err = errors.E(err, path)
	}
	return
}

// writePath creates path and passes a writer in the given format to write.
func writePath(ctx context.Context, path string, format Format, parallelism int, write func(io.Writer) error) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return errors.E(err, "couldn't create", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	var w io.Writer
	switch format {
	case FormatTSVGzip:
		gzw := gzip.NewWriter(dst.Writer(ctx))
		defer func() {
			if e := gzw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = gzw
	case FormatTSVBgzip:
		bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), parallelismOrCPU(parallelism))
		defer func() {
			if e := bgzfWriter.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = bgzfWriter
	default:
		w = dst.Writer(ctx)
	}
	if err = write(w); err != nil {
		err = errors.E(err, "error writing to", path)
	}
	return
}

// LoadSnvReads reads an SNV read table from path.
func LoadSnvReads(ctx context.Context, path string) (reads []SnvRead, err error) {
	err = readPath(ctx, path, func(r io.Reader) (err error) {
		reads, err = ReadSnvReads(r)
		return
	})
	return
}

// LoadClusterAssignments reads a cluster assignment table from path.
func LoadClusterAssignments(ctx context.Context, path string) (assignments []ClusterAssignment, err error) {
	err = readPath(ctx, path, func(r io.Reader) (err error) {
		assignments, err = ReadClusterAssignments(r)
		return
	})
	return
}

// LoadCopyNumberSegments reads a copy-number segment table from path.
func LoadCopyNumberSegments(ctx context.Context, path string) (segs []CopyNumberSegment, err error) {
	err = readPath(ctx, path, func(r io.Reader) (err error) {
		segs, err = ReadCopyNumberSegments(r)
		return
	})
	return
}

// LoadLikelihoodTable reads a likelihood table from path.
func LoadLikelihoodTable(ctx context.Context, path string) (records []VariantClusterRecord, err error) {
	err = readPath(ctx, path, func(r io.Reader) (err error) {
		records, err = ReadLikelihoodTable(r)
		return
	})
	return
}

// LoadPosteriors reads a posterior table from path.
func LoadPosteriors(ctx context.Context, path string) (posteriors []Posterior, err error) {
	err = readPath(ctx, path, func(r io.Reader) (err error) {
		posteriors, err = ReadPosteriors(r)
		return
	})
	return
}

// SaveLikelihoodTable writes records to path in the given format.
func SaveLikelihoodTable(ctx context.Context, path string, records []VariantClusterRecord, format Format, parallelism int) error {
	return writePath(ctx, path, format, parallelism, func(w io.Writer) error {
		return WriteLikelihoodTable(w, records)
	})
}

// SavePosteriors writes posteriors to path in the given format.
func SavePosteriors(ctx context.Context, path string, posteriors []Posterior, format Format) error {
	return writePath(ctx, path, format, 1, func(w io.Writer) error {
		return WritePosteriors(w, posteriors)
	})
}

// SaveTree writes the Newick representation of tree to path.
func SaveTree(ctx context.Context, path string, tree Tree) error {
	return writePath(ctx, path, FormatTSV, 1, func(w io.Writer) error {
		_, err := io.WriteString(w, tree.Newick()+"\n")
		return err
	})
}
