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

// Package util holds file helpers shared by the input and output code.
package util

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// Reader reads a possibly gzip- or bgzip-compressed file.
type Reader struct {
	io.Reader
	path string
	in   file.File
	gz   *gzip.Reader
}

// Open opens path for reading.  Files ending in .gz are decompressed.
func Open(ctx context.Context, path string) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	r := &Reader{Reader: in.Reader(ctx), path: path, in: in}
	if fileio.DetermineType(path) == fileio.Gzip {
		if r.gz, err = gzip.NewReader(r.Reader); err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(err, "gunzip", path)
		}
		r.Reader = r.gz
	}
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close(ctx context.Context) error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if e := r.in.Close(ctx); e != nil && err == nil {
		err = errors.E(e, "close", r.path)
	}
	return err
}

// Writer writes a file, bgzip-compressed if its name ends in .gz.
type Writer struct {
	io.Writer
	path string
	out  file.File
	bgzf *bgzf.Writer
}

// Create creates path.  parallelism is the number of bgzf compression
// goroutines.
func Create(ctx context.Context, path string, parallelism int) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := &Writer{Writer: out.Writer(ctx), path: path, out: out}
	if fileio.DetermineType(path) == fileio.Gzip {
		if parallelism < 1 {
			parallelism = 1
		}
		w.bgzf = bgzf.NewWriter(w.Writer, parallelism)
		w.Writer = w.bgzf
	}
	return w, nil
}

// Close flushes the compressor, if any, and closes the file.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	if w.bgzf != nil {
		err = w.bgzf.Close()
	}
	if e := w.out.Close(ctx); e != nil && err == nil {
		err = errors.E(e, "close", w.path)
	}
	return err
}
