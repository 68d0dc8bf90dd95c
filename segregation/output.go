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
package segregation

import (
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/segregation/encoding/vcf"
	"github.com/grailbio/segregation/pedigree"
	"github.com/grailbio/segregation/util"
)

// RegionsBEDHeader is the header line of a region BED file.
const RegionsBEDHeader = "#chrom\tstart\tend\tfa\tmo\ttype\tfa_level\tmo_level"

type tsvOutput struct {
	*tsv.Writer
	out *util.Writer
}

func createTSV(ctx context.Context, path string, parallelism int) (*tsvOutput, error) {
	out, err := util.Create(ctx, path, parallelism)
	if err != nil {
		return nil, err
	}
	return &tsvOutput{Writer: tsv.NewWriter(out), out: out}, nil
}

func (t *tsvOutput) writeHeader(cols ...string) error {
	t.WriteString(strings.Join(cols, "\t"))
	return t.EndLine()
}

// close flushes the writer and closes the file.  The first error is
// returned.
func (t *tsvOutput) close(ctx context.Context) error {
	e := errors.Once{}
	e.Set(t.Flush())
	e.Set(t.out.Close(ctx))
	return e.Err()
}

// writeTSV creates path, calls fn on it and closes it.
func writeTSV(ctx context.Context, path string, parallelism int, fn func(w *tsvOutput) error) error {
	w, err := createTSV(ctx, path, parallelism)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(fn(w))
	e.Set(w.close(ctx))
	if err := e.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

func writeRegionRow(w *tsvOutput, r Region) error {
	w.WriteString(r.Seq)
	w.WriteInt64(int64(r.Start0))
	w.WriteInt64(int64(r.End))
	w.WriteString(r.Fa)
	w.WriteString(r.Mo)
	w.WriteString(r.Code)
	w.WriteInt64(int64(r.FaLevel))
	w.WriteInt64(int64(r.MoLevel))
	return w.EndLine()
}

// writeRegionsBED writes the regions of seqs, in order.
func writeRegionsBED(w *tsvOutput, seqs []*sequenceResult) error {
	w.WriteString(RegionsBEDHeader)
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, r := range seqs {
		for _, region := range r.regions {
			if err := writeRegionRow(w, region); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeDiagnostics writes one line per search path node.
func writeDiagnostics(w *tsvOutput, seqs []*sequenceResult) error {
	for _, r := range seqs {
		for _, c := range r.path {
			w.WriteString(c.Kind.Code())
			w.WriteString(r.seq)
			w.WriteInt64(int64(c.Block.Start))
			w.WriteInt64(int64(c.Block.End))
			w.WriteString(c.Block.Pattern.FaString())
			w.WriteString(c.Block.Pattern.MoString())
			if err := w.EndLine(); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePhased writes the label-phased genotypes of every family.
func writePhased(w *tsvOutput, members []pedigree.Member, seqs []*sequenceResult) error {
	cols := []string{"#CHROM", "POS"}
	for _, m := range members {
		cols = append(cols, m.ID)
	}
	if err := w.writeHeader(cols...); err != nil {
		return err
	}
	for _, r := range seqs {
		for _, lp := range r.phased {
			f := lp.Family()
			w.WriteString(f.Seq)
			w.WriteInt64(int64(f.Pos))
			w.WriteString(lp.FatherGT())
			w.WriteString(lp.MotherGT())
			for i := range f.Children {
				w.WriteString(lp.ChildGT(i))
			}
			if err := w.EndLine(); err != nil {
				return err
			}
		}
	}
	return nil
}

// mendelianWriter writes records that violate Mendelian inheritance.  A nil
// *mendelianWriter discards everything.
type mendelianWriter struct {
	w *tsvOutput
}

func newMendelianWriter(ctx context.Context, path string, members []pedigree.Member, parallelism int) (*mendelianWriter, error) {
	if path == "" {
		return nil, nil
	}
	w, err := createTSV(ctx, path, parallelism)
	if err != nil {
		return nil, err
	}
	cols := []string{"#CHROM", "POS", "REF", "ALT"}
	for _, m := range members {
		cols = append(cols, m.ID)
	}
	if err := w.writeHeader(cols...); err != nil {
		_ = w.close(ctx)
		return nil, errors.E(err, "write", path)
	}
	return &mendelianWriter{w: w}, nil
}

func (m *mendelianWriter) write(rec *vcf.Record, members []pedigree.Member) error {
	if m == nil {
		return nil
	}
	m.w.WriteString(rec.Chrom)
	m.w.WriteInt64(int64(rec.Pos))
	m.w.WriteString(rec.Ref)
	m.w.WriteString(strings.Join(rec.Alts, ","))
	for _, mem := range members {
		m.w.WriteString(rec.GT[mem.Column])
	}
	return m.w.EndLine()
}

func (m *mendelianWriter) close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.w.close(ctx)
}

// writeOutputs writes the outputs requested by opts concurrently.
func writeOutputs(ctx context.Context, opts Opts, in *inputs, runID string, seqs []*sequenceResult) error {
	var jobs []func() error
	if opts.OutPath != "" {
		jobs = append(jobs, func() error {
			return writeTSV(ctx, opts.OutPath, opts.Parallelism, func(w *tsvOutput) error {
				return writeRegionsBED(w, seqs)
			})
		})
	}
	if opts.DiagnosticsPath != "" {
		jobs = append(jobs, func() error {
			return writeTSV(ctx, opts.DiagnosticsPath, opts.Parallelism, func(w *tsvOutput) error {
				return writeDiagnostics(w, seqs)
			})
		})
	}
	if opts.PhasedPath != "" {
		jobs = append(jobs, func() error {
			return writeTSV(ctx, opts.PhasedPath, opts.Parallelism, func(w *tsvOutput) error {
				return writePhased(w, in.members, seqs)
			})
		})
	}
	if opts.RegionsRIOPath != "" {
		jobs = append(jobs, func() error {
			var regions []Region
			for _, r := range seqs {
				regions = append(regions, r.regions...)
			}
			samples := make([]string, len(in.members))
			for i, m := range in.members {
				samples[i] = m.ID
			}
			return WriteRegionsRIO(ctx, opts.RegionsRIOPath, runID, samples, regions)
		})
	}
	if len(jobs) == 0 {
		log.Printf("writeOutputs: no output requested")
		return nil
	}
	return traverse.Each(len(jobs), func(i int) error { return jobs[i]() })
}
