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

// Package vcf adapts github.com/vertgenlab/gonomics/vcf to the parts of VCF
// files needed to phase families: the sequence dictionary, the sample names,
// and per-sample GT values.
package vcf

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/segregation/util"
	"github.com/pkg/errors"
	"github.com/vertgenlab/gonomics/fileio"
	gvcf "github.com/vertgenlab/gonomics/vcf"
)

// Number of fixed columns before the first sample.
const nFixed = 9

// Contig is a ##contig header line.  Length is 0 if not given.
type Contig struct {
	ID     string
	Length int
}

// Header holds the parsed VCF header.
type Header struct {
	// Meta holds the ## lines, without the leading "##".
	Meta    []string
	Contigs []Contig
	Samples []string
}

// Record is one VCF data line.
type Record struct {
	Chrom  string
	Pos    int // 1-based
	ID     string
	Ref    string
	Alts   []string
	Filter string
	// GT is the GT value of each sample, in header order, with alleles
	// separated by '/'.  Samples without a GT field get ".".
	GT []string
}

// Passes returns true if the record's FILTER is PASS or missing.
func (r *Record) Passes() bool {
	return r.Filter == "PASS" || r.Filter == "."
}

// Reader reads VCF records.
type Reader struct {
	er     *fileio.EasyReader
	in     *util.Reader
	header Header
	lineNo int
}

// NewReader reads the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	vr := &Reader{er: &fileio.EasyReader{BuffReader: bufio.NewReaderSize(r, 1<<20)}}
	if err := vr.readHeader(); err != nil {
		return nil, err
	}
	return vr, nil
}

// Open opens a plain or (b)gzipped VCF file.
func Open(ctx context.Context, path string) (*Reader, error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	vr, err := NewReader(in)
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.Wrapf(err, "vcf.Open %s", path)
	}
	vr.in = in
	return vr, nil
}

// Close closes the file opened by Open.  It is a no-op for readers created
// by NewReader.
func (vr *Reader) Close(ctx context.Context) error {
	if vr.in == nil {
		return nil
	}
	return vr.in.Close(ctx)
}

// Header returns the file header.
func (vr *Reader) Header() *Header { return &vr.header }

// recoverError turns a panic raised by the gonomics parser into an error.
func recoverError(err *error, format string, args ...interface{}) {
	if r := recover(); r != nil {
		*err = errors.Errorf(format+": %v", append(args, r)...)
	}
}

func (vr *Reader) readHeader() (err error) {
	defer recoverError(&err, "vcf: reading header")
	h := gvcf.ReadHeader(vr.er)
	vr.lineNo = len(h.Text)
	for i, line := range h.Text {
		switch {
		case strings.HasPrefix(line, "##"):
			meta := line[2:]
			vr.header.Meta = append(vr.header.Meta, meta)
			if strings.HasPrefix(meta, "contig=<") {
				c, err := parseContig(meta)
				if err != nil {
					return errors.Wrapf(err, "vcf: line %d", i+1)
				}
				vr.header.Contigs = append(vr.header.Contigs, c)
			}
		case strings.HasPrefix(line, "#CHROM"):
			cols := strings.Split(strings.TrimRight(line, "\r"), "\t")
			if len(cols) > nFixed {
				vr.header.Samples = cols[nFixed:]
			}
			return nil
		}
	}
	return errors.New("vcf: missing #CHROM header line")
}

// parseContig parses `contig=<ID=chr1,length=248956422,...>`.
func parseContig(meta string) (Contig, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(meta, "contig=<"), ">")
	var c Contig
	for _, kv := range strings.Split(body, ",") {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		switch kv[:eq] {
		case "ID":
			c.ID = kv[eq+1:]
		case "length":
			n, err := strconv.Atoi(kv[eq+1:])
			if err != nil {
				return c, errors.Errorf("bad contig length in %q", meta)
			}
			c.Length = n
		}
	}
	if c.ID == "" {
		return c, errors.Errorf("contig without ID: %q", meta)
	}
	return c, nil
}

// formatGT renders parsed alleles back to a GT string; -1 is a missing
// allele.
func formatGT(alleles []int16) string {
	if len(alleles) == 0 {
		return "."
	}
	var b strings.Builder
	for i, a := range alleles {
		if i > 0 {
			b.WriteByte('/')
		}
		if a < 0 {
			b.WriteByte('.')
		} else {
			b.WriteString(strconv.Itoa(int(a)))
		}
	}
	return b.String()
}

// Read returns the next record, or io.EOF.
func (vr *Reader) Read() (rec *Record, err error) {
	vr.lineNo++
	defer recoverError(&err, "vcf.Read: line %d", vr.lineNo)
	v, done := gvcf.NextVcf(vr.er)
	if done {
		return nil, io.EOF
	}
	nSamples := len(vr.header.Samples)
	if len(v.Samples) != nSamples {
		return nil, errors.Errorf("vcf.Read: line %d: expected %d samples, got %d", vr.lineNo, nSamples, len(v.Samples))
	}
	if v.Pos <= 0 {
		return nil, errors.Errorf("vcf.Read: line %d: bad position %d", vr.lineNo, v.Pos)
	}
	rec = &Record{
		Chrom:  v.Chr,
		Pos:    v.Pos,
		ID:     v.Id,
		Ref:    v.Ref,
		Alts:   v.Alt,
		Filter: v.Filter,
		GT:     make([]string, nSamples),
	}
	hasGT := len(v.Format) > 0 && v.Format[0] == "GT"
	for i := range v.Samples {
		rec.GT[i] = "."
		if hasGT {
			rec.GT[i] = formatGT(v.Samples[i].Alleles)
		}
	}
	return rec, nil
}

// IsSymbolic returns true for ALT values that do not name a sequence:
// missing, symbolic (<DEL>, <*>), spanning deletions and breakends.
func IsSymbolic(alt string) bool {
	return alt == "" || alt == "." || alt == "*" || alt[0] == '<' ||
		strings.ContainsAny(alt, "[]")
}

// hasAltAllele returns true if gt calls a non-reference allele.
func hasAltAllele(gt string) bool {
	start := 0
	for i := 0; i <= len(gt); i++ {
		if i < len(gt) && gt[i] != '/' && gt[i] != '|' {
			continue
		}
		if a := gt[start:i]; a != "" && a != "." && a != "0" {
			return true
		}
		start = i + 1
	}
	return false
}

// IsInformative returns true if rec has at least one sequence ALT allele and
// at least one of the given sample columns carries a non-reference allele.
func IsInformative(rec *Record, cols []int) bool {
	hasAlt := false
	for _, alt := range rec.Alts {
		if !IsSymbolic(alt) {
			hasAlt = true
			break
		}
	}
	if !hasAlt {
		return false
	}
	for _, c := range cols {
		if hasAltAllele(rec.GT[c]) {
			return true
		}
	}
	return false
}
