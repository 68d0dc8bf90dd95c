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

// Package reference describes the reference genome a family was called
// against: its sequence dictionary, and the ploidy of each sequence per sex.
package reference

import (
	"context"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/segregation/util"
	"github.com/pkg/errors"
)

// Genome is an ordered sequence dictionary.
type Genome struct {
	header *sam.Header
	byName map[string]seqInfo
}

type seqInfo struct {
	id, length int // length 0 means unknown
}

// NewGenome creates a Genome from parallel lists of names and lengths.  A
// length of 0 means unknown.
func NewGenome(names []string, lengths []int) (*Genome, error) {
	if len(names) != len(lengths) {
		return nil, errors.Errorf("NewGenome: %d names, %d lengths", len(names), len(lengths))
	}
	refs := make([]*sam.Reference, len(names))
	for i, name := range names {
		length := lengths[i]
		if length <= 0 {
			// sam.Reference requires a positive length.
			length = 1<<31 - 1
		}
		ref, err := sam.NewReference(name, "", "", length, nil, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "NewGenome: sequence %s", name)
		}
		refs[i] = ref
	}
	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, errors.Wrap(err, "NewGenome")
	}
	g := FromHeader(h)
	for i, name := range names {
		if lengths[i] <= 0 {
			g.byName[name] = seqInfo{id: i}
		}
	}
	return g, nil
}

// FromHeader wraps a SAM header.
func FromHeader(h *sam.Header) *Genome {
	g := &Genome{header: h, byName: map[string]seqInfo{}}
	for i, ref := range h.Refs() {
		g.byName[ref.Name()] = seqInfo{id: i, length: ref.Len()}
	}
	return g
}

// faiRow is one line of a samtools faidx index.
type faiRow struct {
	Name      string `tsv:"name"`
	Length    int64  `tsv:"length"`
	Offset    int64  `tsv:"offset"`
	LineBases int64  `tsv:"linebases"`
	LineWidth int64  `tsv:"linewidth"`
}

// ReadFai reads a FASTA index (.fai).
func ReadFai(r io.Reader) (*Genome, error) {
	tr := tsv.NewReader(r)
	var (
		names   []string
		lengths []int
	)
	for {
		var row faiRow
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "ReadFai")
		}
		names = append(names, row.Name)
		lengths = append(lengths, int(row.Length))
	}
	if len(names) == 0 {
		return nil, errors.New("ReadFai: empty index")
	}
	return NewGenome(names, lengths)
}

// ReadDict reads a sequence dictionary (.dict), i.e. a SAM header.
func ReadDict(r io.Reader) (*Genome, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "ReadDict")
	}
	h, err := sam.NewHeader(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ReadDict")
	}
	return FromHeader(h), nil
}

// LoadGenome reads a .fai, or a .dict if the path (minus any .gz suffix)
// ends in ".dict".
func LoadGenome(ctx context.Context, path string) (g *Genome, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if strings.HasSuffix(strings.TrimSuffix(path, ".gz"), ".dict") {
		return ReadDict(in)
	}
	return ReadFai(in)
}

// Header returns the genome as a SAM header.
func (g *Genome) Header() *sam.Header { return g.header }

// Names returns the sequence names in dictionary order.
func (g *Genome) Names() []string {
	refs := g.header.Refs()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name()
	}
	return names
}

// Has returns true if seq is in the dictionary.
func (g *Genome) Has(seq string) bool {
	_, ok := g.byName[seq]
	return ok
}

// ID returns the index of seq in the dictionary, or -1.
func (g *Genome) ID(seq string) int {
	if info, ok := g.byName[seq]; ok {
		return info.id
	}
	return -1
}

// Length returns the length of seq, or 0 if it is unknown.
func (g *Genome) Length(seq string) int {
	return g.byName[seq].length
}
