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

// Package pedigree reads PED files and selects the father/mother/children
// family to phase.
package pedigree

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/segregation/reference"
	"github.com/grailbio/segregation/util"
	"github.com/pkg/errors"
)

// Entry is one PED line.
type Entry struct {
	FamilyID     string
	IndividualID string
	PaternalID   string // "0" if unknown
	MaternalID   string // "0" if unknown
	Sex          reference.Sex
	Phenotype    string
}

// Read parses a PED file: whitespace-separated columns FID IID PAT MAT SEX
// PHENOTYPE.  Blank lines and lines starting with '#' are skipped.
func Read(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		lineNo  int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 5 {
			return nil, errors.Errorf("pedigree.Read: line %d: expected at least 5 columns, got %d", lineNo, len(cols))
		}
		sex, err := reference.ParseSex(cols[4])
		if err != nil {
			return nil, errors.Wrapf(err, "pedigree.Read: line %d", lineNo)
		}
		e := Entry{
			FamilyID:     cols[0],
			IndividualID: cols[1],
			PaternalID:   cols[2],
			MaternalID:   cols[3],
			Sex:          sex,
		}
		if len(cols) > 5 {
			e.Phenotype = cols[5]
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "pedigree.Read")
	}
	return entries, nil
}

// Load reads a PED file from path.
func Load(ctx context.Context, path string) (entries []Entry, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	return Read(in)
}

// Member is one family member and its genotype column in the variant file.
type Member struct {
	ID     string
	Sex    reference.Sex
	Column int
}

// Family is a father, a mother and at least two of their children.
type Family struct {
	Father, Mother Member
	Children       []Member
}

// Members returns the father, the mother, then the children.
func (f *Family) Members() []Member {
	return append([]Member{f.Father, f.Mother}, f.Children...)
}

func sampleColumns(samples []string) map[string]int {
	cols := make(map[string]int, len(samples))
	for i, s := range samples {
		cols[s] = i
	}
	return cols
}

func isParent(id string) bool { return id != "" && id != "0" }

// SelectFamily picks the family to phase among entries, restricted to the
// given variant-file samples.  If father or mother is non-empty, only
// families with that parent are considered.  Exactly one father/mother pair
// with at least two sequenced children must remain.  Children are ordered by
// their column in samples.
func SelectFamily(entries []Entry, samples []string, father, mother string) (*Family, error) {
	cols := sampleColumns(samples)
	type parents struct{ fa, mo string }
	children := map[parents][]Entry{}
	var order []parents
	for _, e := range entries {
		if !isParent(e.PaternalID) || !isParent(e.MaternalID) {
			continue
		}
		if _, ok := cols[e.IndividualID]; !ok {
			continue
		}
		p := parents{e.PaternalID, e.MaternalID}
		if (father != "" && p.fa != father) || (mother != "" && p.mo != mother) {
			continue
		}
		if _, ok := cols[p.fa]; !ok {
			continue
		}
		if _, ok := cols[p.mo]; !ok {
			continue
		}
		if _, ok := children[p]; !ok {
			order = append(order, p)
		}
		children[p] = append(children[p], e)
	}
	var candidates []parents
	for _, p := range order {
		if len(children[p]) >= 2 {
			candidates = append(candidates, p)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, errors.New("SelectFamily: no father/mother pair with at least two sequenced children")
	case 1:
	default:
		return nil, errors.Errorf("SelectFamily: %d candidate families, pick one with -father/-mother", len(candidates))
	}
	p := candidates[0]
	fam := &Family{
		Father: Member{ID: p.fa, Sex: reference.Male, Column: cols[p.fa]},
		Mother: Member{ID: p.mo, Sex: reference.Female, Column: cols[p.mo]},
	}
	for _, e := range children[p] {
		fam.Children = append(fam.Children, Member{ID: e.IndividualID, Sex: e.Sex, Column: cols[e.IndividualID]})
	}
	sort.Slice(fam.Children, func(i, j int) bool { return fam.Children[i].Column < fam.Children[j].Column })
	return fam, nil
}

// NewFamily builds a family from explicit sample names.  childSexes may be
// empty (all unknown) or have one entry per child.
func NewFamily(samples []string, father, mother string, children []string, childSexes []reference.Sex) (*Family, error) {
	if len(children) < 2 {
		return nil, errors.Errorf("NewFamily: need at least two children, got %d", len(children))
	}
	if len(childSexes) != 0 && len(childSexes) != len(children) {
		return nil, errors.Errorf("NewFamily: %d sexes for %d children", len(childSexes), len(children))
	}
	cols := sampleColumns(samples)
	member := func(id string, sex reference.Sex) (Member, error) {
		col, ok := cols[id]
		if !ok {
			return Member{}, errors.Errorf("NewFamily: sample %s not found%s", id, util.Suggest(id, samples, 2))
		}
		return Member{ID: id, Sex: sex, Column: col}, nil
	}
	var (
		fam Family
		err error
	)
	if fam.Father, err = member(father, reference.Male); err != nil {
		return nil, err
	}
	if fam.Mother, err = member(mother, reference.Female); err != nil {
		return nil, err
	}
	for i, c := range children {
		sex := reference.Unknown
		if len(childSexes) > 0 {
			sex = childSexes[i]
		}
		m, err := member(c, sex)
		if err != nil {
			return nil, err
		}
		fam.Children = append(fam.Children, m)
	}
	return &fam, nil
}
