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
package reference

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/segregation/genotype"
	"github.com/grailbio/segregation/util"
	"github.com/pkg/errors"
)

// Sex of a sample.
type Sex uint8

const (
	// Unknown sex.
	Unknown Sex = iota
	// Male sex.
	Male
	// Female sex.
	Female
	// Either is only used in rules, to match samples of any sex.
	Either
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "M"
	case Female:
		return "F"
	case Either:
		return "*"
	}
	return "U"
}

// ParseSex parses PED sex codes (1=male, 2=female, 0=unknown) as well as
// M/F/U and "*" for Either.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(s) {
	case "1", "m", "male":
		return Male, nil
	case "2", "f", "female":
		return Female, nil
	case "0", "u", "unknown", "", "-9":
		return Unknown, nil
	case "*", "either", "any":
		return Either, nil
	}
	return Unknown, errors.Errorf("ParseSex: unknown sex %q", s)
}

// PloidyLookup returns the ploidy of a sample of the given sex at a 1-based
// position.
type PloidyLookup interface {
	Ploidy(sex Sex, seq string, pos int) genotype.Ploidy
}

// Rule assigns a ploidy to a range of one sequence for one sex.
type Rule struct {
	Sex Sex
	Seq string
	// Start and End are 1-based and inclusive.  0 leaves the bound open.
	Start, End int
	Ploidy     genotype.Ploidy
}

func (r *Rule) matches(sex Sex, seq string, pos int) bool {
	if r.Seq != seq {
		return false
	}
	if r.Sex != Either && r.Sex != sex {
		return false
	}
	return (r.Start == 0 || pos >= r.Start) && (r.End == 0 || pos <= r.End)
}

// Rules is an ordered list of ploidy rules.  The first matching rule wins;
// positions matching no rule are diploid.  A sample of unknown sex only
// matches rules for Either.
type Rules struct {
	rules []Rule
	bySeq map[string][]int
}

// NewRules indexes rules.
func NewRules(rules []Rule) *Rules {
	r := &Rules{rules: rules, bySeq: map[string][]int{}}
	for i := range rules {
		r.bySeq[rules[i].Seq] = append(r.bySeq[rules[i].Seq], i)
	}
	return r
}

// Ploidy implements PloidyLookup.
func (r *Rules) Ploidy(sex Sex, seq string, pos int) genotype.Ploidy {
	for _, i := range r.bySeq[seq] {
		if r.rules[i].matches(sex, seq, pos) {
			return r.rules[i].Ploidy
		}
	}
	return genotype.Diploid
}

// Len returns the number of rules.
func (r *Rules) Len() int { return len(r.rules) }

// GRCh38 pseudoautosomal regions of chrX.
const (
	par1Start = 10001
	par1End   = 2781479
	par2Start = 155701383
	par2End   = 156030895
)

// HumanRules returns the rules for a human genome, for both the "chrX" and
// the "X" naming conventions: chrX is haploid in males outside the
// pseudoautosomal regions, chrY is haploid in males and absent in females,
// and the mitochondrial genome is polyploid.
func HumanRules() *Rules {
	var rules []Rule
	for _, prefix := range []string{"chr", ""} {
		x, y := prefix+"X", prefix+"Y"
		mito := "chrM"
		if prefix == "" {
			mito = "MT"
		}
		rules = append(rules,
			Rule{Sex: Either, Seq: mito, Ploidy: genotype.Polyploid},
			Rule{Sex: Male, Seq: x, Start: par1Start, End: par1End, Ploidy: genotype.Diploid},
			Rule{Sex: Male, Seq: x, Start: par2Start, End: par2End, Ploidy: genotype.Diploid},
			Rule{Sex: Male, Seq: x, Ploidy: genotype.Haploid},
			Rule{Sex: Male, Seq: y, Ploidy: genotype.Haploid},
			Rule{Sex: Female, Seq: y, Ploidy: genotype.None},
		)
	}
	return NewRules(rules)
}

// ruleRow is one line of a ploidy rule file.
type ruleRow struct {
	Sex    string `tsv:"SEX"`
	Seq    string `tsv:"SEQ"`
	Start  int    `tsv:"START"`
	End    int    `tsv:"END"`
	Ploidy string `tsv:"PLOIDY"`
}

// ReadRules reads a tab-separated rule file with the header
// SEX SEQ START END PLOIDY.  Lines starting with '#' are ignored.
func ReadRules(r io.Reader) (*Rules, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	tr.Comment = '#'
	var rules []Rule
	for {
		var row ruleRow
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "ReadRules")
		}
		sex, err := ParseSex(row.Sex)
		if err != nil {
			return nil, errors.Wrapf(err, "ReadRules: rule %d", len(rules)+1)
		}
		p, err := genotype.ParsePloidy(strings.ToUpper(row.Ploidy))
		if err != nil {
			return nil, errors.Wrapf(err, "ReadRules: rule %d", len(rules)+1)
		}
		if row.Start < 0 || row.End < 0 || (row.End > 0 && row.End < row.Start) {
			return nil, errors.Errorf("ReadRules: rule %d: invalid range %d-%d", len(rules)+1, row.Start, row.End)
		}
		rules = append(rules, Rule{Sex: sex, Seq: row.Seq, Start: row.Start, End: row.End, Ploidy: p})
	}
	return NewRules(rules), nil
}

// LoadRules reads a rule file, or returns HumanRules() if path is empty.
func LoadRules(ctx context.Context, path string) (r *Rules, err error) {
	if path == "" {
		return HumanRules(), nil
	}
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if r, err = ReadRules(in); err == nil {
		log.Printf("LoadRules: %d ploidy rule(s) read from %s", r.Len(), path)
	}
	return r, err
}
