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

// Package genotype represents single-sample genotype calls and the Mendelian
// consistency rules between a father, a mother and a child.
package genotype

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Ploidy is the number of haplotype copies a sample carries at a locus.
type Ploidy uint8

const (
	// None means the sample carries no copy (e.g. chrY in females).
	None Ploidy = iota
	// Haploid means a single copy.
	Haploid
	// Diploid means two copies.
	Diploid
	// Polyploid is used for loci such as chrM, where many copies exist but
	// only a single allele is reported.
	Polyploid
)

var ploidyNames = [...]string{"NONE", "HAPLOID", "DIPLOID", "POLYPLOID"}

func (p Ploidy) String() string {
	if int(p) < len(ploidyNames) {
		return ploidyNames[p]
	}
	return "Ploidy(" + strconv.Itoa(int(p)) + ")"
}

// ParsePloidy parses the output of Ploidy.String(), case-sensitively.  The
// numeric forms "0", "1" and "2" are accepted as well.
func ParsePloidy(s string) (Ploidy, error) {
	switch s {
	case "NONE", "0":
		return None, nil
	case "HAPLOID", "1":
		return Haploid, nil
	case "DIPLOID", "2":
		return Diploid, nil
	case "POLYPLOID":
		return Polyploid, nil
	}
	return None, errors.Errorf("genotype.ParsePloidy: unknown ploidy %q", s)
}

// Genotype is one sample's call at one position.  When two alleles are
// present, A <= B.  B is -1 when only one allele exists, and both are -1 for
// ploidy None.
type Genotype struct {
	Ploidy Ploidy
	A, B   int
}

// Absent is the genotype of a sample with no copy of the locus.
var Absent = Genotype{Ploidy: None, A: -1, B: -1}

// New returns a canonical genotype.  Pass b=-1 for a single-allele call.
func New(p Ploidy, a, b int) Genotype {
	if p == None {
		return Absent
	}
	if b >= 0 && b < a {
		a, b = b, a
	}
	return Genotype{Ploidy: p, A: a, B: b}
}

// MismatchingPloidyError is returned by Parse when the number of alleles in a
// genotype string disagrees with the ploidy supplied for the sample.
type MismatchingPloidyError struct {
	GT      string
	Ploidy  Ploidy
	Alleles int
}

func (e *MismatchingPloidyError) Error() string {
	return fmt.Sprintf("genotype %q has %d allele(s), incompatible with ploidy %v", e.GT, e.Alleles, e.Ploidy)
}

// IsMismatchingPloidy returns true if err (or its cause) is a
// *MismatchingPloidyError.
func IsMismatchingPloidy(err error) bool {
	_, ok := errors.Cause(err).(*MismatchingPloidyError)
	return ok
}

func isSep(c byte) bool { return c == '/' || c == '|' }

// Parse parses a VCF-style genotype string ("0/1", "1|0", "2", ".") given the
// ploidy of the sample at that locus.  A missing call is read as the
// reference: 0/0 for diploid samples and 0 otherwise.
func Parse(s string, p Ploidy) (Genotype, error) {
	if p == None {
		return Absent, nil
	}
	var (
		fields  [3]string
		nFields int
		start   int
	)
	for i := 0; i <= len(s); i++ {
		if i < len(s) && !isSep(s[i]) {
			continue
		}
		if nFields < len(fields) {
			fields[nFields] = s[start:i]
		}
		nFields++
		start = i + 1
	}
	nMissing := 0
	for i := 0; i < nFields && i < len(fields); i++ {
		if fields[i] == "." {
			nMissing++
		}
	}
	if nMissing == nFields {
		if p == Diploid {
			return New(p, 0, 0), nil
		}
		return New(p, 0, -1), nil
	}
	if nMissing > 0 {
		return Absent, errors.Errorf("genotype.Parse: partially missing genotype %q", s)
	}
	switch p {
	case Diploid:
		if nFields != 2 {
			return Absent, &MismatchingPloidyError{GT: s, Ploidy: p, Alleles: nFields}
		}
	case Haploid, Polyploid:
		if nFields != 1 {
			return Absent, &MismatchingPloidyError{GT: s, Ploidy: p, Alleles: nFields}
		}
	default:
		return Absent, errors.Errorf("genotype.Parse: invalid ploidy %v", p)
	}
	var alleles [2]int
	for i := 0; i < nFields; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 {
			return Absent, errors.Errorf("genotype.Parse: malformed allele %q in %q", fields[i], s)
		}
		alleles[i] = v
	}
	if nFields == 1 {
		return New(p, alleles[0], -1), nil
	}
	return New(p, alleles[0], alleles[1]), nil
}

// IsSingleAllele returns true if the call carries at most one distinct allele.
func (g Genotype) IsSingleAllele() bool {
	return g.A == g.B || g.B == -1
}

// Contains returns true if allele is one of g's alleles.
func (g Genotype) Contains(allele int) bool {
	if allele < 0 {
		return false
	}
	return g.A == allele || g.B == allele
}

// Other returns the allele of g that is not allele.  For a homozygous or
// single-allele call, Other returns g.A.  The second return value is false if
// g does not contain allele.
func (g Genotype) Other(allele int) (int, bool) {
	switch {
	case !g.Contains(allele):
		return -1, false
	case g.IsSingleAllele():
		return g.A, true
	case g.A == allele:
		return g.B, true
	}
	return g.A, true
}

// IsReference returns true if every allele of g is the reference allele.
func (g Genotype) IsReference() bool {
	return g.Ploidy == None || (g.A == 0 && (g.B == 0 || g.B == -1))
}

// String returns the unphased VCF representation of g.
func (g Genotype) String() string {
	switch {
	case g.Ploidy == None:
		return "."
	case g.B == -1:
		return strconv.Itoa(g.A)
	}
	return strconv.Itoa(g.A) + "/" + strconv.Itoa(g.B)
}
