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
	"github.com/grailbio/segregation/genotype"
)

// Family is one position's genotype calls for a father, a mother and their
// children, plus the per-child phase pattern derived from them.  Families are
// immutable once created.
type Family struct {
	Seq      string
	Pos      int // 1-based
	Father   genotype.Genotype
	Mother   genotype.Genotype
	Children []genotype.Genotype
	Pattern  PatternArray
	// XLike is set when the father is haploid and the mother diploid.
	XLike bool
}

// NewFamily creates a Family and computes its pattern.
//
// REQUIRES: len(children) > 1
func NewFamily(seq string, pos int, father, mother genotype.Genotype, children []genotype.Genotype) *Family {
	f := &Family{
		Seq:      seq,
		Pos:      pos,
		Father:   father,
		Mother:   mother,
		Children: children,
		XLike:    father.Ploidy == genotype.Haploid && mother.Ploidy == genotype.Diploid,
	}
	ps := make([]Pattern, len(children))
	for i, c := range children {
		ps[i] = Pattern{Fa: LabelUnknown, Mo: LabelUnknown}
		if ph, ok := simplePhasing(father, mother, c); ok {
			ps[i] = Pattern{Fa: labelOf(father, ph.Fa), Mo: labelOf(mother, ph.Mo)}
		}
	}
	f.Pattern = patternFromPatterns(ps)
	return f
}

// NChildren returns the number of children.
func (f *Family) NChildren() int { return len(f.Children) }

// IsMendelian returns true if every child is consistent with the parents.
func (f *Family) IsMendelian() bool {
	for _, c := range f.Children {
		if !genotype.IsMendelian(f.Father, f.Mother, c) {
			return false
		}
	}
	return true
}

// SupportedPloidies returns true if the Mendelian table covers every
// father/mother/child ploidy combination in f.
func (f *Family) SupportedPloidies() bool {
	for _, c := range f.Children {
		if !genotype.SupportedPloidies(f.Father.Ploidy, f.Mother.Ploidy, c.Ploidy) {
			return false
		}
	}
	return true
}

// Phased is a child's genotype split by origin.  -1 means no allele comes
// from that parent (e.g. the father of a son on chrX) or that the origin is
// unknown.
type Phased struct {
	Fa, Mo int
}

// labelOf returns the label of allele within parent.  Single-allele parents
// carry no phase information.
func labelOf(parent genotype.Genotype, allele int) byte {
	if allele < 0 || parent.IsSingleAllele() {
		return LabelUnknown
	}
	switch allele {
	case parent.A:
		return Label0
	case parent.B:
		return Label1
	}
	return LabelUnknown
}

// simplePhasing assigns each allele of child to a parent when the genotypes
// alone determine the assignment.
func simplePhasing(father, mother, child genotype.Genotype) (Phased, bool) {
	switch child.Ploidy {
	case genotype.Haploid:
		return phaseHaploidChild(father, mother, child)
	case genotype.Diploid:
	default:
		return Phased{-1, -1}, false
	}
	switch {
	case father.Ploidy == genotype.Haploid:
		// The father's only allele is forced.
		mo, ok := child.Other(father.A)
		if !ok || !mother.Contains(mo) {
			return Phased{-1, -1}, false
		}
		return Phased{Fa: father.A, Mo: mo}, true
	case mother.Ploidy == genotype.Haploid:
		fa, ok := child.Other(mother.A)
		if !ok || !father.Contains(fa) {
			return Phased{-1, -1}, false
		}
		return Phased{Fa: fa, Mo: mother.A}, true
	case father.Ploidy != genotype.Diploid || mother.Ploidy != genotype.Diploid:
		return Phased{-1, -1}, false
	}
	a, b := child.A, child.B
	if a == b {
		if father.Contains(a) && mother.Contains(a) {
			return Phased{Fa: a, Mo: a}, true
		}
		return Phased{-1, -1}, false
	}
	ab := father.Contains(a) && mother.Contains(b)
	ba := father.Contains(b) && mother.Contains(a)
	switch {
	case ab && !ba:
		return Phased{Fa: a, Mo: b}, true
	case ba && !ab:
		return Phased{Fa: b, Mo: a}, true
	}
	return Phased{-1, -1}, false
}

// phaseHaploidChild handles a child with a single copy, which comes from the
// only parent able to transmit it.
func phaseHaploidChild(father, mother, child genotype.Genotype) (Phased, bool) {
	switch {
	case mother.Ploidy == genotype.Diploid && father.Ploidy != genotype.Diploid,
		father.Ploidy == genotype.None:
		if mother.Contains(child.A) {
			return Phased{Fa: -1, Mo: child.A}, true
		}
	case father.Ploidy == genotype.Diploid && mother.Ploidy != genotype.Diploid,
		mother.Ploidy == genotype.None:
		if father.Contains(child.A) {
			return Phased{Fa: child.A, Mo: -1}, true
		}
	}
	return Phased{-1, -1}, false
}
