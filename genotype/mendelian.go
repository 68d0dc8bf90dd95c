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
package genotype

import (
	"github.com/grailbio/base/log"
)

// MendelianFunc reports whether child can be produced by transmitting one
// allele of father and one allele of mother.  Only allele identity matters.
type MendelianFunc func(father, mother, child Genotype) bool

// ploidyTriple is (father, mother, child).
type ploidyTriple struct {
	father, mother, child Ploidy
}

func dipDipDip(f, m, c Genotype) bool {
	return (f.Contains(c.A) && m.Contains(c.B)) || (f.Contains(c.B) && m.Contains(c.A))
}

// hapDipDip: a daughter in a male-haploid region takes the father's only
// allele plus one maternal allele.
func hapDipDip(f, m, c Genotype) bool {
	return (c.A == f.A && m.Contains(c.B)) || (c.B == f.A && m.Contains(c.A))
}

// hapDipHap: a son in a male-haploid region inherits from the mother only.
func hapDipHap(f, m, c Genotype) bool {
	return m.Contains(c.A)
}

func noneHapNone(f, m, c Genotype) bool {
	return true
}

func hapNoneHap(f, m, c Genotype) bool {
	return c.A == f.A
}

func polyPolyPoly(f, m, c Genotype) bool {
	return c.A == m.A || c.A == f.A
}

// swap exchanges the roles of the two parents.
func swap(fn MendelianFunc) MendelianFunc {
	return func(f, m, c Genotype) bool { return fn(m, f, c) }
}

var mendelianTable = map[ploidyTriple]MendelianFunc{
	{Diploid, Diploid, Diploid}:       dipDipDip,
	{Haploid, Diploid, Diploid}:       hapDipDip,
	{Diploid, Haploid, Diploid}:       swap(hapDipDip),
	{Haploid, Diploid, Haploid}:       hapDipHap,
	{Diploid, Haploid, Haploid}:       swap(hapDipHap),
	{None, Haploid, None}:             noneHapNone,
	{Haploid, None, None}:             swap(noneHapNone),
	{Haploid, None, Haploid}:          hapNoneHap,
	{None, Haploid, Haploid}:          swap(hapNoneHap),
	{Polyploid, Polyploid, Polyploid}: polyPolyPoly,
}

// Mendelian returns the consistency predicate for the given ploidies.  The
// second return value is false if the combination is not supported.
func Mendelian(father, mother, child Ploidy) (MendelianFunc, bool) {
	fn, ok := mendelianTable[ploidyTriple{father, mother, child}]
	return fn, ok
}

// SupportedPloidies returns true if IsMendelian can evaluate genotypes with
// the given ploidies.
func SupportedPloidies(father, mother, child Ploidy) bool {
	_, ok := mendelianTable[ploidyTriple{father, mother, child}]
	return ok
}

// IsMendelian returns true if child is consistent with father and mother.
//
// REQUIRES: SupportedPloidies(father.Ploidy, mother.Ploidy, child.Ploidy).
func IsMendelian(father, mother, child Genotype) bool {
	fn, ok := mendelianTable[ploidyTriple{father.Ploidy, mother.Ploidy, child.Ploidy}]
	if !ok {
		log.Panicf("genotype.IsMendelian: unsupported ploidy combination father=%v mother=%v child=%v",
			father.Ploidy, mother.Ploidy, child.Ploidy)
	}
	return fn(father, mother, child)
}
