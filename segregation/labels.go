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
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/segregation/genotype"
)

// ParentPhase is a parent's genotype ordered by label: First is the allele
// carried by haplotype 0, Second the allele carried by haplotype 1.
type ParentPhase struct {
	First, Second int
}

// LabelPhasing is the result of phasing one family position using labels
// already resolved for the region it lies in.
type LabelPhasing struct {
	family   *Family
	faAllele [2]int // label -> father allele, -1 if unknown
	moAllele [2]int
	// Children[i] is the i'th child's phased genotype, or {-1, -1}.
	Children []Phased
}

func labelIndex(l byte) int {
	switch l {
	case Label0:
		return 0
	case Label1:
		return 1
	}
	return -1
}

// labelMap accumulates the label -> allele mapping of one parent.
type labelMap struct {
	parent genotype.Genotype
	allele [2]int
}

func newLabelMap(parent genotype.Genotype) labelMap {
	m := labelMap{parent: parent, allele: [2]int{-1, -1}}
	if parent.Ploidy != genotype.None && parent.IsSingleAllele() {
		m.allele = [2]int{parent.A, parent.A}
	}
	return m
}

// anchor records that the haplotype labelled l carries allele.  It returns
// false on a contradiction.
func (m *labelMap) anchor(l byte, allele int) bool {
	li := labelIndex(l)
	if li < 0 || allele < 0 || m.parent.IsSingleAllele() {
		return true
	}
	if cur := m.allele[li]; cur >= 0 {
		return cur == allele
	}
	other, ok := m.parent.Other(allele)
	if !ok {
		return false
	}
	if cur := m.allele[1-li]; cur >= 0 && cur != other {
		return false
	}
	// A heterozygous parent's other haplotype is forced.
	m.allele[li] = allele
	m.allele[1-li] = other
	return true
}

func (m *labelMap) lookup(l byte) int {
	if li := labelIndex(l); li >= 0 {
		return m.allele[li]
	}
	return -1
}

// PhaseWithLabels phases the children of family given the per-child labels
// of the region containing it.  Children sharing both labels must carry
// identical genotypes, otherwise the position cannot be phased and false is
// returned.  Children whose genotype alone determines allele origin anchor
// the label -> allele mapping of each parent; the remaining children are
// phased by elimination against those anchors, or left unphased.
func PhaseWithLabels(family *Family, labels PatternArray) (*LabelPhasing, bool) {
	n := family.NChildren()
	if labels.Len() != n {
		log.Panicf("PhaseWithLabels: %d labels for %d children", labels.Len(), n)
	}
	classRep := map[Pattern]int{}
	for i := 0; i < n; i++ {
		p := labels.Pattern(i)
		// Only fully labelled children form a class: in X-like regions the
		// father axis is unknown and sons and daughters differ in ploidy.
		if p.Fa == LabelUnknown || p.Mo == LabelUnknown {
			continue
		}
		if rep, ok := classRep[p]; ok {
			if family.Children[rep] != family.Children[i] {
				log.Debug.Printf("PhaseWithLabels: %s:%d children %d and %d share labels %c%c but differ",
					family.Seq, family.Pos, rep, i, p.Fa, p.Mo)
				return nil, false
			}
			continue
		}
		classRep[p] = i
	}

	fa := newLabelMap(family.Father)
	mo := newLabelMap(family.Mother)
	simple := make([]Phased, n)
	simpleOK := make([]bool, n)
	for i, c := range family.Children {
		simple[i], simpleOK[i] = simplePhasing(family.Father, family.Mother, c)
		if !simpleOK[i] {
			continue
		}
		p := labels.Pattern(i)
		if !fa.anchor(p.Fa, simple[i].Fa) || !mo.anchor(p.Mo, simple[i].Mo) {
			log.Debug.Printf("PhaseWithLabels: %s:%d child %d contradicts the region labels",
				family.Seq, family.Pos, i)
			return nil, false
		}
	}

	lp := &LabelPhasing{
		family:   family,
		faAllele: fa.allele,
		moAllele: mo.allele,
		Children: make([]Phased, n),
	}
	for i, c := range family.Children {
		if simpleOK[i] {
			lp.Children[i] = simple[i]
			continue
		}
		lp.Children[i] = phaseByElimination(c, fa.lookup(labels.Pattern(i).Fa), mo.lookup(labels.Pattern(i).Mo))
	}
	return lp, true
}

// phaseByElimination phases child given the allele each parent is known to
// have transmitted, -1 if unknown.
func phaseByElimination(child genotype.Genotype, fa, mo int) Phased {
	if child.Ploidy != genotype.Diploid {
		return Phased{-1, -1}
	}
	if fa >= 0 {
		if other, ok := child.Other(fa); ok && (mo < 0 || mo == other) {
			return Phased{Fa: fa, Mo: other}
		}
	}
	if mo >= 0 {
		if other, ok := child.Other(mo); ok && (fa < 0 || fa == other) {
			return Phased{Fa: other, Mo: mo}
		}
	}
	return Phased{-1, -1}
}

// Family returns the phased family.
func (lp *LabelPhasing) Family() *Family { return lp.family }

func parentPhase(parent genotype.Genotype, alleles [2]int) (ParentPhase, bool) {
	if parent.IsSingleAllele() || alleles[0] < 0 || alleles[1] < 0 {
		return ParentPhase{-1, -1}, false
	}
	return ParentPhase{First: alleles[0], Second: alleles[1]}, true
}

// PhaseFather returns the father's alleles ordered by label.  It returns
// false if the father is not heterozygous or no child anchors his labels.
func (lp *LabelPhasing) PhaseFather() (ParentPhase, bool) {
	return parentPhase(lp.family.Father, lp.faAllele)
}

// PhaseMother is PhaseFather for the mother.
func (lp *LabelPhasing) PhaseMother() (ParentPhase, bool) {
	return parentPhase(lp.family.Mother, lp.moAllele)
}

// FatherGT returns the father's genotype in VCF form, phased if possible.
func (lp *LabelPhasing) FatherGT() string {
	if pp, ok := lp.PhaseFather(); ok {
		return strconv.Itoa(pp.First) + "|" + strconv.Itoa(pp.Second)
	}
	return lp.family.Father.String()
}

// MotherGT is FatherGT for the mother.
func (lp *LabelPhasing) MotherGT() string {
	if pp, ok := lp.PhaseMother(); ok {
		return strconv.Itoa(pp.First) + "|" + strconv.Itoa(pp.Second)
	}
	return lp.family.Mother.String()
}

// ChildGT returns the i'th child's genotype in VCF form, paternal allele
// first when phased.
func (lp *LabelPhasing) ChildGT(i int) string {
	c := lp.family.Children[i]
	ph := lp.Children[i]
	if c.Ploidy == genotype.Diploid && ph.Fa >= 0 && ph.Mo >= 0 {
		return strconv.Itoa(ph.Fa) + "|" + strconv.Itoa(ph.Mo)
	}
	return c.String()
}
