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
	"strings"

	"github.com/pkg/errors"
)

// Phase labels.  A label names which of a parent's two haplotypes a child
// inherited.  Which haplotype is called "0" is arbitrary, independently for
// each parent.
const (
	Label0       byte = '0'
	Label1       byte = '1'
	LabelUnknown byte = '?'
)

// Flip values.  Bit 0 swaps the father's labels, bit 1 the mother's.
const (
	FlipNone   = 0
	FlipFather = 1
	FlipMother = 2
	FlipBoth   = FlipFather | FlipMother
	nFlips     = 4
)

func flipLabel(l byte) byte {
	switch l {
	case Label0:
		return Label1
	case Label1:
		return Label0
	}
	return l
}

// mergeLabel returns the most specific label agreeing with both a and b.
func mergeLabel(a, b byte) (byte, bool) {
	switch {
	case a == LabelUnknown:
		return b, true
	case b == LabelUnknown, a == b:
		return a, true
	}
	return LabelUnknown, false
}

// Pattern is one child's pair of labels.
type Pattern struct {
	Fa, Mo byte
}

// PatternArray holds the labels of every child of a family at one position,
// one string per parent and one byte per child.  It is a value type and can
// be used as a map key.
type PatternArray struct {
	fa, mo string
}

func validLabels(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != Label0 && s[i] != Label1 && s[i] != LabelUnknown {
			return false
		}
	}
	return true
}

// NewPatternArray builds a PatternArray from its father and mother label
// strings.
func NewPatternArray(fa, mo string) (PatternArray, error) {
	if len(fa) != len(mo) {
		return PatternArray{}, errors.Errorf("NewPatternArray: length mismatch %q vs %q", fa, mo)
	}
	if !validLabels(fa) || !validLabels(mo) {
		return PatternArray{}, errors.Errorf("NewPatternArray: invalid label in %q/%q", fa, mo)
	}
	return PatternArray{fa: fa, mo: mo}, nil
}

// MustPatternArray is NewPatternArray, panicking on error.
func MustPatternArray(fa, mo string) PatternArray {
	p, err := NewPatternArray(fa, mo)
	if err != nil {
		panic(err)
	}
	return p
}

func patternFromPatterns(ps []Pattern) PatternArray {
	fa := make([]byte, len(ps))
	mo := make([]byte, len(ps))
	for i, p := range ps {
		fa[i], mo[i] = p.Fa, p.Mo
	}
	return PatternArray{fa: string(fa), mo: string(mo)}
}

// Len returns the number of children.
func (p PatternArray) Len() int { return len(p.fa) }

// Pattern returns the labels of the i'th child.
func (p PatternArray) Pattern(i int) Pattern { return Pattern{Fa: p.fa[i], Mo: p.mo[i]} }

// FaString returns the father's labels, one byte per child.
func (p PatternArray) FaString() string { return p.fa }

// MoString returns the mother's labels, one byte per child.
func (p PatternArray) MoString() string { return p.mo }

// FaCount returns the number of children labelled 1 on the father's axis.
func (p PatternArray) FaCount() int { return strings.Count(p.fa, "1") }

// MoCount returns the number of children labelled 1 on the mother's axis.
func (p PatternArray) MoCount() int { return strings.Count(p.mo, "1") }

// Count returns FaCount() or MoCount().
func (p PatternArray) Count(onFather bool) int {
	if onFather {
		return p.FaCount()
	}
	return p.MoCount()
}

// Label returns the i'th child's label on one parent's axis.
func (p PatternArray) Label(onFather bool, i int) byte {
	if onFather {
		return p.fa[i]
	}
	return p.mo[i]
}

// IsEmpty returns true if no child carries a known label.
func (p PatternArray) IsEmpty() bool {
	return strings.Trim(p.fa, "?") == "" && strings.Trim(p.mo, "?") == ""
}

// IsPhased returns true if every label that matters is known.  Only the
// mother's axis matters in X-like regions, where the father transmits his
// single copy to every daughter.
func (p PatternArray) IsPhased(xLike bool) bool {
	if strings.IndexByte(p.mo, LabelUnknown) >= 0 {
		return false
	}
	return xLike || strings.IndexByte(p.fa, LabelUnknown) < 0
}

func flipString(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = flipLabel(b[i])
	}
	return string(b)
}

// Flip relabels p according to flip.
func (p PatternArray) Flip(flip int) PatternArray {
	r := p
	if flip&FlipFather != 0 {
		r.fa = flipString(p.fa)
	}
	if flip&FlipMother != 0 {
		r.mo = flipString(p.mo)
	}
	return r
}

// WithLabel returns a copy of p with the i'th child's label on one axis
// replaced.
func (p PatternArray) WithLabel(onFather bool, i int, l byte) PatternArray {
	r := p
	if onFather {
		b := []byte(p.fa)
		b[i] = l
		r.fa = string(b)
	} else {
		b := []byte(p.mo)
		b[i] = l
		r.mo = string(b)
	}
	return r
}

func intersectAxis(self, other string, flip bool) (string, bool) {
	out := make([]byte, len(self))
	for i := 0; i < len(self); i++ {
		o := other[i]
		if flip {
			o = flipLabel(o)
		}
		l, ok := mergeLabel(self[i], o)
		if !ok {
			return "", false
		}
		out[i] = l
	}
	return string(out), true
}

// FlipIntersect relabels other according to flip, then merges it with p
// child by child.  It returns false if some child carries different known
// labels in p and in the relabelled other.  On success the result is at least
// as specific as both inputs.
func (p PatternArray) FlipIntersect(other PatternArray, flip int) (PatternArray, bool) {
	if p.Len() != other.Len() {
		return PatternArray{}, false
	}
	fa, ok := intersectAxis(p.fa, other.fa, flip&FlipFather != 0)
	if !ok {
		return PatternArray{}, false
	}
	mo, ok := intersectAxis(p.mo, other.mo, flip&FlipMother != 0)
	if !ok {
		return PatternArray{}, false
	}
	return PatternArray{fa: fa, mo: mo}, true
}

// Intersect tries the flips in order and returns the first successful
// intersection along with the flip used.
func (p PatternArray) Intersect(other PatternArray) (PatternArray, int, bool) {
	for flip := 0; flip < nFlips; flip++ {
		if r, ok := p.FlipIntersect(other, flip); ok {
			return r, flip, true
		}
	}
	return PatternArray{}, -1, false
}

// Compatible returns true if p and other agree under some flip.
func (p PatternArray) Compatible(other PatternArray) bool {
	_, _, ok := p.Intersect(other)
	return ok
}

// StrictEquals returns true if p and other are identical without relabeling
// or refinement.
func (p PatternArray) StrictEquals(other PatternArray) bool {
	return p == other
}

func lessPattern(a, b PatternArray) bool {
	if a.fa != b.fa {
		return a.fa < b.fa
	}
	return a.mo < b.mo
}

// Canonical returns the smallest of p's four relabelings.  Two patterns that
// differ only by a flip have the same canonical form.
func (p PatternArray) Canonical() PatternArray {
	best := p
	for flip := 1; flip < nFlips; flip++ {
		if f := p.Flip(flip); lessPattern(f, best) {
			best = f
		}
	}
	return best
}

// String returns "fa/mo".
func (p PatternArray) String() string { return p.fa + "/" + p.mo }
