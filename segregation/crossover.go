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
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// CrossOver describes a recombination in one child: that child's label on
// one parent's axis changes between two blocks while every other label stays
// put.
type CrossOver struct {
	FamilyLength int
	OnFather     bool
	ChildIndex   int
	// CountBefore and CountAfter are the number of children labelled 1 on the
	// crossover axis before and after the event.
	CountBefore, CountAfter int
	// ConsistentPattern is the pattern after the crossover, in the labelling
	// of the preceding region.
	ConsistentPattern PatternArray
}

// NewCrossOver validates and returns a CrossOver.
func NewCrossOver(familyLength int, onFather bool, childIndex, countBefore, countAfter int, pattern PatternArray) (CrossOver, error) {
	if d := countAfter - countBefore; d != 1 && d != -1 {
		return CrossOver{}, errors.Errorf("NewCrossOver: counts %d -> %d differ by more than one child", countBefore, countAfter)
	}
	if countBefore < 0 || countBefore > familyLength || countAfter < 0 || countAfter > familyLength {
		return CrossOver{}, errors.Errorf("NewCrossOver: counts %d -> %d out of range [0, %d]", countBefore, countAfter, familyLength)
	}
	if childIndex < 0 || childIndex >= familyLength {
		return CrossOver{}, errors.Errorf("NewCrossOver: child %d out of range [0, %d)", childIndex, familyLength)
	}
	return CrossOver{
		FamilyLength:      familyLength,
		OnFather:          onFather,
		ChildIndex:        childIndex,
		CountBefore:       countBefore,
		CountAfter:        countAfter,
		ConsistentPattern: pattern,
	}, nil
}

// ParentName returns "father" or "mother".
func (x CrossOver) ParentName() string {
	if x.OnFather {
		return "father"
	}
	return "mother"
}

func (x CrossOver) String() string {
	return fmt.Sprintf("XO(child=%d,%s,%d->%d)", x.ChildIndex, x.ParentName(), x.CountBefore, x.CountAfter)
}

// ResolveLevel is ResolveLevel applied to x.
func (x CrossOver) ResolveLevel(prevFaLevel, prevMoLevel int) (int, int) {
	return ResolveLevel(x.OnFather, x.FamilyLength, x.CountBefore, x.CountAfter, prevFaLevel, prevMoLevel)
}

// ResolveLevel computes the recombination levels after a crossover.  A level
// is a count of children labelled 1 on one parent's axis, tracked along the
// chromosome; since labels are only known up to a flip, countBefore matches
// either prevLevel or familyLength-prevLevel.  The other parent's level is
// returned unchanged.  A crossover that matches neither is an internal error.
func ResolveLevel(onFather bool, familyLength, countBefore, countAfter, prevFaLevel, prevMoLevel int) (int, int) {
	prev := prevMoLevel
	if onFather {
		prev = prevFaLevel
	}
	var level int
	switch {
	case countBefore == prev:
		level = countAfter
	case countBefore == familyLength-prev:
		level = familyLength - countAfter
	default:
		log.Panicf("ResolveLevel: crossover %d->%d does not connect to level %d (family of %d)",
			countBefore, countAfter, prev, familyLength)
	}
	if onFather {
		return level, prevMoLevel
	}
	return prevFaLevel, level
}

// minDiff returns whichever of count and n-count is closest to prevLevel,
// preferring count on a tie.
func minDiff(prevLevel, n, count int) int {
	alt := n - count
	if abs(alt-prevLevel) < abs(count-prevLevel) {
		return alt
	}
	return count
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
