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
	"github.com/grailbio/base/log"
)

// Region type codes.
const (
	// RegionLinked marks the first region of a sequence, and regions reached
	// without a recombination.
	RegionLinked = "L"
	// RegionCrossover marks a region starting at a crossover.
	RegionCrossover = "X"
	// RegionNew marks a region disconnected from its predecessor.
	RegionNew = "N"
)

// Region is one emitted phasing region.  Coordinates are 0-based half-open.
type Region struct {
	Seq     string
	Start0  int
	End     int
	Fa, Mo  string
	Code    string
	FaLevel int
	MoLevel int
	XLike   bool
}

// Pattern returns r's pattern.
func (r Region) Pattern() PatternArray { return PatternArray{fa: r.Fa, mo: r.Mo} }

// regionEmitter turns a search path into regions.
type regionEmitter struct {
	seq string

	open             bool
	start, end       int // 0-based, end exclusive
	pattern          PatternArray
	code             string
	xLike            bool
	faLevel, moLevel int

	regions []Region
}

func (e *regionEmitter) emit(end int) {
	if !e.open || end <= e.start {
		return
	}
	if !e.pattern.IsPhased(e.xLike) {
		log.Debug.Printf("EmitRegions: dropping unphased region %s:%d-%d %v", e.seq, e.start, end, e.pattern)
		return
	}
	e.regions = append(e.regions, Region{
		Seq:     e.seq,
		Start0:  e.start,
		End:     end,
		Fa:      e.pattern.FaString(),
		Mo:      e.pattern.MoString(),
		Code:    e.code,
		FaLevel: e.faLevel,
		MoLevel: e.moLevel,
		XLike:   e.xLike,
	})
}

// refine picks, per axis, the level representation of p closest to the
// current level.
func (e *regionEmitter) refine(p PatternArray) {
	n := p.Len()
	e.faLevel = minDiff(e.faLevel, n, p.FaCount())
	e.moLevel = minDiff(e.moLevel, n, p.MoCount())
}

func (e *regionEmitter) begin(start int, c *Container, code string) {
	e.open = true
	e.start = start
	e.end = c.Block.End
	e.pattern = c.Pattern
	e.code = code
	e.xLike = c.Block.XLike
}

func (e *regionEmitter) add(c *Container) {
	switch c.Kind {
	case OK:
		if !e.open {
			e.begin(0, c, RegionLinked)
			e.faLevel, e.moLevel = c.Pattern.FaCount(), c.Pattern.MoCount()
			return
		}
		e.end = c.Block.End
		e.pattern = c.Pattern
		e.refine(c.Pattern)
	case XO:
		if !e.open {
			log.Panicf("EmitRegions: crossover at %v without an open region", c.Block)
		}
		boundary := c.Block.Start - 1
		e.emit(boundary)
		fa, mo := c.XO.ResolveLevel(e.faLevel, e.moLevel)
		e.begin(boundary, c, RegionCrossover)
		e.faLevel, e.moLevel = fa, mo
		// The consistent pattern may resolve labels that were unknown before.
		e.refine(c.Pattern)
	case New:
		if !e.open {
			e.begin(0, c, RegionLinked)
		} else {
			e.emit(e.end)
			e.begin(c.Block.Start-1, c, RegionNew)
		}
		e.faLevel, e.moLevel = c.Pattern.FaCount(), c.Pattern.MoCount()
	case Error:
	default:
		log.Panicf("EmitRegions: unknown search type %v", c.Kind)
	}
}

// EmitRegions walks a search path and returns the phased regions it
// explains.  The last region extends to seqLen, or to the last block if
// seqLen is unknown (<= 0).
func EmitRegions(seq string, seqLen int, path []Container) []Region {
	e := regionEmitter{seq: seq}
	for i := range path {
		e.add(&path[i])
	}
	if !e.open {
		return e.regions
	}
	end := seqLen
	if end <= 0 {
		log.Printf("EmitRegions: length of %s unknown, last region ends at %d", seq, e.end)
		end = e.end
	} else if end < e.end {
		log.Printf("EmitRegions: %s:%d is past the sequence length %d", seq, e.end, seqLen)
		end = e.end
	}
	e.emit(end)
	return e.regions
}
