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
)

// Block is a maximal run of consecutive family positions whose patterns
// agree under a single relabeling.  A block is extended while it is the open
// block of a scan; afterwards it is treated as immutable.
type Block struct {
	Seq string
	// Start and End are the 1-based positions of the first and last family.
	Start, End int
	// Count is the number of families merged into the block.
	Count   int
	Pattern PatternArray
	XLike   bool
}

// NewBlock starts a block containing only f.
func NewBlock(f *Family) *Block {
	return &Block{
		Seq:     f.Seq,
		Start:   f.Pos,
		End:     f.Pos,
		Count:   1,
		Pattern: f.Pattern,
		XLike:   f.XLike,
	}
}

// Extend merges f into b if f's pattern is compatible with b's under some
// flip.  The flips are tried in order and the first success wins.  On failure
// b is left unchanged.
//
// REQUIRES: f.Seq == b.Seq, f.Pos > b.End, and both have the same number of
// children.
func (b *Block) Extend(f *Family) bool {
	if f.Seq != b.Seq || f.Pos <= b.End || f.NChildren() != b.Pattern.Len() {
		log.Panicf("Block.Extend: cannot extend %v with %s:%d (%d children)", b, f.Seq, f.Pos, f.NChildren())
	}
	if f.XLike != b.XLike {
		return false
	}
	p, _, ok := b.Pattern.Intersect(f.Pattern)
	if !ok {
		return false
	}
	b.Pattern = p
	b.End = f.Pos
	b.Count++
	return true
}

func (b *Block) String() string {
	return fmt.Sprintf("%s:%d-%d(n=%d,%v)", b.Seq, b.Start, b.End, b.Count, b.Pattern)
}

// BuildBlocks greedily merges a position-sorted list of families from one
// sequence into blocks.
func BuildBlocks(families []*Family) []*Block {
	var (
		blocks []*Block
		open   *Block
	)
	for _, f := range families {
		if open != nil && open.Extend(f) {
			continue
		}
		open = NewBlock(f)
		blocks = append(blocks, open)
	}
	return blocks
}
