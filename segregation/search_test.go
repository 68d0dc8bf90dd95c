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
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(start, end, count int, fa, mo string) *Block {
	return &Block{Seq: "chr1", Start: start, End: end, Count: count, Pattern: MustPatternArray(fa, mo)}
}

func pathKinds(path []Container) []SearchType {
	kinds := make([]SearchType, len(path))
	for i, c := range path {
		kinds[i] = c.Kind
	}
	return kinds
}

func TestSearchType(t *testing.T) {
	expect.EQ(t, OK.Code(), "BL")
	expect.EQ(t, XO.Code(), "BX")
	expect.EQ(t, New.Code(), "BN")
	expect.EQ(t, Error.Code(), "BE")
	expect.EQ(t, XO.String(), "XO")
	expect.EQ(t, SearchType(9).String(), "SearchType(9)")
}

func TestSearchOptsValidate(t *testing.T) {
	assert.NoError(t, DefaultSearchOpts.Validate())
	opts := DefaultSearchOpts
	opts.CrossoverCost = -1
	assert.Error(t, opts.Validate())
	opts = DefaultSearchOpts
	opts.MaxFrontier = 0
	assert.Error(t, opts.Validate())
}

func TestCrossoverCandidates(t *testing.T) {
	xos := crossoverCandidates(MustPatternArray("010", "011"), MustPatternArray("011", "011"))
	require.Len(t, xos, 1)
	xo := xos[0]
	assert.True(t, xo.OnFather)
	expect.EQ(t, xo.ChildIndex, 2)
	expect.EQ(t, xo.CountBefore, 1)
	expect.EQ(t, xo.CountAfter, 2)
	expect.EQ(t, xo.ConsistentPattern, MustPatternArray("011", "011"))

	// The next block is labelled with the father flipped.
	xos = crossoverCandidates(MustPatternArray("010", "011"), MustPatternArray("100", "011"))
	require.Len(t, xos, 1)
	expect.EQ(t, xos[0].ChildIndex, 2)
	expect.EQ(t, xos[0].ConsistentPattern, MustPatternArray("011", "011"))

	// Two children change: no single crossover explains it.
	assert.Len(t, crossoverCandidates(MustPatternArray("0011", "0101"), MustPatternArray("0110", "0101")), 0)
}

func TestSearchSingleBlock(t *testing.T) {
	path := Search([]*Block{testBlock(100, 500, 5, "010", "011")}, DefaultSearchOpts)
	require.Len(t, path, 1)
	expect.EQ(t, path[0].Kind, New)
	expect.EQ(t, path[0].Score, 0.0)
	expect.EQ(t, path[0].Previous, NoHandle)
	assert.Len(t, Search(nil, DefaultSearchOpts), 0)
}

func TestSearchCrossover(t *testing.T) {
	fa, mo := dip(0, 1), dip(2, 3)
	blocks := BuildBlocks([]*Family{
		newTestFamily(100, fa, mo, dip(0, 2), dip(1, 3), dip(0, 3)),
		newTestFamily(200, fa, mo, dip(0, 2), dip(1, 3), dip(0, 3)),
		newTestFamily(300, fa, mo, dip(0, 2), dip(1, 3), dip(1, 3)),
	})
	require.Len(t, blocks, 2)
	path := Search(blocks, DefaultSearchOpts)
	expect.EQ(t, pathKinds(path), []SearchType{New, XO})
	expect.EQ(t, path[1].Score, DefaultSearchOpts.CrossoverCost)
	require.NotNil(t, path[1].XO)
	expect.EQ(t, path[1].XO.ChildIndex, 2)
	assert.True(t, path[1].XO.OnFather)

	regions := EmitRegions("chr1", 1000, path)
	expect.EQ(t, regions, []Region{
		{Seq: "chr1", Start0: 0, End: 299, Fa: "010", Mo: "011", Code: RegionLinked, FaLevel: 1, MoLevel: 2},
		{Seq: "chr1", Start0: 299, End: 1000, Fa: "011", Mo: "011", Code: RegionCrossover, FaLevel: 2, MoLevel: 2},
	})
	expect.EQ(t, regions[1].Pattern(), MustPatternArray("011", "011"))
}

func TestSearchSkipsNoise(t *testing.T) {
	blocks := []*Block{
		testBlock(100, 500, 5, "010", "011"),
		testBlock(600, 600, 1, "011", "011"),
		testBlock(700, 1100, 5, "101", "011"),
	}
	path := Search(blocks, DefaultSearchOpts)
	expect.EQ(t, pathKinds(path), []SearchType{New, Error, OK})
	expect.EQ(t, path[2].Score, 3.0)
	expect.EQ(t, path[2].Pattern, MustPatternArray("010", "011"))

	regions := EmitRegions("chr1", 2000, path)
	expect.EQ(t, regions, []Region{
		{Seq: "chr1", Start0: 0, End: 2000, Fa: "010", Mo: "011", Code: RegionLinked, FaLevel: 1, MoLevel: 2},
	})

	// Noise spanning many positions is cheaper as two crossovers.
	blocks[1] = testBlock(600, 650, 3, "011", "011")
	path = Search(blocks, DefaultSearchOpts)
	expect.EQ(t, pathKinds(path), []SearchType{New, XO, XO})
	regions = EmitRegions("chr1", 2000, path)
	require.Len(t, regions, 3)
	expect.EQ(t, regions[1].Start0, 599)
	expect.EQ(t, regions[1].End, 699)
	expect.EQ(t, regions[2].Code, RegionCrossover)
	expect.EQ(t, regions[2].FaLevel, 1)
}

func TestSearchNewRegion(t *testing.T) {
	blocks := []*Block{
		testBlock(100, 500, 5, "0011", "0101"),
		testBlock(800, 1200, 5, "0110", "0101"),
	}
	path := Search(blocks, DefaultSearchOpts)
	expect.EQ(t, pathKinds(path), []SearchType{New, New})
	expect.EQ(t, path[1].Score, DefaultSearchOpts.NewCost)

	regions := EmitRegions("chr1", 0, path)
	expect.EQ(t, regions, []Region{
		{Seq: "chr1", Start0: 0, End: 500, Fa: "0011", Mo: "0101", Code: RegionLinked, FaLevel: 2, MoLevel: 2},
		{Seq: "chr1", Start0: 799, End: 1200, Fa: "0110", Mo: "0101", Code: RegionNew, FaLevel: 2, MoLevel: 2},
	})
}

func TestSearchXLike(t *testing.T) {
	auto := testBlock(100, 500, 5, "0110", "0101")
	x := testBlock(600, 900, 5, "????", "0101")
	x.XLike = true
	path := Search([]*Block{auto, x}, DefaultSearchOpts)
	// Patterns agree, but an X-like block never continues an autosomal one.
	expect.EQ(t, pathKinds(path), []SearchType{New, New})
	regions := EmitRegions("chrX", 1000, path)
	require.Len(t, regions, 2)
	assert.True(t, regions[1].XLike)
	expect.EQ(t, regions[1].Fa, "????")
}

func TestSearchErrorKeepsXLikeStatus(t *testing.T) {
	auto := testBlock(100, 500, 5, "0110", "0101")
	x := testBlock(600, 900, 5, "0110", "0101")
	x.XLike = true
	noise := testBlock(1000, 1000, 1, "0011", "0011")
	back := testBlock(1100, 1500, 5, "0110", "0101")

	s := NewSearcher(DefaultSearchOpts)
	s.Add(auto)
	s.Add(x)
	s.Add(noise)
	// Skipping the noise leaves two paths with the same pattern: one that
	// last kept the autosomal block and one that last kept the X-like block.
	goodXLike := map[bool]bool{}
	for _, h := range s.Frontier() {
		if c := s.Get(h); c.Kind == Error && c.LastGood != NoHandle {
			goodXLike[s.Get(c.LastGood).Block.XLike] = true
		}
	}
	expect.EQ(t, goodXLike, map[bool]bool{false: true, true: true})

	ok := &Container{Block: back, Pattern: back.Pattern, Kind: OK}
	assert.False(t, s.Key(ok).XLike)
	assert.True(t, s.Key(&Container{Block: x, Pattern: x.Pattern, Kind: New}).XLike)

	path := Search([]*Block{auto, x, noise, back}, DefaultSearchOpts)
	expect.EQ(t, pathKinds(path), []SearchType{New, Error, Error, OK})
	expect.EQ(t, path[3].Score, 18.0)
}

func TestSearchFrontier(t *testing.T) {
	var blocks []*Block
	patterns := []string{"0011", "0111", "0101", "0100", "1100", "1101"}
	for i, fa := range patterns {
		blocks = append(blocks, testBlock(100*i+1, 100*i+50, 2, fa, "0110"))
	}
	opts := DefaultSearchOpts
	opts.MaxFrontier = 2
	s := NewSearcher(opts)
	for _, b := range blocks {
		s.Add(b)
		assert.True(t, len(s.Frontier()) <= 2)
		for i := 1; i < len(s.Frontier()); i++ {
			prev, cur := s.Get(s.Frontier()[i-1]), s.Get(s.Frontier()[i])
			assert.True(t, prev.Less(cur))
		}
	}

	full := Search(blocks, DefaultSearchOpts)
	opts = DefaultSearchOpts
	opts.CompactThreshold = 3
	compacted := Search(blocks, opts)
	require.Equal(t, len(full), len(compacted))
	for i := range full {
		expect.EQ(t, compacted[i].Kind, full[i].Kind)
		expect.EQ(t, compacted[i].Score, full[i].Score)
		expect.EQ(t, compacted[i].ID, full[i].ID)
		expect.EQ(t, compacted[i].Block, full[i].Block)
	}
	expect.EQ(t, pathKinds(full), []SearchType{New, XO, XO, XO, XO, XO})
}

func TestEmitRegionsUnphased(t *testing.T) {
	path := Search([]*Block{testBlock(100, 500, 5, "0?1", "011")}, DefaultSearchOpts)
	assert.Len(t, EmitRegions("chr1", 1000, path), 0)
	assert.Len(t, EmitRegions("chr1", 1000, nil), 0)

	// The sequence length is shorter than the data.
	path = Search([]*Block{testBlock(100, 500, 5, "001", "011")}, DefaultSearchOpts)
	regions := EmitRegions("chr1", 300, path)
	require.Len(t, regions, 1)
	expect.EQ(t, regions[0].End, 500)
}
