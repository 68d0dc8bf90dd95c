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

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// SearchType is the interpretation a search node gives to its block.
type SearchType uint8

const (
	// OK means the block continues the current region.
	OK SearchType = iota
	// XO means the block continues the current region after a single-child
	// crossover.
	XO
	// New means the block starts a new, disconnected region.
	New
	// Error means the block is unexplained and skipped.
	Error
)

// Code returns the two-letter diagnostic code of t.
func (t SearchType) Code() string {
	switch t {
	case OK:
		return "BL"
	case XO:
		return "BX"
	case New:
		return "BN"
	case Error:
		return "BE"
	}
	log.Panicf("SearchType: unknown type %d", t)
	return ""
}

func (t SearchType) String() string {
	switch t {
	case OK:
		return "OK"
	case XO:
		return "XO"
	case New:
		return "New"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("SearchType(%d)", t)
}

// Handle identifies a Container in a Searcher's arena.
type Handle int

// NoHandle is the null Handle.
const NoHandle Handle = -1

// Container is one node of a search path.  Nodes are appended to an arena
// and never modified afterwards; Previous links each node to its
// predecessor.
type Container struct {
	Previous Handle
	// Score is the cost of the path ending here.  Lower is better.
	Score float64
	// LastGood is the last non-Error node on the path.  Only set for Error
	// nodes.
	LastGood Handle
	Block    *Block
	Pattern  PatternArray
	Kind     SearchType
	// XO is set iff Kind == XO.
	XO *CrossOver
	// ID breaks ties between nodes of equal score.
	ID uint64
}

// Key identifies the explanatory state of a node.  Nodes with equal keys
// are interchangeable for the rest of the search.
type Key struct {
	Pattern PatternArray
	IsError bool
	// XLike is the X-like status of the node's good container.  Only blocks
	// with the same status can continue it.
	XLike bool
}

// Key returns c's deduplication key, without the XLike status, which depends
// on the rest of the path.  See Searcher.Key.
func (c *Container) Key() Key {
	return Key{Pattern: c.Pattern.Canonical(), IsError: c.Kind == Error}
}

// Key returns c's deduplication key.  c need not be in the arena yet.
func (s *Searcher) Key(c *Container) Key {
	k := c.Key()
	k.XLike = c.Block.XLike
	if c.Kind == Error && c.LastGood != NoHandle {
		k.XLike = s.arena[c.LastGood].Block.XLike
	}
	return k
}

// Less orders containers by (Score, ID).
func (c *Container) Less(o *Container) bool {
	if c.Score != o.Score {
		return c.Score < o.Score
	}
	return c.ID < o.ID
}

// frontierItem adapts a candidate container to llrb.
type frontierItem struct {
	c *Container
}

// Compare implements llrb.Comparable.
func (f frontierItem) Compare(c2 llrb.Comparable) int {
	o := c2.(frontierItem).c
	switch {
	case f.c.Less(o):
		return -1
	case o.Less(f.c):
		return 1
	}
	return 0
}

// SearchOpts configures the block search.  Costs are added to a path's score
// per transition.
type SearchOpts struct {
	// OKCost is the cost of continuing a region.
	OKCost float64 `yaml:"ok_cost" envconfig:"OK_COST"`
	// CrossoverCost is the cost of a single-child crossover.
	CrossoverCost float64 `yaml:"crossover_cost" envconfig:"CROSSOVER_COST"`
	// NewCost is the cost of starting a disconnected region.
	NewCost float64 `yaml:"new_cost" envconfig:"NEW_COST"`
	// ErrorCost is the cost of skipping a block, per family position in the
	// block.
	ErrorCost float64 `yaml:"error_cost" envconfig:"ERROR_COST"`
	// MaxFrontier bounds the number of nodes kept after each block.
	MaxFrontier int `yaml:"max_frontier" envconfig:"MAX_FRONTIER"`
	// CompactThreshold is the arena size above which unreachable nodes are
	// discarded.
	CompactThreshold int `yaml:"compact_threshold" envconfig:"COMPACT_THRESHOLD"`
}

// DefaultSearchOpts is the default value of SearchOpts.
var DefaultSearchOpts = SearchOpts{
	OKCost:           0,
	CrossoverCost:    2,
	NewCost:          10,
	ErrorCost:        3,
	MaxFrontier:      32,
	CompactThreshold: 1 << 16,
}

// Validate checks that opts can drive a search.
func (opts SearchOpts) Validate() error {
	if opts.OKCost < 0 || opts.CrossoverCost < 0 || opts.NewCost < 0 || opts.ErrorCost < 0 {
		return errors.Errorf("SearchOpts: costs must be non-negative: %+v", opts)
	}
	if opts.MaxFrontier < 1 {
		return errors.Errorf("SearchOpts: MaxFrontier must be positive, got %d", opts.MaxFrontier)
	}
	return nil
}

// Searcher runs a beam search over the block sequence of one chromosome.
// Each block expands every frontier node into OK, XO, New and Error
// candidates; candidates with equal Key are merged, keeping the best, and
// the frontier is cut to MaxFrontier nodes.
//
// A Searcher is not thread-safe.
type Searcher struct {
	opts     SearchOpts
	arena    []Container
	frontier []Handle // sorted by (Score, ID)
	nextID   uint64
}

// NewSearcher creates an empty Searcher.
func NewSearcher(opts SearchOpts) *Searcher {
	return &Searcher{opts: opts}
}

// Get returns the node with the given handle.
func (s *Searcher) Get(h Handle) *Container { return &s.arena[h] }

// Frontier returns the current frontier, best first.
func (s *Searcher) Frontier() []Handle { return s.frontier }

// GoodContainer returns h unless it is an Error node, in which case it
// returns the node's LastGood.
func (s *Searcher) GoodContainer(h Handle) Handle {
	if c := &s.arena[h]; c.Kind == Error {
		return c.LastGood
	}
	return h
}

// candidates collects the next frontier, merging nodes by Key.
type candidates struct {
	s     *Searcher
	list  []Container
	byKey map[Key]int
}

func (cs *candidates) add(c Container) {
	c.ID = cs.s.nextID
	cs.s.nextID++
	if c.Previous == NoHandle && c.Kind != New && c.Kind != Error {
		log.Panicf("Searcher: root node of kind %v", c.Kind)
	}
	k := cs.s.Key(&c)
	if i, ok := cs.byKey[k]; ok {
		if c.Less(&cs.list[i]) {
			cs.list[i] = c
		}
		return
	}
	cs.byKey[k] = len(cs.list)
	cs.list = append(cs.list, c)
}

// Add feeds the next block to the search.
//
// REQUIRES: blocks are added in position order.
func (s *Searcher) Add(b *Block) {
	cs := candidates{s: s, byKey: map[Key]int{}}
	errorCost := s.opts.ErrorCost * float64(b.Count)
	if len(s.frontier) == 0 {
		cs.add(Container{Previous: NoHandle, LastGood: NoHandle, Block: b, Pattern: b.Pattern, Kind: New})
		cs.add(Container{Previous: NoHandle, LastGood: NoHandle, Block: b, Pattern: b.Pattern, Kind: Error, Score: errorCost})
	}
	for _, h := range s.frontier {
		s.expand(&cs, h, b, errorCost)
	}

	tree := llrb.Tree{}
	for i := range cs.list {
		tree.Insert(frontierItem{&cs.list[i]})
	}
	for tree.Len() > s.opts.MaxFrontier {
		tree.DeleteMax()
	}
	s.frontier = s.frontier[:0]
	tree.Do(func(item llrb.Comparable) bool {
		s.arena = append(s.arena, *item.(frontierItem).c)
		s.frontier = append(s.frontier, Handle(len(s.arena)-1))
		return false
	})
	if s.opts.CompactThreshold > 0 && len(s.arena) > s.opts.CompactThreshold {
		s.compact()
	}
}

func (s *Searcher) expand(cs *candidates, h Handle, b *Block, errorCost float64) {
	c := &s.arena[h]
	g := s.GoodContainer(h)
	pattern := b.Pattern
	if g != NoHandle {
		good := &s.arena[g]
		pattern = good.Pattern
		if good.Block.XLike == b.XLike {
			if p, _, ok := good.Pattern.Intersect(b.Pattern); ok {
				cs.add(Container{Previous: h, LastGood: NoHandle, Score: c.Score + s.opts.OKCost, Block: b, Pattern: p, Kind: OK})
			} else {
				for _, xo := range crossoverCandidates(good.Pattern, b.Pattern) {
					xo := xo
					cs.add(Container{Previous: h, LastGood: NoHandle, Score: c.Score + s.opts.CrossoverCost, Block: b, Pattern: xo.ConsistentPattern, Kind: XO, XO: &xo})
				}
			}
		}
	}
	cs.add(Container{Previous: h, LastGood: NoHandle, Score: c.Score + s.opts.NewCost, Block: b, Pattern: b.Pattern, Kind: New})
	cs.add(Container{Previous: h, LastGood: g, Score: c.Score + errorCost, Block: b, Pattern: pattern, Kind: Error})
}

// crossoverCandidates lists the single-child label changes that make next
// compatible with prev.  A candidate toggles one child's known label on one
// axis of prev, where the relabelled next carries the opposite known label.
func crossoverCandidates(prev, next PatternArray) []CrossOver {
	var (
		out  []CrossOver
		seen = map[Key]bool{}
		n    = prev.Len()
	)
	for flip := 0; flip < nFlips; flip++ {
		flipped := next.Flip(flip)
		for _, onFather := range []bool{true, false} {
			for i := 0; i < n; i++ {
				p, q := prev.Label(onFather, i), flipped.Label(onFather, i)
				if p == LabelUnknown || q == LabelUnknown || p == q {
					continue
				}
				toggled := prev.WithLabel(onFather, i, q)
				consistent, ok := toggled.FlipIntersect(next, flip)
				if !ok {
					continue
				}
				k := Key{Pattern: consistent.Canonical()}
				if seen[k] {
					continue
				}
				seen[k] = true
				xo, err := NewCrossOver(n, onFather, i, prev.Count(onFather), toggled.Count(onFather), consistent)
				if err != nil {
					log.Panicf("crossoverCandidates: %v", err)
				}
				out = append(out, xo)
			}
		}
	}
	return out
}

// compact drops the nodes not reachable from the frontier and renumbers the
// rest.  Handles only point backwards, so the relative order is preserved.
func (s *Searcher) compact() {
	live := make([]bool, len(s.arena))
	stack := append([]Handle(nil), s.frontier...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == NoHandle || live[h] {
			continue
		}
		live[h] = true
		stack = append(stack, s.arena[h].Previous, s.arena[h].LastGood)
	}
	remap := make([]Handle, len(s.arena))
	var arena []Container
	for i := range s.arena {
		remap[i] = NoHandle
		if live[i] {
			remap[i] = Handle(len(arena))
			arena = append(arena, s.arena[i])
		}
	}
	fix := func(h Handle) Handle {
		if h == NoHandle {
			return h
		}
		return remap[h]
	}
	for i := range arena {
		arena[i].Previous = fix(arena[i].Previous)
		arena[i].LastGood = fix(arena[i].LastGood)
	}
	for i, h := range s.frontier {
		s.frontier[i] = remap[h]
	}
	log.Debug.Printf("Searcher.compact: %d -> %d nodes", len(s.arena), len(arena))
	s.arena = arena
}

// Best returns the best frontier node, or NoHandle if nothing was added.
func (s *Searcher) Best() Handle {
	if len(s.frontier) == 0 {
		return NoHandle
	}
	return s.frontier[0]
}

// Path returns the nodes from the root to h.
func (s *Searcher) Path(h Handle) []Container {
	var path []Container
	for ; h != NoHandle; h = s.arena[h].Previous {
		path = append(path, s.arena[h])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Search runs a Searcher over blocks and returns the best path, root first.
func Search(blocks []*Block, opts SearchOpts) []Container {
	s := NewSearcher(opts)
	for _, b := range blocks {
		s.Add(b)
	}
	return s.Path(s.Best())
}
