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
package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/segregation/util"
)

// PosType is the coordinate type.
type PosType int32

// PosTypeMax is the largest PosType.
const PosTypeMax = math.MaxInt32

// NewBEDOpts defines behavior of the BED-loading functions.
type NewBEDOpts struct {
	// SAMHeader enables ContainsByID.
	SAMHeader *sam.Header
	// Invert causes the complement of the union to be used.  With a
	// SAMHeader, sequences absent from the input are fully included.
	Invert bool
	// OneBasedInput interprets interval boundaries as one-based [start, end]
	// instead of zero-based [start, end).
	OneBasedInput bool
}

// BEDUnion is a union of intervals.  Each sequence's intervals are stored as
// a sorted endpoint sequence {start0, end0, start1, end1, ...}; a position
// is covered iff an odd number of endpoints are <= it.
type BEDUnion struct {
	nameMap map[string][]PosType
	idMap   [][]PosType
}

// Entry is a single interval with 0-based half-open coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// builder merges the intervals of each sequence.
type builder struct {
	order []string
	byChr map[string][]Entry
}

func (b *builder) add(e Entry) error {
	if e.Start0 < 0 {
		return fmt.Errorf("interval: negative start coordinate in %v", e)
	}
	if e.End < e.Start0 || e.End >= PosTypeMax {
		return fmt.Errorf("interval: invalid coordinate pair [%d, %d)", e.Start0, e.End)
	}
	if b.byChr == nil {
		b.byChr = map[string][]Entry{}
	}
	if _, ok := b.byChr[e.ChrName]; !ok {
		b.order = append(b.order, e.ChrName)
		b.byChr[e.ChrName] = nil
	}
	if e.End > e.Start0 {
		b.byChr[e.ChrName] = append(b.byChr[e.ChrName], e)
	}
	return nil
}

func (b *builder) build(opts NewBEDOpts) BEDUnion {
	u := BEDUnion{nameMap: make(map[string][]PosType, len(b.order))}
	var totBases int
	for _, chr := range b.order {
		entries := b.byChr[chr]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Start0 < entries[j].Start0 })
		var endpoints []PosType
		if opts.Invert {
			endpoints = append(endpoints, -1)
		}
		for _, e := range entries {
			if n := len(endpoints); n > 0 && endpoints[n-1] >= e.Start0 && (n%2 == 0) != opts.Invert {
				// Overlaps or touches the previous interval.
				if e.End > endpoints[n-1] {
					totBases += int(e.End - endpoints[n-1])
					endpoints[n-1] = e.End
				}
				continue
			}
			endpoints = append(endpoints, e.Start0, e.End)
			totBases += int(e.End - e.Start0)
		}
		if opts.Invert {
			endpoints = append(endpoints, PosTypeMax)
		}
		u.nameMap[chr] = endpoints
	}
	log.Printf("interval: %d sequence(s), %d base(s) covered", len(b.order), totBases)
	if opts.SAMHeader != nil {
		u.indexByID(opts.SAMHeader, opts.Invert)
	}
	return u
}

func (u *BEDUnion) indexByID(header *sam.Header, invert bool) {
	refs := header.Refs()
	u.idMap = make([][]PosType, len(refs))
	for id, ref := range refs {
		if endpoints, ok := u.nameMap[ref.Name()]; ok {
			u.idMap[id] = endpoints
		} else if invert {
			u.idMap[id] = []PosType{-1, PosTypeMax}
		}
	}
}

// NewBEDUnion loads the first three columns of a BED file.  Input need not
// be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	var (
		b      builder
		lineNo int
	)
	startSubtract := 0
	if opts.OneBasedInput {
		startSubtract = 1
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' || bytes.HasPrefix(line, []byte("track")) || bytes.HasPrefix(line, []byte("browser")) {
			continue
		}
		fields := bytes.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", lineNo)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(fields[1]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineNo, err)
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(fields[2]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineNo, err)
		}
		start -= startSubtract
		if start < 0 || end >= PosTypeMax {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: coordinates out of range", lineNo)
		}
		if err := b.add(Entry{ChrName: string(fields[0]), Start0: PosType(start), End: PosType(end)}); err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return BEDUnion{}, err
	}
	return b.build(opts), nil
}

// NewBEDUnionFromPath is NewBEDUnion on a (possibly gzipped) file.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (u BEDUnion, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return BEDUnion{}, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	return NewBEDUnion(in, opts)
}

// NewBEDUnionFromEntries builds a BEDUnion from entries, which need not be
// sorted.  opts.OneBasedInput is ignored.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (BEDUnion, error) {
	var b builder
	for _, e := range entries {
		if err := b.add(e); err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: %v", err)
		}
	}
	return b.build(opts), nil
}

func covers(endpoints []PosType, pos PosType) bool {
	return sort.Search(len(endpoints), func(i int) bool { return endpoints[i] > pos })&1 == 1
}

// ContainsByName returns true if the 0-based position on chrName is in the
// union.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	return covers(u.nameMap[chrName], pos)
}

// ContainsByID is ContainsByName with the sequence given by its index in
// NewBEDOpts.SAMHeader.
//
// REQUIRES: the BEDUnion was built with a SAMHeader.
func (u *BEDUnion) ContainsByID(chrID int, pos PosType) bool {
	if chrID < 0 || chrID >= len(u.idMap) {
		return false
	}
	return covers(u.idMap[chrID], pos)
}

// HasChr returns true if chrName has any interval.
func (u *BEDUnion) HasChr(chrName string) bool {
	return len(u.nameMap[chrName]) > 0
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// The interval [0, PosTypeMax - 1) is returned if there is no positional
// restriction.  Thousands separators are accepted in positions.
func ParseRegionString(region string) (Entry, error) {
	if region == "" {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: empty region string")
	}
	colon := strings.LastIndexByte(region, ':')
	if colon == -1 {
		return Entry{ChrName: region, Start0: 0, End: PosTypeMax - 1}, nil
	}
	if colon == 0 {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: empty contig ID")
	}
	result := Entry{ChrName: region[:colon]}
	rangeStr := strings.Replace(region[colon+1:], ",", "", -1)
	parsePos := func(s string) (PosType, error) {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("interval.ParseRegionString: %v", err)
		}
		if v <= 0 || v >= PosTypeMax {
			return 0, fmt.Errorf("interval.ParseRegionString: position %v out of range", s)
		}
		return PosType(v), nil
	}
	dash := strings.IndexByte(rangeStr, '-')
	if dash == -1 {
		pos1, err := parsePos(rangeStr)
		if err != nil {
			return Entry{}, err
		}
		result.Start0, result.End = pos1-1, pos1
		return result, nil
	}
	start1, err := parsePos(rangeStr[:dash])
	if err != nil {
		return Entry{}, err
	}
	end, err := parsePos(rangeStr[dash+1:])
	if err != nil {
		return Entry{}, err
	}
	if end < start1 {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: invalid range %v", rangeStr)
	}
	result.Start0, result.End = start1-1, end
	return result, nil
}
