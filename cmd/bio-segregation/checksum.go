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
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/segregation/segregation"
)

// seqChecksum is the checksum of the regions of one sequence.
type seqChecksum struct {
	// Name is the name of the sequence.
	Name string
	// NRegions is the # of regions found for this sequence.
	NRegions int64
	// SumStart is the sum of all start values. A quick commutative hash.
	SumStart uint64
	// SumEnd is the sum of all end values.
	SumEnd uint64
	// SumPattern is the sum of the hashes of the patterns, types and levels.
	SumPattern uint64
}

func hashField(h hash.Hash64, pos [8]byte, value []byte) uint64 {
	h.Reset()
	h.Write(pos[:])
	h.Write(value)
	return h.Sum64()
}

func (c *seqChecksum) add(r *segregation.Region, h hash.Hash64) {
	c.NRegions++
	c.SumStart += uint64(r.Start0)
	c.SumEnd += uint64(r.End)

	pos := [8]byte{}
	binary.LittleEndian.PutUint32(pos[:], uint32(r.Start0))
	binary.LittleEndian.PutUint32(pos[4:], uint32(r.End))
	value := fmt.Sprintf("%s/%s/%s/%d/%d", r.Fa, r.Mo, r.Code, r.FaLevel, r.MoLevel)
	c.SumPattern += hashField(h, pos, unsafe.StringToBytes(value))
}

// checksumRegions returns one checksum per sequence, in order of first
// appearance.
func checksumRegions(regions []segregation.Region) []seqChecksum {
	var (
		sums  []seqChecksum
		index = map[string]int{}
		h     = seahash.New()
	)
	for i := range regions {
		r := &regions[i]
		j, ok := index[r.Seq]
		if !ok {
			j = len(sums)
			index[r.Seq] = j
			sums = append(sums, seqChecksum{Name: r.Seq})
		}
		sums[j].add(r, h)
	}
	return sums
}

// checksum prints the checksum of the region file at path to w as JSON.
func checksum(ctx context.Context, path string, w io.Writer) error {
	regions, err := segregation.LoadRegions(ctx, path)
	if err != nil {
		return err
	}
	js, err := json.MarshalIndent(checksumRegions(regions), "", "  ")
	if err != nil {
		log.Panic(err)
	}
	_, err = fmt.Fprintln(w, string(js))
	return err
}
