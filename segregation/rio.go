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
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/segregation/util"
)

const (
	// <versionHeader, version> is stored in the recordio header.
	versionHeader = "segregation_version"
	version       = "SEGREGATION_REGIONS_V1"
	runIDHeader   = "run_id"
	samplesHeader = "samples"
)

func init() {
	recordiozstd.Init()
}

// regionsTrailer is stored in the trailer of a region archive.
type regionsTrailer struct {
	// Seqs and Counts list the number of regions of each sequence, in file
	// order.
	Seqs   []string
	Counts []int
}

// RegionArchive is the content of a region archive.
type RegionArchive struct {
	RunID string
	// Samples lists the father, the mother and the children.
	Samples []string
	Regions []Region
	// Counts maps each sequence to its number of regions.
	Counts map[string]int
}

func marshalRegion(scratch []byte, v interface{}) ([]byte, error) {
	b := bytes.NewBuffer(scratch[:0])
	if err := gob.NewEncoder(b).Encode(v.(*Region)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalRegion(in []byte) (interface{}, error) {
	r := &Region{}
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(r); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteRegions writes regions to out as a zstd-compressed recordio archive.
func WriteRegions(out io.Writer, runID string, samples []string, regions []Region) error {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      marshalRegion,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(versionHeader, version)
	w.AddHeader(runIDHeader, runID)
	w.AddHeader(samplesHeader, strings.Join(samples, ","))
	w.AddHeader(recordio.KeyTrailer, true)
	var trailer regionsTrailer
	for i := range regions {
		r := &regions[i]
		if n := len(trailer.Seqs); n == 0 || trailer.Seqs[n-1] != r.Seq {
			trailer.Seqs = append(trailer.Seqs, r.Seq)
			trailer.Counts = append(trailer.Counts, 0)
		}
		trailer.Counts[len(trailer.Counts)-1]++
		w.Append(r)
	}
	b := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(b).Encode(trailer); err != nil {
		return err
	}
	w.SetTrailer(b.Bytes())
	return w.Finish()
}

// WriteRegionsRIO writes a region archive to path.
func WriteRegionsRIO(ctx context.Context, path, runID string, samples []string, regions []Region) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = WriteRegions(out.Writer(ctx), runID, samples, regions); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

// ReadRegions reads an archive written by WriteRegions.
func ReadRegions(in io.ReadSeeker) (*RegionArchive, error) {
	scanner := recordio.NewScanner(in, recordio.ScannerOpts{Unmarshal: unmarshalRegion})
	a := &RegionArchive{Counts: map[string]int{}}
	versionFound := false
	for _, kv := range scanner.Header() {
		switch kv.Key {
		case versionHeader:
			if v := kv.Value.(string); v != version {
				return nil, fmt.Errorf("ReadRegions: version mismatch, got %v, expect %v", v, version)
			}
			versionFound = true
		case runIDHeader:
			a.RunID = kv.Value.(string)
		case samplesHeader:
			if s := kv.Value.(string); s != "" {
				a.Samples = strings.Split(s, ",")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !versionFound {
		return nil, fmt.Errorf("ReadRegions: %s not found", versionHeader)
	}
	for scanner.Scan() {
		a.Regions = append(a.Regions, *scanner.Get().(*Region))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	var trailer regionsTrailer
	if err := gob.NewDecoder(bytes.NewReader(scanner.Trailer())).Decode(&trailer); err != nil {
		return nil, errors.E(err, "ReadRegions: trailer")
	}
	for i, seq := range trailer.Seqs {
		a.Counts[seq] = trailer.Counts[i]
	}
	if err := scanner.Finish(); err != nil {
		return nil, err
	}
	return a, nil
}

// ReadRegionsRIO reads a region archive from path.
func ReadRegionsRIO(ctx context.Context, path string) (a *RegionArchive, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if a, err = ReadRegions(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, "read", path)
	}
	return a, nil
}

// regionRow is one line of a region BED file.
type regionRow struct {
	Seq     string
	Start   int64
	End     int64
	Fa      string
	Mo      string
	Code    string
	FaLevel int64
	MoLevel int64
}

// ReadRegionsBED reads a region BED file written by Run.  XLike is not
// stored in the BED and is left false.
func ReadRegionsBED(r io.Reader) ([]Region, error) {
	reader := tsv.NewReader(r)
	reader.Comment = '#'
	var regions []Region
	for {
		var row regionRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		regions = append(regions, Region{
			Seq:     row.Seq,
			Start0:  int(row.Start),
			End:     int(row.End),
			Fa:      row.Fa,
			Mo:      row.Mo,
			Code:    row.Code,
			FaLevel: int(row.FaLevel),
			MoLevel: int(row.MoLevel),
		})
	}
	return regions, nil
}

// LoadRegions reads the regions in path: a region archive if the path ends
// in ".rio", a (possibly gzipped) region BED otherwise.
func LoadRegions(ctx context.Context, path string) (regions []Region, err error) {
	if strings.HasSuffix(path, ".rio") {
		var a *RegionArchive
		if a, err = ReadRegionsRIO(ctx, path); err != nil {
			return nil, err
		}
		return a.Regions, nil
	}
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if regions, err = ReadRegionsBED(in); err != nil {
		return nil, errors.E(err, "read", path)
	}
	return regions, nil
}
