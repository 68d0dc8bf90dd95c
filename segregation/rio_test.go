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
	"strings"
	"testing"

	"github.com/grailbio/base/recordio"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionArchive(t *testing.T) {
	regions := []Region{
		{Seq: "chr1", Start0: 0, End: 299, Fa: "010", Mo: "011", Code: RegionLinked, FaLevel: 1, MoLevel: 2},
		{Seq: "chr1", Start0: 299, End: 1000, Fa: "011", Mo: "011", Code: RegionCrossover, FaLevel: 2, MoLevel: 2},
		{Seq: "chrX", Start0: 0, End: 5000, Fa: "???", Mo: "001", Code: RegionLinked, MoLevel: 1, XLike: true},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRegions(&buf, "run-1", []string{"dad", "mom", "k1", "k2", "k3"}, regions))
	a, err := ReadRegions(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	expect.EQ(t, a.RunID, "run-1")
	expect.EQ(t, a.Samples, []string{"dad", "mom", "k1", "k2", "k3"})
	expect.EQ(t, a.Regions, regions)
	expect.EQ(t, a.Counts, map[string]int{"chr1": 2, "chrX": 1})

	buf.Reset()
	require.NoError(t, WriteRegions(&buf, "run-2", nil, nil))
	a, err = ReadRegions(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Len(t, a.Regions, 0)
	assert.Len(t, a.Samples, 0)
}

func TestReadRegionsVersion(t *testing.T) {
	var buf bytes.Buffer
	w := recordio.NewWriter(&buf, recordio.WriterOpts{})
	w.AddHeader(versionHeader, "SEGREGATION_REGIONS_V0")
	require.NoError(t, w.Finish())
	_, err := ReadRegions(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)

	buf.Reset()
	w = recordio.NewWriter(&buf, recordio.WriterOpts{})
	require.NoError(t, w.Finish())
	_, err = ReadRegions(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

func TestReadRegionsBED(t *testing.T) {
	regions, err := ReadRegionsBED(strings.NewReader(RegionsBEDHeader + "\n" +
		"chr1\t0\t299\t010\t011\tL\t1\t2\n" +
		"chr2\t99\t500\t01\t10\tN\t1\t1\n"))
	require.NoError(t, err)
	expect.EQ(t, regions, []Region{
		{Seq: "chr1", Start0: 0, End: 299, Fa: "010", Mo: "011", Code: RegionLinked, FaLevel: 1, MoLevel: 2},
		{Seq: "chr2", Start0: 99, End: 500, Fa: "01", Mo: "10", Code: RegionNew, FaLevel: 1, MoLevel: 1},
	})

	_, err = ReadRegionsBED(strings.NewReader("chr1\tx\t299\t010\t011\tL\t1\t2\n"))
	assert.Error(t, err)
}
