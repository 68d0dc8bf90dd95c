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
	"bytes"
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/segregation/reference"
	"github.com/grailbio/segregation/segregation"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRegions = []segregation.Region{
	{Seq: "chr1", Start0: 0, End: 299, Fa: "010", Mo: "011", Code: segregation.RegionLinked, FaLevel: 1, MoLevel: 2},
	{Seq: "chr1", Start0: 299, End: 1000, Fa: "011", Mo: "011", Code: segregation.RegionCrossover, FaLevel: 2, MoLevel: 2},
	{Seq: "chr2", Start0: 0, End: 500, Fa: "110", Mo: "011", Code: segregation.RegionLinked, FaLevel: 1, MoLevel: 2},
}

const testBED = segregation.RegionsBEDHeader + "\n" +
	"chr1\t299\t1000\t011\t011\tX\t2\t2\n" +
	"chr1\t0\t299\t010\t011\tL\t1\t2\n" +
	"chr2\t0\t500\t110\t011\tL\t1\t2\n"

func TestChecksum(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	rioPath := filepath.Join(tempDir, "regions.rio")
	out, err := file.Create(ctx, rioPath)
	require.NoError(t, err)
	require.NoError(t, segregation.WriteRegions(out.Writer(ctx), "run", []string{"a", "b", "c", "d", "e"}, testRegions))
	require.NoError(t, out.Close(ctx))

	bedPath := filepath.Join(tempDir, "regions.bed")
	require.NoError(t, ioutil.WriteFile(bedPath, []byte(testBED), 0644))

	var rioSum, bedSum bytes.Buffer
	require.NoError(t, checksum(ctx, rioPath, &rioSum))
	require.NoError(t, checksum(ctx, bedPath, &bedSum))
	// The sums do not depend on the order of regions within a sequence.
	expect.EQ(t, rioSum.String(), bedSum.String())

	sums := checksumRegions(testRegions)
	require.Len(t, sums, 2)
	expect.EQ(t, sums[0].Name, "chr1")
	expect.EQ(t, sums[0].NRegions, int64(2))
	expect.EQ(t, sums[0].SumStart, uint64(299))
	expect.EQ(t, sums[0].SumEnd, uint64(1299))
	expect.EQ(t, sums[1].NRegions, int64(1))

	changed := append([]segregation.Region(nil), testRegions...)
	changed[2].Fa = "100"
	assert.NotEqual(t, sums[1].SumPattern, checksumRegions(changed)[1].SumPattern)
	expect.EQ(t, sums[0], checksumRegions(changed)[0])

	assert.Error(t, checksum(ctx, filepath.Join(tempDir, "missing.bed"), &bedSum))
}

func TestSearchOptsPrecedence(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	config := filepath.Join(tempDir, "search.yaml")
	require.NoError(t, ioutil.WriteFile(config, []byte("crossover_cost: 5\nnew_cost: 12\nerror_cost: 4\n"), 0644))
	require.NoError(t, os.Setenv("SEGREGATION_NEW_COST", "15"))
	defer os.Unsetenv("SEGREGATION_NEW_COST")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := newSearchFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", config, "-error-cost", "1"}))
	opts, err := f.searchOpts(ctx, fs)
	require.NoError(t, err)
	expect.EQ(t, opts.CrossoverCost, 5.0)
	expect.EQ(t, opts.NewCost, 15.0)
	expect.EQ(t, opts.ErrorCost, 1.0)
	expect.EQ(t, opts.MaxFrontier, segregation.DefaultSearchOpts.MaxFrontier)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = newSearchFlags(fs)
	require.NoError(t, fs.Parse([]string{"-max-frontier", "0"}))
	_, err = f.searchOpts(ctx, fs)
	assert.Error(t, err)
}

func TestInputFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := newInputFlags(fs)
	require.NoError(t, fs.Parse([]string{"-father", "dad", "-mother", "mom", "-children", "k1,k2", "-child-sexes", "F,M"}))
	opts, err := f.opts("in.vcf")
	require.NoError(t, err)
	expect.EQ(t, opts.VCFPath, "in.vcf")
	expect.EQ(t, opts.Children, []string{"k1", "k2"})
	expect.EQ(t, opts.ChildSexes, []reference.Sex{reference.Female, reference.Male})

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = newInputFlags(fs)
	require.NoError(t, fs.Parse([]string{"-father", "dad"}))
	_, err = f.opts("in.vcf")
	assert.Error(t, err)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = newInputFlags(fs)
	require.NoError(t, fs.Parse([]string{"-ped", "family.ped", "-child-sexes", "X"}))
	_, err = f.opts("in.vcf")
	assert.Error(t, err)
}
