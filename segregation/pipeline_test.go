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
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/segregation/util"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vcfHeader = "##fileformat=VCFv4.2\n" +
	"##contig=<ID=chr1,length=1000>\n" +
	"##contig=<ID=chr2,length=500>\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tdad\tmom\tk1\tk2\tk3\n"

func vcfLine(chrom string, pos int, filter string, gts ...string) string {
	return strings.Join([]string{chrom, strconv.Itoa(pos), ".", "A", "C,G,T", "50", filter, ".", "GT",
		strings.Join(gts, "\t")}, "\t") + "\n"
}

// testRecords has a paternal crossover in k3 between 200 and 300, plus one
// record of each kind the scan drops.
var testRecords = vcfHeader +
	vcfLine("chr1", 100, "PASS", "0/1", "2/3", "0/2", "1/3", "0/3") +
	vcfLine("chr1", 150, "LowQual", "0/1", "2/3", "0/2", "1/3", "0/3") +
	vcfLine("chr1", 200, ".", "0/1", "2/3", "0/2", "1/3", "0/3") +
	vcfLine("chr1", 250, "PASS", "0/0", "0/0", "0/1", "0/0", "0/0") +
	vcfLine("chr1", 260, "PASS", "0/1", "0/1", "0/1", "0/1", "0/1") +
	vcfLine("chr1", 270, "PASS", "1", "0/1", "0/1", "0/1", "0/1") +
	vcfLine("chr1", 280, "PASS", "0/7", "0/1", "0/1", "0/1", "0/1") +
	vcfLine("chr1", 290, "PASS", "0/0", "0/0", "0/0", "0/0", "0/0") +
	vcfLine("chr1", 300, "PASS", "0/1", "2/3", "0/2", "1/3", "1/3") +
	vcfLine("chr1", 300, "PASS", "0/1", "2/3", "0/2", "1/3", "1/3")

func writeTestFile(t *testing.T, dir, name, data string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func readTestFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func testOpts(dir, vcfPath string) Opts {
	opts := DefaultOpts
	opts.VCFPath = vcfPath
	opts.Father, opts.Mother = "dad", "mom"
	opts.Children = []string{"k1", "k2", "k3"}
	opts.Parallelism = 2
	opts.OutPath = filepath.Join(dir, "regions.bed")
	opts.DiagnosticsPath = filepath.Join(dir, "diagnostics.tsv")
	opts.PhasedPath = filepath.Join(dir, "phased.tsv")
	opts.RegionsRIOPath = filepath.Join(dir, "regions.rio")
	opts.MendelianErrorsPath = filepath.Join(dir, "mendelian.tsv")
	return opts
}

func TestRun(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(tempDir, writeTestFile(t, tempDir, "in.vcf", testRecords))

	stats, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	stats.RunID = ""
	expect.EQ(t, stats, Stats{
		Records:              10,
		Filtered:             1,
		Informative:          8,
		MismatchingPloidy:    1,
		Malformed:            1,
		NonMendelian:         1,
		UninformativePattern: 1,
		Duplicates:           1,
		Families:             3,
		Blocks:               2,
		Regions:              2,
		Crossovers: []ChildCrossovers{
			{ID: "k1"}, {ID: "k2"}, {ID: "k3", Father: 1},
		},
	})

	expect.EQ(t, readTestFile(t, opts.OutPath), RegionsBEDHeader+"\n"+
		"chr1\t0\t299\t010\t011\tL\t1\t2\n"+
		"chr1\t299\t1000\t011\t011\tX\t2\t2\n")
	expect.EQ(t, readTestFile(t, opts.DiagnosticsPath),
		"BN\tchr1\t100\t200\t010\t011\n"+
			"BX\tchr1\t300\t300\t011\t011\n")
	expect.EQ(t, readTestFile(t, opts.PhasedPath),
		"#CHROM\tPOS\tdad\tmom\tk1\tk2\tk3\n"+
			"chr1\t100\t0|1\t2|3\t0|2\t1|3\t0|3\n"+
			"chr1\t200\t0|1\t2|3\t0|2\t1|3\t0|3\n"+
			"chr1\t300\t0|1\t2|3\t0|2\t1|3\t1|3\n")
	expect.EQ(t, readTestFile(t, opts.MendelianErrorsPath),
		"#CHROM\tPOS\tREF\tALT\tdad\tmom\tk1\tk2\tk3\n"+
			"chr1\t250\tA\tC,G,T\t0/0\t0/0\t0/1\t0/0\t0/0\n")

	archive, err := ReadRegionsRIO(ctx, opts.RegionsRIOPath)
	require.NoError(t, err)
	bed, err := LoadRegions(ctx, opts.OutPath)
	require.NoError(t, err)
	expect.EQ(t, archive.Regions, bed)
	expect.EQ(t, archive.Samples, []string{"dad", "mom", "k1", "k2", "k3"})
	expect.EQ(t, archive.Counts, map[string]int{"chr1": 2})
}

func TestRunPedigreeAndRegion(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(tempDir, filepath.Join(tempDir, "in.vcf.gz"))
	w, err := util.Create(ctx, opts.VCFPath, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte(testRecords))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	opts.Father, opts.Mother, opts.Children = "", "", nil
	opts.PedPath = writeTestFile(t, tempDir, "family.ped",
		"# fid iid pat mat sex pheno\n"+
			"f1 dad 0 0 1 0\n"+
			"f1 mom 0 0 2 0\n"+
			"f1 k1 dad mom 1 0\n"+
			"f1 k2 dad mom 2 0\n"+
			"f1 k3 dad mom 0 0\n"+
			"f1 other dad mom 1 0\n")
	opts.Region = "chr1:1-250"
	opts.OutPath = filepath.Join(tempDir, "regions.bed.gz")

	stats, err := Run(ctx, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.OutsideRegion, 6)
	expect.EQ(t, stats.Families, 2)
	expect.EQ(t, stats.Regions, 1)
	expect.EQ(t, stats.NonMendelian, 1)

	regions, err := LoadRegions(ctx, opts.OutPath)
	require.NoError(t, err)
	expect.EQ(t, regions, []Region{
		{Seq: "chr1", Start0: 0, End: 1000, Fa: "010", Mo: "011", Code: RegionLinked, FaLevel: 1, MoLevel: 2},
	})

	// The BED keeps only the first two records.
	opts.Region = ""
	opts.BedPath = writeTestFile(t, tempDir, "keep.bed", "chr1\t0\t150\n")
	stats, err = Run(ctx, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.Filtered, 1)
	expect.EQ(t, stats.OutsideRegion, 8)
	expect.EQ(t, stats.Families, 1)
}

func TestRunAllFilters(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(tempDir, writeTestFile(t, tempDir, "in.vcf", testRecords))
	opts.AllFilters = true
	opts.OutPath, opts.DiagnosticsPath, opts.PhasedPath, opts.RegionsRIOPath, opts.MendelianErrorsPath = "", "", "", "", ""
	stats, err := Run(ctx, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.Filtered, 0)
	expect.EQ(t, stats.Families, 4)
}

func TestRunErrors(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	gts := []string{"0/1", "2/3", "0/2", "1/3", "0/3"}
	tests := []struct {
		name, records string
	}{
		{"unsorted", vcfLine("chr1", 200, "PASS", gts...) + vcfLine("chr1", 100, "PASS", gts...)},
		{"noncontiguous", vcfLine("chr1", 100, "PASS", gts...) + vcfLine("chr2", 100, "PASS", gts...) +
			vcfLine("chr1", 200, "PASS", gts...)},
		// Children of unknown sex are diploid on chrY, which no parent pair explains.
		{"ploidy", vcfLine("chrY", 3000000, "PASS", "1", ".", "0/1", "0/0", "0/1")},
	}
	for _, tt := range tests {
		opts := testOpts(tempDir, writeTestFile(t, tempDir, tt.name+".vcf", vcfHeader+tt.records))
		_, err := Run(ctx, opts)
		assert.Error(t, err, tt.name)
	}

	opts := testOpts(tempDir, writeTestFile(t, tempDir, "ok.vcf", testRecords))
	opts.Father = "nobody"
	_, err := Run(ctx, opts)
	assert.Error(t, err)

	opts = testOpts(tempDir, filepath.Join(tempDir, "missing.vcf"))
	_, err = Run(ctx, opts)
	assert.Error(t, err)

	opts = testOpts(tempDir, writeTestFile(t, tempDir, "ok.vcf", testRecords))
	opts.Search.ErrorCost = -1
	_, err = Run(ctx, opts)
	assert.Error(t, err)
}

func TestRunMendelian(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(tempDir, writeTestFile(t, tempDir, "in.vcf", testRecords))
	opts.OutPath = filepath.Join(tempDir, "unused.bed")
	stats, err := RunMendelian(ctx, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.NonMendelian, 1)
	expect.EQ(t, stats.Blocks, 0)
	assert.Contains(t, readTestFile(t, opts.MendelianErrorsPath), "chr1\t250\t")
	_, err = ioutil.ReadFile(opts.OutPath)
	assert.Error(t, err)
}

func TestSortByGenome(t *testing.T) {
	seqs := []*sequenceResult{
		{seq: "chrUn1", id: -1},
		{seq: "chr2", id: 1},
		{seq: "chrUn2", id: -1},
		{seq: "chr1", id: 0},
	}
	sortByGenome(seqs)
	var names []string
	for _, r := range seqs {
		names = append(names, r.seq)
	}
	expect.EQ(t, names, []string{"chr1", "chr2", "chrUn1", "chrUn2"})
}

func TestPhaseFamilies(t *testing.T) {
	fa, mo := dip(0, 1), dip(2, 3)
	families := []*Family{
		newTestFamily(50, fa, mo, dip(0, 2), dip(1, 3)),
		newTestFamily(100, fa, mo, dip(0, 2), dip(1, 3)),
		// k1 and k2 share labels but not genotypes.
		newTestFamily(200, fa, mo, dip(0, 2), dip(1, 2)),
		newTestFamily(900, fa, mo, dip(0, 2), dip(1, 3)),
	}
	regions := []Region{
		{Seq: "chr1", Start0: 80, End: 150, Fa: "01", Mo: "01"},
		{Seq: "chr1", Start0: 150, End: 300, Fa: "00", Mo: "00"},
	}
	phased, conflicts := phaseFamilies(families, regions)
	require.Len(t, phased, 1)
	expect.EQ(t, phased[0].Family().Pos, 100)
	expect.EQ(t, conflicts, 1)
}
