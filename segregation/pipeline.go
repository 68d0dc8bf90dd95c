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
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/segregation/encoding/vcf"
	"github.com/grailbio/segregation/genotype"
	"github.com/grailbio/segregation/interval"
	"github.com/grailbio/segregation/pedigree"
	"github.com/grailbio/segregation/reference"
)

// ChildCrossovers counts the crossovers placed in one child.
type ChildCrossovers struct {
	ID     string
	Father int
	Mother int
}

// Stats summarizes a run.
type Stats struct {
	RunID string
	// Records is the number of VCF records read.
	Records int
	// Filtered counts records dropped for their FILTER value.
	Filtered int
	// OutsideRegion counts records outside -bed / -region.
	OutsideRegion int
	// Informative counts records with a called ALT allele in the family.
	Informative          int
	MismatchingPloidy    int
	Malformed            int
	NonMendelian         int
	UninformativePattern int
	Duplicates           int
	// Families is the number of positions fed to the block builder.
	Families int
	Blocks   int
	Regions  int
	// LabelConflicts counts positions whose genotypes contradict the labels of
	// their region.
	LabelConflicts int
	Crossovers     []ChildCrossovers
}

// sequenceResult holds the data and the outcome of phasing one sequence.
type sequenceResult struct {
	seq string
	id  int // index in the genome, -1 if absent

	informative  int
	nonMendelian int
	families     []*Family

	blocks    []*Block
	path      []Container
	regions   []Region
	phased    []*LabelPhasing
	conflicts int
}

// inputs holds everything read before scanning the variants.
type inputs struct {
	vcf     *vcf.Reader
	family  *pedigree.Family
	members []pedigree.Member
	cols    []int
	ploidy  reference.PloidyLookup
	genome  *reference.Genome
	bed     *interval.BEDUnion
	region  *interval.Entry
}

func genomeFromContigs(contigs []vcf.Contig) (*reference.Genome, error) {
	names := make([]string, len(contigs))
	lengths := make([]int, len(contigs))
	for i, c := range contigs {
		names[i], lengths[i] = c.ID, c.Length
	}
	return reference.NewGenome(names, lengths)
}

func openInputs(ctx context.Context, opts Opts) (in *inputs, err error) {
	if opts.VCFPath == "" {
		return nil, fmt.Errorf("openInputs: no VCF given")
	}
	in = &inputs{}
	if in.vcf, err = vcf.Open(ctx, opts.VCFPath); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = in.vcf.Close(ctx)
		}
	}()
	samples := in.vcf.Header().Samples
	if opts.PedPath != "" {
		var entries []pedigree.Entry
		if entries, err = pedigree.Load(ctx, opts.PedPath); err != nil {
			return nil, err
		}
		if in.family, err = pedigree.SelectFamily(entries, samples, opts.Father, opts.Mother); err != nil {
			return nil, err
		}
	} else if in.family, err = pedigree.NewFamily(samples, opts.Father, opts.Mother, opts.Children, opts.ChildSexes); err != nil {
		return nil, err
	}
	in.members = in.family.Members()
	in.cols = make([]int, len(in.members))
	for i, m := range in.members {
		in.cols[i] = m.Column
	}

	if in.ploidy, err = reference.LoadRules(ctx, opts.PloidyPath); err != nil {
		return nil, err
	}
	if opts.GenomePath != "" {
		in.genome, err = reference.LoadGenome(ctx, opts.GenomePath)
	} else {
		in.genome, err = genomeFromContigs(in.vcf.Header().Contigs)
	}
	if err != nil {
		return nil, err
	}
	if opts.BedPath != "" {
		var bed interval.BEDUnion
		if bed, err = interval.NewBEDUnionFromPath(ctx, opts.BedPath, interval.NewBEDOpts{SAMHeader: in.genome.Header()}); err != nil {
			return nil, err
		}
		in.bed = &bed
		covered := 0
		for _, name := range in.genome.Names() {
			if bed.HasChr(name) {
				covered++
			}
		}
		if covered == 0 {
			log.Printf("segregation: %s covers none of the %d sequences of the genome", opts.BedPath, len(in.genome.Names()))
		}
	}
	if opts.Region != "" {
		var region interval.Entry
		if region, err = interval.ParseRegionString(opts.Region); err != nil {
			return nil, err
		}
		in.region = &region
	}
	return in, nil
}

func (in *inputs) close(ctx context.Context) error {
	return in.vcf.Close(ctx)
}

// excluded returns true if the 1-based position is outside the -region and
// -bed restrictions.
func (in *inputs) excluded(seq string, pos int) bool {
	pos0 := interval.PosType(pos - 1)
	if r := in.region; r != nil && (seq != r.ChrName || pos0 < r.Start0 || pos0 >= r.End) {
		return true
	}
	if in.bed != nil {
		if id := in.genome.ID(seq); id >= 0 {
			return !in.bed.ContainsByID(id, pos0)
		}
		return !in.bed.ContainsByName(seq, pos0)
	}
	return false
}

// genotypes parses the calls of the family members in rec, father first.
func (in *inputs) genotypes(rec *vcf.Record) ([]genotype.Genotype, error) {
	gts := make([]genotype.Genotype, len(in.members))
	for i, m := range in.members {
		g, err := genotype.Parse(rec.GT[m.Column], in.ploidy.Ploidy(m.Sex, rec.Chrom, rec.Pos))
		if err != nil {
			return nil, err
		}
		if g.A > len(rec.Alts) || g.B > len(rec.Alts) {
			return nil, fmt.Errorf("genotypes: %s: allele out of range in %q, %d ALT alleles", m.ID, rec.GT[m.Column], len(rec.Alts))
		}
		gts[i] = g
	}
	return gts, nil
}

// scan reads the VCF and groups the phasable families by sequence, in input
// order.  Records of one sequence must be contiguous and sorted.
func (in *inputs) scan(opts Opts, stats *Stats, mendelian *mendelianWriter) ([]*sequenceResult, error) {
	var (
		seqs    []*sequenceResult
		cur     *sequenceResult
		seen    = map[string]bool{}
		lastPos int
	)
	for {
		rec, err := in.vcf.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		stats.Records++
		if cur == nil || rec.Chrom != cur.seq {
			if seen[rec.Chrom] {
				return nil, fmt.Errorf("scan: %s:%d: records of %s are not contiguous", rec.Chrom, rec.Pos, rec.Chrom)
			}
			seen[rec.Chrom] = true
			cur = &sequenceResult{seq: rec.Chrom, id: in.genome.ID(rec.Chrom)}
			seqs = append(seqs, cur)
			lastPos = 0
		}
		if rec.Pos < lastPos {
			return nil, fmt.Errorf("scan: %s:%d: records are not sorted", rec.Chrom, rec.Pos)
		}
		lastPos = rec.Pos

		if !opts.AllFilters && !rec.Passes() {
			stats.Filtered++
			continue
		}
		if in.excluded(rec.Chrom, rec.Pos) {
			stats.OutsideRegion++
			continue
		}
		if !vcf.IsInformative(rec, in.cols) {
			continue
		}
		stats.Informative++
		cur.informative++
		gts, err := in.genotypes(rec)
		if err != nil {
			if genotype.IsMismatchingPloidy(err) {
				stats.MismatchingPloidy++
			} else {
				stats.Malformed++
			}
			log.Debug.Printf("scan: %s:%d: %v", rec.Chrom, rec.Pos, err)
			continue
		}
		f := NewFamily(rec.Chrom, rec.Pos, gts[0], gts[1], gts[2:])
		if !f.SupportedPloidies() {
			return nil, fmt.Errorf("scan: %s:%d: unsupported ploidies (father %v, mother %v, children %v); "+
				"set the children's sexes or the ploidy rules", rec.Chrom, rec.Pos, f.Father.Ploidy, f.Mother.Ploidy, childPloidies(f))
		}
		if !f.IsMendelian() {
			stats.NonMendelian++
			cur.nonMendelian++
			if err := mendelian.write(rec, in.members); err != nil {
				return nil, err
			}
			continue
		}
		if f.Pattern.IsEmpty() {
			stats.UninformativePattern++
			continue
		}
		if n := len(cur.families); n > 0 && cur.families[n-1].Pos == f.Pos {
			stats.Duplicates++
			continue
		}
		cur.families = append(cur.families, f)
		stats.Families++
	}
	return seqs, nil
}

func childPloidies(f *Family) []genotype.Ploidy {
	ps := make([]genotype.Ploidy, len(f.Children))
	for i, c := range f.Children {
		ps[i] = c.Ploidy
	}
	return ps
}

// sortByGenome orders seqs by their index in the genome.  Sequences absent
// from the genome keep their input order, after the others.
func sortByGenome(seqs []*sequenceResult) {
	sort.SliceStable(seqs, func(i, j int) bool {
		a, b := seqs[i].id, seqs[j].id
		if a < 0 || b < 0 {
			return a >= 0 && b < 0
		}
		return a < b
	})
}

// phaseFamilies phases each family with the labels of the region containing
// it.  Families outside every region are skipped.
func phaseFamilies(families []*Family, regions []Region) (phased []*LabelPhasing, conflicts int) {
	ri := 0
	for _, f := range families {
		pos0 := f.Pos - 1
		for ri < len(regions) && regions[ri].End <= pos0 {
			ri++
		}
		if ri == len(regions) {
			break
		}
		if pos0 < regions[ri].Start0 {
			continue
		}
		lp, ok := PhaseWithLabels(f, regions[ri].Pattern())
		if !ok {
			conflicts++
			continue
		}
		phased = append(phased, lp)
	}
	return phased, conflicts
}

func (r *sequenceResult) phase(seqLen int, opts SearchOpts) {
	r.blocks = BuildBlocks(r.families)
	r.path = Search(r.blocks, opts)
	r.regions = EmitRegions(r.seq, seqLen, r.path)
	r.phased, r.conflicts = phaseFamilies(r.families, r.regions)
	log.Printf("%s: %d families, %d blocks, %d regions, %d label conflicts",
		r.seq, len(r.families), len(r.blocks), len(r.regions), r.conflicts)
}

// phaseSequences phases seqs concurrently.
func phaseSequences(seqs []*sequenceResult, genome *reference.Genome, opts Opts) error {
	if len(seqs) == 0 {
		return nil
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(seqs) {
		parallelism = len(seqs)
	}
	return traverse.Each(parallelism, func(jobIdx int) error {
		for i := jobIdx; i < len(seqs); i += parallelism {
			seqs[i].phase(genome.Length(seqs[i].seq), opts.Search)
		}
		return nil
	})
}

func countCrossovers(family *pedigree.Family, seqs []*sequenceResult) []ChildCrossovers {
	counts := make([]ChildCrossovers, len(family.Children))
	for i, c := range family.Children {
		counts[i].ID = c.ID
	}
	for _, r := range seqs {
		for _, c := range r.path {
			if c.Kind != XO {
				continue
			}
			if c.XO.OnFather {
				counts[c.XO.ChildIndex].Father++
			} else {
				counts[c.XO.ChildIndex].Mother++
			}
		}
	}
	return counts
}

// Run phases the family selected by opts and writes the requested outputs.
func Run(ctx context.Context, opts Opts) (stats Stats, err error) {
	if err = opts.Search.Validate(); err != nil {
		return
	}
	stats.RunID = uuid.New().String()
	in, err := openInputs(ctx, opts)
	if err != nil {
		return
	}
	defer func() {
		if e := in.close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	log.Printf("Run %s: father %s, mother %s, %d children", stats.RunID, in.family.Father.ID, in.family.Mother.ID, len(in.family.Children))

	mendelian, err := newMendelianWriter(ctx, opts.MendelianErrorsPath, in.members, opts.Parallelism)
	if err != nil {
		return
	}
	seqs, err := in.scan(opts, &stats, mendelian)
	if e := mendelian.close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return
	}

	var nonEmpty []*sequenceResult
	for _, r := range seqs {
		if len(r.families) > 0 {
			nonEmpty = append(nonEmpty, r)
		}
	}
	seqs = nonEmpty
	sortByGenome(seqs)
	if err = phaseSequences(seqs, in.genome, opts); err != nil {
		return
	}
	for _, r := range seqs {
		stats.Blocks += len(r.blocks)
		stats.Regions += len(r.regions)
		stats.LabelConflicts += r.conflicts
	}
	stats.Crossovers = countCrossovers(in.family, seqs)
	for _, c := range stats.Crossovers {
		log.Printf("Run: child %s: %d paternal and %d maternal crossovers", c.ID, c.Father, c.Mother)
	}
	if err = writeOutputs(ctx, opts, in, stats.RunID, seqs); err != nil {
		return
	}
	log.Printf("Run %s: %d records, %d informative, %d families, %d blocks, %d regions",
		stats.RunID, stats.Records, stats.Informative, stats.Families, stats.Blocks, stats.Regions)
	return
}

// RunMendelian scans the VCF like Run and writes only the Mendelian error
// report.
func RunMendelian(ctx context.Context, opts Opts) (stats Stats, err error) {
	stats.RunID = uuid.New().String()
	in, err := openInputs(ctx, opts)
	if err != nil {
		return
	}
	defer func() {
		if e := in.close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	mendelian, err := newMendelianWriter(ctx, opts.MendelianErrorsPath, in.members, opts.Parallelism)
	if err != nil {
		return
	}
	seqs, err := in.scan(opts, &stats, mendelian)
	if e := mendelian.close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return
	}
	sortByGenome(seqs)
	for _, r := range seqs {
		if r.informative == 0 {
			continue
		}
		log.Printf("%s: %d informative records, %d Mendelian errors (%.3f%%)",
			r.seq, r.informative, r.nonMendelian, 100*float64(r.nonMendelian)/float64(r.informative))
	}
	return
}
