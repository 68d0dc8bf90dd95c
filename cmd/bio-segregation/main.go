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
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/segregation/reference"
	"github.com/grailbio/segregation/segregation"
	"v.io/x/lib/cmdline"
)

// inputFlags are shared by phase and mendelian.
type inputFlags struct {
	ped, father, mother, children, childSexes *string
	ploidy, genome, bed, region               *string
	allFilters                                *bool
	parallelism                               *int
	mendelianErrors                           *string
}

func newInputFlags(fs *flag.FlagSet) *inputFlags {
	d := segregation.DefaultOpts
	return &inputFlags{
		ped:        fs.String("ped", d.PedPath, "PED file describing the family. Otherwise -father, -mother and -children are required"),
		father:     fs.String("father", d.Father, "Father sample name. With -ped, selects among several families"),
		mother:     fs.String("mother", d.Mother, "Mother sample name. With -ped, selects among several families"),
		children:   fs.String("children", "", "Comma-separated child sample names, at least two"),
		childSexes: fs.String("child-sexes", "", "Comma-separated sexes (M, F or U) of the -children. Unknown if empty"),
		ploidy: fs.String("ploidy", d.PloidyPath, `Ploidy rule TSV with columns SEX SEQ START END PLOIDY.
Built-in human rules (haploid male chrX outside the PARs, haploid male chrY,
no female chrY, polyploid chrM) are used if empty.`),
		genome:          fs.String("genome", d.GenomePath, "Sequence dictionary (.fai or .dict). The VCF ##contig lines are used if empty"),
		bed:             fs.String("bed", d.BedPath, "Only process positions inside the intervals of this BED file"),
		region:          fs.String("region", d.Region, "Only process positions in the region, formatted as <contig>:<1-based first pos>-<last pos>, <contig>:<1-based pos>, or <contig>"),
		allFilters:      fs.Bool("all-filters", d.AllFilters, "Keep records whose FILTER is neither PASS nor '.'"),
		parallelism:     fs.Int("parallelism", d.Parallelism, "Number of chromosomes phased concurrently; 0 = runtime.NumCPU()"),
		mendelianErrors: fs.String("mendelian-errors", d.MendelianErrorsPath, "Output TSV of records violating Mendelian inheritance"),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (f *inputFlags) opts(vcfPath string) (segregation.Opts, error) {
	opts := segregation.DefaultOpts
	opts.VCFPath = vcfPath
	opts.PedPath = *f.ped
	opts.Father = *f.father
	opts.Mother = *f.mother
	opts.Children = splitList(*f.children)
	for _, s := range splitList(*f.childSexes) {
		sex, err := reference.ParseSex(s)
		if err != nil {
			return opts, err
		}
		opts.ChildSexes = append(opts.ChildSexes, sex)
	}
	if opts.PedPath == "" && (opts.Father == "" || opts.Mother == "" || len(opts.Children) == 0) {
		return opts, fmt.Errorf("either -ped or all of -father, -mother and -children must be set")
	}
	opts.PloidyPath = *f.ploidy
	opts.GenomePath = *f.genome
	opts.BedPath = *f.bed
	opts.Region = *f.region
	opts.AllFilters = *f.allFilters
	opts.Parallelism = *f.parallelism
	opts.MendelianErrorsPath = *f.mendelianErrors
	return opts, nil
}

// searchFlags set the search costs.  They override the -config file and the
// SEGREGATION_* environment variables.
type searchFlags struct {
	config                                    *string
	okCost, crossoverCost, newCost, errorCost *float64
	maxFrontier, compactThreshold             *int
}

func newSearchFlags(fs *flag.FlagSet) *searchFlags {
	d := segregation.DefaultSearchOpts
	return &searchFlags{
		config:           fs.String("config", "", "YAML file of search settings (ok_cost, crossover_cost, new_cost, error_cost, max_frontier, compact_threshold)"),
		okCost:           fs.Float64("ok-cost", d.OKCost, "Cost of continuing a region"),
		crossoverCost:    fs.Float64("crossover-cost", d.CrossoverCost, "Cost of a single-child crossover"),
		newCost:          fs.Float64("new-cost", d.NewCost, "Cost of starting a disconnected region"),
		errorCost:        fs.Float64("error-cost", d.ErrorCost, "Cost of skipping a block, per position in the block"),
		maxFrontier:      fs.Int("max-frontier", d.MaxFrontier, "Number of search nodes kept after each block"),
		compactThreshold: fs.Int("compact-threshold", d.CompactThreshold, "Search arena size triggering compaction"),
	}
}

// searchOpts layers the defaults, the -config file, the environment and the
// flags set on the command line, in increasing priority.
func (f *searchFlags) searchOpts(ctx context.Context, fs *flag.FlagSet) (segregation.SearchOpts, error) {
	opts := segregation.DefaultSearchOpts
	if *f.config != "" {
		if err := segregation.LoadSearchOpts(ctx, *f.config, &opts); err != nil {
			return opts, err
		}
	}
	if err := segregation.SearchOptsFromEnv(&opts); err != nil {
		return opts, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ok-cost":
			opts.OKCost = *f.okCost
		case "crossover-cost":
			opts.CrossoverCost = *f.crossoverCost
		case "new-cost":
			opts.NewCost = *f.newCost
		case "error-cost":
			opts.ErrorCost = *f.errorCost
		case "max-frontier":
			opts.MaxFrontier = *f.maxFrontier
		case "compact-threshold":
			opts.CompactThreshold = *f.compactThreshold
		}
	})
	return opts, opts.Validate()
}

func newCmdPhase() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "phase",
		Short:    "Phase a family's children into inherited-haplotype regions",
		ArgsName: "vcfpath",
	}
	in := newInputFlags(&cmd.Flags)
	search := newSearchFlags(&cmd.Flags)
	outPath := cmd.Flags.String("out", "", "Output region BED. Bgzipped if the path ends in .gz")
	diagnosticsPath := cmd.Flags.String("diagnostics", "", "Output TSV with one line per search path node")
	rioPath := cmd.Flags.String("regions-rio", "", "Output recordio archive of the regions")
	phasedPath := cmd.Flags.String("phased", "", "Output TSV of the label-phased genotypes")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("phase takes one vcfpath argument, but got %v", argv)
		}
		ctx := vcontext.Background()
		opts, err := in.opts(argv[0])
		if err != nil {
			return err
		}
		if opts.Search, err = search.searchOpts(ctx, &cmd.Flags); err != nil {
			return err
		}
		opts.OutPath = *outPath
		opts.DiagnosticsPath = *diagnosticsPath
		opts.RegionsRIOPath = *rioPath
		opts.PhasedPath = *phasedPath
		stats, err := segregation.Run(ctx, opts)
		if err != nil {
			return err
		}
		log.Printf("phase: %+v", stats)
		return nil
	})
	return cmd
}

func newCmdMendelian() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "mendelian",
		Short:    "Report the records of a VCF that violate Mendelian inheritance in a family",
		ArgsName: "vcfpath",
	}
	in := newInputFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("mendelian takes one vcfpath argument, but got %v", argv)
		}
		opts, err := in.opts(argv[0])
		if err != nil {
			return err
		}
		if opts.MendelianErrorsPath == "" {
			return fmt.Errorf("mendelian: -mendelian-errors is required")
		}
		stats, err := segregation.RunMendelian(vcontext.Background(), opts)
		if err != nil {
			return err
		}
		log.Printf("mendelian: %d informative records, %d Mendelian errors", stats.Informative, stats.NonMendelian)
		return nil
	})
	return cmd
}

func newCmdChecksum() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "checksum",
		Short: `Compute a checksum of a region BED or .rio file.
The checksum is a JSON string summarizing the regions of each sequence`,
		ArgsName: "path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("checksum takes a path, but found %v", argv)
		}
		return checksum(vcontext.Background(), argv[0], env.Stdout)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-segregation",
		Short:    "Infer haplotype inheritance in a family from a multi-sample VCF",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdPhase(),
			newCmdMendelian(),
			newCmdChecksum(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	err := cmdline.ParseAndRun(newCmdRoot(), cmdline.EnvFromOS(), os.Args[1:])
	shutdown()
	if err != nil {
		os.Exit(cmdline.ExitCode(err, os.Stderr))
	}
}
