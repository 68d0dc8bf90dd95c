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
	"io"

	"github.com/grailbio/segregation/reference"
	"github.com/grailbio/segregation/util"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of environment variables overriding SearchOpts,
// e.g. SEGREGATION_CROSSOVER_COST.
const EnvPrefix = "SEGREGATION"

// Opts configures Run.
type Opts struct {
	// Inputs.
	VCFPath string
	// PedPath selects the family from a PED file.  Otherwise Father, Mother
	// and Children name the samples directly.
	PedPath    string
	Father     string
	Mother     string
	Children   []string
	ChildSexes []reference.Sex
	// PloidyPath is a ploidy-rules TSV.  Built-in human rules are used if
	// empty.
	PloidyPath string
	// GenomePath is a .fai or .dict.  VCF ##contig lines are used if empty.
	GenomePath string
	BedPath    string
	Region     string
	// AllFilters keeps records whose FILTER is neither PASS nor ".".
	AllFilters  bool
	Parallelism int

	// Outputs.  Empty paths are not written; a .gz suffix selects bgzip.
	OutPath             string
	DiagnosticsPath     string
	RegionsRIOPath      string
	PhasedPath          string
	MendelianErrorsPath string

	Search SearchOpts
}

// DefaultOpts is the default value of Opts.
var DefaultOpts = Opts{
	Parallelism: 0,
	Search:      DefaultSearchOpts,
}

// ReadSearchOpts overlays the YAML settings in r on opts.  Keys absent from
// the document keep their current value.
func ReadSearchOpts(r io.Reader, opts *SearchOpts) error {
	if err := yaml.NewDecoder(r).Decode(opts); err != nil && err != io.EOF {
		return errors.Wrap(err, "ReadSearchOpts")
	}
	return nil
}

// LoadSearchOpts is ReadSearchOpts on a file.
func LoadSearchOpts(ctx context.Context, path string, opts *SearchOpts) (err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	return errors.Wrap(ReadSearchOpts(in, opts), path)
}

// SearchOptsFromEnv overlays the EnvPrefix environment variables on opts.
func SearchOptsFromEnv(opts *SearchOpts) error {
	if err := envconfig.Process(EnvPrefix, opts); err != nil {
		return errors.Wrap(err, "SearchOptsFromEnv")
	}
	return nil
}
