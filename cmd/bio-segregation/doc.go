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

/*
Given a multi-sample VCF holding a father, a mother and two or more of their
children, bio-segregation labels the two haplotypes of each parent and
reports, for every region of the genome, which parental haplotype each child
inherited.  Region boundaries mark crossovers.

The phase subcommand groups consecutive positions with the same inheritance
pattern into blocks, then searches for the cheapest explanation of the block
sequence as continuations, single-child crossovers, new regions and skipped
noise.  Costs are set with -config (YAML), SEGREGATION_* environment variables
(e.g. SEGREGATION_CROSSOVER_COST) and flags, in increasing priority.

The mendelian subcommand only reports the records violating Mendelian
inheritance.  The checksum subcommand summarizes a region BED or .rio file so
that two runs can be compared.

Sample usage:
bio-segregation phase \
    -father NA12877 -mother NA12878 \
    -children NA12879,NA12880,NA12881 -child-sexes F,F,M \
    -out regions.bed.gz \
    -regions-rio regions.rio \
    family.vcf.gz
*/
package main
