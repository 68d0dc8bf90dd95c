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
package util

import (
	"github.com/antzucaro/matchr"
)

// ClosestName returns the candidate with the smallest Levenshtein distance
// to name, and that distance.  Ties go to the earliest candidate.  It
// returns ("", -1) if there are no candidates.
func ClosestName(name string, candidates []string) (string, int) {
	best, bestDist := "", -1
	for _, c := range candidates {
		if d := matchr.Levenshtein(name, c); bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// Suggest returns a " (did you mean X?)" hint for a name missing from
// candidates, or "" if no candidate is within maxDist edits.
func Suggest(name string, candidates []string, maxDist int) string {
	best, d := ClosestName(name, candidates)
	if d < 0 || d > maxDist {
		return ""
	}
	return " (did you mean " + best + "?)"
}
