package storylogic

import (
	"fmt"
	"reflect"
	"strings"

	"storyweaver/pkg/schema"
)

// Result is the outcome of a consistency check. A negative result is not an
// error: the caller simply does not add the candidate.
type Result struct {
	Consistent     bool     `json:"is_consistent"`
	Contradictions []string `json:"contradictions"`
	Suggestions    []string `json:"suggestions"`
}

// CheckConsistency compares a candidate against every element already in the
// dataset. Two characters with the same name (ignoring case) contradict each
// other when both record a species and the species differ. No other element
// pairs are compared; rule elements that mention locations are not
// cross-checked.
func CheckConsistency(candidate schema.StoryElement, ds *schema.StoryLogicDataset) Result {
	res := Result{Contradictions: []string{}, Suggestions: []string{}}
	if ds != nil && candidate.Type == schema.ElementCharacter {
		for _, existing := range ds.Elements {
			if existing.Type != schema.ElementCharacter || !strings.EqualFold(existing.Name, candidate.Name) {
				continue
			}
			if speciesConflict(existing.Attr(schema.AttrSpecies), candidate.Attr(schema.AttrSpecies)) {
				res.Contradictions = append(res.Contradictions, fmt.Sprintf("Character %s has inconsistent attributes", existing.Name))
			}
		}
	}
	res.Consistent = len(res.Contradictions) == 0
	return res
}

// speciesConflict treats a missing species as unknown, which contradicts
// nothing.
func speciesConflict(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return !reflect.DeepEqual(a, b)
}
