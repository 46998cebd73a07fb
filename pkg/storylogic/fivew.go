package storylogic

import (
	"context"
	"strings"
)

// FiveWOneH buckets a passage by who, what, when, where, why and how.
// Why and how are never filled by the rule-based pass.
type FiveWOneH struct {
	Who   []string `json:"who"`
	What  []string `json:"what"`
	When  []string `json:"when"`
	Where []string `json:"where"`
	Why   []string `json:"why"`
	How   []string `json:"how"`
}

// Extract5W1H fills who/where/when from recognized entities and what from the
// lowercase word directly after a character's name ("Luna walked" -> walked).
func Extract5W1H(ctx context.Context, r Recognizer, text string) (FiveWOneH, error) {
	res := FiveWOneH{Who: []string{}, What: []string{}, When: []string{}, Where: []string{}, Why: []string{}, How: []string{}}
	ents, err := r.Recognize(ctx, text)
	if err != nil {
		return res, err
	}

	names := make(map[string]bool)
	for _, e := range ents {
		switch {
		case isPerson(e):
			res.Who = append(res.Who, e.Text)
			if fields := strings.Fields(e.Text); len(fields) > 0 {
				names[fields[len(fields)-1]] = true
			}
		case isPlace(e):
			res.Where = append(res.Where, e.Text)
		case isTime(e):
			res.When = append(res.When, e.Text)
		}
	}

	words := splitWords(text)
	for i := 1; i < len(words); i++ {
		w := words[i]
		if names[words[i-1].text] && !w.after && !capitalized(w.text) {
			res.What = append(res.What, strings.ToLower(w.text))
		}
	}

	return res, nil
}
