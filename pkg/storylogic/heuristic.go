package storylogic

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"storyweaver/pkg/schema"
)

// HeuristicRecognizer is an offline named-entity recognizer for simple
// picture-book prose. Runs of capitalized words become entities; a run is a
// place when it ends in a place noun or follows a spatial preposition
// ("into the Garden"), and a person otherwise. Month and weekday names are
// dates, and a small set of lowercase time words are reported as times.
type HeuristicRecognizer struct{}

func NewHeuristicRecognizer() HeuristicRecognizer { return HeuristicRecognizer{} }

type word struct {
	text  string
	start bool // first word of a sentence
	after bool // separated from the previous word by punctuation
}

func (HeuristicRecognizer) Recognize(ctx context.Context, text string) ([]schema.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := splitWords(text)

	var out []schema.Entity
	for i := 0; i < len(words); {
		w := words[i]
		lw := strings.ToLower(w.text)
		if timeWords[lw] {
			out = append(out, schema.Entity{Text: w.text, Label: LabelTime})
			i++
			continue
		}
		if !capitalized(w.text) || skipWord(w) {
			i++
			continue
		}

		j := i + 1
		for j < len(words) && capitalized(words[j].text) && !words[j].start && !words[j].after && !skipWord(words[j]) {
			j++
		}
		out = append(out, classify(words, i, j))
		i = j
	}

	return out, nil
}

func classify(words []word, i, j int) schema.Entity {
	parts := make([]string, 0, j-i)
	for _, w := range words[i:j] {
		parts = append(parts, w.text)
	}
	e := schema.Entity{Text: strings.Join(parts, " "), Label: LabelPerson}

	last := strings.ToLower(words[j-1].text)
	switch {
	case j-i == 1 && calendarWords[last]:
		e.Label = LabelDate
	case placeNouns[last], followsPreposition(words, i):
		e.Label = LabelLocation
	}
	return e
}

// followsPreposition reports whether the run starting at i is introduced by a
// spatial preposition, optionally with one determiner in between.
func followsPreposition(words []word, i int) bool {
	if i == 0 || words[i].after {
		return false
	}
	prev := strings.ToLower(words[i-1].text)
	if spatialPrepositions[prev] {
		return true
	}
	if determiners[prev] && i >= 2 && !words[i-1].after {
		return spatialPrepositions[strings.ToLower(words[i-2].text)]
	}
	return false
}

func splitWords(text string) []word {
	var out []word
	var cur []rune
	start, after := true, false
	flush := func() {
		if len(cur) == 0 {
			return
		}
		w := strings.Trim(string(cur), "'’-")
		if lw := strings.ToLower(w); strings.HasSuffix(lw, "'s") || strings.HasSuffix(lw, "’s") {
			_, size := utf8.DecodeLastRuneInString(w)
			w = w[:len(w)-size]
			_, size = utf8.DecodeLastRuneInString(w)
			w = w[:len(w)-size]
		}
		cur = cur[:0]
		if w == "" {
			return
		}
		out = append(out, word{text: w, start: start, after: after})
		start, after = false, false
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’' || r == '-':
			cur = append(cur, r)
		case unicode.IsSpace(r):
			flush()
			if r == '\n' {
				start, after = true, true
			}
		default:
			flush()
			after = true
			if r == '.' || r == '!' || r == '?' {
				start = true
			}
		}
	}
	flush()

	return out
}

func capitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func skipWord(w word) bool {
	lw := strings.ToLower(w.text)
	if alwaysSkip[lw] {
		return true
	}
	return w.start && sentenceStarters[lw]
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	alwaysSkip = set("i", "i'm", "i'll", "i'd", "i've", "ok", "okay")

	sentenceStarters = set(
		"the", "a", "an", "once", "one", "then", "when", "while", "after", "before",
		"in", "on", "at", "by", "for", "from", "with", "into", "out", "up", "down",
		"so", "but", "and", "or", "if", "as", "all", "every", "each", "some", "there",
		"here", "this", "that", "these", "those", "it", "its", "he", "she", "they",
		"we", "you", "his", "her", "their", "our", "my", "your", "what", "where", "who",
		"why", "how", "yes", "no", "oh", "hello", "hi", "suddenly", "soon", "now",
		"later", "finally", "today", "tonight", "tomorrow", "yesterday", "not", "let",
		"look", "come", "maybe", "even", "still", "just", "again", "together",
	)

	determiners = set("the", "a", "an", "this", "that", "his", "her", "their", "our", "my", "your")

	spatialPrepositions = set(
		"in", "into", "inside", "at", "near", "through", "across", "toward", "towards",
		"around", "beyond", "outside", "within", "onto", "throughout",
	)

	placeNouns = set(
		"garden", "forest", "woods", "wood", "park", "castle", "palace", "street", "road",
		"river", "lake", "sea", "ocean", "mountain", "mountains", "hill", "hills", "valley",
		"meadow", "field", "fields", "farm", "village", "town", "city", "kingdom", "island",
		"cave", "school", "house", "beach", "pond", "bridge", "tower", "library", "market",
		"jungle", "desert", "land", "world", "station", "zoo",
	)

	calendarWords = set(
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"january", "february", "march", "april", "may", "june", "july", "august",
		"september", "october", "november", "december",
	)

	timeWords = set(
		"morning", "afternoon", "evening", "night", "tonight", "today", "tomorrow",
		"yesterday", "noon", "midnight", "dawn", "dusk", "sunrise", "sunset",
	)
)
