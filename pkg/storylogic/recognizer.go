// Package storylogic extracts story elements from page text, checks new
// elements against a story's accepted set and renders a dataset for prompts.
package storylogic

import (
	"context"
	"errors"

	"storyweaver/pkg/schema"
)

// Entity labels understood by the extractor.
const (
	LabelPerson   = "PERSON"
	LabelGPE      = "GPE"
	LabelLocation = "LOC"
	LabelFacility = "FAC"
	LabelDate     = "DATE"
	LabelTime     = "TIME"
)

// ErrRecognizerUnavailable means the entity recognizer cannot run at all.
// It is fatal to an extraction call and is never retried internally.
var ErrRecognizerUnavailable = errors.New("entity recognizer unavailable")

// Recognizer finds named entities in one piece of text, in order of
// appearance.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]schema.Entity, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, text string) ([]schema.Entity, error)

func (f RecognizerFunc) Recognize(ctx context.Context, text string) ([]schema.Entity, error) {
	return f(ctx, text)
}

func isPerson(e schema.Entity) bool {
	return e.Label == LabelPerson
}

func isPlace(e schema.Entity) bool {
	switch e.Label {
	case LabelGPE, LabelLocation, LabelFacility:
		return true
	}
	return false
}

func isTime(e schema.Entity) bool {
	return e.Label == LabelTime || e.Label == LabelDate
}
