package storylogic

import (
	"context"
	"fmt"
	"strings"

	"storyweaver/pkg/schema"
)

// ExtractionError wraps a recognizer failure with the page it happened on.
type ExtractionError struct {
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract page %d: %v", e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns pages into character and location elements.
type Extractor struct {
	recognizer Recognizer
}

func NewExtractor(r Recognizer) *Extractor {
	return &Extractor{recognizer: r}
}

// Extract runs the recognizer over every page in order. Each identifier is
// emitted once per call, with the page of its first occurrence; within a
// page characters come before locations. Pages with blank text are skipped.
func (x *Extractor) Extract(ctx context.Context, pages []schema.Page) ([]schema.StoryElement, error) {
	var elements []schema.StoryElement
	seen := make(map[string]struct{})

	for _, page := range pages {
		if page.PageNumber < 1 {
			return nil, &schema.ValidationError{Field: "page_number", Message: "must be >= 1"}
		}
		if strings.TrimSpace(page.Text) == "" {
			continue
		}

		ents, err := x.recognizer.Recognize(ctx, page.Text)
		if err != nil {
			return nil, &ExtractionError{Page: page.PageNumber, Err: err}
		}

		for _, ent := range ents {
			if !isPerson(ent) {
				continue
			}
			e, ok := x.element(seen, schema.ElementCharacter, ent.Text, fmt.Sprintf("Character appearing on page %d", page.PageNumber), page.PageNumber)
			if ok {
				e.Attributes[schema.AttrFirstAppearance] = page.PageNumber
				elements = append(elements, e)
			}
		}
		for _, ent := range ents {
			if !isPlace(ent) {
				continue
			}
			e, ok := x.element(seen, schema.ElementLocation, ent.Text, fmt.Sprintf("Location mentioned on page %d", page.PageNumber), page.PageNumber)
			if ok {
				elements = append(elements, e)
			}
		}
	}

	return elements, nil
}

func (x *Extractor) element(seen map[string]struct{}, t schema.ElementType, text, description string, page int) (schema.StoryElement, bool) {
	name := strings.TrimSpace(text)
	if name == "" {
		return schema.StoryElement{}, false
	}
	id := schema.ElementID(t, name)
	if _, dup := seen[id]; dup {
		return schema.StoryElement{}, false
	}
	e, err := schema.NewStoryElement(id, t, name, description, page)
	if err != nil {
		return schema.StoryElement{}, false
	}
	seen[id] = struct{}{}
	return e, true
}
