package schema

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"
)

type ElementType string

const (
	ElementCharacter    ElementType = "character"
	ElementLocation     ElementType = "location"
	ElementRule         ElementType = "rule"
	ElementEvent        ElementType = "event"
	ElementTheme        ElementType = "theme"
	ElementRelationship ElementType = "relationship"
	ElementObject       ElementType = "object"
)

var elementPrefixes = map[ElementType]string{
	ElementCharacter:    "char",
	ElementLocation:     "loc",
	ElementRule:         "rule",
	ElementEvent:        "event",
	ElementTheme:        "theme",
	ElementRelationship: "rel",
	ElementObject:       "obj",
}

func (t ElementType) Valid() bool {
	_, ok := elementPrefixes[t]
	return ok
}

// ParseElementType accepts any casing and surrounding whitespace.
func ParseElementType(s string) (ElementType, error) {
	t := ElementType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalid("element_type", "unknown element type %q", s)
	}
	return t, nil
}

// ElementID derives the identifier of an element from its type and surface
// name: the type prefix, an underscore, then the lowercased name with spaces
// replaced by underscores ("Little Seed" -> "char_little_seed").
func ElementID(t ElementType, name string) string {
	prefix, ok := elementPrefixes[t]
	if !ok {
		prefix = string(t)
	}
	return prefix + "_" + strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// Well-known attribute keys. Attributes are an open mapping; these are the
// only keys the story logic reads.
const (
	AttrSpecies         = "species"
	AttrFirstAppearance = "first_appearance"
)

type StoryElement struct {
	ID            string         `json:"element_id"`
	Type          ElementType    `json:"element_type"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Attributes    map[string]any `json:"attributes"`
	Relationships []string       `json:"relationships"`
	SourcePage    int            `json:"source_page"`
	Confidence    float64        `json:"confidence"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewStoryElement builds a validated element with full confidence.
func NewStoryElement(id string, t ElementType, name, description string, sourcePage int) (StoryElement, error) {
	e := StoryElement{
		ID:            id,
		Type:          t,
		Name:          name,
		Description:   description,
		Attributes:    map[string]any{},
		Relationships: []string{},
		SourcePage:    sourcePage,
		Confidence:    1.0,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return StoryElement{}, err
	}
	return e, nil
}

// Validate trims the identifier and name in place and checks the element
// invariants. Trimming is idempotent, so validating twice yields the same value.
func (e *StoryElement) Validate() error {
	id, err := requireText("element_id", e.ID)
	if err != nil {
		return err
	}
	name, err := requireText("name", e.Name)
	if err != nil {
		return err
	}
	if !e.Type.Valid() {
		return invalid("element_type", "unknown element type %q", e.Type)
	}
	if e.SourcePage < 1 {
		return invalid("source_page", "must be >= 1")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return invalid("confidence", "must be between 0 and 1")
	}
	e.ID, e.Name = id, name
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	if e.Relationships == nil {
		e.Relationships = []string{}
	}
	return nil
}

// Attr returns the attribute value, nil when absent.
func (e StoryElement) Attr(key string) any {
	return e.Attributes[key]
}

func (e StoryElement) Clone() StoryElement {
	e.Attributes = maps.Clone(e.Attributes)
	e.Relationships = slices.Clone(e.Relationships)
	return e
}

type elementAlias struct {
	ID            string         `json:"element_id"`
	Type          ElementType    `json:"element_type"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Attributes    map[string]any `json:"attributes"`
	Relationships []string       `json:"relationships"`
	SourcePage    int            `json:"source_page"`
	Confidence    *float64       `json:"confidence"`
	CreatedAt     *time.Time     `json:"created_at"`
}

// UnmarshalJSON fills the defaults of an omitted confidence (1.0) and
// creation time (now). It does not validate.
func (e *StoryElement) UnmarshalJSON(data []byte) error {
	var a elementAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	*e = StoryElement{
		ID:            a.ID,
		Type:          ElementType(strings.ToLower(string(a.Type))),
		Name:          a.Name,
		Description:   a.Description,
		Attributes:    a.Attributes,
		Relationships: a.Relationships,
		SourcePage:    a.SourcePage,
		Confidence:    1.0,
		CreatedAt:     time.Now().UTC(),
	}
	if a.Confidence != nil {
		e.Confidence = *a.Confidence
	}
	if a.CreatedAt != nil {
		e.CreatedAt = *a.CreatedAt
	}

	return nil
}
