package schema

import (
	"maps"
	"time"
)

const DefaultTitle = "Untitled"

// Contradiction is a conflict recorded against a story's element set.
type Contradiction struct {
	ElementID string `json:"element_id"`
	Message   string `json:"message"`
}

// StoryLogicDataset is the versioned collection of accepted elements and
// rules for one story. Version starts at 1 and grows by one per accepted
// element.
type StoryLogicDataset struct {
	StoryID        string           `json:"story_id"`
	Title          string           `json:"title"`
	Elements       []StoryElement   `json:"elements"`
	Rules          []map[string]any `json:"rules"`
	Contradictions []Contradiction  `json:"contradictions"`
	LastUpdated    time.Time        `json:"last_updated"`
	Version        int              `json:"version"`
}

func NewDataset(storyID, title string) (*StoryLogicDataset, error) {
	ds := &StoryLogicDataset{
		StoryID:        storyID,
		Title:          title,
		Elements:       []StoryElement{},
		Rules:          []map[string]any{},
		Contradictions: []Contradiction{},
		LastUpdated:    time.Now().UTC(),
		Version:        1,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *StoryLogicDataset) Validate() error {
	id, err := requireText("story_id", d.StoryID)
	if err != nil {
		return err
	}
	title, err := requireText("title", d.Title)
	if err != nil {
		return err
	}
	if d.Version < 1 {
		return invalid("version", "must be >= 1")
	}
	d.StoryID, d.Title = id, title
	return nil
}

// Accept appends an element that already passed the consistency check and
// bumps the version.
func (d *StoryLogicDataset) Accept(e StoryElement) {
	d.Elements = append(d.Elements, e)
	d.Version++
	d.LastUpdated = time.Now().UTC()
}

// AddRule records a free-form rule. Rules do not affect the version.
func (d *StoryLogicDataset) AddRule(description string, extra map[string]any) {
	rule := maps.Clone(extra)
	if rule == nil {
		rule = map[string]any{}
	}
	rule["description"] = description
	d.Rules = append(d.Rules, rule)
	d.LastUpdated = time.Now().UTC()
}

func (d *StoryLogicDataset) ElementsOf(t ElementType) []StoryElement {
	var out []StoryElement
	for _, e := range d.Elements {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a copy that shares no mutable state with d.
func (d *StoryLogicDataset) Clone() *StoryLogicDataset {
	if d == nil {
		return nil
	}
	c := *d
	c.Elements = make([]StoryElement, len(d.Elements))
	for i, e := range d.Elements {
		c.Elements[i] = e.Clone()
	}
	c.Rules = make([]map[string]any, len(d.Rules))
	for i, r := range d.Rules {
		c.Rules[i] = maps.Clone(r)
	}
	c.Contradictions = append([]Contradiction{}, d.Contradictions...)
	return &c
}
