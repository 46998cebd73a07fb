// Package ingest applies new story content to a story's dataset. Updates to
// one story are serialized; different stories proceed in parallel.
package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/vector"
)

// Kind says where content came from. It is stored on indexed passages.
type Kind string

const (
	KindBook      Kind = "book"
	KindPage      Kind = "page"
	KindExpansion Kind = "expansion"
)

// Indexer stores raw page text for later retrieval.
type Indexer interface {
	Add(ctx context.Context, storyID string, docs []vector.Document) error
}

type Content struct {
	StoryID string
	Title   string
	Pages   []schema.Page
	Kind    Kind
}

type Rejection struct {
	Element        schema.StoryElement `json:"element"`
	Contradictions []string            `json:"contradictions"`
}

// Report describes one update. Rejected elements were dropped and never
// touched the dataset.
type Report struct {
	StoryID  string                `json:"story_id"`
	Version  int                   `json:"version"`
	Created  bool                  `json:"created"`
	Accepted []schema.StoryElement `json:"accepted"`
	Rejected []Rejection           `json:"rejected"`
	Indexed  int                   `json:"indexed"`
}

type Ingestor struct {
	datasets  store.DatasetStore
	extractor *storylogic.Extractor
	indexer   Indexer
	locks     storyLocks
}

// New wires an Ingestor. indexer may be nil, in which case page text is not
// indexed.
func New(datasets store.DatasetStore, extractor *storylogic.Extractor, indexer Indexer) *Ingestor {
	return &Ingestor{datasets: datasets, extractor: extractor, indexer: indexer}
}

// Update extracts elements from the content, checks each one against the
// story's current dataset and stores the accepted ones. The dataset is
// created on first use. Extraction runs before the dataset is touched, so a
// failed extraction leaves no trace.
func (in *Ingestor) Update(ctx context.Context, c Content) (Report, error) {
	storyID, title, err := c.validate()
	if err != nil {
		return Report{}, err
	}

	elements, err := in.extractor.Extract(ctx, c.Pages)
	if err != nil {
		return Report{}, err
	}

	report, err := in.apply(ctx, storyID, title, elements)
	if err != nil {
		return report, err
	}
	report.Indexed = in.index(ctx, storyID, title, cmp.Or(c.Kind, KindPage), c.Pages)

	log.Info("story updated",
		"story_id", storyID,
		"kind", cmp.Or(c.Kind, KindPage),
		"pages", len(c.Pages),
		"accepted", len(report.Accepted),
		"rejected", len(report.Rejected),
		"version", report.Version,
	)
	return report, nil
}

// Propose checks a single element against the story's dataset and stores it
// when consistent. title is used only when the dataset does not exist yet.
func (in *Ingestor) Propose(ctx context.Context, storyID, title string, e schema.StoryElement) (Report, error) {
	if err := e.Validate(); err != nil {
		return Report{}, err
	}
	c := Content{StoryID: storyID, Title: title}
	storyID, title, err := c.validate()
	if err != nil {
		return Report{}, err
	}
	return in.apply(ctx, storyID, title, []schema.StoryElement{e})
}

func (c Content) validate() (storyID, title string, err error) {
	ds := schema.StoryLogicDataset{StoryID: c.StoryID, Title: cmp.Or(c.Title, schema.DefaultTitle), Version: 1}
	if err := ds.Validate(); err != nil {
		return "", "", err
	}
	return ds.StoryID, ds.Title, nil
}

// apply runs the consistency check for each element against the dataset as
// it stands after the previous acceptance, then writes the dataset once.
func (in *Ingestor) apply(ctx context.Context, storyID, title string, elements []schema.StoryElement) (Report, error) {
	unlock := in.locks.lock(storyID)
	defer unlock()

	report := Report{StoryID: storyID, Accepted: []schema.StoryElement{}, Rejected: []Rejection{}}

	ds, err := in.datasets.GetDataset(ctx, storyID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if ds, err = schema.NewDataset(storyID, title); err != nil {
			return report, err
		}
		report.Created = true
	case err != nil:
		return report, fmt.Errorf("load dataset: %w", err)
	}

	for _, e := range elements {
		res := storylogic.CheckConsistency(e, ds)
		if !res.Consistent {
			log.Debug("element rejected", "story_id", storyID, "element_id", e.ID, "contradictions", res.Contradictions)
			report.Rejected = append(report.Rejected, Rejection{Element: e, Contradictions: res.Contradictions})
			continue
		}
		ds.Accept(e)
		report.Accepted = append(report.Accepted, e)
	}
	report.Version = ds.Version

	switch {
	case report.Created:
		err = in.datasets.CreateDataset(ctx, ds)
	case len(report.Accepted) > 0:
		err = in.datasets.UpdateDataset(ctx, ds)
	}
	if err != nil {
		return report, fmt.Errorf("save dataset: %w", err)
	}
	return report, nil
}

// index stores page text for retrieval. Failures are logged and do not undo
// the dataset update.
func (in *Ingestor) index(ctx context.Context, storyID, title string, kind Kind, pages []schema.Page) int {
	if in.indexer == nil {
		return 0
	}
	docs := make([]vector.Document, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		docs = append(docs, vector.Document{
			Text: p.Text,
			Metadata: map[string]any{
				"page_number": p.PageNumber,
				"title":       title,
				"type":        string(kind),
			},
		})
	}
	if len(docs) == 0 {
		return 0
	}
	if err := in.indexer.Add(ctx, storyID, docs); err != nil {
		log.Warn("failed to index pages", "story_id", storyID, "error", err)
		return 0
	}
	return len(docs)
}
