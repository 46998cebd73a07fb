// Package store persists stories and their story logic datasets. Every
// backend hands out copies: mutating a returned value never changes what is
// stored until it is written back.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"storyweaver/pkg/schema"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

type DatasetStore interface {
	GetDataset(ctx context.Context, storyID string) (*schema.StoryLogicDataset, error)
	CreateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error
	UpdateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error
	ListDatasets(ctx context.Context) ([]*schema.StoryLogicDataset, error)
	DeleteDataset(ctx context.Context, storyID string) error
}

type StoryStore interface {
	GetStory(ctx context.Context, id string) (*schema.Story, error)
	CreateStory(ctx context.Context, s *schema.Story) error
	UpdateStory(ctx context.Context, s *schema.Story) error
	ListStories(ctx context.Context) ([]*schema.Story, error)
	DeleteStory(ctx context.Context, id string) error
}

type Store interface {
	DatasetStore
	StoryStore
	Close() error
}

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the backend named by driver. path is the JSON snapshot for the
// file driver and the database file for sqlite.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return OpenFileStore(cmp.Or(path, "data/storyweaver.json"))
	case DriverSQLite:
		return OpenSQLiteStore(cmp.Or(path, "data/storyweaver.db"))
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func exists(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrExists)
}

func sortDatasets(out []*schema.StoryLogicDataset) {
	slices.SortFunc(out, func(a, b *schema.StoryLogicDataset) int { return strings.Compare(a.StoryID, b.StoryID) })
}

func sortStories(out []*schema.Story) {
	slices.SortFunc(out, func(a, b *schema.Story) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
}
