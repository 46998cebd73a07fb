package store

import (
	"context"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/utils"
)

type (
	datasetMap = map[string]*schema.StoryLogicDataset
	storyMap   = map[string]*schema.Story
)

// MemoryStore keeps everything in process. It is the default backend and the
// base of FileStore.
type MemoryStore struct {
	datasets *utils.SyncMap[datasetMap, string, *schema.StoryLogicDataset]
	stories  *utils.SyncMap[storyMap, string, *schema.Story]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: utils.NewSyncMap[datasetMap](),
		stories:  utils.NewSyncMap[storyMap](),
	}
}

func (m *MemoryStore) GetDataset(_ context.Context, storyID string) (*schema.StoryLogicDataset, error) {
	ds, ok := m.datasets.Load(storyID)
	if !ok {
		return nil, notFound("dataset", storyID)
	}
	return ds.Clone(), nil
}

func (m *MemoryStore) CreateDataset(_ context.Context, ds *schema.StoryLogicDataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if !m.datasets.StoreIfAbsent(ds.StoryID, ds.Clone()) {
		return exists("dataset", ds.StoryID)
	}
	return nil
}

func (m *MemoryStore) UpdateDataset(_ context.Context, ds *schema.StoryLogicDataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if !m.datasets.StoreIfPresent(ds.StoryID, ds.Clone()) {
		return notFound("dataset", ds.StoryID)
	}
	return nil
}

func (m *MemoryStore) ListDatasets(context.Context) ([]*schema.StoryLogicDataset, error) {
	out := make([]*schema.StoryLogicDataset, 0, m.datasets.Len())
	m.datasets.Range(func(_ string, ds *schema.StoryLogicDataset) bool {
		out = append(out, ds.Clone())
		return true
	})
	sortDatasets(out)
	return out, nil
}

func (m *MemoryStore) DeleteDataset(_ context.Context, storyID string) error {
	if !m.datasets.Delete(storyID) {
		return notFound("dataset", storyID)
	}
	return nil
}

func (m *MemoryStore) GetStory(_ context.Context, id string) (*schema.Story, error) {
	s, ok := m.stories.Load(id)
	if !ok {
		return nil, notFound("story", id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) CreateStory(_ context.Context, s *schema.Story) error {
	if !m.stories.StoreIfAbsent(s.ID, s.Clone()) {
		return exists("story", s.ID)
	}
	return nil
}

func (m *MemoryStore) UpdateStory(_ context.Context, s *schema.Story) error {
	if !m.stories.StoreIfPresent(s.ID, s.Clone()) {
		return notFound("story", s.ID)
	}
	return nil
}

func (m *MemoryStore) ListStories(context.Context) ([]*schema.Story, error) {
	out := make([]*schema.Story, 0, m.stories.Len())
	m.stories.Range(func(_ string, s *schema.Story) bool {
		out = append(out, s.Clone())
		return true
	})
	sortStories(out)
	return out, nil
}

func (m *MemoryStore) DeleteStory(_ context.Context, id string) error {
	if !m.stories.Delete(id) {
		return notFound("story", id)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
