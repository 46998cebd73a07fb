package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/utils"
)

type snapshot struct {
	Datasets map[string]*schema.StoryLogicDataset `json:"datasets"`
	Stories  map[string]*schema.Story             `json:"stories"`
}

// FileStore is a MemoryStore that rewrites a JSON snapshot after every
// mutation and reloads it on open.
type FileStore struct {
	*MemoryStore
	path string
	mu   sync.Mutex
}

func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	if !utils.Exists(path) {
		return fs, nil
	}

	snap, err := utils.Load[snapshot](path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for id, ds := range snap.Datasets {
		if ds == nil {
			continue
		}
		if err := ds.Validate(); err != nil {
			log.Warn("skipping invalid dataset in snapshot", "story_id", id, "error", err)
			continue
		}
		fs.datasets.Store(ds.StoryID, ds)
	}
	for id, s := range snap.Stories {
		if s != nil {
			fs.stories.Store(id, s)
		}
	}
	log.Info("loaded store snapshot", "path", path, "datasets", fs.datasets.Len(), "stories", fs.stories.Len())
	return fs, nil
}

func (f *FileStore) save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := snapshot{Datasets: make(datasetMap), Stories: make(storyMap)}
	f.datasets.Range(func(k string, v *schema.StoryLogicDataset) bool {
		snap.Datasets[k] = v
		return true
	})
	f.stories.Range(func(k string, v *schema.Story) bool {
		snap.Stories[k] = v
		return true
	})
	if err := utils.Save(f.path, snap); err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) CreateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error {
	if err := f.MemoryStore.CreateDataset(ctx, ds); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) UpdateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error {
	if err := f.MemoryStore.UpdateDataset(ctx, ds); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) DeleteDataset(ctx context.Context, storyID string) error {
	if err := f.MemoryStore.DeleteDataset(ctx, storyID); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) CreateStory(ctx context.Context, s *schema.Story) error {
	if err := f.MemoryStore.CreateStory(ctx, s); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) UpdateStory(ctx context.Context, s *schema.Story) error {
	if err := f.MemoryStore.UpdateStory(ctx, s); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) DeleteStory(ctx context.Context, id string) error {
	if err := f.MemoryStore.DeleteStory(ctx, id); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) Close() error { return f.save() }
