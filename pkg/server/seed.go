package server

import (
	"context"
	"errors"
	"fmt"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
)

const SampleStoryID = "1"

// Seed installs "The Little Seed" with its two elements and a greeting, so a
// fresh server has something to talk about. An existing story is left alone.
func (s *Server) Seed(ctx context.Context) error {
	_, err := s.Stories.GetStory(ctx, SampleStoryID)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	st, err := schema.NewStory(SampleStoryID, "The Little Seed", "Once upon a time, there was a little seed...")
	if err != nil {
		return err
	}
	st.Append(schema.NewMessage(st.ID, schema.SenderBot, "Hello! I'm here to help you explore and expand this story."))
	if err := s.Stories.CreateStory(ctx, st); err != nil {
		return fmt.Errorf("seed story: %w", err)
	}

	elements := []schema.ElementCreate{
		{Name: "The Little Seed", Type: string(schema.ElementCharacter), Description: "The main character of the story, a small seed with big dreams."},
		{Name: "Garden", Type: string(schema.ElementLocation), Description: "A beautiful garden where the story takes place."},
	}
	for _, ec := range elements {
		e, err := ec.Element()
		if err != nil {
			return err
		}
		if _, err := s.Ingestor.Propose(ctx, st.ID, st.Title, e); err != nil {
			return fmt.Errorf("seed element %s: %w", e.ID, err)
		}
	}
	return nil
}
