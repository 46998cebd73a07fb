package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/pkg/ingest"
	"storyweaver/pkg/schema"
)

func book(id string) schema.Book {
	return schema.Book{Title: id, StoryID: id, Pages: []schema.Page{{PageNumber: 1, Text: "Luna."}}}
}

func TestQueue_ProcessesInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	q := New(context.Background(), func(_ context.Context, b schema.Book) (ingest.Report, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, b.StoryID)
		return ingest.Report{StoryID: b.StoryID, Version: len(seen)}, nil
	}, 10)
	q.Start()

	var reports []<-chan ingest.Report
	for _, id := range []string{"a", "b", "c"} {
		r, _, err := q.Add(book(id))
		require.NoError(t, err)
		reports = append(reports, r)
	}
	for i, r := range reports {
		assert.Equal(t, i+1, (<-r).Version)
	}

	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	_, _, err := q.Add(book("d"))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueue_ReportsErrors(t *testing.T) {
	boom := errors.New("recognizer offline")
	q := New(context.Background(), func(context.Context, schema.Book) (ingest.Report, error) {
		return ingest.Report{}, boom
	}, 1)
	q.Start()

	reports, errs, err := q.Add(book("a"))
	require.NoError(t, err)
	assert.ErrorIs(t, <-errs, boom)
	_, ok := <-reports
	assert.False(t, ok)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_Full(t *testing.T) {
	release := make(chan struct{})
	q := New(context.Background(), func(context.Context, schema.Book) (ingest.Report, error) {
		<-release
		return ingest.Report{}, nil
	}, 1)

	// not started, so nothing drains the buffer
	_, _, err := q.Add(book("a"))
	require.NoError(t, err)
	_, _, err = q.Add(book("b"))
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 1, q.Len())

	q.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Stop(ctx), context.DeadlineExceeded, "the worker is still blocked")

	close(release)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_StopBeforeStart(t *testing.T) {
	q := New(context.Background(), nil, 0)
	assert.NoError(t, q.Stop(context.Background()))
	assert.NoError(t, q.Stop(context.Background()))
}
