// Package queue runs book ingestions in the background, one at a time, in
// the order they were accepted.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"storyweaver/pkg/ingest"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/utils"
)

const DefaultSize = 100

var (
	ErrFull    = errors.New("queue is full")
	ErrStopped = errors.New("queue is stopped")
)

// IngestFunc does the work for one book.
type IngestFunc func(ctx context.Context, b schema.Book) (ingest.Report, error)

type Item struct {
	Book   schema.Book
	Report chan ingest.Report
	Error  chan error
}

type Queue struct {
	ctx    context.Context
	ingest IngestFunc
	items  chan *Item
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	started bool
}

// New builds a queue holding at most size waiting books. ctx is passed to
// every ingestion.
func New(ctx context.Context, fn IngestFunc, size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{
		ctx:    ctx,
		ingest: fn,
		items:  make(chan *Item, size),
		done:   make(chan struct{}),
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	go q.processLoop()
}

// Add enqueues a book without blocking. Once the book is processed one of
// the returned channels receives the outcome and the other is closed.
func (q *Queue) Add(b schema.Book) (<-chan ingest.Report, <-chan error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, nil, ErrStopped
	}

	item := &Item{Book: b, Report: make(chan ingest.Report, 1), Error: make(chan error, 1)}
	select {
	case q.items <- item:
		return item.Report, item.Error, nil
	default:
		return nil, nil, ErrFull
	}
}

// Len reports how many books are waiting.
func (q *Queue) Len() int { return len(q.items) }

// Stop refuses new books and waits until the queued ones are processed or
// ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.items)
	}
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		log.Warn("ingestion queue stopped with work pending", "pending", q.Len())
		return ctx.Err()
	}
}

func (q *Queue) processLoop() {
	log.Info("ingestion queue started")
	defer close(q.done)
	for item := range q.items {
		q.processItem(item)
	}
	log.Info("ingestion queue stopped")
}

func (q *Queue) processItem(item *Item) {
	b := item.Book
	log.Info("processing ingestion", "story_id", b.StoryID, "title", utils.LimitStr(b.Title, 50), "pages", len(b.Pages))

	report, err := q.ingest(q.ctx, b)
	if err != nil {
		log.Error("ingestion failed", "story_id", b.StoryID, "error", err)
		item.Error <- err
		close(item.Report)
		return
	}

	item.Report <- report
	close(item.Error)
}
