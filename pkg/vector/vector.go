// Package vector is an in-process, per-story passage index used for
// retrieval. Each story has its own collection; documents are embedded once
// on Add and ranked by cosine distance on Query.
package vector

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
	"github.com/segmentio/ksuid"

	"storyweaver/pkg/flight"
	"storyweaver/pkg/inference"
)

const DefaultK = 5

type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

type Match struct {
	Document
	StoryID  string  `json:"story_id"`
	Distance float64 `json:"distance"`
}

type QueryResult struct {
	Query            string  `json:"query"`
	StoryID          string  `json:"story_id,omitempty"`
	Results          []Match `json:"results"`
	TotalCollections int     `json:"total_collections,omitempty"`
}

type Info struct {
	StoryID       string         `json:"story_id"`
	DocumentCount int            `json:"document_count"`
	Metadata      map[string]any `json:"metadata"`
}

type entry struct {
	doc Document
	vec []float64
}

type collection struct {
	created time.Time
	entries []entry
}

type Index struct {
	embedder inference.Embedder

	mu          sync.RWMutex
	collections map[string]*collection

	// queries coalesces embedding calls for repeated query text
	queries *flight.Cache[string, []float64]
	// results holds recent Query answers; any Add or Delete flushes it
	results *gocache.Cache
}

// New builds an index over embedder. ttl bounds how long query embeddings
// and results are cached; zero disables result caching.
func New(embedder inference.Embedder, ttl time.Duration) *Index {
	idx := &Index{
		embedder:    embedder,
		collections: make(map[string]*collection),
	}
	idx.queries = flight.NewCache(func(ctx context.Context, text string) ([]float64, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
		}
		return vecs[0], nil
	})
	idx.queries.Expiry(cmp.Or(ttl, time.Minute))
	if ttl > 0 {
		idx.results = gocache.New(ttl, 2*ttl)
	}
	return idx
}

func (x *Index) collection(storyID string) *collection {
	c, ok := x.collections[storyID]
	if !ok {
		c = &collection{created: time.Now().UTC()}
		x.collections[storyID] = c
	}
	return c
}

func (x *Index) flush() {
	if x.results != nil {
		x.results.Flush()
	}
}

// Add embeds and stores documents in the story's collection. Documents
// without an id get a ksuid; metadata is stamped with text, story_id and
// created_at.
func (x *Index) Add(ctx context.Context, storyID string, docs []Document) error {
	if len(docs) == 0 {
		log.Warn("no documents to add", "story_id", storyID)
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents for %q: %w", storyID, err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	entries := make([]entry, len(docs))
	for i, d := range docs {
		meta := maps.Clone(d.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["text"] = d.Text
		meta["story_id"] = storyID
		meta["created_at"] = now
		entries[i] = entry{
			doc: Document{ID: cmp.Or(d.ID, ksuid.New().String()), Text: d.Text, Metadata: meta},
			vec: vecs[i],
		}
	}

	x.mu.Lock()
	c := x.collection(storyID)
	c.entries = append(c.entries, entries...)
	x.mu.Unlock()
	x.flush()

	log.Info("added documents", "story_id", storyID, "count", len(docs))
	return nil
}

// Query returns the k passages closest to query within one story. A story
// that has never been indexed gets an empty collection and no results.
func (x *Index) Query(ctx context.Context, storyID, query string, k int) (QueryResult, error) {
	if k <= 0 {
		k = DefaultK
	}
	key := fmt.Sprintf("%s\x00%d\x00%s", storyID, k, query)
	if x.results != nil {
		if v, ok := x.results.Get(key); ok {
			return v.(QueryResult), nil
		}
	}

	qv, err := x.queries.Get(ctx, query)
	if err != nil {
		return QueryResult{}, fmt.Errorf("embed query: %w", err)
	}

	x.mu.Lock()
	entries := x.collection(storyID).entries
	x.mu.Unlock()

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, Match{Document: e.doc, StoryID: storyID, Distance: cosineDistance(qv, e.vec)})
	}
	slices.SortStableFunc(matches, func(a, b Match) int { return cmp.Compare(a.Distance, b.Distance) })
	if len(matches) > k {
		matches = matches[:k]
	}

	res := QueryResult{Query: query, StoryID: storyID, Results: matches}
	if x.results != nil {
		x.results.SetDefault(key, res)
	}
	log.Debug("vector query", "story_id", storyID, "results", len(matches))
	return res, nil
}

// SearchAll queries every collection for n results each, merges them by
// distance and keeps the best n. Collections that fail are skipped.
func (x *Index) SearchAll(ctx context.Context, query string, n int) (QueryResult, error) {
	if n <= 0 {
		n = DefaultK
	}
	ids := x.storyIDs()

	var all []Match
	for _, id := range ids {
		res, err := x.Query(ctx, id, query, n)
		if err != nil {
			log.Warn("search failed for collection", "story_id", id, "error", err)
			continue
		}
		all = append(all, res.Results...)
	}
	slices.SortStableFunc(all, func(a, b Match) int { return cmp.Compare(a.Distance, b.Distance) })
	if len(all) > n {
		all = all[:n]
	}
	if all == nil {
		all = []Match{}
	}
	return QueryResult{Query: query, Results: all, TotalCollections: len(ids)}, nil
}

// Documents returns every document stored for a story in insertion order.
func (x *Index) Documents(storyID string) []Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[storyID]
	if !ok {
		return []Document{}
	}
	out := make([]Document, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.doc
		out[i].Metadata = maps.Clone(e.doc.Metadata)
	}
	return out
}

func (x *Index) Info(storyID string) Info {
	x.mu.RLock()
	defer x.mu.RUnlock()
	info := Info{StoryID: storyID, Metadata: map[string]any{}}
	if c, ok := x.collections[storyID]; ok {
		info.DocumentCount = len(c.entries)
		info.Metadata["created_at"] = c.created.Format(time.RFC3339)
	}
	return info
}

// List describes every collection, ordered by story id.
func (x *Index) List() []Info {
	out := make([]Info, 0)
	for _, id := range x.storyIDs() {
		out = append(out, x.Info(id))
	}
	return out
}

// Delete drops a story's collection and reports whether it existed.
func (x *Index) Delete(storyID string) bool {
	x.mu.Lock()
	_, ok := x.collections[storyID]
	delete(x.collections, storyID)
	x.mu.Unlock()
	if ok {
		x.flush()
		log.Info("deleted collection", "story_id", storyID)
	}
	return ok
}

func (x *Index) storyIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Sorted(maps.Keys(x.collections))
}

func cosineDistance(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
