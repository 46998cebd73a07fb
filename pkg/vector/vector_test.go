package vector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/pkg/inference"
)

type countingEmbedder struct {
	inner inference.Embedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, texts)
}

func pages(texts ...string) []Document {
	out := make([]Document, len(texts))
	for i, t := range texts {
		out[i] = Document{Text: t, Metadata: map[string]any{"page_number": i + 1}}
	}
	return out
}

func TestIndex_QueryRanksByDistance(t *testing.T) {
	ctx := context.Background()
	idx := New(inference.NewHashEmbedder(4096), time.Minute)

	require.NoError(t, idx.Add(ctx, "garden", pages(
		"Luna the cat walked into the garden",
		"The rocket flew to the moon",
		"Max planted a seed in the garden",
	)))

	res, err := idx.Query(ctx, "garden", "Luna the cat", 2)
	require.NoError(t, err)
	assert.Equal(t, "Luna the cat", res.Query)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "Luna the cat walked into the garden", res.Results[0].Text)
	assert.LessOrEqual(t, res.Results[0].Distance, res.Results[1].Distance)
	assert.Equal(t, "garden", res.Results[0].StoryID)

	meta := res.Results[0].Metadata
	assert.Equal(t, 1, meta["page_number"])
	assert.Equal(t, "garden", meta["story_id"])
	assert.Equal(t, "Luna the cat walked into the garden", meta["text"])
	assert.Contains(t, meta, "created_at")
	assert.NotEmpty(t, res.Results[0].ID)
}

func TestIndex_DefaultKAndUnknownStory(t *testing.T) {
	ctx := context.Background()
	idx := New(inference.NewHashEmbedder(64), 0)

	require.NoError(t, idx.Add(ctx, "many", pages("a", "b", "c", "d", "e", "f", "g")))
	res, err := idx.Query(ctx, "many", "a", 0)
	require.NoError(t, err)
	assert.Len(t, res.Results, DefaultK)

	res, err = idx.Query(ctx, "nobody", "a", 3)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, idx.Info("nobody").DocumentCount)
}

func TestIndex_CachesQueriesUntilAdd(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{inner: inference.NewHashEmbedder(64)}
	idx := New(emb, time.Minute)

	require.NoError(t, idx.Add(ctx, "s", pages("Luna sleeps")))
	base := emb.calls.Load()

	first, err := idx.Query(ctx, "s", "Luna", 5)
	require.NoError(t, err)
	second, err := idx.Query(ctx, "s", "Luna", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, base+1, emb.calls.Load(), "second query served from cache")

	require.NoError(t, idx.Add(ctx, "s", pages("Luna wakes")))
	third, err := idx.Query(ctx, "s", "Luna", 5)
	require.NoError(t, err)
	assert.Len(t, third.Results, 2, "add must invalidate cached results")
}

func TestIndex_EmbedFailure(t *testing.T) {
	boom := errors.New("quota")
	idx := New(&countingEmbedder{err: boom}, time.Minute)

	assert.ErrorIs(t, idx.Add(context.Background(), "s", pages("x")), boom)
	_, err := idx.Query(context.Background(), "s", "x", 1)
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, idx.Add(context.Background(), "s", nil))
}

func TestIndex_SearchAllMergesCollections(t *testing.T) {
	ctx := context.Background()
	idx := New(inference.NewHashEmbedder(4096), time.Minute)

	require.NoError(t, idx.Add(ctx, "b", pages("the dragon guards the castle", "bread and jam")))
	require.NoError(t, idx.Add(ctx, "a", pages("a dragon sleeps", "the sea is blue")))

	res, err := idx.SearchAll(ctx, "dragon", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCollections)
	require.Len(t, res.Results, 3)
	for i := 1; i < len(res.Results); i++ {
		assert.LessOrEqual(t, res.Results[i-1].Distance, res.Results[i].Distance)
	}

	stories := map[string]bool{}
	for _, m := range res.Results[:2] {
		stories[m.StoryID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, stories)
}

func TestIndex_ListDocumentsDelete(t *testing.T) {
	ctx := context.Background()
	idx := New(inference.NewHashEmbedder(32), time.Minute)

	require.NoError(t, idx.Add(ctx, "zeta", pages("one")))
	require.NoError(t, idx.Add(ctx, "alpha", []Document{{ID: "fixed", Text: "two"}, {Text: "three"}}))

	list := idx.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].StoryID)
	assert.Equal(t, 2, list[0].DocumentCount)
	assert.Equal(t, "zeta", list[1].StoryID)

	docs := idx.Documents("alpha")
	require.Len(t, docs, 2)
	assert.Equal(t, "fixed", docs[0].ID)
	docs[0].Metadata["text"] = "changed"
	assert.Equal(t, "two", idx.Documents("alpha")[0].Metadata["text"])

	assert.True(t, idx.Delete("alpha"))
	assert.False(t, idx.Delete("alpha"))
	assert.Empty(t, idx.Documents("alpha"))
	assert.Len(t, idx.List(), 1)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, cosineDistance([]float64{0, 0}, []float64{1, 0}))
}
