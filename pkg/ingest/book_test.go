package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/pkg/schema"
)

func TestBook_DeclaredElementsAfterPages(t *testing.T) {
	ctx := context.Background()
	idx := &recordingIndexer{}
	in, st := newIngestor(idx)

	book := schema.Book{
		Title:    "Luna's Day",
		StoryID:  "luna",
		Pages:    lunaPages,
		Elements: []schema.StoryElement{species(t, "Luna", "cat"), species(t, "Luna", "dog")},
	}
	report, err := in.Book(ctx, book)
	require.NoError(t, err)

	assert.True(t, report.Created)
	assert.Len(t, report.Accepted, 4, "three extracted plus the cat")
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "dog", report.Rejected[0].Element.Attr(schema.AttrSpecies))
	assert.Equal(t, 5, report.Version)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, "book", idx.docs["luna"][0].Metadata["type"])

	ds, err := st.GetDataset(ctx, "luna")
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Version)
}

func TestBook_InvalidDeclaredElementTouchesNothing(t *testing.T) {
	ctx := context.Background()
	in, st := newIngestor(nil)

	bad := species(t, "Luna", "cat")
	bad.SourcePage = 0
	_, err := in.Book(ctx, schema.Book{Title: "Luna's Day", StoryID: "luna", Pages: lunaPages, Elements: []schema.StoryElement{bad}})
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source_page", ve.Field)

	list, err := st.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
