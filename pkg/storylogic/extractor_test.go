package storylogic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweaver/pkg/schema"
)

// tagged returns a recognizer that answers from a fixed text -> entities table.
func tagged(t *testing.T, table map[string][]schema.Entity) Recognizer {
	return RecognizerFunc(func(_ context.Context, text string) ([]schema.Entity, error) {
		ents, ok := table[text]
		if !ok {
			t.Fatalf("unexpected text %q", text)
		}
		return ents, nil
	})
}

func person(s string) schema.Entity { return schema.Entity{Text: s, Label: LabelPerson} }
func place(s string) schema.Entity  { return schema.Entity{Text: s, Label: LabelLocation} }

func TestExtract_DeduplicatesWithinCall(t *testing.T) {
	x := NewExtractor(tagged(t, map[string][]schema.Entity{
		"one":   {person("Luna")},
		"two":   {person("Luna"), person("LUNA")},
		"three": {person("luna")},
	}))

	elements, err := x.Extract(context.Background(), []schema.Page{
		{PageNumber: 1, Text: "one"},
		{PageNumber: 2, Text: "two"},
		{PageNumber: 3, Text: "three"},
	})
	require.NoError(t, err)
	require.Len(t, elements, 1)

	e := elements[0]
	assert.Equal(t, "char_luna", e.ID)
	assert.Equal(t, "Luna", e.Name)
	assert.Equal(t, 1, e.SourcePage)
	assert.Equal(t, 1, e.Attr(schema.AttrFirstAppearance))
	assert.Equal(t, "Character appearing on page 1", e.Description)
	assert.Empty(t, e.Relationships)
	assert.Equal(t, 1.0, e.Confidence)
}

func TestExtract_FirstOccurrenceWinsAcrossPages(t *testing.T) {
	x := NewExtractor(tagged(t, map[string][]schema.Entity{
		"a": {place("Garden")},
		"b": {person("Max"), place("Garden")},
	}))

	elements, err := x.Extract(context.Background(), []schema.Page{
		{PageNumber: 4, Text: "a"},
		{PageNumber: 7, Text: "b"},
	})
	require.NoError(t, err)
	require.Len(t, elements, 2)

	assert.Equal(t, "loc_garden", elements[0].ID)
	assert.Equal(t, 4, elements[0].SourcePage)
	assert.Equal(t, "Location mentioned on page 4", elements[0].Description)
	assert.Empty(t, elements[0].Attributes)

	assert.Equal(t, "char_max", elements[1].ID)
	assert.Equal(t, 7, elements[1].SourcePage)
}

func TestExtract_CharactersBeforeLocationsWithinPage(t *testing.T) {
	x := NewExtractor(tagged(t, map[string][]schema.Entity{
		"p": {place("Paris"), person("Max"), {Text: "Eiffel Tower", Label: LabelFacility}, {Text: "France", Label: LabelGPE}},
	}))

	elements, err := x.Extract(context.Background(), []schema.Page{{PageNumber: 1, Text: "p"}})
	require.NoError(t, err)

	var ids []string
	for _, e := range elements {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"char_max", "loc_paris", "loc_eiffel_tower", "loc_france"}, ids)
}

func TestExtract_NormalizesIdentifierKeepsSurfaceName(t *testing.T) {
	x := NewExtractor(tagged(t, map[string][]schema.Entity{
		"p": {person("Little Seed"), person("Mr. Fox"), {Text: "Tuesday", Label: LabelDate}},
	}))

	elements, err := x.Extract(context.Background(), []schema.Page{{PageNumber: 2, Text: "p"}})
	require.NoError(t, err)
	require.Len(t, elements, 2)

	assert.Equal(t, "char_little_seed", elements[0].ID)
	assert.Equal(t, "Little Seed", elements[0].Name)
	assert.Equal(t, "char_mr._fox", elements[1].ID)
	assert.Equal(t, "Mr. Fox", elements[1].Name)
}

func TestExtract_EmptyInput(t *testing.T) {
	calls := 0
	x := NewExtractor(RecognizerFunc(func(context.Context, string) ([]schema.Entity, error) {
		calls++
		return nil, nil
	}))

	elements, err := x.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, elements)

	elements, err = x.Extract(context.Background(), []schema.Page{{PageNumber: 1, Text: "   "}})
	require.NoError(t, err)
	assert.Empty(t, elements)
	assert.Zero(t, calls, "blank pages must not reach the recognizer")
}

func TestExtract_RejectsBadPageNumber(t *testing.T) {
	x := NewExtractor(NewHeuristicRecognizer())

	_, err := x.Extract(context.Background(), []schema.Page{{PageNumber: 0, Text: "Luna"}})
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "page_number", ve.Field)
}

func TestExtract_RecognizerFailureIsFatal(t *testing.T) {
	boom := errors.New("model missing")
	calls := 0
	x := NewExtractor(RecognizerFunc(func(context.Context, string) ([]schema.Entity, error) {
		calls++
		return nil, errors.Join(ErrRecognizerUnavailable, boom)
	}))

	elements, err := x.Extract(context.Background(), []schema.Page{
		{PageNumber: 3, Text: "Luna"},
		{PageNumber: 4, Text: "Max"},
	})
	require.Error(t, err)
	assert.Nil(t, elements)
	assert.ErrorIs(t, err, ErrRecognizerUnavailable)

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, 3, xe.Page)
	assert.Equal(t, 1, calls, "no retry and no further pages")
}

func TestExtract_LunaMaxGarden(t *testing.T) {
	x := NewExtractor(NewHeuristicRecognizer())

	elements, err := x.Extract(context.Background(), []schema.Page{
		{PageNumber: 1, Text: "Luna walked into the Garden."},
		{PageNumber: 2, Text: "Luna and Max played in the Garden."},
	})
	require.NoError(t, err)

	got := make(map[string]schema.StoryElement)
	for _, e := range elements {
		got[e.ID] = e
	}
	require.Len(t, got, 3)
	require.Len(t, elements, 3)

	luna, garden, max := got["char_luna"], got["loc_garden"], got["char_max"]
	assert.Equal(t, schema.ElementCharacter, luna.Type)
	assert.Equal(t, 1, luna.SourcePage)
	assert.Equal(t, 1, luna.Attr(schema.AttrFirstAppearance))

	assert.Equal(t, schema.ElementLocation, garden.Type)
	assert.Equal(t, "Garden", garden.Name)
	assert.Equal(t, 1, garden.SourcePage)

	assert.Equal(t, schema.ElementCharacter, max.Type)
	assert.Equal(t, 2, max.SourcePage)
	assert.Equal(t, 2, max.Attr(schema.AttrFirstAppearance))
}
