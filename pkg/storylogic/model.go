package storylogic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"

	"storyweaver/pkg/inference"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/utils"
)

const maxRecognizeRunes = 8192 * 4

const entityPrompt = `You are a named-entity recognition system for children's picture books.
Return every named entity in the text as JSON: {"entities":[{"text":"...","label":"..."}]}.

Labels:
- PERSON: named characters, including animals, toys and personified things with a name.
- GPE: countries, cities, kingdoms.
- LOC: natural or fictional places (forests, rivers, "the Garden").
- FAC: buildings and structures.
- DATE / TIME: dates and times of day.

Rules:
- Copy the entity text exactly as written, without leading articles.
- List entities in order of appearance; repeat an entity each time it appears.
- Do not include pronouns.
- Output only the JSON object.`

// ModelRecognizer asks a language model to tag entities using a structured
// output schema.
type ModelRecognizer struct {
	Inferencer inference.Inferencer
}

func NewModelRecognizer(inf inference.Inferencer) *ModelRecognizer {
	return &ModelRecognizer{Inferencer: inf}
}

func (m *ModelRecognizer) Recognize(ctx context.Context, text string) ([]schema.Entity, error) {
	if m == nil || m.Inferencer == nil {
		return nil, fmt.Errorf("%w: no language model configured", ErrRecognizerUnavailable)
	}

	var out []schema.Entity
	for i, chunk := range utils.ChunkText(text, maxRecognizeRunes) {
		params := &openai.ChatCompletionNewParams{
			ResponseFormat:      schema.EntitiesResponseFormat(),
			Temperature:         openai.Float(0),
			MaxCompletionTokens: openai.Int(4096),
		}
		reply, err := m.Inferencer.Infer(ctx, params, entityPrompt, chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecognizerUnavailable, err)
		}

		obj, ok := utils.JSONObject(reply)
		if !ok {
			log.Debug("raw recognizer output", "output", reply)
			return nil, fmt.Errorf("recognize chunk %d: no JSON object in model output", i+1)
		}
		var parsed schema.EntityList
		if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
			log.Debug("raw recognizer output", "output", reply)
			return nil, fmt.Errorf("recognize chunk %d: %w", i+1, err)
		}
		for _, e := range parsed.Entities {
			e.Text = strings.TrimSpace(e.Text)
			e.Label = strings.ToUpper(strings.TrimSpace(e.Label))
			if e.Text != "" {
				out = append(out, e)
			}
		}
	}

	return out, nil
}
