// Package rag answers questions about a story and judges proposed expansions
// using retrieved passages, the rendered story logic and a language model.
package rag

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/segmentio/ksuid"

	"storyweaver/pkg/inference"
	"storyweaver/pkg/ingest"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/utils"
	"storyweaver/pkg/vector"
)

const (
	NoContext       = "No relevant context found."
	StoryNotFound   = "Story not found in dataset."
	questionK       = vector.DefaultK
	validationK     = 3
	defaultBudget   = 3000
	maxAnswerTokens = 256
)

var DefaultSuggestions = []string{"Consider character consistency", "Check timeline alignment"}

type Retriever interface {
	Query(ctx context.Context, storyID, query string, k int) (vector.QueryResult, error)
}

// Chatbot wires retrieval, story logic and generation together. Inferencer
// may be nil: questions are then answered from the best passage and
// proposals are judged by the consistency check alone.
type Chatbot struct {
	Inferencer inference.Inferencer
	Retriever  Retriever
	Datasets   store.DatasetStore
	Extractor  *storylogic.Extractor
	// Ingestor, when set, applies approved expansions to the story.
	Ingestor *ingest.Ingestor

	// CountTokens measures prompt size; defaults to utils.NumTokens.
	CountTokens func(string) int
	// ContextTokens caps the retrieved context placed in a prompt.
	ContextTokens int
}

// Decision is the outcome of ProposeExpansion.
type Decision struct {
	schema.ChatResponse
	Proposal    schema.ExpansionProposal `json:"proposal"`
	Consistency storylogic.Result        `json:"consistency"`
	Report      *ingest.Report           `json:"report,omitempty"`
}

// QueryStory answers a question about one story. Answers are always marked
// permissible.
func (b *Chatbot) QueryStory(ctx context.Context, storyID, question string) (schema.ChatResponse, error) {
	passages := b.retrieve(ctx, storyID, question, questionK)
	logic, err := b.logic(ctx, storyID)
	if err != nil {
		return schema.ChatResponse{}, err
	}

	if b.Inferencer == nil {
		answer := "I couldn't find anything about that in the story yet."
		if len(passages) > 0 {
			answer = "Here is what the story says: " + passages[0]
		}
		return schema.ChatResponse{Response: answer, IsPermissible: true, Reasoning: "Retrieved passage"}, nil
	}

	user := fmt.Sprintf(questionTemplate, b.contextFor(passages, questionPrompt+logic+question), logic, question)
	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(maxAnswerTokens),
		Temperature:         openai.Float(0.7),
	}
	out, err := b.Inferencer.Infer(ctx, params, questionPrompt, user)
	if err != nil {
		return schema.ChatResponse{}, fmt.Errorf("answer question: %w", err)
	}
	resp := schema.ChatResponse{Response: stripThink(out), IsPermissible: true, Reasoning: "Standard query response"}
	if err := resp.Validate(); err != nil {
		return schema.ChatResponse{}, errors.New("answer question: empty model output")
	}
	return resp, nil
}

// ProposeExpansion decides whether new content may be added to a story.
// Extracted elements that contradict the dataset reject the proposal before
// the model is asked. Approved proposals are applied through the Ingestor.
func (b *Chatbot) ProposeExpansion(ctx context.Context, p schema.ExpansionProposal) (Decision, error) {
	if p.PageNumber == 0 {
		p.PageNumber = 1
	}
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	if p.ID == "" {
		p.ID = ksuid.New().String()
	}

	ds, err := b.Datasets.GetDataset(ctx, p.StoryID)
	if errors.Is(err, store.ErrNotFound) {
		p.Status = schema.ProposalRejected
		return Decision{
			ChatResponse: schema.ChatResponse{Response: StoryNotFound, IsPermissible: false, Reasoning: "Story ID does not exist"},
			Proposal:     p,
			Consistency:  storylogic.Result{Consistent: true, Contradictions: []string{}, Suggestions: []string{}},
		}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Proposal: p, Consistency: b.checkLocally(ctx, p, ds)}
	switch {
	case !d.Consistency.Consistent:
		d.IsPermissible = false
		d.Reasoning = strings.Join(d.Consistency.Contradictions, "; ")
	case b.Inferencer == nil:
		d.IsPermissible = true
		d.Reasoning = "No contradictions with the established story logic."
	default:
		passages := b.retrieve(ctx, p.StoryID, p.NewContent, validationK)
		logic := storylogic.Render(ds)
		user := fmt.Sprintf(validationTemplate, p.NewContent, logic, b.contextFor(passages, validationPrompt+logic+p.NewContent))
		params := &openai.ChatCompletionNewParams{
			ResponseFormat: schema.VerdictResponseFormat(),
			Temperature:    openai.Float(0.2),
		}
		out, err := b.Inferencer.Infer(ctx, params, validationPrompt, user)
		if err != nil {
			return Decision{}, fmt.Errorf("validate proposal: %w", err)
		}
		v := parseVerdict(out)
		d.IsPermissible, d.Reasoning, d.Suggestions = v.IsPermissible, v.Reasoning, v.Suggestions
	}

	if len(d.Suggestions) == 0 {
		d.Suggestions = append([]string(nil), DefaultSuggestions...)
	}
	if d.IsPermissible {
		d.Response = "Your expansion proposal has been approved."
		d.Proposal.Status = schema.ProposalApproved
	} else {
		d.Response = "Your expansion proposal has been rejected."
		d.Proposal.Status = schema.ProposalRejected
	}

	if d.IsPermissible && b.Ingestor != nil {
		report, err := b.Ingestor.Update(ctx, ingest.Content{
			StoryID: p.StoryID,
			Title:   ds.Title,
			Pages:   []schema.Page{{PageNumber: p.PageNumber, Text: p.NewContent}},
			Kind:    ingest.KindExpansion,
		})
		if err != nil {
			return d, fmt.Errorf("apply expansion: %w", err)
		}
		d.Report = &report
		d.UpdatedDataset = len(report.Accepted) > 0
	}

	log.Info("expansion judged", "story_id", p.StoryID, "proposal_id", p.ID, "permissible", d.IsPermissible)
	return d, nil
}

// checkLocally extracts elements from the proposal and checks each against
// the dataset. A recognizer failure skips the check.
func (b *Chatbot) checkLocally(ctx context.Context, p schema.ExpansionProposal, ds *schema.StoryLogicDataset) storylogic.Result {
	res := storylogic.Result{Consistent: true, Contradictions: []string{}, Suggestions: []string{}}
	if b.Extractor == nil {
		return res
	}
	elements, err := b.Extractor.Extract(ctx, []schema.Page{{PageNumber: p.PageNumber, Text: p.NewContent}})
	if err != nil {
		log.Warn("skipping local consistency check", "story_id", p.StoryID, "error", err)
		return res
	}
	for _, e := range elements {
		r := storylogic.CheckConsistency(e, ds)
		res.Contradictions = append(res.Contradictions, r.Contradictions...)
		res.Suggestions = append(res.Suggestions, r.Suggestions...)
	}
	res.Consistent = len(res.Contradictions) == 0
	return res
}

func (b *Chatbot) retrieve(ctx context.Context, storyID, query string, k int) []string {
	if b.Retriever == nil {
		return nil
	}
	res, err := b.Retriever.Query(ctx, storyID, query, k)
	if err != nil {
		log.Warn("retrieval failed", "story_id", storyID, "error", err)
		return nil
	}
	out := make([]string, 0, len(res.Results))
	for _, m := range res.Results {
		out = append(out, m.Text)
	}
	return out
}

func (b *Chatbot) logic(ctx context.Context, storyID string) (string, error) {
	ds, err := b.Datasets.GetDataset(ctx, storyID)
	if errors.Is(err, store.ErrNotFound) {
		return storylogic.NoStoryLogic, nil
	}
	if err != nil {
		return "", err
	}
	return storylogic.Render(ds), nil
}

// contextFor joins passages in rank order, dropping the least relevant ones
// once the prompt would exceed the token budget.
func (b *Chatbot) contextFor(passages []string, rest string) string {
	count := b.CountTokens
	if count == nil {
		count = utils.NumTokens
	}
	budget := cmp.Or(b.ContextTokens, defaultBudget) - count(rest)

	var kept []string
	used := 0
	for _, p := range passages {
		n := count(p)
		if used+n > budget {
			log.Debug("context trimmed", "kept", len(kept), "dropped", len(passages)-len(kept))
			break
		}
		kept = append(kept, p)
		used += n
	}
	if len(kept) == 0 {
		return NoContext
	}
	return strings.Join(kept, "\n")
}

// parseVerdict reads the structured verdict. Output that is not valid JSON
// is approved when it mentions "true" or "permissible".
func parseVerdict(out string) schema.Verdict {
	if obj, ok := utils.JSONObject(out); ok {
		var v schema.Verdict
		if err := json.Unmarshal([]byte(obj), &v); err == nil {
			return v
		}
	}
	log.Debug("unstructured verdict", "output", out)
	text := stripThink(out)
	return schema.Verdict{
		IsPermissible: utils.StringContains(text, false, "true", "permissible"),
		Reasoning:     text,
	}
}

func stripThink(out string) string {
	if strings.Contains(out, "<think>") {
		if idx := strings.LastIndex(out, "</think>"); idx != -1 {
			out = out[idx+len("</think>"):]
		}
	}
	return strings.TrimSpace(out)
}
