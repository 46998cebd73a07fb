package schema

import (
	"slices"
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

type ExpansionProposal struct {
	ID                string         `json:"proposal_id,omitempty"`
	StoryID           string         `json:"story_id"`
	NewContent        string         `json:"new_content"`
	PageNumber        int            `json:"page_number"`
	ElementReferences []string       `json:"element_references"`
	UserContext       map[string]any `json:"user_context,omitempty"`
	Status            ProposalStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (p *ExpansionProposal) Validate() error {
	id, err := requireText("story_id", p.StoryID)
	if err != nil {
		return err
	}
	content, err := requireText("new_content", p.NewContent)
	if err != nil {
		return err
	}
	if p.PageNumber < 1 {
		return invalid("page_number", "must be >= 1")
	}
	if p.Status == "" {
		p.Status = ProposalPending
	}
	allowed := []ProposalStatus{ProposalPending, ProposalApproved, ProposalRejected}
	if !slices.Contains(allowed, p.Status) {
		return invalid("status", "must be one of %v", allowed)
	}
	if p.ElementReferences == nil {
		p.ElementReferences = []string{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.StoryID, p.NewContent = id, content
	return nil
}

type UserQuery struct {
	Message string         `json:"message"`
	StoryID string         `json:"story_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (q *UserQuery) Validate() error {
	msg, err := requireText("message", q.Message)
	if err != nil {
		return err
	}
	q.Message = msg
	q.StoryID = strings.TrimSpace(q.StoryID)
	return nil
}

type ChatResponse struct {
	Response       string   `json:"response"`
	IsPermissible  bool     `json:"is_permissible"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	UpdatedDataset bool     `json:"updated_dataset"`
}

func (r *ChatResponse) Validate() error {
	resp, err := requireText("response", r.Response)
	if err != nil {
		return err
	}
	r.Response = resp
	return nil
}

const (
	DefaultMaxResults = 10
	MaxSearchResults  = 100
)

type SearchQuery struct {
	Query      string         `json:"query"`
	StoryID    string         `json:"story_id,omitempty"`
	MaxResults int            `json:"max_results"`
	Filters    map[string]any `json:"filters,omitempty"`
}

// Validate trims the query and applies the default result count when the
// field was omitted (zero).
func (q *SearchQuery) Validate() error {
	query, err := requireText("query", q.Query)
	if err != nil {
		return err
	}
	q.Query = query
	q.StoryID = strings.TrimSpace(q.StoryID)
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults < 1 {
		return invalid("max_results", "must be >= 1")
	}
	if q.MaxResults > MaxSearchResults {
		return invalid("max_results", "must be <= %d", MaxSearchResults)
	}
	return nil
}

// APIResponse is the envelope used by the assistant endpoints.
type APIResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors"`
}

func OK(message string, data any) APIResponse {
	return APIResponse{Success: true, Message: message, Data: data, Errors: []string{}}
}
