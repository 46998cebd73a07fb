package schema

import (
	"slices"
	"time"

	"github.com/segmentio/ksuid"
)

const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
)

type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	StoryID   string    `json:"story_id"`
}

func NewMessage(storyID, sender, content string) Message {
	return Message{
		ID:        ksuid.New().String(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		StoryID:   storyID,
	}
}

// Story is the conversational record of a book: its preview text and chat
// history. The story's elements live in its StoryLogicDataset.
type Story struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// NewStory creates a story; an empty id gets a fresh ksuid.
func NewStory(id, title, content string) (*Story, error) {
	if id == "" {
		id = ksuid.New().String()
	}
	t, err := requireText("title", title)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Story{
		ID:        id,
		Title:     t,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}, nil
}

func (s *Story) Append(m Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now().UTC()
}

func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = slices.Clone(s.Messages)
	return &c
}

type StoryCreate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type MessageCreate struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

func (m *MessageCreate) Validate() error {
	content, err := requireText("content", m.Content)
	if err != nil {
		return err
	}
	m.Content = content
	switch m.Sender {
	case "":
		m.Sender = SenderUser
	case SenderUser, SenderBot, SenderSystem:
	default:
		return invalid("sender", "must be one of user, bot, system")
	}
	return nil
}

// ElementCreate is a user-proposed element for a story.
type ElementCreate struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	SourcePage  int            `json:"source_page,omitempty"`
}

// Element converts the request into a validated StoryElement. The source page
// defaults to 1.
func (c ElementCreate) Element() (StoryElement, error) {
	t, err := ParseElementType(c.Type)
	if err != nil {
		return StoryElement{}, err
	}
	name, err := requireText("name", c.Name)
	if err != nil {
		return StoryElement{}, err
	}
	page := c.SourcePage
	if page == 0 {
		page = 1
	}
	e, err := NewStoryElement(ElementID(t, name), t, name, c.Description, page)
	if err != nil {
		return StoryElement{}, err
	}
	for k, v := range c.Attributes {
		e.Attributes[k] = v
	}
	return e, nil
}
