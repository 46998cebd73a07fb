package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type Page struct {
	PageNumber int      `json:"page_number"`
	Text       string   `json:"text"`
	Elements   []string `json:"elements,omitempty"`
}

// Validate checks an ingested page: the number must be positive and the text
// non-empty after trimming.
func (p *Page) Validate() error {
	if p.PageNumber < 1 {
		return invalid("page_number", "must be >= 1")
	}
	text, err := requireText("text", p.Text)
	if err != nil {
		return err
	}
	p.Text = text
	return nil
}

type Book struct {
	Title     string         `json:"title"`
	StoryID   string         `json:"story_id,omitempty"`
	Author    string         `json:"author,omitempty"`
	Pages     []Page         `json:"pages"`
	Elements  []StoryElement `json:"elements,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// StoryIDFromTitle is the identifier a book gets when none is supplied.
func StoryIDFromTitle(title string) string {
	r := strings.NewReplacer(" ", "_", "-", "_")
	return r.Replace(strings.ToLower(strings.TrimSpace(title)))
}

func (b *Book) Validate() error {
	title, err := requireText("title", b.Title)
	if err != nil {
		return err
	}
	b.Title = title
	if len(b.Pages) == 0 {
		return invalid("pages", "book must have at least one page")
	}
	for i := range b.Pages {
		if err := b.Pages[i].Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return invalid(fmt.Sprintf("pages[%d].%s", i, ve.Field), "%s", ve.Message)
			}
			return err
		}
	}
	b.StoryID = strings.TrimSpace(b.StoryID)
	if b.StoryID == "" {
		b.StoryID = StoryIDFromTitle(b.Title)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

type rawBook struct {
	Title    string            `json:"title"`
	StoryID  string            `json:"story_id"`
	Author   string            `json:"author"`
	Pages    []json.RawMessage `json:"pages"`
	Elements []StoryElement    `json:"elements"`
}

// DecodeBook reads and validates a book document. Page entries that are not
// JSON objects are rejected rather than skipped.
func DecodeBook(r io.Reader) (Book, error) {
	var raw rawBook
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Book{}, fmt.Errorf("decode book: %w", err)
	}

	b := Book{
		Title:    raw.Title,
		StoryID:  raw.StoryID,
		Author:   strings.TrimSpace(raw.Author),
		Elements: raw.Elements,
		Pages:    make([]Page, 0, len(raw.Pages)),
	}
	for i, msg := range raw.Pages {
		msg = bytes.TrimSpace(msg)
		if len(msg) == 0 || msg[0] != '{' {
			return Book{}, invalid(fmt.Sprintf("pages[%d]", i), "must be an object")
		}
		var p Page
		if err := json.Unmarshal(msg, &p); err != nil {
			return Book{}, invalid(fmt.Sprintf("pages[%d]", i), "%v", err)
		}
		b.Pages = append(b.Pages, p)
	}

	if err := b.Validate(); err != nil {
		return Book{}, err
	}
	return b, nil
}
