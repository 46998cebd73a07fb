// Package chat produces the bot's reply to a message posted on a story. It
// is keyword driven; questions that need retrieval go through package rag.
package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/utils"
)

const (
	previewRunes = 200
	// nameSimilarity is how close a word must be to an element name to count
	// as a mention despite a typo.
	nameSimilarity = 0.75
)

const helpText = `I can help you with this story in several ways:
• Ask questions about the plot or characters
• Suggest story expansions or new elements
• Discuss story themes and ideas
• Help maintain story consistency

What would you like to do?`

// fallbacks are used when no keyword matched. %[1]s is the story title.
var fallbacks = [...]string{
	"Let's explore '%[1]s' together! We could look at the characters, the setting, or imagine what happens next. What interests you?",
	"There's so much to discover in '%[1]s'. Would you like to discuss the themes, characters, or plot development?",
	"I'd love to help you dive deeper into '%[1]s'. What part of the story captures your imagination the most?",
	"Every story has many layers. In '%[1]s', we could explore character motivations, setting details, or future possibilities. What shall we focus on?",
	"Stories are like journeys. In '%[1]s', where would you like our journey to take us next - character development, plot twists, or world-building?",
}

// Responder picks replies. The random source only decides among fallbacks.
type Responder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewResponder(src rand.Source) *Responder {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Responder{rng: rand.New(src)}
}

// Respond answers message in the context of a story and its elements. Rules
// are tried in order and the first match wins.
func (r *Responder) Respond(story *schema.Story, elements []schema.StoryElement, message string) string {
	m := newMessage(message)
	title := story.Title

	switch {
	case m.has("hi", "hello", "hey", "greetings"):
		return fmt.Sprintf("Hello! I'm here to help you explore '%s'. What would you like to know about this story?", title)

	case m.has("what", "tell me", "about", "summary"):
		return fmt.Sprintf("'%s' is about: %s Would you like me to elaborate on any part of the story?", title, utils.LimitStr(story.Content, previewRunes))

	case m.has("character", "characters", "who"):
		names := namesOf(elements, schema.ElementCharacter)
		if len(names) == 0 {
			return "This story doesn't have any defined characters yet. Would you like to add some?"
		}
		return fmt.Sprintf("The main characters in this story are: %s. Which character would you like to know more about?", strings.Join(names, ", "))

	case m.has("where", "location", "locations", "place", "places"):
		names := namesOf(elements, schema.ElementLocation)
		if len(names) == 0 {
			return "The story's setting isn't fully described yet. Where would you like the story to take place?"
		}
		return fmt.Sprintf("The story takes place in: %s. Would you like to explore any of these locations?", strings.Join(names, ", "))
	}

	if e, ok := m.mentions(elements); ok {
		desc := strings.TrimSpace(e.Description)
		if desc == "" {
			desc = "There isn't much written about it yet."
		}
		return fmt.Sprintf("%s: %s What would you like to know about %s?", e.Name, desc, e.Name)
	}

	switch {
	case m.has("expand", "continue", "what happens next", "add"):
		return fmt.Sprintf("That's a great idea! To expand '%s', you could add new characters, events, or explore what happens next. What specific expansion would you like to propose?", title)

	case m.has("help", "how", "can i"):
		return helpText

	case m.has("seed", "little seed"):
		return "The Little Seed is the main character of our story! It's a small seed with big dreams, waiting to grow into something wonderful. What would you like to know about the seed's journey?"

	case m.has("garden"):
		return "The garden is where our story takes place! It's a beautiful setting full of life and possibilities. Would you like to explore what happens in the garden?"

	case m.has("grow", "growth"):
		return "Growth is a central theme in this story! The little seed's journey represents patience, hope, and transformation. What aspect of growth interests you most?"

	case m.has("interesting", "cool", "nice", "good"):
		return "I'm glad you find it interesting! There's so much more to explore in this story. What would you like to discover next?"

	case m.has("yes", "yeah", "sure", "ok"):
		return "Great! Let's continue exploring. What aspect of the story would you like to focus on - the characters, the setting, or perhaps what happens next?"
	}

	r.mu.Lock()
	i := r.rng.IntN(len(fallbacks))
	r.mu.Unlock()
	return fmt.Sprintf(fallbacks[i], title)
}

type message struct {
	words  []string
	set    map[string]bool
	padded string
}

func newMessage(s string) message {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return message{words: words, set: set, padded: " " + strings.Join(words, " ") + " "}
}

// has matches whole words, or whole word sequences for multi-word keys.
func (m message) has(keys ...string) bool {
	for _, k := range keys {
		if strings.Contains(k, " ") {
			if strings.Contains(m.padded, " "+k+" ") {
				return true
			}
			continue
		}
		if m.set[k] {
			return true
		}
	}
	return false
}

// mentions finds the first element whose name appears in the message,
// tolerating small typos in single-word names.
func (m message) mentions(elements []schema.StoryElement) (schema.StoryElement, bool) {
	for _, e := range elements {
		name := newMessage(e.Name)
		if len(name.words) == 0 {
			continue
		}
		if m.has(strings.Join(name.words, " ")) {
			return e, true
		}
		if len(name.words) == 1 && len(name.words[0]) > 3 {
			for _, w := range m.words {
				if utils.Similarity(w, name.words[0]) >= nameSimilarity {
					return e, true
				}
			}
		}
	}
	return schema.StoryElement{}, false
}

func namesOf(elements []schema.StoryElement, t schema.ElementType) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range elements {
		if e.Type != t || seen[strings.ToLower(e.Name)] {
			continue
		}
		seen[strings.ToLower(e.Name)] = true
		out = append(out, e.Name)
	}
	return out
}
