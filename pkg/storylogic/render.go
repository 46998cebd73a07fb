package storylogic

import (
	"fmt"
	"strings"

	"storyweaver/pkg/schema"
)

const NoStoryLogic = "No story logic available."

// Render formats a dataset as prompt context: the title, then one block per
// element type in order of first appearance ("CHARACTERS:", "LOCATIONS:"),
// one "- name: description" line per element, then the rules.
func Render(ds *schema.StoryLogicDataset) string {
	if ds == nil {
		return NoStoryLogic
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\n", ds.Title)

	var order []schema.ElementType
	groups := make(map[schema.ElementType][]schema.StoryElement)
	for _, e := range ds.Elements {
		if _, ok := groups[e.Type]; !ok {
			order = append(order, e.Type)
		}
		groups[e.Type] = append(groups[e.Type], e)
	}
	for _, t := range order {
		fmt.Fprintf(&b, "\n%sS:\n", strings.ToUpper(string(t)))
		for _, e := range groups[t] {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		}
	}

	if len(ds.Rules) > 0 {
		b.WriteString("\nRULES:\n")
		for _, r := range ds.Rules {
			var desc string
			if v, ok := r["description"]; ok && v != nil {
				desc = fmt.Sprint(v)
			}
			fmt.Fprintf(&b, "- %s\n", desc)
		}
	}

	return b.String()
}
