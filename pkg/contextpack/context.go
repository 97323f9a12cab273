package contextpack

import (
	"fmt"
	"strings"

	"github.com/jyntrix/memctx-go/pkg/ranking"
)

// Section is one category bucket of the assembled context.
type Section struct {
	// Memories are the included memories in ranked order.
	Memories []ranking.RankedMemory `json:"memories"`
	// Tokens is the section's total token cost.
	Tokens int `json:"tokens"`
	// Truncated reports whether at least one candidate was excluded
	// because it would have overflowed the section's budget.
	Truncated bool `json:"truncated"`
}

// HistorySection holds the trailing conversation turns that fit the
// history budget.
type HistorySection struct {
	Entries   []string `json:"entries"`
	Tokens    int      `json:"tokens"`
	Truncated bool     `json:"truncated"`
}

// MemoryContext is the final assembled context: ranked memories
// grouped by category, each group within its token budget.
type MemoryContext struct {
	Profile    Section        `json:"profile"`
	Semantic   Section        `json:"semantic"`
	Episodic   Section        `json:"episodic"`
	Procedural Section        `json:"procedural"`
	// Entities holds memories reached only through the entity graph,
	// regardless of their declared type.
	Entities Section        `json:"entities"`
	History  HistorySection `json:"history"`
	// TotalTokens is the token cost of everything included.
	TotalTokens int `json:"total_tokens"`
	// Truncated reports whether any section dropped candidates.
	Truncated bool `json:"truncated"`
}

// Empty reports whether the context contains no memories and no
// history.
func (c *MemoryContext) Empty() bool {
	return len(c.Profile.Memories) == 0 &&
		len(c.Semantic.Memories) == 0 &&
		len(c.Episodic.Memories) == 0 &&
		len(c.Procedural.Memories) == 0 &&
		len(c.Entities.Memories) == 0 &&
		len(c.History.Entries) == 0
}

// PromptString renders the context as a markdown block for inclusion
// in an LLM prompt. Empty sections are omitted; an empty context
// renders as an empty string.
func (c *MemoryContext) PromptString() string {
	var sections []string

	appendSection := func(title string, s Section, line func(ranking.RankedMemory) string) {
		if len(s.Memories) == 0 {
			return
		}
		lines := []string{"## " + title}
		for _, m := range s.Memories {
			lines = append(lines, line(m))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	plain := func(m ranking.RankedMemory) string {
		return "- " + m.Memory.Content
	}

	appendSection("User Profile", c.Profile, plain)
	appendSection("Known Facts", c.Semantic, plain)
	appendSection("Recent Interactions", c.Episodic, func(m ranking.RankedMemory) string {
		return fmt.Sprintf("- %s: %s", m.Memory.CreatedAt.Format("2006-01-02"), m.Memory.Content)
	})
	appendSection("Learned Procedures", c.Procedural, plain)
	appendSection("Entity Context", c.Entities, plain)

	if len(c.History.Entries) > 0 {
		lines := []string{"## Conversation History"}
		for _, e := range c.History.Entries {
			lines = append(lines, "- "+e)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}
