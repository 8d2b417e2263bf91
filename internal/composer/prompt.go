// Package composer assembles the prompt sent to the generation backend
// from the assistant persona, retrieved form documentation, and the user's
// (already sanitized) question.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aidwise/aidwise/internal/generation"
	"github.com/aidwise/aidwise/internal/knowledge"
)

const defaultMaxContextTokens = 3000

const systemPersona = `You are a helpful assistant that answers questions about the FAFSA
(Free Application for Federal Student Aid) and the financial-aid application
process. Answer clearly and concisely. If a question is outside financial
aid, say so politely. Never ask the user for personal identifiers such as
Social Security numbers.`

// Composer builds chat requests with a bounded amount of injected context.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (3000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the message list for one turn: a system message carrying
// the persona plus whatever retrieved documentation fits the budget,
// followed by the user's question.
func (c *Composer) Compose(question string, docs []knowledge.Document) []generation.Message {
	sys := systemPersona
	if ctxBlock := c.buildContext(docs); ctxBlock != "" {
		sys = sys + "\n\n" + ctxBlock
	}
	return []generation.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: question},
	}
}

// buildContext formats retrieved documents into a context block, dropping
// lowest-scoring documents first when over the token budget.
func (c *Composer) buildContext(docs []knowledge.Document) string {
	if len(docs) == 0 {
		return ""
	}

	sorted := make([]knowledge.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	header := "[Reference material]\n"
	remaining := c.MaxContextTokens - EstimateTokens(header)

	var selected []string
	for _, d := range sorted {
		entry := formatDoc(d)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selected = append(selected, entry)
		remaining -= tokens
	}

	if len(selected) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, entry := range selected {
		sb.WriteString(entry)
	}
	return sb.String()
}

func formatDoc(d knowledge.Document) string {
	return fmt.Sprintf("--- %s ---\n%s\n\n", d.Title, d.Content)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
