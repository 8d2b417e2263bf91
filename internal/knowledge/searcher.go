package knowledge

import (
	"context"
	"fmt"
	"time"
)

// Document is one retrieved passage handed to the prompt composer.
type Document struct {
	Title   string
	Content string
	Score   float32
}

// SearchResult is what a knowledge lookup produces for one question.
type SearchResult struct {
	Documents []Document
	Sources   []string
}

// VectorSearcher is the slice of the vector store the Searcher needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
}

// Searcher embeds a question and finds the most relevant form-doc passages.
type Searcher struct {
	embedder *Embedder
	store    VectorSearcher
	topK     int
	minScore float32
	timeout  time.Duration
}

// NewSearcher creates a Searcher. topK <= 0 defaults to 4.
func NewSearcher(embedder *Embedder, store VectorSearcher, topK int) *Searcher {
	if topK <= 0 {
		topK = 4
	}
	return &Searcher{
		embedder: embedder,
		store:    store,
		topK:     topK,
		minScore: 0.3,
		timeout:  5 * time.Second,
	}
}

// Search returns the passages most relevant to the query, with their source
// titles deduplicated into citation labels. The whole lookup is bounded by
// a short deadline so a slow embedding call cannot stall the turn.
func (s *Searcher) Search(ctx context.Context, query string) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := s.store.Search(ctx, vec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	result := &SearchResult{}
	seenSources := make(map[string]bool)
	for _, r := range scored {
		if r.Score < s.minScore {
			continue
		}
		result.Documents = append(result.Documents, Document{
			Title:   r.Title,
			Content: r.TextChunk,
			Score:   r.Score,
		})
		if !seenSources[r.Title] {
			seenSources[r.Title] = true
			result.Sources = append(result.Sources, r.Title)
		}
	}
	return result, nil
}
