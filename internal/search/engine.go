package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/metrics"
	"github.com/mirrorlens/mirrorlens/internal/mirror"
)

// ErrEmptyQuery is returned for a blank query; callers route those to the
// browse view instead of search.
var ErrEmptyQuery = errors.New("empty query")

// MatchKind distinguishes how a result matched the query.
type MatchKind string

const (
	MatchFilename MatchKind = "filename"
	MatchSemantic MatchKind = "semantic"
)

// Result is one ranked search hit. ContentRef is an opaque reference the
// content endpoint resolves to bytes.
type Result struct {
	DisplayName string    `json:"display_name"`
	ContentRef  string    `json:"content_ref"`
	Score       float64   `json:"score"`
	Match       MatchKind `json:"match"`
}

// TextEmbedder is the embedding-provider surface the engine needs.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Engine ranks a user's cached entries against a query.
type Engine struct {
	store    *mirror.Store
	embedder TextEmbedder
}

// NewEngine creates a search engine over the given mirror store.
func NewEngine(store *mirror.Store, embedder TextEmbedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// ContentRef builds the opaque content reference for a remote file ID.
func ContentRef(id string) string {
	return "/api/v1/content/" + url.PathEscape(id)
}

// Search returns the ranked results for a query under a filter. Candidates
// are the cached entries that pass the filter and have a stored embedding.
// Filename matches (case-insensitive substring, score 1.0) come first in
// name order; the remaining candidates are scored by cosine similarity
// against the query embedding and follow in descending score order.
// A query-embedding failure fails the whole call.
func (e *Engine) Search(ctx context.Context, userID, query string, filter FilterKind) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	// Hold the user lock only while reading the maps, so a concurrent sync
	// never exposes a half-written cache.
	unlock := e.store.Lock(userID)
	cache, err := e.store.Load(userID)
	unlock()
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id   string
		name string
	}
	var candidates []candidate
	for id, name := range cache.Names {
		if !filter.Matches(name) {
			continue
		}
		if _, ok := cache.Embeddings[id]; !ok {
			// Entries without an embedding are not candidates, for the
			// filename pass either.
			continue
		}
		candidates = append(candidates, candidate{id: id, name: name})
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	queryLower := strings.ToLower(query)

	var filenameMatches []Result
	var rest []candidate
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.name), queryLower) {
			filenameMatches = append(filenameMatches, Result{
				DisplayName: c.name,
				ContentRef:  ContentRef(c.id),
				Score:       1.0,
				Match:       MatchFilename,
			})
		} else {
			rest = append(rest, c)
		}
	}

	var semanticMatches []Result
	if len(rest) > 0 {
		queryVector, err := e.embedder.EmbedText(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryNorm := normalize(queryVector)

		for _, c := range rest {
			score := dot(queryNorm, normalize(cache.Embeddings[c.id]))
			semanticMatches = append(semanticMatches, Result{
				DisplayName: c.name,
				ContentRef:  ContentRef(c.id),
				Score:       score,
				Match:       MatchSemantic,
			})
		}
	}

	sort.SliceStable(filenameMatches, func(i, j int) bool {
		return strings.ToLower(filenameMatches[i].DisplayName) < strings.ToLower(filenameMatches[j].DisplayName)
	})
	sort.SliceStable(semanticMatches, func(i, j int) bool {
		return semanticMatches[i].Score > semanticMatches[j].Score
	})

	results := append(filenameMatches, semanticMatches...)

	metrics.RecordSearch(time.Since(start))
	logging.Debug("search complete",
		zap.String("user", userID),
		zap.String("filter", filter.String()),
		zap.Int("filename_matches", len(filenameMatches)),
		zap.Int("semantic_matches", len(semanticMatches)),
		zap.Duration("took", time.Since(start)))

	return results, nil
}
