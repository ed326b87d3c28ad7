// Package retrieval glues embedding providers to a vector store for
// knowledge-base lookups. A query is embedded by the first available
// embedding-capable provider and matched against stored vectors of the same
// owner, collection, and dimensionality.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
)

// Scope bounds a lookup to one knowledge base.
type Scope struct {
	Owner      string
	Collection string
}

// Neighbor is one raw nearest-neighbor row from a store.
type Neighbor struct {
	Content  string
	Distance float64
	Source   string
}

// VectorStore is the lookup collaborator. Dimension is part of the key:
// vectors embedded by different models must never be compared against each
// other, so a store only returns rows whose stored dimension matches.
type VectorStore interface {
	Nearest(ctx context.Context, embedding []float64, dimension int, scope Scope, topK int) ([]Neighbor, error)
}

// Result is one scored retrieval hit. Score is max(0, 1-distance), so higher
// is better and clamped at zero.
type Result struct {
	Content string
	Score   float64
	Source  string
}

// Candidate pairs an embedding-capable provider with the model used for it.
// The model matters for dimensionality: a knowledge base populated with one
// model's vectors is only reachable through that model.
type Candidate struct {
	Provider llm.Provider
	Model    string
}

// Retriever runs the lookup chain. Candidates are tried in order; a
// candidate whose embedding finds zero rows is not a failure, the next one
// is tried, since the knowledge base may have been populated by a different
// provider than the one currently preferred.
type Retriever struct {
	candidates []Candidate
	store      VectorStore
	logger     *zap.Logger
}

// NewRetriever builds a retriever over an ordered candidate chain.
func NewRetriever(candidates []Candidate, store VectorStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{candidates: candidates, store: store, logger: logger}
}

// Retrieve embeds the query and returns the topK scored matches in the
// scope. Returns an empty slice when every candidate embeds successfully but
// no stored vectors match; returns an error only when no candidate could
// produce an embedding at all.
func (r *Retriever) Retrieve(ctx context.Context, query string, scope Scope, topK int) ([]Result, error) {
	if len(r.candidates) == 0 {
		return nil, llm.NewConfigurationError("retrieval: no embedding providers configured")
	}
	if topK <= 0 {
		topK = 5
	}

	var lastErr error
	embedded := false
	for _, c := range r.candidates {
		if !c.Provider.Descriptor().SupportsEmbeddings {
			continue
		}
		vec, err := c.Provider.Embed(ctx, query, c.Model)
		if err != nil {
			lastErr = err
			r.logger.Warn("embedding candidate failed",
				zap.String("provider", c.Provider.Name()), zap.Error(err))
			continue
		}
		embedded = true

		neighbors, err := r.store.Nearest(ctx, vec, len(vec), scope, topK)
		if err != nil {
			lastErr = err
			continue
		}
		if len(neighbors) == 0 {
			r.logger.Debug("no vectors at this dimension, trying next provider",
				zap.String("provider", c.Provider.Name()), zap.Int("dimension", len(vec)))
			continue
		}
		return score(neighbors), nil
	}

	if !embedded {
		if lastErr != nil {
			return nil, fmt.Errorf("retrieval: no candidate produced an embedding: %w", lastErr)
		}
		return nil, llm.NewConfigurationError("retrieval: no embedding-capable provider in chain")
	}
	return []Result{}, nil
}

func score(neighbors []Neighbor) []Result {
	out := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, Result{
			Content: n.Content,
			Score:   math.Max(0, 1-n.Distance),
			Source:  n.Source,
		})
	}
	return out
}

// FormatContext renders results into a prompt context block, one numbered
// passage per hit.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Entry is one stored vector with its payload.
type Entry struct {
	Scope     Scope
	Embedding []float64
	Content   string
	Source    string
}

// InMemoryStore keeps vectors in process memory. Suited for tests and small
// per-user knowledge bases.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add stores one vector.
func (s *InMemoryStore) Add(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Nearest ranks scope- and dimension-matched entries by cosine distance.
func (s *InMemoryStore) Nearest(ctx context.Context, embedding []float64, dimension int, scope Scope, topK int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Neighbor
	for _, e := range s.entries {
		if e.Scope != scope || len(e.Embedding) != dimension {
			continue
		}
		matches = append(matches, Neighbor{
			Content:  e.Content,
			Distance: CosineDistance(embedding, e.Embedding),
			Source:   e.Source,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// CosineDistance is 1 minus cosine similarity; 1 for a zero vector.
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
