package vector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// ChromemIndex is an in-process Index backed by one chromem-go collection.
type ChromemIndex struct {
	db   *chromem.DB
	name string

	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromemIndex creates an index over the named collection of db. Several
// indexes may share one db.
func NewChromemIndex(db *chromem.DB, name string) *ChromemIndex {
	return &ChromemIndex{db: db, name: name}
}

func (c *ChromemIndex) collection() (*chromem.Collection, error) {
	c.mu.RLock()
	col := c.col
	c.mu.RUnlock()
	if col != nil {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.col != nil {
		return c.col, nil
	}
	// embeddings are always supplied by the caller, so no embedding func is needed
	col, err := c.db.GetOrCreateCollection(c.name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", c.name, err)
	}
	c.col = col
	return col, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, attrs map[string]string) error {
	col, err := c.collection()
	if err != nil {
		return errx.WrapVector(err)
	}
	// chromem keeps the first document for a duplicate id, so replace explicitly
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return errx.WrapVector(fmt.Errorf("delete before upsert: %w", err))
	}

	meta := make(map[string]string, len(attrs))
	for k, v := range attrs {
		meta[k] = v
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: vector,
		Metadata:  meta,
	})
	if err != nil {
		logx.Error().Err(err).Str("collection", c.name).Str("id", id).Msg("failed to add document to vector index")
		return errx.WrapVector(err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, vector []float32, topK int, minSimilarity float64, filter map[string]string) ([]Hit, error) {
	col, err := c.collection()
	if err != nil {
		return nil, errx.WrapVector(err)
	}
	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	// chromem rejects nResults larger than the filtered set; shrink and retry
	for err != nil && strings.Contains(err.Error(), "nResults must be") && n > 1 {
		n /= 2
		results, err = col.QueryEmbedding(ctx, vector, n, where, nil)
	}
	if err != nil {
		logx.Error().Err(err).Str("collection", c.name).Msg("failed to query vector index")
		return nil, errx.WrapVector(err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, Hit{ID: r.ID, Similarity: sim, Attributes: r.Metadata})
	}
	return hits, nil
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := c.collection()
	if err != nil {
		return errx.WrapVector(err)
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return errx.WrapVector(err)
	}
	return nil
}

var _ Index = (*ChromemIndex)(nil)
