// Package vector holds the similarity index contract and its backends.
package vector

import "context"

// Hit is one similarity search result. Similarity is 1 - distance under the
// backend's metric, so higher is closer.
type Hit struct {
	ID         string
	Similarity float64
	Attributes map[string]string
}

// Index stores vectors with string attributes and answers top-k queries.
type Index interface {
	// Upsert stores or replaces the vector for id.
	Upsert(ctx context.Context, id string, vector []float32, attrs map[string]string) error

	// Query returns up to topK hits with similarity >= minSimilarity whose
	// attributes equal every entry of filter, ordered by descending similarity.
	Query(ctx context.Context, vector []float32, topK int, minSimilarity float64, filter map[string]string) ([]Hit, error)

	// Delete removes the given ids; unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
}
