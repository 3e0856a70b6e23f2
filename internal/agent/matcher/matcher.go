// Package matcher resolves recipe ingredient names to catalog products.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/grocery-agent-core/server/internal/agent/model"
	logx "github.com/grocery-agent-core/server/pkg/logger"
	"github.com/grocery-agent-core/server/pkg/telemetry"
)

// Retriever is the similarity search the matcher runs per ingredient.
type Retriever interface {
	SemanticSearch(ctx context.Context, text string, topK int, minSimilarity float64) ([]model.ScoredProduct, error)
}

type Matcher struct {
	retriever      Retriever
	minSimilarity  float64
	maxConcurrency int
	failures       metric.Int64Counter
}

func New(retriever Retriever, cfg model.MatcherConfig) *Matcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 6
	}
	failures, _ := otel.Meter(telemetry.InstrumentationName).Int64Counter("matcher.lookup_failures",
		metric.WithDescription("Ingredient lookups that degraded to no suggestion"),
	)
	return &Matcher{
		retriever:      retriever,
		minSimilarity:  cfg.MinSimilarity,
		maxConcurrency: cfg.MaxConcurrency,
		failures:       failures,
	}
}

// Match looks up one product per name concurrently. The result has one entry
// per name, in input order; a failed lookup yields a nil suggestion.
func (m *Matcher) Match(ctx context.Context, names []string) []model.IngredientMatch {
	results := make([]model.IngredientMatch, len(names))

	var g errgroup.Group
	g.SetLimit(m.maxConcurrency)
	for i, name := range names {
		results[i] = model.IngredientMatch{IngredientName: name}
		g.Go(func() error {
			ref, err := m.lookup(ctx, name)
			if err != nil {
				m.failures.Add(ctx, 1)
				logx.Warn().Err(err).Str("ingredient", name).Msg("Ingredient lookup failed")
				return nil
			}
			results[i].SuggestedProduct = ref
			return nil
		})
	}
	// goroutines never return errors; failures are recorded per element
	_ = g.Wait()
	return results
}

func (m *Matcher) lookup(ctx context.Context, name string) (ref *model.ProductRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			ref, err = nil, fmt.Errorf("lookup panic: %v", r)
		}
	}()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	hits, err := m.retriever.SemanticSearch(ctx, name, 1, m.minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 || hits[0].Similarity < m.minSimilarity {
		return nil, nil
	}
	p := hits[0].Product.Ref()
	return &p, nil
}
