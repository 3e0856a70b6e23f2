package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/grocery-agent-core/server/internal/agent/model"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// Gateway is the pipeline's view of the semantic cache. Lookups fail open;
// writes report errors for the caller to log.
type Gateway struct {
	store          Store
	scopeBySession bool
	metrics        *gatewayMetrics
}

func NewGateway(store Store, scopeBySession bool) *Gateway {
	return &Gateway{store: store, scopeBySession: scopeBySession, metrics: newGatewayMetrics()}
}

func (g *Gateway) attributes(sessionAttr string) map[string]string {
	if !g.scopeBySession || sessionAttr == "" {
		return nil
	}
	return map[string]string{model.SessionAttribute: sessionAttr}
}

// Lookup returns the cached response for query, trying an exact match before
// a semantic one. Store failures are reported as a miss.
func (g *Gateway) Lookup(ctx context.Context, query, sessionAttr string) (string, bool) {
	m, err := g.store.Search(ctx, SearchRequest{
		Prompt:     query,
		Attributes: g.attributes(sessionAttr),
		Strategies: []SearchStrategy{StrategyExact, StrategySemantic},
	})
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionAttr).Msg("Cache lookup failed; treating as miss")
		g.metrics.lookup(ctx, "error")
		return "", false
	}
	if m == nil || m.Entry.Response == "" {
		g.metrics.lookup(ctx, "miss")
		return "", false
	}

	logx.Debug().
		Str("session_id", sessionAttr).
		Str("strategy", string(m.Strategy)).
		Float64("similarity", m.Similarity).
		Msg("Cache hit")
	g.metrics.lookup(ctx, "hit_"+string(m.Strategy))
	return m.Entry.Response, true
}

// Write stores a response for ttl. A non-positive ttl writes nothing.
func (g *Gateway) Write(ctx context.Context, query, response string, ttl time.Duration, sessionAttr string) error {
	if ttl <= 0 {
		g.metrics.write(ctx, "skipped")
		return nil
	}
	err := g.store.Set(ctx, model.CacheEntry{
		Prompt:     query,
		Response:   response,
		TTLMillis:  ttl.Milliseconds(),
		Attributes: g.attributes(sessionAttr),
	})
	if err != nil {
		g.metrics.write(ctx, "error")
		return fmt.Errorf("cache write: %w", err)
	}
	g.metrics.write(ctx, "ok")
	return nil
}

// Invalidate removes every entry scoped to sessionAttr.
func (g *Gateway) Invalidate(ctx context.Context, sessionAttr string) (int, error) {
	if sessionAttr == "" {
		return 0, fmt.Errorf("invalidate requires a session attribute")
	}
	n, err := g.store.DeleteByAttributes(ctx, map[string]string{model.SessionAttribute: sessionAttr})
	if err != nil {
		return 0, fmt.Errorf("cache invalidate: %w", err)
	}
	logx.Info().Str("session_id", sessionAttr).Int("removed", n).Msg("Invalidated cache entries")
	return n, nil
}
