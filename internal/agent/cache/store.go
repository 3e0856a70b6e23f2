package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	embedx "github.com/grocery-agent-core/server/internal/embedding"
	"github.com/grocery-agent-core/server/internal/vector"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// SearchStrategy selects how a prompt is matched against cached entries.
type SearchStrategy string

const (
	StrategyExact    SearchStrategy = "exact"
	StrategySemantic SearchStrategy = "semantic"
)

// SearchRequest asks the store for an entry matching Prompt under Attributes.
// Strategies are tried in order and the first match wins.
type SearchRequest struct {
	Prompt     string
	Attributes map[string]string
	Strategies []SearchStrategy
}

// Match is a cache hit together with the strategy that produced it.
type Match struct {
	Entry      model.CacheEntry
	Strategy   SearchStrategy
	Similarity float64
}

// Store is the shared cache store contract.
type Store interface {
	Search(ctx context.Context, req SearchRequest) (*Match, error)
	Set(ctx context.Context, entry model.CacheEntry) error
	DeleteByAttributes(ctx context.Context, attrs map[string]string) (int, error)
}

// RedisStoreConfig configures RedisStore.
type RedisStoreConfig struct {
	KeyPrefix         string
	SemanticThreshold float64
	// SemanticCandidates is how many nearest prompts are checked before giving up.
	SemanticCandidates int
}

// RedisStore keeps entries as Redis strings with PX expiry and their prompt
// embeddings in a vector index. Redis is authoritative for expiry: vector hits
// whose entry is gone are skipped and removed from the index.
type RedisStore struct {
	rdb      redis.Cmdable
	index    vector.Index
	embedder embedding.Embedder
	cfg      RedisStoreConfig
	now      func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, index vector.Index, embedder embedding.Embedder, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "semcache"
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = 0.9
	}
	if cfg.SemanticCandidates <= 0 {
		cfg.SemanticCandidates = 3
	}
	return &RedisStore{rdb: rdb, index: index, embedder: embedder, cfg: cfg, now: time.Now}
}

func (s *RedisStore) entryKey(id string) string {
	return fmt.Sprintf("%s:entry:%s", s.cfg.KeyPrefix, id)
}

func (s *RedisStore) attrKey(k, v string) string {
	return fmt.Sprintf("%s:attr:%s:%s", s.cfg.KeyPrefix, k, v)
}

// NormalizePrompt lowercases and collapses whitespace so trivially different
// phrasings share an exact key.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// EntryID derives the stable id of a prompt under a set of attributes.
func EntryID(prompt string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(attrs[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte(NormalizePrompt(prompt)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (s *RedisStore) Search(ctx context.Context, req SearchRequest) (*Match, error) {
	for _, strategy := range req.Strategies {
		var (
			m   *Match
			err error
		)
		switch strategy {
		case StrategyExact:
			m, err = s.searchExact(ctx, req)
		case StrategySemantic:
			m, err = s.searchSemantic(ctx, req)
		default:
			err = fmt.Errorf("unknown search strategy %q", strategy)
		}
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

func (s *RedisStore) searchExact(ctx context.Context, req SearchRequest) (*Match, error) {
	entry, err := s.load(ctx, EntryID(req.Prompt, req.Attributes))
	if err != nil || entry == nil {
		return nil, err
	}
	return &Match{Entry: *entry, Strategy: StrategyExact, Similarity: 1}, nil
}

func (s *RedisStore) searchSemantic(ctx context.Context, req SearchRequest) (*Match, error) {
	vec, err := s.embed(ctx, req.Prompt)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Query(ctx, vec, s.cfg.SemanticCandidates, s.cfg.SemanticThreshold, req.Attributes)
	if err != nil {
		return nil, fmt.Errorf("query cache index: %w", err)
	}

	var stale []string
	defer func() {
		if len(stale) > 0 {
			if err := s.index.Delete(ctx, stale...); err != nil {
				logx.Warn().Err(err).Int("count", len(stale)).Msg("failed to prune expired cache vectors")
			}
		}
	}()

	for _, h := range hits {
		entry, err := s.load(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			stale = append(stale, h.ID)
			continue
		}
		return &Match{Entry: *entry, Strategy: StrategySemantic, Similarity: h.Similarity}, nil
	}
	return nil, nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*model.CacheEntry, error) {
	raw, err := s.rdb.Get(ctx, s.entryKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logx.Warn().Err(err).Str("id", id).Msg("discarding malformed cache entry")
		return nil, nil
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry model.CacheEntry) error {
	ttl := entry.TTL()
	if ttl <= 0 {
		return fmt.Errorf("cache entry ttl must be positive, got %s", ttl)
	}
	id := EntryID(entry.Prompt, entry.Attributes)
	entry.PromptKey = id
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	vec, err := s.embed(ctx, entry.Prompt)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.entryKey(id), b, ttl)
	for k, v := range entry.Attributes {
		key := s.attrKey(k, v)
		pipe.SAdd(ctx, key, id)
		// the set must outlive every entry it indexes
		pipe.Expire(ctx, key, max(ttl, RecipeTTL))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("id", id).Msg("failed to write cache entry")
		return errx.WrapRedis(err)
	}

	if err := s.index.Upsert(ctx, id, vec, entry.Attributes); err != nil {
		return fmt.Errorf("index cache prompt: %w", err)
	}
	return nil
}

// DeleteByAttributes removes every entry tagged with all of attrs.
func (s *RedisStore) DeleteByAttributes(ctx context.Context, attrs map[string]string) (int, error) {
	if len(attrs) == 0 {
		return 0, fmt.Errorf("delete by attributes requires at least one attribute")
	}
	setKeys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		setKeys = append(setKeys, s.attrKey(k, v))
	}

	ids, err := s.rdb.SInter(ctx, setKeys...).Result()
	if err != nil {
		return 0, errx.WrapRedis(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	deleted, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errx.WrapRedis(err)
	}
	for _, key := range setKeys {
		if err := s.rdb.SRem(ctx, key, toAny(ids)...).Err(); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("failed to trim cache attribute set")
		}
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		logx.Warn().Err(err).Int("count", len(ids)).Msg("failed to remove cache vectors")
	}
	return int(deleted), nil
}

func (s *RedisStore) embed(ctx context.Context, prompt string) ([]float32, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{NormalizePrompt(prompt)})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed prompt: got %d vectors", len(vecs))
	}
	return embedx.ToFloat32(vecs[0]), nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

var _ Store = (*RedisStore)(nil)
