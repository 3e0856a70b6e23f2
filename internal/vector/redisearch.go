package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	errx "github.com/grocery-agent-core/server/internal/core/error"
	pkgredis "github.com/grocery-agent-core/server/pkg/redis"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// RedisIndexConfig describes a RediSearch HNSW index over hashes.
type RedisIndexConfig struct {
	IndexName   string
	KeyPrefix   string
	VectorField string
	Dimensions  int
	// DistanceMetric is COSINE, L2 or IP.
	DistanceMetric string
	// TagFields are attribute names indexed as TAG so they can be filtered on.
	TagFields []string
}

// RedisIndex is an Index backed by a RediSearch vector index. Documents are
// hashes at KeyPrefix+id holding the vector and the attributes.
type RedisIndex struct {
	rdb redis.UniversalClient
	cfg RedisIndexConfig
}

func NewRedisIndex(rdb redis.UniversalClient, cfg RedisIndexConfig) *RedisIndex {
	if cfg.VectorField == "" {
		cfg.VectorField = "embedding"
	}
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = "COSINE"
	}
	return &RedisIndex{rdb: rdb, cfg: cfg}
}

// EnsureIndex creates the index when it does not exist yet.
func (r *RedisIndex) EnsureIndex(ctx context.Context) error {
	args := []any{
		"FT.CREATE", r.cfg.IndexName, "ON", "HASH", "PREFIX", "1", r.cfg.KeyPrefix,
		"SCHEMA", r.cfg.VectorField, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32", "DIM", strconv.Itoa(r.cfg.Dimensions), "DISTANCE_METRIC", r.cfg.DistanceMetric,
	}
	for _, f := range r.cfg.TagFields {
		args = append(args, f, "TAG")
	}

	err := r.rdb.Do(ctx, args...).Err()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "index already exists") {
		logx.Error().Err(err).Str("index", r.cfg.IndexName).Msg("failed to create vector index")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisIndex) Upsert(ctx context.Context, id string, vector []float32, attrs map[string]string) error {
	values := make([]any, 0, 2+2*len(attrs))
	values = append(values, r.cfg.VectorField, EncodeFloat32(vector))
	for k, v := range attrs {
		values = append(values, k, v)
	}

	key := r.cfg.KeyPrefix + id
	if err := r.rdb.HSet(ctx, key, values...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store vector")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisIndex) Query(ctx context.Context, vector []float32, topK int, minSimilarity float64, filter map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	args := r.queryArgs(vector, topK, filter)
	reply, err := r.rdb.Do(ctx, args...).Result()
	if err != nil {
		logx.Error().Err(err).Str("index", r.cfg.IndexName).Msg("failed to run vector search")
		return nil, errx.WrapRedis(err)
	}

	_, docs, err := pkgredis.ParseSearchReply(reply)
	if err != nil {
		return nil, errx.WrapVector(err)
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		dist, err := strconv.ParseFloat(d.Fields["score"], 64)
		if err != nil {
			continue
		}
		sim := 1 - dist
		if sim < minSimilarity {
			continue
		}
		attrs := make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			if k != "score" {
				attrs[k] = v
			}
		}
		hits = append(hits, Hit{
			ID:         strings.TrimPrefix(d.Key, r.cfg.KeyPrefix),
			Similarity: sim,
			Attributes: attrs,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits, nil
}

func (r *RedisIndex) queryArgs(vector []float32, topK int, filter map[string]string) []any {
	query := fmt.Sprintf("%s=>[KNN %d @%s $vec AS score]", buildTagFilter(filter), topK, r.cfg.VectorField)

	args := []any{
		"FT.SEARCH", r.cfg.IndexName, query,
		"PARAMS", "2", "vec", EncodeFloat32(vector),
		"SORTBY", "score",
		"RETURN", strconv.Itoa(1 + len(r.cfg.TagFields)), "score",
	}
	for _, f := range r.cfg.TagFields {
		args = append(args, f)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(topK), "DIALECT", "2")
	return args
}

func (r *RedisIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.cfg.KeyPrefix + id
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// buildTagFilter renders an attribute filter as RediSearch TAG clauses.
func buildTagFilter(filter map[string]string) string {
	if len(filter) == 0 {
		return "*"
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("@%s:{%s}", k, pkgredis.EscapeTag(filter[k])))
	}
	return "(" + strings.Join(clauses, " ") + ")"
}

// EncodeFloat32 packs a vector as little-endian FLOAT32 bytes.
func EncodeFloat32(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}

var _ Index = (*RedisIndex)(nil)
