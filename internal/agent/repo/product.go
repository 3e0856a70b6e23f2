package repo

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	"github.com/grocery-agent-core/server/internal/embedding"
	pkgredis "github.com/grocery-agent-core/server/pkg/redis"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// ProductCriteria filters a keyword search.
type ProductCriteria struct {
	Terms     []string
	Category  string
	MaxPrice  float64
	MinRating float64
	Limit     int
}

// Matches reports whether p satisfies the non-term filters.
func (c ProductCriteria) Matches(p model.Product) bool {
	if c.Category != "" && !strings.EqualFold(p.Category, c.Category) {
		return false
	}
	if c.MaxPrice > 0 && p.SalePrice > c.MaxPrice {
		return false
	}
	if c.MinRating > 0 && p.Rating < c.MinRating {
		return false
	}
	return true
}

//go:embed data/products.json
var seedCatalog []byte

// SeedProducts returns the embedded development catalog.
func SeedProducts() ([]model.Product, error) {
	var products []model.Product
	if err := json.Unmarshal(seedCatalog, &products); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}
	return products, nil
}

// MemoryProductRepository serves a fixed product list from memory.
type MemoryProductRepository struct {
	products []model.Product
	byID     map[string]int
}

func NewMemoryProductRepository(products []model.Product) *MemoryProductRepository {
	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}
	return &MemoryProductRepository{products: products, byID: byID}
}

func (m *MemoryProductRepository) GetByID(_ context.Context, id string) (*model.Product, error) {
	i, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errx.ErrProductNotFound, id)
	}
	p := m.products[i]
	return &p, nil
}

func (m *MemoryProductRepository) All(_ context.Context) ([]model.Product, error) {
	out := make([]model.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

// KeywordSearch scores name matches above description and category matches
// and breaks ties by rating.
func (m *MemoryProductRepository) KeywordSearch(_ context.Context, c ProductCriteria) ([]model.Product, error) {
	type scored struct {
		p     model.Product
		score int
	}
	var hits []scored
	for _, p := range m.products {
		if !c.Matches(p) {
			continue
		}
		name := strings.ToLower(p.Name)
		rest := strings.ToLower(p.Description + " " + p.Category + " " + p.Brand)
		score := 0
		for _, t := range c.Terms {
			if strings.Contains(name, t) {
				score += 2
			} else if strings.Contains(rest, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].p.Rating > hits[j].p.Rating
	})

	out := make([]model.Product, 0, len(hits))
	for _, h := range hits {
		if c.Limit > 0 && len(out) >= c.Limit {
			break
		}
		out = append(out, h.p)
	}
	return out, nil
}

// RedisProductRepository reads products stored as hashes under a key prefix
// and searches them through a RediSearch full-text index.
type RedisProductRepository struct {
	rdb       redis.UniversalClient
	indexName string
	keyPrefix string
}

func NewRedisProductRepository(rdb redis.UniversalClient, indexName, keyPrefix string) *RedisProductRepository {
	return &RedisProductRepository{rdb: rdb, indexName: indexName, keyPrefix: keyPrefix}
}

var productFields = []string{"id", "name", "brand", "category", "description", "salePrice", "marketPrice", "rating", "inStock"}

func (r *RedisProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	key := r.keyPrefix + strings.TrimSpace(id)
	vals, err := r.rdb.HMGet(ctx, key, productFields...).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load product from redis")
		return nil, errx.WrapRedis(err)
	}

	fields := make(map[string]string, len(productFields))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			fields[productFields[i]] = s
		}
	}
	if fields["name"] == "" {
		return nil, fmt.Errorf("%w: %s", errx.ErrProductNotFound, id)
	}
	p := productFromFields(strings.TrimPrefix(key, r.keyPrefix), fields)
	return &p, nil
}

func (r *RedisProductRepository) KeywordSearch(ctx context.Context, c ProductCriteria) ([]model.Product, error) {
	args := r.keywordArgs(c)
	if args == nil {
		return nil, nil
	}
	reply, err := r.rdb.Do(ctx, args...).Result()
	if err != nil {
		logx.Error().Err(err).Str("index", r.indexName).Msg("failed to run keyword product search")
		return nil, errx.WrapRedis(err)
	}
	_, docs, err := pkgredis.ParseSearchReply(reply)
	if err != nil {
		return nil, errx.WrapVector(err)
	}

	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, productFromFields(strings.TrimPrefix(d.Key, r.keyPrefix), d.Fields))
	}
	return out, nil
}

func (r *RedisProductRepository) keywordArgs(c ProductCriteria) []any {
	terms := make([]string, 0, len(c.Terms))
	for _, t := range c.Terms {
		if len(t) >= 2 {
			terms = append(terms, pkgredis.EscapeTag(t))
		}
	}
	if len(terms) == 0 {
		return nil
	}
	alt := strings.Join(terms, "|")
	query := fmt.Sprintf("(@name:(%s) | @description:(%s))", alt, alt)
	if c.Category != "" {
		query += fmt.Sprintf(" @category:{%s}", pkgredis.EscapeTag(c.Category))
	}
	if c.MaxPrice > 0 {
		query += fmt.Sprintf(" @salePrice:[0 %s]", strconv.FormatFloat(c.MaxPrice, 'f', -1, 64))
	}
	if c.MinRating > 0 {
		query += fmt.Sprintf(" @rating:[%s +inf]", strconv.FormatFloat(c.MinRating, 'f', -1, 64))
	}

	limit := c.Limit
	if limit <= 0 {
		limit = 10
	}
	args := []any{"FT.SEARCH", r.indexName, query, "RETURN", strconv.Itoa(len(productFields))}
	for _, f := range productFields {
		args = append(args, f)
	}
	return append(args, "SORTBY", "rating", "DESC", "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")
}

// Store writes products as hashes. Used to seed a Redis catalog for local runs.
func (r *RedisProductRepository) Store(ctx context.Context, products ...model.Product) error {
	pipe := r.rdb.Pipeline()
	for _, p := range products {
		pipe.HSet(ctx, r.keyPrefix+p.ID, productToFields(p))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Int("count", len(products)).Msg("failed to store products")
		return errx.WrapRedis(err)
	}
	return nil
}

func productFromFields(id string, f map[string]string) model.Product {
	num := func(k string) float64 {
		v, _ := strconv.ParseFloat(f[k], 64)
		return v
	}
	if f["id"] != "" {
		id = f["id"]
	}
	inStock := true
	if v, ok := f["inStock"]; ok {
		inStock, _ = strconv.ParseBool(v)
	}
	return model.Product{
		ID:          id,
		Name:        f["name"],
		Brand:       f["brand"],
		Category:    f["category"],
		Description: f["description"],
		SalePrice:   num("salePrice"),
		MarketPrice: num("marketPrice"),
		Rating:      num("rating"),
		InStock:     inStock,
	}
}

func productToFields(p model.Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"brand":       p.Brand,
		"category":    p.Category,
		"description": p.Description,
		"salePrice":   strconv.FormatFloat(p.SalePrice, 'f', 2, 64),
		"marketPrice": strconv.FormatFloat(p.MarketPrice, 'f', 2, 64),
		"rating":      strconv.FormatFloat(p.Rating, 'f', 1, 64),
		"inStock":     strconv.FormatBool(p.InStock),
	}
}

// SearchTerms splits a free-text query into lowercase keyword terms.
func SearchTerms(query string) []string {
	var out []string
	for _, t := range embedding.Tokenize(query) {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}
