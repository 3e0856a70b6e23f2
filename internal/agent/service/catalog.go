package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/repo"
	embedx "github.com/grocery-agent-core/server/internal/embedding"
	"github.com/grocery-agent-core/server/internal/vector"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

const maxSearchLimit = 20

// ProductRepository is the catalog store contract.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*model.Product, error)
	KeywordSearch(ctx context.Context, c repo.ProductCriteria) ([]model.Product, error)
}

// ProductService combines vector retrieval with keyword search over the catalog.
type ProductService struct {
	products ProductRepository
	index    vector.Index
	embedder embedding.Embedder
	cfg      model.SearchConfig
}

func NewProductService(products ProductRepository, index vector.Index, embedder embedding.Embedder, cfg model.SearchConfig) *ProductService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 8
	}
	if cfg.FallbackFloor <= 0 {
		cfg.FallbackFloor = 3
	}
	return &ProductService{products: products, index: index, embedder: embedder, cfg: cfg}
}

func (s *ProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	return s.products.GetByID(ctx, id)
}

// SemanticSearch embeds text and returns up to topK products whose similarity
// clears minSimilarity, best first.
func (s *ProductService) SemanticSearch(ctx context.Context, text string, topK int, minSimilarity float64) ([]model.ScoredProduct, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	hits, err := s.index.Query(ctx, embedx.ToFloat32(vecs[0]), topK, minSimilarity, nil)
	if err != nil {
		return nil, fmt.Errorf("query product index: %w", err)
	}

	out := make([]model.ScoredProduct, 0, len(hits))
	for _, h := range hits {
		p, err := s.products.GetByID(ctx, h.ID)
		if err != nil {
			logx.Warn().Err(err).Str("product_id", h.ID).Msg("vector hit without catalog record")
			continue
		}
		out = append(out, model.ScoredProduct{Product: *p, Similarity: h.Similarity})
	}
	return out, nil
}

// Search runs similarity search first and tops it up with keyword matches when
// it returns fewer than the fallback floor. A search filtered to nothing by
// category is retried once without the category.
func (s *ProductService) Search(ctx context.Context, q model.SearchQuery) (*model.SearchOutcome, error) {
	q.Limit = s.normalizeLimit(q.Limit)

	out, err := s.search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out.Products) == 0 && q.Category != "" {
		logx.Debug().Str("query", q.Query).Str("category", q.Category).Msg("No products in category; retrying without category filter")
		q.Category = ""
		out, err = s.search(ctx, q)
		if err != nil {
			return nil, err
		}
		out.CategoryDropped = true
	}
	return out, nil
}

func (s *ProductService) search(ctx context.Context, q model.SearchQuery) (*model.SearchOutcome, error) {
	criteria := repo.ProductCriteria{
		Terms:     repo.SearchTerms(q.Query),
		Category:  q.Category,
		MaxPrice:  q.MaxPrice,
		MinRating: q.MinRating,
		Limit:     q.Limit,
	}

	var results []model.ScoredProduct
	if q.UseSemanticSearch {
		// over-fetch so post-filters still leave enough candidates
		hits, err := s.SemanticSearch(ctx, q.Query, q.Limit*3, s.cfg.MinSimilarity)
		if err != nil {
			logx.Warn().Err(err).Str("query", q.Query).Msg("Semantic search failed; using keyword search")
		}
		for _, h := range hits {
			if criteria.Matches(h.Product) {
				results = append(results, h)
			}
			if len(results) >= q.Limit {
				break
			}
		}
	}
	semanticCount := len(results)

	if len(results) < s.cfg.FallbackFloor || !q.UseSemanticSearch {
		keyword, err := s.products.KeywordSearch(ctx, criteria)
		if err != nil {
			if semanticCount == 0 {
				return nil, fmt.Errorf("keyword search: %w", err)
			}
			logx.Warn().Err(err).Str("query", q.Query).Msg("Keyword fallback failed; returning semantic results only")
		}
		results = mergeProducts(results, keyword, q.Limit)
	}

	searchType := model.SearchKeyword
	switch {
	case semanticCount > 0 && len(results) > semanticCount:
		searchType = model.SearchHybrid
	case semanticCount > 0:
		searchType = model.SearchSemantic
	}
	return &model.SearchOutcome{Products: results, SearchType: searchType}, nil
}

func (s *ProductService) normalizeLimit(n int) int {
	if n <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(n, maxSearchLimit)
}

// mergeProducts appends keyword results to scored results, skipping ids
// already present, up to limit.
func mergeProducts(scored []model.ScoredProduct, keyword []model.Product, limit int) []model.ScoredProduct {
	seen := make(map[string]struct{}, len(scored))
	for _, s := range scored {
		seen[s.Product.ID] = struct{}{}
	}
	for _, p := range keyword {
		if len(scored) >= limit {
			break
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		scored = append(scored, model.ScoredProduct{Product: p})
	}
	return scored
}

// IndexProducts embeds products and stores their vectors. Used to seed the
// in-memory catalog; production catalogs arrive pre-indexed.
func IndexProducts(ctx context.Context, products []model.Product, embedder embedding.Embedder, index vector.Index) error {
	if len(products) == 0 {
		return nil
	}
	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = strings.Join([]string{p.Name, p.Brand, p.Category, p.Description}, " ")
	}
	vecs, err := embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed catalog: %w", err)
	}
	if len(vecs) != len(products) {
		return fmt.Errorf("embed catalog: embedding count mismatch: got %d want %d", len(vecs), len(products))
	}
	for i, p := range products {
		attrs := map[string]string{"category": p.Category}
		if err := index.Upsert(ctx, p.ID, embedx.ToFloat32(vecs[i]), attrs); err != nil {
			return fmt.Errorf("index product %s: %w", p.ID, err)
		}
	}
	logx.Info().Int("count", len(products)).Msg("Indexed catalog products")
	return nil
}
