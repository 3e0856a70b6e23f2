package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/philippgille/chromem-go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/grocery-agent-core/server/internal/agent/cache"
	"github.com/grocery-agent-core/server/internal/agent/compliance"
	"github.com/grocery-agent-core/server/internal/agent/graph"
	"github.com/grocery-agent-core/server/internal/agent/graph/conversations"
	"github.com/grocery-agent-core/server/internal/agent/graph/nodes"
	"github.com/grocery-agent-core/server/internal/agent/graph/tools"
	"github.com/grocery-agent-core/server/internal/agent/loop"
	"github.com/grocery-agent-core/server/internal/agent/matcher"
	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/repo"
	"github.com/grocery-agent-core/server/internal/agent/service"
	"github.com/grocery-agent-core/server/internal/core"
	"github.com/grocery-agent-core/server/internal/embedding"
	"github.com/grocery-agent-core/server/internal/vector"
	logx "github.com/grocery-agent-core/server/pkg/logger"
	pkgredis "github.com/grocery-agent-core/server/pkg/redis"
	"github.com/grocery-agent-core/server/pkg/telemetry"
)

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	model.AgentConfig
	model.AgentModelConfig
	model.UtilityModelConfig
	model.EmbeddingConfig
	model.CacheConfig
	model.SanitizerConfig
	model.MatcherConfig
	model.SearchConfig
	model.CatalogConfig
	model.SessionConfig
	telemetry.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads envFile when present, then the environment.
func loadConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// app is the wired agent plus everything that must be released on exit.
type app struct {
	runner  graph.Runner
	closers []func(context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// newApp builds every component bottom-up and composes the graph.
func newApp(ctx context.Context, cfg *AppConfig) (_ *app, err error) {
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment), Level: cfg.LogLevel})

	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	shutdown, err := telemetry.Setup(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	rdb, err := cfg.Redis.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	logx.Debug().Msg("Connected to Redis successfully")

	client, err := nodes.NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:        client,
		AgentConfig:   &cfg.AgentModelConfig,
		UtilityConfig: &cfg.UtilityModelConfig,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, client)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { embedder.Close(); return nil })

	// ====================================================
	// Catalog, cart and tools
	productRepo, productIndex, err := newCatalog(ctx, cfg, rdb, embedder)
	if err != nil {
		return nil, err
	}
	products := service.NewProductService(productRepo, productIndex, embedder, cfg.SearchConfig)
	cart := service.NewCartService(repo.NewRedisCartRepository(rdb, cfg.CartTTL), products)

	registry, err := tools.NewRegistry(tools.Deps{
		Products:      products,
		Cart:          cart,
		Matcher:       matcher.New(products, cfg.MatcherConfig),
		Utility:       chatModels.Utility,
		Matching:      cfg.MatcherConfig,
		AnswerTimeout: cfg.ModelTimeout,
	})
	if err != nil {
		return nil, err
	}
	toolInfos, err := registry.ToolInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}
	agentModel, err := chatModels.BindAgentTools(toolInfos)
	if err != nil {
		return nil, err
	}

	// ====================================================
	// Cache gate and graph
	graphCfg := &graph.GraphConfig{
		MessagesManager: conversations.NewMessagesManager(repo.NewRedisChatRepository(rdb, cfg.HistoryTTL), cfg.AgentConfig),
		Loop: loop.NewController(agentModel, registry, loop.Config{
			MaxSteps:     cfg.MaxSteps,
			ModelTimeout: cfg.ModelTimeout,
			ModelName:    chatModels.AgentModelName,
		}),
		Cart:      cart,
		StoreName: cfg.StoreName,
	}
	if cfg.Enabled {
		gateway, err := newCacheGateway(ctx, cfg, rdb, embedder)
		if err != nil {
			return nil, err
		}
		sanitizer := compliance.NewSanitizer(chatModels.Utility, compliance.ParseFailurePolicy(cfg.FailurePolicy), cfg.SanitizerConfig.Timeout)
		graphCfg.Cache = gateway
		graphCfg.Sanitizer = sanitizer
		logx.Info().Str("failure_policy", string(sanitizer.Policy())).Msg("Semantic cache enabled")
	} else {
		logx.Warn().Msg("Semantic cache disabled")
	}

	a.runner, err = graph.NewRunner(ctx, graphCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return a, nil
}

// newEmbedder returns the configured embedder behind a memoizing cache.
func newEmbedder(cfg *AppConfig, client *genai.Client) (*embedding.Cached, error) {
	var next einoembedding.Embedder
	switch cfg.Provider {
	case "hash":
		next = embedding.NewHashEmbedder(cfg.Dimensions)
	default:
		next = embedding.NewGeminiEmbedder(client, cfg.EmbeddingConfig.Model, cfg.Dimensions)
	}
	return embedding.NewCached(next, cfg.CacheSize)
}

// newCatalog returns the product repository and its vector index. The memory
// backend serves the embedded seed catalog; the redis backend expects a
// pre-ingested RediSearch index.
func newCatalog(ctx context.Context, cfg *AppConfig, rdb *redis.Client, embedder *embedding.Cached) (service.ProductRepository, vector.Index, error) {
	if cfg.Backend == "redis" {
		index := vector.NewRedisIndex(rdb, vector.RedisIndexConfig{
			IndexName:  cfg.CatalogConfig.IndexName,
			KeyPrefix:  cfg.CatalogConfig.KeyPrefix,
			Dimensions: cfg.Dimensions,
			TagFields:  []string{"category"},
		})
		return repo.NewRedisProductRepository(rdb, cfg.CatalogConfig.IndexName, cfg.CatalogConfig.KeyPrefix), index, nil
	}

	seed, err := repo.SeedProducts()
	if err != nil {
		return nil, nil, err
	}
	products := repo.NewMemoryProductRepository(seed)
	index := vector.NewChromemIndex(chromem.NewDB(), "products")
	if cfg.SeedVectors {
		all, err := products.All(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := service.IndexProducts(ctx, all, embedder, index); err != nil {
			return nil, nil, err
		}
	}
	return products, index, nil
}

// newCacheGateway builds the semantic cache. Entries always live in Redis;
// prompt vectors go to RediSearch alongside a redis catalog and to an
// in-process index otherwise.
func newCacheGateway(ctx context.Context, cfg *AppConfig, rdb *redis.Client, embedder *embedding.Cached) (*cache.Gateway, error) {
	var index vector.Index
	if cfg.Backend == "redis" {
		ri := vector.NewRedisIndex(rdb, vector.RedisIndexConfig{
			IndexName:  "idx:" + cfg.CacheConfig.KeyPrefix,
			KeyPrefix:  cfg.CacheConfig.KeyPrefix + ":vec:",
			Dimensions: cfg.Dimensions,
			TagFields:  []string{model.SessionAttribute},
		})
		if err := ri.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("failed to create cache index: %w", err)
		}
		index = ri
	} else {
		index = vector.NewChromemIndex(chromem.NewDB(), "semantic-cache")
	}

	store := cache.NewRedisStore(rdb, index, embedder, cache.RedisStoreConfig{
		KeyPrefix:         cfg.CacheConfig.KeyPrefix,
		SemanticThreshold: cfg.SemanticThreshold,
	})
	return cache.NewGateway(store, cfg.ScopeBySession), nil
}
