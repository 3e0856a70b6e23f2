package model

import "time"

// ================ Config ================
type AgentConfig struct {
	MaxSteps     int           `envconfig:"AGENT_MAX_STEPS" default:"8" validate:"gte=1,lte=50"`
	ModelTimeout time.Duration `envconfig:"AGENT_MODEL_TIMEOUT" default:"30s" validate:"gt=0"`
	HistoryTurns int           `envconfig:"AGENT_HISTORY_TURNS" default:"10" validate:"gte=0"`
	StoreName    string        `envconfig:"AGENT_STORE_NAME" default:"FreshCart"`
}

type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
}

// UtilityModelConfig configures the tool-less model used for ingredient
// extraction, direct answers and sanitization.
type UtilityModelConfig struct {
	Model       string  `envconfig:"UTILITY_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"UTILITY_MAX_TOKENS" default:"500"`
	Temperature float32 `envconfig:"UTILITY_TEMPERATURE" default:"0.1"`
}

type EmbeddingConfig struct {
	Provider   string `envconfig:"EMBEDDING_PROVIDER" default:"gemini" validate:"oneof=gemini hash"`
	Model      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	Dimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768" validate:"gte=8"`
	CacheSize  int64  `envconfig:"EMBEDDING_CACHE_SIZE" default:"10000"`
}

type CacheConfig struct {
	Enabled           bool    `envconfig:"CACHE_ENABLED" default:"true"`
	SemanticThreshold float64 `envconfig:"CACHE_SEMANTIC_THRESHOLD" default:"0.9" validate:"gt=0,lte=1"`
	ScopeBySession    bool    `envconfig:"CACHE_SCOPE_BY_SESSION" default:"true"`
	KeyPrefix         string  `envconfig:"CACHE_KEY_PREFIX" default:"semcache"`
}

type SanitizerConfig struct {
	FailurePolicy string        `envconfig:"SANITIZER_FAILURE_POLICY" default:"fail_closed" validate:"oneof=fail_closed fail_open"`
	Timeout       time.Duration `envconfig:"SANITIZER_TIMEOUT" default:"15s"`
}

type MatcherConfig struct {
	MinSimilarity  float64       `envconfig:"MATCHER_MIN_SIMILARITY" default:"0.6" validate:"gte=0,lte=1"`
	MaxConcurrency int           `envconfig:"MATCHER_MAX_CONCURRENCY" default:"6" validate:"gte=1"`
	MaxIngredients int           `envconfig:"MATCHER_MAX_INGREDIENTS" default:"6" validate:"gte=1"`
	ExtractTimeout time.Duration `envconfig:"MATCHER_EXTRACT_TIMEOUT" default:"10s"`
}

type SearchConfig struct {
	DefaultLimit  int     `envconfig:"SEARCH_DEFAULT_LIMIT" default:"8" validate:"gte=1,lte=20"`
	MinSimilarity float64 `envconfig:"SEARCH_MIN_SIMILARITY" default:"0.5" validate:"gte=0,lte=1"`
	FallbackFloor int     `envconfig:"SEARCH_FALLBACK_FLOOR" default:"3" validate:"gte=1"`
}

type CatalogConfig struct {
	// Backend is memory (embedded seed catalog) or redis (pre-ingested RediSearch index).
	Backend     string `envconfig:"CATALOG_BACKEND" default:"memory" validate:"oneof=memory redis"`
	IndexName   string `envconfig:"CATALOG_INDEX" default:"idx:products"`
	KeyPrefix   string `envconfig:"CATALOG_KEY_PREFIX" default:"products:"`
	SeedVectors bool   `envconfig:"CATALOG_SEED_VECTORS" default:"true"`
}

type SessionConfig struct {
	HistoryTTL time.Duration `envconfig:"CHAT_HISTORY_TTL" default:"24h"`
	CartTTL    time.Duration `envconfig:"CART_TTL" default:"24h"`
}
