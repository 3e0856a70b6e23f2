package cache

import (
	"strings"
	"time"

	"github.com/grocery-agent-core/server/internal/agent/graph/tools"
)

// TTL tiers. Zero means the response must never be cached.
const (
	NoCache      time.Duration = 0
	RecipeTTL                  = 24 * time.Hour
	KnowledgeTTL               = 12 * time.Hour
	DefaultTTL                 = 6 * time.Hour
	PriceTTL                   = 2 * time.Hour
)

func isTool(name tools.ToolName) func(tools.ToolName) bool {
	return func(n tools.ToolName) bool { return n == name }
}

// ttlRules are evaluated in order; the first rule matching any used tool
// wins. Cart reads and writes are personal and never cached.
var ttlRules = []struct {
	match func(tools.ToolName) bool
	ttl   time.Duration
}{
	{match: func(n tools.ToolName) bool { return n.MutatesCart() || n == tools.ToolViewCart }, ttl: NoCache},
	{match: isTool(tools.ToolRecipeIngredients), ttl: RecipeTTL},
	{match: isTool(tools.ToolDirectAnswer), ttl: KnowledgeTTL},
	{match: isTool(tools.ToolSearchProducts), ttl: PriceTTL},
}

// DecideTTL maps the tools used while answering to a cache TTL. Names outside
// the tool set are ignored.
func DecideTTL(toolsUsed []string) time.Duration {
	used := make([]tools.ToolName, 0, len(toolsUsed))
	for _, t := range toolsUsed {
		if n, ok := tools.ParseToolName(t); ok {
			used = append(used, n)
		}
	}
	for _, rule := range ttlRules {
		for _, n := range used {
			if rule.match(n) {
				return rule.ttl
			}
		}
	}
	return DefaultTTL
}

var queryRules = []struct {
	keywords []string
	ttl      time.Duration
}{
	{keywords: []string{"cart", "add to", "remove"}, ttl: NoCache},
	{keywords: []string{"recipe", "ingredients", "how to make", "need for", "to make"}, ttl: RecipeTTL},
	{keywords: []string{"price", "cost", "cheap"}, ttl: PriceTTL},
}

// ClassifyQueryTTL is the text heuristic for answers produced without any
// tracked tool. It matches substrings and can misclassify.
func ClassifyQueryTTL(query string) time.Duration {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return DefaultTTL
	}
	for _, rule := range queryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.ttl
			}
		}
	}
	return DefaultTTL
}

// ResolveTTL uses the tool decision when tools were tracked and the query
// classifier otherwise.
func ResolveTTL(toolsUsed []string, query string) time.Duration {
	if len(toolsUsed) > 0 {
		return DecideTTL(toolsUsed)
	}
	return ClassifyQueryTTL(query)
}
