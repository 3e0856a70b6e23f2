package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/grocery-agent-core/server/internal/agent/graph/conversations"
	"github.com/grocery-agent-core/server/internal/agent/graph/nodes"
	"github.com/grocery-agent-core/server/internal/agent/graph/observers"
	"github.com/grocery-agent-core/server/internal/agent/graph/prompts"
	"github.com/grocery-agent-core/server/internal/agent/graph/tools"
	"github.com/grocery-agent-core/server/internal/agent/loop"
	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// DefaultChatID is used when a request does not name a chat.
const DefaultChatID = "default"

// Runner executes the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResult, error)
	EndSession(ctx context.Context, sessionID string) (*SessionTeardown, error)
}

// CacheGateway is the semantic cache as seen by the graph.
type CacheGateway interface {
	nodes.CacheGate
	Invalidate(ctx context.Context, sessionAttr string) (int, error)
}

// CartClearer empties a session cart.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) (int, error)
}

// SessionTeardown reports what EndSession removed.
type SessionTeardown struct {
	CacheEntries int `json:"cacheEntries"`
	CartItems    int `json:"cartItems"`
	Chats        int `json:"chats"`
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	MessagesManager *conversations.MessagesManager
	Loop            nodes.LoopRunner
	// Cache may be nil, which disables lookups and writes.
	Cache     CacheGateway
	Sanitizer nodes.PairSanitizer
	Cart      CartClearer
	StoreName string
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.QueryResult]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.QueryResult]
	config   *GraphConfig
	validate *validator.Validate
}

// NewRunner builds the graph and wraps it in a Runner.
func NewRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Agent graph built successfully")
	return &graphRunner{runnable: runnable, config: config, validate: validator.New()}, nil
}

// Invoke answers one user message. Only malformed input yields an error; any
// failure inside the graph becomes the apology answer.
func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResult, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.ChatID = strings.TrimSpace(in.ChatID)
	if in.ChatID == "" {
		in.ChatID = DefaultChatID
	}
	if strings.TrimSpace(in.Message) == "" {
		in.Message = "" // whitespace only counts as missing
	}
	if err := r.validate.Struct(in); err != nil {
		return nil, errx.New(fmt.Errorf("%w: %v", errx.ErrInvalidQueryInput, err), http.StatusBadRequest, "sessionId and message are required")
	}

	requestID := uuid.NewString()
	start := time.Now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil || out == nil {
		logx.Error().Err(err).Str("request_id", requestID).Str("session_id", in.SessionID).Msg("Agent graph failed")
		return &model.QueryResult{
			Content:     loop.ApologyMessage,
			CacheStatus: model.CacheMiss,
			ToolsUsed:   []string{"error"},
		}, nil
	}

	logx.Info().
		Str("request_id", requestID).
		Str("session_id", in.SessionID).
		Str("chat_id", in.ChatID).
		Str("cache_status", string(out.CacheStatus)).
		Strs("tools", out.ToolsUsed).
		Float64("cost_usd", out.CostUSD).
		Dur("elapsed", time.Since(start)).
		Msg("Query answered")
	return out, nil
}

// EndSession removes everything stored for a session. Every step runs even
// when an earlier one fails.
func (r *graphRunner) EndSession(ctx context.Context, sessionID string) (*SessionTeardown, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errx.New(errx.ErrInvalidQueryInput, http.StatusBadRequest, "sessionId is required")
	}

	var (
		out  SessionTeardown
		errs []error
		err  error
	)
	if r.config.Cache != nil {
		if out.CacheEntries, err = r.config.Cache.Invalidate(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	if r.config.Cart != nil {
		if out.CartItems, err = r.config.Cart.Clear(ctx, sessionID); err != nil {
			errs = append(errs, fmt.Errorf("clear cart: %w", err))
		}
	}
	if out.Chats, err = r.config.MessagesManager.ClearSession(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("clear chat history: %w", err))
	}

	logx.Info().
		Str("session_id", sessionID).
		Int("cache_entries", out.CacheEntries).
		Int("cart_items", out.CartItems).
		Int("chats", out.Chats).
		Msg("Session ended")
	return &out, errors.Join(errs...)
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.QueryResult], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Loop == nil {
		return nil, fmt.Errorf("reasoning loop is nil")
	}
	if config.Cache != nil && config.Sanitizer == nil {
		return nil, fmt.Errorf("a sanitizer is required when the cache is enabled")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.QueryResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.ConversationState {
				return &model.ConversationState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	var gate nodes.CacheGate = b.config.Cache

	vars := prompts.AgentVars{
		StoreName:  b.config.StoreName,
		RecipeTool: tools.ToolRecipeIngredients.String(),
		SearchTool: tools.ToolSearchProducts.String(),
		AddTool:    tools.ToolAddToCart.String(),
		ViewTool:   tools.ToolViewCart.String(),
		ClearTool:  tools.ToolClearCart.String(),
		AnswerTool: tools.ToolDirectAnswer.String(),
	}

	return errors.Join(
		b.graph.AddLambdaNode(nodes.NodeInputConverter,
			nodes.NewInputConverterNode(b.config.MessagesManager),
			compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
		),
		b.graph.AddLambdaNode(nodes.NodeCacheCheck, nodes.NewCacheCheckNode(gate)),
		b.graph.AddLambdaNode(nodes.NodeReasoningLoop,
			nodes.NewReasoningLoopNode(b.config.MessagesManager, b.config.Loop, vars),
		),
		b.graph.AddLambdaNode(nodes.NodeSanitizeAndCache, nodes.NewSanitizeAndCacheNode(gate, b.config.Sanitizer)),
		b.graph.AddLambdaNode(nodes.NodePersistHistory, nodes.NewPersistHistoryNode(b.config.MessagesManager)),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeCacheCheck},
		{nodes.NodeReasoningLoop, nodes.NodeSanitizeAndCache},
		{nodes.NodeSanitizeAndCache, nodes.NodePersistHistory},
		{nodes.NodePersistHistory, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	cacheBranch := compose.NewGraphBranch(
		nodes.NewCacheBranchCondition(),
		map[string]bool{
			nodes.NodePersistHistory: true,
			nodes.NodeReasoningLoop:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeCacheCheck, cacheBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding cache branch")
		return fmt.Errorf("error adding cache branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.QueryResult], error) {
	// the graph is acyclic; the reasoning loop bounds itself
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("GroceryAgent"),
		compose.WithMaxRunSteps(10),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
