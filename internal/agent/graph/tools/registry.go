// Package tools is the closed tool set offered to the reasoning loop and the
// dispatcher that executes model tool calls against it.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/service"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
	"github.com/grocery-agent-core/server/pkg/telemetry"
)

// ProductSearcher is the catalog search used by search_products.
type ProductSearcher interface {
	Search(ctx context.Context, q model.SearchQuery) (*model.SearchOutcome, error)
}

// CartOperator is the cart surface used by the cart tools.
type CartOperator interface {
	AddItems(ctx context.Context, sessionID string, productIDs []string, quantities []int) (*service.AddResult, error)
	View(ctx context.Context, sessionID string) ([]model.CartItem, model.CartSummary, error)
	Clear(ctx context.Context, sessionID string) (int, error)
}

// IngredientMatcher resolves ingredient names to suggested products, one
// result per name in input order.
type IngredientMatcher interface {
	Match(ctx context.Context, names []string) []model.IngredientMatch
}

// Deps are the collaborators the tools run against.
type Deps struct {
	Products ProductSearcher
	Cart     CartOperator
	Matcher  IngredientMatcher
	// Utility is the tool-less model used for extraction and direct answers.
	Utility       einomodel.BaseChatModel
	Matching      model.MatcherConfig
	AnswerTimeout time.Duration
}

// Registry holds one invokable tool per ToolName.
type Registry struct {
	deps     Deps
	validate *validator.Validate
	tools    map[ToolName]tool.InvokableTool
	tracer   trace.Tracer
}

func NewRegistry(deps Deps) (*Registry, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("tool registry: product searcher is required")
	case deps.Cart == nil:
		return nil, errors.New("tool registry: cart operator is required")
	case deps.Matcher == nil:
		return nil, errors.New("tool registry: ingredient matcher is required")
	case deps.Utility == nil:
		return nil, errors.New("tool registry: utility model is required")
	}
	if deps.Matching.MaxIngredients <= 0 {
		deps.Matching.MaxIngredients = 6
	}
	if deps.Matching.ExtractTimeout <= 0 {
		deps.Matching.ExtractTimeout = 10 * time.Second
	}
	if deps.AnswerTimeout <= 0 {
		deps.AnswerTimeout = 30 * time.Second
	}

	r := &Registry{
		deps:     deps,
		validate: validator.New(),
		tracer:   otel.Tracer(telemetry.InstrumentationName),
	}
	r.tools = map[ToolName]tool.InvokableTool{
		ToolRecipeIngredients: r.newRecipeTool(),
		ToolSearchProducts:    r.newSearchTool(),
		ToolAddToCart:         r.newAddToCartTool(),
		ToolViewCart:          r.newViewCartTool(),
		ToolClearCart:         r.newClearCartTool(),
		ToolDirectAnswer:      r.newAnswerTool(),
	}
	return r, nil
}

// ToolInfos returns the tool declarations to bind to the agent model. Session
// ids never appear in them; they are injected at dispatch.
func (r *Registry) ToolInfos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(AllTools))
	for _, name := range AllTools {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Dispatch executes one model tool call. It never fails: unknown tools, bad
// arguments, tool errors and panics become an error payload the model can read.
func (r *Registry) Dispatch(ctx context.Context, sessionID string, call schema.ToolCall) (inv model.ToolInvocation) {
	name := call.Function.Name
	inv.Name = name

	ctx, span := r.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(attribute.String("tool.name", name)))
	defer func() {
		if inv.Err != nil {
			span.RecordError(inv.Err)
			span.SetStatus(codes.Error, inv.Err.Error())
		}
		span.End()
	}()

	tn, ok := ParseToolName(name)
	if !ok {
		inv.Err = fmt.Errorf("%w: %q", errx.ErrUnknownTool, name)
		inv.Output = model.ErrorResult(name, "unknown_tool", "Unknown tool requested")
		logx.Warn().Str("tool", name).Str("session_id", sessionID).Msg("Model requested unknown tool")
		return inv
	}
	inv.Known = true

	args, err := prepareArgs(tn, call.Function.Arguments, sessionID)
	if err != nil {
		inv.Err = err
		inv.Output = model.ErrorResult(name, "invalid_arguments", "Tool arguments were not valid JSON")
		return inv
	}

	out, err := r.invoke(ctx, tn, args)
	if err != nil {
		inv.Err = err
		code, msg := "tool_failed", fmt.Sprintf("The %s tool failed. Try again or use a different approach.", name)
		if errors.Is(err, errx.ErrInvalidArguments) {
			code, msg = "invalid_arguments", err.Error()
		}
		inv.Output = model.ErrorResult(name, code, msg)
		logx.Warn().Err(err).Str("tool", name).Str("session_id", sessionID).Msg("Tool invocation failed")
		return inv
	}
	inv.Output = out
	return inv
}

func (r *Registry) invoke(ctx context.Context, name ToolName, args string) (out string, err error) {
	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      name.String(),
		Type:      "GroceryTool",
		Component: components.ComponentOfTool,
	})
	ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})

	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("tool %s panic: %v", name, rec)
		}
		if err != nil {
			einocb.OnError(ctx, err)
			return
		}
		einocb.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	}()

	return r.tools[name].InvokableRun(ctx, args)
}
