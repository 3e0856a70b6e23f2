// Package loop runs the bounded tool-calling exchange between the agent model
// and the tool registry.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
	"github.com/grocery-agent-core/server/pkg/telemetry"
)

const (
	// ApologyMessage replaces the answer when the model cannot be reached.
	ApologyMessage = "I apologize, but I'm having trouble with your grocery request right now. Please try asking about recipe ingredients, searching for products, or managing your cart!"

	// BoundExceededMessage replaces the answer when the model keeps asking
	// for tools after its last permitted step.
	BoundExceededMessage = "I couldn't finish that request in one go. Could you ask about one recipe or one product at a time?"

	errorToolMarker = "error"
)

// Dispatcher executes one tool call and always returns a JSON payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, call schema.ToolCall) model.ToolInvocation
}

type Config struct {
	MaxSteps     int
	ModelTimeout time.Duration
	// ModelName selects the pricing used for cost accounting.
	ModelName string
}

// Result is the outcome of one loop run.
type Result struct {
	Content       string
	ToolsUsed     []string
	FoundProducts []model.ProductRef
	// Messages are the turns produced by the run, ending with the final
	// assistant message.
	Messages []*schema.Message
	Outcome  model.LoopOutcome
	Steps    int
	CostUSD  float64
}

type Controller struct {
	chat       einomodel.BaseChatModel
	dispatcher Dispatcher
	cfg        Config
	tracer     trace.Tracer
	outcomes   metric.Int64Counter
	steps      metric.Int64Histogram
}

// NewController builds a loop over chat, which must already have the tool
// set bound.
func NewController(chat einomodel.BaseChatModel, dispatcher Dispatcher, cfg Config) *Controller {
	cfg.MaxSteps = normalizeMaxSteps(cfg.MaxSteps)
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 30 * time.Second
	}
	meter := otel.Meter(telemetry.InstrumentationName)
	outcomes, _ := meter.Int64Counter("agent.loop.outcomes",
		metric.WithDescription("Reasoning loop runs by outcome"),
	)
	steps, _ := meter.Int64Histogram("agent.loop.steps",
		metric.WithDescription("Model invocations per reasoning loop run"),
	)
	return &Controller{
		chat:       chat,
		dispatcher: dispatcher,
		cfg:        cfg,
		tracer:     otel.Tracer(telemetry.InstrumentationName),
		outcomes:   outcomes,
		steps:      steps,
	}
}

// Run exchanges messages with the model until it answers without tool calls
// or the step bound is reached. It never returns an error; failures become a
// fixed fallback answer.
func (c *Controller) Run(ctx context.Context, sessionID string, transcript []*schema.Message) (res *Result) {
	ctx, span := c.tracer.Start(ctx, "agent.loop", trace.WithAttributes(attribute.String("session.id", sessionID)))
	res = &Result{}
	defer func() {
		span.SetAttributes(
			attribute.String("loop.outcome", string(res.Outcome)),
			attribute.Int("loop.steps", res.Steps),
			attribute.StringSlice("loop.tools", res.ToolsUsed),
		)
		span.End()
		attrs := metric.WithAttributes(attribute.String("outcome", string(res.Outcome)))
		c.outcomes.Add(ctx, 1, attrs)
		c.steps.Record(ctx, int64(res.Steps), attrs)
	}()

	working := make([]*schema.Message, len(transcript), len(transcript)+2*c.cfg.MaxSteps+1)
	copy(working, transcript)
	start := len(working)
	callSeq := 0

	for step := 1; step <= c.cfg.MaxSteps; step++ {
		res.Steps = step
		last := step == c.cfg.MaxSteps
		if last {
			working = append(working, schema.SystemMessage(wrapUpNotice(c.cfg.MaxSteps)))
		}

		out, err := c.generate(ctx, working)
		if err != nil {
			span.RecordError(err)
			logx.Error().Err(err).Str("session_id", sessionID).Int("step", step).Msg("Agent model call failed")
			return c.fallback(res, working[start:], model.OutcomeError, ApologyMessage)
		}
		res.CostUSD += c.cost(sessionID, out)

		for i := range out.ToolCalls {
			// some providers omit tool call ids
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				callSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", callSeq)
			}
		}
		working = append(working, out)

		if len(out.ToolCalls) == 0 {
			if strings.TrimSpace(out.Content) == "" {
				logx.Warn().Str("session_id", sessionID).Int("step", step).Msg("Agent model returned an empty answer")
				return c.fallback(res, working[start:len(working)-1], model.OutcomeError, ApologyMessage)
			}
			res.Content = out.Content
			res.Outcome = model.OutcomeTerminal
			res.Messages = append(res.Messages, working[start:]...)
			logx.Debug().Str("session_id", sessionID).Int("steps", step).Strs("tools", res.ToolsUsed).Msg("AI response ready")
			return res
		}

		if last {
			logx.Warn().
				Str("session_id", sessionID).
				Int("max_steps", c.cfg.MaxSteps).
				Int("pending_calls", len(out.ToolCalls)).
				Msg("Step bound reached with tool calls pending")
			// pending calls are dropped, not executed
			return c.fallback(res, working[start:len(working)-1], model.OutcomeBoundExceeded, BoundExceededMessage)
		}

		logx.Debug().Str("session_id", sessionID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		for _, call := range out.ToolCalls {
			inv := c.dispatcher.Dispatch(ctx, sessionID, call)
			res.ToolsUsed = append(res.ToolsUsed, inv.Name)
			working = append(working, schema.ToolMessage(inv.Output, call.ID, schema.WithToolName(call.Function.Name)))
			c.fold(res, inv)
		}
	}

	// unreachable: the last step always returns
	return c.fallback(res, working[start:], model.OutcomeBoundExceeded, BoundExceededMessage)
}

func (c *Controller) generate(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout)
	defer cancel()

	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      "AgentModel",
		Type:      c.cfg.ModelName,
		Component: components.ComponentOfChatModel,
	})
	out, err := c.chat.Generate(ctx, in)
	if err != nil {
		return nil, errx.WrapModel(err)
	}
	if out == nil {
		return nil, errx.ErrEmptyModelOutput
	}
	return out, nil
}

func (c *Controller) cost(sessionID string, out *schema.Message) float64 {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return 0
	}
	usage := out.ResponseMeta.Usage
	inC, outC, total := model.ComputeCost(usage, model.ResolvePricing(c.cfg.ModelName))
	logx.Debug().
		Str("session_id", sessionID).
		Str("model", c.cfg.ModelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", total).
		Msg("LLM usage")
	return total
}

// fold extracts products from a recognised tool payload; the latest result
// that carries products wins.
func (c *Controller) fold(res *Result, inv model.ToolInvocation) {
	tr, err := model.ParseToolResult(inv.Output)
	if err != nil {
		logx.Warn().Err(err).Str("tool", inv.Name).Msg("Tool result is not JSON; no structured data extracted")
		return
	}
	if products := tr.FoundProducts(); len(products) > 0 {
		res.FoundProducts = products
	}
}

func (c *Controller) fallback(res *Result, produced []*schema.Message, outcome model.LoopOutcome, content string) *Result {
	res.Outcome = outcome
	res.Content = content
	res.Messages = append(append(res.Messages, produced...), schema.AssistantMessage(content, nil))
	if outcome == model.OutcomeError {
		res.ToolsUsed = []string{errorToolMarker}
		res.FoundProducts = nil
	}
	return res
}

// IsFallback reports whether content is one of the fixed fallback answers.
func IsFallback(content string) bool {
	return content == ApologyMessage || content == BoundExceededMessage
}
