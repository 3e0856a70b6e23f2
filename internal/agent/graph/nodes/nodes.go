package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/grocery-agent-core/server/internal/agent/cache"
	"github.com/grocery-agent-core/server/internal/agent/graph/conversations"
	"github.com/grocery-agent-core/server/internal/agent/graph/prompts"
	"github.com/grocery-agent-core/server/internal/agent/loop"
	"github.com/grocery-agent-core/server/internal/agent/model"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// CacheGate is the part of the cache gateway the nodes use.
type CacheGate interface {
	Lookup(ctx context.Context, query, sessionAttr string) (string, bool)
	Write(ctx context.Context, query, response string, ttl time.Duration, sessionAttr string) error
}

// PairSanitizer cleans a query and its response before they are cached.
type PairSanitizer interface {
	SanitizePair(ctx context.Context, query, response string) (cleanQuery, cleanResponse string, ok bool)
}

// LoopRunner runs the bounded reasoning loop over a transcript.
type LoopRunner interface {
	Run(ctx context.Context, sessionID string, transcript []*schema.Message) *loop.Result
}

// NewInputConverterPreHandler seeds the request state from the input.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.ConversationState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.ConversationState) (model.QueryInput, error) {
		*s = model.ConversationState{
			SessionID: in.SessionID,
			ChatID:    in.ChatID,
			Query:     in.Message,
		}
		return in, nil
	}
}

// NewInputConverterNode loads prior history when the caller did not supply
// it and hands the query to the cache check.
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (string, error) {
		history := in.PriorHistory
		if history == nil {
			loaded, err := mm.LoadPriorHistory(ctx, in.SessionID, in.ChatID)
			if err != nil {
				logx.Warn().Err(err).Str("session_id", in.SessionID).Str("chat_id", in.ChatID).
					Msg("Could not load chat history; continuing without it")
			}
			history = loaded
		}

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.Messages = history
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		return in.Message, nil
	})
}

// NewCacheCheckNode consults the semantic cache. A nil gate always misses.
func NewCacheCheckNode(gate CacheGate) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, query string) (model.CacheStatus, error) {
		var sessionID string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			sessionID = s.SessionID
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		status := model.CacheMiss
		var cached string
		if gate != nil {
			if resp, ok := gate.Lookup(ctx, query, sessionID); ok {
				status, cached = model.CacheHit, resp
			}
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.CacheStatus = status
			if status == model.CacheHit {
				s.Result = cached
				s.Outcome = model.OutcomeTerminal
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		return status, nil
	})
}

// NewCacheBranchCondition routes hits straight to history persistence.
func NewCacheBranchCondition() func(context.Context, model.CacheStatus) (string, error) {
	return func(ctx context.Context, status model.CacheStatus) (string, error) {
		if status == model.CacheHit {
			logx.Debug().Msg("Semantic cache hit - returning previous response")
			return NodePersistHistory, nil
		}
		logx.Debug().Msg("Semantic cache miss - proceeding to agent")
		return NodeReasoningLoop, nil
	}
}

// NewReasoningLoopNode renders the agent system prompt, assembles the
// transcript and runs the loop.
func NewReasoningLoopNode(mm *conversations.MessagesManager, runner LoopRunner, vars prompts.AgentVars) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.CacheStatus) (model.LoopOutcome, error) {
		var (
			sessionID, query string
			history          []*schema.Message
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			sessionID, query, history = s.SessionID, s.Query, s.Messages
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderAgentSystem(ctx, vars)
		if err != nil {
			return "", fmt.Errorf("render agent system prompt: %w", err)
		}

		transcript := mm.BuildTranscript(systemPrompt, history, query)
		res := runner.Run(ctx, sessionID, transcript)

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			messages := make([]*schema.Message, 0, len(transcript)-1+len(res.Messages))
			messages = append(messages, transcript[1:]...)
			s.Messages = append(messages, res.Messages...)
			s.Result = res.Content
			s.ToolsUsed = res.ToolsUsed
			s.FoundProducts = res.FoundProducts
			s.Outcome = res.Outcome
			s.CostUSD += res.CostUSD
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		return res.Outcome, nil
	})
}

// NewSanitizeAndCacheNode writes a sanitized copy of the answer to the cache
// when the run produced a cacheable answer and the TTL policy allows it.
// Nothing here fails the request.
func NewSanitizeAndCacheNode(gate CacheGate, sanitizer PairSanitizer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, outcome model.LoopOutcome) (model.CacheStatus, error) {
		var (
			cacheable                 bool
			sessionID, query, content string
			toolsUsed                 []string
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			cacheable = s.Cacheable()
			sessionID, query, content, toolsUsed = s.SessionID, s.Query, s.Result, s.ToolsUsed
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if gate == nil {
			return model.CacheMiss, nil
		}
		if !cacheable || loop.IsFallback(content) {
			logx.Debug().Str("session_id", sessionID).Str("outcome", string(outcome)).Msg("Answer not cacheable; skipping cache write")
			return model.CacheMiss, nil
		}

		ttl := cache.ResolveTTL(toolsUsed, query)
		if ttl <= 0 {
			logx.Debug().Str("session_id", sessionID).Strs("tools", toolsUsed).Msg("Skipping cache for personal/dynamic operations")
			return model.CacheMiss, nil
		}

		cleanQuery, cleanContent, ok := sanitizer.SanitizePair(ctx, query, content)
		if !ok || cleanQuery == "" || cleanContent == "" {
			return model.CacheMiss, nil
		}

		if err := gate.Write(ctx, cleanQuery, cleanContent, ttl, sessionID); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("Cache write failed")
			return model.CacheMiss, nil
		}
		logx.Debug().
			Str("session_id", sessionID).
			Dur("ttl", ttl).
			Msg("Cached sanitized response")
		return model.CacheMiss, nil
	})
}

// NewPersistHistoryNode saves the turn and assembles the public result.
// Persistence failures are logged only.
func NewPersistHistoryNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, status model.CacheStatus) (*model.QueryResult, error) {
		var s model.ConversationState
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
			s = *state
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := mm.SaveTurn(ctx, s.SessionID, s.ChatID, s.Query, s.Result); err != nil {
			logx.Error().Err(err).Str("session_id", s.SessionID).Str("chat_id", s.ChatID).Msg("Failed to save chat history")
		}

		toolsUsed := make([]string, 0, len(s.ToolsUsed))
		toolsUsed = append(toolsUsed, s.ToolsUsed...)
		return &model.QueryResult{
			Content:          s.Result,
			IsCachedResponse: status == model.CacheHit,
			CacheStatus:      s.CacheStatus,
			ToolsUsed:        toolsUsed,
			FoundProducts:    s.FoundProducts,
			CostUSD:          s.CostUSD,
		}, nil
	})
}
