package model

import (
	"github.com/cloudwego/eino/schema"
)

// CacheStatus records how the cache gate resolved a request.
type CacheStatus string

const (
	CacheUnset CacheStatus = ""
	CacheHit   CacheStatus = "hit"
	CacheMiss  CacheStatus = "miss"
)

// LoopOutcome is the terminal state of one reasoning loop run.
type LoopOutcome string

const (
	OutcomeTerminal      LoopOutcome = "terminal"
	OutcomeBoundExceeded LoopOutcome = "bound_exceeded"
	OutcomeError         LoopOutcome = "error"
)

// ConversationState is the request-scoped state carried through the graph.
// It is created by the input converter and discarded after the caller reads
// the QueryResult; nothing else holds a reference to it.
type ConversationState struct {
	SessionID string
	ChatID    string
	Query     string

	// Messages is the prior history followed by the new user turn and, after
	// the loop, the assistant and tool turns it produced.
	Messages []*schema.Message

	CacheStatus   CacheStatus
	Result        string
	ToolsUsed     []string
	FoundProducts []ProductRef
	Outcome       LoopOutcome

	// Accumulated LLM cost (USD) across model invocations for this query
	CostUSD float64
}

// Cacheable reports whether the loop produced an answer worth caching.
func (s *ConversationState) Cacheable() bool {
	return s.CacheStatus == CacheMiss && s.Outcome == OutcomeTerminal && s.Result != ""
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	ChatID    string `json:"chatId" validate:"max=128"`
	Message   string `json:"message" validate:"required,max=8000"`

	// PriorHistory is loaded from chat storage when nil.
	PriorHistory []*schema.Message `json:"priorHistory,omitempty"`
}

// QueryResult is the public output of one orchestration run.
type QueryResult struct {
	Content          string       `json:"content"`
	IsCachedResponse bool         `json:"isCachedResponse"`
	CacheStatus      CacheStatus  `json:"cacheStatus"`
	ToolsUsed        []string     `json:"toolsUsed"`
	FoundProducts    []ProductRef `json:"foundProducts,omitempty"`
	CostUSD          float64      `json:"costUsd"`
}
