// Package testutil holds scripted fakes of the eino components used in tests.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel is a scripted eino chat model. Respond takes precedence; otherwise
// Replies are returned in order and the last one repeats.
type ChatModel struct {
	Respond func(ctx context.Context, in []*schema.Message) (*schema.Message, error)
	Replies []*schema.Message
	Err     error

	mu    sync.Mutex
	calls [][]*schema.Message
	next  int
	tools []*schema.ToolInfo
}

func (m *ChatModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	cp := make([]*schema.Message, len(in))
	copy(cp, in)
	m.calls = append(m.calls, cp)
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(ctx, in)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Replies) == 0 {
		return nil, errors.New("chat model: no scripted reply")
	}
	i := min(m.next, len(m.Replies)-1)
	m.next++
	return m.Replies[i], nil
}

func (m *ChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

// Calls returns the transcripts passed to Generate, in call order.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *ChatModel) Tools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}

// ToolCallMessage is an assistant turn requesting the given calls.
func ToolCallMessage(calls ...schema.ToolCall) *schema.Message {
	return schema.AssistantMessage("", calls)
}

// Call builds a function tool call.
func Call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}
}

// LastUserText returns the content of the last user message in in.
func LastUserText(in []*schema.Message) string {
	for i := len(in) - 1; i >= 0; i-- {
		if in[i] != nil && in[i].Role == schema.User {
			return in[i].Content
		}
	}
	return ""
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)
