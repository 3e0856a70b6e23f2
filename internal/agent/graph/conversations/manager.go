package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/grocery-agent-core/server/internal/agent/model"
)

type MessagesManager struct {
	chatRepo     model.ChatRepository
	historyTurns int
}

func NewMessagesManager(chatRepo model.ChatRepository, config model.AgentConfig) *MessagesManager {
	return &MessagesManager{
		chatRepo:     chatRepo,
		historyTurns: config.HistoryTurns,
	}
}

// LoadPriorHistory returns the most recent user and assistant messages of a
// chat, oldest first.
func (cm *MessagesManager) LoadPriorHistory(ctx context.Context, sessionID, chatID string) ([]*schema.Message, error) {
	history, err := cm.chatRepo.LoadHistory(ctx, sessionID, chatID)
	if err != nil {
		return nil, err
	}
	return trimTail(conversational(history.Messages), cm.historyTurns), nil
}

// BuildTranscript assembles the working transcript for the reasoning loop.
func (cm *MessagesManager) BuildTranscript(systemPrompt string, history []*schema.Message, message string) []*schema.Message {
	recent := trimTail(conversational(history), cm.historyTurns)
	messages := make([]*schema.Message, 0, len(recent)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, recent...)
	messages = append(messages, schema.UserMessage(message))
	return messages
}

// SaveTurn appends the user message and the assistant answer to the chat.
func (cm *MessagesManager) SaveTurn(ctx context.Context, sessionID, chatID, userMessage, assistantMessage string) error {
	return cm.chatRepo.AddMessages(ctx, sessionID, chatID,
		schema.UserMessage(userMessage),
		schema.AssistantMessage(assistantMessage, nil),
	)
}

// ClearSession deletes every chat of a session.
func (cm *MessagesManager) ClearSession(ctx context.Context, sessionID string) (int, error) {
	return cm.chatRepo.ClearSession(ctx, sessionID)
}

// ====================== Helper function ======================

// conversational keeps user and assistant messages with content; tool traffic
// and system prompts are never replayed.
func conversational(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if msg.Role == schema.User || (msg.Role == schema.Assistant && len(msg.ToolCalls) == 0) {
			out = append(out, msg)
		}
	}
	return out
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 {
		return []*schema.Message{}
	}
	if len(messages) > maxTurns {
		messages = messages[len(messages)-maxTurns:]
	}
	result := make([]*schema.Message, len(messages))
	copy(result, messages)
	return result
}
