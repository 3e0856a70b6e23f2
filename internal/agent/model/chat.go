package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ChatRepository interface {
	// AddMessages appends messages to the history of one chat within a session
	AddMessages(ctx context.Context, sessionID, chatID string, messages ...*schema.Message) error

	// LoadHistory retrieves the history of one chat
	LoadHistory(ctx context.Context, sessionID, chatID string) (*ChatHistory, error)

	// ClearSession removes every chat history owned by a session and returns how many chats were removed
	ClearSession(ctx context.Context, sessionID string) (int, error)

	// GetMessageCount returns the number of messages in a chat
	GetMessageCount(ctx context.Context, sessionID, chatID string) (int, error)
}

// ChatHistory represents loaded chat data with metadata.
type ChatHistory struct {
	SessionID string
	ChatID    string
	Messages  []*schema.Message
}
