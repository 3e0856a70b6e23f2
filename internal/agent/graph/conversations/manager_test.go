package conversations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/repo"
)

func newManager(t *testing.T, turns int) *MessagesManager {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewMessagesManager(repo.NewRedisChatRepository(rdb, time.Hour), model.AgentConfig{HistoryTurns: turns})
}

func TestSaveAndLoadHistory(t *testing.T) {
	mm := newManager(t, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, mm.SaveTurn(ctx, "alice_1", "chat-1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}
	require.NoError(t, mm.SaveTurn(ctx, "alice_1", "chat-2", "other chat", "other answer"))

	got, err := mm.LoadPriorHistory(ctx, "alice_1", "chat-1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "q1", got[0].Content)
	assert.Equal(t, schema.User, got[0].Role)
	assert.Equal(t, "a2", got[3].Content)
	assert.Equal(t, schema.Assistant, got[3].Role)

	n, err := mm.ClearSession(ctx, "alice_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = mm.LoadPriorHistory(ctx, "alice_1", "chat-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildTranscript(t *testing.T) {
	mm := NewMessagesManager(nil, model.AgentConfig{HistoryTurns: 2})
	history := []*schema.Message{
		schema.UserMessage("old question"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "1"}}),
		schema.ToolMessage(`{"type":"product_search"}`, "1"),
		schema.AssistantMessage("old answer", nil),
		nil,
		schema.UserMessage("recent question"),
		schema.AssistantMessage("recent answer", nil),
	}

	got := mm.BuildTranscript("system prompt", history, "new message")
	require.Len(t, got, 4)
	assert.Equal(t, schema.System, got[0].Role)
	assert.Equal(t, "recent question", got[1].Content)
	assert.Equal(t, "recent answer", got[2].Content)
	assert.Equal(t, schema.User, got[3].Role)
	assert.Equal(t, "new message", got[3].Content)
}

func TestTrimTail(t *testing.T) {
	msgs := []*schema.Message{schema.UserMessage("a"), schema.UserMessage("b"), schema.UserMessage("c")}
	assert.Len(t, trimTail(msgs, 5), 3)
	assert.Equal(t, "c", trimTail(msgs, 1)[0].Content)
	assert.Empty(t, trimTail(msgs, 0))
}
