package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

type RedisChatRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisChatRepository(rdb redis.Cmdable, ttl time.Duration) *RedisChatRepository {
	return &RedisChatRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisChatRepository) chatKey(sessionID, chatID string) string {
	return fmt.Sprintf("chat:%s:%s:messages", sessionID, chatID)
}

func (r *RedisChatRepository) sessionPattern(sessionID string) string {
	return fmt.Sprintf("chat:%s:*:messages", sessionID)
}

func (r *RedisChatRepository) AddMessages(ctx context.Context, sessionID, chatID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		rows = append(rows, b)
	}
	key := r.chatKey(sessionID, chatID)

	// append messages
	if err := r.rdb.RPush(ctx, key, rows...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push messages to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on chat key")
		}
	}
	return nil
}

func (r *RedisChatRepository) LoadHistory(ctx context.Context, sessionID, chatID string) (*model.ChatHistory, error) {
	key := r.chatKey(sessionID, chatID)
	history := &model.ChatHistory{SessionID: sessionID, ChatID: chatID, Messages: []*schema.Message{}}

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return history, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load chat history from redis")
		return nil, errx.WrapRedis(err)
	}

	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		history.Messages = append(history.Messages, &m)
	}
	return history, nil
}

func (r *RedisChatRepository) ClearSession(ctx context.Context, sessionID string) (int, error) {
	pattern := r.sessionPattern(sessionID)
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logx.Error().Err(err).Str("pattern", pattern).Msg("failed to scan chat keys")
		return 0, errx.WrapRedis(err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete chat history from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

func (r *RedisChatRepository) GetMessageCount(ctx context.Context, sessionID, chatID string) (int, error) {
	key := r.chatKey(sessionID, chatID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ChatRepository = (*RedisChatRepository)(nil)
