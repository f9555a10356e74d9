// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"portfolio-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// historyTTL 是会话历史在 Redis 中的保留时间。
const historyTTL = 7 * 24 * time.Hour

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	AppendConversationHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient redis.Cmdable
	limit       int
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例，每个会话最多保留 limit 条消息。
func NewConversationRepository(redisClient redis.Cmdable, limit int) ConversationRepository {
	if limit <= 0 {
		limit = 20
	}
	return &redisConversationRepository{redisClient: redisClient, limit: limit}
}

// 每个会话是一个 Redis 列表，每个元素是一条 JSON 编码的消息。
func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

// GetConversationHistory 从 Redis 获取对话历史记录，按时间先后排列。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AppendConversationHistory 追加消息并裁剪到最近 limit 条，同时刷新过期时间。
// 三条命令在同一个 MULTI/EXEC 中执行，并发追加同一会话不会丢消息。
func (r *redisConversationRepository) AppendConversationHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	items := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation history: %w", err)
		}
		items = append(items, data)
	}

	key := conversationKey(sessionID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, items...)
		pipe.LTrim(ctx, key, int64(-r.limit), -1)
		pipe.Expire(ctx, key, historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}
