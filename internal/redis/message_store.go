package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"chat-relay/internal/models"
	"chat-relay/internal/storage"
)

// redisMessageStore 是 storage.MessageStore 接口的 Redis 实现。
// 时间线保存在有序集合中 (score 为微秒时间戳，member 为 ULID)，消息体保存在哈希中。
type redisMessageStore struct {
	client      *redis.Client
	timelineKey string
	messagesKey string
}

// NewRedisMessageStore 创建一个新的 redisMessageStore 实例。
func NewRedisMessageStore(client *redis.Client, keyPrefix string) storage.MessageStore {
	if keyPrefix == "" {
		keyPrefix = "chat"
	}
	return &redisMessageStore{
		client:      client,
		timelineKey: keyPrefix + ":messages:timeline",
		messagesKey: keyPrefix + ":messages:data",
	}
}

// Append 写入消息体与时间线，两步在同一个 MULTI 事务中完成。
func (r *redisMessageStore) Append(ctx context.Context, message *models.Message) (*models.Message, error) {
	stored := message.Clone()
	stored.Document = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}

	// ULID 在同一毫秒内单调递增，同分数成员按字典序即插入顺序
	member := ulid.Make().String()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.messagesKey, member, data)
		pipe.ZAdd(ctx, r.timelineKey, redis.Z{
			Score:  float64(stored.Timestamp.UnixMicro()),
			Member: member,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("写入 Redis 失败: %w", err)
	}
	return stored, nil
}

// ListAll 按时间线顺序读取全部消息。
func (r *redisMessageStore) ListAll(ctx context.Context) ([]*models.Message, error) {
	members, err := r.client.ZRange(ctx, r.timelineKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 时间线失败: %w", err)
	}
	messages := make([]*models.Message, 0, len(members))
	if len(members) == 0 {
		return messages, nil
	}

	values, err := r.client.HMGet(ctx, r.messagesKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 消息失败: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("时间线成员 %s 缺少消息体", members[i])
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("反序列化消息 %s 失败: %w", members[i], err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// Close 关闭 Redis 客户端。
func (r *redisMessageStore) Close() error {
	return r.client.Close()
}
