package storage

import (
	"context"
	"sync"

	"chat-relay/internal/models"
)

// MessageStore 定义了消息的追加式持久化接口。
type MessageStore interface {
	// Append 插入一条已规范化的消息，返回存储后的副本。
	Append(ctx context.Context, message *models.Message) (*models.Message, error)
	// ListAll 按 timestamp 升序返回全部消息，时间戳相同时按插入顺序。
	// 返回的是一次性读取的快照，不是实时游标。
	ListAll(ctx context.Context) ([]*models.Message, error)
	// Close 释放底层连接。
	Close() error
}

// memoryMessageStore 是基于进程内切片的 MessageStore 实现，用于测试与本地开发。
type memoryMessageStore struct {
	mu       sync.RWMutex
	messages []*models.Message
}

// NewMemoryMessageStore 创建一个新的内存 MessageStore。
func NewMemoryMessageStore() MessageStore {
	return &memoryMessageStore{}
}

func (s *memoryMessageStore) Append(ctx context.Context, message *models.Message) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := message.Clone()
	stored.Document = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	// 调用方在并发追加时可能以与时间戳不同的顺序到达，插入时保持有序
	i := len(s.messages)
	for i > 0 && s.messages[i-1].Timestamp.After(stored.Timestamp) {
		i--
	}
	s.messages = append(s.messages, nil)
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = stored
	return stored.Clone(), nil
}

func (s *memoryMessageStore) ListAll(ctx context.Context) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out, nil
}

func (s *memoryMessageStore) Close() error { return nil }
