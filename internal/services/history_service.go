package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/imtypes"
	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
	"chat-relay/internal/storage"
)

// HistoryService 提供按时间升序的完整历史消息。
type HistoryService interface {
	// History 读取存储中的全部消息快照。
	History(ctx context.Context) ([]*models.Message, error)
	// SendHistory 将历史仅发送给请求的连接，读取失败时向其发送 error 事件。
	SendHistory(ctx context.Context, connectionID string) error
}

type historyService struct {
	store storage.MessageStore
	hub   Broadcaster
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(store storage.MessageStore, hub Broadcaster) HistoryService {
	return &historyService{store: store, hub: hub}
}

func (s *historyService) History(ctx context.Context) ([]*models.Message, error) {
	start := time.Now()
	messages, err := s.store.ListAll(ctx)
	metrics.StoreDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HistoryRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: 读取历史失败: %v", ErrPersistence, err)
	}
	metrics.HistoryRequests.WithLabelValues("ok").Inc()
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

func (s *historyService) SendHistory(ctx context.Context, connectionID string) error {
	messages, err := s.History(ctx)
	if err != nil {
		log.Warn().Err(err).Str("conn", connectionID).Msg("历史请求失败")
		if payload, encErr := imtypes.Encode(imtypes.EventError, imtypes.ErrorPayload{Message: err.Error()}); encErr == nil {
			s.hub.SendTo(connectionID, payload)
		}
		return err
	}

	payload, err := imtypes.Encode(imtypes.EventHistory, messages)
	if err != nil {
		return err
	}
	if !s.hub.SendTo(connectionID, payload) {
		log.Debug().Str("conn", connectionID).Msg("请求者已断开，丢弃历史")
	}
	return nil
}
