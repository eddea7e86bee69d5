package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	appKafka "chat-relay/internal/kafka"
	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
	"chat-relay/internal/storage"
)

const (
	// publishTimeout bounds the wait for a Kafka delivery report.
	publishTimeout = 5 * time.Second
	// publishQueueSize 是等待发布到 Kafka 的消息上限，队列满时丢弃并记录日志。
	publishQueueSize = 1024
)

// Broadcaster 是连接注册表对消息管道暴露的能力。
// 两个方法都是尽力而为：已关闭的连接被静默跳过。
type Broadcaster interface {
	BroadcastExcept(originID string, payload []byte)
	SendTo(connectionID string, payload []byte) bool
}

// MessageService 定义了消息接收与扇出管道。
type MessageService interface {
	// HandleInbound 处理来自 connectionID 的一条消息：
	// 校验 -> 打时间戳 -> (媒体解析) -> 持久化 -> 广播给其他连接 -> 回执发送者。
	// 任一步失败时只向发送者发送一次 error 事件，并返回包装了
	// ErrValidation / ErrMediaUpload / ErrPersistence 的错误。
	HandleInbound(ctx context.Context, connectionID string, input *models.Message) (*models.Message, error)
	// Close 停止接收新的 Kafka 发布，并等待已排队的消息发布完成。
	Close()
}

// messageService 是 MessageService 的实现。
type messageService struct {
	store    storage.MessageStore
	media    MediaResolver
	hub      Broadcaster
	producer appKafka.MessageProducer // 可为 nil
	topic    string
	clock    *monotonicClock

	// Kafka 发布在独立的 goroutine 中进行，不阻塞连接的读循环
	queueMu  sync.RWMutex
	queue    chan *models.Message
	closed   bool
	workerWG sync.WaitGroup
}

// NewMessageService 创建一个新的 MessageService 实例。
// producer 为 nil 时不向 Kafka 发布已持久化的消息。
func NewMessageService(store storage.MessageStore, media MediaResolver, hub Broadcaster, producer appKafka.MessageProducer, cfg config.Config) MessageService {
	s := &messageService{
		store:    store,
		media:    media,
		hub:      hub,
		producer: producer,
		topic:    cfg.Kafka.MessagesTopic,
		clock:    newMonotonicClock(nil),
	}
	if producer != nil && s.topic != "" {
		s.queue = make(chan *models.Message, publishQueueSize)
		s.workerWG.Add(1)
		go s.publishLoop()
	}
	return s
}

func (s *messageService) HandleInbound(ctx context.Context, connectionID string, input *models.Message) (*models.Message, error) {
	typeLabel := "unknown"
	if input != nil && input.Type.Valid() {
		typeLabel = string(input.Type)
	}

	stored, err := s.process(ctx, connectionID, input)
	metrics.MessagesTotal.WithLabelValues(typeLabel, resultLabel(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("conn", connectionID).Str("type", typeLabel).Msg("消息处理失败")
		s.sendError(connectionID, err)
		return nil, err
	}

	// 持久化之后才广播，广播之后才回执
	if payload, err := imtypes.Encode(imtypes.EventMessage, stored); err != nil {
		log.Error().Err(err).Str("conn", connectionID).Msg("序列化广播消息失败")
	} else {
		s.hub.BroadcastExcept(connectionID, payload)
	}

	if ack, err := imtypes.Encode(imtypes.EventMessageAck, imtypes.Ack{MessageID: stored.ID, Status: imtypes.AckStatusDelivered}); err == nil {
		if !s.hub.SendTo(connectionID, ack) {
			log.Debug().Str("conn", connectionID).Msg("发送者已断开，跳过回执")
		}
	}

	s.enqueuePublish(stored.Clone())
	return stored, nil
}

// process 执行到持久化为止的步骤，不产生任何对外发送。
func (s *messageService) process(ctx context.Context, connectionID string, input *models.Message) (*models.Message, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	msg := input.Clone()
	msg.Timestamp = s.clock.Now()
	msg.ConnectionID = connectionID
	normalize(msg)

	switch msg.Type {
	case models.ImageMessageType:
		url, err := s.media.Resolve(ctx, msg)
		if err != nil {
			return nil, ensureKind(err, ErrMediaUpload)
		}
		msg.Image = url
	case models.DocumentMessageType:
		url, err := s.media.Resolve(ctx, msg)
		if err != nil {
			return nil, ensureKind(err, ErrMediaUpload)
		}
		msg.File = url
		msg.OriginalName = msg.Document.Name
		msg.Document = nil
	}

	start := time.Now()
	stored, err := s.store.Append(ctx, msg)
	metrics.StoreDuration.WithLabelValues("append").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: 存储消息失败: %v", ErrPersistence, err)
	}
	return stored, nil
}

// validate 检查类型以及媒体类型所需的字段。
func validate(input *models.Message) error {
	if input == nil {
		return fmt.Errorf("%w: 消息为空", ErrValidation)
	}
	if input.Type == "" {
		return fmt.Errorf("%w: 缺少 type 字段", ErrValidation)
	}
	if !input.Type.Valid() {
		return fmt.Errorf("%w: 不支持的消息类型 %q", ErrValidation, input.Type)
	}
	switch input.Type {
	case models.ImageMessageType:
		if input.Image == "" {
			return fmt.Errorf("%w: image 消息缺少图片内容", ErrValidation)
		}
	case models.DocumentMessageType:
		if input.Document == nil || input.Document.Name == "" {
			return fmt.Errorf("%w: document.name 为必填项", ErrValidation)
		}
		if input.Document.Data == "" && input.Document.URL == "" {
			return fmt.Errorf("%w: document 需要 data 或 url", ErrValidation)
		}
	}
	return nil
}

// normalize 清除与消息类型不符的载荷字段。
// 只有媒体解析的结果可以出现在 Image / File / OriginalName 中。
func normalize(msg *models.Message) {
	switch msg.Type {
	case models.TextMessageType:
		msg.Image = ""
		msg.File = ""
		msg.OriginalName = ""
		msg.Document = nil
	case models.ImageMessageType:
		msg.File = ""
		msg.OriginalName = ""
		msg.Document = nil
	case models.DocumentMessageType:
		msg.Image = ""
		msg.File = ""
		msg.OriginalName = ""
	}
}

func ensureKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func (s *messageService) sendError(connectionID string, cause error) {
	payload, err := imtypes.Encode(imtypes.EventError, imtypes.ErrorPayload{Message: cause.Error()})
	if err != nil {
		return
	}
	s.hub.SendTo(connectionID, payload)
}

// enqueuePublish 将已持久化的消息放入 Kafka 发布队列，从不阻塞。
func (s *messageService) enqueuePublish(msg *models.Message) {
	if s.queue == nil {
		return
	}
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- msg:
	default:
		log.Warn().Str("id", msg.ID).Str("topic", s.topic).Msg("Kafka 发布队列已满，丢弃消息")
	}
}

func (s *messageService) publishLoop() {
	defer s.workerWG.Done()
	for msg := range s.queue {
		s.publish(msg)
	}
}

// publish 将已持久化的消息发布到 Kafka，失败只记录日志。
func (s *messageService) publish(msg *models.Message) {
	value, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("序列化 Kafka 消息失败")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.producer.SendMessage(ctx, s.topic, []byte(msg.Sender), value); err != nil {
		log.Warn().Err(err).Str("topic", s.topic).Msg("发布消息到 Kafka 失败")
	}
}

func (s *messageService) Close() {
	if s.queue == nil {
		return
	}
	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.queueMu.Unlock()
	s.workerWG.Wait()
}
