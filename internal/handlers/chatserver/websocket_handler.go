package chatserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	"chat-relay/internal/services"
	ws "chat-relay/internal/websocket"
)

// WebSocketHandler 负责处理 WebSocket 连接请求，并把事件分发给对应的服务。
type WebSocketHandler struct {
	hub            *ws.Hub
	messageService services.MessageService
	historyService services.HistoryService
	cfg            config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, msgService services.MessageService, historyService services.HistoryService, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		messageService: msgService,
		historyService: historyService,
		cfg:            cfg,
	}
}

// ServeWS 处理传入的 WebSocket 请求。
// 连接是匿名的，每个连接在注册时获得独立的连接 ID。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws.ServeWsPerConnection(h.hub, h.HandleEvent, w, r, h.cfg.WebSocket)
}

// HandleEvent 按事件名分发一个客户端事件。
func (h *WebSocketHandler) HandleEvent(ctx context.Context, connectionID string, env *imtypes.Envelope) {
	switch env.Event {
	case imtypes.EventMessage:
		msg, err := env.DecodeMessage()
		if err != nil {
			h.replyError(connectionID, fmt.Errorf("%w: %v", services.ErrValidation, err))
			return
		}
		// 错误已由管道回报给发送者
		_, _ = h.messageService.HandleInbound(ctx, connectionID, msg)

	case imtypes.EventFetchHistory:
		_ = h.historyService.SendHistory(ctx, connectionID)

	default:
		log.Debug().Str("conn", connectionID).Str("event", string(env.Event)).Msg("未知事件")
		h.replyError(connectionID, fmt.Errorf("unknown event %q", env.Event))
	}
}

func (h *WebSocketHandler) replyError(connectionID string, cause error) {
	payload, err := imtypes.Encode(imtypes.EventError, imtypes.ErrorPayload{Message: cause.Error()})
	if err != nil {
		return
	}
	h.hub.SendTo(connectionID, payload)
}
