package apiserver

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/services"
)

// MessageHandler 封装了消息历史相关的 HTTP 处理器方法。
type MessageHandler struct {
	historyService services.HistoryService
}

// NewMessageHandler 创建一个新的 MessageHandler 实例。
func NewMessageHandler(historyService services.HistoryService) *MessageHandler {
	return &MessageHandler{historyService: historyService}
}

// ListMessagesHandler 以 JSON 数组返回按时间升序排列的全部历史消息。
func (h *MessageHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.historyService.History(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("获取历史消息失败")
		writeJSONError(w, "获取历史消息失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}
