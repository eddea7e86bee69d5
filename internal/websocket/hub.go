package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/metrics"
)

// Hub maintains the set of active clients and fans messages out to them.
// 注册、注销与发送都在同一把读写锁下完成：send 通道只在写锁下关闭，
// 只在读锁下写入，因此不会向已关闭的通道发送。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register 为客户端分配唯一的连接 ID 并加入注册表。
// Hub 已关闭时返回 false。
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	for {
		if _, taken := h.clients[client.ID]; !taken {
			break
		}
		client.ID = uuid.NewString()
	}
	h.clients[client.ID] = client
	metrics.Connections.Inc()
	log.Debug().Str("conn", client.ID).Int("clients", len(h.clients)).Msg("客户端已注册")
	return true
}

// Unregister 移除客户端并关闭它的发送通道。重复调用是安全的。
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// Remove 按连接 ID 注销客户端。
func (h *Hub) Remove(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[connectionID]; ok {
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	stored, ok := h.clients[client.ID]
	if !ok || stored != client {
		return
	}
	delete(h.clients, client.ID)
	close(client.send)
	metrics.Connections.Dec()
	log.Debug().Str("conn", client.ID).Int("clients", len(h.clients)).Msg("客户端已注销")
}

// BroadcastExcept 将 payload 发送给除 originID 以外的所有已注册客户端。
// 发送缓冲区已满的客户端视为过慢，广播结束后被移除。
func (h *Hub) BroadcastExcept(originID string, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for id, client := range h.clients {
		if id == originID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		log.Warn().Str("conn", client.ID).Msg("客户端发送通道已满，移除客户端")
		metrics.BroadcastDropped.Inc()
		h.Unregister(client)
	}
}

// SendTo 向单个连接发送 payload。连接不存在或缓冲区已满时返回 false。
func (h *Hub) SendTo(connectionID string, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connectionID]
	if !ok {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		log.Warn().Str("conn", connectionID).Msg("客户端发送通道已满，丢弃消息")
		metrics.BroadcastDropped.Inc()
		return false
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown 注销所有客户端，之后的 Register 调用都会失败。
// 关闭发送通道会让 writePump 发送关闭帧并退出。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, client := range h.clients {
		h.removeLocked(client)
	}
	log.Info().Msg("WebSocket Hub 已关闭")
}
