package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	"chat-relay/internal/metrics"
)

// EventHandler 处理客户端发来的一个事件帧。
// 同一连接的事件按到达顺序逐个调用，不会并发。
type EventHandler func(ctx context.Context, connectionID string, env *imtypes.Envelope)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// ID 是 Hub 注册时分配的连接 ID，每次连接都不同。
	ID string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	handler EventHandler
	limiter *rate.Limiter // nil 表示不限流

	remoteAddr string
}

// newClient 创建一个尚未注册的客户端。conn 可以为 nil (仅测试中使用)。
func newClient(hub *Hub, conn *websocket.Conn, handler EventHandler, wsCfg config.WebSocketConfig) *Client {
	bufSize := wsCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	c := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, bufSize),
		handler: handler,
	}
	if wsCfg.MessagesPerSecond > 0 {
		burst := wsCfg.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(wsCfg.MessagesPerSecond), burst)
	}
	if conn != nil {
		c.remoteAddr = conn.RemoteAddr().String()
	}
	return c
}

// withDefaults 为未配置的超时参数填充默认值。
func withDefaults(wsCfg config.WebSocketConfig) config.WebSocketConfig {
	if wsCfg.WriteWaitSeconds <= 0 {
		wsCfg.WriteWaitSeconds = 10
	}
	if wsCfg.PongWaitSeconds <= 0 {
		wsCfg.PongWaitSeconds = 60
	}
	if wsCfg.PingPeriodSeconds <= 0 || wsCfg.PingPeriodSeconds >= wsCfg.PongWaitSeconds {
		wsCfg.PingPeriodSeconds = (wsCfg.PongWaitSeconds * 9) / 10
		if wsCfg.PingPeriodSeconds == 0 {
			wsCfg.PingPeriodSeconds = 1
		}
	}
	return wsCfg
}

// readPump pumps frames from the websocket connection to the event handler.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("conn", c.ID).Str("remote", c.remoteAddr).Msg("客户端已断开")
	}()
	pongWait := time.Duration(wsCfg.PongWaitSeconds) * time.Second
	if wsCfg.MaxMessageSizeBytes > 0 {
		c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn", c.ID).Msg("WebSocket 读取错误")
			}
			return
		}
		// 收到任何帧都说明对端仍然存活
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			log.Warn().Str("conn", c.ID).Int("frameType", messageType).Msg("忽略非文本帧")
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame 解码并分发一个文本帧。
func (c *Client) handleFrame(frame []byte) {
	env, err := imtypes.Decode(frame)
	if err != nil {
		log.Warn().Err(err).Str("conn", c.ID).Msg("无效的事件帧")
		c.sendError("invalid frame: " + err.Error())
		return
	}

	if c.limiter != nil && env.Event == imtypes.EventMessage && !c.limiter.Allow() {
		metrics.MessagesTotal.WithLabelValues("unknown", metrics.ResultRateLimited).Inc()
		c.sendError("rate limit exceeded")
		return
	}

	if c.handler != nil {
		c.handler(context.Background(), c.ID, env)
	}
}

func (c *Client) sendError(message string) {
	payload, err := imtypes.Encode(imtypes.EventError, imtypes.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.hub.SendTo(c.ID, payload)
}

// writePump pumps messages from the hub to the websocket connection.
// 每条消息单独占用一个文本帧。
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("conn", c.ID).Msg("写入消息失败")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWsPerConnection 处理来自对等方的 websocket 请求。
// 升级成功后客户端立即注册，读写循环各自运行在独立的 goroutine 中。
func ServeWsPerConnection(hub *Hub, handler EventHandler, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	wsCfg = withDefaults(wsCfg)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket 升级失败")
		return
	}

	client := newClient(hub, conn, handler, wsCfg)
	if !hub.Register(client) {
		log.Warn().Str("remote", client.remoteAddr).Msg("Hub 已关闭，拒绝连接")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Info().Str("conn", client.ID).Str("remote", client.remoteAddr).Msg("客户端已连接")
}
