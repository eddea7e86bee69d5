package chatserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	"chat-relay/internal/models"
	"chat-relay/internal/services"
	"chat-relay/internal/storage"
	ws "chat-relay/internal/websocket"
)

type relayFixture struct {
	server  *httptest.Server
	hub     *ws.Hub
	store   storage.MessageStore
	uploads string
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	cfg := config.Config{
		WebSocket: config.WebSocketConfig{
			WriteWaitSeconds:    5,
			PongWaitSeconds:     30,
			PingPeriodSeconds:   20,
			MaxMessageSizeBytes: 1 << 20,
			SendBufferSize:      64,
		},
		Storage: config.StorageConfig{
			LocalPath:     t.TempDir(),
			MaxFileSizeMB: 1,
			FetchTimeout:  5 * time.Second,
		},
	}

	hub := ws.NewHub()
	store := storage.NewMemoryMessageStore()
	objects, err := storage.NewLocalStorageService(cfg.Storage, "http://files.test/uploads")
	require.NoError(t, err)

	media := services.NewMediaService(objects, cfg.Storage)
	handler := NewWebSocketHandler(hub,
		services.NewMessageService(store, media, hub, nil, cfg),
		services.NewHistoryService(store, hub),
		cfg)

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return &relayFixture{server: srv, hub: hub, store: store, uploads: cfg.Storage.LocalPath}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event imtypes.EventName, data any) {
	t.Helper()
	frame, err := imtypes.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) *imtypes.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := imtypes.Decode(frame)
	require.NoError(t, err)
	return env
}

func expectEvent(t *testing.T, conn *websocket.Conn, event imtypes.EventName, out any) {
	t.Helper()
	env := read(t, conn)
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

// fetchHistory 同时确认连接已在 Hub 中注册。
func fetchHistory(t *testing.T, conn *websocket.Conn) []*models.Message {
	t.Helper()
	send(t, conn, imtypes.EventFetchHistory, nil)
	var history []*models.Message
	expectEvent(t, conn, imtypes.EventHistory, &history)
	return history
}

func TestRelay_TextMessageFanOutAndAck(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	assert.Empty(t, fetchHistory(t, a))
	assert.Empty(t, fetchHistory(t, b))

	send(t, a, imtypes.EventMessage, map[string]string{"id": "1", "sender": "x", "type": "text", "text": "hi"})

	var ack imtypes.Ack
	expectEvent(t, a, imtypes.EventMessageAck, &ack)
	assert.Equal(t, imtypes.Ack{MessageID: "1", Status: "delivered"}, ack)

	var got models.Message
	expectEvent(t, b, imtypes.EventMessage, &got)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "1", got.ID)
	assert.False(t, got.Timestamp.IsZero())
	require.NotEmpty(t, got.ConnectionID)

	// B 的消息带有不同的连接 ID，且 A 不会收到自己的消息
	send(t, b, imtypes.EventMessage, map[string]string{"id": "2", "sender": "y", "type": "text", "text": "yo"})
	var fromB models.Message
	expectEvent(t, a, imtypes.EventMessage, &fromB)
	assert.Equal(t, "2", fromB.ID)
	assert.NotEqual(t, got.ConnectionID, fromB.ConnectionID)
	expectEvent(t, b, imtypes.EventMessageAck, nil)

	history := fetchHistory(t, a)
	require.Len(t, history, 2)
	assert.Equal(t, "1", history[0].ID)
	assert.Equal(t, got.ConnectionID, history[0].ConnectionID)
	assert.Equal(t, "2", history[1].ID)
	assert.False(t, history[1].Timestamp.Before(history[0].Timestamp))
}

func TestRelay_ImageIsStoredAndBroadcastAsURL(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	fetchHistory(t, a)
	fetchHistory(t, b)

	send(t, a, imtypes.EventMessage, map[string]string{
		"id": "img-1", "sender": "patient-1", "type": "image", "image": "data:image/png;base64,iVBORw0KGgo=",
	})
	expectEvent(t, a, imtypes.EventMessageAck, nil)

	var got models.Message
	expectEvent(t, b, imtypes.EventMessage, &got)
	require.True(t, strings.HasPrefix(got.Image, "http://files.test/uploads/images/patient-1/"), got.Image)

	key := strings.TrimPrefix(got.Image, "http://files.test/uploads/")
	data, err := os.ReadFile(filepath.Join(f.uploads, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data)
}

func TestRelay_DocumentFailureOnlyNotifiesSender(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	fetchHistory(t, a)
	fetchHistory(t, b)

	send(t, a, imtypes.EventMessage, map[string]any{
		"id": "doc-1", "sender": "x", "type": "document",
		"document": map[string]string{"name": "no-extension", "data": "aGk="},
	})
	var errPayload imtypes.ErrorPayload
	expectEvent(t, a, imtypes.EventError, &errPayload)
	assert.Contains(t, errPayload.Message, "media upload error")

	// B 不应收到任何广播，下一帧是自己的历史回复
	assert.Empty(t, fetchHistory(t, b))
}

func TestRelay_InvalidInputGetsErrorEvent(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{broken")))
	expectEvent(t, a, imtypes.EventError, nil)

	send(t, a, imtypes.EventMessage, map[string]string{"id": "1", "type": "video"})
	var errPayload imtypes.ErrorPayload
	expectEvent(t, a, imtypes.EventError, &errPayload)
	assert.Contains(t, errPayload.Message, "validation error")

	send(t, a, "typing", nil)
	expectEvent(t, a, imtypes.EventError, &errPayload)
	assert.Contains(t, errPayload.Message, "unknown event")

	assert.Empty(t, fetchHistory(t, a))
}

func TestRelay_HistoryReturnsAllPersistedMessages(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)
	fetchHistory(t, a)

	const n = 5
	for i := 0; i < n; i++ {
		send(t, a, imtypes.EventMessage, map[string]string{"id": string(rune('a' + i)), "sender": "x", "type": "text", "text": "m"})
		expectEvent(t, a, imtypes.EventMessageAck, nil)
	}

	late := f.dial(t)
	history := fetchHistory(t, late)
	require.Len(t, history, n)
	for i := 1; i < n; i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
}

func TestRelay_DisconnectedPeerDoesNotBreakBroadcast(t *testing.T) {
	f := newRelayFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	c := f.dial(t)
	fetchHistory(t, a)
	fetchHistory(t, b)
	fetchHistory(t, c)

	require.NoError(t, c.Close())

	send(t, a, imtypes.EventMessage, map[string]string{"id": "1", "sender": "x", "type": "text", "text": "still here"})
	expectEvent(t, a, imtypes.EventMessageAck, nil)
	var got models.Message
	expectEvent(t, b, imtypes.EventMessage, &got)
	assert.Equal(t, "still here", got.Text)
}
