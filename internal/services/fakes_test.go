package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	"chat-relay/internal/models"
	"chat-relay/internal/storage"
)

type sentFrame struct {
	to       string
	except   string
	envelope imtypes.Envelope
}

// fakeHub records every frame the services emit.
type fakeHub struct {
	mu      sync.Mutex
	conns   map[string]bool
	frames  []sentFrame
	closeOn string // connection treated as closed
}

func newFakeHub(conns ...string) *fakeHub {
	h := &fakeHub{conns: map[string]bool{}}
	for _, c := range conns {
		h.conns[c] = true
	}
	return h
}

func (h *fakeHub) BroadcastExcept(originID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var env imtypes.Envelope
	_ = json.Unmarshal(payload, &env)
	for id := range h.conns {
		if id == originID || id == h.closeOn {
			continue
		}
		h.frames = append(h.frames, sentFrame{to: id, except: originID, envelope: env})
	}
}

func (h *fakeHub) SendTo(connectionID string, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[connectionID] || connectionID == h.closeOn {
		return false
	}
	var env imtypes.Envelope
	_ = json.Unmarshal(payload, &env)
	h.frames = append(h.frames, sentFrame{to: connectionID, envelope: env})
	return true
}

func (h *fakeHub) framesFor(conn string, event imtypes.EventName) []imtypes.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []imtypes.Envelope
	for _, f := range h.frames {
		if f.to == conn && f.envelope.Event == event {
			out = append(out, f.envelope)
		}
	}
	return out
}

func (h *fakeHub) eventsFor(conn string) []imtypes.EventName {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []imtypes.EventName
	for _, f := range h.frames {
		if f.to == conn {
			out = append(out, f.envelope.Event)
		}
	}
	return out
}

// fakeResolver returns a deterministic URL per message.
type fakeResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeResolver) Resolve(_ context.Context, msg *models.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if msg.Type == models.DocumentMessageType {
		return "https://cdn.example/" + storage.ObjectKey(storage.DocumentNamespace, msg.Sender, msg.Document.Name), nil
	}
	return "https://cdn.example/" + storage.ObjectKey(storage.ImageNamespace, msg.Sender, "img.png"), nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// countingStore wraps a store and can be told to fail.
type countingStore struct {
	storage.MessageStore
	mu        sync.Mutex
	appends   int
	appendErr error
	listErr   error
}

func (s *countingStore) Append(ctx context.Context, m *models.Message) (*models.Message, error) {
	s.mu.Lock()
	s.appends++
	err := s.appendErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MessageStore.Append(ctx, m)
}

func (s *countingStore) ListAll(ctx context.Context) ([]*models.Message, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MessageStore.ListAll(ctx)
}

// fakeProducer records published payloads. A non-nil release channel makes
// SendMessage wait until it is closed.
type fakeProducer struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
	release  chan struct{}
}

func (p *fakeProducer) SendMessage(_ context.Context, _ string, _ []byte, payload []byte) error {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *fakeProducer) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}

func (p *fakeProducer) Close() {}

type pipelineFixture struct {
	hub      *fakeHub
	resolver *fakeResolver
	store    *countingStore
	svc      MessageService
}

func newPipeline(t *testing.T, conns ...string) *pipelineFixture {
	t.Helper()
	hub := newFakeHub(conns...)
	resolver := &fakeResolver{}
	store := &countingStore{MessageStore: storage.NewMemoryMessageStore()}
	svc := NewMessageService(store, resolver, hub, nil, config.Config{})
	require.NotNil(t, svc)
	return &pipelineFixture{hub: hub, resolver: resolver, store: store, svc: svc}
}
