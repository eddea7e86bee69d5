package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/imtypes"
	"chat-relay/internal/models"
)

func TestSendHistory_ReturnsAllMessagesInOrder(t *testing.T) {
	conns := []string{"A", "B", "C", "D"}
	f := newPipeline(t, conns...)
	for i, c := range conns[:3] {
		_, err := f.svc.HandleInbound(context.Background(), c, &models.Message{ID: fmt.Sprint(i), Type: models.TextMessageType, Text: c})
		require.NoError(t, err)
	}

	history := NewHistoryService(f.store, f.hub)
	require.NoError(t, history.SendHistory(context.Background(), "D"))

	frames := f.hub.framesFor("D", imtypes.EventHistory)
	require.Len(t, frames, 1)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(frames[0].Data, &msgs))
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
	assert.Equal(t, []string{"A", "B", "C"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})

	for _, c := range conns[:3] {
		assert.Empty(t, f.hub.framesFor(c, imtypes.EventHistory), "history is never broadcast")
	}
}

func TestSendHistory_EmptyStoreSendsEmptyArray(t *testing.T) {
	f := newPipeline(t, "A")
	history := NewHistoryService(f.store, f.hub)
	require.NoError(t, history.SendHistory(context.Background(), "A"))

	frames := f.hub.framesFor("A", imtypes.EventHistory)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `[]`, string(frames[0].Data))
}

func TestSendHistory_StoreFailure(t *testing.T) {
	f := newPipeline(t, "A", "B")
	f.store.listErr = errors.New("timeout")
	history := NewHistoryService(f.store, f.hub)

	err := history.SendHistory(context.Background(), "A")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, []imtypes.EventName{imtypes.EventError}, f.hub.eventsFor("A"))
	assert.Empty(t, f.hub.eventsFor("B"))
}
