package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"chat-relay/internal/models"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("append", func(mt *mtest.T) {
		store := &mongoMessageStore{client: mt.Client, collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		stored, err := store.Append(context.Background(), &models.Message{
			ID:           "1",
			Sender:       "patient-1",
			Type:         models.DocumentMessageType,
			Document:     &models.DocumentPayload{Name: "report.pdf", Data: "aGk="},
			File:         "http://files/report.pdf",
			OriginalName: "report.pdf",
			Timestamp:    time.Now(),
		})
		require.NoError(mt, err)
		assert.Nil(mt, stored.Document)
		assert.Equal(mt, "report.pdf", stored.OriginalName)
	})

	mt.Run("append failure", func(mt *mtest.T) {
		store := &mongoMessageStore{client: mt.Client, collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate"}))

		_, err := store.Append(context.Background(), &models.Message{ID: "1", Type: models.TextMessageType})
		assert.Error(mt, err)
	})

	mt.Run("list all", func(mt *mtest.T) {
		store := &mongoMessageStore{client: mt.Client, collection: mt.Coll}
		t1 := time.Now().UTC().Truncate(time.Millisecond)
		t2 := t1.Add(time.Second)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			bson.D{{Key: "id", Value: "1"}, {Key: "sender", Value: "x"}, {Key: "type", Value: "text"}, {Key: "text", Value: "hi"}, {Key: "timestamp", Value: t1}},
		)
		second := mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
			bson.D{{Key: "id", Value: "2"}, {Key: "sender", Value: "y"}, {Key: "type", Value: "image"}, {Key: "image", Value: "http://img"}, {Key: "timestamp", Value: t2}},
		)
		mt.AddMockResponses(first, second)

		all, err := store.ListAll(context.Background())
		require.NoError(mt, err)
		require.Len(mt, all, 2)
		assert.Equal(mt, "hi", all[0].Text)
		assert.Equal(mt, "http://img", all[1].Image)
		assert.True(mt, all[0].Timestamp.Equal(t1))
	})
}
