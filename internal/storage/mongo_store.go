package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
)

// mongoMessageStore 将消息存储在 MongoDB 的单个集合中。
type mongoMessageStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoMessageStore 连接 MongoDB 并返回 MessageStore。
// 连接或 ping 失败时返回错误，调用方不应在此情况下开始接受连接。
func NewMongoMessageStore(ctx context.Context, cfg config.DatabaseConfig) (MessageStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: 缺少连接串 (DATABASE.URI / MONGODB_URI)")
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: 连接失败: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping 失败: %w", err)
	}

	coll := client.Database(cfg.Name).Collection(cfg.Collection,
		options.Collection().SetReadConcern(readconcern.Majority()))

	// 按时间戳排序读取全量历史
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: 创建索引失败: %w", err)
	}

	return &mongoMessageStore{client: client, collection: coll}, nil
}

func (s *mongoMessageStore) Append(ctx context.Context, message *models.Message) (*models.Message, error) {
	stored := message.Clone()
	stored.Document = nil
	if _, err := s.collection.InsertOne(ctx, stored); err != nil {
		return nil, fmt.Errorf("mongo: 插入消息失败: %w", err)
	}
	return stored, nil
}

func (s *mongoMessageStore) ListAll(ctx context.Context) ([]*models.Message, error) {
	// ObjectID 单调递增，作为同一时间戳下的插入顺序
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: 查询历史失败: %w", err)
	}
	messages := make([]*models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("mongo: 读取历史失败: %w", err)
	}
	return messages, nil
}

func (s *mongoMessageStore) Close() error {
	return s.client.Disconnect(context.Background())
}
