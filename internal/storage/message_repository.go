package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chat-relay/internal/models"
)

// messageRecord 是消息在关系数据库中的行结构。
// Seq 为自增主键，用于时间戳相同时保持插入顺序。
type messageRecord struct {
	Seq          uint      `gorm:"primarykey;autoIncrement"`
	ClientID     string    `gorm:"type:varchar(255);index"`
	Sender       string    `gorm:"type:varchar(255);index"`
	Type         string    `gorm:"type:varchar(20);not null"`
	Text         string    `gorm:"type:text"`
	Image        string    `gorm:"type:text"`
	File         string    `gorm:"type:text"`
	OriginalName string    `gorm:"type:varchar(255)"`
	Timestamp    time.Time `gorm:"index;not null"`
	ConnectionID string    `gorm:"type:varchar(64)"`
}

// TableName 指定 messageRecord 的表名。
func (messageRecord) TableName() string {
	return "messages"
}

func toRecord(m *models.Message) *messageRecord {
	return &messageRecord{
		ClientID:     m.ID,
		Sender:       m.Sender,
		Type:         string(m.Type),
		Text:         m.Text,
		Image:        m.Image,
		File:         m.File,
		OriginalName: m.OriginalName,
		Timestamp:    m.Timestamp,
		ConnectionID: m.ConnectionID,
	}
}

func (r *messageRecord) toModel() *models.Message {
	return &models.Message{
		ID:           r.ClientID,
		Sender:       r.Sender,
		Type:         models.MessageType(r.Type),
		Text:         r.Text,
		Image:        r.Image,
		File:         r.File,
		OriginalName: r.OriginalName,
		Timestamp:    r.Timestamp,
		ConnectionID: r.ConnectionID,
	}
}

// gormMessageStore 使用 GORM 实现 MessageStore。
type gormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore 创建一个新的基于 GORM 的 MessageStore。
func NewGormMessageStore(db *gorm.DB) MessageStore {
	return &gormMessageStore{db: db}
}

// Append 在数据库中创建一条新的消息记录。
func (r *gormMessageStore) Append(ctx context.Context, message *models.Message) (*models.Message, error) {
	rec := toRecord(message)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// ListAll 按时间升序读取全部消息。
func (r *gormMessageStore) ListAll(ctx context.Context) ([]*models.Message, error) {
	var records []messageRecord
	err := r.db.WithContext(ctx).Order("timestamp ASC").Order("seq ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	messages := make([]*models.Message, 0, len(records))
	for i := range records {
		messages = append(messages, records[i].toModel())
	}
	return messages, nil
}

// Close 关闭底层连接池。
func (r *gormMessageStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
