package models

import (
	"time"
)

// MessageType 定义了消息类型，决定是否需要媒体解析。
type MessageType string

const (
	TextMessageType     MessageType = "text"
	ImageMessageType    MessageType = "image"
	DocumentMessageType MessageType = "document"
)

// Valid reports whether t is one of the supported message types.
func (t MessageType) Valid() bool {
	switch t {
	case TextMessageType, ImageMessageType, DocumentMessageType:
		return true
	}
	return false
}

// IsMedia reports whether messages of this type carry a media payload.
func (t MessageType) IsMedia() bool {
	return t == ImageMessageType || t == DocumentMessageType
}

// DocumentPayload 是客户端上传文档时携带的内容，仅在入站时出现。
// Data 为 base64 或 data URL 编码的内联内容，URL 为已有的远程源地址，二者取其一。
type DocumentPayload struct {
	Name string `json:"name" bson:"name"`
	Data string `json:"data,omitempty" bson:"-"`
	URL  string `json:"url,omitempty" bson:"-"`
}

// Message 代表一条聊天消息。
// 入站时 Image/Document 携带原始媒体内容；持久化前被替换为持久化存储的 URL。
type Message struct {
	ID           string           `json:"id" bson:"id"` // 客户端提供，不做校验也不去重
	Sender       string           `json:"sender" bson:"sender"`
	Type         MessageType      `json:"type" bson:"type"`
	Text         string           `json:"text,omitempty" bson:"text,omitempty"`
	Image        string           `json:"image,omitempty" bson:"image,omitempty"`
	Document     *DocumentPayload `json:"document,omitempty" bson:"-"`
	File         string           `json:"file,omitempty" bson:"file,omitempty"`
	OriginalName string           `json:"originalName,omitempty" bson:"originalName,omitempty"`
	Timestamp    time.Time        `json:"timestamp" bson:"timestamp"`
	ConnectionID string           `json:"connectionId" bson:"connectionId"`
}

// Clone returns a copy of m that shares no pointers with it.
func (m *Message) Clone() *Message {
	c := *m
	if m.Document != nil {
		d := *m.Document
		c.Document = &d
	}
	return &c
}
