package imtypes

import (
	"encoding/json"
	"fmt"

	"chat-relay/internal/models"
)

// EventName identifies a frame exchanged over the WebSocket connection.
type EventName string

const (
	// client -> server
	EventMessage      EventName = "message"
	EventFetchHistory EventName = "fetch:history"

	// server -> client
	EventMessageAck EventName = "message:ack"
	EventHistory    EventName = "history"
	EventError      EventName = "error"
)

// AckStatusDelivered is the only acknowledgement status the relay emits.
const AckStatusDelivered = "delivered"

// Envelope is the JSON frame carried in every WebSocket text message.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack 是发送成功后仅回给发送者的确认。
type Ack struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals data and wraps it in an envelope for event.
func Encode(event EventName, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("序列化 %s 事件失败: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a raw frame into an envelope.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("无法解析事件帧: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("事件帧缺少 event 字段")
	}
	return &env, nil
}

// DecodeMessage extracts the inbound message carried by a "message" event.
func (e *Envelope) DecodeMessage() (*models.Message, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, fmt.Errorf("message 事件缺少 data")
	}
	var msg models.Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return nil, fmt.Errorf("无法解析消息内容: %w", err)
	}
	return &msg, nil
}
