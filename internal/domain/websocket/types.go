// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Campaign events (server -> client)
	EventTypeScan   EventType = "qr:scan"
	EventTypeReward EventType = "qr:reward"

	// Request/response: client asks for a user's progress on one of its tools
	EventTypeProgress EventType = "qr:progress"

	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

type ChannelType string

const (
	ChannelScans   ChannelType = "scans"
	ChannelRewards ChannelType = "rewards"
)

// ValidChannel reports whether a client may subscribe to the channel.
func ValidChannel(c ChannelType) bool {
	return c == ChannelScans || c == ChannelRewards
}

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ProgressRequest struct {
	ToolID int64  `json:"tool_id"`
	UserID string `json:"user_id"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ScanEventData is pushed to the tool owner after every validation attempt.
type ScanEventData struct {
	ToolID        int64     `json:"tool_id"`
	UserID        string    `json:"user_id"`
	Code          string    `json:"code"`
	Accepted      bool      `json:"accepted"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CurrentStreak int       `json:"current_streak"`
	TotalScans    int       `json:"total_scans"`
	IsReward      bool      `json:"is_reward"`
	RewardOrdinal int       `json:"reward_ordinal,omitempty"`
	TagsToAdd     []string  `json:"tags_to_add,omitempty"`
	MessageToSend string    `json:"message_to_send,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
