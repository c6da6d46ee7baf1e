package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// MessageType classifies chat messages
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeEmoji   MessageType = "emoji"
	MessageTypeCallLog MessageType = "call_log"
)

// Sender identifies a message author. The backend sends either a bare id
// string or an embedded user object; both decode into Sender.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UnmarshalJSON accepts `"u1"` or `{"id":"u1","name":...}`
func (s *Sender) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.ID)
	}
	type plain Sender
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Sender(p)
	return nil
}

// Message is a chat message as served by the backend
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Sender         Sender      `json:"sender"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// IsMine reports whether userID authored the message
func (m Message) IsMine(userID string) bool {
	return userID != "" && m.Sender.ID == userID
}

// MessagePage is one page of history, newest first
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// PollResult carries messages newer than the requested watermark and the
// server's clock at the time of the query
type PollResult struct {
	Messages   []Message `json:"messages"`
	ServerTime time.Time `json:"serverTime"`
}

// SendMessageRequest is the body of POST /chat/conversations/:id/messages
type SendMessageRequest struct {
	Content     string      `json:"content" binding:"required,max=10000"`
	MessageType MessageType `json:"messageType" binding:"omitempty,oneof=text emoji call_log"`
}

// UnreadCount is the body of GET /chat/unread-count
type UnreadCount struct {
	Count int `json:"count"`
}
