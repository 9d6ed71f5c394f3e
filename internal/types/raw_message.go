package types

import (
	"time"
)

// RawMessage is one inbound conversation message. It is never a table of its
// own: it lives inside the conversation buffer and inside MemCell.OriginalData.
// Immutable once received.
type RawMessage struct {
	MessageID  string    `json:"message_id"`
	GroupID    string    `json:"group_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	RefersTo   []string  `json:"refers_to,omitempty"`
}
