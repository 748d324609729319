package domain

import "time"

// MessageType classifies a chat event.
type MessageType string

const (
	MessageTypeEnter MessageType = "ENTER"
	MessageTypeTalk  MessageType = "TALK"
	MessageTypeQuit  MessageType = "QUIT"
)

// Valid reports whether the type is one of the known enum values.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeEnter, MessageTypeTalk, MessageTypeQuit:
		return true
	}
	return false
}

// ChatEvent is one durable chat message or presence notification for a
// project. OccurredAt is always server-assigned; the record is never
// updated or deleted once persisted.
type ChatEvent struct {
	ID         int64
	ProjectID  int64
	SenderID   int64
	SenderName string
	Content    string
	Kind       MessageType
	OccurredAt time.Time
}
