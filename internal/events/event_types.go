package events

import (
	"time"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChatMessageRecorded EventType = "chat_message_recorded"
	EventMemberJoined        EventType = "member_joined"
	EventMemberLeft          EventType = "member_left"
	EventBroadcastDegraded   EventType = "broadcast_degraded"
)

// Event represents a domain event emitted by the chat relay.
type Event struct {
	Type      EventType   `json:"type"`
	ProjectID int64       `json:"project_id"`
	UserID    int64       `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChatMessageRecordedPayload payload.
type ChatMessageRecordedPayload struct {
	ChatID int64              `json:"chat_id"`
	Kind   domain.MessageType `json:"kind"`
}

// MemberPresencePayload payload for join/leave events.
type MemberPresencePayload struct {
	SubjectName string `json:"subject_name"`
	RoomSize    int    `json:"room_size"`
}

// BroadcastDegradedPayload payload.
type BroadcastDegradedPayload struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}
