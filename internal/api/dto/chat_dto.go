package dto

import (
	"time"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

// ChatMessage is the wire payload for one chat event. Inbound senderId,
// senderName, displayName, and timestamp are informational only: the
// relay overwrites them from the verified connection identity and the
// server clock.
type ChatMessage struct {
	ProjectID      int64              `json:"projectId"`
	SenderID       int64              `json:"senderId"`
	SenderName     string             `json:"senderName"`
	DisplayName    string             `json:"displayName"`
	MessageContent string             `json:"messageContent"`
	Type           domain.MessageType `json:"type"`
	Timestamp      time.Time          `json:"timestamp"`
}

// ChatMessageFromEvent maps a persisted event to its wire form.
func ChatMessageFromEvent(ev domain.ChatEvent) ChatMessage {
	return ChatMessage{
		ProjectID:      ev.ProjectID,
		SenderID:       ev.SenderID,
		SenderName:     ev.SenderName,
		DisplayName:    ev.SenderName,
		MessageContent: ev.Content,
		Type:           ev.Kind,
		Timestamp:      ev.OccurredAt,
	}
}

// PublishChatRequest is the REST fallback publish payload.
type PublishChatRequest struct {
	MessageContent string `json:"messageContent"`
}
