// Package chat implements the realtime relay core: durable append-only
// chat storage per project, in-memory room membership, and the
// persist-then-broadcast orchestration between them.
package chat

import (
	"context"
	"errors"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

var (
	// ErrPersistence means the store could not durably record or read
	// events within its bounded timeout.
	ErrPersistence = errors.New("chat store unavailable")
	// ErrUnauthorized rejects a message from a connection with no
	// authenticated identity.
	ErrUnauthorized = errors.New("connection not authenticated")
	// ErrMessageTooLarge rejects oversized TALK content.
	ErrMessageTooLarge = errors.New("message content too large")
	// ErrInvalidMessage rejects a payload with an unknown type or no content.
	ErrInvalidMessage = errors.New("invalid chat message")
)

// Store is the durable append-only log of chat events per project.
type Store interface {
	// Append durably records one event and fills in its assigned ID.
	// It must not block indefinitely; implementations bound the write
	// with a timeout and report ErrPersistence on expiry.
	Append(ctx context.Context, event *domain.ChatEvent) error

	// Recent returns up to limit most recent events for the project,
	// newest first, ties on OccurredAt broken by insertion order.
	Recent(ctx context.Context, projectID int64, limit int) ([]domain.ChatEvent, error)
}
