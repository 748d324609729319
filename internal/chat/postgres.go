package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

// PostgresStore persists chat events in the chats table. Every write is
// bounded by appendTimeout so a stalled database surfaces as
// ErrPersistence instead of wedging the relay.
type PostgresStore struct {
	pool          *pgxpool.Pool
	appendTimeout time.Duration
}

// NewPostgresStore returns a pgx-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, appendTimeout time.Duration) *PostgresStore {
	if appendTimeout <= 0 {
		appendTimeout = 5 * time.Second
	}
	return &PostgresStore{pool: pool, appendTimeout: appendTimeout}
}

func (s *PostgresStore) Append(ctx context.Context, event *domain.ChatEvent) error {
	const query = `
        INSERT INTO chats (project_id, sender_id, content, message_type, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING chat_id`

	ctx, cancel := context.WithTimeout(ctx, s.appendTimeout)
	defer cancel()

	if err := s.pool.QueryRow(ctx, query,
		event.ProjectID,
		event.SenderID,
		event.Content,
		event.Kind,
		event.OccurredAt,
	).Scan(&event.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, projectID int64, limit int) ([]domain.ChatEvent, error) {
	// chat_id is a serial column, so it doubles as the insertion-order
	// tie-breaker when created_at collides at clock resolution.
	const query = `
        SELECT c.chat_id, c.project_id, c.sender_id, u.display_name, c.content, c.message_type, c.created_at
        FROM chats c
        JOIN users u ON u.user_id = c.sender_id
        WHERE c.project_id = $1
        ORDER BY c.created_at DESC, c.chat_id DESC
        LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, s.appendTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer rows.Close()

	events := make([]domain.ChatEvent, 0, limit)
	for rows.Next() {
		var ev domain.ChatEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.ProjectID,
			&ev.SenderID,
			&ev.SenderName,
			&ev.Content,
			&ev.Kind,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return events, nil
}
