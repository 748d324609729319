package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/events"
	"github.com/spec-kit/teamspace-service/internal/observability"
)

// Encoder turns a normalized chat event into the outbound wire frame for
// the project's subscribers. The transport layer owns the frame format.
type Encoder interface {
	EncodeEvent(event domain.ChatEvent) ([]byte, error)
}

// Inbound is the client-supplied portion of a chat message after the
// transport decoded it. Sender identity fields are deliberately absent:
// they are always derived from the connection's verified identity, never
// trusted from the payload.
type Inbound struct {
	Kind    domain.MessageType
	Content string
}

// RelayConfig tunes the relay.
type RelayConfig struct {
	HistoryLimit    int
	MaxContentBytes int
}

// Relay orchestrates the chat path: authorize, normalize, persist,
// broadcast. A message is never visible to subscribers unless it was
// durably recorded first.
type Relay struct {
	store      Store
	rooms      *Registry
	encoder    Encoder
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger

	historyLimit    int
	maxContentBytes int
}

// NewRelay wires the relay with its collaborators.
func NewRelay(store Store, rooms *Registry, encoder Encoder, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger, cfg RelayConfig) *Relay {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = 255
	}
	return &Relay{
		store:           store,
		rooms:           rooms,
		encoder:         encoder,
		dispatcher:      dispatcher,
		metrics:         metrics,
		logger:          logger,
		historyLimit:    cfg.HistoryLimit,
		maxContentBytes: cfg.MaxContentBytes,
	}
}

// HandleJoin subscribes the connection to the project room, records and
// broadcasts the synthesized ENTER event, and returns the most recent
// history so the client can render it before live updates arrive. The
// history read may race concurrent broadcasts; it reflects events
// committed strictly before the read began.
func (r *Relay) HandleJoin(ctx context.Context, conn *Connection, projectID int64) ([]domain.ChatEvent, error) {
	if conn.Identity.Anonymous() {
		return nil, ErrUnauthorized
	}

	r.rooms.Join(projectID, conn)

	// A failed join must leave no trace: the membership is rolled back
	// so the connection neither receives broadcasts for a room its
	// owner was told it never entered nor lingers as a delivery target
	// after disconnect.
	if err := r.relay(ctx, conn, projectID, domain.MessageTypeEnter, ""); err != nil {
		r.rooms.Leave(projectID, conn)
		return nil, err
	}

	history, err := r.store.Recent(ctx, projectID, r.historyLimit)
	if err != nil {
		r.rooms.Leave(projectID, conn)
		return nil, err
	}

	r.publish(ctx, events.EventMemberJoined, projectID, conn.Identity.UserID, events.MemberPresencePayload{
		SubjectName: conn.Identity.SubjectName,
		RoomSize:    r.rooms.Members(projectID),
	})
	return history, nil
}

// HandleMessage relays one TALK message from the connection to the room.
func (r *Relay) HandleMessage(ctx context.Context, conn *Connection, projectID int64, inbound Inbound) error {
	if conn.Identity.Anonymous() {
		return ErrUnauthorized
	}
	if !inbound.Kind.Valid() {
		return ErrInvalidMessage
	}
	if inbound.Kind == domain.MessageTypeTalk {
		if inbound.Content == "" {
			return fmt.Errorf("%w: empty content", ErrInvalidMessage)
		}
		if len(inbound.Content) > r.maxContentBytes {
			return fmt.Errorf("%w: %d bytes exceeds cap of %d", ErrMessageTooLarge, len(inbound.Content), r.maxContentBytes)
		}
	}
	return r.relay(ctx, conn, projectID, inbound.Kind, inbound.Content)
}

// HandleLeave removes the connection from the room and announces the
// departure. Deregistration happens first so the QUIT broadcast is not
// echoed back to the leaving connection.
func (r *Relay) HandleLeave(ctx context.Context, conn *Connection, projectID int64) error {
	if conn.Identity.Anonymous() {
		r.rooms.Leave(projectID, conn)
		return ErrUnauthorized
	}

	r.rooms.Leave(projectID, conn)

	err := r.relay(ctx, conn, projectID, domain.MessageTypeQuit, "")
	r.publish(ctx, events.EventMemberLeft, projectID, conn.Identity.UserID, events.MemberPresencePayload{
		SubjectName: conn.Identity.SubjectName,
		RoomSize:    r.rooms.Members(projectID),
	})
	return err
}

// History serves the recent page for the REST fallback transport.
func (r *Relay) History(ctx context.Context, projectID int64, limit int) ([]domain.ChatEvent, error) {
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	return r.store.Recent(ctx, projectID, limit)
}

// Publish records and broadcasts a TALK message on behalf of an identity
// without a realtime connection (REST fallback path).
func (r *Relay) Publish(ctx context.Context, identity domain.Identity, displayName string, projectID int64, content string) error {
	if identity.Anonymous() {
		return ErrUnauthorized
	}
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if len(content) > r.maxContentBytes {
		return fmt.Errorf("%w: %d bytes exceeds cap of %d", ErrMessageTooLarge, len(content), r.maxContentBytes)
	}

	event := r.normalize(identity, displayName, projectID, domain.MessageTypeTalk, content)
	return r.commitAndFanOut(ctx, event)
}

// relay builds the normalized event for the connection and runs the
// persist-then-broadcast sequence.
func (r *Relay) relay(ctx context.Context, conn *Connection, projectID int64, kind domain.MessageType, content string) error {
	event := r.normalize(conn.Identity, conn.DisplayName(), projectID, kind, content)
	return r.commitAndFanOut(ctx, event)
}

// normalize derives sender fields from the verified identity, assigns the
// server timestamp, and synthesizes presence content for ENTER/QUIT.
func (r *Relay) normalize(identity domain.Identity, displayName string, projectID int64, kind domain.MessageType, content string) *domain.ChatEvent {
	if displayName == "" {
		displayName = identity.SubjectName
	}

	switch kind {
	case domain.MessageTypeEnter:
		content = displayName + " joined"
	case domain.MessageTypeQuit:
		content = displayName + " left"
	}

	return &domain.ChatEvent{
		ProjectID:  projectID,
		SenderID:   identity.UserID,
		SenderName: displayName,
		Content:    content,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	}
}

func (r *Relay) commitAndFanOut(ctx context.Context, event *domain.ChatEvent) error {
	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("chat append failed",
			zap.Int64("project_id", event.ProjectID),
			zap.Int64("sender_id", event.SenderID),
			zap.Error(err))
		return err
	}
	r.metrics.RecordMessageRelayed()

	payload, err := r.encoder.EncodeEvent(*event)
	if err != nil {
		return fmt.Errorf("encode outbound event: %w", err)
	}

	delivered, errs := r.rooms.Broadcast(event.ProjectID, payload)
	r.metrics.RecordBroadcast(delivered, len(errs))
	if len(errs) > 0 {
		r.logger.Warn("broadcast partially failed",
			zap.Int64("project_id", event.ProjectID),
			zap.Int("delivered", delivered),
			zap.Int("failed", len(errs)))
		r.publish(ctx, events.EventBroadcastDegraded, event.ProjectID, event.SenderID, events.BroadcastDegradedPayload{
			Delivered: delivered,
			Failed:    len(errs),
		})
	}

	r.publish(ctx, events.EventChatMessageRecorded, event.ProjectID, event.SenderID, events.ChatMessageRecordedPayload{
		ChatID: event.ID,
		Kind:   event.Kind,
	})
	return nil
}

func (r *Relay) publish(ctx context.Context, eventType events.EventType, projectID, userID int64, payload interface{}) {
	if r.dispatcher == nil {
		return
	}
	_ = r.dispatcher.Publish(ctx, events.Event{
		Type:      eventType,
		ProjectID: projectID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
