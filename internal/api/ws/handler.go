// Package ws is the realtime transport: it upgrades authenticated HTTP
// requests to websockets and bridges inbound frames to the chat relay.
//
// Frame format, both directions:
//
//	{"destination": "chat/42", "message": {...}}        inbound publish
//	{"destination": "projects/42", "message": {...}}    outbound fan-out
//	{"destination": "history/42", "messages": [...]}    join snapshot
//	{"destination": "errors", "error": {...}}           per-message rejection
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/api/dto"
	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/chat"
	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/observability"
	"github.com/spec-kit/teamspace-service/internal/repository"
)

const (
	readTimeout    = 60 * time.Second
	maxFrameBytes  = 1 << 16
	lookupTimeout  = 3 * time.Second
	publishPrefix  = "chat/"
	deliverPattern = "projects/%d"
	historyPattern = "history/%d"
)

type inboundFrame struct {
	Destination string          `json:"destination"`
	Message     dto.ChatMessage `json:"message"`
}

type outboundFrame struct {
	Destination string            `json:"destination"`
	Message     *dto.ChatMessage  `json:"message,omitempty"`
	Messages    []dto.ChatMessage `json:"messages,omitempty"`
	Error       *frameError       `json:"error,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FrameEncoder renders relayed events as outbound fan-out frames.
type FrameEncoder struct{}

// EncodeEvent implements chat.Encoder.
func (FrameEncoder) EncodeEvent(ev domain.ChatEvent) ([]byte, error) {
	msg := dto.ChatMessageFromEvent(ev)
	return json.Marshal(outboundFrame{
		Destination: fmt.Sprintf(deliverPattern, ev.ProjectID),
		Message:     &msg,
	})
}

// Handler serves the websocket chat endpoint.
type Handler struct {
	relay      *chat.Relay
	users      repository.UserRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
	bufferSize int
	origins    []string
}

// NewHandler constructs the handler.
func NewHandler(relay *chat.Relay, users repository.UserRepository, metrics *observability.Metrics, logger *zap.Logger, bufferSize int, origins []string) *Handler {
	return &Handler{
		relay:      relay,
		users:      users,
		metrics:    metrics,
		logger:     logger,
		bufferSize: bufferSize,
		origins:    origins,
	}
}

// Upgrade gates the endpoint: only authenticated websocket upgrade
// requests proceed. Token verification happened in the auth middleware;
// a connection keeps its identity for its whole lifetime.
func (h *Handler) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if _, ok := auth.IdentityFromContext(c); !ok {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	}
}

// Socket returns the upgraded connection handler.
func (h *Handler) Socket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		h.serve(c)
	}, websocket.Config{Origins: h.origins})
}

func (h *Handler) serve(c *websocket.Conn) {
	identity, ok := c.Locals(auth.IdentityLocalKey).(domain.Identity)
	if !ok || identity.Anonymous() {
		_ = c.Close()
		return
	}

	conn := chat.NewConnection(identity, h.resolveDisplayName(identity), c, h.bufferSize)
	conn.Start()
	h.metrics.ConnectionOpened()

	h.logger.Info("websocket connected",
		zap.String("connection_id", conn.ID),
		zap.Int64("user_id", identity.UserID))

	var currentRoom int64

	defer func() {
		// Closing the connection is an implicit leave; no in-flight work
		// is retried on its behalf.
		if currentRoom != 0 {
			_ = h.relay.HandleLeave(context.Background(), conn, currentRoom)
		}
		conn.Close()
		h.metrics.ConnectionClosed()
		h.logger.Info("websocket disconnected",
			zap.String("connection_id", conn.ID),
			zap.Int64("user_id", identity.UserID))
	}()

	c.SetReadLimit(maxFrameBytes)
	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(conn, "VALIDATION_FAILED", "malformed frame")
			continue
		}

		projectID, err := parsePublishDestination(frame.Destination)
		if err != nil {
			h.sendError(conn, "VALIDATION_FAILED", err.Error())
			continue
		}

		currentRoom = h.dispatch(conn, currentRoom, projectID, frame.Message)
		if conn.Closed() {
			return
		}
	}
}

// dispatch routes one decoded frame to the relay and returns the room
// the connection is subscribed to afterwards.
func (h *Handler) dispatch(conn *chat.Connection, currentRoom, projectID int64, msg dto.ChatMessage) int64 {
	ctx := context.Background()

	switch msg.Type {
	case domain.MessageTypeEnter:
		if currentRoom != 0 && currentRoom != projectID {
			_ = h.relay.HandleLeave(ctx, conn, currentRoom)
			// The old room is already left; forgetting it here keeps a
			// failed join below from resurrecting it at disconnect.
			currentRoom = 0
		}
		history, err := h.relay.HandleJoin(ctx, conn, projectID)
		if err != nil {
			h.relayError(conn, err)
			return currentRoom
		}
		h.sendHistory(conn, projectID, history)
		return projectID

	case domain.MessageTypeQuit:
		if err := h.relay.HandleLeave(ctx, conn, projectID); err != nil {
			h.relayError(conn, err)
		}
		if currentRoom == projectID {
			return 0
		}
		return currentRoom

	default:
		err := h.relay.HandleMessage(ctx, conn, projectID, chat.Inbound{
			Kind:    msg.Type,
			Content: msg.MessageContent,
		})
		if err != nil {
			h.relayError(conn, err)
		}
		return currentRoom
	}
}

func (h *Handler) resolveDisplayName(identity domain.Identity) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	user, err := h.users.GetByID(ctx, identity.UserID)
	if err != nil {
		h.logger.Warn("display name lookup failed",
			zap.Int64("user_id", identity.UserID),
			zap.Error(err))
		return identity.SubjectName
	}
	return user.DisplayName
}

func (h *Handler) sendHistory(conn *chat.Connection, projectID int64, events []domain.ChatEvent) {
	msgs := make([]dto.ChatMessage, 0, len(events))
	for _, ev := range events {
		msgs = append(msgs, dto.ChatMessageFromEvent(ev))
	}
	payload, err := json.Marshal(outboundFrame{
		Destination: fmt.Sprintf(historyPattern, projectID),
		Messages:    msgs,
	})
	if err != nil {
		return
	}
	_ = conn.Send(payload)
}

// relayError reports a rejected message to the sender only; other room
// members never see partial or invalid events.
func (h *Handler) relayError(conn *chat.Connection, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		h.sendError(conn, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, chat.ErrMessageTooLarge), errors.Is(err, chat.ErrInvalidMessage):
		h.sendError(conn, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, chat.ErrPersistence):
		h.sendError(conn, "PERSISTENCE_FAILURE", "message not recorded, try again")
	default:
		h.sendError(conn, "INTERNAL_ERROR", "message not processed")
	}
}

func (h *Handler) sendError(conn *chat.Connection, code, message string) {
	payload, err := json.Marshal(outboundFrame{
		Destination: "errors",
		Error:       &frameError{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	_ = conn.Send(payload)
}

func parsePublishDestination(destination string) (int64, error) {
	if !strings.HasPrefix(destination, publishPrefix) {
		return 0, fmt.Errorf("unknown destination %q", destination)
	}
	projectID, err := strconv.ParseInt(strings.TrimPrefix(destination, publishPrefix), 10, 64)
	if err != nil || projectID <= 0 {
		return 0, fmt.Errorf("invalid project id in destination %q", destination)
	}
	return projectID, nil
}
