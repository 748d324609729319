package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/teamspace-service/internal/api/dto"
	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/chat"
	"github.com/spec-kit/teamspace-service/internal/repository"
	apperrors "github.com/spec-kit/teamspace-service/pkg/util"
)

// ChatsHandler is the fallback transport for clients without websocket
// support: history reads and publishes go through the same relay, so REST
// publishes still fan out to realtime subscribers.
type ChatsHandler struct {
	relay *chat.Relay
	users repository.UserRepository
}

// NewChatsHandler constructs handler.
func NewChatsHandler(relay *chat.Relay, users repository.UserRepository) *ChatsHandler {
	return &ChatsHandler{relay: relay, users: users}
}

// History handles GET /api/projects/:projectId/chats.
func (h *ChatsHandler) History(c *fiber.Ctx) error {
	projectID, err := strconv.ParseInt(c.Params("projectId"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid project id")
	}

	limit := c.QueryInt("limit", 0)
	events, err := h.relay.History(c.Context(), projectID, limit)
	if err != nil {
		return mapRelayError(err)
	}

	out := make([]dto.ChatMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, dto.ChatMessageFromEvent(ev))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Publish handles POST /api/projects/:projectId/chats.
func (h *ChatsHandler) Publish(c *fiber.Ctx) error {
	projectID, err := strconv.ParseInt(c.Params("projectId"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid project id")
	}

	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.PublishChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.MessageContent == "" {
		return fiber.NewError(http.StatusBadRequest, "messageContent required")
	}

	displayName := identity.SubjectName
	if user, err := h.users.GetByID(c.Context(), identity.UserID); err == nil {
		displayName = user.DisplayName
	}

	if err := h.relay.Publish(c.Context(), identity, displayName, projectID, req.MessageContent); err != nil {
		return mapRelayError(err)
	}
	return c.SendStatus(http.StatusAccepted)
}

func mapRelayError(err error) error {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		return apperrors.NewUnauthorized("authentication required")
	case errors.Is(err, chat.ErrMessageTooLarge), errors.Is(err, chat.ErrInvalidMessage):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, chat.ErrPersistence):
		return apperrors.NewPersistenceFailure(err)
	default:
		return apperrors.MapError(err)
	}
}
