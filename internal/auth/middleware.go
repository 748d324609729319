package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/teamspace-service/internal/domain"
	apperrors "github.com/spec-kit/teamspace-service/pkg/util"
)

// IdentityLocalKey is where the resolved identity lives in request
// locals. The websocket transport reads it after the upgrade, since
// fiber copies locals onto the upgraded connection.
const IdentityLocalKey = "auth_identity"

// Middleware extracts and verifies bearer tokens once per request, before
// any business logic. A missing header is not an error by itself: the
// request proceeds anonymous and route-level guards decide access.
type Middleware struct {
	codec *TokenCodec
}

// NewMiddleware constructs the middleware around an explicit codec.
func NewMiddleware(codec *TokenCodec) *Middleware {
	return &Middleware{codec: codec}
}

// Handle resolves the caller identity for the rest of the request
// lifecycle. The raw token is never forwarded past this layer.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	token := extractBearer(c)
	if token == "" {
		return c.Next()
	}

	identity, err := m.codec.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return apperrors.NewTokenExpired()
		}
		return apperrors.NewTokenInvalid()
	}

	c.Locals(IdentityLocalKey, identity)
	return c.Next()
}

// RequireIdentity guards routes that demand an authenticated caller.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := IdentityFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// IdentityFromContext retrieves the verified identity, if any.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	val := c.Locals(IdentityLocalKey)
	if val == nil {
		return domain.Identity{}, false
	}
	identity, ok := val.(domain.Identity)
	if !ok || identity.Anonymous() {
		return domain.Identity{}, false
	}
	return identity, true
}

func extractBearer(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		// Other Authorization schemes carry no credential this service
		// understands; like a missing header, the request proceeds
		// anonymous and route-level guards decide access.
		return ""
	}
	// Browser websocket clients cannot set headers on the handshake.
	return c.Query("token")
}
