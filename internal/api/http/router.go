package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/teamspace-service/internal/api/http/handlers"
	"github.com/spec-kit/teamspace-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Projects       *handlers.ProjectsHandler
	Chats          *handlers.ChatsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes. The auth middleware resolves the
// caller identity for every /api route; only the routes behind
// RequireIdentity reject anonymous callers.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)

	projects := api.Group("/projects", auth.RequireIdentity())
	projects.Get("/", cfg.Projects.List)
	projects.Get("/:id", cfg.Projects.Get)

	// REST fallback for the realtime chat transport.
	projects.Get("/:projectId/chats", cfg.Chats.History)
	projects.Post("/:projectId/chats", cfg.Chats.Publish)
}
