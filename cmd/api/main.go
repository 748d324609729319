package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/teamspace-service/internal/api/http"
	"github.com/spec-kit/teamspace-service/internal/api/http/handlers"
	"github.com/spec-kit/teamspace-service/internal/api/ws"
	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/chat"
	"github.com/spec-kit/teamspace-service/internal/config"
	"github.com/spec-kit/teamspace-service/internal/events"
	"github.com/spec-kit/teamspace-service/internal/observability"
	"github.com/spec-kit/teamspace-service/internal/persistence"
	"github.com/spec-kit/teamspace-service/internal/repository"
	"github.com/spec-kit/teamspace-service/internal/service"
	"github.com/spec-kit/teamspace-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)

	tokenCodec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, userRepo, tokenCodec)
	projectService := service.NewProjectService(projectRepo)
	authMiddleware := auth.NewMiddleware(tokenCodec)

	presenceService := service.NewPresenceService(dispatcher, logger)
	worker.StartPresenceWorker(presenceService)

	chatStore := chat.NewCachedStore(
		chat.NewPostgresStore(pool, cfg.Chat.AppendTimeout()),
		redis.ClientHandle(),
		cfg.Chat.HistoryLimit,
		cfg.Chat.CacheTTL(),
		logger,
	)
	rooms := chat.NewRegistry()
	relay := chat.NewRelay(chatStore, rooms, ws.FrameEncoder{}, dispatcher, metrics, logger, chat.RelayConfig{
		HistoryLimit:    cfg.Chat.HistoryLimit,
		MaxContentBytes: cfg.Chat.MaxMessageBytes,
	})

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.CORS, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	authHandler := handlers.NewAuthHandler(authService)
	projectsHandler := handlers.NewProjectsHandler(projectService)
	chatsHandler := handlers.NewChatsHandler(relay, userRepo)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           authHandler,
		Projects:       projectsHandler,
		Chats:          chatsHandler,
		AuthMiddleware: authMiddleware,
	})

	wsHandler := ws.NewHandler(relay, userRepo, metrics, logger, cfg.Chat.SendBufferSize, cfg.CORS.AllowedOrigins)
	// Token verification already ran in the /api group middleware.
	app.Use("/api/chat", wsHandler.Upgrade())
	app.Get("/api/chat", wsHandler.Socket())

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
