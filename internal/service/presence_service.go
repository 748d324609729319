package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/events"
)

// PresenceService observes relay events for operational visibility:
// joins, leaves, and degraded broadcasts end up in the structured log.
type PresenceService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewPresenceService creates the service.
func NewPresenceService(dispatcher events.Dispatcher, logger *zap.Logger) *PresenceService {
	return &PresenceService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to relay events.
func (p *PresenceService) RegisterHandlers() {
	if p.dispatcher == nil {
		return
	}
	p.dispatcher.Subscribe(events.EventMemberJoined, p.handleMemberJoined)
	p.dispatcher.Subscribe(events.EventMemberLeft, p.handleMemberLeft)
	p.dispatcher.Subscribe(events.EventBroadcastDegraded, p.handleBroadcastDegraded)
}

func (p *PresenceService) handleMemberJoined(_ context.Context, event events.Event) error {
	p.logger.Info("member joined room",
		zap.Int64("project_id", event.ProjectID),
		zap.Int64("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (p *PresenceService) handleMemberLeft(_ context.Context, event events.Event) error {
	p.logger.Info("member left room",
		zap.Int64("project_id", event.ProjectID),
		zap.Int64("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (p *PresenceService) handleBroadcastDegraded(_ context.Context, event events.Event) error {
	p.logger.Warn("broadcast degraded",
		zap.Int64("project_id", event.ProjectID),
		zap.Any("payload", event.Payload))
	return nil
}
