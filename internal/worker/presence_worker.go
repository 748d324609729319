package worker

import (
	"github.com/spec-kit/teamspace-service/internal/service"
)

// StartPresenceWorker registers presence event handlers.
func StartPresenceWorker(presenceService *service.PresenceService) {
	if presenceService == nil {
		return
	}
	presenceService.RegisterHandlers()
}
