package domain

import "time"

// Project is a thin view of a team project; project business rules live
// outside this service and are consumed through ProjectRepository.
type Project struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	CreatedAt   time.Time
}
