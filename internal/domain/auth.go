package domain

import "time"

// Identity is the verified caller extracted from a valid token.
// It is immutable once issued; downstream components never see the raw token.
type Identity struct {
	SubjectName string
	UserID      int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Anonymous reports whether the identity carries no authenticated subject.
func (i Identity) Anonymous() bool {
	return i.UserID == 0 && i.SubjectName == ""
}
