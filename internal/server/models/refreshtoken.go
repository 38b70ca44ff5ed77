package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a persisted opaque credential; one row per login.
type RefreshToken struct {
	AccountID uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
