// Package refreshtokens declares the repository contract for persisted
// refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	// Create stores a refresh token for accountID that expires at expiresAt.
	Create(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error

	// Consume deletes the token and returns the removed row. Of several
	// concurrent callers only one gets the row; the rest see
	// common.ErrNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete is idempotent: removing a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every token whose expiry is not after now and
	// reports how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
