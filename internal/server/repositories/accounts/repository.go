// Package accounts declares the account repository contract and its
// PostgreSQL implementation.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a pending account. A duplicate email or username yields
	// an error matching common.ErrConflict.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetByEmailOrUsername returns the first account matching either value.
	GetByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error)
	// MarkVerified activates an unverified account in one conditional update.
	// It returns common.ErrNotFound when no unverified row matched.
	MarkVerified(ctx context.Context, email string, at time.Time) error
}
