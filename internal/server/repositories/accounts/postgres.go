package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/dbx"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, email, username, password_hash, gender, status, is_verified,
		 verification_attempts, verified_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	query :=
		`INSERT INTO accounts (id, email, username, password_hash, gender, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Email, account.Username, account.PasswordHash, account.Gender, account.Status,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if constraint, ok := dbx.IsUniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", common.ErrConflict, constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE email = $1`

	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE id = $1`

	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE email = $1 OR username = $2
		 ORDER BY created_at
		 LIMIT 1`

	return r.getOne(ctx, query, email, username)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, email string, at time.Time) error {
	query :=
		`UPDATE accounts
		 SET is_verified = TRUE,
		     status = 'active',
		     verified_at = $2,
		     verification_attempts = verification_attempts + 1,
		     updated_at = $2
		 WHERE email = $1 AND is_verified = FALSE`

	res, err := r.db.ExecContext(ctx, query, email, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a := &models.Account{}
	var verifiedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.Gender, &a.Status, &a.IsVerified,
		&a.VerificationAttempts, &verifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}

	return a, nil
}
