package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/linksphere/internal/dbx"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/linksphere/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, plus the schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
