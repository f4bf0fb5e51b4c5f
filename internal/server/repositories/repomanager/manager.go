package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/files"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/records"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/relations"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// pick either the pool or an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
	Files(db dbx.DBTX) files.Repository
	Relations(db dbx.DBTX) relations.Repository
}
