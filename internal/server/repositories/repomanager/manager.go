package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/leases"
	"github.com/dmitrijs2005/chunkvault/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against *sql.DB or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Leases(db dbx.DBTX) leases.Repository
}
