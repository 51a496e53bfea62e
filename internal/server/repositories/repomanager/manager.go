package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/exius/internal/dbx"
	"github.com/dmitrijs2005/exius/internal/server/repositories/relays"
	"github.com/dmitrijs2005/exius/internal/server/repositories/subjectkeys"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Relays(db dbx.DBTX) relays.Repository
	SubjectKeys(db dbx.DBTX, relayName string) subjectkeys.Repository
}
