// Package repomanager vends repositories bound to a database handle or a
// transaction, so services can run several repositories in one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/usageevents"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	UsageEvents(db dbx.DBTX) usageevents.Repository
}
