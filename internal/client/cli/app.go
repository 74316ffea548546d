package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/stylist/internal/client/client"
	"github.com/dmitrijs2005/stylist/internal/client/config"
	"github.com/dmitrijs2005/stylist/internal/client/repositories/history"
	"github.com/dmitrijs2005/stylist/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/stylist/internal/client/services"
	"github.com/dmitrijs2005/stylist/internal/dbx"
)

const pingTimeout = 3 * time.Second

type App struct {
	config  *config.Config
	db      *sql.DB
	auth    services.AuthService
	styling services.StylingService
	reader  *bufio.Reader
	out     io.Writer
}

// NewApp opens the state database at c.StatePath and wires the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	db, err := client.InitDatabase(ctx, c.StatePath)
	if err != nil {
		return nil, fmt.Errorf("state database: %w", err)
	}

	meta := metadata.NewSQLiteRepository(db, dbx.NewSQLTransactor(db, nil))
	api := client.NewHTTPClient(c.ServerURL, &http.Client{Timeout: c.RequestTimeout}, services.NewTokenStore(meta))

	return &App{
		config:  c,
		db:      db,
		auth:    services.NewAuthService(api, meta),
		styling: services.NewStylingService(api, history.NewSQLiteRepository(db)),
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run blocks in the REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()

	fmt.Fprintln(a.out, "Welcome to the stylist CLI (type 'help' for commands)")
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	if err := a.auth.Ping(pingCtx); err != nil {
		fmt.Fprintf(a.out, "Warning: %s is not reachable: %v\n", a.config.ServerURL, err)
	}
	cancel()

	runREPL(ctx, a, func() string { return a.prompt(ctx) }, a.reader)
	return nil
}

func (a *App) isLoggedIn(ctx context.Context) bool {
	_, _, ok := a.auth.CurrentUser(ctx)
	return ok
}

func (a *App) prompt(ctx context.Context) string {
	name, guest, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return "(signed out)"
	}
	if guest {
		return fmt.Sprintf("(%s, guest)", name)
	}
	return fmt.Sprintf("(%s)", name)
}
