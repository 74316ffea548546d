// Package server assembles the services, the HTTP API and the gRPC health
// endpoint, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/gate"
	gs "github.com/dmitrijs2005/stylist/internal/server/grpc"
	"github.com/dmitrijs2005/stylist/internal/server/httpapi"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/outfits"
	"github.com/dmitrijs2005/stylist/internal/server/provider"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/stylist/internal/server/services"
	"github.com/dmitrijs2005/stylist/internal/server/storage"
	"github.com/dmitrijs2005/stylist/internal/server/tryon"
)

const (
	shutdownTimeout     = 10 * time.Second
	tokenPurgeInterval  = time.Hour
	maintenanceInterval = 5 * time.Minute
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	pinger   pinger
	tokens   *services.TokenService
	jobs     *tryon.Registry
	limiter  *httpapi.RateLimiter
	registry *prometheus.Registry
	handler  http.Handler
}

// NewApp connects to PostgreSQL, applies migrations and wires every service.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.StorageTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db, dbx.NewSQLTransactor(db, nil), m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.db = db
	app.pinger = db
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db dbx.DBTX, tx dbx.Transactor,
	m repomanager.RepositoryManager) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.NewCollector(reg)

	tokens := services.NewTokenService(db, tx, m, c, logger, mx)
	ledger := services.NewEntitlementLedger(db, tx, m, c, logger, mx)
	accounts := services.NewAccountService(db, tx, m, tokens, ledger, c, logger)
	billing := services.NewBillingService(tx, m, ledger, logger)

	var results tryon.ResultStore
	if c.S3Enabled() {
		store, err := storage.NewResultStore(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("result storage init error: %w", err)
		}
		results = store
	}

	jobs := tryon.NewRegistry(tryon.DefaultJobTTL)
	orchestrator := tryon.NewOrchestrator(provider.NewClient(c), ledger, jobs, results, c, logger, mx)
	limiter := httpapi.NewRateLimiter(c.TryOnRatePerMinute)

	app := &App{
		config:   c,
		logger:   logger,
		tokens:   tokens,
		jobs:     jobs,
		limiter:  limiter,
		registry: reg,
	}

	app.handler = httpapi.NewRouter(httpapi.Deps{
		Accounts:      accounts,
		Tokens:        tokens,
		Ledger:        ledger,
		Billing:       billing,
		Gate:          gate.New(tokens, ledger),
		TryOns:        orchestrator,
		Jobs:          jobs,
		Outfits:       outfits.NewService(c, ledger, logger),
		Limiter:       limiter,
		DB:            app,
		Gatherer:      reg,
		Metrics:       mx,
		Logger:        logger,
		BillingSecret: c.BillingSecret,
	})
	return app, nil
}

// PingContext reports database readiness; without a database it always succeeds.
func (app *App) PingContext(ctx context.Context) error {
	if app.pinger == nil {
		return nil
	}
	return app.pinger.PingContext(ctx)
}

// Run serves HTTP and gRPC health until ctx is canceled or SIGINT/SIGTERM
// arrives, then shuts both down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	httpLis, err := net.Listen("tcp", app.config.EndpointAddrHTTP)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.serveHTTP(ctx, httpLis)
	})
	g.Go(func() error {
		return gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, app, 0).Run(ctx)
	})
	g.Go(func() error {
		app.jobs.RunCleanup(ctx, maintenanceInterval)
		return nil
	})
	g.Go(func() error {
		app.maintain(ctx)
		return nil
	})

	err = g.Wait()
	if app.db != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Error(context.Background(), "db close error", "error", cerr)
		}
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) serveHTTP(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// maintain purges expired refresh records and idle rate limiters.
func (app *App) maintain(ctx context.Context) {
	purge := time.NewTicker(tokenPurgeInterval)
	defer purge.Stop()
	idle := time.NewTicker(maintenanceInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			n, err := app.tokens.PurgeExpired(ctx)
			if err != nil {
				app.logger.Error(ctx, "refresh token purge failed", "error", err)
				continue
			}
			app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
		case <-idle.C:
			app.limiter.Cleanup()
		}
	}
}
