package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/migrations"
)

const usage = `usage: odyssey [command]

commands:
  serve                         run the HTTP API (default)
  migrate up|down|version       manage the database schema
  ledger verify [--as-of DATE] [--json]
                                replay posted history against stored balances
  jobs trigger <task> [--as-of DATE]
                                enqueue ledger:integrity or ledger:reports_warmup
  jobs stats                    print default queue counters
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = runMigrate(cfg, logger, args)
	case "ledger":
		os.Exit(runLedger(ctx, cfg, logger, args))
	case "jobs":
		err = runJobs(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

type services struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	cache    *reports.Cache
	metrics  *observability.Metrics
	accounts *accounts.Service
	journals *journals.Service
	ledger   *ledger.Service
	reports  *reports.Service
}

func (s *services) Close(logger *slog.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	s.pool.Close()
}

func buildServices(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*services, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	s := &services{pool: pool, metrics: observability.NewMetrics()}

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("report cache disabled", slog.Any("error", err))
	} else {
		s.redis = redisClient
		s.cache = reports.NewCache(redisClient, cfg.ReportCacheTTL)
	}

	auditLogger := shared.NewAuditLogger(pool)
	accountsRepo := accounts.NewRepository(pool)
	s.accounts = accounts.NewService(accountsRepo, auditLogger)
	s.journals = journals.NewService(journals.NewRepository(pool), auditLogger).
		WithMetrics(s.metrics).
		WithLogger(logger)
	if s.cache != nil {
		s.journals.WithCache(s.cache)
	}
	s.ledger = ledger.NewService(accountsRepo, ledger.NewRepository(pool))

	var snapshots reports.SnapshotStore
	if s.redis != nil {
		snapshots = reports.NewSnapshotStore(s.redis)
	}
	s.reports = reports.NewService(accountsRepo, s.ledger, s.cache, snapshots, logger)
	return s, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close(logger)

	inspector := asynq.NewInspector(cfg.RedisOptions().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, svc.accounts),
		JournalsHandler: journals.NewHandler(logger, svc.journals),
		LedgerHandler:   ledger.NewHandler(logger, svc.ledger),
		ReportsHandler:  reports.NewHandler(logger, svc.reports),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         svc.metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("migrate: expected up, down or version")
	}
	m, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("migrator close", slog.Any("error", err))
		}
	}()
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("migrate: unknown action %q", args[0])
	}
}

func runLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("ledger verify", flag.ContinueOnError)
	asOf := fs.String("as-of", "", "trial balance date (YYYY-MM-DD), default today")
	jsonOut := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	defer svc.Close(logger)

	job := jobs.NewLedgerIntegrityJob(svc.ledger, logger, nil, svc.metrics)
	ledgerCLI, err := cli.NewLedgerOpsCLI(job)
	if err != nil {
		logger.Error("ledger cli", slog.Any("error", err))
		return 1
	}
	return ledgerCLI.VerifyCommand(ctx, cli.LedgerVerifyOptions{AsOf: *asOf, JSONOutput: *jsonOut})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("jobs: expected trigger or stats")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisOptions().Asynq())
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: task name required")
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		asOf := fs.String("as-of", "", "date passed to the task (YYYY-MM-DD)")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := jobsCLI.Trigger(ctx, args[1], *asOf)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		return jobsCLI.StatsCommand(os.Stdout)
	default:
		return fmt.Errorf("jobs: unknown action %q", args[0])
	}
}
