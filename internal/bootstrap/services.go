package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/cashier/config"
	"github.com/target/cashier/internal/adapters/browser"
	"github.com/target/cashier/internal/adapters/console"
	"github.com/target/cashier/internal/adapters/reaper"
	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/data"
	httpx "github.com/target/cashier/internal/http"
	"github.com/target/cashier/internal/observability/statsd"
	"github.com/target/cashier/internal/service/executor"
	"github.com/target/cashier/internal/service/jobs"
	"github.com/target/cashier/internal/service/sessionpool"
)

// shutdownWaitTimeout bounds how long running jobs get to finish on shutdown.
const shutdownWaitTimeout = 30 * time.Second

// AppDeps holds the infrastructure an App is built on. Everything except Config is optional.
type AppDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger

	// Driver overrides the Playwright driver; the App does not stop an injected driver.
	Driver  core.BrowserDriver
	DB      *sql.DB               // enables the job outcome archive
	Redis   redis.UniversalClient // enables the Redis session state store
	Metrics statsd.Sink
}

// App is the wired cashier process: HTTP API, job manager, executor and session pool.
type App struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	Handler http.Handler
	Manager *jobs.Manager
	Pool    *sessionpool.Pool

	server     *http.Server
	reaper     *reaper.Runner
	stopDriver func() error
}

// NewApp wires every component from deps.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{cfg: cfg, logger: logger, stopDriver: func() error { return nil }}

	driver := deps.Driver
	if driver == nil {
		pw, err := browser.NewDriver(browser.DriverOptions{Install: cfg.Browser.Install, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("start browser driver: %w", err)
		}
		driver = pw
		app.stopDriver = pw.Stop
	}

	profile, err := console.LoadProfile(cfg.Console.ProfilePath)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("load console profile: %w", err), app.stopDriver())
	}

	artifactStore, err := BuildArtifactStore(ctx, cfg.Artifacts, logger)
	if err != nil {
		return nil, errors.Join(err, app.stopDriver())
	}

	sealer, err := CreateSealer(cfg.Pool.StateEncryptionKey, logger)
	if err != nil {
		return nil, errors.Join(err, app.stopDriver())
	}
	states := BuildStateStore(deps.Redis, cfg.Redis.KeyPrefix, sealer)

	pool, err := sessionpool.New(sessionpool.Options{
		Driver:           driver,
		BaseURL:          cfg.Browser.BaseURL,
		MaxAgents:        cfg.Pool.MaxAgents,
		TTL:              cfg.Pool.TTL,
		ResourceBlocking: cfg.Pool.ResourceBlocking,
		DefaultTimeout:   cfg.Browser.DefaultTimeout,
		StateStore:       states,
		Logger:           logger,
		Metrics:          deps.Metrics,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create session pool: %w", err), app.stopDriver())
	}
	app.Pool = pool

	exec, err := executor.New(executor.Options{
		Pool:       pool,
		Console:    console.NewFactory(profile),
		BaseURL:    cfg.Browser.BaseURL,
		StateStore: states,
		StateTTL:   cfg.Pool.StateTTL,
		Artifacts:  artifactStore,
		Machine: executor.MachineSettings{
			PollInterval:  cfg.Funds.PollInterval,
			VerifyTimeout: cfg.Funds.VerifyTimeout,
			StepTimeout:   cfg.Funds.StepTimeout,
			Tolerance:     cfg.Funds.Tolerance,
			AuthAttempts:  cfg.Funds.AuthAttempts,
		},
		Logger:  logger,
		Metrics: deps.Metrics,
	})
	if err != nil {
		pool.Close()
		return nil, errors.Join(fmt.Errorf("create executor: %w", err), app.stopDriver())
	}

	var archive core.JobArchive
	if deps.DB != nil {
		repo := data.NewJobArchiveRepo(deps.DB)
		archive = repo
		if cfg.Postgres.ArchiveRetention > 0 {
			app.reaper, err = reaper.NewRunner(reaper.RunnerOptions{
				Repo:      repo,
				Retention: cfg.Postgres.ArchiveRetention,
				Interval:  cfg.Postgres.ArchivePruneInterval,
				Logger:    logger,
				Metrics:   deps.Metrics,
			})
			if err != nil {
				pool.Close()
				return nil, errors.Join(fmt.Errorf("create archive reaper: %w", err), app.stopDriver())
			}
		}
	}

	manager, err := jobs.NewManager(jobs.ManagerOptions{
		Executor:      exec,
		Concurrency:   cfg.Jobs.Concurrency,
		TTL:           cfg.Jobs.TTL,
		SweepInterval: cfg.Jobs.SweepInterval,
		JobTimeout:    cfg.Jobs.Timeout,
		Archive:       archive,
		Logger:        logger,
		Metrics:       deps.Metrics,
	})
	if err != nil {
		pool.Close()
		return nil, errors.Join(fmt.Errorf("create job manager: %w", err), app.stopDriver())
	}
	app.Manager = manager

	app.Handler = httpx.NewRouter(httpx.RouterServices{
		Jobs:     manager,
		Pool:     pool,
		Defaults: cfg.ExecutionDefaults(),
		Logger:   logger,
	})
	app.server = newHTTPServer(cfg.HTTP, app.Handler)

	logger.InfoContext(ctx, "cashier wired",
		"base_url", cfg.Browser.BaseURL,
		"concurrency", cfg.Jobs.Concurrency,
		"pool_max_agents", cfg.Pool.MaxAgents,
		"archive", archive != nil,
		"redis_state", deps.Redis != nil,
		"artifacts", string(cfg.Artifacts.Backend),
	)
	return app, nil
}

// Run serves HTTP and background loops until ctx is canceled or one of them fails, then stops
// everything in order: HTTP, job intake, running jobs, pool, driver.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.reaper != nil {
		g.Go(func() error { return a.reaper.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down services...")

	var errs []error
	if err := ShutdownHTTPServer(ShutdownConfig{
		Context: context.Background(),
		Server:  a.server,
		Timeout: a.cfg.HTTP.ShutdownTimeout,
		Logger:  a.logger,
	}); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}

	a.Close()
	return errors.Join(errs...)
}

// Close stops job intake, waits for running jobs, then releases browsers. It is safe to call
// after Run has returned.
func (a *App) Close() {
	a.Manager.Shutdown()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()
	if err := a.Manager.Wait(waitCtx); err != nil {
		a.logger.Warn("timeout waiting for running jobs", "error", err)
	}

	a.Pool.Close()
	if err := a.stopDriver(); err != nil {
		a.logger.Error("stop browser driver failed", "error", err)
	}
	a.stopDriver = func() error { return nil }
	a.logger.Info("services stopped")
}
