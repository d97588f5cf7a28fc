// Package server builds the bridge service's dependencies and runs the HTTP
// server until the process is asked to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/api"
	"github.com/JakeFAU/stagebridge/internal/bridge"
	"github.com/JakeFAU/stagebridge/internal/config"
	"github.com/JakeFAU/stagebridge/internal/logging"
	"github.com/JakeFAU/stagebridge/internal/metrics"
	"github.com/JakeFAU/stagebridge/internal/progress"
	progresssinks "github.com/JakeFAU/stagebridge/internal/progress/sinks"
	"github.com/JakeFAU/stagebridge/internal/session"
	gcsstorage "github.com/JakeFAU/stagebridge/internal/storage/gcs"
	localstorage "github.com/JakeFAU/stagebridge/internal/storage/local"
	memoryStorage "github.com/JakeFAU/stagebridge/internal/storage/memory"
	pgstore "github.com/JakeFAU/stagebridge/internal/storage/postgres"
	"github.com/JakeFAU/stagebridge/internal/store"
	"github.com/JakeFAU/stagebridge/internal/work"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	registerer   prometheus.Registerer
	apiServer    *api.Server
	sessions     *session.Manager
	bridgeCfg    bridge.Config
	progressHub  *progress.Hub
	pubsubClient *pubsub.Client
	storage      *storage.Client
	blobs        progresssinks.BlobStore
	sessionRepo  store.SessionRepository
	pgStore      *pgstore.SessionStore

	closeOnce sync.Once
	closeErr  error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("submit_policy", cfg.Bridge.SubmitPolicy),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
	)
	return &App{
		cfg:        cfg,
		logger:     logger,
		registerer: prometheus.DefaultRegisterer,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// BridgeConfig returns the template used for every bridge started by the
// process, with the shared Work and progress hub already set.
func (a *App) BridgeConfig() bridge.Config {
	return a.bridgeCfg
}

// Sessions exposes the live session registry.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Run starts the HTTP server and blocks until ctx is canceled or the process
// receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	// Event streams only end when their bridge does.
	srv.RegisterOnShutdown(func() {
		if err := a.sessions.Close(shutdownCtx); err != nil {
			a.logger.Warn("session shutdown incomplete", zap.Error(err))
		}
	})
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application: live bridges first so their
// final records reach the hub, then the hub and its sinks, then clients.
// Later calls return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.sessions != nil {
			a.closeErr = a.sessions.Close(ctx)
		}
		a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return a.closeErr
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Build creates the application's dependencies with a logger built from cfg
// and the default Prometheus registry.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWith(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

// BuildWith creates the application's dependencies using the given logger and
// registry for the progress collectors.
func BuildWith(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	reg prometheus.Registerer,
) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if reg != nil {
		app.registerer = reg
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	if err := setupHistory(ctx, app); err != nil {
		return nil, err
	}
	if err := setupArchive(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupProgress(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupSessions(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.apiServer = api.NewServer(app.sessions, app.sessionRepo, *cfg, app.logger.Named("api"))
	return app, nil
}

func setupHistory(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("No DSN specified for database, keeping session history in memory")
		app.sessionRepo = memoryStorage.NewSessionStore()
		return nil
	}
	pg, err := pgstore.NewSessionStore(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}
	if app.cfg.DB.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return err
		}
		app.logger.Info("session schema migrated")
	}
	app.pgStore = pg
	app.sessionRepo = pg
	app.logger.Info("postgres session store initialized")
	return nil
}

func setupArchive(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Archive.Backend {
	case "gcs":
		app.logger.Info("using GCS transcript archive")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		app.blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket:   app.cfg.Archive.GCSBucket,
			Metadata: map[string]string{"service": "stagebridge"},
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS transcript archive", zap.String("bucket", app.cfg.Archive.GCSBucket))
	case "local":
		app.logger.Info("using local transcript archive")
		app.blobs, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local transcript archive", zap.String("path", app.cfg.Archive.BaseDir))
	case "memory":
		app.logger.Info("using in-memory transcript archive")
		app.blobs = memoryStorage.NewBlobStore()
	default:
		app.logger.Info("transcript archive disabled")
	}
	return nil
}

func setupProgress(ctx context.Context, app *App) error {
	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewStoreSink(app.sessionRepo, app.logger.Named("progress_store")),
	}
	if app.cfg.Progress.LogRecords {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	if app.blobs != nil {
		archive, err := progresssinks.NewArchiveSink(app.blobs, progresssinks.ArchiveConfig{
			Prefix:     app.cfg.Archive.Prefix,
			MaxRecords: app.cfg.Archive.MaxRecords,
		}, app.logger.Named("progress_archive"))
		if err != nil {
			return fmt.Errorf("archive sink init failed: %w", err)
		}
		sinkList = append(sinkList, archive)
		app.logger.Debug("Added progress archive sink")
	}
	if app.cfg.PubSub.TopicName != "" {
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		notices, err := progresssinks.NewPubSubSink(
			app.pubsubClient.Topic(app.cfg.PubSub.TopicName),
			app.logger.Named("progress_pubsub"),
		)
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, notices)
		app.logger.Info("Pub/Sub session notices enabled",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
	}

	hubCfg := progress.Config{
		BufferSize:  app.cfg.Progress.BufferSize,
		MaxBatch:    app.cfg.Progress.MaxBatch,
		MaxWait:     app.cfg.Progress.MaxWait,
		SinkTimeout: app.cfg.Progress.SinkTimeout,
		BaseContext: context.WithoutCancel(ctx),
		Logger:      app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch", hubCfg.MaxBatch),
		zap.Duration("max_wait", hubCfg.MaxWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func setupSessions(ctx context.Context, app *App) error {
	wcfg := app.cfg.Work
	w, err := work.New(work.Config{
		Plan: work.PlanConfig{
			StageA:  wcfg.StageA,
			StageB:  wcfg.StageB,
			Cleanup: wcfg.Cleanup,
			Fail:    wcfg.Fail,
		},
		Limits: work.LimiterConfig{
			RPS:   wcfg.AdmissionRPS,
			Burst: wcfg.AdmissionBurst,
		},
	}, app.logger.Named("work"))
	if err != nil {
		return fmt.Errorf("work init failed: %w", err)
	}
	app.logger.Info("stage work configured",
		zap.Duration("stage_a", wcfg.StageA),
		zap.Duration("stage_b", wcfg.StageB),
		zap.Duration("cleanup", wcfg.Cleanup),
		zap.Strings("fail", wcfg.Fail),
		zap.Float64("admission_rps", wcfg.AdmissionRPS),
	)

	app.bridgeCfg = bridge.Config{
		Work:         w,
		Policy:       app.cfg.Bridge.Policy(),
		StageTimeout: app.cfg.Bridge.StageTimeout,
		Progress:     app.progressHub,
		Logger:       app.logger.Named("bridge"),
	}
	app.sessions = session.NewManager(context.WithoutCancel(ctx), session.Config{
		Bridge:        app.bridgeCfg,
		MaxSessions:   app.cfg.Server.MaxSessions,
		AttachTimeout: app.cfg.Server.AttachTimeout,
		Logger:        app.logger.Named("sessions"),
	})
	return nil
}
