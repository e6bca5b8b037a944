// Package server builds the lead pipeline's dependencies from configuration
// and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadgen-pipeline/internal/ai"
	"github.com/JakeFAU/leadgen-pipeline/internal/api"
	"github.com/JakeFAU/leadgen-pipeline/internal/config"
	"github.com/JakeFAU/leadgen-pipeline/internal/directory"
	collyfetcher "github.com/JakeFAU/leadgen-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/leadgen-pipeline/internal/fetcher/headless"
	"github.com/JakeFAU/leadgen-pipeline/internal/harvest"
	"github.com/JakeFAU/leadgen-pipeline/internal/id/uuid"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
	"github.com/JakeFAU/leadgen-pipeline/internal/metrics"
	"github.com/JakeFAU/leadgen-pipeline/internal/outreach"
	"github.com/JakeFAU/leadgen-pipeline/internal/pipeline"
	"github.com/JakeFAU/leadgen-pipeline/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/leadgen-pipeline/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadgen-pipeline/internal/publisher/pubsub"
	"github.com/JakeFAU/leadgen-pipeline/internal/scoring"
	"github.com/JakeFAU/leadgen-pipeline/internal/storage/gcs"
	memorystorage "github.com/JakeFAU/leadgen-pipeline/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadgen-pipeline/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/leadgen-pipeline/internal/storage/sqlite"
	"github.com/JakeFAU/leadgen-pipeline/pkg/openrouter"
)

type closer struct {
	name string
	fn   func() error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  *pipeline.Orchestrator
	sink      lead.Sink
	drafter   *outreach.Generator
	apiServer *api.Server
	ready     []api.ReadyCheck
	closers   []closer
}

// Build creates the application's dependencies. On error, anything already
// opened is closed before returning.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("browser", cfg.Browser.Enabled),
		zap.Bool("directory", cfg.Directory.Enabled),
	)
	ids := uuid.New()

	if err = setupSink(ctx, app, ids); err != nil {
		return nil, err
	}
	archiver, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	harvester, err := setupHarvester(app)
	if err != nil {
		return nil, err
	}
	dir, err := setupDirectory(app)
	if err != nil {
		return nil, err
	}

	completer := setupCompleter(app)
	scorer := scoring.New(completer, scoring.Config{
		Model:     cfg.AI.PreferredModel,
		BatchSize: cfg.Pipeline.ScoreBatchSize,
	}, logger.Named("scoring"))
	app.drafter = outreach.New(completer, cfg.AI.PreferredModel, logger.Named("outreach"))

	app.pipeline = pipeline.New(
		harvester,
		dir,
		scorer,
		app.sink,
		publisher,
		archiver,
		ids,
		pipeline.Config{
			DefaultLimit:        cfg.Pipeline.DefaultLimit,
			MaxLimit:            cfg.Pipeline.MaxLimit,
			DefaultRequirePhone: cfg.Pipeline.RequirePhone,
			Topic:               cfg.PubSub.TopicName,
			ArchivePrefix:       cfg.Storage.Prefix,
		},
		logger.Named("pipeline"),
	)

	app.apiServer = api.NewServer(api.Deps{
		Runner:  app.pipeline,
		Leads:   app.sink,
		Drafter: app.drafter,
		Ready:   app.ready,
	}, cfg, logger)

	return app, nil
}

func setupSink(ctx context.Context, app *App, ids lead.IDGenerator) error {
	switch app.cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewLeadStore(ctx, pgstore.Config{
			DSN:      app.cfg.Store.DSN,
			Table:    app.cfg.Store.Table,
			MaxConns: app.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		app.addCloser("postgres", func() error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.sink = store
		app.ready = append(app.ready, store.Ping)
		app.logger.Info("using postgres candidate store", zap.String("table", app.cfg.Store.Table))
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, app.cfg.Store.DSN, ids)
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.addCloser("sqlite", store.Close)
		app.sink = store
		app.ready = append(app.ready, store.Ping)
		app.logger.Info("using sqlite candidate store")
	default:
		app.sink = memorystorage.NewLeadStore(ids)
		app.logger.Warn("using in-memory candidate store; candidates are lost on restart")
	}
	return nil
}

func setupArchive(ctx context.Context, app *App) (lead.Archiver, error) {
	if app.cfg.Storage.GCSBucket == "" {
		app.logger.Info("no evidence bucket configured, evidence archiving disabled")
		return nil, nil
	}
	archive, err := gcs.Dial(ctx, gcs.Config{Bucket: app.cfg.Storage.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("gcs archive init failed: %w", err)
	}
	app.addCloser("gcs", archive.Close)
	app.ready = append(app.ready, archive.Check)
	app.logger.Info("archiving evidence to GCS", zap.String("bucket", app.cfg.Storage.GCSBucket))
	return archive, nil
}

func setupPublisher(ctx context.Context, app *App) (lead.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(0), nil
	}
	pub, err := gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.addCloser("pubsub", pub.Close)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func setupHarvester(app *App) (lead.Harvester, error) {
	cfg := app.cfg
	var launcher lead.BrowserLauncher = headless.NewNoop()
	if cfg.Browser.Enabled {
		profile := headless.HostedProfile(cfg.Browser.RemoteURL, cfg.NavTimeout(), cfg.Browser.UserAgent)
		if cfg.Browser.Mode == config.ModeLocal {
			profile = headless.LocalProfile(
				cfg.Browser.ExecPath,
				time.Duration(cfg.Browser.SlowMoMillis)*time.Millisecond,
				cfg.Browser.UserAgent,
			)
		}
		l, err := headless.NewLauncher(headless.Config{
			Profile:     profile,
			SearchURL:   cfg.Browser.SearchURL,
			SettleDelay: time.Duration(cfg.Browser.SettleMillis) * time.Millisecond,
			MaxStalls:   cfg.Browser.MaxStalls,
		}, app.logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("browser launcher init failed: %w", err)
		}
		launcher = l
		app.logger.Info("browser harvesting enabled", zap.String("mode", cfg.Browser.Mode))
	} else {
		app.logger.Warn("browser harvesting disabled, every run uses the directory fallback")
	}

	var visitor lead.Visitor
	if cfg.Enrich.Visitor == config.VisitorHTTP {
		visitor = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Browser.UserAgent,
			RespectRobots: cfg.Enrich.RespectRobots,
			Timeout:       cfg.VisitTimeout(),
		}, ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Enrich.RequestsPerSecond}))
		app.logger.Info("deep visits use the static HTTP visitor")
	}

	return harvest.New(launcher, visitor, harvest.Config{
		DeepVisitMax: cfg.Pipeline.DeepVisitMax,
		VisitTimeout: cfg.VisitTimeout(),
	}, app.logger.Named("harvest")), nil
}

func setupDirectory(app *App) (lead.Directory, error) {
	if !app.cfg.Directory.Enabled {
		app.logger.Info("directory fallback disabled")
		return nil, nil
	}
	client, err := directory.New(directory.Config{
		BaseURL:   app.cfg.Directory.BaseURL,
		UserAgent: app.cfg.Directory.UserAgent,
		Timeout:   time.Duration(app.cfg.Directory.TimeoutSeconds) * time.Second,
	}, ratelimit.New(ratelimit.Config{DefaultRPS: app.cfg.Directory.RequestsPerSecond}), app.logger.Named("directory"))
	if err != nil {
		return nil, fmt.Errorf("directory client init failed: %w", err)
	}
	return client, nil
}

// setupCompleter returns nil when no API key is configured so scoring goes
// straight to heuristics and outreach reports ai.ErrNoCompletion.
func setupCompleter(app *App) ai.Completer {
	cfg := app.cfg.AI
	if cfg.APIKey == "" {
		app.logger.Warn("no AI API key configured; scoring will fall back to heuristics")
		return nil
	}
	client := openrouter.NewClient(cfg.APIKey,
		openrouter.WithBaseURL(cfg.BaseURL),
		openrouter.WithReferer(cfg.Referer),
		openrouter.WithTitle(cfg.Title),
	)
	providers := make([]ai.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, ai.Provider{Model: p.Model, Tags: p.Tags})
	}
	return ai.NewChain(client, cfg.PreferredModel, providers,
		time.Duration(cfg.TimeoutSeconds)*time.Second, app.logger.Named("ai"))
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// RunPipeline executes one pipeline invocation outside of HTTP.
func (a *App) RunPipeline(ctx context.Context, req lead.Request) (lead.Result, error) {
	return a.pipeline.Run(ctx, req)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases every opened resource in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
}
