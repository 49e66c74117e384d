package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"RecipeCollector/internal/config"
	"RecipeCollector/internal/infrastructure/discord"
	"RecipeCollector/internal/infrastructure/httpapi"
	"RecipeCollector/internal/infrastructure/llm"
	"RecipeCollector/internal/infrastructure/metrics"
	"RecipeCollector/internal/infrastructure/runstate"
	"RecipeCollector/internal/infrastructure/scheduler"
	"RecipeCollector/internal/infrastructure/scraper"
	"RecipeCollector/internal/infrastructure/storage"
	"RecipeCollector/internal/logging"
	"RecipeCollector/internal/ports"
	"RecipeCollector/internal/usecase"
)

const (
	shutdownTimeout = 30 * time.Second
	pushTimeout     = 10 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry
	recipes  *storage.PostgresRepository
	runner   *usecase.ExclusiveRunner
}

// New validates cfg, opens the database and builds the pipeline. Nothing is
// contacted before validation succeeds.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, registry: prometheus.NewRegistry()}

	if cfg.Database.Migrate {
		if err := storage.Migrate(cfg.Database.DSN); err != nil {
			return nil, err
		}
		baseLogger.Info("database migrations applied")
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.recipes = storage.NewPostgresRepository(db)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("discord session: %w", err)
	}

	state, err := a.runStateStore()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Discord.ReportChannelID != "" {
		notifier = discord.NewNotifier(session, cfg.Discord.ReportChannelID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     discord.NewSource(session, cfg.Discord.ChannelID, cfg.Discord.PageSize, baseLogger.With("component", "discord")),
		Extractor:  a.extractor(),
		Classifier: a.classifier(),
		Repository: a.recipes,
		State:      state,
		Notifier:   notifier,
		Metrics:    metrics.NewCollector(a.registry),
		Logger:     baseLogger.With("component", "pipeline"),
		Timeouts: usecase.Timeouts{
			Source:   cfg.Timeouts.Source,
			Extract:  cfg.Timeouts.Extract,
			Classify: cfg.Timeouts.Classify,
			Persist:  cfg.Timeouts.Persist,
		},
	})
	a.runner = usecase.NewExclusiveRunner(pipeline)

	return a, nil
}

// Collect performs a single pipeline execution and pushes metrics when configured.
func (a *Application) Collect(ctx context.Context) error {
	report, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job, a.registry); err != nil {
			a.logger.Warn("metrics push failed", "error", err)
		}
	}

	a.logger.Debug("collect done", "empty", report.Empty, "duration", report.Duration().String())
	return nil
}

// Serve runs the HTTP API and the cron schedule until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Recipes:   a.recipes,
		Collector: a.runner,
		Metrics:   metrics.Handler(a.registry),
		Logger:    a.logger.With("component", "http"),
		Lifetime:  ctx,
	})
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *usecase.Scheduler
	if a.cfg.Scheduler.CronExpression != "" {
		driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
		sched = usecase.NewScheduler(driver, a.runner, a.logger.With("component", "scheduler"))
		if err := sched.Start(ctx); err != nil {
			return err
		}
		a.logger.Info("scheduled collection enabled",
			"cron", a.cfg.Scheduler.CronExpression,
			"timezone", a.cfg.Scheduler.Location().String())
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown incomplete", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop incomplete", "error", err)
		}
	}
	return runErr
}

// Close releases the database and redis connections.
func (a *Application) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *Application) runStateStore() (ports.RunStateStore, error) {
	rs := a.cfg.RunState
	switch rs.Backend {
	case config.RunStateRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     rs.Redis.Addr,
			Password: rs.Redis.Password,
			DB:       rs.Redis.DB,
		})
		return runstate.NewRedisStore(a.redis, rs.Redis.Key), nil
	case config.RunStateFile:
		return runstate.NewFileStore(rs.Path), nil
	default:
		return nil, fmt.Errorf("unknown run state backend %q", rs.Backend)
	}
}

func (a *Application) extractor() *scraper.Extractor {
	sc := a.cfg.Scraper
	var client *http.Client
	if sc.BlockPrivateNetworks {
		client = scraper.NewSafeClient(sc.Timeout)
	} else {
		client = &http.Client{Timeout: sc.Timeout}
	}
	return scraper.NewExtractor(client, scraper.Options{
		UserAgent:    sc.UserAgent,
		MaxBodyBytes: sc.MaxBodyBytes,
		Limiter:      limiter(sc.RatePerSecond),
	}, a.logger.With("component", "scraper"))
}

func (a *Application) classifier() *llm.Classifier {
	cc := a.cfg.Classifier
	var backend llm.Completer
	switch cc.Backend {
	case config.ClassifierOpenAI:
		backend = llm.NewChatGPTClient(cc.OpenAI)
	default:
		backend = llm.NewCommandCompleter(cc.Command)
	}
	return llm.NewClassifier(backend, cc.Timeout, limiter(cc.RatePerSecond), a.logger.With("component", "classifier"))
}

func limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
