package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/batisback/loyverse-daily-sync/internal/alerting"
	"github.com/batisback/loyverse-daily-sync/internal/config"
	"github.com/batisback/loyverse-daily-sync/internal/fetcher"
	"github.com/batisback/loyverse-daily-sync/internal/scheduler"
	"github.com/batisback/loyverse-daily-sync/internal/service"
	"github.com/batisback/loyverse-daily-sync/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() *fetcher.Loyverse {
	cfg := a.Config.Loyverse
	return fetcher.NewLoyverse(fetcher.LoyverseOptions{
		BaseURL:   cfg.BaseURL,
		Token:     cfg.Token,
		PageLimit: cfg.PageLimit,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running daily sync service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the sync service requires a warehouse")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	client := a.newFetcher()
	notifier := a.newNotifier()

	svc := service.New(a.Config, sched, client, client, store, store, notifier, a.Logger)

	a.Logger.Info().Msg("starting daily sync service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("daily sync service stopped")
	return nil
}

// PullOptions configure a one-shot ingestion.
type PullOptions struct {
	Day time.Time
}

// AnalyzeOptions configure a one-shot detection run.
type AnalyzeOptions struct {
	Now     time.Time
	Persist bool
	Notify  bool
}

// ExportOptions hold parameters for exporting assessed shifts.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
