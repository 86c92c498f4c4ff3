package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"metal-rates-alerts/internal/alerting"
	"metal-rates-alerts/internal/config"
	"metal-rates-alerts/internal/fetcher"
	"metal-rates-alerts/internal/service"
	"metal-rates-alerts/internal/storage"
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

func (a *App) newFetcher() fetcher.RateFetcher {
	return fetcher.NewCBR(fetcher.CBROptions{
		BaseURL:   a.Config.Source.BaseURL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
		Cookie:    a.Config.Source.Cookie,
	}, a.Logger)
}

func (a *App) newDeliverer() alerting.Deliverer {
	cfg := a.Config.Telegram
	if cfg.BotToken == "" {
		return nil
	}
	return alerting.NewTelegramDeliverer(cfg.BotToken, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, storage.Options{
		Epoch:             a.Config.Source.StartDate,
		WriteQueueDepth:   a.Config.Database.WriteQueueDepth,
		WriteTimeout:      a.Config.Database.WriteTimeout,
		NotifyOnSubscribe: a.Config.Dispatcher.NotifyOnSubscribe,
	})

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running ingestion and notification service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the service cannot run without storage")
	}
	defer closeStore()

	deliverer := a.newDeliverer()
	if deliverer == nil {
		return errors.New("telegram.bot_token not configured; notifications cannot be delivered")
	}

	ingestor := service.NewIngestor(a.newFetcher(), store, a.Config.Ingest, a.Logger)
	detector := service.NewDetector(store, store, store, a.Config.Detector.PollInterval, a.Logger)
	dispatcher := service.NewDispatcher(
		store, store, deliverer,
		a.Config.Dispatcher.PollInterval, a.Config.Dispatcher.SendDelay,
		a.Logger,
	)

	svc := service.New(ingestor, detector, dispatcher, a.Logger)

	a.Logger.Info().Msg("starting rate watcher service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rate watcher service stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored rates.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit        int
	CompleteOnly bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
