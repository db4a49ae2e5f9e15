package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/config"
	"price-floor-alerts/internal/fetcher"
	"price-floor-alerts/internal/history"
	"price-floor-alerts/internal/scheduler"
	"price-floor-alerts/internal/service"
	"price-floor-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives operator-facing output.
	Out io.Writer

	store      history.Store
	closeStore func()
	printer    *message.Printer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Out:     os.Stdout,
		printer: message.NewPrinter(language.Japanese),
	}
}

// Close releases a networked history backend. File and memory backends stay
// open for the lifetime of the App.
func (a *App) Close() {
	if a.closeStore == nil {
		return
	}
	a.closeStore()
	a.closeStore = nil
	a.store = nil
}

func (a *App) newFetcher() *fetcher.Page {
	cfg := a.Config.Fetch
	return fetcher.NewPage(fetcher.PageOptions{
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
		RatePerSec:   cfg.RatePerSec,
		Burst:        cfg.Burst,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

// openStore opens the configured history backend once per App.
func (a *App) openStore(ctx context.Context) (history.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	switch a.Config.History.Backend {
	case config.BackendCSV:
		a.store = history.NewCSVStore(a.Config.History.Path)
	case config.BackendMemory:
		a.Logger.Warn().Msg("history.backend is memory; records are lost on exit")
		a.store = history.NewMemoryStore()
	case config.BackendPostgres:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		store := storage.NewStore(pool, a.Config.Database.AdvisoryLockKey, a.Logger)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.store = store
		a.closeStore = store.Close
	case config.BackendFirestore:
		store, err := storage.NewFirestoreStore(ctx, a.Config.Firestore, a.Logger)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closeStore = func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close firestore client")
			}
		}
	default:
		return nil, fmt.Errorf("unsupported history backend %q", a.Config.History.Backend)
	}

	a.Logger.Debug().Str("backend", a.Config.History.Backend).Msg("history backend opened")
	return a.store, nil
}

func (a *App) openLedger(ctx context.Context) (*history.Ledger, history.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ledger := history.NewLedger(store, a.Logger, history.WithLocation(a.Config.Location()))
	return ledger, store, nil
}

func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler, pages fetcher.PageFetcher, notifier alerting.Notifier) (*service.Service, *history.Ledger, error) {
	ledger, store, err := a.openLedger(ctx)
	if err != nil {
		return nil, nil, err
	}
	if pages == nil {
		pages = a.newFetcher()
	}
	return service.New(a.Config, sched, pages, ledger, store, notifier, a.Logger), ledger, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer a.Close()

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
		Location:       a.Config.Location(),
	}, a.Logger)

	svc, _, err := a.newService(ctx, sched, nil, a.newNotifier())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("competitors", len(a.Config.CompetitorURLs())).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// yen formats an amount with thousands separators, e.g. 4,500円.
func (a *App) yen(v int64) string {
	return a.printer.Sprintf("%d円", v)
}

// HistoryOptions filter the history listing.
type HistoryOptions struct {
	Categories []string
	States     []string
	Sort       string
}

// StateOptions identify the records a workflow change applies to.
type StateOptions struct {
	Date   string
	Source string
	Label  string
}

// SuggestOptions configure the suggest command.
type SuggestOptions struct {
	Date string
	TopN int
}

// ExportOptions hold parameters for exporting the ledger.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	Days    int
}

// BackfillOptions configure replaying dated table snapshots.
type BackfillOptions struct {
	Dir    string
	From   string
	To     string
	DryRun bool
}

// SimulateOptions describe one synthetic competitor offer.
type SimulateOptions struct {
	Source   string
	Label    string
	Category string
	Price    int64
	Floor    int64
}
