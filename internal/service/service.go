package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/catalog"
	"price-floor-alerts/internal/config"
	"price-floor-alerts/internal/extract"
	"price-floor-alerts/internal/fetcher"
	"price-floor-alerts/internal/history"
	"price-floor-alerts/internal/scheduler"
	"price-floor-alerts/internal/storage"
)

// Outcome classifies a finished scan.
type Outcome string

const (
	// OutcomeEmptyCatalog means no source yielded any offer.
	OutcomeEmptyCatalog Outcome = "empty_catalog"
	// OutcomeNoAlerts means offers were found but none is below its floor.
	OutcomeNoAlerts Outcome = "no_alerts"
	// OutcomeAlerts means at least one competitor is below its floor.
	OutcomeAlerts Outcome = "alerts"
)

// SourceReport describes what one source contributed.
type SourceReport struct {
	Name    string
	Locator string
	IsSelf  bool
	Fetched bool
	Offers  int
}

// Result is the outcome of one scan.
type Result struct {
	Date     string
	Catalog  []catalog.Row
	Alerts   []alerting.Alert
	Outcome  Outcome
	Sources  []SourceReport
	Dropped  int
	Appended history.AppendResult
	// AppendErr is set when the alerts could not be committed to the ledger.
	AppendErr error
}

// Service orchestrates fetching, extraction, alerting and the history ledger.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.PageFetcher
	extractor *extract.Extractor
	ledger    *history.Ledger
	notifier  alerting.Notifier
	logger    zerolog.Logger

	self        config.SourceConfig
	competitors []string
	floors      catalog.Floors
	concurrency int
	topN        int
	alertsOn    bool
	loc         *time.Location
	locker      storage.AdvisoryLocker
	lockKey     int64
}

// New constructs the monitoring service. store is only inspected for
// cross-process scan locking.
func New(cfg *config.Config, sched *scheduler.Scheduler, pages fetcher.PageFetcher, ledger *history.Ledger, store history.Store, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:   sched,
		fetcher:     pages,
		extractor:   extract.New(extract.Options{}),
		ledger:      ledger,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		self:        cfg.Self,
		competitors: cfg.CompetitorURLs(),
		floors:      cfg.CategoryFloors(),
		concurrency: cfg.Fetch.Concurrency,
		topN:        cfg.Alerting.TopN,
		alertsOn:    cfg.Alerting.Enabled,
		loc:         cfg.Location(),
		locker:      locker,
		lockKey:     cfg.Scheduler.ScanLockKey,
	}
}

// Run begins the scheduled scan loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one scheduled scan unless another process holds the scan lock.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	result, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().Time("tick", tick).
		Str("outcome", string(result.Outcome)).
		Int("alerts", len(result.Alerts)).
		Msg("scheduled scan finished")
	return nil
}

// Scan fetches the self page and every competitor page, then runs the pipeline.
// Per-source failures only reduce what the catalog contains.
func (s *Service) Scan(ctx context.Context) (Result, error) {
	competitors := s.competitors
	if len(competitors) > catalog.MaxCompetitors {
		s.logger.Warn().Int("configured", len(competitors)).
			Int("max", catalog.MaxCompetitors).
			Msg("ignoring competitors beyond the limit")
		competitors = competitors[:catalog.MaxCompetitors]
	}

	urls := make([]string, 0, len(competitors)+1)
	hasSelf := s.self.URL != ""
	if hasSelf {
		urls = append(urls, s.self.URL)
	}
	urls = append(urls, competitors...)

	pages, err := fetcher.FetchAll(ctx, s.fetcher, urls, s.concurrency)
	if err != nil {
		return Result{}, fmt.Errorf("fetch sources: %w", err)
	}

	var (
		self    = catalog.Source{Name: s.self.Name, Locator: s.self.URL}
		comps   = make([]catalog.Source, 0, len(competitors))
		reports = make([]SourceReport, 0, len(urls))
	)
	for i, markup := range pages {
		page := s.extractor.Page(markup)
		isSelf := hasSelf && i == 0
		report := SourceReport{Locator: urls[i], IsSelf: isSelf, Fetched: markup != "", Offers: len(page.Offers)}

		if isSelf {
			self.Offers = page.Offers
			report.Name = self.Name
		} else {
			comps = append(comps, catalog.Source{Name: page.Title, Locator: urls[i], Offers: page.Offers})
			report.Name = page.Title
		}
		s.logSource(report)
		reports = append(reports, report)
	}

	result := s.finish(ctx, catalog.Build(self, comps, s.floors), s.today())
	result.Sources = reports
	return result, nil
}

// ScanTable runs the pipeline over ingested rows instead of fetched pages.
func (s *Service) ScanTable(ctx context.Context, table extract.TableResult) (Result, error) {
	return s.ScanTableOn(ctx, table, s.today())
}

// ScanTableOn is ScanTable with the ledger date supplied by the caller.
func (s *Service) ScanTableOn(ctx context.Context, table extract.TableResult, date string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := time.Parse(history.DateLayout, date); err != nil {
		return Result{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if table.Dropped > 0 {
		s.logger.Debug().Int("dropped", table.Dropped).Msg("dropped invalid table rows")
	}
	result := s.finish(ctx, catalog.FromTable(table.Rows, s.floors), date)
	result.Dropped = table.Dropped
	return result, nil
}

func (s *Service) finish(ctx context.Context, rows []catalog.Row, date string) Result {
	result := Result{Date: date, Catalog: rows}
	result.Alerts = alerting.Detect(rows)

	switch {
	case len(rows) == 0:
		result.Outcome = OutcomeEmptyCatalog
	case len(result.Alerts) == 0:
		result.Outcome = OutcomeNoAlerts
	default:
		result.Outcome = OutcomeAlerts
	}

	if s.ledger != nil {
		appended, err := s.ledger.Append(ctx, result.Alerts, result.Date)
		if err != nil {
			s.logger.Error().Err(err).Str("date", result.Date).Msg("failed to record history")
			result.AppendErr = err
		}
		result.Appended = appended
	}

	s.logger.Info().Str("date", result.Date).
		Str("outcome", string(result.Outcome)).
		Int("rows", len(rows)).
		Int("alerts", len(result.Alerts)).
		Msg("scan complete")

	if result.Outcome == OutcomeAlerts && s.alertsOn && s.notifier != nil {
		note := alerting.Notification{
			Date:   s.now(),
			Alerts: alerting.Top(result.Alerts, s.topN),
			Total:  len(result.Alerts),
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch alert digest")
		}
	}
	return result
}

func (s *Service) logSource(r SourceReport) {
	switch {
	case !r.Fetched:
		s.logger.Warn().Str("url", r.Locator).Bool("self", r.IsSelf).Msg("source unavailable")
	case r.Offers == 0:
		s.logger.Warn().Str("url", r.Locator).Bool("self", r.IsSelf).Msg("no offers extracted")
	default:
		s.logger.Debug().Str("url", r.Locator).Str("name", r.Name).Int("offers", r.Offers).Msg("source extracted")
	}
}

func (s *Service) now() time.Time {
	return time.Now().In(s.loc)
}

func (s *Service) today() string {
	if s.ledger != nil {
		return s.ledger.Today()
	}
	return s.now().Format(history.DateLayout)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
