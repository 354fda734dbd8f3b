package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/utils"
)

// BackfillRunner runs a snapshot backfill. Implemented by the performance
// service.
type BackfillRunner interface {
	EnsureSnapshotsExist(ctx context.Context, portfolioID int64, from *time.Time, force bool) (*performance.BackfillResult, error)
}

// PortfolioLister enumerates portfolios for the nightly sweep.
type PortfolioLister interface {
	ListPortfolioIDs(ctx context.Context) ([]int64, error)
}

// TickerLister enumerates ledger tickers for the scheduled price refresh.
type TickerLister interface {
	KnownTickers(ctx context.Context) ([]string, error)
}

// PriceRefresher pulls fresh closes into the market data cache.
type PriceRefresher interface {
	RefreshTickers(ctx context.Context, tickers []string, days int)
}

type backfillJob struct {
	id          uuid.UUID
	portfolioID int64
	from        time.Time
}

// Scheduler owns the asynchronous side of snapshot maintenance: the
// fire-and-forget backfill queue fed by ledger writes, a nightly sweep that
// appends the current day's snapshot for every portfolio, and the scheduled
// market data refresh.
//
// Enqueued jobs are consumed by a small worker pool; serialization within a
// portfolio is provided by the service's per-portfolio lock, so workers can
// safely pick up jobs for different portfolios concurrently. A failed job is
// logged and dropped, never retried; the next ledger write or nightly sweep
// supersedes it.
type Scheduler struct {
	runner     BackfillRunner
	portfolios PortfolioLister
	tickers    TickerLister
	prices     PriceRefresher
	config     utils.SchedulerConfig
	logger     utils.Logger

	queue  chan backfillJob
	cron   *cron.Cron
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg utils.SchedulerConfig, runner BackfillRunner, portfolios PortfolioLister, tickers TickerLister, prices PriceRefresher, logger utils.Logger) *Scheduler {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:     runner,
		portfolios: portfolios,
		tickers:    tickers,
		prices:     prices,
		config:     cfg,
		logger:     logger,
		queue:      make(chan backfillJob, queueSize),
		cron:       cron.New(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool and registers the cron entries.
func (s *Scheduler) Start() error {
	workers := s.config.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	if s.config.SnapshotCron != "" {
		if _, err := s.cron.AddFunc(s.config.SnapshotCron, s.nightlySweep); err != nil {
			return err
		}
	}
	if s.config.PriceCron != "" && s.prices != nil {
		if _, err := s.cron.AddFunc(s.config.PriceCron, s.refreshPrices); err != nil {
			return err
		}
	}
	s.cron.Start()

	s.logger.Info("scheduler started with %d backfill workers", workers)
	return nil
}

// Stop drains the workers and stops the cron. In-flight jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
	close(s.queue)
	s.wg.Wait()
}

// TriggerBackfill schedules a forced backfill from the given date forward.
// It never blocks: the ledger-write response must not wait on recomputation.
// When the queue is full the job is dropped with a warning; the nightly
// sweep will close the gap.
func (s *Scheduler) TriggerBackfill(portfolioID int64, from time.Time) {
	job := backfillJob{
		id:          uuid.New(),
		portfolioID: portfolioID,
		from:        performance.Day(from),
	}
	select {
	case s.queue <- job:
		s.logger.Debug("queued backfill %s for portfolio %d from %s", job.id, portfolioID, job.from.Format("2006-01-02"))
	default:
		s.logger.Warn("backfill queue full, dropping job for portfolio %d", portfolioID)
	}
}

var _ performance.BackfillTrigger = (*Scheduler)(nil)

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		if s.ctx.Err() != nil {
			return
		}
		from := job.from
		result, err := s.runner.EnsureSnapshotsExist(s.ctx, job.portfolioID, &from, true)
		if err != nil {
			s.logger.Error("backfill %s for portfolio %d failed: %v", job.id, job.portfolioID, err)
			continue
		}
		s.logger.Info("backfill %s for portfolio %d recomputed %d days", job.id, job.portfolioID, result.DaysCalculated)
	}
}

// nightlySweep appends the current day's snapshot for every portfolio with
// transactions, so charts never lag behind by more than a day.
func (s *Scheduler) nightlySweep() {
	ids, err := s.portfolios.ListPortfolioIDs(s.ctx)
	if err != nil {
		s.logger.Error("nightly sweep: failed to list portfolios: %v", err)
		return
	}
	today := performance.Day(time.Now())
	for _, id := range ids {
		s.TriggerBackfill(id, today)
	}
	s.logger.Info("nightly sweep queued %d portfolios", len(ids))
}

func (s *Scheduler) refreshPrices() {
	tickers, err := s.tickers.KnownTickers(s.ctx)
	if err != nil {
		s.logger.Error("price refresh: failed to list tickers: %v", err)
		return
	}
	// Two weeks of bars comfortably covers the resolver's lookback window.
	s.prices.RefreshTickers(s.ctx, tickers, 14)
}
