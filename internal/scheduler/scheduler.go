// Package scheduler drives the periodic pipeline sweeps.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/metrics"
	"github.com/linkpipe/linkpipe/internal/resolver"
)

// LinkStore is the link persistence the scheduler needs.
type LinkStore interface {
	FetchPending(ctx context.Context, limit int) ([]domain.Link, error)
	MarkReady(ctx context.Context, id uuid.UUID, affiliateURL string, metadata []byte) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkTemporaryFailure(ctx context.Context, id uuid.UUID, reason string) error
	PromoteTemporary(ctx context.Context, cooldown time.Duration, limit int) (int64, error)
	ExpireTemporary(ctx context.Context, maxAge time.Duration) (int64, error)
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (*domain.StatusCounts, error)
}

// Resolver turns one pending link into a terminal outcome.
type Resolver interface {
	Resolve(ctx context.Context, link *domain.Link) resolver.Outcome
}

// Distributor runs one distribution sweep.
type Distributor interface {
	Distribute(ctx context.Context) (int, error)
}

// Quota exposes the daily counter reset for the midnight job.
type Quota interface {
	ResetAll(ctx context.Context) (int64, error)
}

// Config holds sweep cadence and housekeeping windows.
type Config struct {
	ProcessInterval   time.Duration
	SendInterval      time.Duration
	PendingBatchSize  int
	InterLinkPause    time.Duration
	TemporaryCooldown time.Duration
	TemporaryMaxAge   time.Duration
	PromoteBatchSize  int
	StaleClaimAge     time.Duration
}

// Scheduler runs the resolution and distribution sweeps on independent
// tickers, plus a midnight quota reset. Sweeps are single-flight: a tick
// that lands while the previous sweep still runs is skipped, not queued.
type Scheduler struct {
	links       LinkStore
	resolver    Resolver
	distributor Distributor
	quota       Quota
	metrics     metrics.Tracker
	cfg         Config
	logger      logger.Logger

	resolveGate *semaphore.Weighted
	sendGate    *semaphore.Weighted
	authPaused  atomic.Bool
	cron        *cron.Cron
	wg          sync.WaitGroup
}

// NewScheduler creates a scheduler. The tracker may be nil.
func NewScheduler(
	links LinkStore,
	res Resolver,
	dist Distributor,
	quota Quota,
	tracker metrics.Tracker,
	cfg Config,
	log logger.Logger,
) *Scheduler {
	return &Scheduler{
		links:       links,
		resolver:    res,
		distributor: dist,
		quota:       quota,
		metrics:     tracker,
		cfg:         cfg,
		logger:      log,
		resolveGate: semaphore.NewWeighted(1),
		sendGate:    semaphore.NewWeighted(1),
		cron:        cron.New(),
	}
}

// Start launches the sweep loops and the midnight job. It returns
// immediately; cancellation of ctx stops everything.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("0 0 * * *", func() {
		s.runMidnightReset(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.ProcessInterval, s.RunResolutionSweep)
	go s.loop(ctx, s.cfg.SendInterval, s.runDistributionSweep)

	s.logger.Info("Scheduler started",
		logger.Duration("process_interval", s.cfg.ProcessInterval),
		logger.Duration("send_interval", s.cfg.SendInterval),
	)
	return nil
}

// Stop waits for running sweeps to finish. Call after canceling the
// context passed to Start.
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	s.wg.Wait()
	<-cronCtx.Done()
	s.logger.Info("Scheduler stopped")
}

// loop fires fn once at startup and then on every tick.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()

	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// RunResolutionSweep performs housekeeping and then resolves one batch of
// pending links, oldest first.
func (s *Scheduler) RunResolutionSweep(ctx context.Context) {
	if !s.resolveGate.TryAcquire(1) {
		s.logger.Debug("Resolution sweep already running, skipping tick")
		return
	}
	defer s.resolveGate.Release(1)

	s.runHousekeeping(ctx)

	if s.authPaused.Load() {
		s.logger.Warn("Resolution paused until daily reset after an auth failure")
		return
	}

	links, err := s.links.FetchPending(ctx, s.cfg.PendingBatchSize)
	if err != nil {
		s.logger.Error("Failed to fetch pending links", logger.Error(err))
		return
	}
	if len(links) == 0 {
		s.logStatusCounts(ctx)
		return
	}

	s.logger.Info("Resolution sweep starting", logger.Int("pending", len(links)))

	for i := range links {
		if ctx.Err() != nil {
			return
		}
		s.resolveLink(ctx, &links[i])

		if s.authPaused.Load() {
			// Remaining links stay pending for a later sweep.
			return
		}
		if i < len(links)-1 && !sleep(ctx, s.cfg.InterLinkPause) {
			return
		}
	}

	s.logStatusCounts(ctx)
}

// resolveLink runs one resolution pass and persists the outcome.
func (s *Scheduler) resolveLink(ctx context.Context, link *domain.Link) {
	outcome := s.resolver.Resolve(ctx, link)

	switch outcome.Kind {
	case resolver.OutcomeSuccess:
		if err := s.links.MarkReady(ctx, link.ID, outcome.AffiliateURL, outcome.Metadata.Encode()); err != nil {
			s.logger.Error("Failed to mark link ready",
				logger.String("link_id", link.ID.String()),
				logger.Error(err),
			)
			return
		}
		if s.metrics != nil {
			_ = s.metrics.IncrementResolved(ctx, link.Domain)
		}
		s.logger.Info("Link resolved",
			logger.String("link_id", link.ID.String()),
			logger.String("domain", link.Domain),
		)

	case resolver.OutcomePermanent:
		if err := s.links.MarkFailed(ctx, link.ID, outcome.Reason); err != nil {
			s.logger.Error("Failed to mark link failed",
				logger.String("link_id", link.ID.String()),
				logger.Error(err),
			)
			return
		}
		if s.metrics != nil {
			_ = s.metrics.IncrementFailed(ctx, link.Domain)
		}
		if outcome.AuthFailure {
			s.authPaused.Store(true)
			s.logger.Warn("Auth failure from resolver, pausing resolution until daily reset",
				logger.String("link_id", link.ID.String()),
			)
		}

	case resolver.OutcomeTemporary:
		if err := s.links.MarkTemporaryFailure(ctx, link.ID, outcome.Reason); err != nil {
			s.logger.Error("Failed to mark link temporarily failed",
				logger.String("link_id", link.ID.String()),
				logger.Error(err),
			)
		}
	}
}

// runHousekeeping recovers stale claims, promotes cooled-down temporary
// failures and expires the ones past the retry window.
func (s *Scheduler) runHousekeeping(ctx context.Context) {
	if n, err := s.links.ReleaseStaleClaims(ctx, s.cfg.StaleClaimAge); err != nil {
		s.logger.Error("Failed to release stale claims", logger.Error(err))
	} else if n > 0 {
		s.logger.Warn("Recovered stale sending claims", logger.Int64("count", n))
	}

	if n, err := s.links.PromoteTemporary(ctx, s.cfg.TemporaryCooldown, s.cfg.PromoteBatchSize); err != nil {
		s.logger.Error("Failed to promote temporary failures", logger.Error(err))
	} else if n > 0 {
		s.logger.Info("Promoted temporary failures back to pending", logger.Int64("count", n))
	}

	if n, err := s.links.ExpireTemporary(ctx, s.cfg.TemporaryMaxAge); err != nil {
		s.logger.Error("Failed to expire temporary failures", logger.Error(err))
	} else if n > 0 {
		s.logger.Info("Expired temporary failures past the retry window", logger.Int64("count", n))
	}
}

func (s *Scheduler) runDistributionSweep(ctx context.Context) {
	if !s.sendGate.TryAcquire(1) {
		s.logger.Debug("Distribution sweep already running, skipping tick")
		return
	}
	defer s.sendGate.Release(1)

	delivered, err := s.distributor.Distribute(ctx)
	if err != nil {
		s.logger.Error("Distribution sweep failed", logger.Error(err))
		return
	}
	if delivered > 0 {
		s.logger.Info("Distribution sweep finished", logger.Int("delivered", delivered))
	}
}

// runMidnightReset zeroes the daily quota counters and lifts the auth
// pause so the next sweep retries against fresh credentials.
func (s *Scheduler) runMidnightReset(ctx context.Context) {
	n, err := s.quota.ResetAll(ctx)
	if err != nil {
		s.logger.Error("Failed to reset daily counters", logger.Error(err))
		return
	}

	wasPaused := s.authPaused.Swap(false)
	s.logger.Info("Daily counters reset",
		logger.Int64("destinations", n),
		logger.Bool("auth_pause_lifted", wasPaused),
	)
}

func (s *Scheduler) logStatusCounts(ctx context.Context) {
	counts, err := s.links.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to count links by status", logger.Error(err))
		return
	}
	s.logger.Debug("Pipeline status",
		logger.Int64("pending", counts.Pending),
		logger.Int64("ready", counts.Ready),
		logger.Int64("sending", counts.Sending),
		logger.Int64("failed", counts.Failed),
		logger.Int64("failed_temporary", counts.FailedTemporary),
	)
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
