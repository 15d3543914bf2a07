package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/metrics"
)

// Accrual triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

const lastAccrualKey = "accrual:last_run"

// AccrualService settles profit for every subscribed user on a schedule.
type AccrualService struct {
	users       UserStore
	plans       PlanStore
	subs        SubscriptionStore
	oracle      BalanceOracle
	reports     KeyValueStore
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time

	running sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron
}

// NewAccrualService creates a new AccrualService. reports may be nil.
func NewAccrualService(users UserStore, plans PlanStore, subs SubscriptionStore, oracle BalanceOracle, reports KeyValueStore, concurrency int, logger zerolog.Logger) *AccrualService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AccrualService{
		users:       users,
		plans:       plans,
		subs:        subs,
		oracle:      oracle,
		reports:     reports,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "accrual").Logger(),
		now:         time.Now,
	}
}

type userOutcome struct {
	advanced bool
	degraded bool
	active   bool
	accrued  decimal.Decimal
}

// RunOnce settles every subscribed user once. A failing user is recorded in
// the report and never stops the batch. Only a failure to list users is
// returned as an error. Overlapping runs are refused.
func (s *AccrualService) RunOnce(ctx context.Context, trigger string) (*domain.AccrualReport, error) {
	if !s.running.TryLock() {
		return nil, domain.ErrIneligible("an accrual run is already in progress")
	}
	defer s.running.Unlock()

	report := &domain.AccrualReport{Trigger: trigger, StartedAt: s.now(), Accrued: decimal.Zero}

	ids, err := s.subs.ListSubscribedUserIDs(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscribed users", err)
	}

	var (
		mu     sync.Mutex
		errs   error
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			out, err := s.processUser(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err != nil {
				report.Failed++
				multierr.AppendInto(&errs, fmt.Errorf("user %s: %w", id, err))
				s.logger.Error().Err(err).Str("user_id", id).Msg("accrual failed")
				return nil
			}
			if out.degraded {
				report.Degraded++
			}
			if out.active {
				report.ActiveBots++
			}
			if out.advanced {
				report.Advanced++
				report.Accrued = report.Accrued.Add(out.accrued)
			} else {
				report.Skipped++
			}
			return nil
		})
	}
	g.Wait()

	for _, e := range multierr.Errors(errs) {
		report.Errors = append(report.Errors, e.Error())
	}
	report.FinishedAt = s.now()

	accrued, _ := report.Accrued.Float64()
	metrics.AddProfitAccrued(accrued)
	metrics.SetActiveBots(report.ActiveBots)
	metrics.RecordAccrualRun(trigger, report.FinishedAt.Sub(report.StartedAt), report.Advanced, report.Skipped, report.Failed)

	if s.reports != nil {
		if err := s.reports.Set(ctx, lastAccrualKey, report); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store accrual report")
		}
	}

	s.logger.Info().
		Str("trigger", trigger).
		Int("processed", report.Processed).
		Int("advanced", report.Advanced).
		Int("failed", report.Failed).
		Int("degraded", report.Degraded).
		Str("accrued", report.Accrued.String()).
		Msg("accrual run finished")

	return report, nil
}

func (s *AccrualService) processUser(ctx context.Context, userID string) (userOutcome, error) {
	var out userOutcome

	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return out, err
	}
	reading, err := s.oracle.Balance(ctx, wallet)
	if err != nil {
		return out, err
	}
	out.degraded = reading.Stale

	now := s.now()
	sub, err := s.subs.Update(ctx, userID, func(sub *domain.Subscription) error {
		_, res, err := accrueLocked(ctx, s.plans, sub, reading.Amount, now)
		if err != nil {
			return err
		}
		out.advanced = res.Days > 0
		out.accrued = res.Accrued
		return nil
	})
	if err != nil {
		return out, err
	}
	out.active = sub.BotActive
	return out, nil
}

// LastReport returns the report of the most recent run, or nil.
func (s *AccrualService) LastReport(ctx context.Context) (*domain.AccrualReport, error) {
	if s.reports == nil {
		return nil, nil
	}
	entry, err := s.reports.Get(ctx, lastAccrualKey)
	if err != nil || entry == nil {
		return nil, err
	}
	var report domain.AccrualReport
	if err := json.Unmarshal(entry.Data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode accrual report: %w", err)
	}
	return &report, nil
}

// Start registers RunOnce with a cron scheduler. Scheduled runs that would
// overlap a still-running one are skipped.
func (s *AccrualService) Start(ctx context.Context, schedule string) error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("accrual scheduler is already running")
	}

	logger := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx, TriggerSchedule); err != nil {
			s.logger.Error().Err(err).Msg("scheduled accrual run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid accrual schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", schedule).Msg("accrual scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running batch to finish.
func (s *AccrualService) Stop() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info().Msg("accrual scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
