package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Defaults for the renewal loop.
const (
	DefaultInitialDelay  = 5 * time.Second
	DefaultCheckSchedule = "@every 15s"
	DefaultWindow        = 2 * time.Minute
	DefaultExtension     = 5 * time.Minute
)

const (
	stateStopped int32 = iota
	stateRunning
)

// Renewer is the registry surface the scheduler drives.
type Renewer interface {
	DueForRenewal(now time.Time, window time.Duration) []Subscription
	Renew(ctx context.Context, id string, newExpiry time.Time) (Subscription, error)
}

// SchedulerConfig controls tick timing and renewal policy.
type SchedulerConfig struct {
	InitialDelay time.Duration // wait before the first tick
	Schedule     cron.Schedule // when subsequent ticks fire
	Window       time.Duration // renew anything expiring within this window
	Extension    time.Duration // new expiry = tick time + Extension
}

// ParseSchedule parses a standard cron spec or an "@every <duration>"
// descriptor.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("subscription: invalid check schedule %q: %w", spec, err)
	}

	return sched, nil
}

// defaultSchedule is DefaultCheckSchedule, parsed once.
var defaultSchedule = func() cron.Schedule {
	sched, err := ParseSchedule(DefaultCheckSchedule)
	if err != nil {
		panic(err)
	}

	return sched
}()

// DefaultSchedulerConfig returns the stock timing: first check after 5s,
// then every 15s, renewing anything due within 2 minutes by 5 minutes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		InitialDelay: DefaultInitialDelay,
		Schedule:     defaultSchedule,
		Window:       DefaultWindow,
		Extension:    DefaultExtension,
	}
}

// TickReport summarizes one pass over the registry.
type TickReport struct {
	Due     int
	Renewed int
	Failed  int
}

// SchedulerStats is a snapshot of cumulative scheduler counters.
type SchedulerStats struct {
	Ticks    int64
	Renewed  int64
	Failures int64
}

// Scheduler periodically renews subscriptions nearing expiry. It moves
// from stopped to running once and stays running until the context given
// to Start ends.
type Scheduler struct {
	renewer Renewer
	cfg     SchedulerConfig
	logger  *slog.Logger

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error

	state atomic.Int32
	done  chan struct{}

	ticks    atomic.Int64
	renewed  atomic.Int64
	failures atomic.Int64
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(renewer Renewer, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Schedule == nil {
		cfg.Schedule = defaultSchedule
	}

	return &Scheduler{
		renewer:   renewer,
		cfg:       cfg,
		logger:    logger,
		nowFunc:   time.Now,
		sleepFunc: timeSleep,
		done:      make(chan struct{}),
	}
}

// Start launches the renewal loop. Only the first call has any effect;
// it reports whether this call did the launch.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.state.CompareAndSwap(stateStopped, stateRunning) {
		return false
	}

	s.logger.Info("renewal scheduler started",
		slog.Duration("initial_delay", s.cfg.InitialDelay),
		slog.Duration("window", s.cfg.Window),
		slog.Duration("extension", s.cfg.Extension),
	)

	go s.run(ctx)

	return true
}

// Running reports whether Start has been called.
func (s *Scheduler) Running() bool {
	return s.state.Load() == stateRunning
}

// Done is closed when the loop exits after its context ends.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Ticks:    s.ticks.Load(),
		Renewed:  s.renewed.Load(),
		Failures: s.failures.Load(),
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	if err := s.sleepFunc(ctx, s.cfg.InitialDelay); err != nil {
		return
	}

	for {
		s.Tick(ctx)

		now := s.nowFunc()
		wait := s.cfg.Schedule.Next(now).Sub(now)

		if err := s.sleepFunc(ctx, wait); err != nil {
			s.logger.Info("renewal scheduler stopped")
			return
		}
	}
}

// Tick renews every subscription due within the window. Each renewal runs
// as its own task with no cap on how many run at once, so a renewal stuck
// on a slow remote call never holds back another due subscription. A
// failed renewal is found due again on the next tick.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	now := s.nowFunc()
	due := s.renewer.DueForRenewal(now, s.cfg.Window)
	s.ticks.Add(1)

	s.logger.Debug("checking subscriptions",
		slog.Time("now", now),
		slog.Int("due", len(due)),
	)

	report := TickReport{Due: len(due)}
	if len(due) == 0 {
		return report
	}

	newExpiry := now.Add(s.cfg.Extension)

	var renewed, failed atomic.Int64

	var g errgroup.Group

	for i := range due {
		sub := due[i]

		g.Go(func() error {
			updated, err := s.renewer.Renew(ctx, sub.ID, newExpiry)
			if err != nil {
				failed.Add(1)
				s.failures.Add(1)
				s.logger.Warn("subscription renewal failed, will retry next tick",
					slog.String("subscription_id", sub.ID),
					slog.Time("expires_at", sub.ExpiresAt),
					slog.String("error", err.Error()),
				)

				return nil
			}

			renewed.Add(1)
			s.renewed.Add(1)
			s.logger.Info("subscription renewed",
				slog.String("subscription_id", updated.ID),
				slog.Time("previous_expiry", sub.ExpiresAt),
				slog.Time("expires_at", updated.ExpiresAt),
			)

			return nil
		})
	}

	_ = g.Wait() // tasks never return errors

	report.Renewed = int(renewed.Load())
	report.Failed = int(failed.Load())

	return report
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
