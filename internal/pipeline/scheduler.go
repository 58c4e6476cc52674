// Package pipeline drives the collection cycle on a schedule.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/service"
)

// slotMinutes is the spacing of full cycles when ticking faster than that.
const slotMinutes = 15

// fullSlotWidth is how far into a slot a tick still counts as on-slot.
const fullSlotWidth = 5

// cycleLockKey serialises cycles across processes.
const cycleLockKey = "cycle"

// Cycle runs one full collection cycle.
type Cycle interface {
	RunCycle(ctx context.Context) (service.CycleReport, error)
}

// DropChecker compares fresh model values against stored ones during a
// release window.
type DropChecker interface {
	Check(ctx context.Context, w service.DropWindow, now time.Time) ([]service.ModelDrop, error)
}

// Config controls the scheduler cadence.
type Config struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

// Outcome says what a tick did.
type Outcome string

const (
	OutcomeRan      Outcome = "ran"
	OutcomeOffSlot  Outcome = "off_slot"
	OutcomeBusy     Outcome = "busy"
	OutcomeLockHeld Outcome = "lock_held"
	OutcomeFailed   Outcome = "failed"
)

// TickResult reports one tick.
type TickResult struct {
	Outcome Outcome
	Window  *service.DropWindow
	Drops   []service.ModelDrop
	Report  service.CycleReport
}

// Scheduler ticks every Interval and runs a cycle on full slots and inside
// model release windows. At most one cycle runs at a time in this process,
// and the redis cycle lock extends that across processes.
type Scheduler struct {
	cycle   Cycle
	drops   DropChecker
	locks   domain.LockManager
	cfg     Config
	clock   clockwork.Clock
	running atomic.Bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewScheduler creates a scheduler. drops and locks may be nil.
func NewScheduler(cycle Cycle, drops DropChecker, locks domain.LockManager, cfg Config, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cycle:  cycle,
		drops:  drops,
		locks:  locks,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Due reports whether a tick at now should run a cycle, and the release
// window it falls in, if any. With an interval longer than fullSlotWidth
// minutes every tick is due.
func Due(now time.Time, interval time.Duration) (bool, *service.DropWindow) {
	var window *service.DropWindow
	if w, ok := service.ActiveDropWindow(now); ok {
		window = &w
	}
	full := interval > fullSlotWidth*time.Minute || now.UTC().Minute()%slotMinutes < fullSlotWidth
	return full || window != nil, window
}

// Run ticks until ctx is cancelled, running the first tick immediately.
// Cycles run in the background so a slow cycle never delays the ticker;
// overlapping ticks are skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("cycle_timeout", s.cfg.CycleTimeout),
		slog.Bool("drop_watch", s.drops != nil),
	)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.spawn(ctx)
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		}
	}()
}

// Tick runs one scheduling decision at the clock's current time.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	now := s.clock.Now().UTC()
	due, window := Due(now, s.cfg.Interval)
	res := TickResult{Window: window}
	if !due {
		s.logger.DebugContext(ctx, "off-slot tick", slog.String("at", now.Format("15:04")))
		res.Outcome = OutcomeOffSlot
		return res, nil
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "previous cycle still running, skipping tick")
		res.Outcome = OutcomeBusy
		return res, nil
	}
	defer s.running.Store(false)

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, cycleLockKey, s.cfg.CycleTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.InfoContext(ctx, "cycle running elsewhere, skipping tick")
				res.Outcome = OutcomeLockHeld
				return res, nil
			}
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("scheduler: cycle lock: %w", err)
		}
		defer unlock()
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	if window != nil {
		s.logger.InfoContext(cctx, "release window",
			slog.String("run", window.Run),
			slog.String("models", strings.ToUpper(strings.Join(window.Models, "+"))),
		)
		// Compare before the cycle stores the new values.
		if s.drops != nil {
			drops, err := s.drops.Check(cctx, *window, now)
			if err != nil {
				s.logger.WarnContext(cctx, "drop check failed", slog.String("error", err.Error()))
			}
			res.Drops = drops
		}
	}

	report, err := s.cycle.RunCycle(cctx)
	res.Report = report
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("scheduler: %w", err)
	}
	res.Outcome = OutcomeRan
	return res, nil
}
