package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/service"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type fakeCycle struct {
	rec   *recorder
	err   error
	calls chan struct{}
}

func (c *fakeCycle) RunCycle(ctx context.Context) (service.CycleReport, error) {
	if _, ok := ctx.Deadline(); !ok {
		return service.CycleReport{}, errors.New("cycle without deadline")
	}
	c.rec.add("cycle")
	if c.calls != nil {
		c.calls <- struct{}{}
	}
	return service.CycleReport{Accuracy: 7}, c.err
}

type fakeDrops struct {
	rec *recorder
	err error
}

func (d *fakeDrops) Check(_ context.Context, w service.DropWindow, _ time.Time) ([]service.ModelDrop, error) {
	d.rec.add("drop:" + w.Run)
	if d.err != nil {
		return nil, d.err
	}
	return []service.ModelDrop{{Model: "ecmwf", Detected: true}}, nil
}

type heldLocks struct {
	held map[string]bool
	err  error
}

func (l *heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func at(h, m int) time.Time {
	return time.Date(2026, 10, 14, h, m, 0, 0, time.UTC)
}

func TestDue(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		interval time.Duration
		due      bool
		window   string
	}{
		{"slot start", at(9, 0), 5 * time.Minute, true, ""},
		{"between slots", at(9, 5), 5 * time.Minute, false, ""},
		{"late in slot", at(9, 19), 5 * time.Minute, true, ""},
		{"release window", at(5, 25), 5 * time.Minute, true, "00z"},
		{"slot inside window", at(17, 30), 5 * time.Minute, true, "12z"},
		{"slow ticker always due", at(9, 7), 15 * time.Minute, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due, w := Due(tc.now, tc.interval)
			assert.Equal(t, tc.due, due)
			if tc.window == "" {
				assert.Nil(t, w)
			} else {
				require.NotNil(t, w)
				assert.Equal(t, tc.window, w.Run)
			}
		})
	}
}

func TestTickRunsOnSlot(t *testing.T) {
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(at(9, 0))
	s := NewScheduler(&fakeCycle{rec: rec}, &fakeDrops{rec: rec}, &heldLocks{}, Config{Interval: 5 * time.Minute}, clock, nil)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, res.Outcome)
	assert.Equal(t, 7, res.Report.Accuracy)
	assert.Nil(t, res.Window)
	assert.Equal(t, []string{"cycle"}, rec.list(), "no drop check outside a window")

	clock.Advance(5 * time.Minute)
	res, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOffSlot, res.Outcome)
	assert.Len(t, rec.list(), 1)
}

func TestTickChecksDropsBeforeCycle(t *testing.T) {
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(at(5, 25))
	s := NewScheduler(&fakeCycle{rec: rec}, &fakeDrops{rec: rec}, nil, Config{}, clock, nil)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, res.Outcome)
	require.NotNil(t, res.Window)
	assert.Len(t, res.Drops, 1)
	assert.Equal(t, []string{"drop:00z", "cycle"}, rec.list())
}

func TestTickDropFailureStillCycles(t *testing.T) {
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(at(16, 10))
	s := NewScheduler(&fakeCycle{rec: rec}, &fakeDrops{rec: rec, err: errors.New("boom")}, nil, Config{}, clock, nil)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, res.Outcome)
	assert.Equal(t, []string{"drop:12z", "cycle"}, rec.list())
}

func TestTickSkips(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(9, 0))

	t.Run("lock held elsewhere", func(t *testing.T) {
		rec := &recorder{}
		s := NewScheduler(&fakeCycle{rec: rec}, nil, &heldLocks{held: map[string]bool{"cycle": true}}, Config{}, clock, nil)
		res, err := s.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeLockHeld, res.Outcome)
		assert.Empty(t, rec.list())
	})

	t.Run("lock error", func(t *testing.T) {
		rec := &recorder{}
		s := NewScheduler(&fakeCycle{rec: rec}, nil, &heldLocks{err: errors.New("redis down")}, Config{}, clock, nil)
		res, err := s.Tick(context.Background())
		assert.Error(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, rec.list())
	})

	t.Run("cycle in progress", func(t *testing.T) {
		rec := &recorder{}
		s := NewScheduler(&fakeCycle{rec: rec}, nil, nil, Config{}, clock, nil)
		s.running.Store(true)
		res, err := s.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeBusy, res.Outcome)
		assert.Empty(t, rec.list())
	})

	t.Run("cycle error", func(t *testing.T) {
		rec := &recorder{}
		s := NewScheduler(&fakeCycle{rec: rec, err: context.DeadlineExceeded}, nil, nil, Config{}, clock, nil)
		res, err := s.Tick(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.False(t, s.running.Load(), "flag released after failure")
	})
}

func TestRunTicksImmediatelyAndOnTicker(t *testing.T) {
	rec := &recorder{}
	calls := make(chan struct{}, 16)
	clock := clockwork.NewFakeClockAt(at(9, 0))
	s := NewScheduler(&fakeCycle{rec: rec, calls: calls}, nil, nil, Config{Interval: 15 * time.Minute}, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCall := func() {
		t.Helper()
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("cycle did not run")
		}
	}
	waitCall()

	bctx, bcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer bcancel()
	require.NoError(t, clock.BlockUntilContext(bctx, 1))
	clock.Advance(15 * time.Minute)
	waitCall()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
