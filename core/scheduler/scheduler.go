package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kenter-mqtt/core/events"
	"github.com/kilianp07/kenter-mqtt/core/logger"
	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/core/monitoring"
	"github.com/kilianp07/kenter-mqtt/internal/eventbus"
)

// State is the position of the scheduler in its cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StatePublishing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StatePublishing:
		return "publishing"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// Fetcher retrieves the readings of one metering point for one day.
type Fetcher interface {
	Fetch(ctx context.Context, q model.MeteringQuery, day time.Time) ([]model.Measurement, error)
}

// Publisher forwards readings to the broker.
type Publisher interface {
	Publish(ctx context.Context, meteringPoint string, ms []model.Measurement) error
}

// TotalsPublisher is implemented by publishers that also expose daily totals.
type TotalsPublisher interface {
	PublishTotals(ctx context.Context, meteringPoint string, totals []model.DailyTotal) error
}

type publishedCounter interface {
	PublishedCount() int
}

// Scheduler runs poll cycles sequentially. Cycles never overlap.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	pub     Publisher
	totals  TotalsPublisher
	bus     *eventbus.Bus[events.CycleEvent]
	log     logger.Logger
	now     func() time.Time

	state    atomic.Int32
	failures atomic.Int64
}

// New validates cfg and returns a Scheduler. bus may be nil.
func New(cfg Config, f Fetcher, p Publisher, bus *eventbus.Bus[events.CycleEvent], log logger.Logger) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	if f == nil || p == nil {
		return nil, errors.New("scheduler requires a fetcher and a publisher")
	}
	if log == nil {
		return nil, errors.New("scheduler requires a logger")
	}
	s := &Scheduler{cfg: cfg, fetcher: f, pub: p, bus: bus, log: log, now: time.Now}
	if tp, ok := p.(TotalsPublisher); ok {
		s.totals = tp
	}
	return s, nil
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Failures returns the number of consecutive failed cycles.
func (s *Scheduler) Failures() int { return int(s.failures.Load()) }

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

// Run executes a cycle immediately and then one per interval until ctx is
// cancelled. It only returns on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infof("polling %s every %s", s.cfg.Query.MeteringPointID, s.cfg.Interval)
	for {
		ev := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.setState(StateIdle)
			s.log.Infof("scheduler stopped")
			return nil
		}
		timer := time.NewTimer(ev.NextInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateIdle)
			s.log.Infof("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle and returns its error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.RunCycle(ctx).Err
}

// RunCycle fetches and publishes one day of readings within the cycle
// timeout. Failures are logged, reported and counted, never returned as a
// panic or a process exit.
func (s *Scheduler) RunCycle(ctx context.Context) events.CycleEvent {
	start := s.now()
	ev := events.CycleEvent{
		ID:      uuid.NewString(),
		Query:   s.cfg.Query,
		Day:     s.cfg.PollDay(start),
		Stage:   events.StageCycle,
		Started: start,
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	ev.Err = s.guard(&ev, func() error { return s.stages(cctx, &ev) })
	if ev.Err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		ev.Err = fmt.Errorf("cycle aborted after %s: %w", s.cfg.CycleTimeout, ev.Err)
	}
	ev.Duration = s.now().Sub(start)
	s.finish(ctx, &ev)
	return ev
}

func (s *Scheduler) stages(ctx context.Context, ev *events.CycleEvent) error {
	q := s.cfg.Query
	ev.Stage = events.StageFetch
	s.setState(StateFetching)
	ms, err := s.fetcher.Fetch(ctx, q, ev.Day)
	if err != nil {
		return err
	}
	ev.Measurements = ms

	ev.Stage = events.StagePublish
	s.setState(StatePublishing)
	if err := s.pub.Publish(ctx, q.MeteringPointID, ms); err != nil {
		var pc publishedCounter
		if errors.As(err, &pc) {
			ev.Published = pc.PublishedCount()
		}
		return err
	}
	ev.Published = len(ms)
	if s.totals != nil && len(ms) > 0 {
		if err := s.totals.PublishTotals(ctx, q.MeteringPointID, model.SumByChannel(ev.Day, ms)); err != nil {
			return fmt.Errorf("daily totals: %w", err)
		}
	}
	ev.Stage = events.StageCycle
	return nil
}

// guard turns a panic inside a cycle into an error.
func (s *Scheduler) guard(ev *events.CycleEvent, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", ev.Stage, r)
		}
	}()
	return fn()
}

func (s *Scheduler) finish(ctx context.Context, ev *events.CycleEvent) {
	q := s.cfg.Query
	day := ev.Day.Format("2006-01-02")
	if ev.Err == nil {
		s.failures.Store(0)
		ev.NextInterval = s.cfg.Interval
		s.setState(StateIdle)
		s.log.Infof("cycle %s: published %d measurements for %s (day %s) in %s",
			ev.ID, ev.Published, q.MeteringPointID, day, ev.Duration.Round(time.Millisecond))
		s.emit(*ev)
		return
	}
	if ctx.Err() != nil {
		// shutdown, not a failure of the cycle
		ev.NextInterval = s.cfg.Interval
		s.setState(StateIdle)
		s.log.Warnf("cycle %s interrupted during %s", ev.ID, ev.Stage)
		return
	}

	n := int(s.failures.Add(1))
	ev.ConsecutiveFailures = n
	ev.NextInterval = s.cfg.NextInterval(n)
	if n >= s.cfg.FailureThreshold {
		s.setState(StateBackoff)
	} else {
		s.setState(StateIdle)
	}
	s.log.Errorw("cycle failed", ev.Err, map[string]any{
		"cycle_id":       ev.ID,
		"stage":          string(ev.Stage),
		"connection_id":  q.ConnectionID,
		"metering_point": q.MeteringPointID,
		"day":            day,
		"failures":       n,
		"next_run_in":    ev.NextInterval.String(),
	})
	monitoring.CaptureException(ev.Err, map[string]string{
		"module":         "scheduler",
		"stage":          string(ev.Stage),
		"metering_point": q.MeteringPointID,
	})
	s.emit(*ev)
}

func (s *Scheduler) emit(ev events.CycleEvent) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
