package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// Poll timing defaults. The delay doubles per consecutive failure up to an
// exponent of 2, then holds at the cap.
const (
	// DefaultBaseInterval is the delay after a clean tick.
	DefaultBaseInterval = 7 * time.Second
	// DefaultMaxInterval caps the backed-off delay.
	DefaultMaxInterval = 28 * time.Second

	// maxConsecutiveFailures caps the failure counter.
	maxConsecutiveFailures = 6
	// backoffExponentCap caps the exponent applied to the base interval.
	backoffExponentCap = 2

	// eventFetchLimit matches the journal buffer bound; fetching more than
	// the buffer retains is wasted work.
	eventFetchLimit = event.BufferLimit
)

// Poller is the subset of the gateway client the scheduler needs.
type Poller interface {
	FetchFullSession(ctx context.Context, sessionID string) (session.Model, error)
	FetchRosterSummary(ctx context.Context, sessionID string) (session.RosterSummary, error)
	FetchCombatSnapshot(ctx context.Context, sessionID string) (session.CombatSnapshot, error)
	FetchEventsSince(ctx context.Context, sessionID string, limit int, cursor string) ([]event.Event, error)
}

// Scheduler drives the background refresh loop for one open session:
// hydrate once, then alternate cheap delta fetches and cursor-based event
// fetches with failure-aware backoff.
type Scheduler struct {
	poller Poller
	view   *View
	conn   *Connectivity
	tracer trace.Tracer

	base time.Duration
	max  time.Duration

	// onFirstLoadError surfaces the only user-visible poll failure: a load
	// failing before any load has succeeded.
	onFirstLoadError func(error)
	// onEvents receives newly observed journal events, newest first.
	onEvents func([]event.Event)

	// kick requests an out-of-cycle refresh (manual reload or online edge).
	kick chan struct{}

	// Owned by the Run goroutine.
	failures       int
	firstLoadDone  bool
	firstLoadNoted bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIntervals overrides the base and maximum poll delays.
func WithIntervals(base, max time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if base > 0 {
			s.base = base
		}
		if max > 0 {
			s.max = max
		}
	}
}

// WithFirstLoadErrorHandler sets the sink for the first-load failure.
func WithFirstLoadErrorHandler(handler func(error)) SchedulerOption {
	return func(s *Scheduler) { s.onFirstLoadError = handler }
}

// WithEventSink sets the callback receiving newly observed events.
func WithEventSink(sink func([]event.Event)) SchedulerOption {
	return func(s *Scheduler) { s.onEvents = sink }
}

// NewScheduler creates a scheduler bound to one view.
func NewScheduler(poller Poller, view *View, conn *Connectivity, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		poller: poller,
		view:   view,
		conn:   conn,
		tracer: otel.Tracer("initiative.watch/tracker"),
		base:   DefaultBaseInterval,
		max:    DefaultMaxInterval,
		kick:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh requests an out-of-cycle fetch. The scheduled timer is rearmed
// from the moment of the refresh rather than stacked. Safe from any
// goroutine; coalesces with a pending request.
func (s *Scheduler) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run executes the poll loop until ctx is cancelled. The first tick runs
// immediately and hydrates the view.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		err := s.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		s.observe(err)
		timer.Reset(s.delay())
	}
}

// FetchEventsNow performs one cursor-based event fetch immediately, outside
// the scheduled cycle. Used for the dispatcher's post-success journal
// refetch.
func (s *Scheduler) FetchEventsNow(ctx context.Context) error {
	return s.fetchEvents(ctx)
}

func (s *Scheduler) tick(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "poll.tick",
		trace.WithAttributes(attribute.String("session.id", s.view.SessionID())))
	defer span.End()

	if !s.view.Hydrated() {
		return s.hydrate(ctx)
	}

	// The snapshot fetch and the event fetch have no ordering dependency,
	// but both merges must land before the next timer is armed.
	var wg sync.WaitGroup
	var snapErr, evtErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		snapErr = s.fetchSnapshot(ctx)
	}()
	go func() {
		defer wg.Done()
		evtErr = s.fetchEvents(ctx)
	}()
	wg.Wait()

	return errors.Join(snapErr, evtErr)
}

func (s *Scheduler) hydrate(ctx context.Context) error {
	model, err := s.poller.FetchFullSession(ctx, s.view.SessionID())
	if err != nil {
		return err
	}
	if !s.view.Hydrate(model) {
		return nil
	}
	// The full snapshot may predate recent events; catch the journal up to
	// the present in the same tick.
	return s.fetchEvents(ctx)
}

func (s *Scheduler) fetchSnapshot(ctx context.Context) error {
	sessionID := s.view.SessionID()
	if s.view.EncounterActive() {
		snapshot, err := s.poller.FetchCombatSnapshot(ctx, sessionID)
		if err != nil {
			return err
		}
		s.view.ApplyCombatSnapshot(sessionID, snapshot)
		return nil
	}

	summary, err := s.poller.FetchRosterSummary(ctx, sessionID)
	if err != nil {
		return err
	}
	s.view.ApplyRosterSummary(sessionID, summary)
	return nil
}

func (s *Scheduler) fetchEvents(ctx context.Context) error {
	sessionID := s.view.SessionID()
	cursor := s.view.EventCursor()
	batch, err := s.poller.FetchEventsSince(ctx, sessionID, eventFetchLimit, cursor)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	added, ok := s.view.MergeEvents(sessionID, batch)
	if ok && len(added) > 0 && s.onEvents != nil {
		s.onEvents(added)
	}
	return nil
}

func (s *Scheduler) observe(err error) {
	if err == nil {
		s.failures = 0
		s.firstLoadDone = true
		if s.conn != nil {
			s.conn.ReportRefresh(true)
		}
		return
	}

	if s.failures < maxConsecutiveFailures {
		s.failures++
	}
	if s.conn != nil {
		s.conn.ReportRefresh(false)
	}
	if !s.firstLoadDone {
		if !s.firstLoadNoted && s.onFirstLoadError != nil {
			s.onFirstLoadError(err)
		}
		s.firstLoadNoted = true
		return
	}
	// Failures after the first successful load degrade silently; the
	// connectivity indicator carries the signal to the user.
	log.Printf("poll tick failed (consecutive failures: %d): %v", s.failures, err)
}

// delay computes the next tick delay: base × 2^min(failures, 2), capped.
func (s *Scheduler) delay() time.Duration {
	exponent := s.failures
	if exponent > backoffExponentCap {
		exponent = backoffExponentCap
	}
	delay := s.base << exponent
	if delay > s.max {
		delay = s.max
	}
	return delay
}
