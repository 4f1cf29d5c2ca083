package tracker

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/initiative.watch/internal/dispatch"
	"github.com/louisbranch/initiative.watch/internal/gateway"
	"github.com/louisbranch/initiative.watch/internal/platform/timeouts"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// Authority is the full remote-authority surface the client consumes: the
// poll fetches plus the two action protocols.
type Authority interface {
	Poller
	dispatch.Authority
}

// Client is the facade for one open session: it owns the view, keeps it
// fresh through the scheduler, and routes commands through the dispatcher.
// The presentation layer reads immutable snapshots and calls Dispatch; it
// never mutates the model directly.
type Client struct {
	view       *View
	conn       *Connectivity
	scheduler  *Scheduler
	dispatcher *dispatch.Dispatcher
}

// Config assembles a Client.
type Config struct {
	// Authority is the remote session authority.
	Authority Authority
	// SessionID is the session to open.
	SessionID string
	// Mode is the command protocol mode, fixed for the process lifetime.
	Mode dispatch.Mode
	// BaseInterval and MaxInterval tune the poll loop; zero values keep
	// the defaults.
	BaseInterval time.Duration
	MaxInterval  time.Duration
	// Notify receives user-facing notices: the first-load failure and the
	// one-time legacy fallback notice. May be nil.
	Notify func(message string)
	// OnEvents receives newly observed journal events, newest first. May
	// be nil.
	OnEvents func([]event.Event)
}

// NewClient assembles the client for one session.
func NewClient(cfg Config) *Client {
	view := NewView(cfg.SessionID)

	c := &Client{view: view}
	c.conn = NewConnectivity(c.Refresh)

	var schedulerOpts []SchedulerOption
	schedulerOpts = append(schedulerOpts, WithIntervals(cfg.BaseInterval, cfg.MaxInterval))
	if cfg.Notify != nil {
		notify := cfg.Notify
		schedulerOpts = append(schedulerOpts, WithFirstLoadErrorHandler(func(err error) {
			notify("session failed to load: " + err.Error())
		}))
	}
	if cfg.OnEvents != nil {
		schedulerOpts = append(schedulerOpts, WithEventSink(cfg.OnEvents))
	}
	c.scheduler = NewScheduler(cfg.Authority, view, c.conn, schedulerOpts...)

	var dispatchOpts []dispatch.Option
	if cfg.Notify != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifier(cfg.Notify))
	}
	dispatchOpts = append(dispatchOpts, dispatch.WithSuccessHook(c.refetchEvents))
	c.dispatcher = dispatch.New(cfg.Authority, cfg.SessionID, cfg.Mode, dispatchOpts...)

	return c
}

// Run executes the poll loop until ctx is cancelled, then closes the view.
func (c *Client) Run(ctx context.Context) {
	defer c.Close()
	c.scheduler.Run(ctx)
}

// Mode returns the resolved command protocol mode.
func (c *Client) Mode() dispatch.Mode {
	return c.dispatcher.Mode()
}

// Dispatch executes one mutating command and returns its result payload.
func (c *Client) Dispatch(ctx context.Context, actionType gateway.ActionType, payload map[string]any) (gateway.ActionResult, error) {
	return c.dispatcher.Dispatch(ctx, actionType, payload)
}

// Snapshot returns a deep copy of the session model and whether it has been
// hydrated. Stale data remains readable while polling degrades.
func (c *Client) Snapshot() (session.Model, bool) {
	return c.view.Snapshot()
}

// Connectivity returns the current connectivity status.
func (c *Client) Connectivity() ConnState {
	return c.conn.State()
}

// SetNetworkAvailable feeds the platform reachability signal. An online
// edge triggers one immediate silent refresh.
func (c *Client) SetNetworkAvailable(available bool) {
	c.conn.SetNetworkAvailable(available)
}

// Refresh requests a user-triggered out-of-cycle reload.
func (c *Client) Refresh() {
	c.scheduler.Refresh()
}

// Close marks the session view closed; in-flight poll responses are
// discarded rather than merged.
func (c *Client) Close() {
	c.view.Close()
}

// refetchEvents is the dispatcher's post-success hook: an immediate
// cursor-based event fetch so the journal reflects the action without
// waiting for the next scheduled tick. Skipped once the view has closed.
func (c *Client) refetchEvents() {
	if c.view.Closed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.HTTPRequest)
	defer cancel()
	if err := c.scheduler.FetchEventsNow(ctx); err != nil {
		log.Printf("post-dispatch event refetch failed: %v", err)
	}
}
