// Package runview drives one live view over a run or operation: it loads
// the event history, keeps it fresh over the event stream, polls the hub
// for status, and tracks follow state and derived progress. The package is
// presentation-agnostic; the watch TUI and the headless follow command both
// consume the same controller.
package runview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/follow"
	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/progress"
	"github.com/bastionhq/bastionctl/internal/stream"
)

// Backend is the slice of the hub client the controller needs.
type Backend interface {
	TargetStatus(ctx context.Context, target hub.Target) (*hub.StatusSnapshot, error)
	TargetEvents(ctx context.Context, target hub.Target, afterSeq int64, limit int) ([]eventlog.Event, error)
	EventDialer(target hub.Target) stream.Dialer
}

// UpdateKind says what changed.
type UpdateKind int

const (
	// UpdateBackfill fires once per Open after the history loaded.
	UpdateBackfill UpdateKind = iota

	// UpdateEvent fires when live events were appended to the log.
	UpdateEvent

	// UpdateStatus fires when a fresh status snapshot arrived.
	UpdateStatus

	// UpdateStream fires on stream connection state changes.
	UpdateStream

	// UpdatePollStopped fires when status polling ended: after the terminal
	// drain, or with Err set after repeated poll failures.
	UpdatePollStopped
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateBackfill:
		return "backfill"
	case UpdateEvent:
		return "event"
	case UpdateStatus:
		return "status"
	case UpdateStream:
		return "stream"
	case UpdatePollStopped:
		return "poll-stopped"
	default:
		return "unknown"
	}
}

// Update is a change notification. Payload fields are conveniences; the
// channel may drop updates under pressure, so consumers should re-read
// controller state rather than accumulate payloads. Err is set on a
// degraded backfill (history unavailable) and on a given-up poll.
type Update struct {
	Kind     UpdateKind
	Appended int
	Scroll   bool
	Status   *hub.StatusSnapshot
	Stream   stream.Status
	Err      error
}

// Defaults for Config zero values.
const (
	DefaultPollInterval     = time.Second
	DefaultBackfillLimit    = 1000
	DefaultDrainGrace       = 3 * time.Second
	DefaultPollFailureLimit = 5
)

// Config configures a Controller. Backend is required; zero values select
// the defaults.
type Config struct {
	Backend          Backend
	Logger           *loggy.Logger
	PollInterval     time.Duration
	BackfillLimit    int
	DrainGrace       time.Duration
	PollFailureLimit int
	Follow           follow.Config
}

// Controller owns one viewing session at a time. Open tears down the
// previous session and starts the next; a generation counter keeps results
// from a torn-down session out of the current one.
type Controller struct {
	backend Backend
	logger  *loggy.Logger
	cfg     Config

	mu         sync.Mutex
	gen        int64
	target     hub.Target
	buf        *eventlog.Buffer
	fol        *follow.Controller
	str        *stream.Stream
	pollCancel context.CancelFunc
	status     *hub.StatusSnapshot
	streamStat stream.Status
	peakRate   float64
	closed     bool

	updates chan Update
}

// New creates a controller. It panics if Backend is missing.
func New(cfg Config) *Controller {
	if cfg.Backend == nil {
		panic("runview: Config.Backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = loggy.NewNoopLogger()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = DefaultBackfillLimit
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}
	if cfg.PollFailureLimit <= 0 {
		cfg.PollFailureLimit = DefaultPollFailureLimit
	}

	return &Controller{
		backend: cfg.Backend,
		logger:  cfg.Logger,
		cfg:     cfg,
		buf:     eventlog.NewBuffer(),
		fol:     follow.New(cfg.Follow),
		updates: make(chan Update, 64),
	}
}

// Updates returns the change notification channel. It is closed by Close.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

// Open starts a viewing session for the target: it fetches the current
// status and event history, then, unless the run already ended, starts the
// event stream and status polling. A failed history fetch degrades the view
// (backfill notice with Err set) but the stream is still attempted. The
// context governs the whole session; canceling it stops polling. A second
// Open supersedes the first.
func (c *Controller) Open(ctx context.Context, target hub.Target) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("view is closed")
	}
	c.gen++
	gen := c.gen
	c.teardownLocked()
	buf := eventlog.NewBuffer()
	c.buf = buf
	c.fol = follow.New(c.cfg.Follow)
	c.target = target
	c.status = nil
	c.streamStat = stream.Status{}
	c.peakRate = 0
	c.mu.Unlock()

	status, err := c.backend.TargetStatus(ctx, target)
	if err != nil {
		// The poller retries; history is still worth showing.
		c.logger.Warn("Initial status fetch failed", "target", target.String(), "error", err)
	}

	events, backfillErr := c.backend.TargetEvents(ctx, target, 0, c.cfg.BackfillLimit)
	if backfillErr != nil {
		c.logger.Warn("Event history fetch failed, opening degraded",
			"target", target.String(), "error", backfillErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		// A newer Open or Close superseded this one.
		return nil
	}

	if backfillErr != nil {
		c.publishLocked(gen, Update{Kind: UpdateBackfill, Err: backfillErr})
	} else {
		buf.ReplaceAll(events)
		c.publishLocked(gen, Update{Kind: UpdateBackfill, Appended: buf.Len(), Scroll: true})
	}

	if status != nil {
		c.status = status
		c.publishLocked(gen, Update{Kind: UpdateStatus, Status: status})

		if status.Status.Terminal() {
			// Nothing left to stream or poll for.
			c.publishLocked(gen, Update{Kind: UpdatePollStopped})
			return nil
		}
	}

	str := stream.New(stream.Config{
		Dialer: c.backend.EventDialer(target),
		Cursor: buf.HighWaterMark,
		Accept: buf.TryAppend,
		Logger: c.logger,
	})
	c.str = str
	str.Start()
	go c.pump(gen, str)

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	go c.poll(pollCtx, gen, target)

	return nil
}

// Close tears down the session and closes the updates channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.teardownLocked()
	close(c.updates)
}

// ReconnectNow asks the stream for an immediate reconnect attempt.
func (c *Controller) ReconnectNow() {
	c.mu.Lock()
	str := c.str
	c.mu.Unlock()
	if str != nil {
		str.ReconnectNow()
	}
}

// ReportScroll forwards a scroll observation to the follow controller and
// reports whether the view should jump to the latest line.
func (c *Controller) ReportScroll(distanceFromBottom float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fol.ReportScroll(distanceFromBottom)
}

// SetFollow turns following on or off at the user's request.
func (c *Controller) SetFollow(on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fol.SetEnabled(on)
}

// ToggleFollow flips following at the user's request.
func (c *Controller) ToggleFollow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fol.Toggle()
}

// JumpToLatest re-enables following and scrolls to the newest entry.
func (c *Controller) JumpToLatest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fol.JumpToLatest()
}

// FollowState returns the current follow state.
func (c *Controller) FollowState() follow.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fol.State()
}

// Target returns the target of the current session.
func (c *Controller) Target() hub.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Events returns the ordered event history.
func (c *Controller) Events() []eventlog.Event {
	c.mu.Lock()
	buf := c.buf
	c.mu.Unlock()
	return buf.SnapshotOrdered()
}

// StatusSnapshot returns the latest status snapshot, nil before one arrived.
func (c *Controller) StatusSnapshot() *hub.StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StreamStatus returns the latest stream connection status.
func (c *Controller) StreamStatus() stream.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamStat
}

// Derive builds the progress view-model from the current status and event
// history, and remembers the highest live rate seen for later display.
func (c *Controller) Derive() progress.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := progress.Input{
		Events:   c.buf.SnapshotOrdered(),
		PeakRate: c.peakRate,
	}
	if c.status != nil {
		in.Status = c.status.Status
		in.StartedAt = c.status.StartedAt
		in.EndedAt = c.status.EndedAt
		in.Snapshot = c.status.Progress
	}

	report := progress.Derive(in)
	if report.RateSource == progress.RateLive && report.Rate > c.peakRate {
		c.peakRate = report.Rate
	}
	return report
}

// teardownLocked stops the stream and poller of the current session. The
// stream actor never blocks on its consumers, so stopping under the lock
// cannot deadlock.
func (c *Controller) teardownLocked() {
	if c.str != nil {
		c.str.Stop()
		c.str = nil
	}
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

// pump forwards stream output into the controller until both stream
// channels close.
func (c *Controller) pump(gen int64, str *stream.Stream) {
	events := str.Events()
	statuses := str.StatusChanges()

	for events != nil || statuses != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.onEvent(gen, ev)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			c.onStreamStatus(gen, st)
		}
	}
}

// onEvent records an appended event. The stream already stored it in the
// buffer through the Accept guard.
func (c *Controller) onEvent(gen int64, _ eventlog.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	scroll := c.fol.NoteAppended(1)
	c.publishLocked(gen, Update{Kind: UpdateEvent, Appended: 1, Scroll: scroll})
}

func (c *Controller) onStreamStatus(gen int64, st stream.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.streamStat = st
	c.publishLocked(gen, Update{Kind: UpdateStream, Stream: st})
}

// poll refreshes the status snapshot until the run ends, the failure limit
// is hit, or the context is canceled.
func (c *Controller) poll(ctx context.Context, gen int64, target hub.Target) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := c.backend.TargetStatus(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Warn("Status poll failed",
				"target", target.String(),
				"attempt", failures,
				"error", err,
			)
			if failures >= c.cfg.PollFailureLimit {
				c.publish(gen, Update{Kind: UpdatePollStopped, Err: err})
				return
			}
			continue
		}
		failures = 0

		c.setStatus(gen, status)

		if status.Status.Terminal() {
			// Late events may still be in flight; give the stream a moment
			// before shutting it down.
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.DrainGrace):
			}
			c.stopStream(gen)
			c.publish(gen, Update{Kind: UpdatePollStopped})
			return
		}
	}
}

func (c *Controller) setStatus(gen int64, status *hub.StatusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.status = status
	c.publishLocked(gen, Update{Kind: UpdateStatus, Status: status})
}

func (c *Controller) stopStream(gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed || c.str == nil {
		return
	}
	c.str.Stop()
	c.str = nil
}

func (c *Controller) publish(gen int64, u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(gen, u)
}

// publishLocked drops the update when the session it belongs to is gone,
// or when the consumer is too far behind to keep the buffer from filling.
func (c *Controller) publishLocked(gen int64, u Update) {
	if c.closed || gen != c.gen {
		return
	}
	select {
	case c.updates <- u:
	default:
	}
}
