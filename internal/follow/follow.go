// Package follow decides whether an event view should auto-scroll to the
// newest entry. It is a plain state machine over scroll observations,
// explicit user toggles, and append notifications; the presentation layer
// acts on the scroll decisions it returns.
package follow

import "time"

// Reason records why follow is currently disabled.
type Reason string

const (
	ReasonNone   Reason = "none"
	ReasonAuto   Reason = "auto"
	ReasonManual Reason = "manual"
)

// State is the externally visible follow state.
type State struct {
	Enabled        bool
	DisabledReason Reason
	UnseenCount    int
}

const (
	// DefaultBottomThreshold is the distance from the bottom, in whatever
	// unit the view reports, still counted as "at the bottom".
	DefaultBottomThreshold = 16.0

	// DefaultSuppressWindow is how long scroll reports are ignored after a
	// programmatic scroll, so the resulting position callback is not taken
	// for the user scrolling away.
	DefaultSuppressWindow = 300 * time.Millisecond
)

// Config tunes a Controller. Zero values select the defaults; Now is
// injectable for tests.
type Config struct {
	BottomThreshold float64
	SuppressWindow  time.Duration
	Now             func() time.Time
}

// Controller tracks follow state for one open view. It is not safe for
// concurrent use; callers serialize access.
type Controller struct {
	threshold float64
	suppress  time.Duration
	now       func() time.Time

	state         State
	suppressUntil time.Time
}

// New returns a controller in the initial view-open state: following, no
// unseen events.
func New(cfg Config) *Controller {
	if cfg.BottomThreshold <= 0 {
		cfg.BottomThreshold = DefaultBottomThreshold
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		threshold: cfg.BottomThreshold,
		suppress:  cfg.SuppressWindow,
		now:       cfg.Now,
		state:     State{Enabled: true, DisabledReason: ReasonNone},
	}
}

// State returns the current follow state.
func (c *Controller) State() State {
	return c.state
}

// ReportScroll processes a scroll-position observation and reports whether
// the follow state changed. Reports inside the suppression window are
// ignored. Scrolling away from the bottom while following disables follow
// with ReasonAuto; returning to the bottom re-enables it only when the
// disable was automatic. A manual disable survives any amount of scrolling.
func (c *Controller) ReportScroll(distanceFromBottom float64) bool {
	if c.now().Before(c.suppressUntil) {
		return false
	}

	atBottom := distanceFromBottom <= c.threshold

	if c.state.Enabled && !atBottom {
		c.state.Enabled = false
		c.state.DisabledReason = ReasonAuto
		return true
	}

	if !c.state.Enabled && atBottom && c.state.DisabledReason == ReasonAuto {
		c.state = State{Enabled: true, DisabledReason: ReasonNone}
		return true
	}

	return false
}

// SetEnabled is the explicit user toggle. Enabling clears the unseen count
// and requests a scroll to the latest entry; disabling marks the state
// manual so scroll position alone cannot re-enable it.
func (c *Controller) SetEnabled(on bool) (scrollToLatest bool) {
	if on {
		c.state = State{Enabled: true, DisabledReason: ReasonNone}
		c.markProgrammaticScroll()
		return true
	}
	c.state.Enabled = false
	c.state.DisabledReason = ReasonManual
	return false
}

// Toggle flips the explicit follow toggle.
func (c *Controller) Toggle() (scrollToLatest bool) {
	return c.SetEnabled(!c.state.Enabled)
}

// JumpToLatest is the "go to newest" action: it re-enables follow whatever
// the disable reason was, clears the unseen count, and requests a scroll.
func (c *Controller) JumpToLatest() (scrollToLatest bool) {
	return c.SetEnabled(true)
}

// NoteAppended records n newly accepted events. While following it requests
// a scroll to the latest entry; otherwise the events count as unseen.
func (c *Controller) NoteAppended(n int) (scrollToLatest bool) {
	if n <= 0 {
		return false
	}
	if c.state.Enabled {
		c.state.UnseenCount = 0
		c.markProgrammaticScroll()
		return true
	}
	c.state.UnseenCount += n
	return false
}

func (c *Controller) markProgrammaticScroll() {
	c.suppressUntil = c.now().Add(c.suppress)
}
