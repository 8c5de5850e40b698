package follow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives the suppression window deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newTestController() (*Controller, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := New(Config{Now: clock.now})
	return c, clock
}

func TestInitialState(t *testing.T) {
	c, _ := newTestController()

	st := c.State()
	assert.True(t, st.Enabled)
	assert.Equal(t, ReasonNone, st.DisabledReason)
	assert.Zero(t, st.UnseenCount)
}

func TestAutoDisableAndAutoReenable(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	changed := c.ReportScroll(120)
	assert.True(t, changed)
	assert.False(t, c.State().Enabled)
	assert.Equal(t, ReasonAuto, c.State().DisabledReason)

	// Back within the threshold: an auto disable resumes following.
	changed = c.ReportScroll(10)
	assert.True(t, changed)
	assert.True(t, c.State().Enabled)
	assert.Equal(t, ReasonNone, c.State().DisabledReason)
}

func TestManualDisableSurvivesScrollToBottom(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	c.SetEnabled(false)
	assert.Equal(t, ReasonManual, c.State().DisabledReason)

	changed := c.ReportScroll(0)
	assert.False(t, changed)
	assert.False(t, c.State().Enabled, "manual disable must not be undone by scroll position")

	// Only an explicit action re-enables.
	scroll := c.SetEnabled(true)
	assert.True(t, scroll)
	assert.True(t, c.State().Enabled)
}

func TestUnseenCounting(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	scroll := c.NoteAppended(1)
	assert.True(t, scroll, "while following, appends scroll the view")
	assert.Zero(t, c.State().UnseenCount)

	c.SetEnabled(false)
	c.NoteAppended(3)
	c.NoteAppended(2)
	assert.Equal(t, 5, c.State().UnseenCount)

	scroll = c.JumpToLatest()
	assert.True(t, scroll)
	assert.True(t, c.State().Enabled)
	assert.Zero(t, c.State().UnseenCount)
}

func TestAutoReenableClearsUnseen(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	c.ReportScroll(200)
	c.NoteAppended(4)
	assert.Equal(t, 4, c.State().UnseenCount)

	clock.advance(time.Second)
	c.ReportScroll(0)
	assert.True(t, c.State().Enabled)
	assert.Zero(t, c.State().UnseenCount)
}

func TestSuppressionWindow(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	// A programmatic scroll opens the window; the viewport's position
	// callback lands inside it and must not disable follow.
	c.NoteAppended(1)
	c.ReportScroll(500)
	assert.True(t, c.State().Enabled)

	// After the window, the same report counts as the user scrolling away.
	clock.advance(DefaultSuppressWindow + time.Millisecond)
	c.ReportScroll(500)
	assert.False(t, c.State().Enabled)
	assert.Equal(t, ReasonAuto, c.State().DisabledReason)
}

func TestToggle(t *testing.T) {
	c, clock := newTestController()
	clock.advance(time.Second)

	scroll := c.Toggle()
	assert.False(t, scroll)
	assert.False(t, c.State().Enabled)
	assert.Equal(t, ReasonManual, c.State().DisabledReason)

	scroll = c.Toggle()
	assert.True(t, scroll)
	assert.True(t, c.State().Enabled)
	assert.Equal(t, ReasonNone, c.State().DisabledReason)
}
