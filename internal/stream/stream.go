// Package stream maintains one logical live subscription to a target's
// event feed across transport failures. The onopen/onmessage/onerror/onclose
// callback tangle of a raw WebSocket is collapsed into an explicit
// five-state machine driven by a single actor goroutine; reconnects resume
// from the caller's current high-water mark with capped exponential
// backoff.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/loggy"
)

// ConnState is the externally visible connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateLive
	StateReconnecting
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status describes one state transition. Attempt counts consecutive failed
// connects since the stream was last live; RetryIn is set while
// reconnecting.
type Status struct {
	State   ConnState
	Attempt int
	RetryIn time.Duration
	Err     error
}

// Conn is one open transport session. ReadEvent blocks until the next
// well-formed event or a transport error; implementations drop malformed
// messages internally and never surface them.
type Conn interface {
	ReadEvent() (eventlog.Event, error)
	Close() error
}

// Dialer opens a transport session resuming after the given sequence.
type Dialer interface {
	Dial(ctx context.Context, afterSeq int64) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, afterSeq int64) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, afterSeq int64) (Conn, error) {
	return f(ctx, afterSeq)
}

// Config wires a Stream to its collaborators.
type Config struct {
	// Dialer opens the transport. Required.
	Dialer Dialer

	// Cursor returns the resume cursor for the next dial, normally the
	// event buffer's HighWaterMark. It is consulted at dial time, every
	// time, so reconnects never reuse a stale position. Required.
	Cursor func() int64

	// Accept is the buffer guard. It reports whether the event was stored;
	// only accepted events are published on Events. Required.
	Accept func(eventlog.Event) bool

	Logger *loggy.Logger

	// newRetryTimer is a test seam; nil means time.After.
	newRetryTimer func(time.Duration) <-chan time.Time
}

type dialResult struct {
	id   int64
	conn Conn
	err  error
}

type readResult struct {
	id  int64
	ev  eventlog.Event
	err error
}

// Stream is the reconnecting subscription actor. Create with New, drive
// with Start/ReconnectNow/Stop, consume Events and StatusChanges.
type Stream struct {
	cfg    Config
	log    *loggy.Logger
	ctx    context.Context
	cancel context.CancelFunc

	reconnect chan struct{}
	dialc     chan dialResult
	readc     chan readResult
	events    chan eventlog.Event
	statusc   chan Status

	mu       sync.Mutex
	started  bool
	stopped  bool
	finished chan struct{}
}

// New builds a stream around cfg. The stream owns no connection until
// Start is called.
func New(cfg Config) *Stream {
	if cfg.Dialer == nil || cfg.Cursor == nil || cfg.Accept == nil {
		panic("stream: Dialer, Cursor and Accept are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = loggy.NewNoopLogger()
	}
	if cfg.newRetryTimer == nil {
		cfg.newRetryTimer = func(d time.Duration) <-chan time.Time {
			return time.After(d)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		cfg:       cfg,
		log:       cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		reconnect: make(chan struct{}, 1),
		dialc:     make(chan dialResult, 1),
		readc:     make(chan readResult, 64),
		events:    make(chan eventlog.Event, 256),
		statusc:   make(chan Status, 16),
		finished:  make(chan struct{}),
	}
}

// Events emits accepted events in arrival order. Closed once the stream
// fully stops.
func (s *Stream) Events() <-chan eventlog.Event {
	return s.events
}

// StatusChanges emits a Status on every state transition. Closed once the
// stream fully stops.
func (s *Stream) StatusChanges() <-chan Status {
	return s.statusc
}

// Start begins connecting. Calling it more than once, or after Stop, is a
// no-op.
func (s *Stream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// ReconnectNow forces an immediate dial, resetting the backoff counter and
// bypassing any pending retry timer. No-op after Stop.
func (s *Stream) ReconnectNow() {
	select {
	case s.reconnect <- struct{}{}:
	case <-s.finished:
	default:
		// A reconnect request is already queued.
	}
}

// Stop tears the stream down from any state: the transport closes, pending
// retries are cancelled, and the final published state is disconnected.
// It blocks until the actor has exited and the output channels are closed.
// Idempotent.
func (s *Stream) Stop() {
	s.mu.Lock()
	alreadyStopped := s.stopped
	wasStarted := s.started
	s.stopped = true
	s.started = true
	s.mu.Unlock()

	s.cancel()
	if alreadyStopped {
		<-s.finished
		return
	}
	if !wasStarted {
		close(s.finished)
		close(s.events)
		close(s.statusc)
		return
	}
	<-s.finished
}

// newBackoff builds the reconnect policy: 1, 2, 4, 8, 16, then capped at
// 30 seconds, no jitter, no give-up deadline.
func newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (s *Stream) run() {
	defer func() {
		close(s.finished)
		close(s.events)
		close(s.statusc)
	}()

	var (
		state   = StateDisconnected
		attempt int
		lastErr error
		conn    Conn
		connID  int64
		retryC  <-chan time.Time
		bo      = newBackoff()
	)

	publish := func(retryIn time.Duration) {
		st := Status{State: state, Attempt: attempt, RetryIn: retryIn, Err: lastErr}
		select {
		case s.statusc <- st:
		default:
			// A slow subscriber only loses intermediate transitions.
		}
	}

	closeConn := func() {
		if conn != nil {
			conn.Close()
			conn = nil
		}
		connID++
	}

	// dial opens a fresh transport session. Results from a session that has
	// been superseded in the meantime carry a stale id and are discarded.
	dial := func() {
		closeConn()
		retryC = nil
		state = StateConnecting
		publish(0)
		id := connID
		afterSeq := s.cfg.Cursor()
		s.log.Debug("dialing event stream", "after_seq", afterSeq, "attempt", attempt)
		go func() {
			c, err := s.cfg.Dialer.Dial(s.ctx, afterSeq)
			select {
			case s.dialc <- dialResult{id: id, conn: c, err: err}:
			case <-s.ctx.Done():
				if c != nil {
					c.Close()
				}
			}
		}()
	}

	// scheduleRetry records a transport failure: a transient error state,
	// then reconnecting with the next backoff delay.
	scheduleRetry := func(err error) {
		closeConn()
		lastErr = err
		state = StateError
		publish(0)
		delay := bo.NextBackOff()
		attempt++
		retryC = s.cfg.newRetryTimer(delay)
		state = StateReconnecting
		s.log.Debug("stream reconnect scheduled", "delay", delay, "attempt", attempt, "error", err)
		publish(delay)
	}

	startReader := func(c Conn, id int64) {
		go func() {
			for {
				ev, err := c.ReadEvent()
				select {
				case s.readc <- readResult{id: id, ev: ev, err: err}:
				case <-s.ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}

	dial()

	for {
		select {
		case <-s.reconnect:
			bo.Reset()
			attempt = 0
			lastErr = nil
			dial()

		case res := <-s.dialc:
			if res.id != connID {
				if res.conn != nil {
					res.conn.Close()
				}
				continue
			}
			if res.err != nil {
				scheduleRetry(res.err)
				continue
			}
			conn = res.conn
			state = StateLive
			attempt = 0
			lastErr = nil
			bo.Reset()
			publish(0)
			startReader(conn, connID)

		case res := <-s.readc:
			if res.id != connID {
				continue
			}
			if res.err != nil {
				scheduleRetry(res.err)
				continue
			}
			if s.cfg.Accept(res.ev) {
				select {
				case s.events <- res.ev:
				case <-s.ctx.Done():
				}
			}

		case <-retryC:
			if state == StateReconnecting {
				dial()
			}

		case <-s.ctx.Done():
			closeConn()
			state = StateDisconnected
			lastErr = nil
			publish(0)
			return
		}
	}
}
