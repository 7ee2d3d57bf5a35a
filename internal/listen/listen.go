// Package listen implements the voice session state machine.
//
// A [Machine] moves Idle → Listening → Processing → Idle. [Machine.Start]
// is only accepted from Idle; it plays the start cue and waits for a
// [Recognizer] in the background. When a transcript arrives the machine
// enters Processing, hands the transcript to the cycle's [Handler], then
// returns to Idle and pulses the "ready" vibration. The machine imposes no
// timeout of its own: the caller bounds a cycle through the context passed
// to Start. A recognition that fails or runs out of time still calls the
// handler (with a non-nil [Result.Err]) and still ends with the ready pulse.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/wayfinder/internal/feedback"
)

var (
	// ErrBusy is returned by [Machine.Start] when a cycle is in flight.
	ErrBusy = errors.New("listen: session is busy")

	// ErrClosed is returned by [Machine.Start] after [Machine.Close].
	ErrClosed = errors.New("listen: session closed")

	// ErrTimeout wraps a recognition that ran past the cycle deadline.
	ErrTimeout = errors.New("listen: recognition timed out")

	// ErrNotListening is returned by [Push.Deliver] when no recognition is
	// waiting for a transcript.
	ErrNotListening = errors.New("listen: not listening")
)

// State is the machine state.
type State int

const (
	Idle State = iota
	Listening
	Processing
)

// String returns the lower-case state name used in status updates.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome of one recognition.
type Result struct {
	// Transcript is the raw recognised text. Empty when Err is set.
	Transcript string

	// Err is nil on success. It wraps [ErrTimeout] when the cycle deadline
	// passed, and is [context.Canceled] when the cycle was cancelled.
	Err error
}

// Handler processes one result while the machine is in Processing (or,
// for failed recognitions, just before it returns to Idle).
type Handler func(ctx context.Context, r Result)

// Recognizer delivers one transcript per call. Recognize blocks until a
// transcript is available or ctx is done.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// RecognizerFunc adapts a function to [Recognizer].
type RecognizerFunc func(ctx context.Context) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context) (string, error) { return f(ctx) }

// Config configures a [Machine].
type Config struct {
	// Recognizer supplies transcripts. Required.
	Recognizer Recognizer

	// Feedback receives the cue, pulse and status emissions. Defaults to
	// [feedback.Discard].
	Feedback feedback.Channel

	// StartCue is played on entering Listening. Defaults to
	// [feedback.StartCue].
	StartCue feedback.Tone

	// ReadyPulse is vibrated on every return to Idle. Defaults to
	// [feedback.PulseReady].
	ReadyPulse feedback.Pattern

	// OnTransition, when set, is called after every state change. It runs
	// under the machine lock and must not call back into the Machine.
	OnTransition func(from, to State)
}

// Machine is the listening state machine of one voice session. All
// methods are safe for concurrent use.
type Machine struct {
	rec          Recognizer
	fb           feedback.Channel
	cue          feedback.Tone
	pulse        feedback.Pattern
	onTransition func(from, to State)

	mu     sync.Mutex
	state  State
	field  string
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New creates an idle [Machine].
func New(cfg Config) *Machine {
	m := &Machine{
		rec:          cfg.Recognizer,
		fb:           cfg.Feedback,
		cue:          cfg.StartCue,
		pulse:        cfg.ReadyPulse,
		onTransition: cfg.OnTransition,
	}
	if m.fb == nil {
		m.fb = feedback.Discard{}
	}
	if m.cue == (feedback.Tone{}) {
		m.cue = feedback.StartCue
	}
	if len(m.pulse) == 0 {
		m.pulse = feedback.PulseReady
	}
	return m
}

// StartOption customises a single cycle.
type StartOption func(*cycle)

type cycle struct {
	field string
}

// WithField labels the cycle's status updates with the active field.
func WithField(field string) StartOption {
	return func(c *cycle) { c.field = field }
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins a recognition cycle. It returns [ErrBusy] without any side
// effect unless the machine is Idle. On success the start cue has already
// been emitted when Start returns; h runs on a background goroutine.
//
// ctx bounds the whole cycle. Cancelling it, or calling [Machine.Cancel],
// ends the cycle with a failed [Result].
func (m *Machine) Start(ctx context.Context, h Handler, opts ...StartOption) error {
	var c cycle
	for _, o := range opts {
		o(&c)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Idle {
		m.mu.Unlock()
		return ErrBusy
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.field = c.field
	m.wg.Add(1)
	m.transitionLocked(cycleCtx, Listening)
	m.mu.Unlock()

	m.fb.Cue(cycleCtx, m.cue)

	go m.run(cycleCtx, cancel, h)
	return nil
}

func (m *Machine) run(ctx context.Context, cancel context.CancelFunc, h Handler) {
	defer m.wg.Done()
	defer cancel()

	text, err := m.rec.Recognize(ctx)
	if err == nil {
		// A transcript that raced the deadline still counts as a miss.
		err = ctx.Err()
	}
	if err != nil {
		text = ""
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		slog.Debug("listen: recognition failed", "field", m.currentField(), "err", err)
	} else {
		m.mu.Lock()
		m.transitionLocked(ctx, Processing)
		m.mu.Unlock()
	}

	if h != nil {
		h(ctx, Result{Transcript: text, Err: err})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = nil
	m.field = ""
	m.transitionLocked(ctx, Idle)
	// Pulsed under the lock so the next cycle's cue cannot overtake it, and
	// even when the cycle context was cancelled.
	m.fb.Vibrate(context.WithoutCancel(ctx), m.pulse)
}

func (m *Machine) currentField() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.field
}

// transitionLocked changes state and emits the matching status update.
// m.mu must be held; the status emission happens under the lock so that
// status updates are never reordered across transitions.
func (m *Machine) transitionLocked(ctx context.Context, to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.fb.Status(context.WithoutCancel(ctx), feedback.Status{State: to.String(), Field: m.field})
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// Cancel aborts the in-flight cycle, if any. The handler still runs with a
// failed result and the machine returns to Idle asynchronously.
func (m *Machine) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight cycle, if any, has returned to Idle.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close cancels the in-flight cycle, waits for it to finish and rejects
// further starts. Safe to call multiple times.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Cancel()
	m.wg.Wait()
}
