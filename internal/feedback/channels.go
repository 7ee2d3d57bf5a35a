package feedback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/wayfinder/internal/observe"
)

// Compile-time interface assertions.
var (
	_ Channel = (*Log)(nil)
	_ Channel = Multi(nil)
	_ Channel = (*safeChannel)(nil)
	_ Channel = (*meteredChannel)(nil)
	_ Channel = (*Gate)(nil)
	_ Channel = Discard{}
)

// Log writes every emission to a logger at debug level. It is the sink used
// when no UI is connected, and is useful in development.
type Log struct {
	logger  *slog.Logger
	surface string
}

// NewLog returns a [Log] channel. A nil logger uses [slog.Default].
func NewLog(logger *slog.Logger, surface string) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, surface: surface}
}

func (l *Log) Announce(ctx context.Context, text string) {
	l.logger.DebugContext(ctx, "feedback: announce", "surface", l.surface, "text", text)
}

func (l *Log) Vibrate(ctx context.Context, p Pattern) {
	l.logger.DebugContext(ctx, "feedback: vibrate", "surface", l.surface, "pattern_ms", p.Millis())
}

func (l *Log) Cue(ctx context.Context, t Tone) {
	l.logger.DebugContext(ctx, "feedback: cue", "surface", l.surface, "hz", t.FrequencyHz, "duration", t.Duration)
}

func (l *Log) Status(ctx context.Context, s Status) {
	l.logger.DebugContext(ctx, "feedback: status", "surface", l.surface, "state", s.State, "field", s.Field)
}

// Discard drops every emission.
type Discard struct{}

func (Discard) Announce(context.Context, string) {}
func (Discard) Vibrate(context.Context, Pattern) {}
func (Discard) Cue(context.Context, Tone)        {}
func (Discard) Status(context.Context, Status)   {}

// Multi fans out each emission to every channel, in slice order.
type Multi []Channel

func (m Multi) Announce(ctx context.Context, text string) {
	for _, ch := range m {
		ch.Announce(ctx, text)
	}
}

func (m Multi) Vibrate(ctx context.Context, p Pattern) {
	for _, ch := range m {
		ch.Vibrate(ctx, p)
	}
}

func (m Multi) Cue(ctx context.Context, t Tone) {
	for _, ch := range m {
		ch.Cue(ctx, t)
	}
}

func (m Multi) Status(ctx context.Context, s Status) {
	for _, ch := range m {
		ch.Status(ctx, s)
	}
}

// Safe wraps ch so that a panicking sink is logged and swallowed instead of
// unwinding into the voice session.
func Safe(ch Channel) Channel {
	return &safeChannel{next: ch}
}

type safeChannel struct {
	next Channel
}

func (s *safeChannel) recover(kind EventKind) {
	if r := recover(); r != nil {
		slog.Error("feedback: channel panicked", "kind", kind, "panic", r)
	}
}

func (s *safeChannel) Announce(ctx context.Context, text string) {
	defer s.recover(EventAnnounce)
	s.next.Announce(ctx, text)
}

func (s *safeChannel) Vibrate(ctx context.Context, p Pattern) {
	defer s.recover(EventVibrate)
	s.next.Vibrate(ctx, p)
}

func (s *safeChannel) Cue(ctx context.Context, t Tone) {
	defer s.recover(EventCue)
	s.next.Cue(ctx, t)
}

func (s *safeChannel) Status(ctx context.Context, st Status) {
	defer s.recover(EventStatus)
	s.next.Status(ctx, st)
}

// Metered counts each emission on m before forwarding it to ch.
func Metered(ch Channel, m *observe.Metrics, surface string) Channel {
	return &meteredChannel{next: ch, metrics: m, surface: surface}
}

type meteredChannel struct {
	next    Channel
	metrics *observe.Metrics
	surface string
}

func (c *meteredChannel) Announce(ctx context.Context, text string) {
	c.metrics.RecordFeedback(ctx, string(EventAnnounce), c.surface)
	c.next.Announce(ctx, text)
}

func (c *meteredChannel) Vibrate(ctx context.Context, p Pattern) {
	c.metrics.RecordFeedback(ctx, string(EventVibrate), c.surface)
	c.next.Vibrate(ctx, p)
}

func (c *meteredChannel) Cue(ctx context.Context, t Tone) {
	c.metrics.RecordFeedback(ctx, string(EventCue), c.surface)
	c.next.Cue(ctx, t)
}

func (c *meteredChannel) Status(ctx context.Context, s Status) {
	c.metrics.RecordFeedback(ctx, string(EventStatus), c.surface)
	c.next.Status(ctx, s)
}

// Gate forwards emissions to a channel until it is closed and drops them
// afterwards. Close waits for an emission in progress, so nothing passes
// the gate once Close has returned.
type Gate struct {
	next Channel

	mu     sync.RWMutex
	closed bool
}

// NewGate returns an open [Gate] in front of ch.
func NewGate(ch Channel) *Gate {
	return &Gate{next: ch}
}

// Close shuts the gate. Safe to call multiple times.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Gate) pass(emit func()) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.closed {
		emit()
	}
}

func (g *Gate) Announce(ctx context.Context, text string) {
	g.pass(func() { g.next.Announce(ctx, text) })
}

func (g *Gate) Vibrate(ctx context.Context, p Pattern) {
	g.pass(func() { g.next.Vibrate(ctx, p) })
}

func (g *Gate) Cue(ctx context.Context, t Tone) {
	g.pass(func() { g.next.Cue(ctx, t) })
}

func (g *Gate) Status(ctx context.Context, st Status) {
	g.pass(func() { g.next.Status(ctx, st) })
}
