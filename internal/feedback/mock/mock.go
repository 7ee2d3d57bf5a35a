// Package mock provides a recording implementation of [feedback.Channel] for
// use in unit tests.
//
// Every emission is appended to [Channel.Events] in call order. It is safe
// for concurrent use.
//
// Example:
//
//	ch := &mock.Channel{}
//	sess := session.New(..., session.WithFeedback(ch))
//	...
//	if got := ch.Announcements(); got[0] != "Navigated to Account" { ... }
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/wayfinder/internal/feedback"
)

// Compile-time interface assertion.
var _ feedback.Channel = (*Channel)(nil)

// Channel is a mock implementation of [feedback.Channel].
type Channel struct {
	mu     sync.Mutex
	events []feedback.Event

	// OnEvent, when set, is called after each emission is recorded.
	OnEvent func(feedback.Event)
}

func (c *Channel) record(ev feedback.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	hook := c.OnEvent
	c.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

// Announce records an announcement.
func (c *Channel) Announce(_ context.Context, text string) {
	c.record(feedback.Event{Kind: feedback.EventAnnounce, Text: text})
}

// Vibrate records a vibration.
func (c *Channel) Vibrate(_ context.Context, p feedback.Pattern) {
	c.record(feedback.Event{Kind: feedback.EventVibrate, Pattern: p.Millis()})
}

// Cue records a tone.
func (c *Channel) Cue(_ context.Context, t feedback.Tone) {
	c.record(feedback.Event{Kind: feedback.EventCue, Tone: &t})
}

// Status records a visual status update.
func (c *Channel) Status(_ context.Context, s feedback.Status) {
	c.record(feedback.Event{Kind: feedback.EventStatus, Status: &s})
}

// Events returns a copy of every recorded emission.
func (c *Channel) Events() []feedback.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

// Announcements returns the recorded announcement texts in order.
func (c *Channel) Announcements() []string {
	var out []string
	for _, ev := range c.Events() {
		if ev.Kind == feedback.EventAnnounce {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Vibrations returns the recorded vibration patterns in milliseconds.
func (c *Channel) Vibrations() [][]int64 {
	var out [][]int64
	for _, ev := range c.Events() {
		if ev.Kind == feedback.EventVibrate {
			out = append(out, ev.Pattern)
		}
	}
	return out
}

// States returns the recorded status states in order.
func (c *Channel) States() []string {
	var out []string
	for _, ev := range c.Events() {
		if ev.Kind == feedback.EventStatus {
			out = append(out, ev.Status.State)
		}
	}
	return out
}

// Cues returns the number of recorded tones.
func (c *Channel) Cues() int {
	n := 0
	for _, ev := range c.Events() {
		if ev.Kind == feedback.EventCue {
			n++
		}
	}
	return n
}

// Reset discards all recorded emissions.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
