// Package feedback delivers user-facing feedback across speech, haptic,
// audio-cue and visual-status channels.
//
// A [Channel] is a fire-and-forget sink: its methods return nothing and
// must never panic into the caller. Implementations in this package:
//
//   - [Hub] streams events to connected UI clients over WebSocket.
//   - [Log] writes events to an [slog.Logger].
//   - [Multi] fans out to several channels in order.
//   - [Safe] recovers panics from a wrapped channel.
//   - [Metered] counts emissions per channel kind.
//
// Emissions from one voice session are delivered in call order; nothing in
// this package coalesces or reorders them.
package feedback

import (
	"context"
	"time"
)

// Channel is the feedback sink used by the voice core.
type Channel interface {
	// Announce speaks text and shows it as a visual announcement.
	Announce(ctx context.Context, text string)

	// Vibrate plays a haptic pattern.
	Vibrate(ctx context.Context, p Pattern)

	// Cue plays a short tone.
	Cue(ctx context.Context, t Tone)

	// Status updates the visual listening indicator.
	Status(ctx context.Context, s Status)
}

// Pattern is a vibration pattern: alternating on/off durations starting
// with "on". A single element is a plain pulse.
type Pattern []time.Duration

// Millis returns p in whole milliseconds, the unit used by UI vibration
// APIs.
func (p Pattern) Millis() []int64 {
	out := make([]int64, len(p))
	for i, d := range p {
		out[i] = d.Milliseconds()
	}
	return out
}

// Standard patterns.
var (
	// PulseReady signals the session is ready for the next input.
	PulseReady = Pattern{100 * time.Millisecond}

	// PulseSuccess confirms a completed action.
	PulseSuccess = Pattern{200 * time.Millisecond}

	// PulseError is the distinguishable failure pattern.
	PulseError = Pattern{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}

	// PulseNotify acknowledges a notification sent to staff.
	PulseNotify = Pattern{100 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}
)

// Tone is a sine beep.
type Tone struct {
	FrequencyHz float64       `json:"frequencyHz"`
	Duration    time.Duration `json:"duration"`
}

// StartCue is the tone played when listening begins.
var StartCue = Tone{FrequencyHz: 800, Duration: 100 * time.Millisecond}

// Status is the visual state of a voice session.
type Status struct {
	// State is "idle", "listening" or "processing".
	State string `json:"state"`

	// Field is the active field label, empty when none.
	Field string `json:"field,omitempty"`
}

// EventKind tags an [Event].
type EventKind string

const (
	EventAnnounce EventKind = "announce"
	EventVibrate  EventKind = "vibrate"
	EventCue      EventKind = "cue"
	EventStatus   EventKind = "status"
)

// Event is the wire form of a feedback emission.
type Event struct {
	Kind    EventKind `json:"kind"`
	Surface string    `json:"surface,omitempty"`
	Text    string    `json:"text,omitempty"`
	Pattern []int64   `json:"pattern,omitempty"`
	Tone    *Tone     `json:"tone,omitempty"`
	Status  *Status   `json:"status,omitempty"`
	At      time.Time `json:"at"`
}
