package listen

import (
	"context"
	"sync"
)

// Push is a [Recognizer] fed from outside, typically by an HTTP handler
// relaying the browser's speech recogniser. A transcript is only accepted
// while the recognizer is armed, either by [Push.Arm] or by a waiting
// Recognize call; earlier or later deliveries fail with [ErrNotListening]
// instead of leaking into the next cycle. At most one transcript is
// accepted per arming.
type Push struct {
	mu   sync.Mutex
	slot chan string
}

var _ Recognizer = (*Push)(nil)

// NewPush creates an idle [Push] recognizer.
func NewPush() *Push {
	return &Push{}
}

// Arm opens the slot for the next transcript before Recognize runs, so a
// delivery racing the start of a cycle is kept for it.
func (p *Push) Arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot == nil {
		p.slot = make(chan string, 1)
	}
}

// Disarm closes the slot without a Recognize call, dropping any transcript
// it holds.
func (p *Push) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slot = nil
}

// Recognize waits for the next [Push.Deliver] or for ctx to be done. A
// transcript delivered since [Push.Arm] is returned immediately.
func (p *Push) Recognize(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.slot == nil {
		p.slot = make(chan string, 1)
	}
	ch := p.slot
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.slot == ch {
			p.slot = nil
		}
		p.mu.Unlock()
	}()

	select {
	case text := <-ch:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver hands transcript to the armed slot.
func (p *Push) Deliver(transcript string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot == nil {
		return ErrNotListening
	}
	select {
	case p.slot <- transcript:
		return nil
	default:
		// A transcript for this cycle is already queued.
		return ErrNotListening
	}
}

// Waiting reports whether a transcript would currently be accepted.
func (p *Push) Waiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slot != nil && len(p.slot) == 0
}
