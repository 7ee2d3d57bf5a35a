package feedback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func drain(c *client) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_ChannelPublishesInOrder(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, ok := h.add("rider-1")
	if !ok {
		t.Fatal("add rejected on open hub")
	}
	other, _ := h.add("rider-2")

	ch := h.Channel("rider-1", "ticket")
	ctx := context.Background()
	ch.Status(ctx, Status{State: "listening", Field: "ticket-order"})
	ch.Announce(ctx, "Listening for ticket order")
	ch.Vibrate(ctx, PulseSuccess)
	ch.Cue(ctx, StartCue)

	got := drain(c)
	want := []Event{
		{Kind: EventStatus, Surface: "ticket", Status: &Status{State: "listening", Field: "ticket-order"}},
		{Kind: EventAnnounce, Surface: "ticket", Text: "Listening for ticket order"},
		{Kind: EventVibrate, Surface: "ticket", Pattern: []int64{200}},
		{Kind: EventCue, Surface: "ticket", Tone: &Tone{FrequencyHz: 800, Duration: 100 * time.Millisecond}},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Event{}, "At")); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	for _, ev := range got {
		if ev.At.IsZero() {
			t.Error("event timestamp not set")
		}
	}
	if n := len(drain(other)); n != 0 {
		t.Errorf("other rider received %d events, want 0", n)
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	t.Parallel()

	h := NewHub(WithClientBuffer(2))
	c, _ := h.add("rider-1")

	for range 3 {
		h.Publish("rider-1", Event{Kind: EventAnnounce, Text: "x"})
	}

	if got := h.Clients("rider-1"); got != 0 {
		t.Errorf("Clients = %d, want 0 after overflow", got)
	}
	// Buffered events stay readable, then the channel reports closed.
	if n := len(drain(c)); n != 2 {
		t.Errorf("drained %d events, want 2", n)
	}
	if _, open := <-c.events; open {
		t.Error("events channel still open after disconnect")
	}
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, _ := h.add("rider-1")
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, open := <-c.events; open {
		t.Error("client not disconnected by Close")
	}
	if _, ok := h.add("rider-1"); ok {
		t.Error("add accepted after Close")
	}
	// Publishing after close is a no-op.
	h.Publish("rider-1", Event{Kind: EventAnnounce})
}

func TestHub_ServeWS(t *testing.T) {
	t.Parallel()

	h := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, "rider-1")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients("rider-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ch := h.Channel("rider-1", "global")
	ch.Announce(ctx, "Navigated to Alerts")
	ch.Vibrate(ctx, PulseReady)

	var first, second Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := wsjson.Read(ctx, conn, &second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if first.Kind != EventAnnounce || first.Text != "Navigated to Alerts" {
		t.Errorf("first = %+v, want announcement", first)
	}
	if second.Kind != EventVibrate || !cmp.Equal(second.Pattern, []int64{100}) {
		t.Errorf("second = %+v, want ready pulse", second)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for h.Clients("rider-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
