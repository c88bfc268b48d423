package api

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(hub *WebSocketHub) *client {
	return &client{
		hub:        hub,
		send:       make(chan []byte, 32),
		subscribed: make(map[string]bool),
	}
}

func TestHubBroadcastRespectsSubscriptions(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	lr := newTestClient(hub)
	lr.subscribed["living-room"] = true
	all := newTestClient(hub)
	all.subscribed["all"] = true
	other := newTestClient(hub)
	other.subscribed["bedroom"] = true
	for _, c := range []*client{lr, all, other} {
		hub.register <- c
	}
	// The register send completes before the hub finishes the map insert.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	hub.Broadcast(Event{Type: "operation", DeviceID: "living-room", Operation: "play"})

	for name, c := range map[string]*client{"direct": lr, "all": all} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Errorf("%s subscriber got no event", name)
		}
	}
	select {
	case <-other.send:
		t.Error("unsubscribed client received event")
	default:
	}
}

func TestClientDetachDoesNotBlockAfterShutdown(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cl := newTestClient(hub)
	hub.register <- cl

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// Shutdown already emptied the client set, so nothing drains unregister
	// anymore. Teardown still has to complete.
	detached := make(chan struct{})
	go func() {
		cl.detach()
		close(detached)
	}()
	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("client teardown blocked after hub shutdown")
	}
}
