package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRelayRepublishesRemoteChanges(t *testing.T) {
	remote := NewBroker(8)
	defer remote.Close()
	stream := NewWebSocketHandler(remote, []string{ResourceBookings, ResourceUsers}, func(*http.Request) bool { return true })

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Stream-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if attempts.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		stream.ServeHTTP(w, r)
	}))
	defer server.Close()

	local := NewBroker(8)
	defer local.Close()
	received := make(chan Change, 4)
	sub, err := local.Subscribe([]string{ResourceBookings}, func(c Change) { received <- c })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	streamURL, err := WebSocketURL(server.URL, "/changes")
	if err != nil {
		t.Fatalf("stream url: %v", err)
	}
	relay := NewRelay(local, RelayConfig{
		URL:        streamURL,
		Header:     http.Header{"X-Stream-Key": []string{"secret"}},
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for remote.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("relay never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := attempts.Load(); got < 2 {
		t.Fatalf("expected a retry after the failed handshake, got %d attempts", got)
	}

	remote.Publish(Change{Resource: ResourceBookings, Event: EventUpdate, RecordID: "b-7"})
	if got := waitForChange(t, received); got.RecordID != "b-7" || got.Event != EventUpdate {
		t.Errorf("got %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}

	deadline = time.Now().Add(2 * time.Second)
	for remote.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("remote subscription not released after the relay stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://backend.internal:8080", want: "ws://backend.internal:8080/rpc/changes"},
		{base: "https://api.ablego.test/", want: "wss://api.ablego.test/rpc/changes"},
		{base: "https://api.ablego.test/admin?x=1", want: "wss://api.ablego.test/admin/rpc/changes"},
		{base: "ftp://api.ablego.test", wantErr: true},
		{base: "http://", wantErr: true},
	}

	for _, tt := range tests {
		got, err := WebSocketURL(tt.base, "/rpc/changes")
		if (err != nil) != tt.wantErr {
			t.Fatalf("WebSocketURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
