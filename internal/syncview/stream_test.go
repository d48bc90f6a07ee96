package syncview

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"

	"student-roster/internal/changefeed"
)

func TestValidateFeedResponse(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusOK, func(err error) bool { return err == nil }},
		{http.StatusServiceUnavailable, func(err error) bool { return errors.Is(err, ErrFeedDisabled) }},
		{http.StatusUnauthorized, func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
		}},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(""))}
		if err := validateFeedResponse(nil, resp); !tt.check(err) {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
	}
}

func TestSSEStream_Handle(t *testing.T) {
	s := &sseStream{
		events: make(chan changefeed.Event, 4),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
		cancel: func() {},
	}

	s.handle(&sse.Event{Event: []byte("ping"), Data: []byte("2026-01-01T00:00:00Z")})
	s.handle(&sse.Event{Event: []byte("ready"), Data: []byte("ok")})
	s.handle(&sse.Event{Event: []byte("ready"), Data: []byte("ok")})
	s.handle(&sse.Event{Event: []byte("delete"), Data: []byte(`{"type":"delete","id":4}`)})
	s.handle(&sse.Event{Event: []byte("update"), Data: []byte(`not json`)})

	select {
	case <-s.ready:
	default:
		t.Fatal("ready event should mark the stream ready")
	}
	if len(s.events) != 1 {
		t.Fatalf("expected 1 decoded event, got %d", len(s.events))
	}
	if ev := <-s.events; ev.Type != changefeed.EventDelete || ev.ID != 4 {
		t.Errorf("unexpected event %+v", ev)
	}

	// Close 后阻塞的投递立即放弃
	full := &sseStream{events: make(chan changefeed.Event), closed: make(chan struct{}), cancel: func() {}}
	full.Close()
	done := make(chan struct{})
	go func() {
		full.handle(&sse.Event{Event: []byte("resync"), Data: []byte(`{"type":"resync"}`)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle blocked after Close")
	}
}

func TestClient_SubscribeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient("http://127.0.0.1:1").Subscribe(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}
