package http

import (
	"context"
	"testing"
	"time"

	"github.com/sentra-security/sentra/internal/domain/decision"
)

func TestHTTPTransport_StartAndShutdown(t *testing.T) {
	t.Parallel()

	transport := NewHTTPTransport(stubRunner{resp: decision.AnalyzeResponse{BlockAction: false}},
		WithAddr("127.0.0.1:0"),
		WithHealthInfo(func() int { return 3 }, 900, "0.1.0"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- transport.Start(ctx) }()

	// Start listens asynchronously; give it a moment before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error = %v, want nil after a clean shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestHTTPTransport_SetRunner(t *testing.T) {
	t.Parallel()

	transport := NewHTTPTransport(nil)
	transport.SetRunner(stubRunner{})
	if transport.runner == nil {
		t.Error("SetRunner() did not assign the runner")
	}
}

func TestHTTPTransport_Close_NoopBeforeStart(t *testing.T) {
	t.Parallel()

	transport := NewHTTPTransport(stubRunner{})
	if err := transport.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil before Start was ever called", err)
	}
}

