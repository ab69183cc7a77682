package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationIDMiddleware_EchoesHeader(t *testing.T) {
	t.Parallel()

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = CorrelationIDFromContext(r.Context())
	})

	mw := CorrelationIDMiddleware(slog.Default())(next)
	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	req.Header.Set(CorrelationIDHeader, "caller-supplied-id")

	mw.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "caller-supplied-id" {
		t.Errorf("correlation id = %q, want %q", gotID, "caller-supplied-id")
	}
}

func TestCorrelationIDMiddleware_EmptyWhenAbsent(t *testing.T) {
	t.Parallel()

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = CorrelationIDFromContext(r.Context())
	})

	mw := CorrelationIDMiddleware(slog.Default())(next)
	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)

	mw.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "" {
		t.Errorf("correlation id = %q, want \"\" when the caller sent none", gotID)
	}
}

func TestRequestIDMiddleware_GeneratesWhenAbsent(t *testing.T) {
	t.Parallel()

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	})

	mw := RequestIDMiddleware(slog.Default())(next)
	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, req)

	if gotID == "" {
		t.Error("request id = \"\", want a generated id when the caller sent none")
	}
	if w.Header().Get("X-Request-ID") != gotID {
		t.Errorf("X-Request-ID header = %q, want %q", w.Header().Get("X-Request-ID"), gotID)
	}
}

func TestRequestIDMiddleware_EchoesHeader(t *testing.T) {
	t.Parallel()

	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	})

	mw := RequestIDMiddleware(slog.Default())(next)
	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	req.Header.Set("X-Request-ID", "caller-request-id")

	mw.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "caller-request-id" {
		t.Errorf("request id = %q, want %q", gotID, "caller-request-id")
	}
}

func TestStrictAuthMiddleware_RejectsUnknownToken(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := StrictAuthMiddleware([]string{"good-token"})(next)

	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestStrictAuthMiddleware_AcceptsAllowedToken(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := StrictAuthMiddleware([]string{"good-token"})(next)

	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestStrictAuthMiddleware_EmptyAllowlistDisablesCheck(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := StrictAuthMiddleware(nil)(next)

	req := httptest.NewRequest(http.MethodPost, "/analyze-tool-execution", nil)
	w := httptest.NewRecorder()

	mw.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when no tokens are configured", w.Code, http.StatusOK)
	}
}
