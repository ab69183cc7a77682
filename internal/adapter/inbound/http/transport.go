// Package http provides the HTTP transport adapter: the routing table,
// middleware chain, and server lifecycle that deliver requests into the
// evaluation core.
package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPTransport is the inbound adapter that exposes the evaluation
// service over HTTP.
type HTTPTransport struct {
	runner          EvaluationRunner
	server          *http.Server
	addr            string
	certFile        string
	keyFile         string
	logger          *slog.Logger
	maxRequestBytes int64
	allowedTokens   []string
	pluginCount     func() int
	budgetMs        int
	version         string
	metrics         *Metrics
	metricsReg      prometheus.Registerer
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) { t.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files. If
// unset, the server runs plain HTTP.
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// WithMaxRequestBytes caps the /analyze-tool-execution body size.
func WithMaxRequestBytes(n int64) Option {
	return func(t *HTTPTransport) { t.maxRequestBytes = n }
}

// WithStrictAuthTokens sets the bearer-token allowlist. An empty slice
// disables strict auth.
func WithStrictAuthTokens(tokens []string) Option {
	return func(t *HTTPTransport) { t.allowedTokens = tokens }
}

// WithHealthInfo sets the values /healthz reports. pluginCount is called
// on every /healthz request rather than captured once, so it stays
// accurate across a config hot-reload that changes the active pipeline.
func WithHealthInfo(pluginCount func() int, budgetMs int, version string) Option {
	return func(t *HTTPTransport) {
		t.pluginCount = pluginCount
		t.budgetMs = budgetMs
		t.version = version
	}
}

// WithMetrics wires a Metrics instance built ahead of time (see
// NewRegistry), letting the caller share it with the evaluation service
// before the transport starts serving.
func WithMetrics(reg prometheus.Registerer, metrics *Metrics) Option {
	return func(t *HTTPTransport) {
		t.metricsReg = reg
		t.metrics = metrics
	}
}

// NewHTTPTransport builds an HTTPTransport wrapping runner.
func NewHTTPTransport(runner EvaluationRunner, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		runner:          runner,
		addr:            "127.0.0.1:8080",
		logger:          slog.Default(),
		maxRequestBytes: 1 << 20,
		pluginCount:     func() int { return 0 },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetRunner assigns the evaluation service after construction, letting
// callers build the transport (for its metrics registry) before the
// service that depends on those same metrics exists yet.
func (t *HTTPTransport) SetRunner(runner EvaluationRunner) {
	t.runner = runner
}

// NewRegistry creates a Prometheus registry with the Go/process
// collectors and the full Sentra metrics set already registered,
// independent of a running HTTPTransport so the evaluation service can
// share the same *Metrics instance.
func NewRegistry(version string, schemaVersion uint32, sizer LogFileSizer) (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg, version, schemaVersion, sizer)
}

// Start begins accepting HTTP connections. It blocks until ctx is
// cancelled or the server returns an error other than ErrServerClosed.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := t.metricsReg
	if reg == nil {
		var metrics *Metrics
		reg, metrics = NewRegistry(t.version, 1, nil)
		t.metrics = metrics
	}

	evalHandler := NewEvaluationHandler(t.runner, t.maxRequestBytes)
	healthChecker := NewHealthChecker(t.pluginCount, t.budgetMs, t.version)
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	metricsHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	mux := NewMux(evalHandler, healthChecker, metricsHandler)

	var handler http.Handler = mux
	handler = StrictAuthMiddleware(t.allowedTokens)(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = CorrelationIDMiddleware(t.logger)(handler)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: handler,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
