package http

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	PluginCount int    `json:"pluginCount"`
	BudgetMs    int    `json:"budgetMs"`
}

// HealthChecker reports liveness along with the active plugin count and
// configured soft deadline, letting an operator confirm the running
// process loaded the configuration it was meant to.
type HealthChecker struct {
	pluginCount func() int
	budgetMs    int
	version     string
}

// NewHealthChecker builds a HealthChecker. pluginCount is called on every
// request rather than captured once, so a config hot-reload that swaps in
// a pipeline with a different plugin count is reflected immediately
// instead of only at process startup.
func NewHealthChecker(pluginCount func() int, budgetMs int, version string) *HealthChecker {
	return &HealthChecker{pluginCount: pluginCount, budgetMs: budgetMs, version: version}
}

// Check always reports "ok": the process has nothing to be unhealthy
// about once it has started — there is no persistent store or external
// dependency on the liveness path.
func (h *HealthChecker) Check() HealthResponse {
	return HealthResponse{
		Status:      "ok",
		Version:     h.version,
		PluginCount: h.pluginCount(),
		BudgetMs:    h.budgetMs,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(h.Check())
	})
}
