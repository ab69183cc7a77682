package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sentra-security/sentra/internal/domain/decision"
	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// apiVersionParam is the required query parameter on /validate and
// /analyze-tool-execution. Its value is accepted and logged but never
// validated against a known set — unknown api-version values are
// forward-compatible by design.
const apiVersionParam = "api-version"

// analyzeRequestDoc is the wire shape /analyze-tool-execution decodes.
// The raw document is kept separately (see HandleAnalyze) so the
// external-HTTP plugin and the audit line can see fields this typed
// projection drops.
type analyzeRequestDoc struct {
	PlannerContext struct {
		UserMessage string                   `json:"userMessage"`
		ChatHistory []map[string]interface{} `json:"chatHistory"`
	} `json:"plannerContext"`
	ToolDefinition struct {
		Name string `json:"name"`
	} `json:"toolDefinition"`
	InputValues          map[string]interface{} `json:"inputValues"`
	ConversationMetadata map[string]interface{} `json:"conversationMetadata"`
}

// missingRequiredFields reports which required fields are absent or
// blank, per the Microsoft External Security Webhooks contract: both
// plannerContext.userMessage and toolDefinition.name are required,
// non-empty after trimming whitespace.
func (d *analyzeRequestDoc) missingRequiredFields() []string {
	var missing []string
	if strings.TrimSpace(d.PlannerContext.UserMessage) == "" {
		missing = append(missing, "plannerContext.userMessage")
	}
	if strings.TrimSpace(d.ToolDefinition.Name) == "" {
		missing = append(missing, "toolDefinition.name")
	}
	return missing
}

// EvaluationRunner is implemented by the application service that runs
// the plugin pipeline.
type EvaluationRunner interface {
	Evaluate(ctx context.Context, req *evalctx.Request, correlationID string) decision.AnalyzeResponse
}

// NewMux builds the full Sentra HTTP routing table.
func NewMux(eval *EvaluationHandler, healthChecker *HealthChecker, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate", eval.HandleValidate)
	mux.HandleFunc("/analyze-tool-execution", eval.HandleAnalyze)
	mux.Handle("/healthz", healthChecker.Handler())
	mux.Handle("/metrics", metricsHandler)
	return mux
}

// EvaluationHandler serves /validate and /analyze-tool-execution.
type EvaluationHandler struct {
	service         EvaluationRunner
	maxRequestBytes int64
}

// NewEvaluationHandler builds an EvaluationHandler.
func NewEvaluationHandler(service EvaluationRunner, maxRequestBytes int64) *EvaluationHandler {
	return &EvaluationHandler{service: service, maxRequestBytes: maxRequestBytes}
}

// HandleValidate answers the lightweight availability check.
func (h *EvaluationHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(apiVersionParam) == "" {
		writeErrorResponse(w, errMissingAPIVersion())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isSuccessful": true,
		"status":       "ok",
	})
}

// HandleAnalyze decodes, validates, and evaluates a tool-execution
// request, returning the outward AnalyzeResponse.
func (h *EvaluationHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(apiVersionParam) == "" {
		writeErrorResponse(w, errMissingAPIVersion())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeErrorResponse(w, errBodyTooLarge())
			return
		}
		writeErrorResponse(w, errMissingField("failed to read request body"))
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		writeErrorResponse(w, errMissingField("request body must be a JSON object"))
		return
	}

	var doc analyzeRequestDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		writeErrorResponse(w, errMissingField("request body does not match the expected shape"))
		return
	}

	if missing := doc.missingRequiredFields(); len(missing) > 0 {
		writeErrorResponse(w, errMissingField("missing or empty required field(s): "+strings.Join(missing, ", ")))
		return
	}

	req := &evalctx.Request{
		PlannerContext: evalctx.PlannerContext{
			UserMessage: doc.PlannerContext.UserMessage,
			ChatHistory: doc.PlannerContext.ChatHistory,
		},
		ToolDefinition:       evalctx.ToolDefinition{Name: doc.ToolDefinition.Name},
		InputValues:          doc.InputValues,
		ConversationMetadata: doc.ConversationMetadata,
		Raw:                  raw,
	}

	correlationID := CorrelationIDFromContext(r.Context())
	resp := h.service.Evaluate(r.Context(), req, correlationID)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, resp decision.ErrorResponse) {
	writeJSON(w, resp.HTTPStatus, resp)
}

func errMissingAPIVersion() decision.ErrorResponse {
	return decision.NewErrorResponse(decision.ErrMissingAPIVersion, "missing required api-version query parameter")
}

func errBodyTooLarge() decision.ErrorResponse {
	return decision.NewErrorResponse(decision.ErrBodyTooLarge, "request body exceeds the configured size limit")
}

func errMissingField(detail string) decision.ErrorResponse {
	return decision.NewErrorResponse(decision.ErrMissingField, detail)
}

func errUnauthorized() decision.ErrorResponse {
	return decision.NewErrorResponse(decision.ErrUnauthorized, "bearer token not in the configured allowlist")
}
