// Package http provides the HTTP transport adapter that delivers a
// validated request to the evaluation core and translates its decision
// back into the outward wire contract.
//
// # Endpoints
//
//	POST /validate?api-version=2025-05-01                 - availability check
//	POST /analyze-tool-execution?api-version=2025-05-01    - evaluate a tool call
//	GET  /healthz                                          - liveness/readiness
//	GET  /metrics                                           - Prometheus exposition
//
// # Request headers
//
//	Authorization: Bearer <token>     - required when strict-auth is configured
//	x-ms-correlation-id: <id>         - echoed into the decision record and telemetry
//
// # Middleware chain
//
// Requests pass through, outermost first: CorrelationID, StrictAuth,
// body-size limiting (per request, inside the handler), then the handler
// itself, which builds the evaluation context and calls the evaluation
// service.
package http
