package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

func TestExternalHTTP_BlocksOnBlockField(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("server failed to decode request body: %v", err)
		}
		if body["tool"] != "send_email" {
			t.Errorf("templated tool = %v, want %q", body["tool"], "send_email")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"block": true}`))
	}))
	defer server.Close()

	p := NewExternalHTTP(ExternalDefinition{
		Name:            "external_audit",
		URL:             server.URL,
		RequestTemplate: `{"tool": ${toolNameJson}, "input": ${inputJson}}`,
		BlockField:      "block",
		ReasonCode:      801,
	})

	result := p.Evaluate(context.Background(), newTestContext(&evalctx.Request{
		ToolDefinition: evalctx.ToolDefinition{Name: "send_email"},
		InputValues:    map[string]interface{}{"body": "hello"},
	}, &evalctx.Matchers{}))
	if !result.Block || result.ReasonCode != 801 {
		t.Errorf("Evaluate() = %+v, want a block with reasonCode 801", result)
	}
}

func TestExternalHTTP_AllowField(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"allow": false}`))
	}))
	defer server.Close()

	p := NewExternalHTTP(ExternalDefinition{
		Name:            "external_audit",
		URL:             server.URL,
		RequestTemplate: `{}`,
		BlockField:      "allow",
	})

	result := p.Evaluate(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if !result.Block {
		t.Errorf("Evaluate() = %+v, want a block when allow=false", result)
	}
}

func TestExternalHTTP_FailOpenOnNetworkError(t *testing.T) {
	t.Parallel()

	p := NewExternalHTTP(ExternalDefinition{
		Name:            "external_audit",
		URL:             "http://127.0.0.1:0",
		RequestTemplate: `{}`,
		BlockField:      "block",
		FailOpen:        true,
		TimeoutMs:       50,
	})

	result := p.Evaluate(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if result.Block {
		t.Errorf("Evaluate() = %+v, want Allow when FailOpen is set and the call fails", result)
	}
}

func TestExternalHTTP_FailClosedOnNetworkError(t *testing.T) {
	t.Parallel()

	p := NewExternalHTTP(ExternalDefinition{
		Name:            "external_audit",
		URL:             "http://127.0.0.1:0",
		RequestTemplate: `{}`,
		BlockField:      "block",
		FailOpen:        false,
		TimeoutMs:       50,
		ReasonCode:      801,
	})

	result := p.Evaluate(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if !result.Block || result.ReasonCode != 801 {
		t.Errorf("Evaluate() = %+v, want a block when FailOpen is unset and the call fails", result)
	}
}

func TestExternalHTTP_JSONPointerBlockField(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"findings": ["ssn"]}}`))
	}))
	defer server.Close()

	p := NewExternalHTTP(ExternalDefinition{
		Name:                  "external_presidio",
		URL:                   server.URL,
		RequestTemplate:       `{}`,
		BlockField:            "/result/findings",
		NonEmptyPointerBlocks: true,
	})

	result := p.Evaluate(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if !result.Block {
		t.Errorf("Evaluate() = %+v, want a block for a non-empty findings array", result)
	}
}
