package core

import (
	"context"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestEngineObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	engine, err := NewEngine(DefaultConfig(),
		WithTransport(&scriptedTransport{}),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	richErr := goerrors.New("provider timeout", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeTimeout).
		WithMetadata(map[string]any{
			"operation_id": "servers.list",
			"sessionkey":   "abc123",
			"api_key":      "k",
		})
	engine.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"execute",
		richErr,
		map[string]any{"operation_id": "servers.list", "provider": "cloudstack"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_text_code"] != TextCodeTimeout {
		t.Fatalf("expected error_text_code %q, got %#v", TextCodeTimeout, last.fields["error_text_code"])
	}
	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["sessionkey"] != RedactedValue || metadata["api_key"] != RedactedValue {
		t.Fatalf("expected credentials to be redacted, got %#v", metadata)
	}
	if metadata["operation_id"] != "servers.list" {
		t.Fatalf("expected operation_id to survive redaction, got %#v", metadata["operation_id"])
	}
	if !hasCounter(metrics.counters, "restbind.execute.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	for _, counter := range metrics.counters {
		if counter.tags["provider"] != "cloudstack" {
			t.Fatalf("expected provider tag, got %+v", counter.tags)
		}
	}
}

func TestEngineObservability_CancelledStatus(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	engine, err := NewEngine(DefaultConfig(), WithTransport(&scriptedTransport{}), WithMetricsRecorder(metrics))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.observeOperation(context.Background(), time.Now().UTC(), "Refresh Session", context.Canceled, nil)
	if !hasCounter(metrics.counters, "restbind.refresh_session.total", "cancelled") {
		t.Fatalf("expected normalized cancelled counter, got %+v", metrics.counters)
	}
}

func TestEngineObservability_BindingFailureLogsRedactedArgs(t *testing.T) {
	logger := newCaptureLogger()
	engine, err := NewEngine(DefaultConfig(),
		WithTransport(&scriptedTransport{}),
		WithLogger(logger),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithOperations(Operation{
			ID:     "login",
			Method: http.MethodPost,
			Path:   "/login",
			Params: []ParamBinding{
				{Name: "username", Role: ParamRolePayload},
				{Name: "password", Role: ParamRolePayload},
			},
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = engine.Execute(context.Background(), "login", Args{"username": "u", "password": "p", "extra": 1})
	if err == nil {
		t.Fatalf("expected undeclared argument to fail binding")
	}
	records := logger.snapshot()
	last := records[len(records)-1]
	args, ok := last.fields["args"].(map[string]any)
	if !ok {
		t.Fatalf("expected args in failure log, got %#v", last.fields)
	}
	if args["password"] != RedactedValue || args["username"] != "u" {
		t.Fatalf("unexpected redacted args %#v", args)
	}
}

func TestRedactSensitiveMap_Nested(t *testing.T) {
	out := RedactSensitiveMap(map[string]any{
		"nested": map[string]any{"Authorization": "Bearer x", "region": "dfw"},
		"list":   []any{map[string]any{"X-Auth-Token": "t"}},
	})
	nested := out["nested"].(map[string]any)
	if nested["Authorization"] != RedactedValue || nested["region"] != "dfw" {
		t.Fatalf("unexpected nested redaction %#v", nested)
	}
	item := out["list"].([]any)[0].(map[string]any)
	if item["X-Auth-Token"] != RedactedValue {
		t.Fatalf("expected token in list to be redacted, got %#v", item)
	}
}
