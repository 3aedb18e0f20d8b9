package core

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func newTestEngine(t *testing.T, transport *scriptedTransport, fetcher CredentialFetcher, opts ...Option) (*Engine, *captureMetricsRecorder, *captureLogger) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "https://compute.example.com/v2"
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	base := []Option{
		WithTransport(transport),
		WithCredentialFetcher(fetcher),
		WithCredentialAttacher(tokenHeaderAttacher),
		WithErrorMessageParser(phraseParser),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
		WithSleep(noSleep),
		WithOperations(Operation{
			ID:       "servers.get",
			Provider: "cloudservers",
			Method:   "GET",
			Path:     "/servers/{id}",
			Params:   []ParamBinding{{Name: "id", Role: ParamRolePath}},
		}),
	}
	engine, err := NewEngine(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, metrics, logger
}

func TestEngineExecute_HidesRecoveredAuthExpiry(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		statusResponse(http.StatusUnauthorized, "token expired"),
		statusResponse(http.StatusOK, `{"server":{"id":42}}`),
	}}
	fetcher := &countingFetcher{}
	engine, _, _ := newTestEngine(t, transport, fetcher)

	result, err := engine.Execute(context.Background(), "servers.get", Args{"id": 42})
	if err != nil {
		t.Fatalf("expected caller to see success, got %v", err)
	}
	if result.StatusCode != http.StatusOK || !result.AuthRetried || result.Attempts != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Generation != 2 {
		t.Fatalf("expected second session generation, got %d", result.Generation)
	}
	calls := transport.calls()
	if calls[1].URL != "https://compute.example.com/v2/servers/42" {
		t.Fatalf("unexpected url %q", calls[1].URL)
	}
}

func TestEngineExecute_UnknownOperationDoesNotDispatch(t *testing.T) {
	transport := &scriptedTransport{}
	fetcher := &countingFetcher{}
	engine, metrics, logger := newTestEngine(t, transport, fetcher)

	_, err := engine.Execute(context.Background(), "servers.delete", nil)
	if err == nil || !IsTextCode(err, TextCodeUnknownOperation) {
		t.Fatalf("expected unknown operation, got %v", err)
	}
	if len(transport.calls()) != 0 || fetcher.calls.Load() != 0 {
		t.Fatalf("expected no dispatch and no fetch")
	}
	if !hasCounter(metrics.counters, "restbind.execute.total", "failure") {
		t.Fatalf("expected restbind.execute.total failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "execute failed", "execute") {
		t.Fatalf("expected execute failed structured log")
	}
}

func TestEngineExecute_BindingErrorDoesNotDispatch(t *testing.T) {
	transport := &scriptedTransport{}
	engine, _, _ := newTestEngine(t, transport, &countingFetcher{})

	_, err := engine.Execute(context.Background(), "servers.get", Args{})
	if err == nil || !IsTextCode(err, TextCodeBindingError) {
		t.Fatalf("expected binding error, got %v", err)
	}
	if len(transport.calls()) != 0 {
		t.Fatalf("expected no dispatch for binding error")
	}
}

func TestEngineExecute_ObservesSuccess(t *testing.T) {
	transport := &scriptedTransport{}
	engine, metrics, logger := newTestEngine(t, transport, &countingFetcher{})

	if _, err := engine.Execute(context.Background(), "servers.get", Args{"id": "abc"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !hasCounter(metrics.counters, "restbind.execute.total", "success") {
		t.Fatalf("expected execute success counter")
	}
	if !hasHistogram(metrics.histograms, "restbind.execute.duration_ms", "success") {
		t.Fatalf("expected execute duration histogram")
	}
	if !hasLog(logger.snapshot(), "info", "execute succeeded", "execute") {
		t.Fatalf("expected execute succeeded structured log")
	}
	for _, counter := range metrics.counters {
		if counter.name == "restbind.execute.total" && counter.tags["provider"] != "cloudservers" {
			t.Fatalf("expected provider tag, got %+v", counter.tags)
		}
	}
}

func TestEngineExecute_EndpointFromCredential(t *testing.T) {
	transport := &scriptedTransport{}
	fetcher := CredentialFetcherFunc(func(context.Context) (FetchedCredential, error) {
		return FetchedCredential{Credential: Credential{Token: "t", Endpoint: "https://dfw.servers.example.com/v1.0/123"}}, nil
	})
	engine, err := NewEngine(DefaultConfig(),
		WithTransport(transport),
		WithCredentialFetcher(fetcher),
		WithOperations(Operation{ID: "servers.list", Path: "/servers"}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Execute(context.Background(), "servers.list", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := transport.calls()[0].URL; got != "https://dfw.servers.example.com/v1.0/123/servers" {
		t.Fatalf("expected discovered endpoint, got %q", got)
	}
}

func TestEngineExecute_CacheBusterOnGet(t *testing.T) {
	transport := &scriptedTransport{}
	clock := newManualClock(time.Unix(1700000000, 0).UTC())
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.example.com"
	cfg.CacheBuster.Enabled = true
	cfg.CacheBuster.Param = "now"
	engine, err := NewEngine(cfg,
		WithTransport(transport),
		WithClock(clock.Now),
		WithOperations(
			Operation{ID: "images.list", Path: "/images"},
			Operation{ID: "images.delete", Method: "DELETE", Path: "/images/{id}", Params: []ParamBinding{{Name: "id", Role: ParamRolePath}}},
		),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, _ = engine.Execute(context.Background(), "images.list", nil)
	_, _ = engine.Execute(context.Background(), "images.delete", Args{"id": 7})

	calls := transport.calls()
	if got := calls[0].Query.Get("now"); got != "1700000000" {
		t.Fatalf("expected cache buster timestamp, got %q", got)
	}
	if calls[1].Query.Has("now") {
		t.Fatalf("expected no cache buster on DELETE")
	}
}

func TestEngine_SessionLifecycle(t *testing.T) {
	transport := &scriptedTransport{}
	fetcher := &countingFetcher{}
	observer := &recordingObserver{}
	engine, metrics, _ := newTestEngine(t, transport, fetcher, WithSessionObserver(observer), WithSessionKey("dfw"))

	status := engine.SessionStatus()
	if status.Cached || status.CacheKey != "dfw" {
		t.Fatalf("expected empty session status for dfw, got %+v", status)
	}

	session, err := engine.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if session.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", session.Generation)
	}
	session, _ = engine.RefreshSession(context.Background())
	if session.Generation != 2 || fetcher.calls.Load() != 2 {
		t.Fatalf("expected forced refresh, got generation %d after %d fetches", session.Generation, fetcher.calls.Load())
	}

	dropped, err := engine.InvalidateSession(context.Background(), 1)
	if err != nil || dropped {
		t.Fatalf("expected stale generation to be ignored, got %v %v", dropped, err)
	}
	dropped, _ = engine.InvalidateSession(context.Background(), 0)
	if !dropped {
		t.Fatalf("expected current session to be invalidated")
	}
	if engine.SessionStatus().Cached {
		t.Fatalf("expected no cached session after invalidation")
	}

	kinds := observer.kinds()
	want := []SessionEventKind{SessionEventRefreshed, SessionEventInvalidated, SessionEventRefreshed, SessionEventInvalidated}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, kinds)
		}
	}
	if !hasCounter(metrics.counters, "restbind.session_refresh.total", "success") {
		t.Fatalf("expected session_refresh counter")
	}
}

func TestEngine_RegisterAndDescribe(t *testing.T) {
	engine, _, _ := newTestEngine(t, &scriptedTransport{}, &countingFetcher{})
	if _, err := engine.RegisterOperation(context.Background(), Operation{ID: "flavors.list", Path: "/flavors"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	op, err := engine.Describe("flavors.list")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if op.Method != http.MethodGet {
		t.Fatalf("expected default GET, got %q", op.Method)
	}
	ids := []string{}
	for _, item := range engine.Operations() {
		ids = append(ids, item.ID)
	}
	if strings.Join(ids, ",") != "flavors.list,servers.get" {
		t.Fatalf("unexpected operations %v", ids)
	}
}

func TestNewEngine_RequiresTransport(t *testing.T) {
	if _, err := NewEngine(DefaultConfig()); err == nil {
		t.Fatalf("expected missing transport to fail")
	}
}

func TestNewEngine_LoadsConfigThroughProvider(t *testing.T) {
	engine, err := NewEngine(Config{},
		WithTransport(&scriptedTransport{}),
		WithConfigProvider(NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
			"service_name": "rackspace",
			"base_url":     "https://api.example.com",
			"retry": map[string]any{
				"max_transient_retries": 5,
			},
		}})),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg := engine.Config()
	if cfg.ServiceName != "rackspace" || cfg.Retry.MaxTransientRetries != 5 {
		t.Fatalf("expected loaded config, got %+v", cfg)
	}
	if cfg.Session.DefaultTTL != time.Minute {
		t.Fatalf("expected default session ttl to survive, got %v", cfg.Session.DefaultTTL)
	}
}

func TestEngineExecute_EnvelopedTransportFailureKeepsClassification(t *testing.T) {
	timeout := func() error {
		err := goerrors.New("transport: execute http request", goerrors.CategoryExternal).
			WithTextCode("RESTBIND_TRANSPORT_UNREACHABLE")
		err.Source = context.DeadlineExceeded
		return err
	}
	transport := &scriptedTransport{errs: []error{timeout(), timeout(), timeout()}}
	engine, _, _ := newTestEngine(t, transport, &countingFetcher{})

	_, err := engine.Execute(context.Background(), "servers.get", Args{"id": 42})
	class, ok := ClassificationOf(err)
	if !ok || class.Kind != ClassificationTransient {
		t.Fatalf("expected transient classification, got %+v ok=%v err=%v", class, ok, err)
	}
	var opErr *OperationError
	if !goerrors.As(err, &opErr) || opErr.Attempts != 3 {
		t.Fatalf("expected 3 attempts on the operation error, got %+v", opErr)
	}
	if !IsTextCode(err, TextCodeTimeout) {
		t.Fatalf("expected timeout text code, got %v", err)
	}
}

type refreshDuringCallTransport struct {
	refresh func()
}

func (t *refreshDuringCallTransport) Kind() string { return "refresh-during-call" }

func (t *refreshDuringCallTransport) Do(context.Context, TransportRequest) (TransportResponse, error) {
	if t.refresh != nil {
		t.refresh()
	}
	return statusResponse(http.StatusOK, `{}`), nil
}

func TestEngineExecute_ReportsGenerationThatServedTheCall(t *testing.T) {
	transport := &refreshDuringCallTransport{}
	cfg := DefaultConfig()
	cfg.BaseURL = "https://compute.example.com/v2"
	engine, err := NewEngine(cfg,
		WithTransport(transport),
		WithCredentialFetcher(&countingFetcher{}),
		WithCredentialAttacher(tokenHeaderAttacher),
		WithSleep(noSleep),
		WithOperations(Operation{ID: "limits.get", Method: "GET", Path: "/limits"}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	transport.refresh = func() {
		if _, err := engine.RefreshSession(context.Background()); err != nil {
			t.Errorf("refresh during call: %v", err)
		}
	}

	result, err := engine.Execute(context.Background(), "limits.get", Args{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Generation != 1 {
		t.Fatalf("expected generation 1 that served the call, got %d", result.Generation)
	}
	if status := engine.SessionStatus(); status.Generation != 2 {
		t.Fatalf("expected cache to hold generation 2 after refresh, got %d", status.Generation)
	}
}
