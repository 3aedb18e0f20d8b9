package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-restbind/core"
)

const testSessionKey = "SECRET-SESSION-KEY"

func TestEngineExecute_RESTTimeoutKeepsClassificationAndHidesQueryCredential(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	cfg := core.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Transport.Timeout = 20 * time.Millisecond
	engine, err := core.NewEngine(cfg,
		core.WithTransport(NewRESTAdapter(server.Client())),
		core.WithCredentialFetcher(core.StaticCredentialFetcher(core.Credential{Token: testSessionKey})),
		core.WithCredentialAttacher(core.CredentialAttacherFunc(func(_ context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
			req.Query.Set("sessionkey", cred.Token)
			return req, nil
		})),
		core.WithSleep(func(context.Context, time.Duration) error { return nil }),
		core.WithOperations(core.Operation{ID: "vm.list", Method: http.MethodGet, Path: "/client/api"}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	_, err = engine.Execute(context.Background(), "vm.list", core.Args{})
	if err == nil {
		t.Fatalf("expected timeout failure")
	}
	class, ok := core.ClassificationOf(err)
	if !ok || class.Kind != core.ClassificationTransient {
		t.Fatalf("expected transient classification, got %+v ok=%v err=%v", class, ok, err)
	}
	var opErr *core.OperationError
	if !errors.As(err, &opErr) || opErr.Attempts != 3 {
		t.Fatalf("expected operation error after 3 attempts, got %+v", opErr)
	}
	if !core.IsTextCode(err, core.TextCodeTimeout) {
		t.Fatalf("expected timeout text code, got %v", err)
	}
	if strings.Contains(err.Error(), testSessionKey) {
		t.Fatalf("expected session key to be redacted, got %q", err.Error())
	}
	var dispatchErr *core.DispatchError
	if !errors.As(err, &dispatchErr) || strings.Contains(dispatchErr.Error(), testSessionKey) {
		t.Fatalf("expected redacted dispatch error, got %v", dispatchErr)
	}
}

func TestRESTAdapter_ConnectErrorHidesQueryString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := server.URL
	server.Close()

	_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{
		Method: http.MethodGet,
		URL:    target + "/client/api?apiKey=AKIA&signature=SIGNED",
	})
	if err == nil {
		t.Fatalf("expected connect error")
	}
	for _, secret := range []string{"AKIA", "SIGNED"} {
		if strings.Contains(err.Error(), secret) {
			t.Fatalf("expected %q to be redacted, got %q", secret, err.Error())
		}
	}
}

func TestRedactedRawURL(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/x?token=abc": "https://api.example.com/x",
		"https://api.example.com/x#frag":      "https://api.example.com/x",
		" https://api.example.com/x ":         "https://api.example.com/x",
	}
	for input, expected := range cases {
		if got := redactedRawURL(input); got != expected {
			t.Fatalf("expected %q for %q, got %q", expected, input, got)
		}
	}
}
