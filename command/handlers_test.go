package command

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-restbind/core"
)

func TestInvokeOperationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	engine := stubEngine{
		executeFn: func(_ context.Context, operationID string, args core.Args) (core.Result, error) {
			called = true
			if operationID != "servers.get" || args["id"] != "42" {
				t.Fatalf("unexpected invocation %q %#v", operationID, args)
			}
			return core.Result{OperationID: operationID, StatusCode: http.StatusOK, Body: []byte(`{"server":{}}`)}, nil
		},
	}

	cmd := NewInvokeOperationCommand(engine)
	collector := gocmd.NewResult[core.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, InvokeOperationMessage{OperationID: "servers.get", Args: core.Args{"id": "42"}}); err != nil {
		t.Fatalf("execute invoke: %v", err)
	}
	if !called {
		t.Fatalf("expected engine invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.StatusCode != http.StatusOK || string(result.Body) != `{"server":{}}` {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestInvokeOperationCommand_PropagatesEngineErrors(t *testing.T) {
	engine := stubEngine{
		executeFn: func(context.Context, string, core.Args) (core.Result, error) {
			return core.Result{}, fmt.Errorf("boom")
		},
	}
	collector := gocmd.NewResult[core.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewInvokeOperationCommand(engine).Execute(ctx, InvokeOperationMessage{OperationID: "x"}); err == nil {
		t.Fatalf("expected engine error")
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no result on failure")
	}
}

func TestSessionCommands_DelegateToEngine(t *testing.T) {
	t.Run("register operation", func(t *testing.T) {
		engine := stubEngine{
			registerFn: func(_ context.Context, op core.Operation) (core.TemplateID, error) {
				return core.TemplateID(op.ID), nil
			},
		}
		collector := gocmd.NewResult[core.TemplateID]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		msg := RegisterOperationMessage{Operation: core.Operation{ID: "limits.get", Path: "/limits"}}
		if err := NewRegisterOperationCommand(engine).Execute(ctx, msg); err != nil {
			t.Fatalf("execute register: %v", err)
		}
		id, ok := collector.Load()
		if !ok || id != "limits.get" {
			t.Fatalf("expected stored template id, got %q", id)
		}
	})

	t.Run("refresh session", func(t *testing.T) {
		expires := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
		engine := stubEngine{
			refreshFn: func(context.Context) (core.AuthSession, error) {
				return core.AuthSession{
					Credential: core.Credential{Token: "secret-token"},
					Generation: 4,
					ExpiresAt:  expires,
				}, nil
			},
		}
		collector := gocmd.NewResult[SessionRefreshResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRefreshSessionCommand(engine).Execute(ctx, RefreshSessionMessage{Reason: "manual"}); err != nil {
			t.Fatalf("execute refresh: %v", err)
		}
		result, ok := collector.Load()
		if !ok || result.Generation != 4 || !result.ExpiresAt.Equal(expires) {
			t.Fatalf("unexpected refresh result %#v", result)
		}
	})

	t.Run("invalidate session", func(t *testing.T) {
		engine := stubEngine{
			invalidateFn: func(_ context.Context, generation uint64) (bool, error) {
				return generation == 2, nil
			},
		}
		collector := gocmd.NewResult[SessionInvalidationResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewInvalidateSessionCommand(engine).Execute(ctx, InvalidateSessionMessage{Generation: 2}); err != nil {
			t.Fatalf("execute invalidate: %v", err)
		}
		result, ok := collector.Load()
		if !ok || !result.Dropped || result.Generation != 2 {
			t.Fatalf("unexpected invalidation result %#v", result)
		}
	})
}

func TestMessages_Validate(t *testing.T) {
	if err := (RegisterOperationMessage{Operation: core.Operation{ID: "x"}}).Validate(); err == nil {
		t.Fatalf("expected missing path error")
	}
	if err := (InvalidateSessionMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing generation error")
	}
	if err := (RefreshSessionMessage{}).Validate(); err != nil {
		t.Fatalf("expected refresh message to be valid, got %v", err)
	}
	if (InvokeOperationMessage{}).Type() != TypeInvokeOperation {
		t.Fatalf("unexpected message type")
	}
}

func TestInvokeOperationCommand_AgainstEngine(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.BaseURL = "https://api.example.com"
	engine, err := core.NewEngine(cfg,
		core.WithTransport(statusTransport{status: http.StatusAccepted}),
		core.WithOperations(core.Operation{
			ID:     "servers.reboot",
			Method: http.MethodPost,
			Path:   "/servers/{id}/action",
			Params: []core.ParamBinding{
				{Name: "id", Role: core.ParamRolePath, Required: true},
				{Name: "type", Role: core.ParamRolePayload, Required: true},
			},
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	collector := gocmd.NewResult[core.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err = NewInvokeOperationCommand(engine).Execute(ctx, InvokeOperationMessage{
		OperationID: "servers.reboot",
		Args:        core.Args{"id": "42", "type": "SOFT"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected result %#v", result)
	}

	err = NewInvokeOperationCommand(engine).Execute(context.Background(), InvokeOperationMessage{OperationID: "servers.reboot"})
	if !core.IsTextCode(err, core.TextCodeBindingError) {
		t.Fatalf("expected binding error for missing args, got %v", err)
	}
}

type statusTransport struct {
	status int
}

func (statusTransport) Kind() string { return "status" }

func (t statusTransport) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: t.status, Headers: http.Header{}}, nil
}

type stubEngine struct {
	executeFn    func(context.Context, string, core.Args) (core.Result, error)
	registerFn   func(context.Context, core.Operation) (core.TemplateID, error)
	refreshFn    func(context.Context) (core.AuthSession, error)
	invalidateFn func(context.Context, uint64) (bool, error)
}

func (s stubEngine) Execute(ctx context.Context, operationID string, args core.Args) (core.Result, error) {
	if s.executeFn == nil {
		return core.Result{}, nil
	}
	return s.executeFn(ctx, operationID, args)
}

func (s stubEngine) RegisterOperation(ctx context.Context, op core.Operation) (core.TemplateID, error) {
	if s.registerFn == nil {
		return "", nil
	}
	return s.registerFn(ctx, op)
}

func (s stubEngine) RefreshSession(ctx context.Context) (core.AuthSession, error) {
	if s.refreshFn == nil {
		return core.AuthSession{}, nil
	}
	return s.refreshFn(ctx)
}

func (s stubEngine) InvalidateSession(ctx context.Context, generation uint64) (bool, error) {
	if s.invalidateFn == nil {
		return false, nil
	}
	return s.invalidateFn(ctx, generation)
}
