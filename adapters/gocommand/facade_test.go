package gocommand

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-command"
	restbind "github.com/goliatone/go-restbind"
	restbindcommand "github.com/goliatone/go-restbind/command"
	"github.com/goliatone/go-restbind/core"
	restbindquery "github.com/goliatone/go-restbind/query"
)

func TestRegisterFacade_RoutesCommandsAndQueries(t *testing.T) {
	engine := &facadeEngine{
		ops: map[string]core.Operation{
			"servers.list": {ID: "servers.list", Provider: "cloudservers", Method: "GET", Path: "/servers"},
			"server.list":  {ID: "server.list", Provider: "glesys", Method: "POST", Path: "/server/list"},
		},
	}
	facade, err := restbind.NewFacade(engine)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	registry := NewRegistry(command.NewRegistry())
	subscriptions, err := RegisterFacade(registry, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer Unsubscribe(subscriptions)
	if len(subscriptions) != 8 {
		t.Fatalf("expected 8 subscriptions, got %d", len(subscriptions))
	}

	ctx := context.Background()
	if err := Dispatch(ctx, restbindcommand.InvokeOperationMessage{
		OperationID: "servers.list",
		Args:        core.Args{"limit": 10},
	}); err != nil {
		t.Fatalf("dispatch invoke: %v", err)
	}
	if engine.executed != "servers.list" {
		t.Fatalf("expected engine execute for servers.list, got %q", engine.executed)
	}

	ops, err := Query[restbindquery.ListOperationsMessage, []core.Operation](ctx, restbindquery.ListOperationsMessage{Provider: "GleSYS"})
	if err != nil {
		t.Fatalf("query operations: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != "server.list" {
		t.Fatalf("expected glesys operation only, got %#v", ops)
	}

	status, err := Query[restbindquery.SessionStatusMessage, core.SessionStatus](ctx, restbindquery.SessionStatusMessage{})
	if err != nil {
		t.Fatalf("query session status: %v", err)
	}
	if status.Generation != 3 || status.CacheKey != "cloudservers:alice" {
		t.Fatalf("unexpected session status %#v", status)
	}
}

func TestRegisterFacade_RequiresFacade(t *testing.T) {
	if _, err := RegisterFacade(NewRegistry(nil), nil); err == nil {
		t.Fatalf("expected error for nil facade")
	}
}

func TestRegisterFacade_RejectsSecondBindingOnSameRegistry(t *testing.T) {
	facade, err := restbind.NewFacade(&facadeEngine{ops: map[string]core.Operation{}})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	registry := NewRegistry(nil)
	subscriptions, err := RegisterFacade(registry, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer Unsubscribe(subscriptions)
	if got := len(registry.Types()); got != 8 {
		t.Fatalf("expected 8 bound message types, got %d", got)
	}

	if _, err := RegisterFacade(registry, facade); err == nil {
		t.Fatalf("expected second registration on the same registry to fail")
	}
	if got := len(registry.Types()); got != 8 {
		t.Fatalf("expected bound types to be unchanged, got %d", got)
	}
}

type facadeEngine struct {
	ops      map[string]core.Operation
	executed string
}

func (e *facadeEngine) Execute(_ context.Context, operationID string, _ core.Args) (core.Result, error) {
	e.executed = operationID
	return core.Result{OperationID: operationID, StatusCode: 200}, nil
}

func (e *facadeEngine) RegisterOperation(_ context.Context, op core.Operation) (core.TemplateID, error) {
	e.ops[op.ID] = op
	return core.TemplateID(op.ID), nil
}

func (e *facadeEngine) RefreshSession(context.Context) (core.AuthSession, error) {
	return core.AuthSession{Generation: 4}, nil
}

func (e *facadeEngine) InvalidateSession(context.Context, uint64) (bool, error) {
	return true, nil
}

func (e *facadeEngine) Describe(operationID string) (core.Operation, error) {
	op, ok := e.ops[operationID]
	if !ok {
		return core.Operation{}, fmt.Errorf("unknown operation %q", operationID)
	}
	return op, nil
}

func (e *facadeEngine) Operations() []core.Operation {
	out := make([]core.Operation, 0, len(e.ops))
	for _, op := range e.ops {
		out = append(out, op)
	}
	return out
}

func (e *facadeEngine) SessionStatus() core.SessionStatus {
	return core.SessionStatus{CacheKey: "cloudservers:alice", Cached: true, Generation: 3}
}
