package gocommand

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-command"
)

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "restbind.command.ping" }

type foreignMessage struct{}

func (foreignMessage) Type() string { return "billing.command.charge" }

type blankMessage struct{}

func (blankMessage) Type() string { return " " }

type echoMessage struct {
	Value string
}

func (echoMessage) Type() string { return "restbind.query.echo" }

func TestValidateMessageType(t *testing.T) {
	if err := ValidateMessageType(pingMessage{}); err != nil {
		t.Fatalf("expected restbind message to pass, got %v", err)
	}
	if err := ValidateMessageType(blankMessage{}); err == nil {
		t.Fatalf("expected blank type to fail")
	}
	err := ValidateMessageType(foreignMessage{})
	if err == nil || !strings.Contains(err.Error(), "billing.command.charge") {
		t.Fatalf("expected foreign namespace error, got %v", err)
	}
	if err := ValidateMessageType(nil); err == nil {
		t.Fatalf("expected nil message to fail")
	}
}

func TestBindCommand_DispatchesAndInitializesResolvers(t *testing.T) {
	registry := NewRegistry(command.NewRegistry())
	var received []string

	cmd := command.CommandFunc[pingMessage](func(_ context.Context, msg pingMessage) error {
		received = append(received, msg.ID)
		return nil
	})
	subscription, err := bindCommand[pingMessage](registry, cmd)
	if err != nil {
		t.Fatalf("bind command: %v", err)
	}
	defer unsubscribe(subscription)

	if err := registry.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(received) != 1 || received[0] != "m1" {
		t.Fatalf("expected one ping for m1, got %v", received)
	}
	if types := registry.Types(); len(types) != 1 || types[0] != "restbind.command.ping" {
		t.Fatalf("unexpected bound types %v", types)
	}
}

func TestBindCommand_RejectsDuplicateAndForeignTypes(t *testing.T) {
	registry := NewRegistry(nil)
	noop := command.CommandFunc[pingMessage](func(context.Context, pingMessage) error { return nil })

	subscription, err := bindCommand[pingMessage](registry, noop)
	if err != nil {
		t.Fatalf("bind command: %v", err)
	}
	defer unsubscribe(subscription)

	if _, err := bindCommand[pingMessage](registry, noop); err == nil {
		t.Fatalf("expected duplicate binding to fail")
	}
	foreign := command.CommandFunc[foreignMessage](func(context.Context, foreignMessage) error { return nil })
	if _, err := bindCommand[foreignMessage](registry, foreign); err == nil {
		t.Fatalf("expected foreign message type to be rejected")
	}
	if _, err := bindCommand[pingMessage](NewRegistry(nil), nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
}

func TestBindQuery_ReturnsHandlerResult(t *testing.T) {
	registry := NewRegistry(nil)
	qry := command.QueryFunc[echoMessage, string](func(_ context.Context, msg echoMessage) (string, error) {
		return strings.ToUpper(msg.Value), nil
	})
	subscription, err := bindQuery[echoMessage, string](registry, qry)
	if err != nil {
		t.Fatalf("bind query: %v", err)
	}
	defer unsubscribe(subscription)

	out, err := Query[echoMessage, string](context.Background(), echoMessage{Value: "glesys"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out != "GLESYS" {
		t.Fatalf("expected GLESYS, got %q", out)
	}
}

func TestDispatch_RejectsForeignMessage(t *testing.T) {
	if err := Dispatch(context.Background(), foreignMessage{}); err == nil {
		t.Fatalf("expected foreign message dispatch to fail")
	}
	if _, err := Query[foreignMessage, string](context.Background(), foreignMessage{}); err == nil {
		t.Fatalf("expected foreign message query to fail")
	}
}
