package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-restbind/core"
)

// Engine is the mutating surface of core.Engine used by the commands.
type Engine interface {
	Execute(ctx context.Context, operationID string, args core.Args) (core.Result, error)
	RegisterOperation(ctx context.Context, op core.Operation) (core.TemplateID, error)
	RefreshSession(ctx context.Context) (core.AuthSession, error)
	InvalidateSession(ctx context.Context, generation uint64) (bool, error)
}

// SessionRefreshResult describes a renewed session without its credential.
type SessionRefreshResult struct {
	Generation uint64
	ExpiresAt  time.Time
	FetchedAt  time.Time
}

type SessionInvalidationResult struct {
	Generation uint64
	Dropped    bool
}

type InvokeOperationCommand struct {
	engine Engine
}

func NewInvokeOperationCommand(engine Engine) *InvokeOperationCommand {
	return &InvokeOperationCommand{engine: engine}
}

func (c *InvokeOperationCommand) Execute(ctx context.Context, msg InvokeOperationMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: engine is required")
	}
	out, err := c.engine.Execute(ctx, msg.OperationID, msg.Args)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterOperationCommand struct {
	engine Engine
}

func NewRegisterOperationCommand(engine Engine) *RegisterOperationCommand {
	return &RegisterOperationCommand{engine: engine}
}

func (c *RegisterOperationCommand) Execute(ctx context.Context, msg RegisterOperationMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: engine is required")
	}
	id, err := c.engine.RegisterOperation(ctx, msg.Operation)
	if err != nil {
		return err
	}
	storeResult(ctx, id)
	return nil
}

type RefreshSessionCommand struct {
	engine Engine
}

func NewRefreshSessionCommand(engine Engine) *RefreshSessionCommand {
	return &RefreshSessionCommand{engine: engine}
}

func (c *RefreshSessionCommand) Execute(ctx context.Context, _ RefreshSessionMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: engine is required")
	}
	session, err := c.engine.RefreshSession(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, SessionRefreshResult{
		Generation: session.Generation,
		ExpiresAt:  session.ExpiresAt,
		FetchedAt:  session.FetchedAt,
	})
	return nil
}

type InvalidateSessionCommand struct {
	engine Engine
}

func NewInvalidateSessionCommand(engine Engine) *InvalidateSessionCommand {
	return &InvalidateSessionCommand{engine: engine}
}

func (c *InvalidateSessionCommand) Execute(ctx context.Context, msg InvalidateSessionMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: engine is required")
	}
	dropped, err := c.engine.InvalidateSession(ctx, msg.Generation)
	if err != nil {
		return err
	}
	storeResult(ctx, SessionInvalidationResult{Generation: msg.Generation, Dropped: dropped})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
