package command

import (
	"strings"

	"github.com/goliatone/go-restbind/core"
)

const (
	TypeInvokeOperation   = "restbind.command.operation.invoke"
	TypeRegisterOperation = "restbind.command.operation.register"
	TypeRefreshSession    = "restbind.command.session.refresh"
	TypeInvalidateSession = "restbind.command.session.invalidate"
)

type InvokeOperationMessage struct {
	OperationID string
	Args        core.Args
}

func (InvokeOperationMessage) Type() string { return TypeInvokeOperation }

func (m InvokeOperationMessage) Validate() error {
	if strings.TrimSpace(m.OperationID) == "" {
		return commandValidationError("operation_id", "operation id is required")
	}
	return nil
}

type RegisterOperationMessage struct {
	Operation core.Operation
}

func (RegisterOperationMessage) Type() string { return TypeRegisterOperation }

// Validate only checks the fields the template store cannot report by name;
// parameter rules are enforced on registration.
func (m RegisterOperationMessage) Validate() error {
	if strings.TrimSpace(m.Operation.ID) == "" {
		return commandValidationError("operation.id", "operation id is required")
	}
	if strings.TrimSpace(m.Operation.Path) == "" {
		return commandValidationError("operation.path", "operation path is required")
	}
	return nil
}

type RefreshSessionMessage struct {
	Reason string
}

func (RefreshSessionMessage) Type() string { return TypeRefreshSession }

func (RefreshSessionMessage) Validate() error { return nil }

type InvalidateSessionMessage struct {
	Generation uint64
	Reason     string
}

func (InvalidateSessionMessage) Type() string { return TypeInvalidateSession }

func (m InvalidateSessionMessage) Validate() error {
	if m.Generation == 0 {
		return commandValidationError("generation", "session generation is required")
	}
	return nil
}
