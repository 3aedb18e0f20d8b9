package query

import (
	"strings"

	"github.com/goliatone/go-restbind/core"
)

const (
	TypeDescribeOperation = "restbind.query.operation.describe"
	TypeListOperations    = "restbind.query.operation.list"
	TypeSessionStatus     = "restbind.query.session.status"
	TypeListSessionEvents = "restbind.query.session.events"
)

type DescribeOperationMessage struct {
	OperationID string
}

func (DescribeOperationMessage) Type() string { return TypeDescribeOperation }

func (m DescribeOperationMessage) Validate() error {
	if strings.TrimSpace(m.OperationID) == "" {
		return queryValidationError("operation_id", "operation id is required")
	}
	return nil
}

// ListOperationsMessage filters by provider when Provider is set.
type ListOperationsMessage struct {
	Provider string
}

func (ListOperationsMessage) Type() string { return TypeListOperations }

func (ListOperationsMessage) Validate() error { return nil }

type SessionStatusMessage struct{}

func (SessionStatusMessage) Type() string { return TypeSessionStatus }

func (SessionStatusMessage) Validate() error { return nil }

type ListSessionEventsMessage struct {
	CacheKey string
	Limit    int
	Kinds    []core.SessionEventKind
}

func (ListSessionEventsMessage) Type() string { return TypeListSessionEvents }

func (m ListSessionEventsMessage) Validate() error {
	if strings.TrimSpace(m.CacheKey) == "" {
		return queryValidationError("cache_key", "session cache key is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
