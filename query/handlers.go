package query

import (
	"context"
	"sort"
	"strings"

	"github.com/goliatone/go-restbind/core"
	sqlstore "github.com/goliatone/go-restbind/store/sql"
)

type OperationReader interface {
	Describe(operationID string) (core.Operation, error)
	Operations() []core.Operation
}

type SessionStatusReader interface {
	SessionStatus() core.SessionStatus
}

type SessionEventReader interface {
	List(ctx context.Context, cacheKey string, limit int) ([]sqlstore.SessionEventEntry, error)
}

type DescribeOperationQuery struct {
	reader OperationReader
}

func NewDescribeOperationQuery(reader OperationReader) *DescribeOperationQuery {
	return &DescribeOperationQuery{reader: reader}
}

func (q *DescribeOperationQuery) Query(_ context.Context, msg DescribeOperationMessage) (core.Operation, error) {
	if q == nil || q.reader == nil {
		return core.Operation{}, queryDependencyError("query: operation reader is required")
	}
	return q.reader.Describe(strings.TrimSpace(msg.OperationID))
}

type ListOperationsQuery struct {
	reader OperationReader
}

func NewListOperationsQuery(reader OperationReader) *ListOperationsQuery {
	return &ListOperationsQuery{reader: reader}
}

// Query returns the registered operations sorted by id.
func (q *ListOperationsQuery) Query(_ context.Context, msg ListOperationsMessage) ([]core.Operation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: operation reader is required")
	}
	provider := strings.ToLower(strings.TrimSpace(msg.Provider))
	out := []core.Operation{}
	for _, op := range q.reader.Operations() {
		if provider != "" && strings.ToLower(op.Provider) != provider {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type SessionStatusQuery struct {
	reader SessionStatusReader
}

func NewSessionStatusQuery(reader SessionStatusReader) *SessionStatusQuery {
	return &SessionStatusQuery{reader: reader}
}

func (q *SessionStatusQuery) Query(_ context.Context, _ SessionStatusMessage) (core.SessionStatus, error) {
	if q == nil || q.reader == nil {
		return core.SessionStatus{}, queryDependencyError("query: session status reader is required")
	}
	return q.reader.SessionStatus(), nil
}

type ListSessionEventsQuery struct {
	reader SessionEventReader
}

func NewListSessionEventsQuery(reader SessionEventReader) *ListSessionEventsQuery {
	return &ListSessionEventsQuery{reader: reader}
}

func (q *ListSessionEventsQuery) Query(ctx context.Context, msg ListSessionEventsMessage) ([]sqlstore.SessionEventEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: session event reader is required")
	}
	if len(msg.Kinds) == 0 {
		return q.reader.List(ctx, msg.CacheKey, msg.Limit)
	}
	entries, err := q.reader.List(ctx, msg.CacheKey, 0)
	if err != nil {
		return nil, err
	}
	wanted := make(map[core.SessionEventKind]struct{}, len(msg.Kinds))
	for _, kind := range msg.Kinds {
		wanted[kind] = struct{}{}
	}
	out := []sqlstore.SessionEventEntry{}
	for _, entry := range entries {
		if _, ok := wanted[entry.Kind]; !ok {
			continue
		}
		out = append(out, entry)
		if msg.Limit > 0 && len(out) == msg.Limit {
			break
		}
	}
	return out, nil
}
