package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-restbind/core"
	sqlstore "github.com/goliatone/go-restbind/store/sql"
)

var (
	_ gocmd.Querier[DescribeOperationMessage, core.Operation]               = (*DescribeOperationQuery)(nil)
	_ gocmd.Querier[ListOperationsMessage, []core.Operation]                = (*ListOperationsQuery)(nil)
	_ gocmd.Querier[SessionStatusMessage, core.SessionStatus]               = (*SessionStatusQuery)(nil)
	_ gocmd.Querier[ListSessionEventsMessage, []sqlstore.SessionEventEntry] = (*ListSessionEventsQuery)(nil)
	_ OperationReader                                                       = (*core.Engine)(nil)
	_ SessionStatusReader                                                   = (*core.Engine)(nil)
	_ SessionEventReader                                                    = (*sqlstore.SessionEventStore)(nil)
)
