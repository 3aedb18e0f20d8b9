package sqlstore

import "github.com/goliatone/go-restbind/core"

var (
	_ OperationReader      = (*OperationStore)(nil)
	_ operationWriter      = (*OperationStore)(nil)
	_ sessionEventAppender = (*SessionEventStore)(nil)
	_ core.SessionObserver = (*SessionEventRecorder)(nil)
	_ operationRegistrar   = (*core.Engine)(nil)
)
