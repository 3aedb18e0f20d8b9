package restbind

import (
	"fmt"

	restbindcommand "github.com/goliatone/go-restbind/command"
	restbindquery "github.com/goliatone/go-restbind/query"
)

// EngineService is the engine surface the facade commands and queries need.
// *core.Engine satisfies it.
type EngineService interface {
	restbindcommand.Engine
	restbindquery.OperationReader
	restbindquery.SessionStatusReader
}

type Commands struct {
	InvokeOperation   *restbindcommand.InvokeOperationCommand
	RegisterOperation *restbindcommand.RegisterOperationCommand
	RefreshSession    *restbindcommand.RefreshSessionCommand
	InvalidateSession *restbindcommand.InvalidateSessionCommand
}

type Queries struct {
	DescribeOperation *restbindquery.DescribeOperationQuery
	ListOperations    *restbindquery.ListOperationsQuery
	SessionStatus     *restbindquery.SessionStatusQuery
	ListSessionEvents *restbindquery.ListSessionEventsQuery
}

type Facade struct {
	engine   EngineService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sessionEvents restbindquery.SessionEventReader
}

// WithSessionEventReader backs the ListSessionEvents query, typically with a
// store/sql SessionEventStore.
func WithSessionEventReader(reader restbindquery.SessionEventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.sessionEvents = reader
	}
}

func NewFacade(engine EngineService, opts ...FacadeOption) (*Facade, error) {
	if engine == nil {
		return nil, fmt.Errorf("restbind: engine is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{engine: engine}
	facade.commands = Commands{
		InvokeOperation:   restbindcommand.NewInvokeOperationCommand(engine),
		RegisterOperation: restbindcommand.NewRegisterOperationCommand(engine),
		RefreshSession:    restbindcommand.NewRefreshSessionCommand(engine),
		InvalidateSession: restbindcommand.NewInvalidateSessionCommand(engine),
	}
	facade.queries = Queries{
		DescribeOperation: restbindquery.NewDescribeOperationQuery(engine),
		ListOperations:    restbindquery.NewListOperationsQuery(engine),
		SessionStatus:     restbindquery.NewSessionStatusQuery(engine),
		ListSessionEvents: restbindquery.NewListSessionEventsQuery(cfg.sessionEvents),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Engine() EngineService {
	if f == nil {
		return nil
	}
	return f.engine
}
