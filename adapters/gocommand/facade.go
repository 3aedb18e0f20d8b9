package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	restbind "github.com/goliatone/go-restbind"
	restbindcommand "github.com/goliatone/go-restbind/command"
	"github.com/goliatone/go-restbind/core"
	restbindquery "github.com/goliatone/go-restbind/query"
	sqlstore "github.com/goliatone/go-restbind/store/sql"
)

// RegisterFacade registers and subscribes every facade command and query so
// they can be reached through Dispatch and Query. On error the subscriptions
// created so far are removed.
func RegisterFacade(
	registry *Registry,
	facade *restbind.Facade,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return bindCommand[restbindcommand.InvokeOperationMessage](registry, commands.InvokeOperation, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindCommand[restbindcommand.RegisterOperationMessage](registry, commands.RegisterOperation, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindCommand[restbindcommand.RefreshSessionMessage](registry, commands.RefreshSession, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindCommand[restbindcommand.InvalidateSessionMessage](registry, commands.InvalidateSession, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindQuery[restbindquery.DescribeOperationMessage, core.Operation](registry, queries.DescribeOperation, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindQuery[restbindquery.ListOperationsMessage, []core.Operation](registry, queries.ListOperations, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindQuery[restbindquery.SessionStatusMessage, core.SessionStatus](registry, queries.SessionStatus, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return bindQuery[restbindquery.ListSessionEventsMessage, []sqlstore.SessionEventEntry](registry, queries.ListSessionEvents, runnerOpts...)
		},
	}
	subscriptions := make([]commanddispatcher.Subscription, 0, len(steps))
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			Unsubscribe(subscriptions)
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}

func Unsubscribe(subscriptions []commanddispatcher.Subscription) {
	for _, subscription := range subscriptions {
		unsubscribe(subscription)
	}
}
