package gocommand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// MessageTypePrefix is shared by every restbind command and query type.
const MessageTypePrefix = "restbind."

// ValidateMessageType rejects messages outside the restbind namespace.
func ValidateMessageType(msg command.Message) error {
	if msg == nil {
		return fmt.Errorf("gocommand: message is required")
	}
	messageType := strings.TrimSpace(msg.Type())
	if messageType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(messageType, MessageTypePrefix) {
		return fmt.Errorf("gocommand: message type %q is outside the %q namespace", messageType, MessageTypePrefix)
	}
	return nil
}

// Registry records the restbind handlers registered on a go-command registry.
// Each message type may be bound once.
type Registry struct {
	registry *command.Registry

	mu    sync.Mutex
	types map[string]struct{}
}

func NewRegistry(registry *command.Registry) *Registry {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Registry{registry: registry, types: map[string]struct{}{}}
}

// Initialize runs the go-command resolvers over the registered handlers.
func (r *Registry) Initialize() error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return r.registry.Initialize()
}

// Types lists the bound message types in order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.types))
	for messageType := range r.types {
		out = append(out, messageType)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) claim(msg command.Message) (string, error) {
	if r == nil || r.registry == nil {
		return "", fmt.Errorf("gocommand: registry is not configured")
	}
	if err := ValidateMessageType(msg); err != nil {
		return "", err
	}
	messageType := strings.TrimSpace(msg.Type())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[messageType]; ok {
		return "", fmt.Errorf("gocommand: message type %q is already bound", messageType)
	}
	r.types[messageType] = struct{}{}
	return messageType, nil
}

func (r *Registry) release(messageType string) {
	r.mu.Lock()
	delete(r.types, messageType)
	r.mu.Unlock()
}

// Dispatch sends a restbind command to its subscribed handler.
func Dispatch[T command.Message](ctx context.Context, msg T) error {
	if err := ValidateMessageType(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query sends a restbind query to its subscribed handler.
func Query[T command.Message, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageType(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

func bindCommand[T command.Message](
	r *Registry,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command handler is required")
	}
	var msg T
	messageType, err := r.claim(msg)
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := r.registry.RegisterCommand(cmd); err != nil {
		unsubscribe(subscription)
		r.release(messageType)
		return nil, err
	}
	return subscription, nil
}

func bindQuery[T command.Message, R any](
	r *Registry,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query handler is required")
	}
	var msg T
	messageType, err := r.claim(msg)
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := r.registry.RegisterCommand(qry); err != nil {
		unsubscribe(subscription)
		r.release(messageType)
		return nil, err
	}
	return subscription, nil
}

func unsubscribe(subscription commanddispatcher.Subscription) {
	if subscription != nil {
		subscription.Unsubscribe()
	}
}
