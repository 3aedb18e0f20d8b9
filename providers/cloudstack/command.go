package cloudstack

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

// CommandDecorator adds the command and response=json query parameters.
// It runs before the credential attacher so both are covered by the
// request signature.
type CommandDecorator struct {
	commands map[string]string
}

func NewCommandDecorator(ops []core.Operation) *CommandDecorator {
	commands := make(map[string]string, len(ops))
	for _, op := range ops {
		if name, ok := op.Metadata[MetadataCommand].(string); ok && strings.TrimSpace(name) != "" {
			commands[strings.TrimSpace(op.ID)] = strings.TrimSpace(name)
		}
	}
	return &CommandDecorator{commands: commands}
}

func (d *CommandDecorator) Decorate(_ context.Context, req core.BoundRequest) (core.BoundRequest, error) {
	if req.Query == nil {
		req.Query = url.Values{}
	}
	if !req.Query.Has(MetadataCommand) {
		name, ok := d.commands[req.OperationID]
		if !ok {
			return req, fmt.Errorf("cloudstack: operation %q has no command", req.OperationID)
		}
		req.Query.Set(MetadataCommand, name)
	}
	req.Query.Set("response", "json")
	return req, nil
}

var _ core.RequestDecorator = (*CommandDecorator)(nil)
