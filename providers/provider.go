package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/transport"
)

// Definition is everything a provider contributes to an engine.
type Definition struct {
	ID         string
	Operations []core.Operation
	Parser     core.ErrorMessageParser
	Attacher   core.CredentialAttacher
	Fetcher    core.CredentialFetcher
	Encoders   map[string]core.PayloadEncoder
	Decorators []core.RequestDecorator
}

// NewEngine builds an engine for def. The REST transport is built from
// cfg.Transport unless opts supply one; opts are applied last so callers can
// override any provider default.
func NewEngine(def Definition, cfg core.Config, opts ...core.Option) (*core.Engine, error) {
	id := strings.TrimSpace(strings.ToLower(def.ID))
	if id == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = id
	}

	adapter, err := transport.NewDefaultRegistry().BuildFromConfig(cfg.Transport)
	if err != nil {
		return nil, err
	}
	base := []core.Option{
		core.WithTransport(adapter),
		core.WithOperations(StampProvider(id, def.Operations)...),
	}
	if def.Parser != nil {
		base = append(base, core.WithErrorMessageParser(def.Parser))
	}
	if def.Attacher != nil {
		base = append(base, core.WithCredentialAttacher(def.Attacher))
	}
	if def.Fetcher != nil {
		base = append(base, core.WithCredentialFetcher(def.Fetcher))
	}
	names := make([]string, 0, len(def.Encoders))
	for name := range def.Encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		base = append(base, core.WithEncoder(name, def.Encoders[name]))
	}
	for _, decorator := range def.Decorators {
		base = append(base, core.WithRequestDecorator(decorator))
	}
	return core.NewEngine(cfg, append(base, opts...)...)
}

// StampProvider returns copies of ops tagged with provider id.
func StampProvider(id string, ops []core.Operation) []core.Operation {
	out := make([]core.Operation, 0, len(ops))
	for _, op := range ops {
		if strings.TrimSpace(op.Provider) == "" {
			op.Provider = id
		}
		out = append(out, op)
	}
	return out
}
