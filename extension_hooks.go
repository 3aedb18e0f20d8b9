package restbind

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-restbind/core"
)

// OperationPack is a named set of operation declarations contributed by a
// downstream module, for example the operations of a loaded catalog.
type OperationPack struct {
	Name       string
	Provider   string
	Operations []core.Operation
}

// EncoderPack contributes named payload encoders.
type EncoderPack struct {
	Name     string
	Encoders map[string]core.PayloadEncoder
}

type CommandQueryBundleFactory func(engine EngineService) (any, error)

type OperationRegistrar interface {
	RegisterOperation(ctx context.Context, op core.Operation) (core.TemplateID, error)
}

type EncoderRegistrar interface {
	RegisterEncoder(name string, encoder core.PayloadEncoder) error
}

type ExtensionHooks struct {
	mu sync.RWMutex

	operationPacks map[string]OperationPack
	encoderPacks   map[string]EncoderPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		operationPacks: map[string]OperationPack{},
		encoderPacks:   map[string]EncoderPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterOperationPack(pack OperationPack) error {
	if h == nil {
		return fmt.Errorf("restbind: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("restbind: operation pack name is required")
	}
	if len(pack.Operations) == 0 {
		return fmt.Errorf("restbind: operation pack %q has no operations", name)
	}

	provider := strings.TrimSpace(strings.ToLower(pack.Provider))
	normalized := OperationPack{
		Name:       name,
		Provider:   provider,
		Operations: make([]core.Operation, 0, len(pack.Operations)),
	}
	for _, op := range pack.Operations {
		if strings.TrimSpace(op.Provider) == "" {
			op.Provider = provider
		}
		normalized.Operations = append(normalized.Operations, op)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.operationPacks[name]; exists {
		return fmt.Errorf("restbind: operation pack %q already registered", name)
	}
	h.operationPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterEncoderPack(pack EncoderPack) error {
	if h == nil {
		return fmt.Errorf("restbind: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("restbind: encoder pack name is required")
	}
	if len(pack.Encoders) == 0 {
		return fmt.Errorf("restbind: encoder pack %q has no encoders", name)
	}
	encoders := make(map[string]core.PayloadEncoder, len(pack.Encoders))
	for encoderName, encoder := range pack.Encoders {
		if encoder == nil {
			return fmt.Errorf("restbind: encoder pack %q contains nil encoder %q", name, encoderName)
		}
		encoders[encoderName] = encoder
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.encoderPacks[name]; exists {
		return fmt.Errorf("restbind: encoder pack %q already registered", name)
	}
	h.encoderPacks[name] = EncoderPack{Name: name, Encoders: encoders}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("restbind: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("restbind: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("restbind: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("restbind: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyEncoderPacks registers every pack encoder, packs in name order. It must
// run before ApplyOperationPacks when operations reference pack encoders.
func (h *ExtensionHooks) ApplyEncoderPacks(registrar EncoderRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("restbind: encoder registrar is required")
	}
	for _, pack := range h.EncoderPacks() {
		names := make([]string, 0, len(pack.Encoders))
		for name := range pack.Encoders {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := registrar.RegisterEncoder(name, pack.Encoders[name]); err != nil {
				return fmt.Errorf("restbind: encoder pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

// ApplyOperationPacks registers the operations of every pack, packs in name
// order, and stops at the first rejected declaration.
func (h *ExtensionHooks) ApplyOperationPacks(ctx context.Context, registrar OperationRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("restbind: operation registrar is required")
	}
	for _, pack := range h.OperationPacks() {
		for _, op := range pack.Operations {
			if _, err := registrar.RegisterOperation(ctx, op); err != nil {
				return fmt.Errorf("restbind: operation pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(engine EngineService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if engine == nil {
		return nil, fmt.Errorf("restbind: engine is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](engine)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) OperationPacks() []OperationPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.operationPacks))
	for name := range h.operationPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]OperationPack, 0, len(names))
	for _, name := range names {
		pack := h.operationPacks[name]
		out = append(out, OperationPack{
			Name:       pack.Name,
			Provider:   pack.Provider,
			Operations: append([]core.Operation(nil), pack.Operations...),
		})
	}
	return out
}

func (h *ExtensionHooks) EncoderPacks() []EncoderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.encoderPacks))
	for name := range h.encoderPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EncoderPack, 0, len(names))
	for _, name := range names {
		pack := h.encoderPacks[name]
		encoders := make(map[string]core.PayloadEncoder, len(pack.Encoders))
		for key, value := range pack.Encoders {
			encoders[key] = value
		}
		out = append(out, EncoderPack{Name: pack.Name, Encoders: encoders})
	}
	return out
}

// Operations returns the pack operations for provider, all of them when
// provider is empty.
func (h *ExtensionHooks) Operations(provider string) []core.Operation {
	if h == nil {
		return nil
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	out := []core.Operation{}
	for _, pack := range h.OperationPacks() {
		for _, op := range pack.Operations {
			if provider != "" && strings.ToLower(op.Provider) != provider {
				continue
			}
			out = append(out, op)
		}
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
