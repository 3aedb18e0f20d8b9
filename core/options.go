package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type engineBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	templates       *TemplateStore
	operations      []Operation
	encoders        map[string]PayloadEncoder
	transport       TransportAdapter
	fetcher         CredentialFetcher
	attacher        CredentialAttacher
	parser          ErrorMessageParser
	decorators      []RequestDecorator
	sessionStore    SessionStore
	sessionKey      string
	observers       []SessionObserver
	now             func() time.Time
	sleep           func(ctx context.Context, delay time.Duration) error
}

type Option func(*engineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *engineBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTemplateStore shares an existing store between engines.
func WithTemplateStore(store *TemplateStore) Option {
	return func(b *engineBuilder) {
		b.templates = store
	}
}

func WithOperations(operations ...Operation) Option {
	return func(b *engineBuilder) {
		b.operations = append(b.operations, operations...)
	}
}

func WithEncoder(name string, encoder PayloadEncoder) Option {
	return func(b *engineBuilder) {
		if b.encoders == nil {
			b.encoders = map[string]PayloadEncoder{}
		}
		b.encoders[name] = encoder
	}
}

func WithTransport(transport TransportAdapter) Option {
	return func(b *engineBuilder) {
		b.transport = transport
	}
}

func WithCredentialFetcher(fetcher CredentialFetcher) Option {
	return func(b *engineBuilder) {
		b.fetcher = fetcher
	}
}

func WithCredentialAttacher(attacher CredentialAttacher) Option {
	return func(b *engineBuilder) {
		b.attacher = attacher
	}
}

func WithErrorMessageParser(parser ErrorMessageParser) Option {
	return func(b *engineBuilder) {
		b.parser = parser
	}
}

func WithRequestDecorator(decorator RequestDecorator) Option {
	return func(b *engineBuilder) {
		b.decorators = append(b.decorators, decorator)
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *engineBuilder) {
		b.sessionStore = store
	}
}

// WithSessionKey names the provider connection in shared stores and events.
func WithSessionKey(key string) Option {
	return func(b *engineBuilder) {
		b.sessionKey = key
	}
}

func WithSessionObserver(observer SessionObserver) Option {
	return func(b *engineBuilder) {
		if observer != nil {
			b.observers = append(b.observers, observer)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *engineBuilder) {
		b.now = now
	}
}

func WithSleep(sleep func(ctx context.Context, delay time.Duration) error) Option {
	return func(b *engineBuilder) {
		b.sleep = sleep
	}
}

func defaultEngineBuilder(runtime Config) engineBuilder {
	loggerProvider, logger := glog.Resolve("restbind", nil, nil)
	return engineBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, typically decoded from a file.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}
	setSection := func(key string, section map[string]any) {
		if includeZero || len(section) > 0 {
			layer[key] = section
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "user_agent", cfg.UserAgent)

	session := map[string]any{}
	setDuration(session, "default_ttl", cfg.Session.DefaultTTL)
	setDuration(session, "renew_before", cfg.Session.RenewBefore)
	setDuration(session, "fetch_timeout", cfg.Session.FetchTimeout)
	setSection("session", session)

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxTransientRetries != 0 {
		retry["max_transient_retries"] = cfg.Retry.MaxTransientRetries
	}
	setDuration(retry, "initial_backoff", cfg.Retry.InitialBackoff)
	setDuration(retry, "max_backoff", cfg.Retry.MaxBackoff)
	setSection("retry", retry)

	transport := map[string]any{}
	setString(transport, "kind", cfg.Transport.Kind)
	setDuration(transport, "timeout", cfg.Transport.Timeout)
	if includeZero || cfg.Transport.MaxResponseBodyBytes != 0 {
		transport["max_response_body_bytes"] = cfg.Transport.MaxResponseBodyBytes
	}
	rateLimit := map[string]any{}
	if includeZero || cfg.Transport.RateLimit.Enabled {
		rateLimit["enabled"] = cfg.Transport.RateLimit.Enabled
	}
	setDuration(rateLimit, "max_wait", cfg.Transport.RateLimit.MaxWait)
	if includeZero || len(rateLimit) > 0 {
		transport["rate_limit"] = rateLimit
	}
	setSection("transport", transport)

	cacheBuster := map[string]any{}
	if includeZero || cfg.CacheBuster.Enabled {
		cacheBuster["enabled"] = cfg.CacheBuster.Enabled
	}
	setString(cacheBuster, "param", cfg.CacheBuster.Param)
	setDuration(cacheBuster, "ttl", cfg.CacheBuster.TTL)
	setSection("cache_buster", cacheBuster)
	return layer
}
