package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Result is the successful outcome of one logical call.
type Result struct {
	OperationID string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Attempts    int
	AuthRetried bool
	Generation  uint64
	Duration    time.Duration
}

type SessionStatus struct {
	CacheKey   string
	Cached     bool
	Generation uint64
	ExpiresAt  time.Time
	FetchedAt  time.Time
	Fetches    int64
}

// Engine wires the template store, binder, session cache, dispatcher,
// classifier and retry coordinator for one provider connection.
type Engine struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	templates       *TemplateStore
	sessions        *SessionCache
	dispatcher      *Dispatcher
	classifier      *Classifier
	retry           *RetryCoordinator
	observers       []SessionObserver
	now             func() time.Time
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("restbind", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("restbind"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.templates == nil {
		builder.templates = NewTemplateStore()
	}
	if builder.fetcher == nil {
		builder.fetcher = StaticCredentialFetcher(Credential{})
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	for name, encoder := range builder.encoders {
		if err := builder.templates.RegisterEncoder(name, encoder); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	for _, op := range builder.operations {
		if _, err := builder.templates.Register(op); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	engine := &Engine{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		templates:       builder.templates,
		observers:       append([]SessionObserver(nil), builder.observers...),
		now:             builder.now,
	}

	sessionKey := strings.TrimSpace(builder.sessionKey)
	if sessionKey == "" {
		sessionKey = finalConfig.ServiceName
	}
	engine.sessions, err = NewSessionCache(builder.fetcher, SessionCacheConfig{
		Key:          sessionKey,
		DefaultTTL:   finalConfig.Session.DefaultTTL,
		RenewBefore:  finalConfig.Session.RenewBefore,
		FetchTimeout: finalConfig.Session.FetchTimeout,
		Store:        builder.sessionStore,
		Observer:     engine,
		Logger:       logger,
		Now:          builder.now,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	decorators := append([]RequestDecorator(nil), builder.decorators...)
	if finalConfig.CacheBuster.Enabled {
		decorators = append(decorators, NewCacheBuster(finalConfig.CacheBuster.Param, finalConfig.CacheBuster.TTL, builder.now))
	}
	engine.dispatcher, err = NewDispatcher(builder.transport, builder.attacher, DispatcherConfig{
		BaseURL:              finalConfig.BaseURL,
		UserAgent:            finalConfig.UserAgent,
		Timeout:              finalConfig.Transport.Timeout,
		MaxResponseBodyBytes: finalConfig.Transport.MaxResponseBodyBytes,
		Decorators:           decorators,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	engine.classifier = NewClassifier(builder.parser)
	engine.retry = NewRetryCoordinator(
		engine.sessions,
		engine.dispatcher,
		engine.classifier,
		finalConfig.RetryPolicy(),
		WithRetrySleep(builder.sleep),
		WithRetryClock(builder.now),
	)
	return engine, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Templates() *TemplateStore {
	if e == nil {
		return nil
	}
	return e.templates
}

func (e *Engine) Sessions() *SessionCache {
	if e == nil {
		return nil
	}
	return e.sessions
}

// Execute resolves, binds and dispatches operationID with args, retrying per
// the engine's policy.
func (e *Engine) Execute(ctx context.Context, operationID string, args Args) (result Result, err error) {
	if e == nil {
		return Result{}, fmt.Errorf("core: engine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := e.now()
	fields := map[string]any{"operation_id": strings.TrimSpace(operationID)}
	defer func() {
		e.observeOperation(ctx, startedAt, "execute", err, fields)
	}()

	tmpl, err := e.templates.Resolve(TemplateID(operationID))
	if err != nil {
		return Result{}, err
	}
	if tmpl.Operation.Provider != "" {
		fields["provider"] = tmpl.Operation.Provider
	}
	req, err := Bind(ctx, tmpl, args)
	if err != nil {
		fields["args"] = RedactArgs(args)
		return Result{}, err
	}

	resp, state, err := e.retry.Run(ctx, req)
	if state != nil {
		fields["attempts"] = state.Attempts
		fields["auth_retried"] = state.AuthRetried
		if last, ok := state.Last(); ok {
			fields["classification"] = string(last.Kind)
			fields["status_code"] = last.StatusCode
		}
	}
	if err != nil {
		return Result{}, err
	}
	fields["status_code"] = resp.StatusCode

	return Result{
		OperationID: string(tmpl.ID),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		Body:        resp.Body,
		Attempts:    state.Attempts,
		AuthRetried: state.AuthRetried,
		Generation:  state.Generation,
		Duration:    e.now().Sub(startedAt),
	}, nil
}

// RegisterOperation adds op to the engine's template store.
func (e *Engine) RegisterOperation(ctx context.Context, op Operation) (id TemplateID, err error) {
	if e == nil {
		return "", fmt.Errorf("core: engine is nil")
	}
	startedAt := e.now()
	defer func() {
		e.observeOperation(ctx, startedAt, "register_operation", err, map[string]any{
			"operation_id": strings.TrimSpace(op.ID),
			"provider":     op.Provider,
		})
	}()
	return e.templates.Register(op)
}

func (e *Engine) Describe(operationID string) (Operation, error) {
	if e == nil {
		return Operation{}, fmt.Errorf("core: engine is nil")
	}
	tmpl, err := e.templates.Resolve(TemplateID(operationID))
	if err != nil {
		return Operation{}, err
	}
	return tmpl.Operation, nil
}

func (e *Engine) Operations() []Operation {
	if e == nil {
		return []Operation{}
	}
	templates := e.templates.List()
	out := make([]Operation, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, tmpl.Operation)
	}
	return out
}

// RefreshSession discards the cached session, if any, and fetches a new one.
func (e *Engine) RefreshSession(ctx context.Context) (session AuthSession, err error) {
	if e == nil {
		return AuthSession{}, fmt.Errorf("core: engine is nil")
	}
	startedAt := e.now()
	defer func() {
		e.observeOperation(ctx, startedAt, "session_refresh", err, map[string]any{
			"cache_key":  e.sessions.Key(),
			"generation": session.Generation,
		})
	}()
	if current, ok := e.sessions.Snapshot(); ok {
		e.sessions.Invalidate(ctx, current.Generation)
	}
	return e.sessions.Current(ctx)
}

// InvalidateSession drops the session when generation still matches. A zero
// generation targets whatever is cached.
func (e *Engine) InvalidateSession(ctx context.Context, generation uint64) (dropped bool, err error) {
	if e == nil {
		return false, fmt.Errorf("core: engine is nil")
	}
	startedAt := e.now()
	defer func() {
		e.observeOperation(ctx, startedAt, "session_invalidate", err, map[string]any{
			"cache_key":  e.sessions.Key(),
			"generation": generation,
			"dropped":    dropped,
		})
	}()
	if generation == 0 {
		current, ok := e.sessions.Snapshot()
		if !ok {
			return false, nil
		}
		generation = current.Generation
	}
	return e.sessions.Invalidate(ctx, generation), nil
}

func (e *Engine) SessionStatus() SessionStatus {
	if e == nil {
		return SessionStatus{}
	}
	status := SessionStatus{
		CacheKey:   e.sessions.Key(),
		Generation: e.sessions.Generation(),
		Fetches:    e.sessions.Fetches(),
	}
	if session, ok := e.sessions.Snapshot(); ok {
		status.Cached = true
		status.Generation = session.Generation
		status.ExpiresAt = session.ExpiresAt
		status.FetchedAt = session.FetchedAt
	}
	return status
}

// MapError normalizes err into the engine's error envelope.
func (e *Engine) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	mapper := defaultErrorMapper
	if e != nil && e.errorMapper != nil {
		mapper = e.errorMapper
	}
	return mapper(err)
}

// Close drops the cached session. The engine stays usable and fetches again
// on the next call.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.sessions.Close()
	return nil
}

// StaticCredentialFetcher returns cred on every fetch without expiry.
func StaticCredentialFetcher(cred Credential) CredentialFetcher {
	return CredentialFetcherFunc(func(context.Context) (FetchedCredential, error) {
		return FetchedCredential{Credential: cred}, nil
	})
}

var _ SessionObserver = (*Engine)(nil)
