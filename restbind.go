package restbind

import (
	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/ratelimit"
	"github.com/goliatone/go-restbind/transport"
)

type Config = core.Config
type SessionConfig = core.SessionConfig
type RetryConfig = core.RetryConfig
type TransportConfig = core.TransportConfig
type RateLimitConfig = core.RateLimitConfig
type CacheBusterConfig = core.CacheBusterConfig

type Option = core.Option

type Engine = core.Engine
type Result = core.Result
type SessionStatus = core.SessionStatus

type Operation = core.Operation
type ParamBinding = core.ParamBinding
type ParamRole = core.ParamRole
type Args = core.Args

type Credential = core.Credential
type FetchedCredential = core.FetchedCredential
type AuthSession = core.AuthSession
type CredentialFetcher = core.CredentialFetcher
type CredentialAttacher = core.CredentialAttacher
type ErrorMessageParser = core.ErrorMessageParser
type ProviderMessage = core.ProviderMessage
type SessionStore = core.SessionStore
type SessionObserver = core.SessionObserver
type TransportAdapter = core.TransportAdapter
type PayloadEncoder = core.PayloadEncoder

const (
	ParamRolePath    = core.ParamRolePath
	ParamRoleQuery   = core.ParamRoleQuery
	ParamRoleHeader  = core.ParamRoleHeader
	ParamRolePayload = core.ParamRolePayload
)

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithTemplateStore       = core.WithTemplateStore
	WithOperations          = core.WithOperations
	WithEncoder             = core.WithEncoder
	WithTransport           = core.WithTransport
	WithCredentialFetcher   = core.WithCredentialFetcher
	WithCredentialAttacher  = core.WithCredentialAttacher
	WithErrorMessageParser  = core.WithErrorMessageParser
	WithRequestDecorator    = core.WithRequestDecorator
	WithSessionStore        = core.WithSessionStore
	WithSessionKey          = core.WithSessionKey
	WithSessionObserver     = core.WithSessionObserver
	WithClock               = core.WithClock
	WithSleep               = core.WithSleep
	StaticCredentialFetcher = core.StaticCredentialFetcher
	ClassificationOf        = core.ClassificationOf
	IsTextCode              = core.IsTextCode
	RedactSensitiveMap      = core.RedactSensitiveMap
	NewCfgxConfigProvider   = core.NewCfgxConfigProvider
	StaticConfigLoader      = core.StaticConfigLoader
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewEngine builds an engine whose transport defaults to the adapter named by
// cfg.Transport.Kind, wrapped in a rate limiter when
// cfg.Transport.RateLimit.Enabled is set. A WithTransport option overrides it.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	transportCfg := cfg.Transport
	if transportCfg.Kind == "" {
		transportCfg = core.DefaultConfig().Transport
	}
	adapter, err := transport.NewDefaultRegistry().BuildFromConfig(transportCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Transport.RateLimit.Enabled {
		adapter, err = ratelimit.NewTransport(adapter, nil, ratelimit.WithMaxWait(cfg.Transport.RateLimit.MaxWait))
		if err != nil {
			return nil, err
		}
	}
	options := append([]Option{core.WithTransport(adapter)}, opts...)
	return core.NewEngine(cfg, options...)
}

// Setup is NewEngine with raw configuration values, such as a decoded YAML
// file, layered between the defaults and cfg.
func Setup(cfg Config, raw map[string]any, opts ...Option) (*Engine, error) {
	options := append([]Option{
		core.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticConfigLoader(raw))),
	}, opts...)
	return NewEngine(cfg, options...)
}
