package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type SessionConfig struct {
	DefaultTTL   time.Duration `koanf:"default_ttl" mapstructure:"default_ttl"`
	RenewBefore  time.Duration `koanf:"renew_before" mapstructure:"renew_before"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" mapstructure:"fetch_timeout"`
}

type RetryConfig struct {
	MaxTransientRetries int           `koanf:"max_transient_retries" mapstructure:"max_transient_retries"`
	InitialBackoff      time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type TransportConfig struct {
	Kind                 string          `koanf:"kind" mapstructure:"kind"`
	Timeout              time.Duration   `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBodyBytes int64           `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	RateLimit            RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig enables client side throttling from provider rate limit
// headers. MaxWait bounds how long a call waits for a window to reopen.
type RateLimitConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled"`
	MaxWait time.Duration `koanf:"max_wait" mapstructure:"max_wait"`
}

type CacheBusterConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled"`
	Param   string        `koanf:"param" mapstructure:"param"`
	TTL     time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	BaseURL     string            `koanf:"base_url" mapstructure:"base_url"`
	UserAgent   string            `koanf:"user_agent" mapstructure:"user_agent"`
	Session     SessionConfig     `koanf:"session" mapstructure:"session"`
	Retry       RetryConfig       `koanf:"retry" mapstructure:"retry"`
	Transport   TransportConfig   `koanf:"transport" mapstructure:"transport"`
	CacheBuster CacheBusterConfig `koanf:"cache_buster" mapstructure:"cache_buster"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "restbind",
		UserAgent:   "go-restbind",
		Session: SessionConfig{
			DefaultTTL:   defaultSessionTTL,
			RenewBefore:  defaultSessionRenewBefore,
			FetchTimeout: defaultSessionFetchTimeout,
		},
		Retry: RetryConfig{
			MaxTransientRetries: defaultMaxTransientRetries,
			InitialBackoff:      defaultRetryInitialBackoff,
			MaxBackoff:          defaultRetryMaxBackoff,
		},
		Transport: TransportConfig{
			Kind:    "rest",
			Timeout: 30 * time.Second,
		},
		CacheBuster: CacheBusterConfig{
			Param: defaultCacheBusterParam,
			TTL:   defaultCacheBusterTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: base_url %q must be an absolute url", base)
		}
	}
	if c.Session.DefaultTTL < 0 || c.Session.RenewBefore < 0 || c.Session.FetchTimeout < 0 {
		return fmt.Errorf("core: session durations must not be negative")
	}
	if c.Retry.MaxTransientRetries < 0 {
		return fmt.Errorf("core: retry.max_transient_retries must not be negative")
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("core: retry backoff must not be negative")
	}
	if c.Transport.Timeout < 0 || c.Transport.MaxResponseBodyBytes < 0 || c.Transport.RateLimit.MaxWait < 0 {
		return fmt.Errorf("core: transport limits must not be negative")
	}
	return nil
}

func (c Config) RetryPolicy() RetryPolicy {
	return normalizeRetryPolicy(RetryPolicy{
		MaxTransientRetries: c.Retry.MaxTransientRetries,
		InitialBackoff:      c.Retry.InitialBackoff,
		MaxBackoff:          c.Retry.MaxBackoff,
	})
}
