package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/core"
)

const defaultBucket = "default"

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(req core.TransportRequest) Key

// HostKey buckets requests by upstream host.
func HostKey(req core.TransportRequest) Key {
	host := ""
	if parsed, err := url.Parse(req.URL); err == nil {
		host = parsed.Host
	}
	return Key{Provider: host, Bucket: defaultBucket}
}

// OperationKey buckets requests by host and operation id.
func OperationKey(req core.TransportRequest) Key {
	key := HostKey(req)
	if id, ok := req.Metadata["operation_id"].(string); ok && strings.TrimSpace(id) != "" {
		key.Bucket = id
	}
	return key
}

// Transport consults an AdaptivePolicy around every call of the wrapped
// adapter. A throttled bucket fails fast unless the remaining window fits in
// MaxWait, in which case the call waits it out first.
type Transport struct {
	next    core.TransportAdapter
	policy  *AdaptivePolicy
	keyFunc KeyFunc
	maxWait time.Duration
	logger  core.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

type TransportOption func(*Transport)

func WithKeyFunc(fn KeyFunc) TransportOption {
	return func(t *Transport) {
		if fn != nil {
			t.keyFunc = fn
		}
	}
}

func WithMaxWait(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.maxWait = d
		}
	}
}

func WithLogger(logger core.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) TransportOption {
	return func(t *Transport) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

func NewTransport(next core.TransportAdapter, policy *AdaptivePolicy, opts ...TransportOption) (*Transport, error) {
	if next == nil {
		return nil, fmt.Errorf("ratelimit: transport adapter is required")
	}
	if policy == nil {
		policy = NewAdaptivePolicy(NewMemoryStateStore())
	}
	t := &Transport{
		next:    next,
		policy:  policy,
		keyFunc: HostKey,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

func (t *Transport) Kind() string {
	return t.next.Kind()
}

func (t *Transport) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	key := t.keyFunc(req)
	if err := t.admit(ctx, key); err != nil {
		return core.TransportResponse{}, err
	}
	resp, err := t.next.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if afterErr := t.policy.AfterCall(ctx, key, resp.StatusCode, resp.Headers); afterErr != nil && t.logger != nil {
		t.logger.Warn("rate limit state update failed", "provider", key.Provider, "bucket", key.Bucket, "error", afterErr)
	}
	return resp, nil
}

func (t *Transport) admit(ctx context.Context, key Key) error {
	err := t.policy.BeforeCall(ctx, key)
	if err == nil {
		return nil
	}
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		return err
	}
	if t.maxWait <= 0 || throttled.RetryAfter > t.maxWait {
		if t.logger != nil {
			t.logger.Debug("rate limit bucket throttled", "provider", throttled.Key.Provider, "bucket", throttled.Key.Bucket, "retry_after_ms", throttled.RetryAfter.Milliseconds())
		}
		return throttled.ToError()
	}
	if err := t.sleep(ctx, throttled.RetryAfter); err != nil {
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.TransportAdapter = (*Transport)(nil)
