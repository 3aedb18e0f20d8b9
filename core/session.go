package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultSessionTTL          = time.Minute
	defaultSessionRenewBefore  = 5 * time.Second
	defaultSessionFetchTimeout = 30 * time.Second
)

type SessionCacheConfig struct {
	// Key identifies the provider connection in shared stores and events.
	Key          string
	DefaultTTL   time.Duration
	RenewBefore  time.Duration
	FetchTimeout time.Duration
	Store        SessionStore
	Observer     SessionObserver
	Logger       Logger
	Now          func() time.Time
}

// SessionCache holds the current AuthSession for one provider connection.
// Concurrent callers that find it absent or expired share one fetch.
type SessionCache struct {
	key         string
	fetcher     CredentialFetcher
	memo        *Memo[AuthSession]
	generation  atomic.Uint64
	defaultTTL  time.Duration
	renewBefore time.Duration
	store       SessionStore
	observer    SessionObserver
	logger      Logger
	now         func() time.Time
	fetches     atomic.Int64
}

func NewSessionCache(fetcher CredentialFetcher, cfg SessionCacheConfig) (*SessionCache, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("core: credential fetcher is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultSessionTTL
	}
	if cfg.RenewBefore < 0 {
		cfg.RenewBefore = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultSessionFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = "default"
	}
	cache := &SessionCache{
		key:         key,
		fetcher:     fetcher,
		defaultTTL:  cfg.DefaultTTL,
		renewBefore: cfg.RenewBefore,
		store:       cfg.Store,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	cache.memo = NewMemo(cache.load,
		WithMemoClock(cfg.Now),
		WithMemoLoadTimeout(cfg.FetchTimeout),
	)
	return cache, nil
}

func (c *SessionCache) Key() string {
	if c == nil {
		return ""
	}
	return c.key
}

// Current returns a non-expired session, fetching one when needed.
func (c *SessionCache) Current(ctx context.Context) (AuthSession, error) {
	if c == nil {
		return AuthSession{}, authUnavailableError(fmt.Errorf("session cache is not configured"), nil)
	}
	return c.memo.Get(ctx)
}

// Invalidate drops the cached session if its generation still matches the one
// the caller saw fail. It reports whether anything was dropped.
func (c *SessionCache) Invalidate(ctx context.Context, generation uint64) bool {
	if c == nil || generation == 0 {
		return false
	}
	dropped := c.memo.ResetIf(func(current AuthSession) bool {
		return current.Generation == generation
	})
	if !dropped {
		return false
	}
	if c.store != nil {
		if err := c.store.Delete(ctx, c.key, generation); err != nil {
			c.warn(ctx, "session store delete failed", err)
		}
	}
	c.notify(ctx, SessionEvent{
		Kind:       SessionEventInvalidated,
		CacheKey:   c.key,
		Generation: generation,
		OccurredAt: c.now(),
	})
	return true
}

// Snapshot returns the cached session without fetching.
func (c *SessionCache) Snapshot() (AuthSession, bool) {
	if c == nil {
		return AuthSession{}, false
	}
	session, _, ok := c.memo.Peek()
	return session, ok
}

// Generation is the last generation handed out by a fetch.
func (c *SessionCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.generation.Load()
}

// Fetches counts underlying credential fetches, shared snapshots excluded.
func (c *SessionCache) Fetches() int64 {
	if c == nil {
		return 0
	}
	return c.fetches.Load()
}

func (c *SessionCache) Close() {
	if c == nil {
		return
	}
	c.memo.Reset()
}

func (c *SessionCache) load(ctx context.Context) (AuthSession, time.Time, error) {
	if session, ok := c.loadShared(ctx); ok {
		return session, c.renewAt(session), nil
	}

	c.fetches.Add(1)
	fetched, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.notify(ctx, SessionEvent{
			Kind:       SessionEventFailed,
			CacheKey:   c.key,
			Generation: c.generation.Load(),
			OccurredAt: c.now(),
			Err:        err,
		})
		return AuthSession{}, time.Time{}, authUnavailableError(err, map[string]any{"cache_key": c.key})
	}

	fetchedAt := c.now()
	expiresAt := fetched.ExpiresAt.UTC()
	if fetched.ExpiresAt.IsZero() {
		expiresAt = fetchedAt.Add(c.defaultTTL)
	}
	session := AuthSession{
		Credential: cloneCredential(fetched.Credential),
		ExpiresAt:  expiresAt,
		Generation: c.generation.Add(1),
		FetchedAt:  fetchedAt,
	}
	if c.store != nil {
		if err := c.store.Save(ctx, c.key, session); err != nil {
			c.warn(ctx, "session store save failed", err)
		}
	}
	c.notify(ctx, SessionEvent{
		Kind:       SessionEventRefreshed,
		CacheKey:   c.key,
		Generation: session.Generation,
		ExpiresAt:  session.ExpiresAt,
		OccurredAt: fetchedAt,
	})
	return session, c.renewAt(session), nil
}

func (c *SessionCache) loadShared(ctx context.Context) (AuthSession, bool) {
	if c.store == nil {
		return AuthSession{}, false
	}
	session, ok, err := c.store.Load(ctx, c.key)
	if err != nil {
		c.warn(ctx, "session store load failed", err)
		return AuthSession{}, false
	}
	if !ok || session.IsZero() || !c.now().Before(c.renewAt(session)) {
		return AuthSession{}, false
	}
	for {
		current := c.generation.Load()
		if session.Generation <= current {
			break
		}
		if c.generation.CompareAndSwap(current, session.Generation) {
			break
		}
	}
	return session, true
}

// renewAt is the instant after which the session is treated as expired.
func (c *SessionCache) renewAt(session AuthSession) time.Time {
	renewAt := session.ExpiresAt.Add(-c.renewBefore)
	if !renewAt.After(session.FetchedAt) {
		return session.ExpiresAt
	}
	return renewAt
}

func (c *SessionCache) notify(ctx context.Context, event SessionEvent) {
	if c.observer == nil {
		return
	}
	c.observer.OnSessionEvent(ctx, event)
}

func (c *SessionCache) warn(ctx context.Context, message string, err error) {
	if c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn(message, "cache_key", c.key, "error", err)
}

func cloneCredential(in Credential) Credential {
	out := in
	if len(in.Attributes) > 0 {
		out.Attributes = make(map[string]string, len(in.Attributes))
		for key, value := range in.Attributes {
			out.Attributes[key] = value
		}
	}
	return out
}
