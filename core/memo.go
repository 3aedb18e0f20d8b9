package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo caches one value for a TTL and collapses concurrent loads into a
// single call. A failed load leaves the memo empty.
type Memo[T any] struct {
	mu        sync.Mutex
	group     singleflight.Group
	load      func(ctx context.Context) (T, time.Time, error)
	value     T
	expiresAt time.Time
	present   bool
	version   uint64
	now       func() time.Time
	timeout   time.Duration
}

type MemoOption func(*memoOptions)

type memoOptions struct {
	now     func() time.Time
	timeout time.Duration
}

// WithMemoClock overrides the clock used to evaluate expiry.
func WithMemoClock(now func() time.Time) MemoOption {
	return func(o *memoOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMemoLoadTimeout bounds each shared load independently of waiter contexts.
func WithMemoLoadTimeout(timeout time.Duration) MemoOption {
	return func(o *memoOptions) {
		o.timeout = timeout
	}
}

// NewMemo builds a memo whose loader reports its own expiry instant.
func NewMemo[T any](load func(ctx context.Context) (T, time.Time, error), opts ...MemoOption) *Memo[T] {
	cfg := memoOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Memo[T]{load: load, now: cfg.now, timeout: cfg.timeout}
}

// NewTTLMemo builds a memo that keeps every loaded value for a fixed ttl.
func NewTTLMemo[T any](ttl time.Duration, load func(ctx context.Context) (T, error), opts ...MemoOption) *Memo[T] {
	var memo *Memo[T]
	memo = NewMemo(func(ctx context.Context) (T, time.Time, error) {
		value, err := load(ctx)
		if err != nil {
			return value, time.Time{}, err
		}
		return value, memo.now().Add(ttl), nil
	}, opts...)
	return memo
}

// Peek returns the cached value without loading.
func (m *Memo[T]) Peek() (T, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present || !m.now().Before(m.expiresAt) {
		var zero T
		return zero, time.Time{}, false
	}
	return m.value, m.expiresAt, true
}

// Get returns the cached value or joins the in-flight load. Cancelling ctx
// abandons the wait without cancelling the shared load.
func (m *Memo[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if m == nil || m.load == nil {
		return zero, fmt.Errorf("core: memo loader is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if value, _, ok := m.Peek(); ok {
		return value, nil
	}

	ch := m.group.DoChan("load", func() (any, error) {
		m.mu.Lock()
		if m.present && m.now().Before(m.expiresAt) {
			value := m.value
			m.mu.Unlock()
			return value, nil
		}
		startVersion := m.version
		m.mu.Unlock()

		loadCtx := context.WithoutCancel(ctx)
		cancel := func() {}
		if m.timeout > 0 {
			loadCtx, cancel = context.WithTimeout(loadCtx, m.timeout)
		}
		defer cancel()

		value, expiresAt, err := m.load(loadCtx)
		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			if m.version == startVersion {
				m.clearLocked(false)
			}
			return zero, err
		}
		if m.version == startVersion {
			m.value = value
			m.expiresAt = expiresAt
			m.present = true
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Reset drops the cached value. A load already in flight still completes for
// its waiters but is not cached.
func (m *Memo[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(true)
}

// ResetIf drops the cached value only when match reports true for it. Unlike
// Reset it leaves an in-flight load free to populate the memo.
func (m *Memo[T]) ResetIf(match func(T) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present || match == nil || !match(m.value) {
		return false
	}
	m.clearLocked(false)
	return true
}

// Store seeds the memo with a value loaded elsewhere.
func (m *Memo[T]) Store(value T, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	m.expiresAt = expiresAt
	m.present = true
	m.version++
}

func (m *Memo[T]) clearLocked(discardInFlight bool) {
	var zero T
	m.value = zero
	m.expiresAt = time.Time{}
	m.present = false
	if discardInFlight {
		m.version++
	}
}
