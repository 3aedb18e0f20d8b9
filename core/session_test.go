package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSessionCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	fetcher := &countingFetcher{release: make(chan struct{})}
	cache, err := NewSessionCache(fetcher, SessionCacheConfig{Key: "conn"})
	if err != nil {
		t.Fatalf("new session cache: %v", err)
	}

	const callers = 32
	var wg sync.WaitGroup
	sessions := make([]AuthSession, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = cache.Current(context.Background())
		}(i)
	}
	for fetcher.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if sessions[i].Credential.Token != "token-1" || sessions[i].Generation != 1 {
			t.Fatalf("caller %d observed %+v", i, sessions[i])
		}
	}
}

func TestSessionCache_RefreshesOnceAfterExpiry(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newManualClock(expiry.Add(-time.Minute))
	fetcher := &countingFetcher{expiresAt: func() time.Time { return expiry }}
	cache, err := NewSessionCache(fetcher, SessionCacheConfig{Now: clock.Now})
	if err != nil {
		t.Fatalf("new session cache: %v", err)
	}

	first, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("first current: %v", err)
	}
	if _, err := cache.Current(context.Background()); err != nil {
		t.Fatalf("cached current: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected cached session to be reused")
	}

	clock.Set(expiry.Add(time.Second))
	fetcher.expiresAt = func() time.Time { return expiry.Add(time.Hour) }
	second, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("current after expiry: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Fatalf("expected exactly one refresh after expiry, got %d fetches", fetcher.calls.Load())
	}
	if second.Generation != first.Generation+1 {
		t.Fatalf("expected generation to advance, got %d then %d", first.Generation, second.Generation)
	}
	if second.Credential.Token != "token-2" {
		t.Fatalf("expected refreshed credential, got %q", second.Credential.Token)
	}
}

func TestSessionCache_DefaultTTLWhenProviderOmitsExpiry(t *testing.T) {
	clock := newManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fetcher := &countingFetcher{}
	cache, _ := NewSessionCache(fetcher, SessionCacheConfig{
		DefaultTTL:  10 * time.Second,
		RenewBefore: 2 * time.Second,
		Now:         clock.Now,
	})

	session, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !session.ExpiresAt.Equal(clock.Now().Add(10 * time.Second)) {
		t.Fatalf("expected default ttl expiry, got %s", session.ExpiresAt)
	}

	clock.Advance(7 * time.Second)
	_, _ = cache.Current(context.Background())
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected session to be reused before the renewal window")
	}
	clock.Advance(2 * time.Second)
	_, _ = cache.Current(context.Background())
	if fetcher.calls.Load() != 2 {
		t.Fatalf("expected session to renew inside the renewal window")
	}
}

func TestSessionCache_FetchFailureLeavesCacheEmpty(t *testing.T) {
	fetcher := &countingFetcher{fail: errors.New("identity endpoint down")}
	observer := &recordingObserver{}
	cache, _ := NewSessionCache(fetcher, SessionCacheConfig{Observer: observer})

	_, err := cache.Current(context.Background())
	if err == nil {
		t.Fatalf("expected auth unavailable error")
	}
	if !IsTextCode(err, TextCodeAuthUnavailable) {
		t.Fatalf("expected %s, got %v", TextCodeAuthUnavailable, err)
	}
	if _, ok := cache.Snapshot(); ok {
		t.Fatalf("expected cache to stay empty after failure")
	}

	fetcher.fail = nil
	session, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("expected retry fetch to succeed: %v", err)
	}
	if fetcher.calls.Load() != 2 || session.Generation != 1 {
		t.Fatalf("expected second fetch to produce generation 1, got %d fetches and %+v", fetcher.calls.Load(), session)
	}
	kinds := observer.kinds()
	if len(kinds) != 2 || kinds[0] != SessionEventFailed || kinds[1] != SessionEventRefreshed {
		t.Fatalf("unexpected session events %v", kinds)
	}
}

func TestSessionCache_InvalidateHonoursGeneration(t *testing.T) {
	fetcher := &countingFetcher{}
	cache, _ := NewSessionCache(fetcher, SessionCacheConfig{})

	first, _ := cache.Current(context.Background())
	if !cache.Invalidate(context.Background(), first.Generation) {
		t.Fatalf("expected matching generation to invalidate")
	}
	second, _ := cache.Current(context.Background())
	if second.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", second.Generation)
	}
	if cache.Invalidate(context.Background(), first.Generation) {
		t.Fatalf("expected stale generation to be ignored")
	}
	current, ok := cache.Snapshot()
	if !ok || current.Generation != second.Generation {
		t.Fatalf("expected newer session to survive stale invalidation")
	}
}

func TestSessionCache_CancelledWaiterDoesNotCancelFetch(t *testing.T) {
	fetcher := &countingFetcher{release: make(chan struct{})}
	cache, _ := NewSessionCache(fetcher, SessionCacheConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := cache.Current(ctx)
		cancelled <- err
	}()
	for fetcher.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	survivor := make(chan AuthSession, 1)
	go func() {
		session, _ := cache.Current(context.Background())
		survivor <- session
	}()

	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled waiter to see context.Canceled, got %v", err)
	}
	close(fetcher.release)
	session := <-survivor
	if session.Credential.Token != "token-1" {
		t.Fatalf("expected surviving waiter to receive shared fetch result, got %+v", session)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls.Load())
	}
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]AuthSession
	deletes  int
}

func (s *memorySessionStore) Load(_ context.Context, key string) (AuthSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	return session, ok, nil
}

func (s *memorySessionStore) Save(_ context.Context, key string, session AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = map[string]AuthSession{}
	}
	s.sessions[key] = session
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, key string, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[key]; ok && current.Generation == generation {
		delete(s.sessions, key)
		s.deletes++
	}
	return nil
}

func TestSessionCache_ReusesSharedSnapshot(t *testing.T) {
	store := &memorySessionStore{}
	producer, _ := NewSessionCache(&countingFetcher{}, SessionCacheConfig{Key: "shared", Store: store})
	produced, err := producer.Current(context.Background())
	if err != nil {
		t.Fatalf("producer current: %v", err)
	}

	consumerFetcher := &countingFetcher{}
	consumer, _ := NewSessionCache(consumerFetcher, SessionCacheConfig{Key: "shared", Store: store})
	consumed, err := consumer.Current(context.Background())
	if err != nil {
		t.Fatalf("consumer current: %v", err)
	}
	if consumerFetcher.calls.Load() != 0 {
		t.Fatalf("expected consumer to reuse the shared snapshot")
	}
	if consumed.Credential.Token != produced.Credential.Token {
		t.Fatalf("expected shared credential, got %q", consumed.Credential.Token)
	}

	consumer.Invalidate(context.Background(), consumed.Generation)
	if store.deletes != 1 {
		t.Fatalf("expected invalidation to delete the shared snapshot")
	}
	refreshed, _ := consumer.Current(context.Background())
	if refreshed.Generation <= consumed.Generation {
		t.Fatalf("expected generation past the shared one, got %d", refreshed.Generation)
	}
}

func TestMemo_TTLAndReset(t *testing.T) {
	clock := newManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loads := 0
	memo := NewTTLMemo(time.Second, func(context.Context) (int, error) {
		loads++
		return loads, nil
	}, WithMemoClock(clock.Now))

	if v, _ := memo.Get(context.Background()); v != 1 {
		t.Fatalf("expected first load, got %d", v)
	}
	clock.Advance(500 * time.Millisecond)
	if v, _ := memo.Get(context.Background()); v != 1 {
		t.Fatalf("expected memoized value, got %d", v)
	}
	clock.Advance(500 * time.Millisecond)
	if v, _ := memo.Get(context.Background()); v != 2 {
		t.Fatalf("expected reload at ttl, got %d", v)
	}
	memo.Reset()
	if v, _ := memo.Get(context.Background()); v != 3 {
		t.Fatalf("expected reload after reset, got %d", v)
	}
}
