package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-restbind/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultSessionEventBuffer = 64

// SessionEventEntry is one persisted session lifecycle event.
type SessionEventEntry struct {
	ID         string
	Kind       core.SessionEventKind
	CacheKey   string
	Generation uint64
	ExpiresAt  time.Time
	Error      string
	Metadata   map[string]any
	OccurredAt time.Time
}

type SessionEventStore struct {
	repo repository.Repository[*sessionEventRecord]
}

func NewSessionEventStore(db *bun.DB) (*SessionEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionEventRecord](db, sessionEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session event repository wiring: %w", err)
		}
	}
	return &SessionEventStore{repo: repo}, nil
}

func (s *SessionEventStore) Append(ctx context.Context, event core.SessionEvent, metadata map[string]any) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: session event store is not configured")
	}
	if strings.TrimSpace(event.CacheKey) == "" {
		return fmt.Errorf("sqlstore: session cache key is required")
	}
	if strings.TrimSpace(string(event.Kind)) == "" {
		return fmt.Errorf("sqlstore: session event kind is required")
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	record := &sessionEventRecord{
		ID:         uuid.NewString(),
		CacheKey:   strings.TrimSpace(event.CacheKey),
		Kind:       strings.TrimSpace(string(event.Kind)),
		Generation: int64(event.Generation),
		Metadata:   core.RedactSensitiveMap(metadata),
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
	if !event.ExpiresAt.IsZero() {
		expiresAt := event.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	if event.Err != nil {
		record.Error = strings.TrimSpace(event.Err.Error())
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// List returns the newest events for cacheKey first. limit <= 0 returns all.
func (s *SessionEventStore) List(ctx context.Context, cacheKey string, limit int) ([]SessionEventEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: session event store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.SelectBy("cache_key", "=", strings.TrimSpace(cacheKey)),
		repository.OrderBy("occurred_at DESC"),
		repository.OrderBy("generation DESC"),
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]SessionEventEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

type sessionEventAppender interface {
	Append(ctx context.Context, event core.SessionEvent, metadata map[string]any) error
}

// SessionEventRecorder is a core.SessionObserver that persists events on a
// background goroutine. Events are dropped, and counted, when the buffer is
// full so the session cache never waits on the database.
type SessionEventRecorder struct {
	store    sessionEventAppender
	logger   core.Logger
	metadata map[string]any
	events   chan core.SessionEvent
	done     chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int64
}

type SessionEventRecorderOption func(*SessionEventRecorder)

func WithRecorderLogger(logger core.Logger) SessionEventRecorderOption {
	return func(r *SessionEventRecorder) {
		r.logger = logger
	}
}

// WithRecorderMetadata attaches static metadata, such as the provider id, to
// every persisted event.
func WithRecorderMetadata(metadata map[string]any) SessionEventRecorderOption {
	return func(r *SessionEventRecorder) {
		r.metadata = copyAnyMap(metadata)
	}
}

func WithRecorderBuffer(size int) SessionEventRecorderOption {
	return func(r *SessionEventRecorder) {
		if size > 0 {
			r.events = make(chan core.SessionEvent, size)
		}
	}
}

func NewSessionEventRecorder(store sessionEventAppender, opts ...SessionEventRecorderOption) (*SessionEventRecorder, error) {
	if store == nil {
		return nil, fmt.Errorf("sqlstore: session event store is required")
	}
	recorder := &SessionEventRecorder{
		store:  store,
		events: make(chan core.SessionEvent, defaultSessionEventBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	go recorder.run()
	return recorder, nil
}

func (r *SessionEventRecorder) OnSessionEvent(_ context.Context, event core.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- event:
	default:
		r.dropped++
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (r *SessionEventRecorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting events and waits for buffered ones to be written.
func (r *SessionEventRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
	return nil
}

func (r *SessionEventRecorder) run() {
	defer close(r.done)
	for event := range r.events {
		if err := r.store.Append(context.Background(), event, r.metadata); err != nil && r.logger != nil {
			r.logger.Warn("session event persist failed",
				"cache_key", event.CacheKey,
				"kind", string(event.Kind),
				"generation", event.Generation,
				"error", err,
			)
		}
	}
}
