package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-restbind/core"
	"github.com/uptrace/bun"
)

type operationRecord struct {
	bun.BaseModel `bun:"table:restbind_operations,alias:ro"`

	ID          string              `bun:"id,pk"`
	OperationID string              `bun:"operation_id,notnull"`
	Provider    string              `bun:"provider,notnull"`
	Method      string              `bun:"method,notnull"`
	Path        string              `bun:"path,notnull"`
	BaseURL     string              `bun:"base_url,notnull"`
	Encoder     string              `bun:"encoder,notnull"`
	Description string              `bun:"description,notnull"`
	Params      []core.ParamBinding `bun:"params,type:jsonb,notnull"`
	Metadata    map[string]any      `bun:"metadata,type:jsonb,notnull"`
	CreatedAt   time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newOperationRecord(op core.Operation, now time.Time) *operationRecord {
	record := &operationRecord{
		CreatedAt: now,
		UpdatedAt: now,
	}
	record.apply(op)
	return record
}

func (r *operationRecord) apply(op core.Operation) {
	r.OperationID = strings.TrimSpace(op.ID)
	r.Provider = strings.TrimSpace(op.Provider)
	r.Method = strings.ToUpper(strings.TrimSpace(op.Method))
	r.Path = strings.TrimSpace(op.Path)
	r.BaseURL = strings.TrimSpace(op.BaseURL)
	r.Encoder = strings.TrimSpace(op.Encoder)
	r.Description = strings.TrimSpace(op.Description)
	r.Params = append([]core.ParamBinding{}, op.Params...)
	r.Metadata = copyAnyMap(op.Metadata)
}

func (r *operationRecord) toDomain() core.Operation {
	if r == nil {
		return core.Operation{}
	}
	op := core.Operation{
		ID:          r.OperationID,
		Provider:    r.Provider,
		Method:      r.Method,
		Path:        r.Path,
		BaseURL:     r.BaseURL,
		Encoder:     r.Encoder,
		Description: r.Description,
	}
	if len(r.Params) > 0 {
		op.Params = append([]core.ParamBinding(nil), r.Params...)
	}
	if len(r.Metadata) > 0 {
		op.Metadata = copyAnyMap(r.Metadata)
	}
	return op
}

type sessionEventRecord struct {
	bun.BaseModel `bun:"table:restbind_session_events,alias:rse"`

	ID         string         `bun:"id,pk"`
	CacheKey   string         `bun:"cache_key,notnull"`
	Kind       string         `bun:"kind,notnull"`
	Generation int64          `bun:"generation,notnull"`
	ExpiresAt  *time.Time     `bun:"expires_at,nullzero"`
	Error      string         `bun:"error,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *sessionEventRecord) toDomain() SessionEventEntry {
	if r == nil {
		return SessionEventEntry{}
	}
	entry := SessionEventEntry{
		ID:         r.ID,
		Kind:       core.SessionEventKind(r.Kind),
		CacheKey:   r.CacheKey,
		Generation: uint64(r.Generation),
		Error:      r.Error,
		Metadata:   copyAnyMap(r.Metadata),
		OccurredAt: r.OccurredAt.UTC(),
	}
	if r.ExpiresAt != nil {
		entry.ExpiresAt = r.ExpiresAt.UTC()
	}
	return entry
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
