package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-restbind/core"
)

const operationCacheKeyPrefix = "go-restbind::operation::v1"

type operationWriter interface {
	OperationReader
	Save(ctx context.Context, op core.Operation) error
	Delete(ctx context.Context, operationID string) error
}

// CachedOperationStore serves operation reads through a go-repository-cache
// service and drops the affected keys on every write.
type CachedOperationStore struct {
	base  operationWriter
	cache repositorycache.CacheService
}

func NewCachedOperationStore(base operationWriter, cacheService repositorycache.CacheService) (*CachedOperationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base operation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: operation cache service is required")
	}
	return &CachedOperationStore{base: base, cache: cacheService}, nil
}

// OperationCacheKey returns go-restbind::operation::v1::id::<operation_id>.
func OperationCacheKey(operationID string) string {
	return strings.Join([]string{operationCacheKeyPrefix, "id", url.PathEscape(strings.TrimSpace(operationID))}, "::")
}

// OperationListCacheKey returns go-restbind::operation::v1::list::<provider>;
// the empty provider segment caches the unfiltered list.
func OperationListCacheKey(provider string) string {
	return strings.Join([]string{operationCacheKeyPrefix, "list", url.PathEscape(strings.TrimSpace(provider))}, "::")
}

func (s *CachedOperationStore) Get(ctx context.Context, operationID string) (core.Operation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	op, err := repositorycache.GetOrFetch(ctx, s.cache, OperationCacheKey(operationID), func(ctx context.Context) (core.Operation, error) {
		return s.base.Get(ctx, operationID)
	})
	if err != nil {
		return core.Operation{}, err
	}
	return cloneOperation(op), nil
}

func (s *CachedOperationStore) List(ctx context.Context, provider string) ([]core.Operation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	ops, err := repositorycache.GetOrFetch(ctx, s.cache, OperationListCacheKey(provider), func(ctx context.Context) ([]core.Operation, error) {
		return s.base.List(ctx, provider)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, cloneOperation(op))
	}
	return out, nil
}

func (s *CachedOperationStore) Save(ctx context.Context, op core.Operation) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	previous, err := s.base.Get(ctx, op.ID)
	if err != nil && !errors.Is(err, ErrOperationNotFound) {
		return err
	}
	if err := s.base.Save(ctx, op); err != nil {
		return err
	}
	return s.invalidate(ctx, op.ID, previous.Provider, op.Provider)
}

func (s *CachedOperationStore) Delete(ctx context.Context, operationID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached operation store is not configured")
	}
	previous, err := s.base.Get(ctx, operationID)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, operationID); err != nil {
		return err
	}
	return s.invalidate(ctx, operationID, previous.Provider)
}

func (s *CachedOperationStore) invalidate(ctx context.Context, operationID string, providers ...string) error {
	keys := []string{OperationCacheKey(operationID), OperationListCacheKey("")}
	for _, provider := range providers {
		if strings.TrimSpace(provider) != "" {
			keys = append(keys, OperationListCacheKey(provider))
		}
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func cloneOperation(op core.Operation) core.Operation {
	if op.Params != nil {
		op.Params = append([]core.ParamBinding(nil), op.Params...)
	}
	if op.Metadata != nil {
		op.Metadata = copyAnyMap(op.Metadata)
	}
	return op
}

var _ OperationReader = (*CachedOperationStore)(nil)
