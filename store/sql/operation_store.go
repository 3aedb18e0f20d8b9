package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-restbind/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrOperationNotFound = errors.New("sqlstore: operation not found")

// OperationReader is the read side shared by OperationStore and
// CachedOperationStore.
type OperationReader interface {
	Get(ctx context.Context, operationID string) (core.Operation, error)
	List(ctx context.Context, provider string) ([]core.Operation, error)
}

// OperationStore persists operation declarations in restbind_operations,
// keyed by operation id.
type OperationStore struct {
	db   *bun.DB
	repo repository.Repository[*operationRecord]
	now  func() time.Time
}

func NewOperationStore(db *bun.DB) (*OperationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*operationRecord](db, operationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid operation repository wiring: %w", err)
		}
	}
	return &OperationStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Save inserts op or replaces the stored declaration with the same id.
func (s *OperationStore) Save(ctx context.Context, op core.Operation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: operation store is not configured")
	}
	operationID := strings.TrimSpace(op.ID)
	if operationID == "" {
		return fmt.Errorf("sqlstore: operation id is required")
	}
	if strings.TrimSpace(op.Path) == "" {
		return fmt.Errorf("sqlstore: operation path is required")
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &operationRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.operation_id = ?", operationID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			record = newOperationRecord(op, now)
			record.ID = uuid.NewString()
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}
		record.apply(op)
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *OperationStore) Get(ctx context.Context, operationID string) (core.Operation, error) {
	if s == nil || s.db == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	record := &operationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.operation_id = ?", strings.TrimSpace(operationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Operation{}, ErrOperationNotFound
		}
		return core.Operation{}, err
	}
	return record.toDomain(), nil
}

// List returns stored operations ordered by id. An empty provider lists all.
func (s *OperationStore) List(ctx context.Context, provider string) ([]core.Operation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: operation store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("operation_id ASC")}
	if trimmed := strings.TrimSpace(provider); trimmed != "" {
		criteria = append(criteria, repository.SelectBy("provider", "=", trimmed))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Operation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *OperationStore) Delete(ctx context.Context, operationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: operation store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*operationRecord)(nil)).
		Where("operation_id = ?", strings.TrimSpace(operationID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return ErrOperationNotFound
	}
	return nil
}

type operationRegistrar interface {
	RegisterOperation(ctx context.Context, op core.Operation) (core.TemplateID, error)
}

// RegisterStored loads the operations of provider from reader into engine.
func RegisterStored(ctx context.Context, reader OperationReader, engine operationRegistrar, provider string) (int, error) {
	if reader == nil || engine == nil {
		return 0, fmt.Errorf("sqlstore: reader and engine are required")
	}
	ops, err := reader.List(ctx, provider)
	if err != nil {
		return 0, err
	}
	for i, op := range ops {
		if _, err := engine.RegisterOperation(ctx, op); err != nil {
			return i, fmt.Errorf("sqlstore: register %s: %w", op.ID, err)
		}
	}
	return len(ops), nil
}
