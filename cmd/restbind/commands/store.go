package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	restbindmigrations "github.com/goliatone/go-restbind/migrations"
	sqlstore "github.com/goliatone/go-restbind/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type operationStore = sqlstore.OperationStore

type storeConfig struct {
	driver string
	server string
}

func (c storeConfig) GetDebug() bool                { return false }
func (c storeConfig) GetDriver() string             { return c.driver }
func (c storeConfig) GetServer() string             { return c.server }
func (c storeConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c storeConfig) GetOtelIdentifier() string     { return "restbind-cli" }

// storeTarget maps a DSN to the sql driver, bun dialect and migration dialect
// that serve it. postgres:// and postgresql:// select lib/pq; anything else is
// a sqlite file, with an optional sqlite:// prefix.
func storeTarget(dsn string) (driver string, server string, dialect schema.Dialect, migrationDialect restbindmigrations.Dialect) {
	dsn = strings.TrimSpace(dsn)
	migrationDialect = restbindmigrations.DialectForDSN(dsn)
	if migrationDialect == restbindmigrations.DialectPostgres {
		return "postgres", dsn, pgdialect.New(), migrationDialect
	}
	return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), sqlitedialect.New(), migrationDialect
}

func openStore(ctx context.Context, dsn string) (*persistence.Client, *sqlstore.RepositoryFactory, error) {
	driver, server, dialect, migrationDialect := storeTarget(dsn)
	if server == "" {
		return nil, nil, fmt.Errorf("database dsn is required")
	}
	sqlDB, err := sql.Open(driver, server)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(storeConfig{driver: driver, server: server}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	err = restbindmigrations.Register(ctx, migrationDialect, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, factory, nil
}

func withStore[T any](ctx context.Context, dsn string, fn func(store *operationStore) (T, error)) (T, error) {
	var zero T
	client, factory, err := openStore(ctx, dsn)
	if err != nil {
		return zero, err
	}
	defer client.Close()
	return fn(factory.OperationStore())
}
