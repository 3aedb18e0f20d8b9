package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	restbind "github.com/goliatone/go-restbind"
)

// Dialect selects a migration directory under data/sql/migrations.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const migrationsDir = "data/sql/migrations"

// Steps lists the restbind schema migrations in apply order. Each dialect
// ships an up and a down file per step.
var Steps = []string{
	"00001_restbind_operations",
	"00002_restbind_session_events",
}

// ParseDialect accepts the dialect and driver names used in configs and DSNs.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// DialectForDSN picks postgres for postgres:// and postgresql:// DSNs and
// sqlite for everything else.
func DialectForDSN(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

func (d Dialect) path() string {
	if d == DialectSQLite {
		return migrationsDir + "/sqlite"
	}
	return migrationsDir
}

type Option func(*options)

type options struct {
	root fs.FS
}

// WithSource replaces the embedded migration tree. The tree must keep the
// data/sql/migrations layout.
func WithSource(root fs.FS) Option {
	return func(o *options) {
		if root != nil {
			o.root = root
		}
	}
}

// Source returns the migration filesystem for dialect once it has been checked
// against Steps.
func Source(dialect Dialect, opts ...Option) (fs.FS, error) {
	if _, err := ParseDialect(string(dialect)); err != nil {
		return nil, err
	}
	cfg := options{root: restbind.GetMigrationsFS()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	sub, err := fs.Sub(cfg.root, dialect.path())
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", dialect, err)
	}
	if err := checkSteps(sub, dialect); err != nil {
		return nil, err
	}
	return sub, nil
}

// Register checks the dialect's migrations and hands them to registerFn,
// typically a persistence client's RegisterSQLMigrations.
func Register(ctx context.Context, dialect Dialect, registerFn func(fs.FS), opts ...Option) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	fsys, err := Source(dialect, opts...)
	if err != nil {
		return err
	}
	registerFn(fsys)
	return nil
}

func checkSteps(fsys fs.FS, dialect Dialect) error {
	known := make(map[string]struct{}, len(Steps))
	var problems []string
	for _, step := range Steps {
		known[step+".up.sql"] = struct{}{}
		for _, name := range []string{step + ".up.sql", step + ".down.sql"} {
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				problems = append(problems, "missing "+name)
				continue
			}
			if strings.TrimSpace(string(content)) == "" {
				problems = append(problems, "empty "+name)
			}
		}
	}
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s: %w", dialect, err)
	}
	for _, name := range ups {
		if _, ok := known[name]; !ok {
			problems = append(problems, "unknown "+name)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("migrations: %s tree does not match restbind steps: %s", dialect, strings.Join(problems, ", "))
	}
	return nil
}
