package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	restbind "github.com/goliatone/go-restbind"
	"github.com/goliatone/go-restbind/catalog"
	"github.com/goliatone/go-restbind/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Options carries the persistent flags shared by every subcommand.
type Options struct {
	ConfigPath string
	Catalogs   []string
	DSN        string
	Output     string

	Out io.Writer
	Err io.Writer
}

func (o *Options) stdout() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

func (o *Options) stderr() io.Writer {
	if o.Err != nil {
		return o.Err
	}
	return os.Stderr
}

func NewRootCommand(opts *Options) *cobra.Command {
	if opts == nil {
		opts = &Options{}
	}
	root := &cobra.Command{
		Use:   "restbind",
		Short: "Inspect and invoke declarative REST operations",
		Long: `restbind lists the built-in provider operations, validates YAML operation
catalogs, stores them in a SQL database and invokes them against a live API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Engine config file (YAML)")
	root.PersistentFlags().StringSliceVar(&opts.Catalogs, "catalog", nil, "Operation catalog file, repeatable")
	root.PersistentFlags().StringVar(&opts.DSN, "db", "", "Operation store DSN (postgres://... or a sqlite file)")
	root.PersistentFlags().StringVarP(&opts.Output, "output", "o", OutputTable, "Output format: table, json or yaml")

	root.AddCommand(
		NewOperationsCommand(opts),
		NewCatalogCommand(opts),
		NewInvokeCommand(opts),
	)
	return root
}

// loadOperations merges built-in, catalog and stored operations. Later sources
// replace earlier ones with the same id. The result is sorted by id.
func loadOperations(ctx context.Context, opts *Options, includeBuiltin bool) ([]core.Operation, error) {
	byID := map[string]core.Operation{}
	if includeBuiltin {
		for _, ops := range restbind.ProviderOperations() {
			for _, op := range ops {
				byID[op.ID] = op
			}
		}
	}
	for _, path := range opts.Catalogs {
		doc, err := catalog.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, op := range doc.Resolved() {
			byID[op.ID] = op
		}
	}
	if strings.TrimSpace(opts.DSN) != "" {
		stored, err := withStore(ctx, opts.DSN, func(store *operationStore) ([]core.Operation, error) {
			return store.List(ctx, "")
		})
		if err != nil {
			return nil, err
		}
		for _, op := range stored {
			byID[op.ID] = op
		}
	}

	out := make([]core.Operation, 0, len(byID))
	for _, op := range byID {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// readConfig decodes the YAML engine config at path. An empty path yields nil.
func readConfig(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return raw, nil
}
