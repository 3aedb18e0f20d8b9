package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-restbind/catalog"
	"github.com/spf13/cobra"
)

func NewCatalogCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and import operation catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(opts), newCatalogImportCommand(opts))
	return cmd
}

func newCatalogValidateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check catalog files against the catalog schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var failures []error
			for _, path := range args {
				doc, err := catalog.LoadFile(path)
				if err != nil {
					_, _ = fmt.Fprintf(opts.stderr(), "FAIL %s: %v\n", path, err)
					failures = append(failures, err)
					continue
				}
				_, _ = fmt.Fprintf(opts.stdout(), "ok   %s (%d operations)\n", path, len(doc.Operations))
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d catalogs invalid: %w", len(failures), len(args), errors.Join(failures...))
			}
			return nil
		},
	}
}

func newCatalogImportCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Store catalog operations in the --db operation store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.DSN) == "" {
				return fmt.Errorf("--db is required for import")
			}
			ctx := cmd.Context()
			saved, err := withStore(ctx, opts.DSN, func(store *operationStore) (int, error) {
				count := 0
				for _, path := range args {
					doc, err := catalog.LoadFile(path)
					if err != nil {
						return count, err
					}
					for _, op := range doc.Resolved() {
						if err := store.Save(ctx, op); err != nil {
							return count, fmt.Errorf("save %s: %w", op.ID, err)
						}
						count++
					}
				}
				return count, nil
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(opts.stdout(), "imported %d operations\n", saved)
			return nil
		},
	}
}
