package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-restbind/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewOperationsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List and describe operations",
	}
	cmd.AddCommand(newOperationsListCommand(opts), newOperationsDescribeCommand(opts))
	return cmd
}

func newOperationsListCommand(opts *Options) *cobra.Command {
	var provider string
	var noBuiltin bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in, catalog and stored operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, err := loadOperations(cmd.Context(), opts, !noBuiltin)
			if err != nil {
				return err
			}
			filtered := ops[:0]
			for _, op := range ops {
				if provider == "" || strings.EqualFold(op.Provider, provider) {
					filtered = append(filtered, op)
				}
			}
			return writeOperations(opts.stdout(), opts.Output, filtered)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only list operations of this provider")
	cmd.Flags().BoolVar(&noBuiltin, "no-builtin", false, "Skip the built-in provider operations")
	return cmd
}

func newOperationsDescribeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <operation-id>",
		Short: "Show one operation declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := loadOperations(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			for _, op := range ops {
				if op.ID != id {
					continue
				}
				if opts.Output == OutputJSON {
					return writeJSON(opts.stdout(), op)
				}
				return writeYAML(opts.stdout(), op)
			}
			return fmt.Errorf("operation %q not found", id)
		},
	}
}

func writeOperations(w io.Writer, output string, ops []core.Operation) error {
	switch output {
	case OutputJSON:
		return writeJSON(w, ops)
	case OutputYAML:
		return writeYAML(w, ops)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPROVIDER\tMETHOD\tPATH\tPARAMS")
	for _, op := range ops {
		method := op.Method
		if method == "" {
			method = "GET"
		}
		names := make([]string, 0, len(op.Params))
		for _, param := range op.Params {
			name := param.Name
			if param.Required {
				name += "*"
			}
			names = append(names, name)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", op.ID, op.Provider, method, op.Path, strings.Join(names, ","))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}
