package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	restbind "github.com/goliatone/go-restbind"
	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
	"github.com/spf13/cobra"
)

const tokenEnv = "RESTBIND_TOKEN"

type invokeOutput struct {
	OperationID string `json:"operation_id"`
	StatusCode  int    `json:"status_code"`
	Attempts    int    `json:"attempts"`
	AuthRetried bool   `json:"auth_retried"`
	Body        string `json:"body"`
}

func NewInvokeCommand(opts *Options) *cobra.Command {
	var (
		rawArgs  []string
		token    string
		authMode string
	)

	cmd := &cobra.Command{
		Use:   "invoke <operation-id>",
		Short: "Execute a catalog or stored operation",
		Long: `invoke binds --arg key=value pairs to a catalog or stored operation and
executes it. Values that parse as JSON are decoded, everything else is sent as a
string. The token comes from --token or $RESTBIND_TOKEN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := readConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			ops, err := loadOperations(ctx, opts, false)
			if err != nil {
				return err
			}
			attacher, err := attacherFor(authMode)
			if err != nil {
				return err
			}
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			callArgs, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}

			engine, err := restbind.Setup(restbind.Config{}, raw,
				restbind.WithOperations(ops...),
				restbind.WithCredentialFetcher(restbind.StaticCredentialFetcher(core.Credential{Token: token})),
				restbind.WithCredentialAttacher(attacher),
			)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Execute(ctx, args[0], callArgs)
			if err != nil {
				return err
			}
			if opts.Output == OutputJSON {
				return writeJSON(opts.stdout(), invokeOutput{
					OperationID: result.OperationID,
					StatusCode:  result.StatusCode,
					Attempts:    result.Attempts,
					AuthRetried: result.AuthRetried,
					Body:        string(result.Body),
				})
			}
			_, _ = fmt.Fprintf(opts.stderr(), "%s: HTTP %d after %d attempt(s)\n", result.OperationID, result.StatusCode, result.Attempts)
			_, err = opts.stdout().Write(result.Body)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Operation argument as key=value, repeatable")
	cmd.Flags().StringVar(&token, "token", "", "Credential token")
	cmd.Flags().StringVar(&authMode, "auth", "header", "How the token is sent: header (X-Auth-Token), bearer, query or none")
	return cmd
}

func attacherFor(mode string) (core.CredentialAttacher, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "header":
		return auth.NewAuthTokenAttacher(), nil
	case "bearer":
		return auth.NewBearerAttacher(), nil
	case "query":
		return auth.QueryTokenAttacher{Param: "token"}, nil
	case "none":
		return core.CredentialAttacherFunc(func(_ context.Context, req core.BoundRequest, _ core.Credential) (core.BoundRequest, error) {
			return req, nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func parseArgs(pairs []string) (core.Args, error) {
	args := core.Args{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q must be key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
			continue
		}
		args[key] = value
	}
	return args, nil
}
