package commands

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultcache/internal/config"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/execenv"
	"github.com/systmms/vaultcache/internal/manager"
)

func NewExecCommand(cfg *config.Config, extra ...manager.Option) *cobra.Command {
	var (
		service       string
		name          string
		printVars     bool
		allowOverride bool
		workingDir    string
		timeout       int
	)

	cmd := &cobra.Command{
		Use:   "exec --service <name> -- <command> [args...]",
		Short: "Execute a command with a service's secrets in its environment",
		Long: `Execute a command with the secrets of a service exported as environment
variables. Secrets are only passed to the child process and never written to
disk.

The command must be separated from vaultcache arguments with '--'.

Examples:
  vaultcache exec --service slack-bot -- node bot.js
  vaultcache exec --service api --print -- ./server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return dserrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: vaultcache exec --service <name> -- <command> [args...]",
				}
			}
			if err := execenv.ValidateCommand(args); err != nil {
				return err
			}

			mgr, caller, opts, err := setup(cfg, service, name, extra)
			if err != nil {
				return err
			}
			secrets, err := mgr.LoadSecrets(cmd.Context(), caller, opts)
			mgr.Reset()
			if err != nil {
				return explain(err)
			}

			executor := execenv.New(cfg.Logger).WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
			code, err := executor.Exec(cmd.Context(), execenv.ExecOptions{
				Command:       args,
				Environment:   secrets,
				AllowOverride: allowOverride,
				PrintVars:     printVars,
				WorkingDir:    workingDir,
				Timeout:       time.Duration(timeout) * time.Second,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service name (default from config or "+config.EnvService+")")
	cmd.Flags().StringVar(&name, "name", "", "Explicit secret path, overrides {environment}/{service}")
	cmd.Flags().BoolVar(&printVars, "print", false, "Print the exported variables (values masked)")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "Keep existing environment variables over secrets")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Command timeout in seconds (0 = no timeout)")

	return cmd
}
