package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultcache/internal/config"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/execenv"
	"github.com/systmms/vaultcache/internal/manager"
)

func NewGetCommand(cfg *config.Config, extra ...manager.Option) *cobra.Command {
	var (
		service    string
		name       string
		key        string
		jsonOutput bool
		show       bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Load a service's secrets and print them",
		Long: `Load the secrets of a service from Vault and print them.

Values are masked unless --show is given. With --key only the raw value of
that key is printed, which makes the command usable in scripts.

Examples:
  # List the keys of slack-bot in the bootstrapped environment
  vaultcache get --service slack-bot

  # Read an explicit path as JSON
  vaultcache get --name shared/stripe --json --show

  # Use in scripts
  export TOKEN=$(vaultcache get --service slack-bot --key SLACK_BOT_TOKEN)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, caller, opts, err := setup(cfg, service, name, extra)
			if err != nil {
				return err
			}
			defer mgr.Reset()

			secrets, err := mgr.LoadSecrets(cmd.Context(), caller, opts)
			if err != nil {
				return explain(err)
			}

			out := cmd.OutOrStdout()

			if key != "" {
				value, ok := secrets[key]
				if !ok {
					return dserrors.UserError{
						Message:    fmt.Sprintf("Key '%s' not found", key),
						Suggestion: fmt.Sprintf("Available keys: %v", sortedKeys(secrets)),
					}
				}
				fmt.Fprint(out, value)
				return nil
			}

			display := make(map[string]string, len(secrets))
			for k, v := range secrets {
				if show {
					display[k] = v
				} else {
					display[k] = execenv.Mask(v)
				}
			}

			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(display); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				return nil
			}

			for _, k := range sortedKeys(display) {
				fmt.Fprintf(out, "%s=%s\n", k, display[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service name (default from config or "+config.EnvService+")")
	cmd.Flags().StringVar(&name, "name", "", "Explicit secret path, overrides {environment}/{service}")
	cmd.Flags().StringVar(&key, "key", "", "Print only the raw value of this key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&show, "show", false, "Print values unmasked")

	return cmd
}
