package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
)

// Apply exports secrets into the current process environment. Existing
// variables with the same name are overwritten.
func Apply(secrets map[string]string) error {
	for _, key := range sortedKeys(secrets) {
		if err := os.Setenv(key, secrets[key]); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Build merges secrets into base (KEY=VALUE entries, as from os.Environ).
// Secrets win unless allowOverride is set, in which case variables already
// present in base are kept.
func Build(base []string, secrets map[string]string, allowOverride bool) []string {
	envMap := make(map[string]string, len(base)+len(secrets))
	for _, env := range base {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	for key, value := range secrets {
		if allowOverride {
			if _, exists := envMap[key]; exists {
				continue
			}
		}
		envMap[key] = value
	}

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}

// Executor runs a child process with secrets in its environment
type Executor struct {
	logger *logging.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates an executor wired to the process's standard streams
func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithOutput redirects the child's stdout and stderr
func (e *Executor) WithOutput(stdout, stderr io.Writer) *Executor {
	cp := *e
	cp.stdout = stdout
	cp.stderr = stderr
	return &cp
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command       []string          // Command and arguments to run
	Environment   map[string]string // Secrets to expose to the command
	AllowOverride bool              // Keep existing env vars over secret values
	PrintVars     bool              // Print variable names with masked values first
	WorkingDir    string            // Working directory for the command
	Timeout       time.Duration     // 0 for no timeout
}

// Exec runs the command and returns its exit code. A non-zero exit of the
// child is not an error; failing to start it is.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) (int, error) {
	if err := ValidateCommand(options.Command); err != nil {
		return 1, err
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if options.PrintVars {
		e.PrintEnvironment(e.stderr, options.Environment)
	}

	cmd := exec.CommandContext(ctx, options.Command[0], options.Command[1:]...)
	cmd.Env = Build(os.Environ(), options.Environment, options.AllowOverride)
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	e.logger.Debug("Secrets exported: %s", logging.Keys(options.Environment))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, dserrors.CommandError{
			Command:    strings.Join(options.Command, " "),
			Message:    err.Error(),
			Suggestion: "Check the command output above for details",
		}
	}
	return 0, nil
}

// PrintEnvironment lists the variables with masked values
func (e *Executor) PrintEnvironment(w io.Writer, environment map[string]string) {
	if len(environment) == 0 {
		fmt.Fprintln(w, "No secrets loaded")
		return
	}

	fmt.Fprintf(w, "Loaded %d secrets:\n", len(environment))
	for _, key := range sortedKeys(environment) {
		fmt.Fprintf(w, "  %s=%s\n", key, Mask(environment[key]))
	}
	fmt.Fprintln(w)
}

// Mask hides most of a secret value for display
func Mask(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}

	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}

	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}

	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}

// ValidateCommand checks that a command was given and can be found
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return dserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., vaultcache exec --service api -- ./server)",
		}
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return dserrors.WrapCommandNotFound(command[0], err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
