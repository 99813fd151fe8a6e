package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
	assert.Contains(t, errMsg, "💡")
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "bootstrap.address",
		Value:      "invalid-url",
		Message:    "Invalid URL format",
		Suggestion: "Use format: https://hostname:port",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "bootstrap.address")
	assert.Contains(t, errMsg, "invalid-url")
	assert.Contains(t, errMsg, "Invalid URL format")
	assert.Contains(t, errMsg, "https://hostname:port")
}

func TestIsConfigError(t *testing.T) {
	t.Parallel()

	base := errors.ConfigError{Field: "bootstrap_path", Message: "missing"}
	assert.True(t, errors.IsConfigError(base))
	assert.True(t, errors.IsConfigError(fmt.Errorf("initialize: %w", base)))
	assert.False(t, errors.IsConfigError(stderrors.New("boom")))
	assert.False(t, errors.IsConfigError(nil))
}

// TestCommandErrorFormatting verifies CommandError includes exit code
func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.CommandError{
		Command:    "./server --port 8080",
		ExitCode:   2,
		Message:    "bad flag",
		Suggestion: "Check the command output above for details",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "./server --port 8080")
	assert.Contains(t, errMsg, "exit code: 2")
	assert.Contains(t, errMsg, "bad flag")
}

func TestVaultStoreSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission denied", stderrors.New("Code: 403. Errors: * permission denied"), "AppRole policy"},
		{"bad approle", stderrors.New("invalid role or secret ID"), "Rotate the secret_id"},
		{"missing secret", stderrors.New("secret not found at path \"prod/api\""), "{environment}/{service}"},
		{"sealed", stderrors.New("Vault is sealed"), "unseal"},
		{"timeout", stderrors.New("context deadline exceeded (Client.Timeout exceeded)"), ""},
		{"refused", stderrors.New("dial tcp 127.0.0.1:8200: connect: connection refused"), "store address"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := errors.StoreError("vault", "read", tt.err)
			var userErr errors.UserError
			if assert.True(t, stderrors.As(err, &userErr)) {
				assert.Contains(t, userErr.Suggestion, tt.want)
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

// TestAWSBootstrapSuggestions covers the bootstrap loader error hints
func TestAWSBootstrapSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		store string
		err   string
		want  string
	}{
		{"aws-secretsmanager", "AccessDeniedException: not authorized", "IAM permissions"},
		{"aws-secretsmanager", "ResourceNotFoundException: missing", "VAULTCACHE_BOOTSTRAP_PATH"},
		{"aws-ssm", "ParameterNotFound", "VAULTCACHE_BOOTSTRAP_PATH"},
		{"bootstrap", "failed to retrieve credentials", "AWS_PROFILE"},
		{"aws-ssm", "ThrottlingException: Rate exceeded", "rate limit"},
	}

	for _, tt := range tests {
		err := errors.StoreError(tt.store, "bootstrap", stderrors.New(tt.err))
		assert.Contains(t, err.Error(), tt.want, "%s / %s", tt.store, tt.err)
	}
}

func TestWrapCommandNotFound(t *testing.T) {
	t.Parallel()

	err := errors.WrapCommandNotFound("node", stderrors.New("exec: \"node\": executable file not found in $PATH"))
	var cmdErr errors.CommandError
	if assert.True(t, stderrors.As(err, &cmdErr)) {
		assert.Equal(t, "node", cmdErr.Command)
		assert.Equal(t, "command not found", cmdErr.Message)
		assert.Contains(t, cmdErr.Suggestion, "'node' is installed")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{stderrors.New("i/o timeout"), true},
		{stderrors.New("connection reset by peer"), true},
		{stderrors.New("Too Many Requests"), true},
		{stderrors.New("permission denied"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errors.IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	cfg := errors.ConfigError{Message: "bad"}
	assert.Equal(t, cfg, errors.SimplifyError(cfg))

	yamlErr := errors.SimplifyError(fmt.Errorf("load: %w", stderrors.New("yaml: line 3: did not find expected key")))
	assert.True(t, errors.IsConfigError(yamlErr))

	perm := errors.SimplifyError(fmt.Errorf("read: %w", stderrors.New("open /etc/x: permission denied")))
	assert.Contains(t, perm.Error(), "Permission denied")

	other := stderrors.New("something else")
	assert.Equal(t, other, errors.SimplifyError(other))
}

// TestErrorDoesNotLeakSecretsInWrappedChain verifies a logging.Secret in the
// chain stays redacted once wrapped
func TestErrorDoesNotLeakSecretsInWrappedChain(t *testing.T) {
	t.Parallel()

	secretValue := "s.supersecrettoken"
	base := fmt.Errorf("renew with token %s failed", logging.Secret(secretValue))
	err := errors.StoreError("vault", "renew", base)

	assert.NotContains(t, err.Error(), secretValue)
	assert.Contains(t, stderrors.Unwrap(err).Error(), "[REDACTED]")
}
