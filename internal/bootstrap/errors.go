package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	dserrors "github.com/systmms/vaultcache/internal/errors"
)

// NotFoundError reports a bootstrap path that does not exist
type NotFoundError struct {
	Source string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bootstrap secret %q not found in %s", e.ID, e.Source)
}

// AuthError reports AWS rejecting the caller's identity or permissions
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication/authorization failed: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func isNotFound(err error) bool {
	var smNotFound *smtypes.ResourceNotFoundException
	if errors.As(err, &smNotFound) {
		return true
	}
	var paramNotFound *ssmtypes.ParameterNotFound
	return errors.As(err, &paramNotFound)
}

func isAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnauthorizedOperation") ||
		strings.Contains(errStr, "InvalidUserID") ||
		strings.Contains(errStr, "ExpiredToken") ||
		strings.Contains(errStr, "Forbidden")
}

func handleError(source, id string, err error) error {
	if isNotFound(err) {
		return &NotFoundError{Source: source, ID: id}
	}
	if isAuthError(err) {
		return dserrors.StoreError(source, "bootstrap fetch", &AuthError{Source: source, Err: err})
	}
	return dserrors.StoreError(source, "bootstrap fetch", err)
}
