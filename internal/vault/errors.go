package vault

import (
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
)

var (
	// ErrUnauthenticated is returned by reads attempted without a valid token.
	// No request is sent in that case.
	ErrUnauthenticated = errors.New("vault client is not authenticated")

	// ErrSecretNotFound matches every *NotFoundError via errors.Is.
	ErrSecretNotFound = errors.New("secret not found")
)

// NotFoundError reports a KV path with no current secret version.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret not found at path %q", e.Path)
}

// Is lets errors.Is(err, ErrSecretNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrSecretNotFound
}

// ReadError wraps any other failed secret read. StatusCode is zero when the
// request never got an HTTP response.
type ReadError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *ReadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("vault read of %q failed (status %d)", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("vault read of %q failed: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// AuthError wraps a failed login or renewal
type AuthError struct {
	Op         string // "login" or "renew"
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("vault %s failed (status %d)", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("vault %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vault %s failed: %s", e.Op, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status carried by err, or 0 if there is none.
func StatusCode(err error) int {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	var readErr *ReadError
	if errors.As(err, &readErr) {
		return readErr.StatusCode
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return 404
	}
	return 0
}
