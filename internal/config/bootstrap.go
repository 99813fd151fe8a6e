package config

import (
	"encoding/json"
	"fmt"
	"strings"

	dserrors "github.com/systmms/vaultcache/internal/errors"
)

// Bootstrap is the credential set that lets the process log in to the
// secret store. It is loaded once per process and never mutated.
type Bootstrap struct {
	RoleID      string
	SecretID    string
	Address     string
	Mount       string
	Environment string
}

// bootstrapDocument accepts both the snake_case keys written by the Vault
// tooling and the camelCase keys used by older deploy scripts.
type bootstrapDocument struct {
	RoleID      string `json:"role_id"`
	RoleIDAlt   string `json:"roleId"`
	SecretID    string `json:"secret_id"`
	SecretIDAlt string `json:"roleSecret"`
	Address     string `json:"address"`
	AddressAlt  string `json:"storeAddress"`
	Mount       string `json:"mount"`
	MountAlt    string `json:"mountPoint"`
	Environment string `json:"environment"`
	EnvAlt      string `json:"env"`
}

// ParseBootstrap decodes and validates a bootstrap payload
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	var doc bootstrapDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dserrors.ConfigError{
			Field:      "bootstrap",
			Message:    "bootstrap secret is not a JSON object",
			Suggestion: "Store {\"role_id\",\"secret_id\",\"address\",\"mount\",\"environment\"} as the secret value",
		}
	}

	b := &Bootstrap{
		RoleID:      first(doc.RoleID, doc.RoleIDAlt),
		SecretID:    first(doc.SecretID, doc.SecretIDAlt),
		Address:     first(doc.Address, doc.AddressAlt),
		Mount:       strings.Trim(first(doc.Mount, doc.MountAlt), "/"),
		Environment: first(doc.Environment, doc.EnvAlt),
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate reports the first missing required field
func (b *Bootstrap) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"role_id", b.RoleID},
		{"secret_id", b.SecretID},
		{"address", b.Address},
		{"mount", b.Mount},
		{"environment", b.Environment},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return dserrors.ConfigError{
				Field:      "bootstrap." + r.field,
				Message:    "required field is missing from the bootstrap secret",
				Suggestion: fmt.Sprintf("Add %q to the bootstrap secret", r.field),
			}
		}
	}
	return nil
}

// String never prints the secret ID
func (b *Bootstrap) String() string {
	return fmt.Sprintf("bootstrap{address=%s mount=%s environment=%s role_id=%s}",
		b.Address, b.Mount, b.Environment, b.RoleID)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
