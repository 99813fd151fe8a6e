package config

import (
	"fmt"
	"strings"

	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer"},
    "service": {"type": "string"},
    "bootstrap_path": {"type": "string"},
    "name": {"type": "string"},
    "expiration_ms": {"type": "integer", "minimum": 0},
    "check_delay_ms": {"type": "integer", "minimum": 0},
    "vault": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "auth_mount": {"type": "string"},
        "namespace": {"type": "string"},
        "timeout_ms": {"type": "integer", "minimum": 0},
        "ca_cert": {"type": "string"},
        "tls_skip": {"type": "boolean"}
      }
    },
    "aws": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "region": {"type": "string"},
        "profile": {"type": "string"},
        "endpoint": {"type": "string"},
        "assume_role_arn": {"type": "string"},
        "access_key_id": {"type": "string"},
        "secret_access_key": {"type": "string"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// validateSchema checks a decoded vaultcache.yaml document against the
// definition schema so that typos surface as errors instead of silently
// falling back to defaults.
func validateSchema(doc map[string]interface{}) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "configuration file failed schema validation:\n  - " + strings.Join(messages, "\n  - "),
			Suggestion: "Remove unknown keys and check value types",
		}
	}

	return nil
}
