package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
	"gopkg.in/yaml.v3"
)

// Environment variables that overlay the configuration file.
const (
	EnvBootstrapPath = "VAULTCACHE_BOOTSTRAP_PATH"
	EnvService       = "VAULTCACHE_SERVICE"
	EnvSecretName    = "VAULTCACHE_SECRET_NAME"
	EnvExpirationMs  = "VAULTCACHE_EXPIRATION_MS"
	EnvCheckDelayMs  = "VAULTCACHE_CHECK_DELAY_MS"
	EnvAWSRegion     = "AWS_REGION"
)

// DefaultPath is the configuration file looked up when --config is not given.
const DefaultPath = "vaultcache.yaml"

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the vaultcache.yaml structure
type Definition struct {
	Version       int           `yaml:"version" json:"version"`
	Service       string        `yaml:"service,omitempty" json:"service,omitempty"`
	BootstrapPath string        `yaml:"bootstrap_path,omitempty" json:"bootstrap_path,omitempty"`
	Name          string        `yaml:"name,omitempty" json:"name,omitempty"`
	ExpirationMs  int64         `yaml:"expiration_ms,omitempty" json:"expiration_ms,omitempty"`
	CheckDelayMs  int64         `yaml:"check_delay_ms,omitempty" json:"check_delay_ms,omitempty"`
	Vault         VaultSettings `yaml:"vault,omitempty" json:"vault,omitempty"`
	AWS           AWSSettings   `yaml:"aws,omitempty" json:"aws,omitempty"`
}

// VaultSettings tunes the connection to the secret store. Address and mount
// come from the bootstrap secret, not from here.
type VaultSettings struct {
	AuthMount string `yaml:"auth_mount,omitempty" json:"auth_mount,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	CACert    string `yaml:"ca_cert,omitempty" json:"ca_cert,omitempty"`
	TLSSkip   bool   `yaml:"tls_skip,omitempty" json:"tls_skip,omitempty"`
}

// AWSSettings configures the bootstrap loaders
type AWSSettings struct {
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Profile         string `yaml:"profile,omitempty" json:"profile,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AssumeRoleARN   string `yaml:"assume_role_arn,omitempty" json:"assume_role_arn,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// Load reads and parses the configuration file, then overlays environment
// variables. A missing file is not an error when the path is the default one:
// the process then runs from environment variables alone.
func (c *Config) Load() error {
	def, err := c.readDefinition()
	if err != nil {
		return err
	}

	def.applyEnv()

	if err := def.validate(); err != nil {
		return err
	}

	c.Definition = def
	return nil
}

func (c *Config) readDefinition() (*Definition, error) {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if c.Path == "" || c.Path == DefaultPath {
				return &Definition{}, nil
			}
			return nil, dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config flag or remove it to run from environment variables",
			}
		}
		return nil, dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw != nil {
		if err := validateSchema(raw); err != nil {
			return nil, err
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "configuration does not match the expected structure",
			Suggestion: err.Error(),
		}
	}

	if def.Version != 0 {
		return nil, dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your vaultcache.yaml file",
		}
	}

	return &def, nil
}

func (d *Definition) applyEnv() {
	if v := os.Getenv(EnvBootstrapPath); v != "" {
		d.BootstrapPath = v
	}
	if v := os.Getenv(EnvService); v != "" {
		d.Service = v
	}
	if v := os.Getenv(EnvSecretName); v != "" {
		d.Name = v
	}
	if v, ok := envInt(EnvExpirationMs); ok {
		d.ExpirationMs = v
	}
	if v, ok := envInt(EnvCheckDelayMs); ok {
		d.CheckDelayMs = v
	}
	if v := os.Getenv(EnvAWSRegion); v != "" && d.AWS.Region == "" {
		d.AWS.Region = v
	}
	if v := os.Getenv("VAULT_NAMESPACE"); v != "" {
		d.Vault.Namespace = v
	}
	if v := os.Getenv("VAULT_CACERT"); v != "" {
		d.Vault.CACert = v
	}
	if v := os.Getenv("VAULT_SKIP_VERIFY"); v == "1" || strings.ToLower(v) == "true" {
		d.Vault.TLSSkip = true
	}
}

func envInt(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (d *Definition) validate() error {
	if d.ExpirationMs < 0 {
		return dserrors.ConfigError{
			Field:      "expiration_ms",
			Value:      d.ExpirationMs,
			Message:    "must not be negative",
			Suggestion: "Omit it to use the default of 3600000 (1 hour)",
		}
	}
	if d.CheckDelayMs < 0 {
		return dserrors.ConfigError{
			Field:      "check_delay_ms",
			Value:      d.CheckDelayMs,
			Message:    "must not be negative",
			Suggestion: "Omit it to use the default of 60000 (1 minute)",
		}
	}
	return nil
}

// Options builds the loader options described by this definition
func (d *Definition) Options() Options {
	return Options{
		Expiration:    time.Duration(d.ExpirationMs) * time.Millisecond,
		CheckDelay:    time.Duration(d.CheckDelayMs) * time.Millisecond,
		BootstrapPath: d.BootstrapPath,
		Name:          d.Name,
	}.WithDefaults()
}

// Timeout returns the store HTTP timeout, zero meaning the client default
func (v VaultSettings) Timeout() time.Duration {
	return time.Duration(v.TimeoutMs) * time.Millisecond
}

// String renders the definition for `--debug` output with credentials masked
func (d *Definition) String() string {
	masked := *d
	if masked.AWS.SecretAccessKey != "" {
		masked.AWS.SecretAccessKey = logging.Secret(masked.AWS.SecretAccessKey).String()
	}
	out, err := json.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(out)
}
