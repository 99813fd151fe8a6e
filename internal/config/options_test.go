package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/vaultcache/internal/errors"
)

func TestOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	opts := Options{}.WithDefaults()
	assert.Equal(t, time.Hour, opts.Expiration)
	assert.Equal(t, time.Minute, opts.CheckDelay)

	custom := Options{Expiration: time.Second, CheckDelay: 2 * time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.Expiration)
	assert.Equal(t, 2*time.Second, custom.CheckDelay)
}

func TestResolveBootstrapPath(t *testing.T) {
	t.Setenv(EnvBootstrapPath, "")

	_, err := Options{}.ResolveBootstrapPath()
	require.Error(t, err)
	assert.True(t, dserrors.IsConfigError(err))

	t.Setenv(EnvBootstrapPath, "ssm:/from/env")
	p, err := Options{}.ResolveBootstrapPath()
	require.NoError(t, err)
	assert.Equal(t, "ssm:/from/env", p)

	p, err = Options{BootstrapPath: "sm:override"}.ResolveBootstrapPath()
	require.NoError(t, err)
	assert.Equal(t, "sm:override", p)
}

func TestSecretPath(t *testing.T) {
	t.Parallel()

	caller := Caller{ServiceName: "slack-bot"}

	tests := []struct {
		name    string
		opts    Options
		caller  Caller
		env     string
		want    string
		wantErr bool
	}{
		{name: "default convention", caller: caller, env: "prod", want: "prod/slack-bot"},
		{name: "no environment", caller: caller, want: "slack-bot"},
		{name: "static override", opts: Options{Name: "/shared/slack/"}, caller: caller, env: "prod", want: "shared/slack"},
		{
			name: "resolver wins over static",
			opts: Options{
				Name: "ignored",
				NameFunc: func(c Caller, env string) string {
					return env + "/bots/" + c.ServiceName
				},
			},
			caller: caller,
			env:    "dev",
			want:   "dev/bots/slack-bot",
		},
		{name: "missing service", env: "prod", wantErr: true},
		{name: "empty resolver result", opts: Options{NameFunc: func(Caller, string) string { return "/" }}, caller: caller, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.opts.SecretPath(tt.caller, tt.env)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dserrors.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBootstrap(t *testing.T) {
	t.Parallel()

	b, err := ParseBootstrap([]byte(`{
		"role_id": "r-1",
		"secret_id": "s-1",
		"address": "https://vault.internal:8200",
		"mount": "/kv/",
		"environment": "prod"
	}`))
	require.NoError(t, err)
	assert.Equal(t, &Bootstrap{
		RoleID:      "r-1",
		SecretID:    "s-1",
		Address:     "https://vault.internal:8200",
		Mount:       "kv",
		Environment: "prod",
	}, b)
	assert.NotContains(t, b.String(), "s-1")
}

func TestParseBootstrap_CamelCaseAliases(t *testing.T) {
	t.Parallel()

	b, err := ParseBootstrap([]byte(`{"roleId":"r","roleSecret":"s","storeAddress":"http://v","mountPoint":"secret","env":"dev"}`))
	require.NoError(t, err)
	assert.Equal(t, "r", b.RoleID)
	assert.Equal(t, "s", b.SecretID)
	assert.Equal(t, "http://v", b.Address)
	assert.Equal(t, "secret", b.Mount)
	assert.Equal(t, "dev", b.Environment)
}

func TestParseBootstrap_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `role_id=abc`, "bootstrap"},
		{"missing role", `{"secret_id":"s","address":"a","mount":"m","environment":"e"}`, "bootstrap.role_id"},
		{"missing secret", `{"role_id":"r","address":"a","mount":"m","environment":"e"}`, "bootstrap.secret_id"},
		{"blank address", `{"role_id":"r","secret_id":"s","address":"  ","mount":"m","environment":"e"}`, "bootstrap.address"},
		{"missing mount", `{"role_id":"r","secret_id":"s","address":"a","environment":"e"}`, "bootstrap.mount"},
		{"missing environment", `{"role_id":"r","secret_id":"s","address":"a","mount":"m"}`, "bootstrap.environment"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBootstrap([]byte(tt.body))
			var cfgErr dserrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
