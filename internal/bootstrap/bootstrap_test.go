package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultcache/internal/config"
	dserrors "github.com/systmms/vaultcache/internal/errors"
	"github.com/systmms/vaultcache/internal/logging"
	"github.com/systmms/vaultcache/tests/fakes"
)

const payload = `{"role_id":"role-1","secret_id":"secret-1","address":"https://vault.internal:8200","mount":"secret","environment":"prod"}`

var want = &config.Bootstrap{
	RoleID:      "role-1",
	SecretID:    "secret-1",
	Address:     "https://vault.internal:8200",
	Mount:       "secret",
	Environment: "prod",
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		kind Kind
		id   string
	}{
		{"ssm:/prod/vault/approle", KindSSM, "/prod/vault/approle"},
		{"sm:prod/vault/approle", KindSecretsManager, "prod/vault/approle"},
		{"env:BOOTSTRAP_JSON", KindEnv, "BOOTSTRAP_JSON"},
		{"arn:aws:secretsmanager:us-east-1:123:secret:boot", KindSecretsManager, "arn:aws:secretsmanager:us-east-1:123:secret:boot"},
		{"arn:aws:ssm:us-east-1:123:parameter/boot", KindSSM, "arn:aws:ssm:us-east-1:123:parameter/boot"},
		{"prod/vault/approle", KindSecretsManager, "prod/vault/approle"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			kind, id := Parse(tt.path)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestSecretsManagerLoader(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSecretsManagerClient()
	fake.AddSecretString("prod/vault/approle", payload)
	fake.AddSecretString("broken", `not json`)
	fake.AddError("denied", errors.New("operation error Secrets Manager: GetSecretValue, AccessDeniedException: not authorized"))

	l, err := NewSecretsManagerLoader(context.Background(), config.AWSSettings{},
		WithSecretsManagerClient(fake), WithLogger(logging.Discard()))
	require.NoError(t, err)

	got, err := l.Load(context.Background(), "prod/vault/approle")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = l.Load(context.Background(), "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
	assert.Equal(t, "aws-secretsmanager", nf.Source)

	_, err = l.Load(context.Background(), "broken")
	assert.True(t, dserrors.IsConfigError(err))

	_, err = l.Load(context.Background(), "denied")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	var userErr dserrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "IAM permissions")
}

func TestSecretsManagerLoader_WrappedNotFound(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSecretsManagerClient()
	fake.AddError("gone", &smtypes.ResourceNotFoundException{Message: aws.String("gone")})

	l, err := NewSecretsManagerLoader(context.Background(), config.AWSSettings{},
		WithSecretsManagerClient(fake), WithLogger(logging.Discard()))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), "gone")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSSMLoader(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	fake.AddSecureStringParameter("/prod/vault/approle", payload)
	fake.AddError("/throttled", errors.New("ThrottlingException: Rate exceeded"))

	l, err := NewSSMLoader(context.Background(), config.AWSSettings{},
		WithSSMClient(fake), WithLogger(logging.Discard()))
	require.NoError(t, err)

	got, err := l.Load(context.Background(), "/prod/vault/approle")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, fake.LastDecrypt, "SecureString parameters must be decrypted")

	_, err = l.Load(context.Background(), "/missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "aws-ssm", nf.Source)

	_, err = l.Load(context.Background(), "/throttled")
	var userErr dserrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "rate limit")
}

func TestEnvLoader(t *testing.T) {
	t.Parallel()

	env := map[string]string{"BOOT": payload, "EMPTY": ""}
	l := &EnvLoader{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	got, err := l.Load(context.Background(), "BOOT")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, name := range []string{"EMPTY", "UNSET"} {
		_, err = l.Load(context.Background(), name)
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf, name)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	l := Static(*want)
	got, err := l.Load(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got.RoleID = "mutated"
	again, err := l.Load(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "role-1", again.RoleID)

	_, err = Static(config.Bootstrap{RoleID: "r"}).Load(context.Background(), "")
	assert.True(t, dserrors.IsConfigError(err))
}

func TestRouter(t *testing.T) {
	t.Setenv("VAULTCACHE_TEST_BOOTSTRAP", payload)

	sm := fakes.NewFakeSecretsManagerClient()
	sm.AddSecretString("prod/boot", payload)
	ssmFake := fakes.NewFakeSSMClient()
	ssmFake.AddSecureStringParameter("/prod/boot", payload)

	r := NewRouter(config.AWSSettings{},
		WithSecretsManagerClient(sm),
		WithSSMClient(ssmFake),
		WithLogger(logging.Discard()),
	)
	ctx := context.Background()

	for _, path := range []string{"sm:prod/boot", "prod/boot", "ssm:/prod/boot", "env:VAULTCACHE_TEST_BOOTSTRAP"} {
		got, err := r.Load(ctx, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	assert.EqualValues(t, 2, sm.Calls.Load())
	assert.EqualValues(t, 1, ssmFake.Calls.Load())

	_, err := r.Load(ctx, "ssm:")
	assert.True(t, dserrors.IsConfigError(err))
}

func TestLoadAWSConfig_AssumeRole(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")

	stsFake := &fakes.FakeSTSClient{}
	o := applyOptions([]Option{WithSTSClient(stsFake), WithLogger(logging.Discard())})

	cfg, err := loadAWSConfig(context.Background(), config.AWSSettings{
		AccessKeyID:     "AKIDBASE",
		SecretAccessKey: "base-secret",
		AssumeRoleARN:   "arn:aws:iam::123456789012:role/bootstrap-reader",
	}, o)
	require.NoError(t, err)
	assert.Equal(t, defaultRegion, cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ASIAFAKE", creds.AccessKeyID)
	assert.Equal(t, "fake-session", creds.SessionToken)
	assert.Equal(t, "arn:aws:iam::123456789012:role/bootstrap-reader", stsFake.LastRoleArn)

	_, err = cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stsFake.Calls.Load(), "credentials are cached until expiry")
}

func TestLoadAWSConfig_StaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_PROFILE", "")

	cfg, err := loadAWSConfig(context.Background(), config.AWSSettings{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIDSTATIC",
		SecretAccessKey: "static-secret",
	}, applyOptions([]Option{WithLogger(logging.Discard())}))
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDSTATIC", creds.AccessKeyID)
}
