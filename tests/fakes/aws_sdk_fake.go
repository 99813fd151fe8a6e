package fakes

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

// FakeSecretsManagerClient serves GetSecretValue from memory
type FakeSecretsManagerClient struct {
	mu sync.Mutex
	// Secrets maps secret ids to their SecretString
	Secrets map[string]string
	// Errors maps secret ids to errors to return
	Errors map[string]error
	// GetSecretValueFunc allows custom behavior for GetSecretValue
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)

	Calls atomic.Int64
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeSecretsManagerClient) AddSecretString(id, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id] = value
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeSecretsManagerClient) AddError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[id] = err
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.Calls.Add(1)
	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.SecretId)
	if err, exists := f.Errors[id]; exists {
		return nil, err
	}
	value, exists := f.Secrets[id]
	if !exists {
		return nil, &smtypes.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", id)),
		}
	}

	now := time.Now()
	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", id)),
		Name:          params.SecretId,
		SecretString:  aws.String(value),
		VersionId:     aws.String("v1-abc123"),
		VersionStages: []string{"AWSCURRENT"},
		CreatedDate:   &now,
	}, nil
}

// FakeSSMClient serves GetParameter from memory
type FakeSSMClient struct {
	mu sync.Mutex
	// Parameters maps parameter names to their decrypted values
	Parameters map[string]string
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// LastDecrypt records WithDecryption of the most recent call
	LastDecrypt bool

	Calls atomic.Int64
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Errors:     make(map[string]error),
	}
}

// AddSecureStringParameter adds a SecureString parameter to the mock client
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parameters[name] = value
}

// AddError configures the mock to return an error for a specific parameter
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.Calls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	f.LastDecrypt = aws.ToBool(params.WithDecryption)

	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	value, exists := f.Parameters[name]
	if !exists {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", name)),
		}
	}

	now := time.Now()
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:             aws.String(name),
			Type:             ssmtypes.ParameterTypeSecureString,
			Value:            aws.String(value),
			Version:          1,
			LastModifiedDate: &now,
			ARN:              aws.String(fmt.Sprintf("arn:aws:ssm:us-east-1:123456789012:parameter%s", name)),
		},
	}, nil
}

// FakeSTSClient hands out fixed temporary credentials
type FakeSTSClient struct {
	// AssumeRoleFunc allows custom behavior for AssumeRole
	AssumeRoleFunc func(ctx context.Context, params *sts.AssumeRoleInput) (*sts.AssumeRoleOutput, error)

	mu          sync.Mutex
	LastRoleArn string
	Calls       atomic.Int64
}

// AssumeRole mocks the AssumeRole operation
func (f *FakeSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.Calls.Add(1)
	f.mu.Lock()
	f.LastRoleArn = aws.ToString(params.RoleArn)
	f.mu.Unlock()

	if f.AssumeRoleFunc != nil {
		return f.AssumeRoleFunc(ctx, params)
	}

	exp := time.Now().Add(time.Hour)
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("ASIAFAKE"),
			SecretAccessKey: aws.String("fake-secret"),
			SessionToken:    aws.String("fake-session"),
			Expiration:      &exp,
		},
	}, nil
}
