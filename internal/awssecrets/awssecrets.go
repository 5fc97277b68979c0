// Package awssecrets implements internal/collab.SecretProvider against AWS
// Secrets Manager, for deployments that keep the gateway's key material
// (field-encryption key, JWT signing secret) in a managed secret store
// rather than on local disk.
package awssecrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/collab"
	"github.com/mcpmux/gateway/internal/retry"
)

const (
	maxAttempts   = 3
	retryBackoff  = 300 * time.Millisecond
	secretsPrefix = "mcpmux/"
)

// errSecretEmpty marks a permanent (non-retryable) failure: the secret
// exists but carries neither a string nor a binary value.
var errSecretEmpty = errors.New("awssecrets: secret has no value")

// secretsAPI is the subset of *secretsmanager.Client Provider depends on,
// narrowed so tests can substitute a fake.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider resolves named secrets from AWS Secrets Manager, optionally
// through an assumed role rather than the ambient credential chain.
type Provider struct {
	client secretsAPI
	log    *zap.Logger
}

var _ collab.SecretProvider = (*Provider)(nil)

// New builds a Provider. If roleARN is non-empty, every Secrets Manager
// call is made with temporary credentials obtained by assuming that role;
// otherwise the default AWS credential chain (environment, shared config,
// instance/task role) is used directly.
func New(ctx context.Context, roleARN string, log *zap.Logger) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("awssecrets: load AWS config: %w", err)
	}

	if roleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, roleARN))
	}

	return &Provider{client: secretsmanager.NewFromConfig(cfg), log: log}, nil
}

// Secret fetches the named secret's value, retrying transient AWS errors a
// bounded number of times before giving up.
func (p *Provider) Secret(ctx context.Context, name string) ([]byte, error) {
	key := secretsPrefix + name

	var out *secretsmanager.GetSecretValueOutput
	err := retry.If(maxAttempts, retryBackoff, func() error {
		var callErr error
		out, callErr = p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(key)})
		if callErr != nil {
			p.log.Warn("awssecrets: GetSecretValue attempt failed", zap.String("key", key), zap.Error(callErr))
			return callErr
		}
		if out.SecretBinary == nil && out.SecretString == nil {
			return errSecretEmpty
		}
		return nil
	}, func(err error) bool {
		return ctx.Err() == nil && !errors.Is(err, errSecretEmpty)
	})
	if err != nil {
		if errors.Is(err, errSecretEmpty) {
			return nil, fmt.Errorf("awssecrets: secret %s has no value", key)
		}
		return nil, fmt.Errorf("awssecrets: get %s after %d attempts: %w", key, maxAttempts, err)
	}
	if out.SecretBinary != nil {
		return out.SecretBinary, nil
	}
	return []byte(*out.SecretString), nil
}
