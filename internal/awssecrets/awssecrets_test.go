package awssecrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSecretsAPI struct {
	calls   int
	failFor int // number of leading calls to fail before succeeding
	out     *secretsmanager.GetSecretValueOutput
	err     error
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.calls <= f.failFor {
		return nil, errors.New("throttled")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestProvider_SecretReturnsStringValue(t *testing.T) {
	api := &fakeSecretsAPI{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("shh")}}
	p := &Provider{client: api, log: zaptest.NewLogger(t)}

	got, err := p.Secret(context.Background(), "jwt-signing-key")
	require.NoError(t, err)
	assert.Equal(t, "shh", string(got))
	assert.Equal(t, 1, api.calls)
}

func TestProvider_SecretPrefersBinaryValue(t *testing.T) {
	api := &fakeSecretsAPI{out: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte{1, 2, 3}}}
	p := &Provider{client: api, log: zaptest.NewLogger(t)}

	got, err := p.Secret(context.Background(), "gateway.key")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestProvider_SecretRetriesTransientFailures(t *testing.T) {
	api := &fakeSecretsAPI{failFor: 2, out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("ok")}}
	p := &Provider{client: api, log: zaptest.NewLogger(t)}

	got, err := p.Secret(context.Background(), "jwt-signing-key")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	assert.Equal(t, 3, api.calls)
}

func TestProvider_SecretGivesUpAfterMaxAttempts(t *testing.T) {
	api := &fakeSecretsAPI{failFor: maxAttempts}
	p := &Provider{client: api, log: zaptest.NewLogger(t)}

	_, err := p.Secret(context.Background(), "jwt-signing-key")
	require.Error(t, err)
	assert.Equal(t, maxAttempts, api.calls)
}

func TestProvider_SecretErrorsOnEmptyValue(t *testing.T) {
	api := &fakeSecretsAPI{out: &secretsmanager.GetSecretValueOutput{}}
	p := &Provider{client: api, log: zaptest.NewLogger(t)}

	_, err := p.Secret(context.Background(), "jwt-signing-key")
	require.Error(t, err)
}
