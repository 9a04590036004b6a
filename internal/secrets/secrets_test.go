package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	values map[string]string
	calls  int
}

func (f *fakeFetcher) GetSecret(_ context.Context, name, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	v, ok := f.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, errors.New("SecretNotFound")
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func TestNewProvider_AutoSourceInDevelopment(t *testing.T) {
	p, err := NewProvider(&ProviderConfig{Source: SourceAuto, Environment: "development"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, SourceEnvironment, p.Source())
	assert.False(t, p.IsVaultEnabled())
}

func TestNewProvider_VaultRequiresName(t *testing.T) {
	_, err := NewProvider(&ProviderConfig{Source: SourceAuto, Environment: "production"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProvider_EnvironmentSource(t *testing.T) {
	t.Setenv("TEST_SESSION_SIGNING_KEY", "from-env-source")
	p, err := NewProvider(&ProviderConfig{Source: SourceEnvironment}, zap.NewNop())
	require.NoError(t, err)

	v, err := p.GetSecret(context.Background(), "TEST_SESSION_SIGNING_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env-source", v)

	_, err = p.GetSecret(context.Background(), "TEST_MISSING_SECRET")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProvider_EnvOverridesVault(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]string{RedisPassword: "vault-value"}}
	p := &Provider{
		source: SourceVault,
		vault:  newVaultClient(fetcher, &VaultConfig{VaultName: "kv"}, zap.NewNop()),
		logger: zap.NewNop(),
	}

	v, err := p.GetSecretOrEnv(context.Background(), RedisPassword, "TEST_REDIS_PASSWORD_OVERRIDE")
	require.NoError(t, err)
	assert.Equal(t, "vault-value", v)

	t.Setenv("TEST_REDIS_PASSWORD_OVERRIDE", "env-value")
	v, err = p.GetSecretOrEnv(context.Background(), RedisPassword, "TEST_REDIS_PASSWORD_OVERRIDE")
	require.NoError(t, err)
	assert.Equal(t, "env-value", v)
}

func TestVaultClient_CachesUntilTTL(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]string{SessionSigningKey: "k"}}
	vc := newVaultClient(fetcher, &VaultConfig{VaultName: "kv", CacheEnabled: true, CacheTTL: time.Minute}, zap.NewNop())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	vc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		v, err := vc.GetSecret(context.Background(), SessionSigningKey)
		require.NoError(t, err)
		assert.Equal(t, "k", v)
	}
	assert.Equal(t, 1, fetcher.calls)

	now = now.Add(2 * time.Minute)
	_, err := vc.GetSecret(context.Background(), SessionSigningKey)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestVaultClient_MissingSecret(t *testing.T) {
	vc := newVaultClient(&fakeFetcher{}, &VaultConfig{VaultName: "kv"}, zap.NewNop())
	_, err := vc.GetSecret(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestVaultClient_EmptyValueIsNotFound(t *testing.T) {
	vc := newVaultClient(&fakeFetcher{values: map[string]string{FinanceAPIURL: ""}}, &VaultConfig{VaultName: "kv"}, zap.NewNop())
	_, err := vc.GetSecret(context.Background(), FinanceAPIURL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultClient_NoCacheFetchesEveryTime(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]string{DatabasePassword: "pw"}}
	vc := newVaultClient(fetcher, &VaultConfig{VaultName: "kv"}, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := vc.GetSecret(context.Background(), DatabasePassword)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fetcher.calls)
}
