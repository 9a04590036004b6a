package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapSecrets map[string]string

func (m mapSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func (m mapSecrets) GetSecretOrEnv(ctx context.Context, name, _ string) (string, error) {
	return m.GetSecret(ctx, name)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Identity.ResendCooldownDuration())
	assert.Equal(t, 15*time.Second, cfg.Upstream.TimeoutDuration())
	assert.Equal(t, 8*time.Hour, cfg.Session.TTLDuration())
	assert.Equal(t, "*/15 * * * * *", cfg.Monitor.Schedule)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_BASEURL", "https://finance.example.com/api")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SESSION_SIGNING_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://finance.example.com/api", cfg.Upstream.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Session.SigningKey)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Upstream: config.UpstreamConfig{BaseURL: "http://localhost:8000"},
			Session:  config.SessionConfig{SigningKey: "0123456789abcdef0123456789abcdef"},
			Database: config.DatabaseConfig{Driver: "sqlite"},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Session.SigningKey = "short"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Upstream.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Redis = config.RedisConfig{Enabled: true}
	assert.Error(t, cfg.Validate())
}

func TestApplySecrets(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Host: "localhost", User: "local"}}
	provider := mapSecrets{
		"SESSION-SIGNING-KEY":    "vault-signing-key-vault-signing-key",
		"POSTGRES-MAIN-HOST":     "db.internal",
		"POSTGRES-MAIN-PASSWORD": "p4ss",
		"REDIS-PASSWORD":         "r3dis",
	}

	require.NoError(t, config.ApplySecrets(context.Background(), cfg, provider, zap.NewNop()))

	assert.Equal(t, "vault-signing-key-vault-signing-key", cfg.Session.SigningKey)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "local", cfg.Database.User)
	assert.Equal(t, "p4ss", cfg.Database.Password)
	assert.Equal(t, "r3dis", cfg.Redis.Password)
}

func TestApplySecrets_RequiresSigningKey(t *testing.T) {
	err := config.ApplySecrets(context.Background(), &config.Config{}, mapSecrets{}, zap.NewNop())
	assert.Error(t, err)
}
