// Package secrets resolves the dashboard's secret settings from the environment
// or from Azure Key Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Key Vault names of the secrets the dashboard reads
const (
	SessionSigningKey = "SESSION-SIGNING-KEY"
	FinanceAPIURL     = "FINANCE-API-URL"
	DatabaseHost      = "POSTGRES-MAIN-HOST"
	DatabaseUser      = "POSTGRES-MAIN-USER"
	DatabasePassword  = "POSTGRES-MAIN-PASSWORD"
	RedisPassword     = "REDIS-PASSWORD"
)

// ErrNotFound is returned when a secret has no value in its source
var ErrNotFound = errors.New("secret not found")

// SecretSource defines where secrets are loaded from
type SecretSource string

const (
	SourceEnvironment SecretSource = "environment"
	SourceVault       SecretSource = "vault"
	// SourceAuto picks the environment locally and the vault everywhere else
	SourceAuto SecretSource = "auto"
)

// Getter resolves secrets by name; config consumes it so tests can pass a fake
type Getter interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
	GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error)
}

// vaultReader is satisfied by *VaultClient
type vaultReader interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

// Provider reads secrets from a single source, with environment overrides
type Provider struct {
	source SecretSource
	vault  vaultReader
	logger *zap.Logger
}

// ProviderConfig holds configuration for the secrets provider
type ProviderConfig struct {
	Source       SecretSource
	VaultName    string
	Environment  string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// NewProvider creates a provider; a vault source connects to Key Vault immediately
func NewProvider(cfg *ProviderConfig, logger *zap.Logger) (*Provider, error) {
	source := resolveSource(cfg.Source, cfg.Environment)
	p := &Provider{source: source, logger: logger}

	if source == SourceVault {
		if cfg.VaultName == "" {
			return nil, fmt.Errorf("vault name required when using vault secret source")
		}
		vault, err := NewVaultClient(&VaultConfig{
			VaultName:    cfg.VaultName,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vault client: %w", err)
		}
		p.vault = vault
	}

	logger.Info("Secrets provider initialized",
		zap.String("source", string(source)),
		zap.String("environment", cfg.Environment),
	)
	return p, nil
}

func resolveSource(source SecretSource, environment string) SecretSource {
	if source != SourceAuto {
		return source
	}
	switch environment {
	case "development", "local", "test", "":
		return SourceEnvironment
	}
	return SourceVault
}

// GetSecret reads secretName from the source. For the environment source the
// name is an environment variable.
func (p *Provider) GetSecret(ctx context.Context, secretName string) (string, error) {
	switch p.source {
	case SourceEnvironment:
		if value := os.Getenv(secretName); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("environment variable %q: %w", secretName, ErrNotFound)
	case SourceVault:
		if p.vault == nil {
			return "", fmt.Errorf("vault client not initialized")
		}
		return p.vault.GetSecret(ctx, secretName)
	}
	return "", fmt.Errorf("unknown secret source: %s", p.source)
}

// GetSecretOrEnv prefers a set envName over the source
func (p *Provider) GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error) {
	if value := os.Getenv(envName); value != "" {
		p.logger.Debug("Using environment variable override", zap.String("env_name", envName))
		return value, nil
	}
	return p.GetSecret(ctx, secretName)
}

// Source returns the resolved secret source
func (p *Provider) Source() SecretSource {
	return p.source
}

// IsVaultEnabled reports whether secrets come from Key Vault
func (p *Provider) IsVaultEnabled() bool {
	return p.source == SourceVault
}
