package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/finance-dashboard/internal/secrets"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Upstream  UpstreamConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Monitor   MonitorConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// UpstreamConfig points at the remote finance REST API that owns invoices and identities
type UpstreamConfig struct {
	BaseURL   string
	Timeout   int // seconds
	UserAgent string
}

// SessionConfig controls the session tokens issued to dashboard browsers
type SessionConfig struct {
	// SigningKey is the HS256 key, loaded from secrets outside development
	SigningKey string
	Issuer     string
	TTL        int // minutes
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	SQLitePath      string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// RedisConfig holds the connection used for OTP flow state and session tokens.
// When disabled, both are kept in process memory.
type RedisConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// IdentityConfig holds settings of the password reset and email change flows
type IdentityConfig struct {
	ResendCooldown int // seconds
	FlowTTL        int // minutes
}

// MonitorConfig controls the system status monitor
type MonitorConfig struct {
	Enabled bool
	// Schedule is a cron expression with a seconds field
	Schedule       string
	RequestTimeout int // seconds
	HistorySize    int
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the limit for unauthenticated requests (per IP)
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the limit for authenticated requests (per session user)
	RequestsPerMinuteAuth int
	// IdentityRequestsPerMinute is the stricter per-IP limit of the OTP endpoints
	IdentityRequestsPerMinute int
	WhitelistIPs              []string
	WhitelistPaths            []string
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// TimeoutDuration returns the upstream request timeout
func (u *UpstreamConfig) TimeoutDuration() time.Duration {
	return time.Duration(u.Timeout) * time.Second
}

// TTLDuration returns the session lifetime
func (s *SessionConfig) TTLDuration() time.Duration {
	return time.Duration(s.TTL) * time.Minute
}

// ResendCooldownDuration returns the OTP resend cooldown
func (i *IdentityConfig) ResendCooldownDuration() time.Duration {
	return time.Duration(i.ResendCooldown) * time.Second
}

// FlowTTLDuration returns how long an unfinished identity flow is kept
func (i *IdentityConfig) FlowTTLDuration() time.Duration {
	return time.Duration(i.FlowTTL) * time.Minute
}

// RequestTimeoutDuration returns the timeout of one monitor refresh
func (m *MonitorConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(m.RequestTimeout) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// IsDevelopment reports whether the app runs in a local environment
func (a *AppConfig) IsDevelopment() bool {
	switch a.Environment {
	case "development", "local", "test", "":
		return true
	}
	return false
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.baseURL is required")
	}
	if len(c.Session.SigningKey) < 32 {
		return fmt.Errorf("session.signingKey must be at least 32 bytes")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	return nil
}

// Load loads configuration from file and environment variables
// This is a basic load that doesn't fetch secrets from vault
// Use LoadWithSecrets for full secret resolution
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = v.GetString("FINANCE_API_URL")
	}
	if cfg.Session.SigningKey == "" {
		cfg.Session.SigningKey = v.GetString("SESSION_SIGNING_KEY")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves secrets from the configured source.
// Key Vault is used when USE_AZURE_KEY_VAULT=true and the environment is staging or production;
// otherwise secrets come from environment variables.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled but environment is not staging or production, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	logger.Info("Azure Key Vault enabled for secrets",
		zap.String("environment", cfg.App.Environment),
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider (USE_AZURE_KEY_VAULT=true requires valid vault): %w", err)
	}

	if err := ApplySecrets(ctx, cfg, provider, logger); err != nil {
		return nil, err
	}

	logger.Info("Secrets loaded from vault successfully")
	return cfg, nil
}

// ApplySecrets overwrites the secret-bearing settings with values from provider.
// The session signing key is mandatory; the rest keep their configured value when missing.
func ApplySecrets(ctx context.Context, cfg *Config, provider secrets.Getter, logger *zap.Logger) error {
	key, err := provider.GetSecretOrEnv(ctx, secrets.SessionSigningKey, "SESSION_SIGNINGKEY")
	if err != nil || key == "" {
		return fmt.Errorf("session signing key not available: %w", err)
	}
	cfg.Session.SigningKey = key

	bindings := []struct {
		secret string
		env    string
		target *string
	}{
		{secrets.FinanceAPIURL, "UPSTREAM_BASEURL", &cfg.Upstream.BaseURL},
		{secrets.DatabaseHost, "DATABASE_HOST", &cfg.Database.Host},
		{secrets.DatabaseUser, "DATABASE_USER", &cfg.Database.User},
		{secrets.DatabasePassword, "DATABASE_PASSWORD", &cfg.Database.Password},
		{secrets.RedisPassword, "REDIS_PASSWORD", &cfg.Redis.Password},
	}
	for _, b := range bindings {
		value, err := provider.GetSecretOrEnv(ctx, b.secret, b.env)
		if err != nil || value == "" {
			logger.Debug("secret not found, keeping configured value", zap.String("secret_name", b.secret))
			continue
		}
		*b.target = value
	}

	// Database name and SSL mode vary per environment and are not kept in the vault
	if name := os.Getenv("DEFAULT_DATABASE"); name != "" {
		cfg.Database.Name = name
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Straye Finance Dashboard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Upstream finance API
	v.SetDefault("upstream.baseURL", "http://localhost:8000/api")
	v.SetDefault("upstream.timeout", 15)
	v.SetDefault("upstream.userAgent", "finance-dashboard")

	// Session tokens
	v.SetDefault("session.issuer", "finance-dashboard")
	v.SetDefault("session.ttl", 480) // 8 hours

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "finance_dashboard")
	v.SetDefault("database.user", "finance_user")
	v.SetDefault("database.password", "finance_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.sqlitePath", "finance-dashboard.db")
	v.SetDefault("database.autoMigrate", false)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "finance-dashboard:")

	// Identity flows
	v.SetDefault("identity.resendCooldown", 60)
	v.SetDefault("identity.flowTTL", 15)

	// System status monitor
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.schedule", "*/15 * * * * *") // every 15 seconds
	v.SetDefault("monitor.requestTimeout", 5)
	v.SetDefault("monitor.historySize", 60)

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)

	// CORS defaults - restrictive by default
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults - secure by default
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000) // 1 year
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 120)
	v.SetDefault("rateLimit.identityRequestsPerMinute", 10)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db", "/health/ready"})
}
