// Package logger builds the zap logger of the dashboard services.
package logger

import (
	"context"
	"fmt"

	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the process logger. Production and json format log JSON;
// everything else logs colored console output.
func NewLogger(cfg *config.LoggingConfig, appCfg *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" || appCfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapCfg.InitialFields = map[string]interface{}{
		"app":         appCfg.Name,
		"environment": appCfg.Environment,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// WithRequest adds request fields to logger
func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
}

// WithUser adds the session user to logger
func WithUser(logger *zap.Logger, user *auth.UserContext) *zap.Logger {
	return logger.With(
		zap.String("user_id", user.UserID.String()),
		zap.String("user_name", user.DisplayName),
		zap.String("session_id", user.SessionID),
	)
}

// FromContext decorates logger with whatever request id and user ctx carries
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := auth.RequestIDFromContext(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}
	if user, ok := auth.FromContext(ctx); ok {
		logger = WithUser(logger, user)
	}
	return logger
}
