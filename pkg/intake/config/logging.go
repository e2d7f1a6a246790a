package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. Production defaults to JSON; a
// configured LOG_FILE receives a rotated copy of every line.
func (c *ServerConfig) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *ServerConfig) newLogger(stdout io.Writer) *slog.Logger {
	var w io.Writer = stdout
	if c.Log.File != "" {
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}

	format := strings.ToLower(c.Log.Format)
	if format == "" {
		format = "text"
		if c.IsProduction() {
			format = "json"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LogEnvSanity logs which settings are present without their values.
func (c *ServerConfig) LogEnvSanity(logger *slog.Logger) {
	logger.Info("env sanity",
		"environment", c.Environment,
		"has_signing_secret", c.SigningSecret != "",
		"has_bucket", c.S3.Bucket != "",
		"region", c.S3.Region,
		"upload_style", c.S3.UploadStyle,
		"auth_mode", c.Auth.Mode,
		"has_identity_provider", c.Auth.ProviderURL != "" && c.Auth.ProviderAPIKey != "",
		"has_jwt_secret", c.Auth.JWTSecret != "",
		"ledger_backend", c.Ledger.Backend,
		"has_database_url", c.Ledger.DatabaseURL != "",
		"has_redis_url", c.Ledger.RedisURL != "",
		"quota_limit", c.Ledger.QuotaLimit,
		"dispatch_mode", c.Dispatch.Mode,
		"has_processor", c.Dispatch.ProcessorARN != "" || c.Dispatch.ProcessorURL != "",
		"anonymous_uploads", c.AllowAnonymous,
		"has_metrics_pushgateway", c.Metrics.PushgatewayURL != "",
	)
	if c.AllowAnonymous && c.IsProduction() {
		logger.Warn("ALLOW_ANON_UPLOAD_URLS is enabled in production")
	}
}
