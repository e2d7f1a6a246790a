package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/video-intake/pkg/intake"
)

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Auth modes
const (
	AuthJWT    = "jwt"
	AuthRemote = "remote"
	AuthNone   = "none"
)

// Dispatch modes
const (
	DispatchLambda  = "lambda"
	DispatchWebhook = "webhook"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// ServerConfig is the configuration of every intake command
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	SigningSecret  string        `env:"UPLOAD_SIGNING_SECRET"`
	IntentTTL      time.Duration `env:"UPLOAD_INTENT_TTL" env-default:"5m"`
	AllowAnonymous bool          `env:"ALLOW_ANON_UPLOAD_URLS" env-default:"false"`

	IngestConcurrency  int  `env:"INGEST_CONCURRENCY" env-default:"4"`
	TagRejectedObjects bool `env:"TAG_REJECTED_OBJECTS" env-default:"true"`

	S3       S3Config
	Auth     AuthConfig
	Ledger   LedgerConfig
	Dispatch DispatchConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// S3Config describes the upload bucket
type S3Config struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	UploadStyle     string `env:"UPLOAD_STYLE" env-default:"put"` // put, post
}

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	Mode            string        `env:"AUTH_MODE" env-default:"remote"` // remote, jwt, none
	ProviderURL     string        `env:"IDENTITY_PROVIDER_URL"`
	ProviderAPIKey  string        `env:"IDENTITY_PROVIDER_API_KEY"`
	ProviderTimeout time.Duration `env:"IDENTITY_PROVIDER_TIMEOUT" env-default:"5s"`
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
}

// LedgerConfig selects the claim ledger and quota store
type LedgerConfig struct {
	Backend     string `env:"LEDGER_BACKEND" env-default:"memory"` // memory, postgres, redis
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_KEY_PREFIX" env-default:"intake:"`
	QuotaLimit  int64  `env:"QUOTA_LIMIT" env-default:"10"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"false"`
}

// DispatchConfig selects where processing jobs are sent
type DispatchConfig struct {
	Mode           string        `env:"DISPATCH_MODE" env-default:"lambda"` // lambda, webhook
	ProcessorARN   string        `env:"PROCESSOR_ARN"`
	ProcessorURL   string        `env:"PROCESSOR_URL"`
	ProcessorToken string        `env:"PROCESSOR_TOKEN"`
	Timeout        time.Duration `env:"PROCESSOR_TIMEOUT" env-default:"10s"`
}

// LogConfig controls log format and optional file output
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" env-default:"info"`
	Format     string `env:"LOG_FORMAT"` // json, text; empty picks by environment
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// MetricsConfig controls where short-lived ingest runs report counters
type MetricsConfig struct {
	PushgatewayURL string `env:"METRICS_PUSHGATEWAY_URL"` // empty disables ingest metrics
	PushJob        string `env:"METRICS_PUSH_JOB" env-default:"video_intake_ingest"`
}

// Load reads the environment and applies opts on top of it.
func Load(opts ...Option) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// WithPort overrides PORT when port is not empty
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port != "" {
			c.Port = port
		}
		return nil
	}
}

// WithDatabaseURL overrides DATABASE_URL when url is not empty
func WithDatabaseURL(url string) Option {
	return func(c *ServerConfig) error {
		if url != "" {
			c.Ledger.DatabaseURL = url
		}
		return nil
	}
}

// Usage describes every environment variable
func Usage() string {
	var cfg ServerConfig
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}

// IsProduction reports whether Environment is "production"
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ValidateServe checks what the mint endpoint needs
func (c *ServerConfig) ValidateServe() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	errs = append(errs, c.validateCommon()...)

	switch c.Auth.Mode {
	case AuthRemote:
		if c.Auth.ProviderURL == "" || c.Auth.ProviderAPIKey == "" {
			errs = append(errs, errors.New("IDENTITY_PROVIDER_URL and IDENTITY_PROVIDER_API_KEY are required for AUTH_MODE=remote"))
		}
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required for AUTH_MODE=jwt"))
		}
	case AuthNone:
		if !c.AllowAnonymous {
			errs = append(errs, errors.New("AUTH_MODE=none requires ALLOW_ANON_UPLOAD_URLS=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE: %s", c.Auth.Mode))
	}

	if c.S3.UploadStyle != "put" && c.S3.UploadStyle != "post" {
		errs = append(errs, fmt.Errorf("UPLOAD_STYLE must be 'put' or 'post', got %q", c.S3.UploadStyle))
	}
	if c.IntentTTL <= 0 {
		errs = append(errs, errors.New("UPLOAD_INTENT_TTL must be positive"))
	}

	return wrapConfig(errs)
}

// ValidateIngest checks what the notification handler needs
func (c *ServerConfig) ValidateIngest() error {
	errs := c.validateCommon()
	errs = append(errs, c.validateLedger()...)

	switch c.Dispatch.Mode {
	case DispatchLambda:
		if c.Dispatch.ProcessorARN == "" {
			errs = append(errs, errors.New("PROCESSOR_ARN is required for DISPATCH_MODE=lambda"))
		}
	case DispatchWebhook:
		if c.Dispatch.ProcessorURL == "" {
			errs = append(errs, errors.New("PROCESSOR_URL is required for DISPATCH_MODE=webhook"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DISPATCH_MODE: %s", c.Dispatch.Mode))
	}

	return wrapConfig(errs)
}

// ValidateMigrate checks what the migrate command needs
func (c *ServerConfig) ValidateMigrate() error {
	if c.Ledger.DatabaseURL == "" {
		return wrapConfig([]error{errors.New("DATABASE_URL is required")})
	}
	return nil
}

func (c *ServerConfig) validateCommon() []error {
	var errs []error
	if c.SigningSecret == "" {
		errs = append(errs, errors.New("UPLOAD_SIGNING_SECRET is required"))
	}
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required"))
	}
	return errs
}

func (c *ServerConfig) validateLedger() []error {
	var errs []error
	switch c.Ledger.Backend {
	case LedgerMemory:
		// Claims would only be unique per process.
		if c.IsProduction() {
			errs = append(errs, errors.New("LEDGER_BACKEND=memory is not allowed in production; use postgres or redis"))
		}
	case LedgerPostgres:
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for LEDGER_BACKEND=postgres"))
		}
	case LedgerRedis:
		if c.Ledger.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for LEDGER_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LEDGER_BACKEND: %s", c.Ledger.Backend))
	}
	if c.Ledger.QuotaLimit < 0 {
		errs = append(errs, errors.New("QUOTA_LIMIT must not be negative"))
	}
	return errs
}

func wrapConfig(errs []error) error {
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", intake.ErrConfiguration, err)
	}
	return nil
}
