package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tendant/video-intake/pkg/intake"
	"github.com/tendant/video-intake/pkg/intake/auth"
	"github.com/tendant/video-intake/pkg/intake/dispatch/lambda"
	"github.com/tendant/video-intake/pkg/intake/dispatch/webhook"
	"github.com/tendant/video-intake/pkg/intake/ledger/memory"
	"github.com/tendant/video-intake/pkg/intake/ledger/postgres"
	"github.com/tendant/video-intake/pkg/intake/ledger/redis"
	"github.com/tendant/video-intake/pkg/intake/storage/s3"
)

// Ledger is a claim ledger and quota store in one backend
type Ledger interface {
	intake.ClaimLedger
	intake.QuotaGate
	intake.QuotaAdmin
}

// BuildS3Backend creates the storage backend for the upload bucket
func (c *ServerConfig) BuildS3Backend(ctx context.Context) (*s3.Backend, error) {
	return s3.New(ctx, s3.Config{
		Region:          c.S3.Region,
		Bucket:          c.S3.Bucket,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		Endpoint:        c.S3.Endpoint,
		UsePathStyle:    c.S3.UsePathStyle,
		UploadStyle:     c.S3.UploadStyle,
	})
}

// BuildSigner creates the intent signer around authorizer
func (c *ServerConfig) BuildSigner(authorizer intake.Authorizer, logger *slog.Logger) (*intake.Signer, error) {
	return intake.NewSigner(
		intake.WithSecret(c.SigningSecret),
		intake.WithTTL(c.IntentTTL),
		intake.WithAuthorizer(authorizer),
		intake.WithAnonymousUploads(c.AllowAnonymous),
		intake.WithLogger(logger),
	)
}

// BuildAuthenticator creates the token verifier. It returns nil for
// AUTH_MODE=none.
func (c *ServerConfig) BuildAuthenticator() (auth.Authenticator, error) {
	switch c.Auth.Mode {
	case AuthRemote:
		return auth.NewRemote(c.Auth.ProviderURL, c.Auth.ProviderAPIKey, c.Auth.ProviderTimeout)
	case AuthJWT:
		var opts []auth.JWTOption
		if c.Auth.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(c.Auth.JWTIssuer))
		}
		if c.Auth.JWTAudience != "" {
			opts = append(opts, auth.WithAudience(c.Auth.JWTAudience))
		}
		return auth.NewJWT(c.Auth.JWTSecret, opts...)
	case AuthNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported AUTH_MODE: %s", intake.ErrConfiguration, c.Auth.Mode)
	}
}

// BuildLedger connects the configured ledger backend. The returned close
// function releases its connections.
func (c *ServerConfig) BuildLedger(ctx context.Context, logger *slog.Logger) (Ledger, func(), error) {
	switch c.Ledger.Backend {
	case LedgerMemory:
		return memory.New(c.Ledger.QuotaLimit), func() {}, nil

	case LedgerPostgres:
		pool, err := NewDbPool(ctx, c.Ledger.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if c.Ledger.AutoMigrate {
			if err := postgres.MigratePool(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Info("ledger schema migrated")
		}
		return postgres.NewWithPool(pool, c.Ledger.QuotaLimit), pool.Close, nil

	case LedgerRedis:
		opts, err := goredis.ParseURL(c.Ledger.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid REDIS_URL: %w", intake.ErrConfiguration, err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return redis.New(client, c.Ledger.RedisPrefix, c.Ledger.QuotaLimit), func() { client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: unsupported LEDGER_BACKEND: %s", intake.ErrConfiguration, c.Ledger.Backend)
	}
}

// NewDbPool creates a pgx pool and checks connectivity
func NewDbPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// BuildSender creates the processor sender
func (c *ServerConfig) BuildSender(ctx context.Context) (intake.Sender, error) {
	switch c.Dispatch.Mode {
	case DispatchLambda:
		return lambda.New(ctx, c.S3.Region, c.Dispatch.ProcessorARN)
	case DispatchWebhook:
		opts := []webhook.Option{webhook.WithTimeout(c.Dispatch.Timeout)}
		if c.Dispatch.ProcessorToken != "" {
			opts = append(opts, webhook.WithHeader("Authorization", "Bearer "+c.Dispatch.ProcessorToken))
		}
		return webhook.New(c.Dispatch.ProcessorURL, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported DISPATCH_MODE: %s", intake.ErrConfiguration, c.Dispatch.Mode)
	}
}

// IngestDeps are the collaborators of an Ingestor that BuildIngestor cannot
// create from configuration alone.
type IngestDeps struct {
	Backend  *s3.Backend
	Ledger   Ledger
	Sender   intake.Sender
	Observer intake.Observer
	Logger   *slog.Logger
}

// BuildIngestor wires an Ingestor from deps and the configuration
func (c *ServerConfig) BuildIngestor(deps IngestDeps) (*intake.Ingestor, error) {
	verifier, err := intake.NewVerifier(c.SigningSecret)
	if err != nil {
		return nil, err
	}

	opts := []intake.IngestorOption{
		intake.WithConcurrency(c.IngestConcurrency),
		intake.WithIngestLogger(deps.Logger),
	}
	if c.TagRejectedObjects {
		opts = append(opts, intake.WithRejector(deps.Backend))
	}
	if deps.Observer != nil {
		opts = append(opts, intake.WithObserver(deps.Observer))
	}

	return intake.NewIngestor(
		deps.Backend,
		verifier,
		deps.Ledger,
		deps.Ledger,
		intake.NewDispatcher(deps.Sender, deps.Logger),
		opts...,
	), nil
}
