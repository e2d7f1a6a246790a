package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Authorization is what a client needs to upload straight to object storage.
// For Method "PUT" the client sends RequiredHeaders with the body to URL;
// for "POST" it submits Fields plus a "file" part as multipart form to URL.
type Authorization struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Fields          map[string]string `json:"fields,omitempty"`
	RequiredHeaders map[string]string `json:"requiredHeaders,omitempty"`
	ExpiresAt       time.Time         `json:"expiresAt"`
}

// Authorizer produces a storage authorization that pins the object key,
// content type and the intent metadata.
type Authorizer interface {
	AuthorizeUpload(ctx context.Context, intent Intent, expiresIn time.Duration) (*Authorization, error)
}

// Grant is the result of a successful mint.
type Grant struct {
	ObjectKey     string
	ContentType   string
	Intent        Intent
	Authorization *Authorization
}

// Signer mints upload intents. It is stateless across calls.
type Signer struct {
	secret         []byte
	ttl            time.Duration
	authorizer     Authorizer
	allowAnonymous bool
	now            func() time.Time
	logger         *slog.Logger
}

// SignerOption configures a Signer
type SignerOption func(*Signer)

// WithSecret sets the HMAC signing secret
func WithSecret(secret string) SignerOption {
	return func(s *Signer) {
		s.secret = []byte(secret)
	}
}

// WithTTL sets how long minted intents stay valid (default 5 minutes)
func WithTTL(ttl time.Duration) SignerOption {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

// WithAuthorizer sets the storage authorizer
func WithAuthorizer(a Authorizer) SignerOption {
	return func(s *Signer) {
		s.authorizer = a
	}
}

// WithAnonymousUploads lets Mint fall back to AnonymousUserID when no user
// is supplied. Never enable it in production.
func WithAnonymousUploads(enabled bool) SignerOption {
	return func(s *Signer) {
		s.allowAnonymous = enabled
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SignerOption {
	return func(s *Signer) {
		s.logger = logger
	}
}

// NewSigner creates a Signer. A missing secret or authorizer is a
// configuration error and no signer is returned.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		ttl:    DefaultIntentTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrConfiguration)
	}
	if s.authorizer == nil {
		return nil, fmt.Errorf("%w: storage authorizer is required", ErrConfiguration)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("%w: intent ttl must be positive", ErrConfiguration)
	}
	if s.allowAnonymous {
		s.logger.Warn("ANONYMOUS UPLOADS ENABLED: upload intents are issued without authentication",
			"user_id", AnonymousUserID)
	}
	return s, nil
}

// Mint issues a new upload intent for userID together with the storage
// authorization that enforces it.
func (s *Signer) Mint(ctx context.Context, userID string) (*Grant, error) {
	if userID == "" {
		if !s.allowAnonymous {
			return nil, ErrUnauthenticated
		}
		s.logger.WarnContext(ctx, "issuing anonymous upload intent", "user_id", AnonymousUserID)
		userID = AnonymousUserID
	}

	intent, err := s.newIntent(userID)
	if err != nil {
		return nil, err
	}

	auth, err := s.authorizer.AuthorizeUpload(ctx, intent, s.ttl)
	if err != nil {
		return nil, infraError("authorize upload", err)
	}

	return &Grant{
		ObjectKey:     intent.ObjectKey,
		ContentType:   VideoContentType,
		Intent:        intent,
		Authorization: auth,
	}, nil
}

func (s *Signer) newIntent(userID string) (Intent, error) {
	key, err := NewObjectKey(userID)
	if err != nil {
		return Intent{}, err
	}
	nonce, err := uuid.NewRandom()
	if err != nil {
		return Intent{}, fmt.Errorf("generate nonce: %w", err)
	}

	intent := Intent{
		UserID:    userID,
		ObjectKey: key,
		Nonce:     nonce.String(),
		ExpiresAt: s.now().Add(s.ttl).Unix(),
	}
	intent.Signature = sign(s.secret, intent.Payload())
	return intent, nil
}
