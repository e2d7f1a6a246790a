package intake

import (
	"crypto/hmac"
	"fmt"
	"strconv"
	"time"
)

// Verifier checks the intent metadata attached to a stored object.
// It has no side effects and is safe for concurrent use.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithVerifierClock overrides time.Now
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier for intents signed with secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: signing secret is required", ErrConfiguration)
	}
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates the metadata of the object stored under objectKey.
// It returns nil or a *RejectionError.
func (v *Verifier) Verify(objectKey string, md ObjectMetadata) error {
	_, err := v.VerifyIntent(objectKey, md)
	return err
}

// VerifyIntent validates the metadata and returns the decoded intent.
func (v *Verifier) VerifyIntent(objectKey string, md ObjectMetadata) (Intent, error) {
	userID := md[MetaUserID]
	nonce := md[MetaNonce]
	expRaw := md[MetaExpiry]
	sig := md[MetaSignature]

	if userID == "" || nonce == "" || expRaw == "" || sig == "" {
		return Intent{}, reject(objectKey, ReasonMissingMetadata)
	}

	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return Intent{}, reject(objectKey, ReasonMissingMetadata)
	}

	if v.now().Unix() > exp {
		return Intent{}, reject(objectKey, ReasonExpiredIntent)
	}

	intent := Intent{
		UserID:    userID,
		ObjectKey: objectKey,
		Nonce:     nonce,
		ExpiresAt: exp,
		Signature: sig,
	}

	// Compare signatures using constant-time comparison
	expected := sign(v.secret, intent.Payload())
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return Intent{}, reject(objectKey, ReasonBadSignature)
	}

	return intent, nil
}
