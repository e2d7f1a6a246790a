package intake

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUnauthenticated is returned when no valid principal was supplied at mint time
	ErrUnauthenticated = errors.New("intake: unauthenticated")

	// ErrConfiguration is returned when a required secret or bucket is missing
	ErrConfiguration = errors.New("intake: invalid configuration")

	// ErrMissingMetadata is returned when an object lacks one of the intent metadata fields
	ErrMissingMetadata = errors.New("intake: missing intent metadata")

	// ErrExpiredIntent is returned when the intent expiry has passed
	ErrExpiredIntent = errors.New("intake: upload intent has expired")

	// ErrBadSignature is returned when the intent signature does not match
	ErrBadSignature = errors.New("intake: invalid intent signature")

	// ErrDuplicate is returned when the object key has already been claimed
	ErrDuplicate = errors.New("intake: object already claimed")

	// ErrQuotaExceeded is returned when the user has no quota left
	ErrQuotaExceeded = errors.New("intake: quota exceeded")

	// ErrInfrastructure marks failures of a collaborating service (storage,
	// ledger, quota store, processor). Events failing with it should be retried.
	ErrInfrastructure = errors.New("intake: infrastructure error")
)

// Reason names why an event was skipped.
type Reason string

const (
	ReasonMissingMetadata Reason = "missing-metadata"
	ReasonExpiredIntent   Reason = "expired-intent"
	ReasonBadSignature    Reason = "bad-signature"
	ReasonDuplicate       Reason = "duplicate"
	ReasonQuotaExceeded   Reason = "quota-exceeded"
)

func (r Reason) sentinel() error {
	switch r {
	case ReasonMissingMetadata:
		return ErrMissingMetadata
	case ReasonExpiredIntent:
		return ErrExpiredIntent
	case ReasonBadSignature:
		return ErrBadSignature
	case ReasonDuplicate:
		return ErrDuplicate
	case ReasonQuotaExceeded:
		return ErrQuotaExceeded
	}
	return nil
}

// RejectionError represents a policy rejection of a stored object.
// Rejections are terminal: retrying the same event yields the same result.
type RejectionError struct {
	Key    string
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("object %s rejected: %s", e.Key, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason.sentinel()
}

func reject(key string, reason Reason) error {
	return &RejectionError{Key: key, Reason: reason}
}

// IsRejection returns true if the error is a verification or policy rejection
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// IsRetryable returns true if the error came from a collaborating service
// and the event should be delivered again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

func infraError(op string, err error) error {
	if errors.Is(err, ErrInfrastructure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}
