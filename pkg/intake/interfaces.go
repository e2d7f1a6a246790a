package intake

import "context"

// MetadataSource reads the user metadata of a stored object.
type MetadataSource interface {
	ObjectMetadata(ctx context.Context, bucket, key string) (ObjectMetadata, error)
}

// ClaimLedger records which object keys have been taken for processing.
type ClaimLedger interface {
	// ClaimOnce returns true for exactly one caller per key. It must be a
	// single atomic operation on shared storage. A failure of the store is
	// returned as an error and never reported as false.
	ClaimOnce(ctx context.Context, objectKey string) (bool, error)
}

// QuotaGate meters processing per user.
type QuotaGate interface {
	// TryConsume increments the user's counter and returns true only when the
	// counter stays within the user's limit. At the limit it returns false and
	// leaves the counter unchanged.
	TryConsume(ctx context.Context, userID string) (bool, error)
}

// QuotaAdmin is implemented by quota stores that support operator changes.
type QuotaAdmin interface {
	SetLimit(ctx context.Context, userID string, limit int64) error
	Usage(ctx context.Context, userID string) (used, limit int64, err error)
}

// Sender delivers a Job to the processor. It is one way: Send returns once
// the message is accepted and never carries the processor's result.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// Rejector marks an object that was stored but will not be processed so that
// operators can find it.
type Rejector interface {
	MarkRejected(ctx context.Context, bucket, key string, reason Reason) error
}

// Observer receives the outcome of every handled event.
type Observer interface {
	ObserveOutcome(Outcome)
}
