package intake

import (
	"context"
	"fmt"
	"log/slog"
)

// Job is the one-way message sent to the processor.
type Job struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	UserID string `json:"userId"`
}

// Dispatcher fires processing jobs without waiting for their completion.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher around sender.
func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, logger: logger}
}

// Dispatch hands job to the sender. A failed send is logged and returned;
// nothing done before dispatch is rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	if d.sender == nil {
		return fmt.Errorf("%w: dispatcher has no sender", ErrConfiguration)
	}
	if err := d.sender.Send(ctx, job); err != nil {
		d.logger.ErrorContext(ctx, "processor invocation failed",
			"bucket", job.Bucket, "key", job.Key, "user_id", job.UserID, "err", err)
		return infraError("dispatch "+job.Key, err)
	}
	d.logger.InfoContext(ctx, "invoked processor", "key", job.Key, "user_id", job.UserID)
	return nil
}
