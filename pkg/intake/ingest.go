package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// State is the terminal state of a handled event.
type State string

const (
	StateDispatched State = "dispatched"
	StateSkipped    State = "skipped"
	StateFailed     State = "failed"
)

// Outcome describes how one notification ended.
type Outcome struct {
	Bucket string
	Key    string
	UserID string
	State  State
	Reason Reason // set when State is StateSkipped
	Err    error  // set when State is StateFailed
}

// Ingestor runs the verify → claim → quota → dispatch pipeline for storage
// notifications.
type Ingestor struct {
	source      MetadataSource
	verifier    *Verifier
	claims      ClaimLedger
	quota       QuotaGate
	dispatcher  *Dispatcher
	rejector    Rejector
	observer    Observer
	concurrency int
	logger      *slog.Logger
}

// IngestorOption configures an Ingestor
type IngestorOption func(*Ingestor)

// WithRejector tags objects skipped for exhausted quota
func WithRejector(r Rejector) IngestorOption {
	return func(in *Ingestor) {
		in.rejector = r
	}
}

// WithObserver reports every outcome, e.g. to metrics
func WithObserver(o Observer) IngestorOption {
	return func(in *Ingestor) {
		in.observer = o
	}
}

// WithConcurrency sets how many events of one batch are handled at once.
// Values below 2 handle the batch sequentially.
func WithConcurrency(n int) IngestorOption {
	return func(in *Ingestor) {
		in.concurrency = n
	}
}

// WithIngestLogger sets the logger
func WithIngestLogger(logger *slog.Logger) IngestorOption {
	return func(in *Ingestor) {
		in.logger = logger
	}
}

// NewIngestor creates an Ingestor from its collaborators.
func NewIngestor(source MetadataSource, verifier *Verifier, claims ClaimLedger, quota QuotaGate, dispatcher *Dispatcher, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		source:      source,
		verifier:    verifier,
		claims:      claims,
		quota:       quota,
		dispatcher:  dispatcher,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// HandleEvent processes a single notification. Rejections, duplicates and
// exhausted quotas end in StateSkipped with a nil error; failures of a
// collaborator end in StateFailed and return an error matching
// ErrInfrastructure.
func (in *Ingestor) HandleEvent(ctx context.Context, n Notification) (out Outcome, err error) {
	out = Outcome{Bucket: n.Bucket, Key: n.Key}
	defer func() {
		if err != nil {
			out.State = StateFailed
			out.Err = err
		}
		if in.observer != nil {
			in.observer.ObserveOutcome(out)
		}
	}()

	log := in.logger.With("bucket", n.Bucket, "key", n.Key)

	md, err := in.source.ObjectMetadata(ctx, n.Bucket, n.Key)
	if err != nil {
		log.ErrorContext(ctx, "read object metadata failed", "err", err)
		return out, infraError("read metadata of "+n.Key, err)
	}

	intent, err := in.verifier.VerifyIntent(n.Key, md)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			log.InfoContext(ctx, "skip due to verification", "reason", rej.Reason)
			return in.skip(out, rej.Reason), nil
		}
		return out, err
	}
	out.UserID = intent.UserID

	claimed, err := in.claims.ClaimOnce(ctx, n.Key)
	if err != nil {
		log.ErrorContext(ctx, "claim object key failed", "err", err)
		return out, infraError("claim "+n.Key, err)
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate event or replay; already processed")
		return in.skip(out, ReasonDuplicate), nil
	}

	allowed, err := in.quota.TryConsume(ctx, intent.UserID)
	if err != nil {
		log.ErrorContext(ctx, "consume quota failed", "user_id", intent.UserID, "err", err)
		return out, infraError("consume quota of "+intent.UserID, err)
	}
	if !allowed {
		log.InfoContext(ctx, "quota exceeded; skipping processing", "user_id", intent.UserID)
		in.markRejected(ctx, log, n, ReasonQuotaExceeded)
		return in.skip(out, ReasonQuotaExceeded), nil
	}

	job := Job{Bucket: n.Bucket, Key: n.Key, UserID: intent.UserID}
	if err := in.dispatcher.Dispatch(ctx, job); err != nil {
		return out, err
	}

	log.InfoContext(ctx, "processed OK", "user_id", intent.UserID)
	out.State = StateDispatched
	return out, nil
}

// HandleBatch processes every notification of a batch, even when some of
// them fail. Outcomes are returned in input order; the errors of failed
// events are joined.
func (in *Ingestor) HandleBatch(ctx context.Context, batch []Notification) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	errs := make([]error, len(batch))

	workers := min(in.concurrency, len(batch))
	if workers < 2 {
		for i, n := range batch {
			outcomes[i], errs[i] = in.HandleEvent(ctx, n)
		}
		return outcomes, errors.Join(errs...)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, n := range batch {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			outcomes[i], errs[i] = in.HandleEvent(ctx, n)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = infraError("schedule "+n.Key, submitErr)
			outcomes[i] = Outcome{Bucket: n.Bucket, Key: n.Key, State: StateFailed, Err: errs[i]}
		}
	}
	wg.Wait()

	return outcomes, errors.Join(errs...)
}

func (in *Ingestor) skip(out Outcome, reason Reason) Outcome {
	out.State = StateSkipped
	out.Reason = reason
	return out
}

func (in *Ingestor) markRejected(ctx context.Context, log *slog.Logger, n Notification, reason Reason) {
	if in.rejector == nil {
		return
	}
	if err := in.rejector.MarkRejected(ctx, n.Bucket, n.Key, reason); err != nil {
		log.WarnContext(ctx, "mark rejected object failed", "reason", reason, "err", err)
	}
}
