package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/tendant/video-intake/pkg/intake"
	"github.com/tendant/video-intake/pkg/intake/config"
	"github.com/tendant/video-intake/pkg/intake/metrics"
)

func newIngestCmd(a *app) *cobra.Command {
	var eventFile string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Handle S3 object-created events (Lambda runtime, or --event for a local run)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, err := a.newIngestRun(ctx)
			if err != nil {
				return err
			}
			defer r.close()

			if eventFile != "" {
				return r.runEventFile(ctx, eventFile, cmd)
			}

			lambda.StartWithOptions(func(ctx context.Context, event events.S3Event) error {
				_, err := r.handle(ctx, event)
				return err
			}, lambda.WithContext(ctx))
			return nil
		},
	}
	cmd.Flags().StringVar(&eventFile, "event", "", "S3 event JSON file to process once instead of starting the Lambda runtime")
	return cmd
}

// ingestRun is an Ingestor plus the resources one ingest process holds
type ingestRun struct {
	ingestor *intake.Ingestor
	metrics  *metrics.Metrics // nil without a pushgateway
	cfg      config.MetricsConfig
	logger   *slog.Logger
	close    func()
}

func (a *app) newIngestRun(ctx context.Context) (*ingestRun, error) {
	cfg := a.cfg
	if err := cfg.ValidateIngest(); err != nil {
		return nil, err
	}
	cfg.LogEnvSanity(a.logger)

	backend, err := cfg.BuildS3Backend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
	}
	ledger, closeLedger, err := cfg.BuildLedger(ctx, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	sender, err := cfg.BuildSender(ctx)
	if err != nil {
		closeLedger()
		return nil, fmt.Errorf("failed to initialize processor sender: %w", err)
	}

	r := &ingestRun{cfg: cfg.Metrics, logger: a.logger, close: closeLedger}
	deps := config.IngestDeps{
		Backend: backend,
		Ledger:  ledger,
		Sender:  sender,
		Logger:  a.logger,
	}
	if cfg.Metrics.PushgatewayURL != "" {
		r.metrics = metrics.New()
		deps.Observer = r.metrics
	}

	r.ingestor, err = cfg.BuildIngestor(deps)
	if err != nil {
		closeLedger()
		return nil, err
	}
	return r, nil
}

// handle processes event and then pushes the counters. A failed push is
// logged only.
func (r *ingestRun) handle(ctx context.Context, event events.S3Event) ([]intake.Outcome, error) {
	outcomes, err := r.ingestor.HandleS3Event(ctx, event)
	if r.metrics != nil {
		if pushErr := r.metrics.Push(ctx, r.cfg.PushgatewayURL, r.cfg.PushJob); pushErr != nil {
			r.logger.WarnContext(ctx, "metrics push failed", "err", pushErr)
		}
	}
	return outcomes, err
}

type outcomeView struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	UserID string `json:"userId,omitempty"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r *ingestRun) runEventFile(ctx context.Context, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read event file: %w", err)
	}
	var event events.S3Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode event file: %w", err)
	}

	outcomes, handleErr := r.handle(ctx, event)

	views := make([]outcomeView, 0, len(outcomes))
	for _, out := range outcomes {
		v := outcomeView{
			Bucket: out.Bucket,
			Key:    out.Key,
			UserID: out.UserID,
			State:  string(out.State),
			Reason: string(out.Reason),
		}
		if out.Err != nil {
			v.Error = out.Err.Error()
		}
		views = append(views, v)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(views); err != nil {
		return err
	}
	return handleErr
}
