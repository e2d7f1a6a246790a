// Package lambda sends processing jobs as asynchronous Lambda invocations.
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/tendant/video-intake/pkg/intake"
)

// InvokeAPI is the part of the Lambda client the sender needs
type InvokeAPI interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// Sender invokes the processor function with InvocationType Event, so the
// call returns once Lambda has queued the job.
type Sender struct {
	client   InvokeAPI
	function string
}

// New creates a Sender for the function name or ARN using the default AWS
// configuration chain.
func New(ctx context.Context, region, function string) (*Sender, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(awslambda.NewFromConfig(cfg), function)
}

// NewWithClient creates a Sender around client.
func NewWithClient(client InvokeAPI, function string) (*Sender, error) {
	if function == "" {
		return nil, fmt.Errorf("%w: processor function is required", intake.ErrConfiguration)
	}
	return &Sender{client: client, function: function}, nil
}

func (s *Sender) Send(ctx context.Context, job intake.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	out, err := s.client.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName:   aws.String(s.function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke %s: %w", s.function, err)
	}
	if out.StatusCode != http.StatusAccepted {
		return fmt.Errorf("invoke %s: unexpected status %d", s.function, out.StatusCode)
	}
	return nil
}
