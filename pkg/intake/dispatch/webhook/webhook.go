// Package webhook sends processing jobs to an HTTP endpoint, typically a
// processor running next to a local development stack.
package webhook

import (
	"context"
	"fmt"
	"time"

	resty "github.com/go-resty/resty/v2"

	"github.com/tendant/video-intake/pkg/intake"
)

// DefaultTimeout bounds a single delivery attempt
const DefaultTimeout = 10 * time.Second

// Sender posts jobs as JSON and does not wait for processing to finish.
// Any answer below 400 counts as accepted.
type Sender struct {
	client *resty.Client
	url    string
}

// Option configures a Sender
type Option func(*Sender)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		s.client.SetTimeout(d)
	}
}

// WithHeader adds a static header, e.g. a shared token
func WithHeader(name, value string) Option {
	return func(s *Sender) {
		s.client.SetHeader(name, value)
	}
}

// New creates a Sender posting to url.
func New(url string, opts ...Option) (*Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: processor url is required", intake.ErrConfiguration)
	}
	s := &Sender{
		client: resty.New().
			SetTimeout(DefaultTimeout).
			SetHeader("Content-Type", "application/json"),
		url: url,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sender) Send(ctx context.Context, job intake.Job) error {
	resp, err := s.client.R().SetContext(ctx).
		SetBody(job).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post job: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("processor answered %d", resp.StatusCode())
	}
	return nil
}
