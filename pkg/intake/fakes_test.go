package intake_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tendant/video-intake/pkg/intake"
)

const testSecret = "test-secret"

var errBoom = errors.New("boom")

// fakeAuthorizer returns a PUT authorization carrying the intent headers.
type fakeAuthorizer struct {
	err   error
	calls int
	last  intake.Intent
}

func (f *fakeAuthorizer) AuthorizeUpload(_ context.Context, intent intake.Intent, expiresIn time.Duration) (*intake.Authorization, error) {
	f.calls++
	f.last = intent
	if f.err != nil {
		return nil, f.err
	}
	return &intake.Authorization{
		Method:          "PUT",
		URL:             "https://bucket.example.com/" + intent.ObjectKey,
		RequiredHeaders: intent.Headers(),
		ExpiresAt:       time.Unix(intent.ExpiresAt, 0),
	}, nil
}

// fakeStore plays the object store: uploads land here and notifications
// read metadata back.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]intake.ObjectMetadata
	err      error
	rejected map[string]intake.Reason
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string]intake.ObjectMetadata),
		rejected: make(map[string]intake.Reason),
	}
}

// upload stores metadata the way an S3 PUT with x-amz-meta-* headers would.
func (s *fakeStore) upload(key string, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = intake.NormalizeMetadata(headers)
}

func (s *fakeStore) ObjectMetadata(_ context.Context, _ string, key string) (intake.ObjectMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	md, ok := s.objects[key]
	if !ok {
		return nil, errors.New("NotFound")
	}
	return md, nil
}

func (s *fakeStore) MarkRejected(_ context.Context, _ string, key string, reason intake.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[key] = reason
	return nil
}

// recordingSender records every job it is asked to send.
type recordingSender struct {
	mu   sync.Mutex
	jobs []intake.Job
	err  error
}

func (r *recordingSender) Send(_ context.Context, job intake.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSender) Jobs() []intake.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]intake.Job(nil), r.jobs...)
}

type failingClaims struct{}

func (failingClaims) ClaimOnce(context.Context, string) (bool, error) { return false, errBoom }

type failingQuota struct{}

func (failingQuota) TryConsume(context.Context, string) (bool, error) { return false, errBoom }

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []intake.Outcome
}

func (o *recordingObserver) ObserveOutcome(out intake.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}
