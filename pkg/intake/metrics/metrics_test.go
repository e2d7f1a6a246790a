package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/video-intake/pkg/intake"
)

var _ intake.Observer = (*Metrics)(nil)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveMint("issued")
	m.ObserveMint("issued")
	m.ObserveMint("unauthenticated")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mints.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mints.WithLabelValues("unauthenticated")))

	m.ObserveOutcome(intake.Outcome{State: intake.StateDispatched})
	m.ObserveOutcome(intake.Outcome{State: intake.StateSkipped, Reason: intake.ReasonDuplicate})
	m.ObserveOutcome(intake.Outcome{State: intake.StateSkipped, Reason: intake.ReasonDuplicate})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("dispatched", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("skipped", "duplicate")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveOutcome(intake.Outcome{State: intake.StateSkipped, Reason: intake.ReasonQuotaExceeded})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `video_intake_ingest_events_total{reason="quota-exceeded",state="skipped"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_Registry(t *testing.T) {
	m := New()
	m.ObserveMint("issued")
	m.ObserveMint("failed")

	n, err := testutil.GatherAndCount(m.Registry(), "video_intake_upload_intents_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_Push(t *testing.T) {
	m := New()
	m.ObserveOutcome(intake.Outcome{State: intake.StateDispatched})

	var gotMethod, gotPath string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	require.NoError(t, m.Push(context.Background(), gateway.URL, "video_intake_ingest"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/video_intake_ingest", gotPath)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.ErrorContains(t, m.Push(context.Background(), down.URL, "video_intake_ingest"), "push metrics")
}
