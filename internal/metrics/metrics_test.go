package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Transmitted()
	r.Transmitted()
	r.Reply("ack")
	r.Retired(ResultError)
	r.Desync()
	r.Depths(7, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.replies.WithLabelValues("ack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retired.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.desyncs))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.pending))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.inFlight))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Transmitted()
	r.Reply("ack")
	r.Depths(1, 1)
	assert.NotNil(t, r.Handler())
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.NotifierFailure()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gwiz_notifier_failures_total 1")
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
