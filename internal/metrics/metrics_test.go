package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RoundsCompleted.Inc()
	a.WorkerFailures.WithLabelValues("w0", "train").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RoundsCompleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RoundsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.WorkerFailures.WithLabelValues("w0", "train")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.OverallScore.WithLabelValues("w2").Set(0.75)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fedauction_overall_score{worker="w2"} 0.75`)
}
