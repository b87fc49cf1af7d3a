package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cloudless/internal/composite"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		var n uint64
		for _, m := range mf.GetMetric() {
			n += m.GetHistogram().GetSampleCount()
		}
		return n
	}
	return 0
}

func TestCollector_Observer(t *testing.T) {
	c, reg := newTestCollector(t)

	c.OnState(composite.StateInit, composite.StateAccumulating)
	c.OnFetch(composite.CandidateRef{ID: "a"}, 2*time.Second, nil)
	c.OnStep(composite.Contribution{Index: 1, ID: "a", Pixels: 40}, 10)
	c.OnFetch(composite.CandidateRef{ID: "b"}, time.Second, errors.New("timeout"))
	c.OnState(composite.StateAccumulating, composite.StateExhausted)
	c.OnFinish(&composite.Result{RemainingClouds: 10}, 5*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.CandidatesFetched.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CandidatesFetched.WithLabelValues("error")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.PixelsFilled))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.RemainingClouds))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues("exhausted")))
	assert.Equal(t, uint64(2), histogramCount(t, reg, "cloudless_fetch_duration_seconds"))
	assert.Equal(t, uint64(1), histogramCount(t, reg, "cloudless_compose_duration_seconds"))
}

func TestCollector_RecordRun(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRun("complete")
	c.RecordRun("complete")
	c.RecordRun("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Runs.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("failed")))
}

func TestCollector_RegisterTwiceReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.RecordRun("complete")
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Runs.WithLabelValues("complete")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.OnState(composite.StateInit, composite.StateAccumulating)
		c.OnFetch(composite.CandidateRef{}, time.Second, nil)
		c.OnStep(composite.Contribution{}, 0)
		c.OnFinish(nil, time.Second)
		c.RecordRun("failed")
	})
}

func TestCollector_Handler(t *testing.T) {
	c, _ := newTestCollector(t)
	c.OnStep(composite.Contribution{Pixels: 7}, 3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "cloudless_pixels_filled_total 7"), body)
	assert.Contains(t, body, "cloudless_remaining_cloud_pixels 3")
}
