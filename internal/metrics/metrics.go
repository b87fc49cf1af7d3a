// Package metrics exposes compositor and run metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/composite"
)

// Collector bundles the cloudless metrics. It implements composite.Observer
// so a Compositor can feed it directly.
type Collector struct {
	gatherer prometheus.Gatherer

	CandidatesFetched *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	PixelsFilled      prometheus.Counter
	ComposeDuration   prometheus.Histogram
	RemainingClouds   prometheus.Gauge
	Transitions       *prometheus.CounterVec
	Runs              *prometheus.CounterVec
}

var _ composite.Observer = (*Collector)(nil)

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice on the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.CandidatesFetched, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudless_candidates_fetched_total",
		Help: "Gap-filling candidates retrieved, labeled by result (ok or error).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.FetchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudless_fetch_duration_seconds",
		Help:    "Time to retrieve one candidate raster and mask.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
	})); err != nil {
		return nil, err
	}
	if c.PixelsFilled, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudless_pixels_filled_total",
		Help: "Cloudy pixels replaced by gap-filling candidates.",
	})); err != nil {
		return nil, err
	}
	if c.ComposeDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudless_compose_duration_seconds",
		Help:    "Wall time of one composite, fetches included.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})); err != nil {
		return nil, err
	}
	if c.RemainingClouds, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cloudless_remaining_cloud_pixels",
		Help: "Cloudy pixels left in the composite being built.",
	})); err != nil {
		return nil, err
	}
	if c.Transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudless_compositor_transitions_total",
		Help: "Compositor state transitions, labeled by target state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if c.Runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudless_runs_total",
		Help: "Composite runs, labeled by final state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) OnState(_, to composite.State) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(string(to)).Inc()
}

func (c *Collector) OnFetch(_ composite.CandidateRef, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.CandidatesFetched.WithLabelValues(result).Inc()
	c.FetchDuration.Observe(elapsed.Seconds())
}

func (c *Collector) OnStep(contrib composite.Contribution, remaining int) {
	if c == nil {
		return
	}
	c.PixelsFilled.Add(float64(contrib.Pixels))
	c.RemainingClouds.Set(float64(remaining))
}

func (c *Collector) OnFinish(res *composite.Result, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ComposeDuration.Observe(elapsed.Seconds())
	if res != nil {
		c.RemainingClouds.Set(float64(res.RemainingClouds))
	}
}

// RecordRun counts a finished run by its final state.
func (c *Collector) RecordRun(state string) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(state).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr under /metrics until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrapf(err, "metrics: serve %s", addr)
	}
	return nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, eris.Errorf("metrics: collector already registered with incompatible type: %v", err)
		}
		var zero T
		return zero, eris.Wrap(err, "metrics: register")
	}
	return col, nil
}
