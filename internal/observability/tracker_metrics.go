package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackerCollector exposes metrics for the live position tracker.
type TrackerCollector struct {
	TickDuration      prometheus.Histogram
	TrackedSatellites prometheus.Gauge
	SamplesRecorded   prometheus.Counter
	RecorderFailures  prometheus.Counter
}

// NewTrackerCollector registers tracker metrics against the provided registerer.
func NewTrackerCollector(reg prometheus.Registerer) (*TrackerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_tick_duration_seconds",
		Help:    "Time spent computing and recording positions for one tick.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}), "tracker_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	tracked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracked_satellites",
		Help: "Number of satellites whose positions are being recorded.",
	}), "tracked_satellites")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "position_samples_recorded_total",
		Help: "Position samples written to the store.",
	}), "position_samples_recorded_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "position_recorder_failures_total",
		Help: "Ticks whose samples could not be written to the store.",
	}), "position_recorder_failures_total")
	if err != nil {
		return nil, err
	}

	return &TrackerCollector{
		TickDuration:      tick,
		TrackedSatellites: tracked,
		SamplesRecorded:   samples,
		RecorderFailures:  failures,
	}, nil
}

// ObserveTick records how long one tracker tick took.
func (c *TrackerCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// SetTracked updates the tracked satellite gauge.
func (c *TrackerCollector) SetTracked(count int) {
	if c == nil {
		return
	}
	c.TrackedSatellites.Set(float64(count))
}

// AddSamples counts samples that were persisted.
func (c *TrackerCollector) AddSamples(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.SamplesRecorded.Add(float64(n))
}

// IncRecorderFailures counts one failed write.
func (c *TrackerCollector) IncRecorderFailures() {
	if c == nil {
		return
	}
	c.RecorderFailures.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
