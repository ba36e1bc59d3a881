package dafetch

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

type config struct {
	fetchingRate    int
	subsamplingRate int
	initial         []float64
	seed            uint64
	logHandler      slog.Handler
	msink           metrics.MetricSink
	metricLabels    []metrics.Label
	pool            *Pool
}

// Option to pass to `NewDASampler`.
type Option func(*config) error

// WithFetchingRate sets how many speculative fine decisions are kept in
// flight per round. Higher rates hide more fine-model latency at the price
// of more discarded work after a rejection.
func WithFetchingRate(rate int) Option {
	return func(c *config) error {
		if rate < 1 {
			return fmt.Errorf("fetching rate must be at least 1, got %d", rate)
		}
		c.fetchingRate = rate
		return nil
	}
}

// WithSubsamplingRate sets how many coarse Metropolis steps run between two
// fine evaluations. Zero means every coarse node is promoted unchanged.
func WithSubsamplingRate(rate int) Option {
	return func(c *config) error {
		if rate < 0 {
			return fmt.Errorf("subsampling rate must not be negative, got %d", rate)
		}
		c.subsamplingRate = rate
		return nil
	}
}

// WithInitialParameters fixes the chain's starting point. Without it, the
// coarse factory must be able to sample its prior.
func WithInitialParameters(parameters []float64) Option {
	return func(c *config) error {
		c.initial = append([]float64(nil), parameters...)
		return nil
	}
}

// WithSeed seeds the controller's random stream, which drives the fine
// accept/reject draws. Worker streams are seeded via the Pool.
func WithSeed(seed uint64) Option {
	return func(c *config) error {
		c.seed = seed
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to choose how to collect the metrics emitted by
// the sampler.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the
// sampler.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithPool supplies a caller-owned worker pool. The pool's rates must match
// the sampler's, and its lifecycle stays with the caller: Close on the
// sampler will not close a supplied pool.
func WithPool(p *Pool) Option {
	return func(c *config) error {
		c.pool = p
		return nil
	}
}
