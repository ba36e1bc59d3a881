package dafetch

import (
	"fmt"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

type poolConfig struct {
	seed   uint64
	msink  metrics.MetricSink
	labels []metrics.Label
}

// PoolOption to pass to `NewPool`.
type PoolOption func(*poolConfig) error

// WithPoolSeed seeds the private random streams of the sub-chain workers.
// Worker i derives its stream from seed+i, so a fixed seed reproduces the
// exact same speculative sections run after run.
func WithPoolSeed(seed uint64) PoolOption {
	return func(c *poolConfig) error {
		c.seed = seed
		return nil
	}
}

// WithPoolMetricSink chooses how worker metrics are collected.
func WithPoolMetricSink(ms metrics.MetricSink) PoolOption {
	return func(c *poolConfig) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithPoolMetricLabels adds static labels to all metrics produced by the
// Pool's workers.
func WithPoolMetricLabels(labels []metrics.Label) PoolOption {
	return func(c *poolConfig) error {
		c.labels = labels
		return nil
	}
}

// Pool owns the long-lived workers that execute speculative coarse
// sub-chains and fine-model evaluations. Each worker holds a private clone
// of its model-evaluation capability and, for sub-chain workers, a private
// random stream; nothing is shared across workers.
//
// A Pool is constructed by the caller (or implicitly by NewDASampler) and
// must be closed by whoever constructed it. Submitted work always runs to
// completion; there is no cancellation.
type Pool struct {
	fetchingRate    int
	subsamplingRate int

	subchain []*subchainWorker
	evals    []*evalWorker

	group  *errgroup.Group
	closed bool
}

// NewPool starts fetchingRate+1 coarse sub-chain workers (one continuation
// per pass-through node, anchor included) and fetchingRate fine evaluation
// workers.
func NewPool(coarse, fine LinkFactory, fetchingRate, subsamplingRate int, opts ...PoolOption) (*Pool, error) {
	if coarse == nil || fine == nil {
		return nil, fmt.Errorf("%w: both link factories are required", ErrInvalidCfg)
	}
	if fetchingRate < 1 {
		return nil, fmt.Errorf("%w: fetching rate must be at least 1", ErrInvalidCfg)
	}
	if subsamplingRate < 0 {
		return nil, fmt.Errorf("%w: subsampling rate must not be negative", ErrInvalidCfg)
	}

	cfg := poolConfig{seed: 1}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}
	if cfg.msink == nil {
		cfg.msink = metrics.Default()
	}

	coarseLabels := append(append([]metrics.Label(nil), cfg.labels...), LabelModel.M("coarse"))
	fineLabels := append(append([]metrics.Label(nil), cfg.labels...), LabelModel.M("fine"))

	p := &Pool{
		fetchingRate:    fetchingRate,
		subsamplingRate: subsamplingRate,
		group:           new(errgroup.Group),
	}
	for i := 0; i <= fetchingRate; i++ {
		w := &subchainWorker{
			factory:     coarse.Clone(),
			rng:         rand.New(rand.NewSource(cfg.seed + uint64(i))),
			fetching:    fetchingRate,
			subsampling: subsamplingRate,
			tasks:       make(chan subchainTask),
			msink:       cfg.msink,
			labels:      coarseLabels,
		}
		p.subchain = append(p.subchain, w)
		p.group.Go(w.loop)
	}
	for i := 0; i < fetchingRate; i++ {
		w := &evalWorker{
			factory: fine.Clone(),
			tasks:   make(chan evalTask),
			msink:   cfg.msink,
			labels:  fineLabels,
			metric:  MetricFineEvalCount,
		}
		p.evals = append(p.evals, w)
		p.group.Go(w.loop)
	}
	return p, nil
}

// submitSubchain hands a bounded sub-chain run to worker i and returns a
// handle for its Section. The caller must collect the whole batch of handles
// before reading any of them (round barrier).
func (p *Pool) submitSubchain(i int, initial *Link, prop Proposal) <-chan *Section {
	out := make(chan *Section, 1)
	p.subchain[i].tasks <- subchainTask{initial: initial, prop: prop, out: out}
	return out
}

// submitEval hands one fine evaluation to worker i.
func (p *Pool) submitEval(i int, parameters []float64) <-chan *Link {
	return p.evals[i].submit(parameters)
}

// Close stops the workers once their in-flight tasks have drained.
func (p *Pool) Close() error {
	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true
	for _, w := range p.subchain {
		close(w.tasks)
	}
	for _, w := range p.evals {
		close(w.tasks)
	}
	return p.group.Wait()
}
