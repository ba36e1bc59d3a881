package dafetch

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

type mtConfig struct {
	logHandler slog.Handler
	msink      metrics.MetricSink
	labels     []metrics.Label
}

// MTOption to pass to `NewMultipleTry`.
type MTOption func(*mtConfig) error

// WithTryLog specifies which `slog.Handler` to use.
func WithTryLog(handler slog.Handler) MTOption {
	return func(c *mtConfig) error {
		c.logHandler = handler
		return nil
	}
}

// WithTryMetricSink chooses how to collect the metrics emitted by the
// proposal's evaluation workers.
func WithTryMetricSink(ms metrics.MetricSink) MTOption {
	return func(c *mtConfig) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithTryMetricLabels adds static labels to all metrics produced by the
// proposal.
func WithTryMetricLabels(labels []metrics.Label) MTOption {
	return func(c *mtConfig) error {
		c.labels = labels
		return nil
	}
}

// MultipleTry wraps any Proposal kernel. Each proposal step draws k
// candidates from the kernel, evaluates them in parallel on per-try workers,
// and picks one by importance weight; the acceptance step draws k-1 fresh
// reference candidates anchored at the chosen point and compares the two
// weighted sets. Valid for symmetric kernels (MTM-II) and, through
// TransitionDensity, asymmetric ones (MTM-I).
type MultipleTry struct {
	kernel Proposal
	k      int

	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label

	workers []*evalWorker
	group   *errgroup.Group
	started bool

	// per-round state, private to the clone that runs the step. The weight
	// set from MakeProposal is kept until GetAcceptance consumes it.
	proposalWeights []float64
	chosen          int
}

// NewMultipleTry wraps kernel with k tries per proposal. Asymmetric kernels
// must implement TransitionDensity; that pairing is checked here, not at
// sampling time.
func NewMultipleTry(kernel Proposal, k int, opts ...MTOption) (*MultipleTry, error) {
	if kernel == nil {
		return nil, fmt.Errorf("%w: a kernel is required", ErrInvalidCfg)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: number of tries must be at least 1, got %d", ErrInvalidCfg, k)
	}
	if _, ok := kernel.(*MultipleTry); ok {
		return nil, fmt.Errorf("%w: multiple-try kernels do not nest", ErrInvalidCfg)
	}
	if !kernel.Symmetric() {
		if _, ok := kernel.(TransitionDensity); !ok {
			return nil, fmt.Errorf("%w: asymmetric kernel does not implement TransitionDensity", ErrInvalidCfg)
		}
	}

	cfg := mtConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	m := &MultipleTry{
		kernel: kernel,
		k:      k,
		msink:  cfg.msink,
		labels: cfg.labels,
	}
	if cfg.logHandler != nil {
		m.logger = slog.New(cfg.logHandler)
	} else {
		m.logger = slog.Default()
	}
	if m.msink == nil {
		m.msink = metrics.Default()
	}
	if kernel.Adaptive() {
		m.logger.Warn("global adaptive scaling with a multiple-try proposal can be unstable")
	}
	return m, nil
}

// Setup binds the wrapped kernel and starts the k per-try evaluation
// workers, each with its own factory clone.
func (m *MultipleTry) Setup(parameters []float64, factory LinkFactory) error {
	if err := m.kernel.Setup(parameters, factory); err != nil {
		return err
	}
	if m.started {
		return nil
	}
	m.group = new(errgroup.Group)
	for i := 0; i < m.k; i++ {
		w := &evalWorker{
			factory: factory.Clone(),
			tasks:   make(chan evalTask),
			msink:   m.msink,
			labels:  m.labels,
			metric:  MetricTryEvalCount,
		}
		m.workers = append(m.workers, w)
		m.group.Go(w.loop)
	}
	m.started = true
	return nil
}

// Close stops the evaluation workers. Call it once, on the instance you
// constructed; clones share the workers.
func (m *MultipleTry) Close() error {
	if !m.started {
		return nil
	}
	m.started = false
	for _, w := range m.workers {
		close(w.tasks)
	}
	return m.group.Wait()
}

func (m *MultipleTry) MakeProposal(rng *rand.Rand, current *Link) []float64 {
	// drawing candidates is cheap and stays on the caller's stream; only
	// the evaluations fan out.
	candidates := make([][]float64, m.k)
	for i := range candidates {
		candidates[i] = m.kernel.MakeProposal(rng, current)
	}
	futs := make([]<-chan *Link, m.k)
	for i, c := range candidates {
		futs[i] = m.workers[i].submit(c)
	}
	links := make([]*Link, m.k)
	for i, fut := range futs {
		links[i] = <-fut
	}

	td, asym := asymmetricKernel(m.kernel)
	m.proposalWeights = make([]float64, m.k)
	for i, l := range links {
		var q float64
		if asym {
			q = td.LogQ(current, l)
		}
		m.proposalWeights[i] = logWeight(l.Posterior, q)
	}

	if allNegInf(m.proposalWeights) {
		// the chain must not stall: pick uniformly and let the acceptance
		// step hard-reject.
		m.chosen = rng.Intn(m.k)
		m.msink.IncrCounterWithLabels(MetricTryFallbackCount, 1, m.labels)
		m.logger.Warn("all multiple-try candidates are degenerate")
		return links[m.chosen].Parameters
	}
	m.chosen = sampleCategorical(rng, m.proposalWeights)
	return links[m.chosen].Parameters
}

func (m *MultipleTry) GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64 {
	// a degenerate chosen candidate rejects outright, with no reference
	// draws wasted on it.
	if math.IsNaN(proposal.Posterior) || allNegInf(m.proposalWeights) {
		return 0
	}

	references := make([][]float64, m.k-1)
	for i := range references {
		references[i] = m.kernel.MakeProposal(rng, proposal)
	}
	futs := make([]<-chan *Link, len(references))
	for i, r := range references {
		futs[i] = m.workers[i].submit(r)
	}

	td, asym := asymmetricKernel(m.kernel)
	referenceWeights := make([]float64, 0, m.k)
	for _, fut := range futs {
		l := <-fut
		var q float64
		if asym {
			q = td.LogQ(proposal, l)
		}
		referenceWeights = append(referenceWeights, logWeight(l.Posterior, q))
	}
	// the chosen candidate's own weight completes the reference set.
	referenceWeights = append(referenceWeights, m.proposalWeights[m.chosen])

	return clampProbability(math.Exp(
		floats.LogSumExp(m.proposalWeights) - floats.LogSumExp(referenceWeights)))
}

func (m *MultipleTry) Adapt(parameters, jumpingDistance []float64, accepted []bool) {
	m.kernel.Adapt(parameters, jumpingDistance, accepted)
}

// Clone returns a proposal that shares the evaluation workers but owns its
// round state and kernel copy, so concurrent sub-chain workers never observe
// each other's weight sets.
func (m *MultipleTry) Clone() Proposal {
	clone := *m
	clone.kernel = m.kernel.Clone()
	clone.proposalWeights = nil
	clone.chosen = 0
	return &clone
}

func (m *MultipleTry) Symmetric() bool { return true }
func (m *MultipleTry) Adaptive() bool  { return m.kernel.Adaptive() }

func asymmetricKernel(p Proposal) (TransitionDensity, bool) {
	if p.Symmetric() {
		return nil, false
	}
	td, ok := p.(TransitionDensity)
	return td, ok
}
