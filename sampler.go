package dafetch

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// DASampler is the speculative delayed-acceptance controller. It drives a
// Pool of coarse sub-chain workers ahead of the validated fine frontier,
// commits the accepted prefix of each speculative round to the permanent
// chains, and discards the rest.
//
// The two chains it produces are append-only: CoarseChain records every
// coarse step taken (pass-through markers included) and FineChain grows by
// exactly one entry per fine accept/reject decision.
type DASampler struct {
	cfg    config
	logger *slog.Logger
	msink  metrics.MetricSink

	coarse LinkFactory
	fine   LinkFactory
	prop   Proposal

	pool     *Pool
	ownsPool bool

	// rng drives the fine accept draws; one uniform per decision, in chain
	// order, so a replay with fetchingRate=1 consumes the same stream.
	rng *rand.Rand

	chainCoarse Chain
	chainFine   Chain
	perfect     []bool

	// accHist holds the outcomes of every committed genuine coarse step, in
	// order; it is what the proposal's Adapt hook observes.
	accHist []bool

	section     *Section
	initialized bool
	closed      bool
}

// NewDASampler validates the configuration and binds the proposal kernel to
// the coarse model. No model evaluation happens here; the first call to
// Sample seeds the chains.
func NewDASampler(coarse, fine LinkFactory, prop Proposal, opts ...Option) (*DASampler, error) {
	if coarse == nil || fine == nil || prop == nil {
		return nil, fmt.Errorf("%w: coarse factory, fine factory and proposal are required", ErrInvalidCfg)
	}

	cfg := config{fetchingRate: 1, subsamplingRate: 1, seed: 1}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	s := &DASampler{
		coarse: coarse,
		fine:   fine,
		prop:   prop,
		rng:    rand.New(rand.NewSource(cfg.seed)),
	}

	if cfg.logHandler != nil {
		s.logger = slog.New(cfg.logHandler)
	} else {
		s.logger = slog.Default()
	}
	if cfg.msink == nil {
		cfg.msink = metrics.Default()
	}
	s.msink = cfg.msink

	if cfg.initial == nil {
		ps, ok := coarse.(PriorSampler)
		if !ok {
			return nil, ErrNoInitial
		}
		cfg.initial = ps.SamplePrior()
	}

	if err := prop.Setup(cfg.initial, coarse); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}

	if cfg.pool != nil {
		if cfg.pool.fetchingRate != cfg.fetchingRate || cfg.pool.subsamplingRate != cfg.subsamplingRate {
			return nil, ErrPoolRates
		}
		s.pool = cfg.pool
	} else {
		pool, err := NewPool(coarse, fine, cfg.fetchingRate, cfg.subsamplingRate,
			WithPoolSeed(cfg.seed+1),
			WithPoolMetricSink(cfg.msink),
			WithPoolMetricLabels(cfg.metricLabels),
		)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.ownsPool = true
	}

	s.cfg = cfg
	return s, nil
}

// Sample extends the fine chain until it holds at least iterations entries.
// The context is honoured between rounds only: dispatched work always runs
// to completion, so cancellation never leaves a half-validated round behind.
func (s *DASampler) Sample(ctx context.Context, iterations int) error {
	if iterations < 1 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidCfg)
	}
	if !s.initialized {
		s.init()
	}
	for s.chainFine.Len() < iterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.round(iterations - s.chainFine.Len())
	}
	return nil
}

// FineChain returns the fine-model chain. The returned struct is shared with
// the sampler and must be treated as read-only.
func (s *DASampler) FineChain() *Chain { return &s.chainFine }

// CoarseChain returns the coarse-model chain, markers included.
func (s *DASampler) CoarseChain() *Chain { return &s.chainCoarse }

// PerfectFetches reports, per round, whether every speculative fine
// candidate was accepted.
func (s *DASampler) PerfectFetches() []bool { return s.perfect }

// Close releases the worker pool if the sampler created it. A caller-owned
// pool is left untouched.
func (s *DASampler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsPool {
		return s.pool.Close()
	}
	return nil
}

// init evaluates the starting point on both tiers, seeds the fine chain
// with one accepted entry and obtains the first speculative Section.
func (s *DASampler) init() {
	seed := s.coarse.CreateLink(s.cfg.initial)
	secFut := s.pool.submitSubchain(0, seed, s.prop.Clone())
	fineFut := s.pool.submitEval(0, s.cfg.initial)
	s.section = <-secFut
	s.chainFine.push(<-fineFut, true)
	s.initialized = true
	s.logger.Debug("sampler initialized",
		slog.Int("dimension", len(s.cfg.initial)),
		slog.Int("fetching_rate", s.cfg.fetchingRate),
		slog.Int("subsampling_rate", s.cfg.subsamplingRate))
}

// round runs one DISPATCH / VALIDATE / COMMIT cycle. At most budget fine
// decisions are taken, so the fine chain never overshoots the requested
// iteration count; speculative work beyond the budget is discarded like any
// other unvalidated suffix.
func (s *DASampler) round(budget int) {
	fetching := s.cfg.fetchingRate

	// DISPATCH: continue a coarse sub-chain from every pass-through node of
	// the current Section and evaluate the non-anchor nodes on the fine
	// model. The whole batch is issued before anything is awaited.
	nodes := s.section.markers()
	secFuts := make([]<-chan *Section, len(nodes))
	for i, node := range nodes {
		secFuts[i] = s.pool.submitSubchain(i, node, s.prop.Clone())
	}
	fineFuts := make([]<-chan *Link, fetching)
	for i, node := range nodes[1:] {
		fineFuts[i] = s.pool.submitEval(i, node.Parameters)
	}
	sections := make([]*Section, len(secFuts))
	for i, fut := range secFuts {
		sections[i] = <-fut
	}
	fineLinks := make([]*Link, fetching)
	for i, fut := range fineFuts {
		fineLinks[i] = <-fut
	}

	// VALIDATE: walk the speculative candidates in order; the first
	// rejection invalidates everything behind it.
	window := fetching
	if budget < window {
		window = budget
	}
	perfect := true
	decided := 0
	for j := 0; j < window; j++ {
		last := s.chainFine.Last()
		alpha := daRatio(fineLinks[j], last, nodes[j], nodes[j+1])
		decided++
		if s.rng.Float64() < alpha {
			s.chainFine.push(fineLinks[j], true)
			s.msink.IncrCounterWithLabels(MetricFineAcceptCount, 1, s.cfg.metricLabels)
		} else {
			s.chainFine.push(last, false)
			perfect = false
			break
		}
	}
	s.perfect = append(s.perfect, perfect)

	// COMMIT: the validated prefix covers one block per decided candidate.
	coarseLength := decided * (s.cfg.subsamplingRate + 1)
	base := s.chainCoarse.Len()
	for i := 0; i < coarseLength; i++ {
		s.chainCoarse.pushCoarse(s.section.Links[i], s.section.Accepted[i], s.section.IsCoarse[i])
	}

	// Feed the committed genuine steps into the proposal strictly in chain
	// order. Every genuine step sits behind the prefix anchor, so its
	// predecessor is always inside the committed chain.
	dim := len(s.cfg.initial)
	for i := 0; i < coarseLength; i++ {
		idx := base + i
		if !s.chainCoarse.IsCoarse[idx] {
			continue
		}
		jump := make([]float64, dim)
		floats.SubTo(jump, s.chainCoarse.Links[idx].Parameters, s.chainCoarse.Links[idx-1].Parameters)
		s.prop.Adapt(s.chainCoarse.Links[idx].Parameters, jump, s.accHist)
		s.accHist = append(s.accHist, s.chainCoarse.Accepted[idx])
	}

	// Restart: the baseline for the next round is the continuation anchored
	// at the last validated node; all other continuations are discarded.
	fineLength := decided
	if !perfect {
		fineLength = decided - 1
	}
	s.section = sections[fineLength]

	if perfect {
		s.msink.IncrCounterWithLabels(MetricPerfectFetchCount, 1, s.cfg.metricLabels)
	}
	s.msink.IncrCounterWithLabels(MetricDiscardedSectionCount, float32(len(nodes)-1), s.cfg.metricLabels)
	s.msink.IncrCounterWithLabels(MetricDiscardedFineEvalCount, float32(fetching-decided), s.cfg.metricLabels)
	s.logger.Debug("round committed",
		slog.Bool("perfect_fetch", perfect),
		slog.Int("fine_length", s.chainFine.Len()),
		slog.Int("coarse_length", s.chainCoarse.Len()))
}

// daRatio is the two-stage delayed-acceptance ratio for a speculative fine
// candidate: the fine posterior difference corrected by the coarse posterior
// difference between the two nodes, because the candidate was picked by a
// coarse-only chain. Any non-finite ratio rejects.
func daRatio(candidate, lastFine, nodePrev, nodeNext *Link) float64 {
	r := math.Exp(candidate.Posterior - lastFine.Posterior +
		nodePrev.Posterior - nodeNext.Posterior)
	if math.IsNaN(r) || math.IsInf(r, 1) {
		return 0
	}
	return r
}
