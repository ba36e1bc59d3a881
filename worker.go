package dafetch

import (
	"github.com/hashicorp/go-metrics"
	"golang.org/x/exp/rand"
)

type subchainTask struct {
	initial *Link
	prop    Proposal
	out     chan *Section
}

// subchainWorker executes bounded Metropolis sub-chains on its private
// coarse factory clone. All randomness comes from its own stream; the only
// output is the returned Section.
type subchainWorker struct {
	factory     LinkFactory
	rng         *rand.Rand
	fetching    int
	subsampling int
	tasks       chan subchainTask

	msink  metrics.MetricSink
	labels []metrics.Label
}

func (w *subchainWorker) loop() error {
	for task := range w.tasks {
		task.out <- w.run(task.initial, task.prop)
	}
	return nil
}

// run executes fetching blocks of subsampling Metropolis steps each, every
// block terminated by one pass-through marker at which a fine evaluation is
// due.
func (w *subchainWorker) run(initial *Link, prop Proposal) *Section {
	n := w.fetching*(w.subsampling+1) + 1
	sec := &Section{
		Links:    make([]*Link, 0, n),
		Accepted: make([]bool, 0, n),
		IsCoarse: make([]bool, 0, n),
	}
	sec.push(initial, true, false)
	for i := 0; i < w.fetching; i++ {
		for j := 0; j < w.subsampling; j++ {
			params := prop.MakeProposal(w.rng, sec.last())
			candidate := w.factory.CreateLink(params)
			w.msink.IncrCounterWithLabels(MetricCoarseStepCount, 1, w.labels)
			if candidate.Degenerate() {
				w.msink.IncrCounterWithLabels(MetricDegenerateEvalCount, 1, w.labels)
			}
			alpha := prop.GetAcceptance(w.rng, candidate, sec.last())
			if w.rng.Float64() < alpha {
				w.msink.IncrCounterWithLabels(MetricCoarseAcceptCount, 1, w.labels)
				sec.push(candidate, true, true)
			} else {
				sec.push(sec.last(), false, true)
			}
		}
		sec.push(sec.last(), true, false)
	}
	return sec
}

type evalTask struct {
	parameters []float64
	out        chan *Link
}

// evalWorker is a pass-through to a private factory clone; it exists purely
// so evaluations can be dispatched in parallel.
type evalWorker struct {
	factory LinkFactory
	tasks   chan evalTask

	msink  metrics.MetricSink
	labels []metrics.Label
	metric []string
}

func (w *evalWorker) loop() error {
	for task := range w.tasks {
		link := w.factory.CreateLink(task.parameters)
		w.msink.IncrCounterWithLabels(w.metric, 1, w.labels)
		if link.Degenerate() {
			w.msink.IncrCounterWithLabels(MetricDegenerateEvalCount, 1, w.labels)
		}
		task.out <- link
	}
	return nil
}

func (w *evalWorker) submit(parameters []float64) <-chan *Link {
	out := make(chan *Link, 1)
	w.tasks <- evalTask{parameters: parameters, out: out}
	return out
}
