package dafetch

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// funcFactory evaluates an arbitrary log-posterior function; the model
// output is the parameters themselves.
type funcFactory struct {
	post func(x []float64) float64
}

func (f *funcFactory) CreateLink(parameters []float64) *Link {
	v := f.post(parameters)
	return &Link{
		Parameters:  parameters,
		ModelOutput: parameters,
		Prior:       v / 2,
		Likelihood:  v / 2,
		Posterior:   v,
	}
}

func (f *funcFactory) Clone() LinkFactory {
	clone := *f
	return &clone
}

// stepKernel deterministically proposes current+delta and accepts every
// coarse step. It makes chain trajectories independent of worker streams,
// which pins down speculative bookkeeping in tests.
type stepKernel struct {
	delta float64
}

func (k *stepKernel) Setup(parameters []float64, factory LinkFactory) error { return nil }

func (k *stepKernel) MakeProposal(rng *rand.Rand, current *Link) []float64 {
	out := make([]float64, len(current.Parameters))
	for i, v := range current.Parameters {
		out[i] = v + k.delta
	}
	return out
}

func (k *stepKernel) GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64 {
	return 1
}

func (k *stepKernel) Adapt(parameters, jumpingDistance []float64, accepted []bool) {}

func (k *stepKernel) Clone() Proposal {
	clone := *k
	return &clone
}

func (k *stepKernel) Symmetric() bool { return true }
func (k *stepKernel) Adaptive() bool  { return false }

// asymStub is an asymmetric kernel that forgets to implement
// TransitionDensity.
type asymStub struct {
	stepKernel
}

func (k *asymStub) Symmetric() bool { return false }

func (k *asymStub) Clone() Proposal {
	clone := *k
	return &clone
}

type adaptCall struct {
	parameters []float64
	jump       []float64
	history    int
}

// recordingKernel logs every Adapt call made on the controller's master
// kernel. Worker clones share the log pointer but never receive Adapt calls.
type recordingKernel struct {
	Proposal
	calls *[]adaptCall
}

func (r *recordingKernel) Adapt(parameters, jumpingDistance []float64, accepted []bool) {
	*r.calls = append(*r.calls, adaptCall{
		parameters: append([]float64(nil), parameters...),
		jump:       append([]float64(nil), jumpingDistance...),
		history:    len(accepted),
	})
	r.Proposal.Adapt(parameters, jumpingDistance, accepted)
}

func (r *recordingKernel) Clone() Proposal {
	return &recordingKernel{Proposal: r.Proposal.Clone(), calls: r.calls}
}

func eye(d int) *mat.SymDense {
	m := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

// gaussFactory builds a PosteriorFactory with a standard normal prior and a
// Gaussian likelihood centred on target.
func gaussFactory(dim int, target float64, seed uint64) *PosteriorFactory {
	prior, ok := distmv.NewNormal(make([]float64, dim), eye(dim), rand.NewSource(seed))
	if !ok {
		panic("prior covariance not positive definite")
	}
	return NewPosteriorFactory(prior,
		func(p []float64) []float64 { return p },
		func(out []float64) float64 {
			var ll float64
			for _, v := range out {
				ll -= 0.5 * (v - target) * (v - target)
			}
			return ll
		})
}
