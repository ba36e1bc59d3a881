package dafetch

import "golang.org/x/exp/rand"

// Proposal is the kernel contract consumed by the samplers. Kernels carry
// tuned state but no random stream of their own: every stochastic method
// takes the calling worker's private stream, so a kernel clone behaves
// identically on identical draws no matter which worker runs it.
type Proposal interface {
	// Setup binds the kernel to the coarse model before sampling begins.
	// Incompatible pairings (wrong dimension, wrong prior family) must be
	// reported here; nothing may fail later at sampling time.
	Setup(parameters []float64, factory LinkFactory) error

	// MakeProposal draws candidate parameters conditioned on the current
	// link.
	MakeProposal(rng *rand.Rand, current *Link) []float64

	// GetAcceptance returns the Metropolis acceptance probability for the
	// proposed link, in [0, 1].
	GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64

	// Adapt feeds one committed coarse transition into the kernel.
	// jumpingDistance is the displacement from the previous committed step,
	// and accepted holds the outcomes of every genuine committed step
	// before this one, oldest first. The slice is shared; kernels must not
	// retain or mutate it. Non-adaptive kernels ignore the call.
	Adapt(parameters, jumpingDistance []float64, accepted []bool)

	// Clone returns an independent kernel with the same tuned state, for
	// exclusive use by one worker during one round.
	Clone() Proposal

	Symmetric() bool
	Adaptive() bool
}

// TransitionDensity is implemented by asymmetric kernels. LogQ returns the
// log transition density q(from -> to) used as the weight correction in
// multiple-try sampling. Symmetric kernels omit it and contribute zero.
type TransitionDensity interface {
	LogQ(from, to *Link) float64
}
