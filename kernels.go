package dafetch

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// GaussianRandomWalk proposes from a fixed multivariate normal centred on
// the current state. Symmetric, non-adaptive.
type GaussianRandomWalk struct {
	sigma *mat.SymDense
	dim   int
}

// NewGaussianRandomWalk builds a random-walk kernel with covariance
// scaling²·sigma.
func NewGaussianRandomWalk(sigma *mat.SymDense, scaling float64) *GaussianRandomWalk {
	d := sigma.SymmetricDim()
	scaled := mat.NewSymDense(d, nil)
	scaled.ScaleSym(scaling*scaling, sigma)
	return &GaussianRandomWalk{sigma: scaled, dim: d}
}

func (g *GaussianRandomWalk) Setup(parameters []float64, factory LinkFactory) error {
	if len(parameters) != g.dim {
		return fmt.Errorf("%w: kernel has dimension %d, initial parameters have %d",
			ErrDimension, g.dim, len(parameters))
	}
	if _, ok := distmv.NewNormal(make([]float64, g.dim), g.sigma, nil); !ok {
		return ErrBadCovariance
	}
	return nil
}

func (g *GaussianRandomWalk) MakeProposal(rng *rand.Rand, current *Link) []float64 {
	n, ok := distmv.NewNormal(current.Parameters, g.sigma, rng)
	if !ok {
		// covariance was validated positive definite at Setup.
		panic("dafetch: proposal covariance not positive definite")
	}
	return n.Rand(nil)
}

func (g *GaussianRandomWalk) GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64 {
	return clampProbability(math.Exp(proposal.Posterior - previous.Posterior))
}

func (g *GaussianRandomWalk) Adapt(parameters, jumpingDistance []float64, accepted []bool) {}

func (g *GaussianRandomWalk) Clone() Proposal {
	clone := *g
	return &clone
}

func (g *GaussianRandomWalk) Symmetric() bool { return true }
func (g *GaussianRandomWalk) Adaptive() bool  { return false }

// AdaptiveMetropolis is a random walk whose covariance tracks the running
// covariance of the committed chain (Haario-style recursive estimate with
// epsilon regularization) and whose global scale follows a Robbins-Monro
// recursion on the recent acceptance rate.
type AdaptiveMetropolis struct {
	dim    int
	eps    float64
	period int
	target float64
	gamma  float64

	t        int
	mean     []float64
	cov      *mat.SymDense
	logScale float64

	propCov *mat.SymDense
}

// NewAdaptiveMetropolis builds an adaptive kernel that starts proposing with
// covariance sigma0. period controls how often the global scale is adjusted;
// eps keeps the tracked covariance positive definite.
func NewAdaptiveMetropolis(sigma0 *mat.SymDense, eps float64, period int) *AdaptiveMetropolis {
	if eps <= 0 {
		eps = 1e-6
	}
	if period <= 0 {
		period = 100
	}
	d := sigma0.SymmetricDim()
	cov := mat.NewSymDense(d, nil)
	cov.CopySym(sigma0)
	return &AdaptiveMetropolis{
		dim:    d,
		eps:    eps,
		period: period,
		target: 0.234,
		gamma:  1.0,
		cov:    cov,
	}
}

func (a *AdaptiveMetropolis) Setup(parameters []float64, factory LinkFactory) error {
	if len(parameters) != a.dim {
		return fmt.Errorf("%w: kernel has dimension %d, initial parameters have %d",
			ErrDimension, a.dim, len(parameters))
	}
	a.t = 0
	a.logScale = 0
	a.mean = append([]float64(nil), parameters...)
	a.rebuild()
	if _, ok := distmv.NewNormal(make([]float64, a.dim), a.propCov, nil); !ok {
		return ErrBadCovariance
	}
	return nil
}

func (a *AdaptiveMetropolis) MakeProposal(rng *rand.Rand, current *Link) []float64 {
	n, ok := distmv.NewNormal(current.Parameters, a.propCov, rng)
	if !ok {
		// epsilon regularization keeps the proposal covariance definite.
		panic("dafetch: adaptive covariance not positive definite")
	}
	return n.Rand(nil)
}

func (a *AdaptiveMetropolis) GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64 {
	return clampProbability(math.Exp(proposal.Posterior - previous.Posterior))
}

func (a *AdaptiveMetropolis) Adapt(parameters, jumpingDistance []float64, accepted []bool) {
	a.t++
	t := float64(a.t)

	deltaPrev := make([]float64, a.dim)
	for i := range deltaPrev {
		deltaPrev[i] = parameters[i] - a.mean[i]
		a.mean[i] += deltaPrev[i] / t
	}
	deltaCurr := make([]float64, a.dim)
	for i := range deltaCurr {
		deltaCurr[i] = parameters[i] - a.mean[i]
	}
	for i := 0; i < a.dim; i++ {
		for j := i; j < a.dim; j++ {
			outer := (deltaPrev[i]*deltaCurr[j] + deltaPrev[j]*deltaCurr[i]) / 2
			a.cov.SetSym(i, j, a.cov.At(i, j)+(outer-a.cov.At(i, j))/t)
		}
	}

	if a.t%a.period == 0 && len(accepted) > 0 {
		start := len(accepted) - a.period
		if start < 0 {
			start = 0
		}
		var hits int
		for _, ok := range accepted[start:] {
			if ok {
				hits++
			}
		}
		rate := float64(hits) / float64(len(accepted)-start)
		step := a.gamma / math.Sqrt(float64(a.t/a.period))
		a.logScale += step * (rate - a.target)
	}

	a.rebuild()
}

// rebuild refreshes the cached proposal covariance
// sd·exp(2·logScale)·(cov + eps·I) with sd = 2.38²/dim.
func (a *AdaptiveMetropolis) rebuild() {
	sd := 2.38 * 2.38 / float64(a.dim) * math.Exp(2*a.logScale)
	if a.propCov == nil {
		a.propCov = mat.NewSymDense(a.dim, nil)
	}
	for i := 0; i < a.dim; i++ {
		for j := i; j < a.dim; j++ {
			v := a.cov.At(i, j)
			if i == j {
				v += a.eps
			}
			a.propCov.SetSym(i, j, sd*v)
		}
	}
}

func (a *AdaptiveMetropolis) Clone() Proposal {
	clone := *a
	clone.mean = append([]float64(nil), a.mean...)
	clone.cov = mat.NewSymDense(a.dim, nil)
	clone.cov.CopySym(a.cov)
	clone.propCov = mat.NewSymDense(a.dim, nil)
	clone.propCov.CopySym(a.propCov)
	return &clone
}

func (a *AdaptiveMetropolis) Symmetric() bool { return true }
func (a *AdaptiveMetropolis) Adaptive() bool  { return true }

// CrankNicolson is the preconditioned Crank-Nicolson kernel. It requires the
// coarse factory to expose a zero-mean Gaussian prior and reuses its
// covariance for the proposal noise, which makes the prior term cancel in
// the acceptance ratio: only the likelihood difference remains.
type CrankNicolson struct {
	beta  float64
	dim   int
	sigma *mat.SymDense
	zero  []float64
}

func NewCrankNicolson(beta float64) *CrankNicolson {
	return &CrankNicolson{beta: beta}
}

func (cn *CrankNicolson) Setup(parameters []float64, factory LinkFactory) error {
	if cn.beta <= 0 || cn.beta > 1 {
		return fmt.Errorf("%w: pCN beta must be in (0, 1], got %v", ErrStepParameter, cn.beta)
	}
	holder, ok := factory.(PriorHolder)
	if !ok {
		return fmt.Errorf("%w: factory does not expose its prior", ErrPriorMismatch)
	}
	prior, ok := holder.Prior().(*distmv.Normal)
	if !ok {
		return fmt.Errorf("%w: prior is not multivariate normal", ErrPriorMismatch)
	}
	if prior.Dim() != len(parameters) {
		return fmt.Errorf("%w: prior has dimension %d, initial parameters have %d",
			ErrDimension, prior.Dim(), len(parameters))
	}
	for _, m := range prior.Mean(nil) {
		if m != 0 {
			return fmt.Errorf("%w: prior mean is not zero", ErrPriorMismatch)
		}
	}
	cn.dim = len(parameters)
	cn.sigma = mat.NewSymDense(prior.Dim(), nil)
	prior.CovarianceMatrix(cn.sigma)
	cn.zero = make([]float64, cn.dim)
	return nil
}

func (cn *CrankNicolson) MakeProposal(rng *rand.Rand, current *Link) []float64 {
	n, ok := distmv.NewNormal(cn.zero, cn.sigma, rng)
	if !ok {
		panic("dafetch: prior covariance not positive definite")
	}
	xi := n.Rand(nil)
	sq := math.Sqrt(1 - cn.beta*cn.beta)
	out := make([]float64, cn.dim)
	for i := range out {
		out[i] = sq*current.Parameters[i] + cn.beta*xi[i]
	}
	return out
}

func (cn *CrankNicolson) GetAcceptance(rng *rand.Rand, proposal, previous *Link) float64 {
	return clampProbability(math.Exp(proposal.Likelihood - previous.Likelihood))
}

func (cn *CrankNicolson) Adapt(parameters, jumpingDistance []float64, accepted []bool) {}

func (cn *CrankNicolson) Clone() Proposal {
	clone := *cn
	return &clone
}

func (cn *CrankNicolson) Symmetric() bool { return true }
func (cn *CrankNicolson) Adaptive() bool  { return false }
