package dafetch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

func TestGaussianRandomWalkSetup(t *testing.T) {
	grw := NewGaussianRandomWalk(eye(2), 0.5)
	require.NoError(t, grw.Setup([]float64{0, 0}, gaussFactory(2, 0, 1)))

	err := grw.Setup([]float64{0, 0, 0}, gaussFactory(3, 0, 1))
	require.ErrorIs(t, err, ErrDimension)
}

func TestGaussianRandomWalkProposal(t *testing.T) {
	grw := NewGaussianRandomWalk(eye(2), 0.1)
	require.NoError(t, grw.Setup([]float64{0, 0}, gaussFactory(2, 0, 1)))

	rng := rand.New(rand.NewSource(3))
	current := &Link{Parameters: []float64{1, -1}}
	p := grw.MakeProposal(rng, current)
	require.Len(t, p, 2)
	assert.NotEqual(t, current.Parameters, p)

	// same stream, same draw
	rng2 := rand.New(rand.NewSource(3))
	assert.Equal(t, p, grw.MakeProposal(rng2, current))
}

func TestGaussianRandomWalkAcceptance(t *testing.T) {
	grw := NewGaussianRandomWalk(eye(1), 1)
	rng := rand.New(rand.NewSource(1))

	up := &Link{Posterior: -1}
	down := &Link{Posterior: -2}
	assert.InDelta(t, math.Exp(-1), grw.GetAcceptance(rng, down, up), 1e-12)
	assert.Equal(t, 1.0, grw.GetAcceptance(rng, up, down))

	bad := &Link{Posterior: math.NaN()}
	assert.Equal(t, 0.0, grw.GetAcceptance(rng, bad, up))
}

func TestAdaptiveMetropolisAdapts(t *testing.T) {
	am := NewAdaptiveMetropolis(eye(2), 1e-6, 10)
	require.NoError(t, am.Setup([]float64{0, 0}, gaussFactory(2, 0, 1)))

	before := mat.NewSymDense(2, nil)
	before.CopySym(am.propCov)

	rng := rand.New(rand.NewSource(9))
	accepted := []bool{}
	params := []float64{0, 0}
	for i := 0; i < 50; i++ {
		jump := []float64{rng.NormFloat64(), rng.NormFloat64()}
		params = []float64{params[0] + jump[0], params[1] + jump[1]}
		am.Adapt(params, jump, accepted)
		accepted = append(accepted, i%3 != 0)
	}

	changed := false
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if am.propCov.At(i, j) != before.At(i, j) {
				changed = true
			}
		}
	}
	assert.True(t, changed, "proposal covariance should track the chain")

	// proposal covariance must stay usable
	_, ok := distmv.NewNormal([]float64{0, 0}, am.propCov, nil)
	assert.True(t, ok)
}

func TestAdaptiveMetropolisCloneIsIndependent(t *testing.T) {
	am := NewAdaptiveMetropolis(eye(1), 1e-6, 5)
	require.NoError(t, am.Setup([]float64{0}, gaussFactory(1, 0, 1)))

	clone := am.Clone().(*AdaptiveMetropolis)
	for i := 0; i < 20; i++ {
		am.Adapt([]float64{float64(i)}, []float64{1}, nil)
	}
	assert.Equal(t, 0, clone.t)
	assert.NotEqual(t, am.mean[0], clone.mean[0])
}

func TestCrankNicolsonSetupValidation(t *testing.T) {
	factory := gaussFactory(2, 1, 1)

	t.Run("valid", func(t *testing.T) {
		cn := NewCrankNicolson(0.3)
		require.NoError(t, cn.Setup([]float64{0, 0}, factory))
	})

	t.Run("bad beta", func(t *testing.T) {
		cn := NewCrankNicolson(1.5)
		require.ErrorIs(t, cn.Setup([]float64{0, 0}, factory), ErrStepParameter)
	})

	t.Run("no prior exposed", func(t *testing.T) {
		cn := NewCrankNicolson(0.3)
		err := cn.Setup([]float64{0, 0}, &funcFactory{post: func([]float64) float64 { return 0 }})
		require.ErrorIs(t, err, ErrPriorMismatch)
	})

	t.Run("nonzero mean", func(t *testing.T) {
		prior, ok := distmv.NewNormal([]float64{1, 0}, eye(2), nil)
		require.True(t, ok)
		shifted := NewPosteriorFactory(prior,
			func(p []float64) []float64 { return p },
			func([]float64) float64 { return 0 })
		cn := NewCrankNicolson(0.3)
		require.ErrorIs(t, cn.Setup([]float64{0, 0}, shifted), ErrPriorMismatch)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cn := NewCrankNicolson(0.3)
		require.ErrorIs(t, cn.Setup([]float64{0, 0, 0}, factory), ErrDimension)
	})
}

func TestCrankNicolsonAcceptanceUsesLikelihoodOnly(t *testing.T) {
	cn := NewCrankNicolson(0.5)
	require.NoError(t, cn.Setup([]float64{0, 0}, gaussFactory(2, 0, 1)))

	rng := rand.New(rand.NewSource(1))
	a := &Link{Prior: -50, Likelihood: -1, Posterior: -51}
	b := &Link{Prior: -2, Likelihood: -3, Posterior: -5}
	// prior difference must not leak into the ratio
	assert.InDelta(t, math.Exp(-2), cn.GetAcceptance(rng, b, a), 1e-12)
}

func TestCrankNicolsonProposalShrinks(t *testing.T) {
	cn := NewCrankNicolson(1)
	require.NoError(t, cn.Setup([]float64{0, 0}, gaussFactory(2, 0, 1)))

	// beta=1 ignores the current state entirely
	rng := rand.New(rand.NewSource(5))
	p1 := cn.MakeProposal(rng, &Link{Parameters: []float64{100, 100}})
	rng2 := rand.New(rand.NewSource(5))
	p2 := cn.MakeProposal(rng2, &Link{Parameters: []float64{-100, -100}})
	assert.Equal(t, p1, p2)
}
