package dafetch

// LinkFactory evaluates a model at a parameter point and wraps the result in
// a Link. Implementations must be deterministic given the parameters and
// safe to replicate across workers via Clone.
type LinkFactory interface {
	CreateLink(parameters []float64) *Link

	// Clone returns an independent copy for exclusive use by one worker.
	Clone() LinkFactory
}

// PriorSampler is implemented by factories that can draw parameters from
// their prior. The sampler uses it to build initial parameters when none are
// supplied.
type PriorSampler interface {
	SamplePrior() []float64
}

// Prior is a log prior density with a sampler. gonum's distmv distributions
// satisfy it directly.
type Prior interface {
	LogProb(x []float64) float64
	Rand(x []float64) []float64
}

// PriorHolder exposes a factory's prior so proposal kernels can validate
// their pairing requirements at setup time.
type PriorHolder interface {
	Prior() Prior
}

// PosteriorFactory is the standard LinkFactory: a prior, a forward model map
// and a log-likelihood over the model output. The posterior is the sum of
// the log prior and log likelihood; no term is ever sanitized here.
type PosteriorFactory struct {
	prior   Prior
	forward func(parameters []float64) []float64
	loglike func(modelOutput []float64) float64
}

func NewPosteriorFactory(
	prior Prior,
	forward func(parameters []float64) []float64,
	loglike func(modelOutput []float64) float64,
) *PosteriorFactory {
	return &PosteriorFactory{
		prior:   prior,
		forward: forward,
		loglike: loglike,
	}
}

func (f *PosteriorFactory) CreateLink(parameters []float64) *Link {
	out := f.forward(parameters)
	lp := f.prior.LogProb(parameters)
	ll := f.loglike(out)
	return &Link{
		Parameters:  parameters,
		ModelOutput: out,
		Prior:       lp,
		Likelihood:  ll,
		Posterior:   lp + ll,
	}
}

func (f *PosteriorFactory) Clone() LinkFactory {
	clone := *f
	return &clone
}

func (f *PosteriorFactory) Prior() Prior { return f.prior }

func (f *PosteriorFactory) SamplePrior() []float64 {
	return f.prior.Rand(nil)
}
