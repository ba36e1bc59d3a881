package dafetch

import "errors"

var (
	ErrInvalidCfg = errors.New("sampler: invalid options")
	ErrDimension  = errors.New("sampler: parameter dimension mismatch")
	ErrNoInitial  = errors.New("sampler: no initial parameters given and the coarse factory cannot sample its prior")
	ErrPoolRates  = errors.New("sampler: pool was sized for different fetching/subsampling rates")

	ErrPoolClosed = errors.New("pool: pool is closed")

	ErrPriorMismatch = errors.New("kernel: proposal requires a zero-mean Gaussian prior with matching covariance")
	ErrStepParameter = errors.New("kernel: step parameter out of range")
	ErrBadCovariance = errors.New("kernel: covariance is not positive definite")
)
