// `dafetch` is a delayed-acceptance MCMC sampler for Bayesian inverse
// problems with two model tiers: a cheap *coarse* approximation and an
// expensive *fine* model whose evaluations dominate runtime.
//
// ## How it works
//
// The `DASampler` runs a Metropolis chain on the coarse model and only
// promotes states to the fine model at a fixed `subsampling` interval,
// correcting the fine acceptance ratio for the coarse screening so the
// stationary distribution of the fine chain is exactly the fine posterior.
//
// To hide fine-model latency, the sampler *speculates*: a `Pool` of workers
// runs `fetchingRate` coarse sub-chains ahead of the validated frontier and
// evaluates the prospective fine candidates concurrently, before any of them
// has been accepted. Each round the controller walks the speculative window
// in order, commits the accepted prefix to the permanent chains, and discards
// the rest. Wasted work is bounded by `fetchingRate`; the statistical
// behaviour is identical to a sequential delayed-acceptance sampler,
// including the order in which an adaptive proposal observes transitions.
//
// The `MultipleTry` wrapper turns any `Proposal` kernel into a multiple-try
// proposal: k candidates are evaluated in parallel, one is picked by
// importance weight, and a generalized acceptance ratio over weighted sets
// keeps detailed balance.
//
// ## Design Principles
//
// > `dafetch` is **boring on failure** and **deterministic under parallelism**.
//
// ### Boring on failure
//
// Model evaluations fail all the time in practice (solver blow-ups, NaN
// likelihoods). A non-finite posterior is never an error: it becomes a −Inf
// weight and the step is rejected. Only construction-time misconfiguration
// returns an error.
//
// ### Deterministic under parallelism
//
// Every worker owns a private random stream and a private clone of its
// model-evaluation capability. Parallel dispatch changes wall-clock time,
// never the sequence of accept/reject decisions or adaptation updates.
package dafetch
