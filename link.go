package dafetch

import "math"

// Link is one evaluated point in parameter space: a parameter draw together
// with the model output and the log-densities it produced under one model
// tier. A Link is immutable once created; a rejected step re-references the
// previous Link rather than copying it.
type Link struct {
	Parameters  []float64
	ModelOutput []float64

	// log-scale densities. Posterior is Prior + Likelihood and may be NaN
	// when the evaluation was degenerate; it is only coerced to -Inf at the
	// point weights are computed.
	Prior      float64
	Likelihood float64
	Posterior  float64
}

// Degenerate reports whether the evaluation failed to produce a finite
// posterior density.
func (l *Link) Degenerate() bool {
	return math.IsNaN(l.Posterior)
}

// Chain is an ordered, append-only sequence of links with parallel
// acceptance flags. For the coarse chain, IsCoarse distinguishes genuine
// Metropolis steps from the pass-through markers that anchor fine
// evaluations; for the fine chain IsCoarse is nil.
type Chain struct {
	Links    []*Link
	Accepted []bool
	IsCoarse []bool
}

func (c *Chain) Len() int { return len(c.Links) }

func (c *Chain) Last() *Link {
	if len(c.Links) == 0 {
		return nil
	}
	return c.Links[len(c.Links)-1]
}

func (c *Chain) push(l *Link, accepted bool) {
	c.Links = append(c.Links, l)
	c.Accepted = append(c.Accepted, accepted)
}

func (c *Chain) pushCoarse(l *Link, accepted, isCoarse bool) {
	c.push(l, accepted)
	c.IsCoarse = append(c.IsCoarse, isCoarse)
}

// Section is the batch record produced by one speculative sub-chain run.
// Links[0] is the anchor the sub-chain started from (marked as a
// pass-through), followed by fetchingRate blocks of subsamplingRate genuine
// Metropolis steps and one pass-through marker each. A Section is owned by
// the controller until it is committed or discarded.
type Section struct {
	Links    []*Link
	Accepted []bool
	IsCoarse []bool
}

func (s *Section) push(l *Link, accepted, isCoarse bool) {
	s.Links = append(s.Links, l)
	s.Accepted = append(s.Accepted, accepted)
	s.IsCoarse = append(s.IsCoarse, isCoarse)
}

func (s *Section) last() *Link {
	return s.Links[len(s.Links)-1]
}

// markers returns the pass-through nodes in order, anchor first. These are
// the points where fine evaluations are due.
func (s *Section) markers() []*Link {
	var nodes []*Link
	for i, l := range s.Links {
		if !s.IsCoarse[i] {
			nodes = append(nodes, l)
		}
	}
	return nodes
}
