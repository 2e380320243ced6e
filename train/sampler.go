package train

import "math/rand"

// Sampler picks the rows used by each batch of a Sampled source.
type Sampler interface {
	Init(nSamples int) error
	// Iterate gives a list of the indices to use. The caller does not
	// modify the slice.
	Iterate() []int
}

// All returns all of the rows at each iteration.
type All struct {
	batch []int
}

func (a *All) Init(nSamples int) error {
	a.batch = make([]int, nSamples)
	for i := range a.batch {
		a.batch[i] = i
	}
	return nil
}

func (a *All) Iterate() []int { return a.batch }

// Stochastic draws random subsets of the rows.
type Stochastic struct {
	BatchSize int
	// If true, rows are drawn independently at random every time. If false,
	// batches walk through a random permutation of the rows.
	Replacement bool
	Rand        *rand.Rand

	nSamples int
	batch    []int
	perm     []int
}

func (s *Stochastic) Init(nSamples int) error {
	if s.BatchSize <= 0 {
		s.BatchSize = 1
	}
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(1))
	}
	s.nSamples = nSamples
	s.batch = make([]int, s.BatchSize)
	if !s.Replacement {
		s.perm = s.Rand.Perm(nSamples)
	}
	return nil
}

func (s *Stochastic) Iterate() []int {
	if s.Replacement {
		for i := range s.batch {
			s.batch[i] = s.Rand.Intn(s.nSamples)
		}
		return s.batch
	}
	n := 0
	for n < s.BatchSize {
		if len(s.perm) == 0 {
			s.perm = s.Rand.Perm(s.nSamples)
		}
		m := copy(s.batch[n:], s.perm)
		s.perm = s.perm[m:]
		n += m
	}
	return s.batch
}
