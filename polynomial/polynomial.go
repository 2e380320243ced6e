// Package polynomial provides a node expanding its input into all the
// monomials of its components up to a given degree.
package polynomial

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/rowwise"
)

// term is a monomial computed as the product of an earlier term and one
// input component.
type term struct {
	parent int // -1 for degree one terms
	factor int
	last   int
}

// Expansion maps x to every monomial x_i1·x_i2·…·x_ik with i1 <= … <= ik and
// 1 <= k <= degree. The monomials are ordered by degree, then
// lexicographically by index.
type Expansion struct {
	node.Base
	degree int
	terms  []term
}

// NewExpansion returns an expansion node of the given degree.
func NewExpansion(degree int, opts ...node.Option) (*Expansion, error) {
	if degree < 1 {
		return nil, errors.Errorf("polynomial: degree must be positive, found %d", degree)
	}
	e := &Expansion{Base: node.NewBase(0, opts), degree: degree}
	if dim := e.InputDim(); dim > 0 {
		if err := e.SetInputDim(dim); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ExpandedDim returns the number of monomials of degree 1 to degree in dim
// variables.
func ExpandedDim(degree, dim int) int {
	total := 0
	k := 1
	for d := 1; d <= degree; d++ {
		// k = C(dim+d-1, d)
		k = k * (dim + d - 1) / d
		total += k
	}
	return total
}

func buildTerms(degree, dim int) []term {
	terms := make([]term, 0, ExpandedDim(degree, dim))
	for i := 0; i < dim; i++ {
		terms = append(terms, term{parent: -1, factor: i, last: i})
	}
	start := 0
	for d := 2; d <= degree; d++ {
		end := len(terms)
		for p := start; p < end; p++ {
			for j := terms[p].last; j < dim; j++ {
				terms = append(terms, term{parent: p, factor: j, last: j})
			}
		}
		start = end
	}
	return terms
}

// Degree returns the maximum degree of the monomials.
func (e *Expansion) Degree() int { return e.degree }

// SetInputDim fixes the input dimension and with it the output dimension.
func (e *Expansion) SetInputDim(d int) error {
	if err := e.Base.SetInputDim(d); err != nil {
		return err
	}
	if err := e.Base.SetOutputDim(ExpandedDim(e.degree, d)); err != nil {
		return err
	}
	if e.terms == nil {
		e.terms = buildTerms(e.degree, d)
	}
	return nil
}

func (e *Expansion) IsInvertible() bool { return false }

func (e *Expansion) Train(x *mat.Dense, opts ...node.TrainOption) error {
	return e.CheckTrain(x)
}

func (e *Expansion) StopTraining(opts ...node.TrainOption) error {
	return e.CheckStop()
}

func (e *Expansion) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := e.CheckExecute(x); err != nil {
		return nil, err
	}
	if e.terms == nil {
		if err := e.SetInputDim(e.InputDim()); err != nil {
			return nil, err
		}
	}
	y, err := rowwise.Apply(expander(e.terms), x, len(e.terms))
	if err != nil {
		return nil, err
	}
	return e.Cast(y), nil
}

func (e *Expansion) Inverse(y *mat.Dense) (*mat.Dense, error) {
	return nil, e.CheckInverse(y, false)
}

func (e *Expansion) Copy() (node.Node, error) {
	cp := *e
	return &cp, nil
}

type expander []term

func (t expander) NewFunc() rowwise.Func { return t }

func (t expander) Apply(in, out []float64) {
	for i, tm := range t {
		if tm.parent < 0 {
			out[i] = in[tm.factor]
			continue
		}
		out[i] = out[tm.parent] * in[tm.factor]
	}
}
