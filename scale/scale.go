// Package scale provides nodes that rescale every input component
// independently.
package scale

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/rowwise"
)

// Normal scales the data to have a mean of 0 and a variance of 1
// in each dimension. The variance is the population variance of the
// training data.
type Normal struct {
	node.Base

	n    int
	mean []float64
	m2   []float64

	Mu      []float64
	Sigma   []float64
	uniform []int
}

// NewNormal returns an untrained Normal node.
func NewNormal(opts ...node.Option) *Normal {
	n := &Normal{Base: node.NewBase(1, opts)}
	syncOutput(&n.Base)
	return n
}

func (n *Normal) SetInputDim(d int) error { return setDims(&n.Base, d) }

func (n *Normal) IsInvertible() bool { return true }

// Train merges the column means and squared deviations of x into the
// running statistics.
func (n *Normal) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := n.CheckTrain(x); err != nil {
		return err
	}
	syncOutput(&n.Base)
	r, c := x.Dims()
	if n.mean == nil {
		n.mean = make([]float64, c)
		n.m2 = make([]float64, c)
	}
	col := make([]float64, r)
	total := n.n + r
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mb, vb := stat.MeanVariance(col, nil)
		m2b := 0.0
		if r > 1 {
			m2b = vb * float64(r-1)
		}
		delta := mb - n.mean[j]
		n.mean[j] += delta * float64(r) / float64(total)
		n.m2[j] += m2b + delta*delta*float64(n.n)*float64(r)/float64(total)
	}
	n.n = total
	return nil
}

// StopTraining fixes the scale. Dimensions with zero variance keep a
// standard deviation of 1 and are reported by Uniform.
func (n *Normal) StopTraining(opts ...node.TrainOption) error {
	if err := n.CheckStop(); err != nil {
		return err
	}
	if n.n < 2 {
		return common.Failf(common.ErrNoSamples, "scale needs at least two samples, found %d", n.n)
	}
	n.Mu = cloneFloats(n.mean)
	n.Sigma = make([]float64, len(n.m2))
	n.uniform = nil
	for i, m2 := range n.m2 {
		n.Sigma[i] = math.Sqrt(m2 / float64(n.n))
		if n.Sigma[i] == 0 {
			n.uniform = append(n.uniform, i)
			n.Sigma[i] = 1
		}
	}
	warnUniform(&n.Base, n.uniform)
	n.FinishPhase()
	return nil
}

// Uniform returns the dimensions whose training values were all equal.
func (n *Normal) Uniform() []int { return append([]int(nil), n.uniform...) }

func (n *Normal) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckExecute(x); err != nil {
		return nil, err
	}
	y, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for i, v := range in {
			out[i] = (v - n.Mu[i]) / n.Sigma[i]
		}
	}), x, n.InputDim())
	if err != nil {
		return nil, err
	}
	return n.Cast(y), nil
}

func (n *Normal) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := n.CheckInverse(y, true); err != nil {
		return nil, err
	}
	x, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for i, v := range in {
			out[i] = v*n.Sigma[i] + n.Mu[i]
		}
	}), y, n.InputDim())
	if err != nil {
		return nil, err
	}
	return n.Cast(x), nil
}

func (n *Normal) Copy() (node.Node, error) {
	cp := *n
	cp.mean = cloneFloats(n.mean)
	cp.m2 = cloneFloats(n.m2)
	cp.Mu = cloneFloats(n.Mu)
	cp.Sigma = cloneFloats(n.Sigma)
	cp.uniform = append([]int(nil), n.uniform...)
	return &cp, nil
}

// Linear scales the data to be between 0 and 1 in each dimension.
type Linear struct {
	node.Base

	Min     []float64 // Minimum value of the data
	Max     []float64 // Maximum value of the data
	uniform []int
}

// NewLinear returns an untrained Linear node.
func NewLinear(opts ...node.Option) *Linear {
	l := &Linear{Base: node.NewBase(1, opts)}
	syncOutput(&l.Base)
	return l
}

func (l *Linear) SetInputDim(d int) error { return setDims(&l.Base, d) }

func (l *Linear) IsInvertible() bool { return true }

// Train updates the running minimum and maximum of every dimension.
func (l *Linear) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := l.CheckTrain(x); err != nil {
		return err
	}
	syncOutput(&l.Base)
	r, c := x.Dims()
	if l.Min == nil {
		l.Min = make([]float64, c)
		l.Max = make([]float64, c)
		for i := range l.Min {
			l.Min[i] = math.Inf(1)
			l.Max[i] = math.Inf(-1)
		}
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		l.Min[j] = math.Min(l.Min[j], floats.Min(col))
		l.Max[j] = math.Max(l.Max[j], floats.Max(col))
	}
	return nil
}

// StopTraining fixes the scale. If the minimum and maximum value are
// identical in a dimension, they are moved to that value ± 0.5.
func (l *Linear) StopTraining(opts ...node.TrainOption) error {
	if err := l.CheckStop(); err != nil {
		return err
	}
	if l.Min == nil {
		return common.Failf(common.ErrNoSamples, "scale was stopped before any training data")
	}
	l.uniform = nil
	for i := range l.Min {
		if l.Min[i] == l.Max[i] {
			l.uniform = append(l.uniform, i)
			l.Min[i] -= 0.5
			l.Max[i] += 0.5
		}
	}
	warnUniform(&l.Base, l.uniform)
	l.FinishPhase()
	return nil
}

// Uniform returns the dimensions whose training values were all equal.
func (l *Linear) Uniform() []int { return append([]int(nil), l.uniform...) }

func (l *Linear) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := l.CheckExecute(x); err != nil {
		return nil, err
	}
	y, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for i, v := range in {
			out[i] = (v - l.Min[i]) / (l.Max[i] - l.Min[i])
		}
	}), x, l.InputDim())
	if err != nil {
		return nil, err
	}
	return l.Cast(y), nil
}

func (l *Linear) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := l.CheckInverse(y, true); err != nil {
		return nil, err
	}
	x, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for i, v := range in {
			out[i] = v*(l.Max[i]-l.Min[i]) + l.Min[i]
		}
	}), y, l.InputDim())
	if err != nil {
		return nil, err
	}
	return l.Cast(x), nil
}

func (l *Linear) Copy() (node.Node, error) {
	cp := *l
	cp.Min = cloneFloats(l.Min)
	cp.Max = cloneFloats(l.Max)
	cp.uniform = append([]int(nil), l.uniform...)
	return &cp, nil
}

func setDims(b *node.Base, d int) error {
	if err := b.SetInputDim(d); err != nil {
		return err
	}
	return b.SetOutputDim(d)
}

func syncOutput(b *node.Base) {
	if b.OutputDim() == 0 {
		b.ForceOutputDim(b.InputDim())
	}
}

func warnUniform(b *node.Base, dims []int) {
	if len(dims) > 0 {
		b.Logger().Warn("constant input dimensions", "node", b.ID(), "dims", dims)
	}
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
