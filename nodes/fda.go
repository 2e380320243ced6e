package nodes

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/covariance"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// FDA performs Fisher discriminant analysis. It trains in two phases, both
// needing class labels: the first collects the total covariance and the
// class means, the second the within-class scatter. The outputs are the
// directions with the smallest ratio of within-class to total variance.
type FDA struct {
	node.Base
	method regularize.Method

	total  *covariance.Matrix
	sums   map[int][]float64
	counts map[int]int
	means  map[int][]float64
	within *covariance.Matrix

	avg []float64
	v   *mat.Dense
	d   []float64
}

// NewFDA returns an untrained FDA node. A nil method solves directly.
func NewFDA(method regularize.Method, opts ...node.Option) *FDA {
	if method == nil {
		method = regularize.None{}
	}
	f := &FDA{
		Base:   node.NewBase(2, opts),
		method: method,
		sums:   make(map[int][]float64),
		counts: make(map[int]int),
	}
	f.total = covariance.New(f.InputDim())
	f.within = covariance.New(f.InputDim())
	return f
}

func (f *FDA) IsInvertible() bool { return true }

// Train needs one label per sample through node.Labels.
func (f *FDA) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := f.CheckTrain(x); err != nil {
		return err
	}
	labels := node.CollectTrainOptions(opts).Labels
	r, c := x.Dims()
	if len(labels) != r {
		return &common.DimensionMismatch{What: "number of labels", Expected: r, Found: len(labels)}
	}
	if f.Phase() == 0 {
		if err := f.total.Update(x); err != nil {
			return err
		}
		for i, l := range labels {
			sum, ok := f.sums[l]
			if !ok {
				sum = make([]float64, c)
				f.sums[l] = sum
			}
			floats.Add(sum, x.RawRowView(i))
			f.counts[l]++
		}
		return nil
	}
	centered := mat.DenseCopyOf(x)
	for i, l := range labels {
		mean, ok := f.means[l]
		if !ok {
			return errors.Errorf("fda: label %d was not seen in the first training phase", l)
		}
		floats.Sub(centered.RawRowView(i), mean)
	}
	return f.within.Update(centered)
}

func (f *FDA) StopTraining(opts ...node.TrainOption) error {
	if err := f.CheckStop(); err != nil {
		return err
	}
	if f.Phase() == 0 {
		if len(f.counts) == 0 {
			return common.Failf(common.ErrNoSamples, "fda needs labelled samples")
		}
		f.means = make(map[int][]float64, len(f.sums))
		for l, sum := range f.sums {
			mean := make([]float64, len(sum))
			floats.ScaleTo(mean, 1/float64(f.counts[l]), sum)
			f.means[l] = mean
		}
		f.FinishPhase()
		return nil
	}
	cov, avg, _, err := f.total.Fix(true)
	if err != nil {
		return err
	}
	sw, _, _, err := f.within.Fix(false)
	if err != nil {
		return err
	}
	res, err := solveSlow(f.method, sw, cov, f.OutputDim())
	if err != nil {
		return err
	}
	f.avg = avg
	f.v = res.Vectors
	f.d = res.Values
	if err := f.SetOutputDim(len(f.d)); err != nil {
		return err
	}
	f.FinishPhase()
	return nil
}

func (f *FDA) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := f.CheckExecute(x); err != nil {
		return nil, err
	}
	return f.Cast(project(x, f.avg, f.v, f.OutputDim())), nil
}

func (f *FDA) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := f.CheckInverse(y, f.IsInvertible()); err != nil {
		return nil, err
	}
	x, err := unproject(y, f.avg, f.v)
	if err != nil {
		return nil, err
	}
	return f.Cast(x), nil
}

// Labels returns the class labels seen in the first phase, sorted.
func (f *FDA) Labels() []int {
	labels := make([]int, 0, len(f.counts))
	for l := range f.counts {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// ClassMean returns the mean of the class with label l.
func (f *FDA) ClassMean(l int) []float64 { return cloneFloats(f.means[l]) }

// V returns the projection matrix.
func (f *FDA) V() *mat.Dense { return cloneDense(f.v) }

// D returns the within-class to total variance ratio of every output.
func (f *FDA) D() []float64 { return cloneFloats(f.d) }

func (f *FDA) Copy() (node.Node, error) {
	cp := *f
	cp.total = f.total.Clone()
	cp.within = f.within.Clone()
	cp.sums = make(map[int][]float64, len(f.sums))
	for l, s := range f.sums {
		cp.sums[l] = cloneFloats(s)
	}
	cp.counts = make(map[int]int, len(f.counts))
	for l, c := range f.counts {
		cp.counts[l] = c
	}
	if f.means != nil {
		cp.means = make(map[int][]float64, len(f.means))
		for l, m := range f.means {
			cp.means[l] = cloneFloats(m)
		}
	}
	cp.avg = cloneFloats(f.avg)
	cp.v = cloneDense(f.v)
	cp.d = cloneFloats(f.d)
	return &cp, nil
}
