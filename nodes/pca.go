package nodes

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/covariance"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// PCAConfig configures a PCA node.
type PCAConfig struct {
	// ExplainedVariance, if in (0, 1), keeps the smallest number of
	// components that explain at least this fraction of the variance. It
	// is ignored when the output dimension is set.
	ExplainedVariance float64 `json:"explainedVariance"`
	// Reduce drops components whose variance is below VarRel times the
	// largest variance or below VarAbs.
	Reduce bool    `json:"reduce"`
	VarRel float64 `json:"varRel"`
	VarAbs float64 `json:"varAbs"`
	// Whiten scales every component to unit variance.
	Whiten bool `json:"whiten"`
}

// DefaultPCAConfig returns the default PCA configuration.
func DefaultPCAConfig() PCAConfig {
	return PCAConfig{VarRel: 1e-12, VarAbs: 1e-15}
}

// PCA projects its input onto the principal components of the training
// data, largest variance first.
type PCA struct {
	node.Base
	cfg PCAConfig

	cov *covariance.Matrix

	avg       []float64
	v         *mat.Dense
	d         []float64
	total     float64
	explained float64
}

// NewPCA returns an untrained PCA node.
func NewPCA(cfg PCAConfig, opts ...node.Option) *PCA {
	p := &PCA{Base: node.NewBase(1, opts), cfg: cfg}
	p.cov = covariance.New(p.InputDim())
	return p
}

func (p *PCA) IsInvertible() bool { return true }

// Train accumulates the covariance of x.
func (p *PCA) Train(x *mat.Dense, opts ...node.TrainOption) error {
	if err := p.CheckTrain(x); err != nil {
		return err
	}
	return p.cov.Update(x)
}

// StopTraining computes the principal components.
func (p *PCA) StopTraining(opts ...node.TrainOption) error {
	if err := p.CheckStop(); err != nil {
		return err
	}
	cov, avg, _, err := p.cov.Fix(true)
	if err != nil {
		return err
	}
	vals, vecs, err := regularize.Eig(cov)
	if err != nil {
		return err
	}
	dim := len(vals)
	d, v := descending(vals, vecs)

	k := dim
	switch out := p.OutputDim(); {
	case out > dim:
		return &common.DimensionMismatch{What: "output dimension larger than input dimension", Expected: dim, Found: out}
	case out > 0:
		k = out
	case p.cfg.ExplainedVariance > 0 && p.cfg.ExplainedVariance < 1:
		k = explainedCount(d, p.cfg.ExplainedVariance)
	}
	if p.cfg.Reduce {
		for k > 1 && (d[k-1] < p.cfg.VarRel*d[0] || d[k-1] < p.cfg.VarAbs) {
			k--
		}
	} else if d[k-1] <= p.cfg.VarRel*d[0] {
		return common.Failf(common.ErrSingular,
			"eigenvalue %v is numerically zero, the covariance matrix may be singular; set Reduce to drop the null directions", d[k-1])
	}

	p.total = floats.Sum(vals)
	p.avg = avg
	p.d = d[:k:k]
	p.v = mat.DenseCopyOf(v.Slice(0, dim, 0, k))
	p.explained = floats.Sum(p.d) / p.total
	p.ForceOutputDim(k)
	p.FinishPhase()
	return nil
}

// descending reorders ascending eigenpairs largest first.
func descending(vals []float64, vecs *mat.Dense) ([]float64, *mat.Dense) {
	n := len(vals)
	d := make([]float64, n)
	v := mat.NewDense(n, n, nil)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		d[j] = vals[n-1-j]
		v.SetCol(j, mat.Col(col, n-1-j, vecs))
	}
	return d, v
}

func explainedCount(d []float64, fraction float64) int {
	total := floats.Sum(d)
	var acc float64
	for i, v := range d {
		acc += v
		if acc/total >= fraction {
			return i + 1
		}
	}
	return len(d)
}

// projection returns the matrix applied in Execute.
func (p *PCA) projection() *mat.Dense {
	if !p.cfg.Whiten {
		return p.v
	}
	w := mat.DenseCopyOf(p.v)
	w.Apply(func(i, j int, v float64) float64 {
		return v / math.Sqrt(p.d[j])
	}, w)
	return w
}

func (p *PCA) Execute(x *mat.Dense) (*mat.Dense, error) {
	return p.ExecuteN(x, p.OutputDim())
}

// ExecuteN projects x onto the n largest principal components.
func (p *PCA) ExecuteN(x *mat.Dense, n int) (*mat.Dense, error) {
	if err := p.CheckExecute(x); err != nil {
		return nil, err
	}
	if err := checkColumns(n, p.OutputDim()); err != nil {
		return nil, err
	}
	return p.Cast(project(x, p.avg, p.projection(), n)), nil
}

// Inverse maps y back to input space. Components that were discarded are
// reconstructed as zero.
func (p *PCA) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := p.CheckInverse(y, p.IsInvertible()); err != nil {
		return nil, err
	}
	back := p.v
	if p.cfg.Whiten {
		back = mat.DenseCopyOf(p.v)
		back.Apply(func(i, j int, v float64) float64 {
			return v * math.Sqrt(p.d[j])
		}, back)
	}
	r, _ := y.Dims()
	x := mat.NewDense(r, len(p.avg), nil)
	x.Mul(y, back.T())
	common.AddRow(x, p.avg)
	return p.Cast(x), nil
}

// ReduceOutputDim keeps only the n largest components of a trained node.
func (p *PCA) ReduceOutputDim(n int) error {
	if p.IsTraining() {
		return common.ErrTrainingNotFinished
	}
	if err := checkColumns(n, p.OutputDim()); err != nil {
		return err
	}
	dim, _ := p.v.Dims()
	p.v = mat.DenseCopyOf(p.v.Slice(0, dim, 0, n))
	p.d = p.d[:n:n]
	p.explained = floats.Sum(p.d) / p.total
	p.ForceOutputDim(n)
	return nil
}

// Projection returns the principal components, one per column.
func (p *PCA) Projection() *mat.Dense { return cloneDense(p.v) }

// D returns the variances of the components, largest first.
func (p *PCA) D() []float64 { return cloneFloats(p.d) }

// Avg returns the mean of the training data.
func (p *PCA) Avg() []float64 { return cloneFloats(p.avg) }

// ExplainedVariance returns the fraction of the total variance explained
// by the kept components.
func (p *PCA) ExplainedVariance() float64 { return p.explained }

func (p *PCA) ForkSafe() bool { return p.IsTraining() }

// Fork returns a PCA node with empty statistics in the same phase.
func (p *PCA) Fork() (node.Node, error) {
	if !p.ForkSafe() {
		return nil, common.ErrTrainingFinished
	}
	return &PCA{Base: p.Base, cfg: p.cfg, cov: covariance.New(p.InputDim())}, nil
}

// Join merges the statistics of a forked PCA node.
func (p *PCA) Join(forked node.Node) error {
	f, ok := forked.(*PCA)
	if !ok {
		return errors.Errorf("pca: cannot join %s", node.Kind(forked))
	}
	if f.cov.Len() == 0 {
		return nil
	}
	if err := p.SetInputDim(f.InputDim()); err != nil {
		return err
	}
	return p.cov.Merge(f.cov)
}

func (p *PCA) Copy() (node.Node, error) {
	cp := *p
	cp.cov = p.cov.Clone()
	cp.avg = cloneFloats(p.avg)
	cp.v = cloneDense(p.v)
	cp.d = cloneFloats(p.d)
	return &cp, nil
}
