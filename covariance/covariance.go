// Package covariance accumulates second-order statistics of streamed
// batches so that a covariance matrix can be computed once all data has
// been seen.
package covariance

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

// Matrix accumulates Σx, Σxxᵀ and the number of samples. The zero value is
// ready to use; the dimension is fixed by the first update.
type Matrix struct {
	dim int
	xx  *mat.SymDense
	sum []float64
	n   int
}

// New returns an accumulator of the given dimension, or one with the
// dimension fixed lazily if dim is 0.
func New(dim int) *Matrix {
	c := &Matrix{}
	if dim > 0 {
		c.init(dim)
	}
	return c
}

func (c *Matrix) init(dim int) {
	c.dim = dim
	c.xx = mat.NewSymDense(dim, nil)
	c.sum = make([]float64, dim)
}

// Dim returns the dimension of the accumulator, or 0 if unknown.
func (c *Matrix) Dim() int { return c.dim }

// Len returns the number of accumulated samples.
func (c *Matrix) Len() int { return c.n }

// Update adds the rows of x to the statistics.
func (c *Matrix) Update(x mat.Matrix) error {
	r, d := x.Dims()
	if c.dim == 0 {
		c.init(d)
	}
	if d != c.dim {
		return &common.DimensionMismatch{What: "covariance dimension", Expected: c.dim, Found: d}
	}
	c.xx.SymRankK(c.xx, 1, x.T())
	row := make([]float64, d)
	for i := 0; i < r; i++ {
		mat.Row(row, i, x)
		floats.Add(c.sum, row)
	}
	c.n += r
	return nil
}

// Merge adds the statistics of o to c.
func (c *Matrix) Merge(o *Matrix) error {
	if o.n == 0 {
		return nil
	}
	if c.dim == 0 {
		c.init(o.dim)
	}
	if o.dim != c.dim {
		return &common.DimensionMismatch{What: "covariance dimension", Expected: c.dim, Found: o.dim}
	}
	c.xx.AddSym(c.xx, o.xx)
	floats.Add(c.sum, o.sum)
	c.n += o.n
	return nil
}

// Clone returns an independent copy of c.
func (c *Matrix) Clone() *Matrix {
	cp := &Matrix{dim: c.dim, n: c.n}
	if c.dim > 0 {
		cp.xx = mat.NewSymDense(c.dim, nil)
		cp.xx.CopySym(c.xx)
		cp.sum = append([]float64(nil), c.sum...)
	}
	return cp
}

// Fix returns the unbiased covariance estimate, the mean and the number of
// samples. If center is false the second moment Σxxᵀ/(n-1) is returned
// without subtracting the mean. The accumulator is left unchanged, so Fix
// may be called again after more updates.
func (c *Matrix) Fix(center bool) (*mat.SymDense, []float64, int, error) {
	if c.n == 0 {
		return nil, nil, 0, common.Failf(common.ErrNoSamples, "covariance of zero samples")
	}
	if c.n == 1 {
		return nil, nil, 0, common.Failf(common.ErrNoSamples, "covariance needs at least two samples")
	}
	n := float64(c.n)
	avg := make([]float64, c.dim)
	floats.ScaleTo(avg, 1/n, c.sum)
	cov := mat.NewSymDense(c.dim, nil)
	cov.ScaleSym(1/(n-1), c.xx)
	if center {
		cov.SymRankOne(cov, -n/(n-1), mat.NewVecDense(c.dim, avg))
	}
	if !common.IsFinite(cov) {
		return nil, nil, 0, common.Failf(nil, "covariance matrix is not finite")
	}
	return cov, avg, c.n, nil
}

// Weighted accumulates node-weighted statistics Σvxxᵀ, Σvx and Σv.
type Weighted struct {
	dim int
	xx  *mat.SymDense
	sum []float64
	q   float64
	n   int
}

// NewWeighted returns a weighted accumulator with lazily fixed dimension if
// dim is 0.
func NewWeighted(dim int) *Weighted {
	w := &Weighted{}
	if dim > 0 {
		w.init(dim)
	}
	return w
}

func (w *Weighted) init(dim int) {
	w.dim = dim
	w.xx = mat.NewSymDense(dim, nil)
	w.sum = make([]float64, dim)
}

// Len returns the number of accumulated samples.
func (w *Weighted) Len() int { return w.n }

// Update adds the rows of x with the given non-negative weights. A nil
// weight slice weighs every sample by one.
func (w *Weighted) Update(x mat.Matrix, weights []float64) error {
	r, d := x.Dims()
	if weights != nil && len(weights) != r {
		return &common.DimensionMismatch{What: "number of node weights", Expected: r, Found: len(weights)}
	}
	if w.dim == 0 {
		w.init(d)
	}
	if d != w.dim {
		return &common.DimensionMismatch{What: "covariance dimension", Expected: w.dim, Found: d}
	}
	for i, v := range weights {
		if v < 0 {
			return errors.Errorf("covariance: negative node weight %v for sample %d", v, i)
		}
	}
	scaled := mat.DenseCopyOf(x)
	for i := 0; i < r; i++ {
		v := 1.0
		if weights != nil {
			v = weights[i]
		}
		row := scaled.RawRowView(i)
		floats.AddScaled(w.sum, v, row)
		floats.Scale(math.Sqrt(v), row)
		w.q += v
	}
	w.xx.SymRankK(w.xx, 1, scaled.T())
	w.n += r
	return nil
}

// Merge adds the statistics of o to w.
func (w *Weighted) Merge(o *Weighted) error {
	if o.n == 0 {
		return nil
	}
	if w.dim == 0 {
		w.init(o.dim)
	}
	if o.dim != w.dim {
		return &common.DimensionMismatch{What: "covariance dimension", Expected: w.dim, Found: o.dim}
	}
	w.xx.AddSym(w.xx, o.xx)
	floats.Add(w.sum, o.sum)
	w.q += o.q
	w.n += o.n
	return nil
}

// Clone returns an independent copy of w.
func (w *Weighted) Clone() *Weighted {
	cp := &Weighted{dim: w.dim, q: w.q, n: w.n}
	if w.dim > 0 {
		cp.xx = mat.NewSymDense(w.dim, nil)
		cp.xx.CopySym(w.xx)
		cp.sum = append([]float64(nil), w.sum...)
	}
	return cp
}

// Fix returns the weighted mean and the biased weighted covariance
// Σv(x-μ)(x-μ)ᵀ/Σv.
func (w *Weighted) Fix() (*mat.SymDense, []float64, error) {
	if w.n == 0 || w.q <= 0 {
		return nil, nil, common.Failf(common.ErrNoSamples, "weighted covariance of zero total weight")
	}
	avg := make([]float64, w.dim)
	floats.ScaleTo(avg, 1/w.q, w.sum)
	cov := mat.NewSymDense(w.dim, nil)
	cov.ScaleSym(1/w.q, w.xx)
	cov.SymRankOne(cov, -1, mat.NewVecDense(w.dim, avg))
	if !common.IsFinite(cov) {
		return nil, nil, common.Failf(nil, "weighted covariance matrix is not finite")
	}
	return cov, avg, nil
}

// Differences accumulates the weighted sum of outer products of sample
// differences Σγ(x'-x)(x'-x)ᵀ and the total edge weight Σγ.
type Differences struct {
	dim int
	dd  *mat.SymDense
	r   float64
}

// NewDifferences returns a difference accumulator with lazily fixed
// dimension if dim is 0.
func NewDifferences(dim int) *Differences {
	d := &Differences{}
	if dim > 0 {
		d.init(dim)
	}
	return d
}

func (d *Differences) init(dim int) {
	d.dim = dim
	d.dd = mat.NewSymDense(dim, nil)
}

func (d *Differences) check(dim int) error {
	if d.dim == 0 {
		d.init(dim)
	}
	if dim != d.dim {
		return &common.DimensionMismatch{What: "covariance dimension", Expected: d.dim, Found: dim}
	}
	return nil
}

// AddRows adds every row of diffs as one difference of the given weight.
func (d *Differences) AddRows(diffs mat.Matrix, weight float64) error {
	r, c := diffs.Dims()
	if err := d.check(c); err != nil {
		return err
	}
	d.dd.SymRankK(d.dd, weight, diffs.T())
	d.r += weight * float64(r)
	return nil
}

// AddGraph adds the differences of every pair of rows of x weighted by the
// symmetric edge weights. The diagonal of edges is ignored.
func (d *Differences) AddGraph(x mat.Matrix, edges mat.Symmetric) error {
	r, c := x.Dims()
	if n := edges.SymmetricDim(); n != r {
		return &common.DimensionMismatch{What: "edge weight dimension", Expected: r, Found: n}
	}
	if err := d.check(c); err != nil {
		return err
	}
	// Σ_{i<j} γij (xi-xj)(xi-xj)ᵀ = Xᵀ L X with L the graph Laplacian.
	lap := mat.NewSymDense(r, nil)
	var total float64
	for i := 0; i < r; i++ {
		var deg float64
		for j := 0; j < r; j++ {
			if i == j {
				continue
			}
			g := edges.At(i, j)
			deg += g
			if j > i {
				lap.SetSym(i, j, -g)
				total += g
			}
		}
		lap.SetSym(i, i, deg)
	}
	var lx mat.Dense
	lx.Mul(lap, x)
	var xtlx mat.Dense
	xtlx.Mul(x.T(), &lx)
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			d.dd.SetSym(i, j, d.dd.At(i, j)+0.5*(xtlx.At(i, j)+xtlx.At(j, i)))
		}
	}
	d.r += total
	return nil
}

// Merge adds the statistics of o to d.
func (d *Differences) Merge(o *Differences) error {
	if o.dim == 0 {
		return nil
	}
	if err := d.check(o.dim); err != nil {
		return err
	}
	d.dd.AddSym(d.dd, o.dd)
	d.r += o.r
	return nil
}

// Clone returns an independent copy of d.
func (d *Differences) Clone() *Differences {
	cp := &Differences{dim: d.dim, r: d.r}
	if d.dim > 0 {
		cp.dd = mat.NewSymDense(d.dim, nil)
		cp.dd.CopySym(d.dd)
	}
	return cp
}

// Weight returns the total accumulated edge weight.
func (d *Differences) Weight() float64 { return d.r }

// Fix returns the mean weighted difference outer product Σγ(x'-x)(x'-x)ᵀ/Σγ.
func (d *Differences) Fix() (*mat.SymDense, error) {
	if d.r <= 0 {
		return nil, common.Failf(common.ErrNoSamples, "no sample differences accumulated")
	}
	out := mat.NewSymDense(d.dim, nil)
	out.ScaleSym(1/d.r, d.dd)
	if !common.IsFinite(out) {
		return nil, common.Failf(nil, "derivative covariance matrix is not finite")
	}
	return out, nil
}
