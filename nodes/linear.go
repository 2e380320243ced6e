// Package nodes implements the concrete processing nodes: principal
// component analysis, slow feature analysis and its graph-based and
// information-preserving variants, Fisher discriminant analysis and a few
// untrainable utility nodes.
package nodes

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

// TimeDerivative returns the differences of consecutive rows of x.
func TimeDerivative(x mat.Matrix) *mat.Dense {
	r, c := x.Dims()
	d := mat.NewDense(r-1, c, nil)
	for i := 0; i < r-1; i++ {
		row := d.RawRowView(i)
		for j := range row {
			row[j] = x.At(i+1, j) - x.At(i, j)
		}
	}
	return d
}

// Delta returns the mean squared time difference of every column of y.
func Delta(y mat.Matrix) []float64 {
	d := TimeDerivative(y)
	r, c := d.Dims()
	delta := make([]float64, c)
	col := make([]float64, r)
	for j := range delta {
		mat.Col(col, j, d)
		delta[j] = stat.MomentAbout(2, col, 0, nil)
	}
	return delta
}

// project returns (x - avg)·w restricted to the first n columns of w.
func project(x *mat.Dense, avg []float64, w *mat.Dense, n int) *mat.Dense {
	d, _ := w.Dims()
	r, _ := x.Dims()
	out := mat.NewDense(r, n, nil)
	out.Mul(common.SubRow(x, avg), w.Slice(0, d, 0, n))
	return out
}

// unproject returns y·pinv(w) + avg.
func unproject(y *mat.Dense, avg []float64, w *mat.Dense) (*mat.Dense, error) {
	pinv, err := common.PseudoInverse(w)
	if err != nil {
		return nil, err
	}
	r, _ := y.Dims()
	out := mat.NewDense(r, len(avg), nil)
	out.Mul(y, pinv)
	common.AddRow(out, avg)
	return out, nil
}

// checkColumns verifies that n output components may be requested from a
// node with the given output dimension.
func checkColumns(n, outputDim int) error {
	if n < 1 || n > outputDim {
		return errors.Errorf("nodes: requested %d components, node has %d", n, outputDim)
	}
	return nil
}

// solveSlow solves dcov w = λ cov w for the slowest outputDim directions.
// An outputDim of zero keeps every direction the method returns.
func solveSlow(method regularize.Method, dcov, cov *mat.SymDense, outputDim int) (regularize.Result, error) {
	if method == nil {
		method = regularize.None{}
	}
	dim := cov.SymmetricDim()
	rng := regularize.Range{}
	if outputDim > 0 {
		if outputDim > dim {
			return regularize.Result{}, &common.DimensionMismatch{What: "output dimension larger than input dimension", Expected: dim, Found: outputDim}
		}
		rng = regularize.First(outputDim)
	}
	if mat.Norm(dcov, 1) == 0 {
		return regularize.Result{}, common.Failf(common.ErrSingular,
			"derivative covariance matrix is zero, the input may be constant over time")
	}
	res, err := method.Solve(dcov, cov, rng)
	if err != nil {
		return regularize.Result{}, common.Failf(err, "%s solver", method.Name())
	}
	if res.Values[0] < 0 {
		return regularize.Result{}, common.Failf(common.ErrSingular,
			"got negative eigenvalue %v, the covariance matrix may be singular; try another rank deficit method", res.Values[0])
	}
	return res, nil
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

func cloneSym(m *mat.SymDense) *mat.SymDense {
	if m == nil {
		return nil
	}
	cp := mat.NewSymDense(m.SymmetricDim(), nil)
	cp.CopySym(m)
	return cp
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
