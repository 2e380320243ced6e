package regularize

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

// MaxCondition is the largest condition number of the right-hand matrix
// that Symeig accepts before reporting it as singular.
const MaxCondition = 1e14

// Range selects the eigenpairs Lo..Hi (1-based, inclusive) in ascending
// order of eigenvalue. The zero value selects all of them.
type Range struct {
	Lo, Hi int
}

// All reports whether r selects every eigenpair.
func (r Range) All() bool { return r.Lo == 0 && r.Hi == 0 }

// First returns the range selecting the n smallest eigenpairs.
func First(n int) Range { return Range{Lo: 1, Hi: n} }

// bounds returns the 0-based half-open index range selected in a problem
// of size n.
func (r Range) bounds(n int) (int, int, error) {
	if r.All() {
		return 0, n, nil
	}
	if r.Lo < 1 || r.Hi < r.Lo || r.Hi > n {
		return 0, 0, errors.Errorf("regularize: eigenvalue range %d..%d outside 1..%d", r.Lo, r.Hi, n)
	}
	return r.Lo - 1, r.Hi, nil
}

// Eig solves the standard symmetric eigenproblem a v = λ v and returns the
// eigenvalues in ascending order with the eigenvectors in the columns.
func Eig(a mat.Symmetric) ([]float64, *mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(a, true); !ok {
		return nil, nil, common.Failf(nil, "symmetric eigendecomposition did not converge")
	}
	vals := es.Values(nil)
	vecs := &mat.Dense{}
	es.VectorsTo(vecs)
	return vals, vecs, nil
}

// Symeig solves the generalized symmetric eigenproblem a v = λ b v with b
// positive definite. Eigenvalues are returned in ascending order and the
// eigenvectors, in the columns, are normalized so that vᵀbv = 1. A nil b
// solves the standard problem. It fails with common.ErrSingular when b is
// not numerically positive definite.
func Symeig(a, b mat.Symmetric, r Range) ([]float64, *mat.Dense, error) {
	n := a.SymmetricDim()
	if b == nil {
		vals, vecs, err := Eig(a)
		if err != nil {
			return nil, nil, err
		}
		return selectRange(vals, vecs, r)
	}
	if m := b.SymmetricDim(); m != n {
		return nil, nil, &common.DimensionMismatch{What: "eigenproblem dimension", Expected: n, Found: m}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(b); !ok {
		return nil, nil, common.Failf(common.ErrSingular, "matrix is not positive definite")
	}
	if cond := chol.Cond(); cond > MaxCondition {
		return nil, nil, common.Failf(common.ErrSingular, "condition number %.3g", cond)
	}
	// b = UᵀU, so a v = λ b v becomes U⁻ᵀ a U⁻¹ w = λ w with v = U⁻¹ w.
	var u, uinv mat.TriDense
	chol.UTo(&u)
	if err := uinv.InverseTri(&u); err != nil {
		return nil, nil, common.Failf(common.ErrSingular, "%v", err)
	}
	var tmp, c mat.Dense
	tmp.Mul(uinv.T(), a)
	c.Mul(&tmp, &uinv)
	vals, w, err := Eig(Symmetrize(&c))
	if err != nil {
		return nil, nil, err
	}
	v := &mat.Dense{}
	v.Mul(&uinv, w)
	return selectRange(vals, v, r)
}

// Symmetrize returns (m+mᵀ)/2 as a symmetric matrix.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func selectRange(vals []float64, vecs *mat.Dense, r Range) ([]float64, *mat.Dense, error) {
	lo, hi, err := r.bounds(len(vals))
	if err != nil {
		return nil, nil, err
	}
	if lo == 0 && hi == len(vals) {
		return vals, vecs, nil
	}
	n, _ := vecs.Dims()
	out := mat.DenseCopyOf(vecs.Slice(0, n, lo, hi))
	return append([]float64(nil), vals[lo:hi]...), out, nil
}

// selectColumns returns the eigenpairs with the given indices.
func selectColumns(vals []float64, vecs *mat.Dense, idx []int) ([]float64, *mat.Dense) {
	n, _ := vecs.Dims()
	out := mat.NewDense(n, len(idx), nil)
	sel := make([]float64, len(idx))
	col := make([]float64, n)
	for k, j := range idx {
		sel[k] = vals[j]
		out.SetCol(k, mat.Col(col, j, vecs))
	}
	return sel, out
}
