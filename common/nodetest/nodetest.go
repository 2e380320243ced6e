// Package nodetest contains helper functions for testing nodes.
package nodetest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// RandomMat returns an r×c matrix with entries drawn from f.
func RandomMat(r, c int, f func() float64) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, f())
		}
	}
	return m
}

// MixedSines returns n samples of dim sine waves, the k-th with frequency
// k+1, linearly mixed by a random matrix drawn from rnd.
func MixedSines(n, dim int, rnd *rand.Rand) *mat.Dense {
	src := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		for k := 0; k < dim; k++ {
			src.Set(i, k, math.Sin(2*math.Pi*float64(k+1)*t+float64(k)))
		}
	}
	mix := RandomMat(dim, dim, rnd.NormFloat64)
	var x mat.Dense
	x.Mul(src, mix)
	return &x
}

// Cov returns the unbiased covariance matrix of the columns of x.
func Cov(x mat.Matrix) *mat.SymDense {
	cov := &mat.SymDense{}
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}

// Eye returns the n×n identity.
func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// TestDimensionMismatch checks that a node with a fixed input dimension
// rejects a training batch of a different width.
func TestDimensionMismatch(t *testing.T, n node.Node, name string) {
	t.Helper()
	dim := n.InputDim()
	if dim == 0 {
		t.Fatalf("%v: input dimension must be fixed", name)
	}
	err := n.Train(mat.NewDense(5, dim+1, nil))
	var dm *common.DimensionMismatch
	if !errors.As(err, &dm) {
		t.Errorf("%v: expected DimensionMismatch, found %v", name, err)
		return
	}
	if dm.Expected != dim || dm.Found != dim+1 {
		t.Errorf("%v: mismatch reports expected %v found %v", name, dm.Expected, dm.Found)
	}
}

// TestUnitCovariance checks that the columns of y are uncorrelated with
// unit variance.
func TestUnitCovariance(t *testing.T, y mat.Matrix, tol float64, name string) {
	t.Helper()
	cov := Cov(y)
	n := cov.SymmetricDim()
	if !mat.EqualApprox(cov, Eye(n), tol) {
		t.Errorf("%v: output covariance is not the identity:\n%v", name, mat.Formatted(cov))
	}
}

// TestDiagonal checks that m is diagonal with the given diagonal.
func TestDiagonal(t *testing.T, m mat.Matrix, diag []float64, tol float64, name string) {
	t.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = diag[i]
			}
			if math.Abs(m.At(i, j)-want) > tol {
				t.Errorf("%v: entry (%d,%d) = %v, want %v", name, i, j, m.At(i, j), want)
				return
			}
		}
	}
}

// EqualUpToSign reports whether the columns of a and b agree up to a sign
// flip of each column.
func EqualUpToSign(a, b mat.Matrix, tol float64) bool {
	r, c := a.Dims()
	rb, cb := b.Dims()
	if r != rb || c != cb {
		return false
	}
	for j := 0; j < c; j++ {
		sign := 1.0
		if a.At(0, j)*b.At(0, j) < 0 {
			sign = -1
		}
		for i := 0; i < r; i++ {
			if math.Abs(a.At(i, j)-sign*b.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}
