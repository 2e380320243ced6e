// Package regularize solves the generalized symmetric eigenproblems at the
// core of SFA-type nodes and provides remedies for a rank deficient
// right-hand covariance matrix.
package regularize

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

// DefaultThreshold is the rank threshold used when a method is created with
// a zero Threshold.
const DefaultThreshold = 1e-12

// Result is the solution of a v = λ b v.
type Result struct {
	// Values holds the selected eigenvalues in ascending order.
	Values []float64
	// Vectors holds the matching eigenvectors in its columns.
	Vectors *mat.Dense
	// RankDeficit is the number of directions of b that were dropped.
	RankDeficit int
}

// Method solves a v = λ b v, handling rank deficiency of b in its own way.
type Method interface {
	Solve(a, b *mat.SymDense, r Range) (Result, error)
	Name() string
}

// None solves the problem directly and fails with common.ErrSingular when
// b is singular.
type None struct{}

func (None) Name() string { return "none" }

func (None) Solve(a, b *mat.SymDense, r Range) (Result, error) {
	vals, vecs, err := Symeig(a, b, r)
	if err != nil {
		return Result{}, err
	}
	return Result{Values: vals, Vectors: vecs}, nil
}

// Reg adds Threshold to the diagonal of b before solving and then discards
// the eigenvectors that are badly normalized with respect to the original b.
type Reg struct {
	Threshold float64
}

func (Reg) Name() string { return "reg" }

func (m Reg) Solve(a, b *mat.SymDense, r Range) (Result, error) {
	thr := threshold(m.Threshold)
	n := b.SymmetricDim()
	breg := mat.NewSymDense(n, nil)
	breg.CopySym(b)
	for i := 0; i < n; i++ {
		breg.SetSym(i, i, breg.At(i, i)+thr)
	}
	vals, vecs, err := Symeig(a, breg, Range{})
	if err != nil {
		return Result{}, err
	}

	// |sqrt(|vᵀbv|) - 1| is close to zero for directions that b supports
	var bv mat.Dense
	bv.Mul(b, vecs)
	dev := make([]float64, n)
	col := make([]float64, n)
	bcol := make([]float64, n)
	for j := 0; j < n; j++ {
		mat.Col(col, j, vecs)
		mat.Col(bcol, j, &bv)
		dev[j] = math.Abs(math.Sqrt(math.Abs(floats.Dot(col, bcol))) - 1)
	}
	off := 0
	for off < n && dev[off] > 0.5 {
		off++
	}
	var keep []int
	deficit := off
	if off < n && floats.Sum(dev[off:]) < 0.5 {
		for j := off; j < n; j++ {
			keep = append(keep, j)
		}
	} else {
		for j, d := range dev {
			if d < 0.5 {
				keep = append(keep, j)
			}
		}
		deficit = n - len(keep)
	}
	if len(keep) == 0 {
		return Result{}, common.Failf(common.ErrSingular, "no direction survived regularization")
	}
	vals, vecs = selectColumns(vals, vecs, keep)
	vals, vecs, err = selectRange(vals, vecs, r)
	if err != nil {
		return Result{}, err
	}
	return Result{Values: vals, Vectors: vecs, RankDeficit: deficit}, nil
}

// PCA projects the problem onto the principal components of b whose
// eigenvalues exceed Threshold times the largest one.
type PCA struct {
	Threshold float64
}

func (PCA) Name() string { return "pca" }

func (m PCA) Solve(a, b *mat.SymDense, r Range) (Result, error) {
	thr := threshold(m.Threshold)
	eg, ev, err := Eig(b)
	if err != nil {
		return Result{}, err
	}
	n := len(eg)
	largest := eg[n-1]
	if largest <= 0 {
		return Result{}, common.Failf(common.ErrSingular, "covariance matrix has no positive eigenvalue")
	}
	off := 0
	for off < n && eg[off] < thr*largest {
		off++
	}
	keep := make([]int, 0, n-off)
	for j := off; j < n; j++ {
		keep = append(keep, j)
	}
	eg, ev = selectColumns(eg, ev, keep)
	return solveWhitened(a, eg, ev, off, r)
}

// SVD is like PCA but finds the principal directions of b through a
// singular value decomposition.
type SVD struct {
	Threshold float64
}

func (SVD) Name() string { return "svd" }

func (m SVD) Solve(a, b *mat.SymDense, r Range) (Result, error) {
	thr := threshold(m.Threshold)
	var svd mat.SVD
	if ok := svd.Factorize(b, mat.SVDThinU); !ok {
		return Result{}, common.Failf(common.ErrSingular, "svd factorization failed")
	}
	s := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)
	n := len(s)
	if s[0] <= 0 {
		return Result{}, common.Failf(common.ErrSingular, "covariance matrix has no positive singular value")
	}
	off := 0
	for off < n && s[n-1-off] < thr*s[0] {
		off++
	}
	keep := make([]int, 0, n-off)
	for j := 0; j < n-off; j++ {
		keep = append(keep, j)
	}
	s, us := selectColumns(s, &u, keep)
	return solveWhitened(a, s, us, off, r)
}

// solveWhitened whitens with the directions ev of variances eg, solves the
// standard eigenproblem of the whitened a and maps the eigenvectors back.
func solveWhitened(a *mat.SymDense, eg []float64, ev *mat.Dense, off int, r Range) (Result, error) {
	rows, cols := ev.Dims()
	white := mat.NewDense(rows, cols, nil)
	white.Apply(func(i, j int, v float64) float64 {
		return v / math.Sqrt(eg[j])
	}, ev)
	var tmp, reduced mat.Dense
	tmp.Mul(white.T(), a)
	reduced.Mul(&tmp, white)
	vals, w, err := Eig(Symmetrize(&reduced))
	if err != nil {
		return Result{}, err
	}
	vals, w, err = selectRange(vals, w, r)
	if err != nil {
		return Result{}, errors.Wrapf(err, "rank deficit %d", off)
	}
	vecs := &mat.Dense{}
	vecs.Mul(white, w)
	return Result{Values: vals, Vectors: vecs, RankDeficit: off}, nil
}

// Auto solves directly and falls back to PCA when b is singular.
type Auto struct {
	Threshold float64
}

func (Auto) Name() string { return "auto" }

func (m Auto) Solve(a, b *mat.SymDense, r Range) (Result, error) {
	res, err := None{}.Solve(a, b, r)
	if errors.Is(err, common.ErrSingular) {
		return PCA{Threshold: m.Threshold}.Solve(a, b, r)
	}
	return res, err
}

func threshold(t float64) float64 {
	if t <= 0 {
		return DefaultThreshold
	}
	return t
}

// ByName returns the method with the given name: "none", "reg", "pca",
// "svd" or "auto". The threshold applies to every method except none.
func ByName(name string, threshold float64) (Method, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None{}, nil
	case "reg":
		return Reg{Threshold: threshold}, nil
	case "pca":
		return PCA{Threshold: threshold}, nil
	case "svd":
		return SVD{Threshold: threshold}, nil
	case "auto":
		return Auto{Threshold: threshold}, nil
	}
	return nil, errors.Errorf("regularize: unknown rank deficit method %q", name)
}
