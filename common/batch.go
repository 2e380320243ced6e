package common

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CheckBatch returns ErrNoData if x holds no samples.
func CheckBatch(x *mat.Dense) error {
	if x == nil || x.IsEmpty() {
		return ErrNoData
	}
	return nil
}

// ColumnBlock returns a view of the columns [start, end) of x.
func ColumnBlock(x *mat.Dense, start, end int) *mat.Dense {
	r, _ := x.Dims()
	return x.Slice(0, r, start, end).(*mat.Dense)
}

// RowBlock returns a view of the rows [start, end) of x.
func RowBlock(x *mat.Dense, start, end int) *mat.Dense {
	_, c := x.Dims()
	return x.Slice(start, end, 0, c).(*mat.Dense)
}

// HStack concatenates the blocks horizontally. All blocks must have the
// same number of rows.
func HStack(blocks ...*mat.Dense) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, ErrNoData
	}
	rows, _ := blocks[0].Dims()
	var total int
	for _, b := range blocks {
		r, c := b.Dims()
		if r != rows {
			return nil, &DimensionMismatch{What: "number of samples", Expected: rows, Found: r}
		}
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	var start int
	for _, b := range blocks {
		_, c := b.Dims()
		ColumnBlock(out, start, start+c).Copy(b)
		start += c
	}
	return out, nil
}

// SubRow returns x with v subtracted from every row.
func SubRow(x mat.Matrix, v []float64) *mat.Dense {
	out := mat.DenseCopyOf(x)
	r, _ := out.Dims()
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] -= v[j]
		}
	}
	return out
}

// AddRow adds v to every row of x in place.
func AddRow(x *mat.Dense, v []float64) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] += v[j]
		}
	}
}

// RowTimes returns vᵀ·m as a slice.
func RowTimes(v []float64, m mat.Matrix) []float64 {
	_, c := m.Dims()
	out := mat.NewVecDense(c, nil)
	out.MulVec(m.T(), mat.NewVecDense(len(v), v))
	return out.RawVector().Data
}

// RoundFloat32 rounds every entry of x to single precision in place.
func RoundFloat32(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j, v := range row {
			row[j] = float64(float32(v))
		}
	}
}

// IsFinite reports whether every entry of m is finite.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// PseudoInverse returns the Moore-Penrose pseudo-inverse of a. Singular
// values below a relative cutoff are treated as zero.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, Failf(ErrSingular, "svd factorization failed")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r, c := a.Dims()
	cutoff := 1e-15 * float64(max(r, c)) * s[0]
	for j, sv := range s {
		inv := 0.0
		if sv > cutoff {
			inv = 1 / sv
		}
		for i := 0; i < c; i++ {
			v.Set(i, j, v.At(i, j)*inv)
		}
	}
	pinv := mat.NewDense(c, r, nil)
	pinv.Mul(&v, u.T())
	return pinv, nil
}
