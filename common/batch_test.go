package common

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHStack(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 1, []float64{5, 6})
	out, err := HStack(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 5, 3, 4, 6}, out.RawMatrix().Data)

	_, err = HStack(a, mat.NewDense(3, 1, nil))
	var dm *DimensionMismatch
	require.ErrorAs(t, err, &dm)

	_, err = HStack()
	require.ErrorIs(t, err, ErrNoData)
}

func TestBlocksAreViews(t *testing.T) {
	x := mat.NewDense(3, 4, []float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
	})
	cols := ColumnBlock(x, 1, 3)
	r, c := cols.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 9.0, cols.At(2, 0))

	rows := RowBlock(x, 1, 2)
	assert.Equal(t, []float64{4, 5, 6, 7}, rows.RawRowView(0))
}

func TestRowHelpers(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	centered := SubRow(x, []float64{1, 2})
	assert.Equal(t, []float64{0, 0, 2, 2}, centered.RawMatrix().Data)
	assert.Equal(t, []float64{1, 2, 3, 4}, x.RawMatrix().Data, "input must not change")

	AddRow(centered, []float64{1, 2})
	assert.True(t, mat.Equal(x, centered))

	assert.Equal(t, []float64{7, 10}, RowTimes([]float64{1, 2}, x))
}

func TestPseudoInverse(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 2,
		0, 0,
	})
	pinv, err := PseudoInverse(a)
	require.NoError(t, err)
	want := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 0.5, 0,
	})
	assert.True(t, mat.EqualApprox(want, pinv, 1e-12))

	var prod mat.Dense
	prod.Mul(pinv, a)
	assert.True(t, mat.EqualApprox(&prod, eye(2), 1e-12))
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func TestRoundFloat32(t *testing.T) {
	x := mat.NewDense(1, 2, []float64{0.1, 1})
	RoundFloat32(x)
	assert.Equal(t, float64(float32(0.1)), x.At(0, 0))
	assert.Equal(t, 1.0, x.At(0, 1))
	assert.True(t, IsFinite(x))
}

func TestParallelFor(t *testing.T) {
	for _, test := range []struct {
		n, grain int
	}{
		{n: 0, grain: 3},
		{n: 1, grain: 10},
		{n: 97, grain: 4},
		{n: 1000, grain: GetGrainSize(1000, 1, 500)},
	} {
		seen := make([]int32, test.n)
		ParallelFor(test.n, test.grain, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, s := range seen {
			require.EqualValues(t, 1, s, "index %d of %d", i, test.n)
		}
	}
}
