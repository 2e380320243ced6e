package covariance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/common/nodetest"
)

func TestMatrixMatchesStat(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	x := nodetest.RandomMat(200, 4, rnd.NormFloat64)

	c := New(0)
	// feed in uneven chunks
	require.NoError(t, c.Update(common.RowBlock(x, 0, 13)))
	require.NoError(t, c.Update(common.RowBlock(x, 13, 200)))
	assert.Equal(t, 200, c.Len())

	cov, avg, n, err := c.Fix(true)
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	want := mat.NewSymDense(4, nil)
	stat.CovarianceMatrix(want, x, nil)
	assert.True(t, mat.EqualApprox(want, cov, 1e-10))
	for j := 0; j < 4; j++ {
		assert.InDelta(t, stat.Mean(mat.Col(nil, j, x), nil), avg[j], 1e-12)
	}

	// Fix leaves the accumulator untouched
	cov2, _, _, err := c.Fix(true)
	require.NoError(t, err)
	assert.True(t, mat.Equal(cov, cov2))
}

func TestUncentered(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})
	c := New(1)
	require.NoError(t, c.Update(x))
	cov, _, _, err := c.Fix(false)
	require.NoError(t, err)
	assert.InDelta(t, (1+4+9)/2.0, cov.At(0, 0), 1e-12)
}

func TestFixTooFewSamples(t *testing.T) {
	c := New(2)
	_, _, _, err := c.Fix(true)
	require.ErrorIs(t, err, common.ErrNoSamples)
	var tf *common.TrainingFailure
	require.ErrorAs(t, err, &tf)

	require.NoError(t, c.Update(mat.NewDense(1, 2, []float64{1, 2})))
	_, _, _, err = c.Fix(true)
	require.ErrorIs(t, err, common.ErrNoSamples)
}

func TestDimensionCheck(t *testing.T) {
	c := New(2)
	err := c.Update(mat.NewDense(2, 3, nil))
	var dm *common.DimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
}

func TestMergeAndClone(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x := nodetest.RandomMat(50, 3, rnd.Float64)

	whole := New(0)
	require.NoError(t, whole.Update(x))

	a, b := New(0), New(0)
	require.NoError(t, a.Update(common.RowBlock(x, 0, 20)))
	require.NoError(t, b.Update(common.RowBlock(x, 20, 50)))
	cp := a.Clone()
	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(New(0)))

	want, _, _, err := whole.Fix(true)
	require.NoError(t, err)
	got, _, _, err := a.Fix(true)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
	assert.Equal(t, 20, cp.Len(), "clone must not see merged samples")
}

func TestWeighted(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	x := nodetest.RandomMat(40, 3, rnd.NormFloat64)
	weights := make([]float64, 40)
	for i := range weights {
		weights[i] = 0.5 + rnd.Float64()
	}

	w := NewWeighted(0)
	require.NoError(t, w.Update(common.RowBlock(x, 0, 10), weights[:10]))
	other := NewWeighted(3)
	require.NoError(t, other.Update(common.RowBlock(x, 10, 40), weights[10:]))
	require.NoError(t, w.Merge(other))
	cov, avg, err := w.Fix()
	require.NoError(t, err)

	// biased weighted covariance
	var q float64
	for _, v := range weights {
		q += v
	}
	for j := 0; j < 3; j++ {
		assert.InDelta(t, stat.Mean(mat.Col(nil, j, x), weights), avg[j], 1e-12)
	}
	want := mat.NewSymDense(3, nil)
	stat.CovarianceMatrix(want, x, weights)
	want.ScaleSym((q-1)/q, want)
	assert.True(t, mat.EqualApprox(want, cov, 1e-10))

	err = w.Update(mat.NewDense(2, 3, nil), []float64{1, -1})
	require.Error(t, err)
	assert.Equal(t, 40, w.Len())
	var dm *common.DimensionMismatch
	require.ErrorAs(t, w.Update(mat.NewDense(2, 3, nil), []float64{1}), &dm)
}

func TestDifferencesGraphMatchesRows(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	x := nodetest.RandomMat(6, 2, rnd.NormFloat64)

	// consecutive samples as a chain graph
	edges := mat.NewSymDense(6, nil)
	for i := 0; i < 5; i++ {
		edges.SetSym(i, i+1, 1)
	}
	g := NewDifferences(0)
	require.NoError(t, g.AddGraph(x, edges))

	var diffs mat.Dense
	diffs.Sub(common.RowBlock(x, 1, 6), common.RowBlock(x, 0, 5))
	r := NewDifferences(2)
	require.NoError(t, r.AddRows(&diffs, 1))
	assert.Equal(t, 5.0, r.Weight())
	assert.Equal(t, 5.0, g.Weight())

	gf, err := g.Fix()
	require.NoError(t, err)
	rf, err := r.Fix()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(gf, rf, 1e-12))

	cp := r.Clone()
	require.NoError(t, r.Merge(g))
	assert.Equal(t, 10.0, r.Weight())
	assert.Equal(t, 5.0, cp.Weight())

	_, err = NewDifferences(2).Fix()
	require.ErrorIs(t, err, common.ErrNoSamples)
}
