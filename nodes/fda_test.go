package nodes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/common/nodetest"
	"github.com/fwmeng88/mdp-toolkit/node"
)

func twoClasses(rnd *rand.Rand, n int) (*mat.Dense, []int) {
	x := nodetest.RandomMat(n, 3, rnd.NormFloat64)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		if i%2 == 1 {
			labels[i] = 1
			x.Set(i, 0, x.At(i, 0)+5)
		}
	}
	return x, labels
}

func TestFDA(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	x, labels := twoClasses(rnd, 400)

	f := NewFDA(nil)
	assert.Equal(t, 2, f.RemainingPhases())
	require.NoError(t, f.Train(x, node.Labels(labels)))
	require.NoError(t, f.StopTraining())
	assert.Equal(t, []int{0, 1}, f.Labels())
	assert.InDelta(t, 5, f.ClassMean(1)[0]-f.ClassMean(0)[0], 0.5)

	require.NoError(t, f.Train(x, node.Labels(labels)))
	require.NoError(t, f.StopTraining())
	assert.False(t, f.IsTraining())

	d := f.D()
	require.Len(t, d, 3)
	assert.Less(t, d[0], 0.3)
	assert.Greater(t, d[2], 0.8)

	y, err := f.Execute(x)
	require.NoError(t, err)
	var first, second []float64
	for i, l := range labels {
		if l == 0 {
			first = append(first, y.At(i, 0))
		} else {
			second = append(second, y.At(i, 0))
		}
	}
	sep := stat.Mean(second, nil) - stat.Mean(first, nil)
	assert.Greater(t, sep*sep, 9*stat.Variance(first, nil))

	back, err := f.Inverse(y)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, back, 1e-8))
}

func TestFDALabels(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x, labels := twoClasses(rnd, 40)

	f := NewFDA(nil)
	var dm *common.DimensionMismatch
	require.ErrorAs(t, f.Train(x, node.Labels(labels[:10])), &dm)
	require.ErrorAs(t, f.Train(x), &dm)

	require.NoError(t, f.Train(x, node.Labels(labels)))
	require.NoError(t, f.StopTraining())
	bad := make([]int, len(labels))
	bad[0] = 7
	require.Error(t, f.Train(x, node.Labels(bad)))

	empty := NewFDA(nil)
	require.ErrorIs(t, empty.StopTraining(), common.ErrNoSamples)
}

func TestFDACopy(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	x, labels := twoClasses(rnd, 100)

	f := NewFDA(nil, node.WithOutputDim(1))
	require.NoError(t, f.Train(x, node.Labels(labels)))
	require.NoError(t, f.StopTraining())
	cp, err := f.Copy()
	require.NoError(t, err)
	for _, n := range []node.Node{f, cp} {
		require.NoError(t, n.Train(x, node.Labels(labels)))
		require.NoError(t, n.StopTraining())
	}
	y1, err := f.Execute(x)
	require.NoError(t, err)
	y2, err := cp.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y1, y2))
	assert.Equal(t, 1, cp.OutputDim())
}
