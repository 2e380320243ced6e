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

func TestIdentity(t *testing.T) {
	x := nodetest.RandomMat(5, 3, rand.New(rand.NewSource(1)).Float64)
	n := NewIdentity()
	assert.False(t, n.IsTrainable())
	y, err := n.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, y))
	assert.Equal(t, 3, n.InputDim())
	assert.Equal(t, 3, n.OutputDim())

	back, err := n.Inverse(y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, back))

	n = NewIdentity(node.WithOutputDim(4))
	assert.Equal(t, 4, n.InputDim())
	_, err = n.Execute(mat.NewDense(2, 5, nil))
	var dm *common.DimensionMismatch
	require.ErrorAs(t, err, &dm)
	require.Error(t, n.SetOutputDim(2))
}

func TestNoise(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x := nodetest.RandomMat(2000, 2, rnd.Float64)
	n := NewNoise(NoiseConfig{Std: 0.5, Seed: 9})
	y, err := n.Execute(x)
	require.NoError(t, err)
	assert.Equal(t, 2, n.OutputDim())

	diff := mat.NewDense(2000, 2, nil)
	diff.Sub(y, x)
	assert.InDelta(t, 0.5, stat.StdDev(mat.Col(nil, 0, diff), nil), 0.05)

	cp, err := n.Copy()
	require.NoError(t, err)
	fresh := NewNoise(NoiseConfig{Std: 0.5, Seed: 9})
	y1, err := cp.Execute(x)
	require.NoError(t, err)
	y2, err := fresh.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y1, y2))

	_, err = n.Inverse(y)
	require.ErrorIs(t, err, common.ErrNotInvertible)

	m := NewNoise(NoiseConfig{Std: 0.1, Multiplicative: true, Seed: 1})
	zeros := mat.NewDense(3, 2, nil)
	z, err := m.Execute(zeros)
	require.NoError(t, err)
	assert.True(t, mat.Equal(zeros, z))
}
