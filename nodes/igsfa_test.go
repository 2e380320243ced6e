package nodes

import (
	"flag"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/common/nodetest"
	"github.com/fwmeng88/mdp-toolkit/node"
)

var scalingTol = flag.Float64("igsfa.scaling-tol", 1e-6, "tolerance of the iGSFA slow feature scaling equivalence test")

func newIGSFA(t *testing.T, cfg IGSFAConfig, opts ...node.Option) *IGSFA {
	t.Helper()
	n, err := NewIGSFA(cfg, opts...)
	require.NoError(t, err)
	return n
}

func igsfaConfig(scaling ScalingMethod, reconstruct bool) IGSFAConfig {
	cfg := DefaultIGSFAConfig()
	cfg.Scaling = scaling
	cfg.ReconstructWithSFA = reconstruct
	return cfg
}

func cube(x *mat.Dense) *mat.Dense {
	c := mat.DenseCopyOf(x)
	c.Apply(func(i, j int, v float64) float64 { return v * v * v }, c)
	return c
}

func TestIGSFAAutomaticStop(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)
	for _, scaling := range []ScalingMethod{ScalingNone, ScalingDataDependent, ScalingSensitivity, ScalingQR} {
		n := newIGSFA(t, igsfaConfig(scaling, true), node.WithOutputDim(15))
		require.NoError(t, n.Train(x, node.Mode(node.Regular)), string(scaling))
		assert.False(t, n.IsTraining(), string(scaling))
		require.ErrorIs(t, n.Train(x), common.ErrTrainingFinished, string(scaling))
	}
}

func TestIGSFANoAutomaticStop(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)
	for _, scaling := range []ScalingMethod{ScalingNone, ScalingDataDependent} {
		n := newIGSFA(t, igsfaConfig(scaling, false), node.WithOutputDim(5))
		require.NoError(t, n.Train(x))
		require.NoError(t, n.Train(x))
		assert.True(t, n.IsTraining())
		require.NoError(t, n.StopTraining())
		y, err := n.Execute(x)
		require.NoError(t, err)
		_, c := y.Dims()
		assert.Equal(t, 5, c)
	}
}

func TestIGSFARejectsScalingWithoutReconstruction(t *testing.T) {
	for _, scaling := range []ScalingMethod{ScalingSensitivity, ScalingQR} {
		_, err := NewIGSFA(igsfaConfig(scaling, false))
		require.Error(t, err, string(scaling))
	}
	_, err := NewIGSFA(igsfaConfig("spectral", true))
	require.Error(t, err)
	cfg := DefaultIGSFAConfig()
	cfg.DeltaThreshold = DeltaCount(-1)
	_, err = NewIGSFA(cfg)
	require.Error(t, err)
}

func TestIGSFAScalingMethodsOnlyScale(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)

	var outputs []*mat.Dense
	var slow []int
	for _, scaling := range []ScalingMethod{ScalingQR, ScalingSensitivity, ScalingNone, ScalingDataDependent} {
		n := newIGSFA(t, igsfaConfig(scaling, true), node.WithOutputDim(15))
		require.NoError(t, n.Train(x))
		y, err := n.Execute(x)
		require.NoError(t, err)
		outputs = append(outputs, y)
		slow = append(slow, n.SlowPartLength())
		for _, s := range n.Scales() {
			assert.Greater(t, s, 0.0)
		}
	}
	ref := outputs[len(outputs)-1]
	for i, y := range outputs[:len(outputs)-1] {
		assert.Equal(t, slow[len(slow)-1], slow[i])
		ratio := make([]float64, 15)
		for j := range ratio {
			ratio[j] = ref.At(0, j) / y.At(0, j)
		}
		scaled := mat.DenseCopyOf(y)
		scaled.Apply(func(r, c int, v float64) float64 { return v * ratio[c] }, scaled)
		assert.True(t, mat.EqualApprox(ref, scaled, *scalingTol), "scaling method %d", i)
	}
}

func TestIGSFADeltaThresholdCount(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)

	cfg := igsfaConfig(ScalingNone, false)
	cfg.DeltaThreshold = DeltaCount(6)
	n := newIGSFA(t, cfg, node.WithOutputDim(5))
	require.NoError(t, n.Train(x))
	require.NoError(t, n.Train(cube(x)))
	err := n.StopTraining()
	require.ErrorIs(t, err, common.ErrThreshold)
	var tf *common.TrainingFailure
	require.ErrorAs(t, err, &tf)

	cfg.ReconstructWithSFA = true
	n = newIGSFA(t, cfg, node.WithOutputDim(5))
	require.ErrorIs(t, n.Train(x), common.ErrThreshold)

	x10 := nodetest.RandomMat(300, 10, rnd.NormFloat64)
	cfg = igsfaConfig(ScalingNone, false)
	cfg.DeltaThreshold = DeltaCount(6)
	cfg.MaxLengthSlowPart = 5
	n = newIGSFA(t, cfg, node.WithOutputDim(8))
	require.NoError(t, n.Train(x10))
	require.NoError(t, n.Train(cube(x10)))
	require.ErrorIs(t, n.StopTraining(), common.ErrThreshold)

	cfg.ReconstructWithSFA = true
	n = newIGSFA(t, cfg, node.WithOutputDim(8))
	require.ErrorIs(t, n.Train(x10), common.ErrThreshold)

	cfg.DeltaThreshold = DeltaCount(3)
	n = newIGSFA(t, cfg, node.WithOutputDim(8))
	require.NoError(t, n.Train(x10))
	assert.Equal(t, 3, n.SlowPartLength())
	assert.Len(t, n.ResidualVariances(), 5)
}

func TestIGSFAEquivalentToGSFAForLargeThreshold(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)

	cfg := DefaultIGSFAConfig()
	cfg.Scaling = ScalingNone
	cfg.DeltaThreshold = DeltaBound(4.10)
	n := newIGSFA(t, cfg, node.WithOutputDim(5))
	require.NoError(t, n.Train(x, node.Mode(node.Regular)))
	assert.False(t, n.IsTraining())
	assert.Equal(t, 5, n.SlowPartLength())
	y, err := n.Execute(x)
	require.NoError(t, err)

	g := NewGSFA(DefaultGSFAConfig(), node.WithOutputDim(5))
	require.NoError(t, g.Train(x))
	require.NoError(t, g.StopTraining())
	y2, err := g.Execute(x)
	require.NoError(t, err)

	assert.True(t, floats.EqualApprox(Delta(y), Delta(y2), 1e-8))
}

func TestIGSFAEquivalentToPCAForZeroThreshold(t *testing.T) {
	rnd := rand.New(rand.NewSource(6))
	x := nodetest.RandomMat(300, 15, rnd.NormFloat64)

	cfg := DefaultIGSFAConfig()
	cfg.Scaling = ScalingNone
	cfg.DeltaThreshold = DeltaBound(0)
	n := newIGSFA(t, cfg, node.WithOutputDim(5))
	require.NoError(t, n.Train(x))
	assert.Equal(t, 0, n.SlowPartLength())
	y, err := n.Execute(x)
	require.NoError(t, err)

	p := NewPCA(DefaultPCAConfig(), node.WithOutputDim(5))
	require.NoError(t, p.Train(x))
	require.NoError(t, p.StopTraining())
	y2, err := p.Execute(x)
	require.NoError(t, err)

	assert.True(t, floats.EqualApprox(Delta(y), Delta(y2), 1e-8))
	assert.True(t, nodetest.EqualUpToSign(y, y2, 1e-8))
}

func TestIGSFAInverse(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	x := nodetest.RandomMat(300, 8, rnd.NormFloat64)
	for _, scaling := range []ScalingMethod{ScalingNone, ScalingSensitivity, ScalingQR} {
		n := newIGSFA(t, igsfaConfig(scaling, true))
		require.NoError(t, n.Train(x))
		assert.Equal(t, 8, n.OutputDim())
		y, err := n.Execute(x)
		require.NoError(t, err)
		back, err := n.Inverse(y)
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(x, back, 1e-8), string(scaling))
	}

	n := newIGSFA(t, igsfaConfig(ScalingDataDependent, false))
	require.NoError(t, n.Train(x))
	require.NoError(t, n.StopTraining())
	y, err := n.Execute(x)
	require.NoError(t, err)
	back, err := n.Inverse(y)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, back, 1e-8))
}

func TestIGSFACopy(t *testing.T) {
	rnd := rand.New(rand.NewSource(8))
	x := nodetest.RandomMat(200, 6, rnd.NormFloat64)
	n := newIGSFA(t, igsfaConfig(ScalingNone, false), node.WithOutputDim(4))
	require.NoError(t, n.Train(x))
	cp, err := n.Copy()
	require.NoError(t, err)
	require.NoError(t, n.StopTraining())
	require.NoError(t, cp.StopTraining())
	y1, err := n.Execute(x)
	require.NoError(t, err)
	y2, err := cp.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(y1, y2, 1e-12))
	assert.False(t, math.IsNaN(y1.At(0, 0)))
	assert.Len(t, n.D(), 4)

	nodetest.TestDimensionMismatch(t, newIGSFA(t, DefaultIGSFAConfig(), node.WithInputDim(6)), "igsfa")
}
