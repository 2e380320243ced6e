package hinet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/flow"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/nodes"
	"github.com/fwmeng88/mdp-toolkit/polynomial"
	"github.com/fwmeng88/mdp-toolkit/train"
)

var errCopy = errors.New("copy refused")

type uncopyable struct {
	*nodes.Identity
}

func (uncopyable) Copy() (node.Node, error) { return nil, errCopy }

func newFlowNode(t *testing.T, ns ...node.Node) *FlowNode {
	t.Helper()
	f, err := flow.New(ns)
	require.NoError(t, err)
	fn, err := NewFlowNode(f)
	require.NoError(t, err)
	return fn
}

func TestFlowNodePhases(t *testing.T) {
	fn := newFlowNode(t,
		pca(5, 0),
		nodes.NewFDA(nil),
		nodes.NewSFA(nodes.DefaultSFAConfig()))
	assert.True(t, fn.IsTrainable())
	assert.Equal(t, 4, fn.RemainingPhases())

	x := normalMat(300, 5, 9)
	labels := make([]int, 300)
	for i := range labels {
		labels[i] = i % 3
	}
	for want := 3; want >= 0; want-- {
		require.NoError(t, fn.Train(x, node.Labels(labels)))
		require.NoError(t, fn.StopTraining())
		assert.Equal(t, want, fn.RemainingPhases())
	}
	assert.False(t, fn.IsTraining())
	require.ErrorIs(t, fn.Train(x), common.ErrTrainingFinished)
	require.ErrorIs(t, fn.StopTraining(), common.ErrTrainingFinished)

	y, err := fn.Execute(x)
	require.NoError(t, err)
	want, err := fn.Flow().Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, y))
}

func TestFlowNodeCapabilities(t *testing.T) {
	fn := newFlowNode(t, nodes.NewIdentity(node.WithInputDim(3)), nodes.NewIdentity())
	assert.False(t, fn.IsTrainable())
	assert.True(t, fn.IsInvertible())
	assert.Equal(t, 3, fn.OutputDim())
	require.ErrorIs(t, fn.Train(mat.NewDense(2, 3, nil)), common.ErrNotTrainable)

	fn = newFlowNode(t, nodes.NewIdentity(node.WithInputDim(3)), nodes.NewNoise(nodes.NoiseConfig{Std: 0.1}))
	assert.False(t, fn.IsInvertible())
	_, err := fn.Inverse(mat.NewDense(2, 3, nil))
	require.ErrorIs(t, err, common.ErrNotInvertible)
	assert.Len(t, fn.Children(), 2)
}

func TestFlowNodeDims(t *testing.T) {
	f, err := flow.New([]node.Node{pca(0, 0), nodes.NewIdentity()})
	require.NoError(t, err)
	fn, err := NewFlowNode(f, node.WithInputDim(4), node.WithDtype(node.Float32))
	require.NoError(t, err)
	assert.Equal(t, 4, fn.InputDim())
	assert.Equal(t, node.Float32, f.Node(1).Dtype())

	f, err = flow.New([]node.Node{pca(3, 0)})
	require.NoError(t, err)
	var dm *common.DimensionMismatch
	_, err = NewFlowNode(f, node.WithInputDim(4))
	require.ErrorAs(t, err, &dm)
}

func TestFlowNodePretrained(t *testing.T) {
	x := normalMat(100, 4, 10)
	p := pca(4, 2)
	trainNode(t, p, x)
	fn := newFlowNode(t, p)
	assert.True(t, fn.IsTrainable())
	assert.False(t, fn.IsTraining())
	assert.Equal(t, 0, fn.RemainingPhases())
	y, err := fn.Execute(x)
	require.NoError(t, err)
	want, err := p.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, y))
}

func TestFlowNodeCopy(t *testing.T) {
	fn := newFlowNode(t, pca(3, 0))
	cp, err := fn.Copy()
	require.NoError(t, err)
	trainNode(t, cp, normalMat(50, 3, 11))
	assert.False(t, cp.IsTraining())
	assert.True(t, fn.IsTraining())

	fn = newFlowNode(t, uncopyable{nodes.NewIdentity(node.WithInputDim(2))})
	_, err = fn.Copy()
	require.ErrorIs(t, err, errCopy)
}

func TestFlowNodeTrainingLoop(t *testing.T) {
	x := normalMat(500, 10, 12)
	expand, err := polynomial.NewExpansion(2)
	require.NoError(t, err)
	inner := newFlowNode(t, expand, pca(0, 15))
	expand, err = polynomial.NewExpansion(2)
	require.NoError(t, err)
	f, err := flow.New([]node.Node{inner, expand, pca(0, 3)})
	require.NoError(t, err)
	assert.Equal(t, 2, f.RemainingPhases())

	require.NoError(t, f.Train(train.Array(x)))
	assert.Equal(t, 15, inner.OutputDim())
	assert.Equal(t, 15, expand.InputDim())
	assert.Equal(t, polynomial.ExpandedDim(2, 15), expand.OutputDim())
	y, err := f.Execute(x)
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, 500, r)
	assert.Equal(t, 3, c)
}

// TestSimpleNet trains a shared PCA on overlapping fields of a 12x8 grid.
func TestSimpleNet(t *testing.T) {
	sb, err := NewRectangular2dSwitchboard(Rect2dConfig{XInChannels: 12, YInChannels: 8, InChannelDim: 3,
		XFieldChannels: 4, YFieldChannels: 4, XFieldSpacing: 2, YFieldSpacing: 2})
	require.NoError(t, err)
	xOut, yOut := sb.OutChannelsXY()
	assert.Equal(t, 5, xOut)
	assert.Equal(t, 3, yOut)
	assert.Equal(t, 48, sb.OutChannelDim())

	fn := newFlowNode(t, pca(sb.OutChannelDim(), 5))
	layer, err := NewCloneLayer(fn, sb.OutputChannels())
	require.NoError(t, err)
	net, err := flow.New([]node.Node{sb, layer})
	require.NoError(t, err)

	x := normalMat(10, sb.InputDim(), 13)
	require.NoError(t, net.Train(train.Array(x)))
	assert.False(t, net.IsTraining())
	y, err := net.Execute(x)
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 15*5, c)
}

// TestSFANet trains independent noisy SFA nodes on the fields of a 10x10
// grid in single precision.
func TestSFANet(t *testing.T) {
	sb, err := NewRectangular2dSwitchboard(Rect2dConfig{XInChannels: 10, YInChannels: 10,
		XFieldChannels: 5, YFieldChannels: 5})
	require.NoError(t, err)
	fn := newFlowNode(t,
		nodes.NewNoise(nodes.NoiseConfig{Std: 1e-4, Seed: 1}, node.WithInputDim(25)),
		nodes.NewSFA(nodes.DefaultSFAConfig(), node.WithInputDim(25), node.WithOutputDim(5), node.WithDtype(node.Float32)))
	layer, err := NewCloneLayer(fn, sb.OutputChannels())
	require.NoError(t, err)
	require.NoError(t, layer.SetUseCopies(true))
	net, err := flow.New([]node.Node{sb, layer})
	require.NoError(t, err)
	assert.Equal(t, node.Float32, sb.Dtype())

	x := normalMat(90, 100, 14)
	seq, err := train.Blocks(x, 30, nil)
	require.NoError(t, err)
	require.NoError(t, net.Train(nil, seq))
	y, err := net.Execute(x)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 4*5, c)
	for _, v := range y.RawMatrix().Data {
		require.Equal(t, v, float64(float32(v)))
	}
}
