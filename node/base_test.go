package node

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

// counter is a minimal node that counts the samples of each phase.
type counter struct {
	Base
	seen     []int
	children []Node
}

func newCounter(phases int, opts ...Option) *counter {
	return &counter{Base: NewBase(phases, opts), seen: make([]int, phases)}
}

func (c *counter) IsInvertible() bool { return true }

func (c *counter) Train(x *mat.Dense, opts ...TrainOption) error {
	if err := c.CheckTrain(x); err != nil {
		return err
	}
	r, _ := x.Dims()
	c.seen[c.Phase()] += r
	return nil
}

func (c *counter) StopTraining(opts ...TrainOption) error {
	if err := c.CheckStop(); err != nil {
		return err
	}
	c.FinishPhase()
	if c.OutputDim() == 0 {
		c.ForceOutputDim(c.InputDim())
	}
	return nil
}

func (c *counter) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := c.CheckExecute(x); err != nil {
		return nil, err
	}
	return c.Cast(mat.DenseCopyOf(x)), nil
}

func (c *counter) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := c.CheckInverse(y, c.IsInvertible()); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(y), nil
}

func (c *counter) Copy() (Node, error) {
	cp := *c
	cp.seen = append([]int(nil), c.seen...)
	return &cp, nil
}

func (c *counter) Children() []Node { return c.children }

func TestStateMachine(t *testing.T) {
	c := newCounter(2, WithID("counter"))
	assert.True(t, c.IsTrainable())
	assert.True(t, c.IsTraining())
	assert.Equal(t, 2, c.RemainingPhases())
	assert.Equal(t, DtypeUnset, c.Dtype())

	x := mat.NewDense(3, 2, nil)
	_, err := c.Execute(x)
	require.ErrorIs(t, err, common.ErrTrainingNotFinished)

	require.NoError(t, c.Train(x))
	assert.Equal(t, 2, c.InputDim())
	assert.Equal(t, Float64, c.Dtype())

	err = c.Train(mat.NewDense(3, 3, nil))
	var dm *DimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Found)

	require.NoError(t, c.StopTraining())
	assert.Equal(t, 1, c.RemainingPhases())
	require.NoError(t, c.Train(x))
	require.NoError(t, c.Train(x))
	require.NoError(t, c.StopTraining())
	assert.Equal(t, []int{3, 6}, c.seen)
	assert.False(t, c.IsTraining())

	require.ErrorIs(t, c.Train(x), common.ErrTrainingFinished)
	require.ErrorIs(t, c.StopTraining(), common.ErrTrainingFinished)

	y, err := c.Execute(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, y))

	_, err = c.Inverse(mat.NewDense(1, 5, nil))
	require.ErrorAs(t, err, &dm)
}

// DimensionMismatch is aliased for brevity in the tests above.
type DimensionMismatch = common.DimensionMismatch

func TestUntrainable(t *testing.T) {
	c := newCounter(0)
	assert.False(t, c.IsTrainable())
	assert.False(t, c.IsTraining())
	require.ErrorIs(t, c.Train(mat.NewDense(1, 1, nil)), common.ErrNotTrainable)
	require.ErrorIs(t, c.StopTraining(), common.ErrNotTrainable)
	_, err := c.Execute(mat.NewDense(1, 1, nil))
	require.NoError(t, err)
}

func TestNilBatch(t *testing.T) {
	c := newCounter(1)
	require.ErrorIs(t, c.Train(nil), common.ErrNoData)
	require.ErrorIs(t, c.Train(&mat.Dense{}), common.ErrNoData)
}

func TestSetters(t *testing.T) {
	c := newCounter(1, WithInputDim(4), WithOutputDim(2), WithDtype(Float32))
	require.NoError(t, c.SetInputDim(4))
	var dm *DimensionMismatch
	require.ErrorAs(t, c.SetInputDim(5), &dm)
	require.ErrorAs(t, c.SetOutputDim(3), &dm)
	require.NoError(t, c.SetDtype(Float32))
	require.NoError(t, c.SetDtype(DtypeUnset))
	require.ErrorIs(t, c.SetDtype(Float64), common.ErrDtypeMismatch)
	assert.NotEmpty(t, newCounter(1).ID())
	assert.NotEqual(t, newCounter(1).ID(), newCounter(1).ID())
}

func TestFloat32Cast(t *testing.T) {
	c := newCounter(0, WithDtype(Float32))
	y, err := c.Execute(mat.NewDense(1, 1, []float64{0.1}))
	require.NoError(t, err)
	assert.Equal(t, float64(float32(0.1)), y.At(0, 0))
}

func TestDescribeAndWalk(t *testing.T) {
	leaf := newCounter(1, WithID("leaf"), WithInputDim(2))
	root := newCounter(0, WithID("root"))
	root.children = []Node{leaf, leaf}

	d := Describe(root)
	assert.Equal(t, "root", d.ID)
	assert.Equal(t, "node.counter", d.Kind)
	require.Len(t, d.Children, 1)
	assert.Equal(t, "leaf", d.Children[0].ID)
	assert.True(t, d.Children[0].Training)
	assert.Equal(t, 1, d.Children[0].RemainingPhases)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"node.counter"`)

	var ids []string
	Walk(root, func(n Node) bool {
		ids = append(ids, n.ID())
		return true
	})
	assert.Equal(t, []string{"root", "leaf", "leaf"}, ids)

	assert.Same(t, leaf, Find(root, "leaf"))
	assert.Nil(t, Find(root, "missing"))
}

func TestTrainOptions(t *testing.T) {
	o := CollectTrainOptions([]TrainOption{IncludeLastSample(false), Labels([]int{1, 2})})
	require.NotNil(t, o.IncludeLastSample)
	assert.False(t, *o.IncludeLastSample)
	assert.Equal(t, []int{1, 2}, o.Labels)
	assert.Equal(t, TrainMode(""), o.Mode)

	w := mat.NewSymDense(2, nil)
	o = CollectTrainOptions([]TrainOption{WithGraph([]float64{1, 1}, w)})
	assert.Equal(t, Graph, o.Mode)
	assert.Equal(t, "float32", Float32.String())
}
