package rowwise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

type summer struct{}

func (s *summer) NewFunc() Func { return &summerFunc{} }

type summerFunc struct {
	scratch []float64
}

func (f *summerFunc) Apply(in, out []float64) {
	f.scratch = append(f.scratch[:0], in...)
	out[0] = 0
	for _, v := range f.scratch {
		out[0] += v
	}
	out[1] = float64(len(f.scratch))
}

func TestApply(t *testing.T) {
	x := mat.NewDense(3000, 3, nil)
	x.Apply(func(i, j int, v float64) float64 { return float64(i + j) }, x)
	y, err := Apply(&summer{}, x, 2)
	require.NoError(t, err)
	for i := 0; i < 3000; i++ {
		assert.Equal(t, float64(3*i+3), y.At(i, 0))
		assert.Equal(t, 3.0, y.At(i, 1))
	}
}

func TestApplyFunc(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	y, err := Apply(BatchFunc(func(in, out []float64) { out[0] = in[0] * in[1] }), x, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 12}, y.RawMatrix().Data)

	_, err = Apply(BatchFunc(func(in, out []float64) {}), nil, 1)
	require.ErrorIs(t, err, common.ErrNoData)
	var dm *common.DimensionMismatch
	_, err = Apply(BatchFunc(func(in, out []float64) {}), x, 0)
	require.ErrorAs(t, err, &dm)
}
