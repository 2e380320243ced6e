package node

import (
	"log/slog"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
)

// Base implements the dimension bookkeeping and the training state machine
// shared by leaf nodes. Concrete nodes embed it and call the Check methods
// at the start of Train, StopTraining, Execute and Inverse.
//
// A node with zero phases is born trained. Otherwise it starts in phase 0
// and each successful StopTraining advances to the next phase until all
// phases are closed.
type Base struct {
	id        string
	inputDim  int
	outputDim int
	dtype     Dtype
	phases    int
	phase     int
	logger    *slog.Logger
}

// NewBase returns a Base with the given number of training phases.
func NewBase(phases int, opts []Option) Base {
	c := NewConfig(opts)
	b := Base{
		id:        c.ID,
		inputDim:  c.InputDim,
		outputDim: c.OutputDim,
		dtype:     c.Dtype,
		phases:    phases,
		logger:    c.Logger,
	}
	if b.id == "" {
		b.id = uuid.NewString()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

func (b *Base) ID() string           { return b.id }
func (b *Base) InputDim() int        { return b.inputDim }
func (b *Base) OutputDim() int       { return b.outputDim }
func (b *Base) Dtype() Dtype         { return b.dtype }
func (b *Base) Logger() *slog.Logger { return b.logger }

// SetInputDim fixes the input dimension.
func (b *Base) SetInputDim(n int) error {
	if b.inputDim != 0 && b.inputDim != n {
		return &common.DimensionMismatch{What: "input dimension", Expected: b.inputDim, Found: n}
	}
	b.inputDim = n
	return nil
}

// SetOutputDim fixes the output dimension.
func (b *Base) SetOutputDim(n int) error {
	if b.outputDim != 0 && b.outputDim != n {
		return &common.DimensionMismatch{What: "output dimension", Expected: b.outputDim, Found: n}
	}
	b.outputDim = n
	return nil
}

// ForceOutputDim overwrites the output dimension. It is used by nodes that
// can shrink their output after training.
func (b *Base) ForceOutputDim(n int) {
	b.outputDim = n
}

// SetDtype fixes the dtype.
func (b *Base) SetDtype(d Dtype) error {
	if b.dtype != DtypeUnset && d != DtypeUnset && b.dtype != d {
		return common.ErrDtypeMismatch
	}
	if d != DtypeUnset {
		b.dtype = d
	}
	return nil
}

func (b *Base) IsTrainable() bool    { return b.phases > 0 }
func (b *Base) IsTraining() bool     { return b.phase < b.phases }
func (b *Base) RemainingPhases() int { return b.phases - b.phase }

// Phase returns the index of the current training phase.
func (b *Base) Phase() int { return b.phase }

// CheckInput fixes the input dimension and the dtype on the first batch and
// verifies later batches against them.
func (b *Base) CheckInput(x *mat.Dense) error {
	if err := common.CheckBatch(x); err != nil {
		return err
	}
	_, c := x.Dims()
	if err := b.SetInputDim(c); err != nil {
		return err
	}
	if b.dtype == DtypeUnset {
		b.dtype = Float64
	}
	return nil
}

// CheckTrain verifies that x may be fed to the current phase.
func (b *Base) CheckTrain(x *mat.Dense) error {
	if !b.IsTrainable() {
		return common.ErrNotTrainable
	}
	if !b.IsTraining() {
		return common.ErrTrainingFinished
	}
	return b.CheckInput(x)
}

// CheckStop verifies that there is an open phase to close.
func (b *Base) CheckStop() error {
	if !b.IsTrainable() {
		return common.ErrNotTrainable
	}
	if !b.IsTraining() {
		return common.ErrTrainingFinished
	}
	return nil
}

// FinishPhase advances the state machine to the next phase.
func (b *Base) FinishPhase() {
	if b.phase < b.phases {
		b.phase++
	}
}

// CheckExecute verifies that x may be executed.
func (b *Base) CheckExecute(x *mat.Dense) error {
	if b.IsTraining() {
		return common.ErrTrainingNotFinished
	}
	return b.CheckInput(x)
}

// CheckInverse verifies that y may be inverted.
func (b *Base) CheckInverse(y *mat.Dense, invertible bool) error {
	if !invertible {
		return common.ErrNotInvertible
	}
	if b.IsTraining() {
		return common.ErrTrainingNotFinished
	}
	if err := common.CheckBatch(y); err != nil {
		return err
	}
	_, c := y.Dims()
	if b.outputDim != 0 && c != b.outputDim {
		return &common.DimensionMismatch{What: "output dimension", Expected: b.outputDim, Found: c}
	}
	return nil
}

// Cast converts m in place to the node's dtype and returns it.
func (b *Base) Cast(m *mat.Dense) *mat.Dense {
	if b.dtype == Float32 {
		common.RoundFloat32(m)
	}
	return m
}
