package common

import (
	"errors"
	"fmt"
)

var (
	ErrNoData              = errors.New("mdp: nil data")
	ErrNoSamples           = errors.New("mdp: no samples")
	ErrNotTrainable        = errors.New("mdp: node is not trainable")
	ErrTrainingFinished    = errors.New("mdp: training phases already finished")
	ErrTrainingNotFinished = errors.New("mdp: node has not finished training")
	ErrNotInvertible       = errors.New("mdp: node is not invertible")
	ErrSingular            = errors.New("mdp: covariance matrix is singular")
	ErrThreshold           = errors.New("mdp: delta threshold out of range")
	ErrDtypeMismatch       = errors.New("mdp: dtype mismatch")
)

// DimensionMismatch is returned when the width or height of some data
// disagrees with a dimension that is already fixed.
type DimensionMismatch struct {
	What     string
	Expected int
	Found    int
}

func (d *DimensionMismatch) Error() string {
	return fmt.Sprintf("mdp: %s mismatch. expected: %v, found: %v", d.What, d.Expected, d.Found)
}

// TrainingFailure is returned when the numeric part of closing a training
// phase fails. The node stays in the phase it was in.
type TrainingFailure struct {
	Reason string
	Err    error
}

func (t *TrainingFailure) Error() string {
	if t.Err == nil {
		return "mdp: training failed: " + t.Reason
	}
	return fmt.Sprintf("mdp: training failed: %s: %v", t.Reason, t.Err)
}

func (t *TrainingFailure) Unwrap() error {
	return t.Err
}

// Failf builds a TrainingFailure wrapping err.
func Failf(err error, format string, args ...interface{}) *TrainingFailure {
	return &TrainingFailure{Reason: fmt.Sprintf(format, args...), Err: err}
}

// TopologyError is returned when a switchboard cannot be laid out over the
// requested input geometry.
type TopologyError struct {
	Reason string
}

func (t *TopologyError) Error() string {
	return "mdp: bad switchboard topology: " + t.Reason
}

// Topologyf builds a TopologyError.
func Topologyf(format string, args ...interface{}) *TopologyError {
	return &TopologyError{Reason: fmt.Sprintf(format, args...)}
}
