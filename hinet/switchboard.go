// Package hinet builds hierarchical networks out of nodes: flows wrapped
// as single nodes, parallel layers and the switchboards that route input
// components to the nodes of a layer.
package hinet

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/rowwise"
)

// Switchboard routes input components to output components:
// y[j] = x[connections[j]].
type Switchboard struct {
	node.Base
	connections []int
}

// NewSwitchboard returns a switchboard with the given routing table.
func NewSwitchboard(inputDim int, connections []int, opts ...node.Option) (*Switchboard, error) {
	s := &Switchboard{Base: node.NewBase(0, opts)}
	if err := s.init(inputDim, connections); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Switchboard) init(inputDim int, connections []int) error {
	if inputDim <= 0 {
		return common.Topologyf("input dimension must be positive, found %d", inputDim)
	}
	if len(connections) == 0 {
		return common.Topologyf("no connections")
	}
	for j, c := range connections {
		if c < 0 || c >= inputDim {
			return common.Topologyf("connection %d reads input %d, outside [0, %d)", j, c, inputDim)
		}
	}
	if err := s.Base.SetInputDim(inputDim); err != nil {
		return err
	}
	if err := s.Base.SetOutputDim(len(connections)); err != nil {
		return err
	}
	s.connections = slices.Clone(connections)
	return nil
}

// Connections returns the routing table.
func (s *Switchboard) Connections() []int { return slices.Clone(s.connections) }

// IsInvertible reports whether no input is read twice.
func (s *Switchboard) IsInvertible() bool {
	seen := make(map[int]bool, len(s.connections))
	for _, c := range s.connections {
		if seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

func (s *Switchboard) Train(x *mat.Dense, opts ...node.TrainOption) error {
	return s.CheckTrain(x)
}

func (s *Switchboard) StopTraining(opts ...node.TrainOption) error {
	return s.CheckStop()
}

func (s *Switchboard) Execute(x *mat.Dense) (*mat.Dense, error) {
	if err := s.CheckExecute(x); err != nil {
		return nil, err
	}
	y, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for j, c := range s.connections {
			out[j] = in[c]
		}
	}), x, len(s.connections))
	if err != nil {
		return nil, err
	}
	return s.Cast(y), nil
}

// Inverse writes every output back to the input it was read from. Inputs
// that are not read are zero.
func (s *Switchboard) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := s.CheckInverse(y, s.IsInvertible()); err != nil {
		return nil, err
	}
	x, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for j, c := range s.connections {
			out[c] = in[j]
		}
	}), y, s.InputDim())
	if err != nil {
		return nil, err
	}
	return s.Cast(x), nil
}

func (s *Switchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}

// MeanInverseSwitchboard is a switchboard whose inverse sets every input
// to the mean of the outputs that read it.
type MeanInverseSwitchboard struct {
	Switchboard
	counts []float64
}

// NewMeanInverseSwitchboard returns a switchboard with the given routing
// table and a mean inverse.
func NewMeanInverseSwitchboard(inputDim int, connections []int, opts ...node.Option) (*MeanInverseSwitchboard, error) {
	s := &MeanInverseSwitchboard{Switchboard: Switchboard{Base: node.NewBase(0, opts)}}
	if err := s.init(inputDim, connections); err != nil {
		return nil, err
	}
	s.counts = make([]float64, inputDim)
	for _, c := range connections {
		s.counts[c]++
	}
	return s, nil
}

func (s *MeanInverseSwitchboard) IsInvertible() bool { return true }

// Inverse sets every input to the mean of the outputs reading it, or zero
// if no output does.
func (s *MeanInverseSwitchboard) Inverse(y *mat.Dense) (*mat.Dense, error) {
	if err := s.CheckInverse(y, true); err != nil {
		return nil, err
	}
	x, err := rowwise.Apply(rowwise.BatchFunc(func(in, out []float64) {
		for j, c := range s.connections {
			out[c] += in[j]
		}
		for i, n := range s.counts {
			if n > 0 {
				out[i] /= n
			}
		}
	}), y, s.InputDim())
	if err != nil {
		return nil, err
	}
	return s.Cast(x), nil
}

func (s *MeanInverseSwitchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}

// ChannelSwitchboard is a switchboard whose inputs and outputs are grouped
// in channels of fixed width. An out channel typically feeds one node of a
// layer.
type ChannelSwitchboard struct {
	Switchboard
	outChannelDim int
	inChannelDim  int
}

// NewChannelSwitchboard returns a channel switchboard.
func NewChannelSwitchboard(inputDim int, connections []int, outChannelDim, inChannelDim int, opts ...node.Option) (*ChannelSwitchboard, error) {
	s := &ChannelSwitchboard{Switchboard: Switchboard{Base: node.NewBase(0, opts)}}
	if err := s.initChannels(inputDim, connections, outChannelDim, inChannelDim); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChannelSwitchboard) initChannels(inputDim int, connections []int, outChannelDim, inChannelDim int) error {
	if outChannelDim <= 0 || inChannelDim <= 0 {
		return common.Topologyf("channel dimensions must be positive, found out %d in %d", outChannelDim, inChannelDim)
	}
	if len(connections)%outChannelDim != 0 {
		return common.Topologyf("%d connections do not fill out channels of width %d", len(connections), outChannelDim)
	}
	if inputDim%inChannelDim != 0 {
		return common.Topologyf("input dimension %d is not a multiple of the in channel width %d", inputDim, inChannelDim)
	}
	if err := s.init(inputDim, connections); err != nil {
		return err
	}
	s.outChannelDim = outChannelDim
	s.inChannelDim = inChannelDim
	return nil
}

// OutChannelDim returns the width of an out channel.
func (s *ChannelSwitchboard) OutChannelDim() int { return s.outChannelDim }

// InChannelDim returns the width of an in channel.
func (s *ChannelSwitchboard) InChannelDim() int { return s.inChannelDim }

// OutputChannels returns the number of out channels.
func (s *ChannelSwitchboard) OutputChannels() int { return len(s.connections) / s.outChannelDim }

// OutChannelInput returns the inputs read by out channel c.
func (s *ChannelSwitchboard) OutChannelInput(c int) []int {
	return slices.Clone(s.connections[c*s.outChannelDim : (c+1)*s.outChannelDim])
}

// OutChannelsInputChannels returns the sorted in channels read by the
// given out channels.
func (s *ChannelSwitchboard) OutChannelsInputChannels(channels ...int) []int {
	var in []int
	for _, c := range channels {
		for _, i := range s.connections[c*s.outChannelDim : (c+1)*s.outChannelDim] {
			in = append(in, i/s.inChannelDim)
		}
	}
	slices.Sort(in)
	return slices.Compact(in)
}

// OutChannelNode returns a switchboard producing only out channel c from
// the full input.
func (s *ChannelSwitchboard) OutChannelNode(c int, opts ...node.Option) (*Switchboard, error) {
	if c < 0 || c >= s.OutputChannels() {
		return nil, common.Topologyf("out channel %d outside [0, %d)", c, s.OutputChannels())
	}
	return NewSwitchboard(s.InputDim(), s.OutChannelInput(c), opts...)
}

func (s *ChannelSwitchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}
