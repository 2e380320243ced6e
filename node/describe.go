package node

import (
	"fmt"
	"strings"
)

// Description is a serialisable summary of a node and its children.
type Description struct {
	ID              string        `json:"id"`
	Kind            string        `json:"kind"`
	InputDim        int           `json:"inputDim"`
	OutputDim       int           `json:"outputDim"`
	Dtype           string        `json:"dtype"`
	Trainable       bool          `json:"trainable"`
	Training        bool          `json:"training"`
	Invertible      bool          `json:"invertible"`
	RemainingPhases int           `json:"remainingPhases"`
	Children        []Description `json:"children,omitempty"`
}

// Kind returns the type name of n, e.g. "nodes.SFA".
func Kind(n Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*")
}

// Describe summarises n and, recursively, its children.
func Describe(n Node) Description {
	d := Description{
		ID:              n.ID(),
		Kind:            Kind(n),
		InputDim:        n.InputDim(),
		OutputDim:       n.OutputDim(),
		Dtype:           n.Dtype().String(),
		Trainable:       n.IsTrainable(),
		Training:        n.IsTraining(),
		Invertible:      n.IsInvertible(),
		RemainingPhases: n.RemainingPhases(),
	}
	if c, ok := n.(Container); ok {
		seen := make(map[Node]bool)
		for _, child := range c.Children() {
			// a CloneLayer in shared mode lists the same node several times
			if seen[child] {
				continue
			}
			seen[child] = true
			d.Children = append(d.Children, Describe(child))
		}
	}
	return d
}

// Walk calls fn for n and every node nested inside it, parents before
// children. Walking stops early when fn returns false.
func Walk(n Node, fn func(Node) bool) bool {
	if !fn(n) {
		return false
	}
	if c, ok := n.(Container); ok {
		for _, child := range c.Children() {
			if !Walk(child, fn) {
				return false
			}
		}
	}
	return true
}

// Find returns the first node with the given ID nested in n, or nil.
func Find(n Node, id string) Node {
	var found Node
	Walk(n, func(m Node) bool {
		if m.ID() == id {
			found = m
			return false
		}
		return true
	})
	return found
}
