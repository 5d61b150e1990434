// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnet

import (
	"github.com/gomlx/nnet3/pkg/nnet3/descriptor"
	"github.com/gomlx/nnet3/pkg/support/sets"
	"github.com/pkg/errors"
)

const (
	// InputName is the name of the features input of a simple network.
	InputName = "input"

	// IvectorName is the name of the optional i-vector input of a simple network.
	IvectorName = "ivector"

	// OutputName is the name of the output of a simple network.
	OutputName = "output"
)

// IsSimple returns whether n has the shape of a "simple" network: one output called "output",
// an input called "input", optionally an input called "ivector" and no other inputs, and a
// statically computable context (see ComputeSimpleContext).
func IsSimple(n *Nnet) bool {
	if !n.IsOutput(OutputName) || !n.IsInput(InputName) {
		return false
	}
	for _, name := range n.InputNames() {
		if name != InputName && name != IvectorName {
			return false
		}
	}
	_, _, err := ComputeSimpleContext(n)
	return err == nil
}

// ComputeSimpleContext returns how many frames of "input" before (left) and after (right) a
// frame of "output" are needed to compute it.
//
// Optional (IfDefined) dependencies and inputs at a fixed time (ReplaceIndex over t) don't
// add to the context.
func ComputeSimpleContext(n *Nnet) (left, right int, err error) {
	output := n.GetNode(OutputName)
	if output == nil || output.Kind != OutputNode {
		return 0, 0, errors.Errorf("network has no output node %q", OutputName)
	}
	if !n.IsInput(InputName) {
		return 0, 0, errors.Errorf("network has no input node %q", InputName)
	}
	c := &contextComputer{net: n, offsets: make(map[string]sets.Set[int]), visiting: sets.Make[string]()}
	offsets, err := c.descriptorOffsets(output.Input)
	if err != nil {
		return 0, 0, err
	}
	if len(offsets) == 0 {
		return 0, 0, errors.Errorf("output %q doesn't depend on input %q", OutputName, InputName)
	}
	sorted := sets.Sorted(offsets)
	return max(0, -sorted[0]), max(0, sorted[len(sorted)-1]), nil
}

// contextComputer memoizes, per node, the time offsets of "input" it depends on.
type contextComputer struct {
	net      *Nnet
	offsets  map[string]sets.Set[int]
	visiting sets.Set[string]
}

func (c *contextComputer) nodeOffsets(name string) (sets.Set[int], error) {
	if offsets, found := c.offsets[name]; found {
		return offsets, nil
	}
	node := c.net.GetNode(name)
	if node == nil {
		return nil, errors.Errorf("undefined node %q", name)
	}
	var offsets sets.Set[int]
	switch node.Kind {
	case InputNode:
		offsets = sets.Make[int]()
		if name == InputName {
			offsets.Insert(0)
		}
	case ComponentNode:
		if c.visiting.Has(name) {
			return nil, errors.Errorf("network has a cycle through node %q, context can't be computed", name)
		}
		c.visiting.Insert(name)
		var err error
		offsets, err = c.descriptorOffsets(node.Input)
		if err != nil {
			return nil, err
		}
		delete(c.visiting, name)
	default:
		return nil, errors.Errorf("output node %q used as an input", name)
	}
	c.offsets[name] = offsets
	return offsets, nil
}

func (c *contextComputer) descriptorOffsets(d descriptor.Descriptor) (sets.Set[int], error) {
	switch d := d.(type) {
	case *descriptor.Node:
		return c.nodeOffsets(d.Name)
	case *descriptor.IfDefined:
		return sets.Make[int](), nil
	case *descriptor.ReplaceIndex:
		if d.Variable == descriptor.VariableT {
			return sets.Make[int](), nil
		}
		return c.descriptorOffsets(d.Src)
	case *descriptor.Offset:
		inner, err := c.descriptorOffsets(d.Src)
		if err != nil {
			return nil, err
		}
		shifted := sets.Make[int](len(inner))
		for offset := range inner {
			shifted.Insert(offset + d.T)
		}
		return shifted, nil
	default:
		// Append, Sum: union of the parts.
		union := sets.Make[int]()
		for _, part := range d.Parts() {
			offsets, err := c.descriptorOffsets(part)
			if err != nil {
				return nil, err
			}
			union.Union(offsets)
		}
		return union, nil
	}
}
