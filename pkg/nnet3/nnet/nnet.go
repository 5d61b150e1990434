// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nnet holds a network: a list of named components plus a graph of nodes wiring them.
//
// Networks are built from config text (see ReadConfig):
//
//	component name=affine1 type=AffineComponent input-dim=10 output-dim=100
//	input-node name=input dim=10
//	component-node name=affine1_node component=affine1 input=input
//	output-node name=output input=affine1_node
package nnet

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/component"
	"github.com/gomlx/nnet3/pkg/nnet3/descriptor"
	"github.com/gomlx/nnet3/pkg/support/sets"
	"github.com/pkg/errors"
)

// NodeKind is the kind of network node.
type NodeKind int

const (
	InputNode NodeKind = iota
	ComponentNode
	OutputNode
)

func (k NodeKind) String() string {
	switch k {
	case InputNode:
		return "input-node"
	case ComponentNode:
		return "component-node"
	case OutputNode:
		return "output-node"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Objective is how an output node is trained against its supervision.
type Objective int

const (
	ObjectiveLinear Objective = iota
	ObjectiveQuadratic
)

var objectiveNames = []string{"linear", "quadratic"}

func (o Objective) String() string {
	if o < 0 || int(o) >= len(objectiveNames) {
		return fmt.Sprintf("Objective(%d)", int(o))
	}
	return objectiveNames[o]
}

// ObjectiveString converts an objective name, as given by String, to its value.
func ObjectiveString(name string) (Objective, error) {
	idx := slices.Index(objectiveNames, name)
	if idx < 0 {
		return 0, errors.Errorf("invalid objective %q, valid values are %v", name, objectiveNames)
	}
	return Objective(idx), nil
}

// Node is one node of the network graph.
type Node struct {
	Kind NodeKind
	Name string

	// Dim of an InputNode.
	Dim int

	// Component index of a ComponentNode.
	Component int

	// Input of a ComponentNode or an OutputNode.
	Input descriptor.Descriptor

	// Objective of an OutputNode.
	Objective Objective
}

// String returns the config line defining the node.
func (node *Node) String(n *Nnet) string {
	switch node.Kind {
	case InputNode:
		return fmt.Sprintf("input-node name=%s dim=%d", node.Name, node.Dim)
	case ComponentNode:
		return fmt.Sprintf("component-node name=%s component=%s input=%s",
			node.Name, n.componentNames[node.Component], node.Input)
	default:
		return fmt.Sprintf("output-node name=%s input=%s objective=%s", node.Name, node.Input, node.Objective)
	}
}

// Nnet is a network. The zero value is not usable, create it with New.
type Nnet struct {
	components     []component.Component
	componentNames []string
	componentIndex map[string]int

	nodes     []*Node
	nodeIndex map[string]int
}

// New creates an empty network.
func New() *Nnet {
	return &Nnet{
		componentIndex: make(map[string]int),
		nodeIndex:      make(map[string]int),
	}
}

// NumComponents returns the number of components.
func (n *Nnet) NumComponents() int { return len(n.components) }

// GetComponent returns the component at index c. It panics if c is out of range.
func (n *Nnet) GetComponent(c int) component.Component {
	if c < 0 || c >= len(n.components) {
		Panicf("Nnet.GetComponent(%d): network has %d components", c, len(n.components))
	}
	return n.components[c]
}

// GetComponentName returns the name of the component at index c.
func (n *Nnet) GetComponentName(c int) string {
	if c < 0 || c >= len(n.components) {
		Panicf("Nnet.GetComponentName(%d): network has %d components", c, len(n.components))
	}
	return n.componentNames[c]
}

// GetComponentIndex returns the index of the named component, or -1.
func (n *Nnet) GetComponentIndex(name string) int {
	if c, found := n.componentIndex[name]; found {
		return c
	}
	return -1
}

// NumNodes returns the number of nodes, of all kinds.
func (n *Nnet) NumNodes() int { return len(n.nodes) }

// GetNode returns the named node, or nil.
func (n *Nnet) GetNode(name string) *Node {
	if idx, found := n.nodeIndex[name]; found {
		return n.nodes[idx]
	}
	return nil
}

// NodeNames returns the names of all nodes, in the order they were first defined.
func (n *Nnet) NodeNames() []string {
	names := make([]string, len(n.nodes))
	for ii, node := range n.nodes {
		names[ii] = node.Name
	}
	return names
}

func (n *Nnet) namesOfKind(kind NodeKind) []string {
	var names []string
	for _, node := range n.nodes {
		if node.Kind == kind {
			names = append(names, node.Name)
		}
	}
	return names
}

// InputNames returns the names of the input nodes.
func (n *Nnet) InputNames() []string { return n.namesOfKind(InputNode) }

// OutputNames returns the names of the output nodes.
func (n *Nnet) OutputNames() []string { return n.namesOfKind(OutputNode) }

// IsInput returns whether name is an input node.
func (n *Nnet) IsInput(name string) bool {
	node := n.GetNode(name)
	return node != nil && node.Kind == InputNode
}

// IsOutput returns whether name is an output node.
func (n *Nnet) IsOutput(name string) bool {
	node := n.GetNode(name)
	return node != nil && node.Kind == OutputNode
}

// InputDim returns the dimension of the named input node, or -1 if there is no such input.
func (n *Nnet) InputDim(name string) int {
	node := n.GetNode(name)
	if node == nil || node.Kind != InputNode {
		return -1
	}
	return node.Dim
}

// OutputDim returns the dimension of the named output node, or -1 if there is no such output
// or its dimension can't be resolved.
func (n *Nnet) OutputDim(name string) int {
	node := n.GetNode(name)
	if node == nil || node.Kind != OutputNode {
		return -1
	}
	dim, err := node.Input.Dim(n.nodeDim)
	if err != nil {
		return -1
	}
	return dim
}

// nodeDim is the descriptor.DimFn of the network: output nodes can't be used as inputs.
func (n *Nnet) nodeDim(name string) (int, error) {
	node := n.GetNode(name)
	if node == nil {
		return 0, errors.Errorf("undefined node %q", name)
	}
	switch node.Kind {
	case InputNode:
		return node.Dim, nil
	case ComponentNode:
		return n.components[node.Component].OutputDim(), nil
	default:
		return 0, errors.Errorf("output node %q can't be used as an input", name)
	}
}

// updatables yields the index and component of every updatable component.
func (n *Nnet) updatables(yield func(int, component.Updatable) bool) {
	for c, comp := range n.components {
		if !comp.Properties().Has(component.PropUpdatable) {
			continue
		}
		if u, ok := comp.(component.Updatable); ok {
			if !yield(c, u) {
				return
			}
		}
	}
}

// NumParameters returns the total number of trainable parameters.
func (n *Nnet) NumParameters() int {
	var total int
	for _, u := range n.updatables {
		total += u.NumParameters()
	}
	return total
}

// ScaleParameters multiplies every trainable parameter by alpha.
func (n *Nnet) ScaleParameters(alpha float64) {
	for _, u := range n.updatables {
		u.Scale(alpha)
	}
}

// PerturbParameters adds Gaussian noise of the given stddev to every trainable parameter.
func (n *Nnet) PerturbParameters(stddev float64, rng *rand.Rand) {
	for _, u := range n.updatables {
		u.PerturbParams(stddev, rng)
	}
}

// Copy returns a deep copy of the network: components are copied, descriptors are shared
// since they are never modified.
func (n *Nnet) Copy() *Nnet {
	n2 := New()
	n2.componentNames = slices.Clone(n.componentNames)
	n2.components = make([]component.Component, len(n.components))
	for c, comp := range n.components {
		n2.components[c] = comp.Copy()
	}
	for name, c := range n.componentIndex {
		n2.componentIndex[name] = c
	}
	n2.nodes = make([]*Node, len(n.nodes))
	for ii, node := range n.nodes {
		nodeCopy := *node
		n2.nodes[ii] = &nodeCopy
	}
	for name, idx := range n.nodeIndex {
		n2.nodeIndex[name] = idx
	}
	return n2
}

// OrphanNodes returns the names of the nodes no output depends on, even optionally.
func (n *Nnet) OrphanNodes() []string {
	used := sets.Make[string]()
	var visit func(name string)
	visit = func(name string) {
		if used.Has(name) {
			return
		}
		used.Insert(name)
		node := n.GetNode(name)
		if node == nil || node.Input == nil {
			return
		}
		for dep := range descriptor.NodeNames(node.Input) {
			visit(dep)
		}
	}
	for _, name := range n.OutputNames() {
		visit(name)
	}
	var orphans []string
	for _, node := range n.nodes {
		if !used.Has(node.Name) {
			orphans = append(orphans, node.Name)
		}
	}
	return orphans
}

// OrphanComponents returns the names of the components no component-node uses.
func (n *Nnet) OrphanComponents() []string {
	used := sets.Make[int]()
	for _, node := range n.nodes {
		if node.Kind == ComponentNode {
			used.Insert(node.Component)
		}
	}
	var orphans []string
	for c, name := range n.componentNames {
		if !used.Has(c) {
			orphans = append(orphans, name)
		}
	}
	return orphans
}

// Info returns a human-readable, multi-line summary of the network.
func (n *Nnet) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "num-components=%d\n", len(n.components))
	fmt.Fprintf(&sb, "num-nodes=%d\n", len(n.nodes))
	for _, name := range n.InputNames() {
		fmt.Fprintf(&sb, "input-node name=%s dim=%d\n", name, n.InputDim(name))
	}
	for _, name := range n.OutputNames() {
		fmt.Fprintf(&sb, "output-node name=%s dim=%d\n", name, n.OutputDim(name))
	}
	fmt.Fprintf(&sb, "num-parameters=%d\n", n.NumParameters())
	for c, comp := range n.components {
		fmt.Fprintf(&sb, "component name=%s %s\n", n.componentNames[c], comp.Info())
	}
	return sb.String()
}

// Config returns the node lines of the network, in the order they were defined.
// Together with the component definitions it recreates the graph.
func (n *Nnet) Config() string {
	var sb strings.Builder
	for _, node := range n.nodes {
		sb.WriteString(node.String(n))
		sb.WriteString("\n")
	}
	return sb.String()
}
