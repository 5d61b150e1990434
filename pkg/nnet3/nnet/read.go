// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnet

import (
	"math/rand/v2"

	"github.com/gomlx/nnet3/pkg/nnet3/component"
	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/gomlx/nnet3/pkg/nnet3/descriptor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ReadConfigs reads the configs in order into a new network. Later configs may add to or
// redefine what earlier ones defined.
func ReadConfigs(configs []string, rng *rand.Rand) (*Nnet, error) {
	n := New()
	for ii, text := range configs {
		if err := n.ReadConfig(text, rng); err != nil {
			return nil, errors.WithMessagef(err, "reading config #%d", ii)
		}
	}
	return n, nil
}

// ReadConfig adds the components and nodes defined in text to the network, and then checks it.
//
// Line types are "component", "input-node", "component-node" and "output-node". A component
// or a node may be redefined (a node only with the same kind): components keep their index,
// nodes their position. Component lines are processed first, and node references are only
// resolved once the whole config is read, so a node may refer to a node defined further down.
//
// Parameters of new components are drawn from rng.
func (n *Nnet) ReadConfig(text string, rng *rand.Rand) error {
	lines, err := config.ReadLines(text)
	if err != nil {
		return err
	}
	var nodeLines []*config.Line
	for _, line := range lines {
		switch line.FirstToken() {
		case "component":
			if err = n.readComponent(line, rng); err != nil {
				return errors.WithMessagef(err, "in config line %q", line)
			}
		case "input-node", "component-node", "output-node":
			nodeLines = append(nodeLines, line)
		default:
			return errors.Errorf("invalid config line type %q in line %q", line.FirstToken(), line)
		}
	}
	for _, line := range nodeLines {
		if err = n.readNode(line); err != nil {
			return errors.WithMessagef(err, "in config line %q", line)
		}
	}
	klog.V(1).Infof("nnet: read config with %d lines, network now has %d components and %d nodes",
		len(lines), len(n.components), len(n.nodes))
	return n.Check()
}

func (n *Nnet) readComponent(line *config.Line, rng *rand.Rand) error {
	name, err := line.GetString("name")
	if err != nil {
		return err
	}
	comp, err := component.FromConfigLine(line, rng)
	if err != nil {
		return err
	}
	if c, found := n.componentIndex[name]; found {
		klog.V(2).Infof("nnet: replacing component %q (%s) with %s", name, n.components[c].Type(), comp.Type())
		n.components[c] = comp
		return nil
	}
	n.componentIndex[name] = len(n.components)
	n.components = append(n.components, comp)
	n.componentNames = append(n.componentNames, name)
	return nil
}

func (n *Nnet) readNode(line *config.Line) error {
	name, err := line.GetString("name")
	if err != nil {
		return err
	}
	if !validNodeName(name) {
		return errors.Errorf("invalid node name %q", name)
	}
	node := &Node{Name: name}
	switch line.FirstToken() {
	case "input-node":
		node.Kind = InputNode
		if node.Dim, err = line.GetInt("dim"); err != nil {
			return err
		}
		if node.Dim <= 0 {
			return errors.Errorf("input node %q: invalid dim=%d", name, node.Dim)
		}

	case "component-node":
		node.Kind = ComponentNode
		componentName, err := line.GetString("component")
		if err != nil {
			return err
		}
		node.Component = n.GetComponentIndex(componentName)
		if node.Component < 0 {
			return errors.Errorf("component node %q: undefined component %q", name, componentName)
		}
		if node.Input, err = readDescriptor(line); err != nil {
			return err
		}

	default:
		node.Kind = OutputNode
		if node.Input, err = readDescriptor(line); err != nil {
			return err
		}
		if node.Objective, err = ObjectiveString(line.GetStringOr("objective", ObjectiveLinear.String())); err != nil {
			return err
		}
	}
	if line.HasUnusedValues() {
		return errors.Errorf("unused values in %s: %s", node.Kind, line.UnusedValues())
	}

	if idx, found := n.nodeIndex[name]; found {
		previous := n.nodes[idx]
		if previous.Kind != node.Kind {
			return errors.Errorf("node %q redefined as %s, it was defined as %s", name, node.Kind, previous.Kind)
		}
		klog.V(2).Infof("nnet: redefining %s %q", node.Kind, name)
		n.nodes[idx] = node
		return nil
	}
	n.nodeIndex[name] = len(n.nodes)
	n.nodes = append(n.nodes, node)
	return nil
}

func readDescriptor(line *config.Line) (descriptor.Descriptor, error) {
	text, err := line.GetString("input")
	if err != nil {
		return nil, err
	}
	return descriptor.Parse(text)
}

// validNodeName accepts names made of letters, digits, '_', '-' and '.', starting with a
// letter or '_'.
func validNodeName(name string) bool {
	if name == "" {
		return false
	}
	for ii, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case ii > 0 && (r == '-' || r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// Check verifies the network: every node referenced exists and is not an output node,
// the dimension of every component node's input matches its component, output dimensions
// are defined, and there are no cycles other than through IfDefined.
func (n *Nnet) Check() error {
	if len(n.OutputNames()) == 0 {
		return errors.New("network has no output nodes")
	}
	for _, node := range n.nodes {
		if node.Kind == InputNode {
			continue
		}
		dim, err := node.Input.Dim(n.nodeDim)
		if err != nil {
			return errors.WithMessagef(err, "%s %q", node.Kind, node.Name)
		}
		if node.Kind == ComponentNode {
			comp := n.components[node.Component]
			if dim != comp.InputDim() {
				return errors.Errorf("component node %q: input %s has dim %d, but component %q (%s) has input-dim %d",
					node.Name, node.Input, dim, n.componentNames[node.Component], comp.Type(), comp.InputDim())
			}
		}
	}
	return n.checkNoCycles()
}

// checkNoCycles looks for cycles over the required (non-IfDefined) dependencies.
func (n *Nnet) checkNoCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(n.nodes))
	var visit func(node *Node) error
	visit = func(node *Node) error {
		switch state[node.Name] {
		case visiting:
			return errors.Errorf("network has a cycle through node %q not guarded by IfDefined", node.Name)
		case done:
			return nil
		}
		state[node.Name] = visiting
		if node.Input != nil {
			for dep := range descriptor.RequiredNodeNames(node.Input) {
				if err := visit(n.GetNode(dep)); err != nil {
					return err
				}
			}
		}
		state[node.Name] = done
		return nil
	}
	for _, node := range n.nodes {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
