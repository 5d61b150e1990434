// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package descriptor parses and prints the expressions that define the input of a network node:
//
//	input                                  # A node, as is.
//	Offset(input, -2)                      # The node at a time offset (and optionally an x offset).
//	Append(Offset(input, -1), input)       # Concatenation of features.
//	Sum(affine1, IfDefined(recurrent))     # Element-wise sum.
//	IfDefined(recurrent)                   # Zero if the operand can't be computed (e.g.: before the start).
//	ReplaceIndex(ivector, t, 0)            # The node at a fixed value of the t (or x) index.
//
// A Descriptor is a tree of the types in this package: *Node, *Offset, *Append, *Sum, *IfDefined
// and *ReplaceIndex.
package descriptor

import (
	"fmt"

	"github.com/gomlx/nnet3/pkg/support/sets"
	"github.com/gomlx/nnet3/pkg/support/xslices"
	"github.com/pkg/errors"
)

// DimFn returns the output dimension of the named node.
type DimFn func(nodeName string) (int, error)

// Descriptor is a node input expression.
type Descriptor interface {
	// String returns the canonical text form, which Parse accepts.
	String() string

	// Dim returns the dimension of the expression, given the dimensions of the nodes.
	Dim(dimFn DimFn) (int, error)

	// Parts returns the sub-expressions, or nil for a *Node.
	Parts() []Descriptor
}

// Node refers to the output of another network node.
type Node struct {
	Name string
}

// Offset shifts the indexes of its operand: the value at time t is the operand's value at t+T.
type Offset struct {
	Src  Descriptor
	T, X int
}

// Append concatenates the features of its operands.
type Append struct {
	Srcs []Descriptor
}

// Sum adds its operands element-wise. They must have the same dimension.
type Sum struct {
	Srcs []Descriptor
}

// IfDefined evaluates to its operand where it can be computed, and to zero elsewhere.
// Its dependencies are optional.
type IfDefined struct {
	Src Descriptor
}

// IndexVariable identifies the index replaced by ReplaceIndex.
type IndexVariable string

const (
	VariableT IndexVariable = "t"
	VariableX IndexVariable = "x"
)

// ReplaceIndex evaluates its operand at a fixed value of one index, typically `t=0` for i-vectors.
type ReplaceIndex struct {
	Src      Descriptor
	Variable IndexVariable
	Value    int
}

func (d *Node) String() string { return d.Name }

func (d *Offset) String() string {
	if d.X != 0 {
		return fmt.Sprintf("Offset(%s, %d, %d)", d.Src, d.T, d.X)
	}
	return fmt.Sprintf("Offset(%s, %d)", d.Src, d.T)
}

func (d *Append) String() string { return "Append(" + xslices.Join(d.Srcs, ", ") + ")" }

func (d *Sum) String() string { return "Sum(" + xslices.Join(d.Srcs, ", ") + ")" }

func (d *IfDefined) String() string { return fmt.Sprintf("IfDefined(%s)", d.Src) }

func (d *ReplaceIndex) String() string {
	return fmt.Sprintf("ReplaceIndex(%s, %s, %d)", d.Src, d.Variable, d.Value)
}

func (d *Node) Parts() []Descriptor         { return nil }
func (d *Offset) Parts() []Descriptor       { return []Descriptor{d.Src} }
func (d *Append) Parts() []Descriptor       { return d.Srcs }
func (d *Sum) Parts() []Descriptor          { return d.Srcs }
func (d *IfDefined) Parts() []Descriptor    { return []Descriptor{d.Src} }
func (d *ReplaceIndex) Parts() []Descriptor { return []Descriptor{d.Src} }

func (d *Node) Dim(dimFn DimFn) (int, error) {
	return dimFn(d.Name)
}

func (d *Offset) Dim(dimFn DimFn) (int, error)       { return d.Src.Dim(dimFn) }
func (d *IfDefined) Dim(dimFn DimFn) (int, error)    { return d.Src.Dim(dimFn) }
func (d *ReplaceIndex) Dim(dimFn DimFn) (int, error) { return d.Src.Dim(dimFn) }

func (d *Append) Dim(dimFn DimFn) (int, error) {
	total := 0
	for _, src := range d.Srcs {
		dim, err := src.Dim(dimFn)
		if err != nil {
			return 0, err
		}
		total += dim
	}
	return total, nil
}

func (d *Sum) Dim(dimFn DimFn) (int, error) {
	var dim0 int
	for ii, src := range d.Srcs {
		dim, err := src.Dim(dimFn)
		if err != nil {
			return 0, err
		}
		if ii == 0 {
			dim0 = dim
		} else if dim != dim0 {
			return 0, errors.Errorf("%s: operands have different dimensions %d and %d", d, dim0, dim)
		}
	}
	return dim0, nil
}

// NodeNames returns the names of all nodes referred to by d, including optional (IfDefined) ones.
func NodeNames(d Descriptor) sets.Set[string] {
	names := sets.Make[string]()
	Walk(d, func(d Descriptor) bool {
		if node, ok := d.(*Node); ok {
			names.Insert(node.Name)
		}
		return true
	})
	return names
}

// RequiredNodeNames returns the names of the nodes d can't be computed without: those not under
// an IfDefined.
func RequiredNodeNames(d Descriptor) sets.Set[string] {
	names := sets.Make[string]()
	Walk(d, func(d Descriptor) bool {
		switch d := d.(type) {
		case *IfDefined:
			return false
		case *Node:
			names.Insert(d.Name)
		}
		return true
	})
	return names
}

// Walk calls fn for d and, in depth-first order, for its parts. If fn returns false the
// parts of that expression are skipped.
func Walk(d Descriptor, fn func(d Descriptor) bool) {
	if !fn(d) {
		return
	}
	for _, part := range d.Parts() {
		Walk(part, fn)
	}
}

// Splice builds `Append(Offset(node, o_0), Offset(node, o_1), ...)`. With a single offset it
// still uses Append, which is how spliced inputs are conventionally written in configs.
func Splice(nodeName string, offsets []int) *Append {
	srcs := xslices.Map(offsets, func(offset int) Descriptor {
		return &Offset{Src: &Node{Name: nodeName}, T: offset}
	})
	return &Append{Srcs: srcs}
}

// Equal returns whether a and b have the same canonical form.
func Equal(a, b Descriptor) bool {
	return a.String() == b.String()
}
