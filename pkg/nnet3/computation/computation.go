// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package computation describes what is asked of a network: which inputs are given and which
// outputs are wanted, each as a list of Index values, plus what derivatives are needed.
package computation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Index identifies one frame (one row of a matrix) flowing through the network.
//
//   - N is the sequence (example) index within a minibatch.
//   - T is the time index.
//   - X is an auxiliary index, normally 0.
type Index struct {
	N, T, X int
}

// String implements fmt.Stringer, e.g. "(0, 3, 0)".
func (idx Index) String() string {
	return fmt.Sprintf("(%d, %d, %d)", idx.N, idx.T, idx.X)
}

// Less orders indexes by N, then T, then X.
func (idx Index) Less(other Index) bool {
	if idx.N != other.N {
		return idx.N < other.N
	}
	if idx.T != other.T {
		return idx.T < other.T
	}
	return idx.X < other.X
}

// Range returns the indexes (n, t, 0) for t in [tBegin, tEnd).
func Range(n, tBegin, tEnd int) []Index {
	indexes := make([]Index, 0, max(0, tEnd-tBegin))
	for t := tBegin; t < tEnd; t++ {
		indexes = append(indexes, Index{N: n, T: t})
	}
	return indexes
}

// PrintIndexes writes a compact form of indexes, grouping runs of consecutive t values
// with the same n and x: "[ (0, 0:4, 0) (1, 0:4, 0) ]".
func PrintIndexes(indexes []Index) string {
	var sb strings.Builder
	sb.WriteString("[")
	for start := 0; start < len(indexes); {
		end := start + 1
		for end < len(indexes) &&
			indexes[end].N == indexes[start].N && indexes[end].X == indexes[start].X &&
			indexes[end].T == indexes[end-1].T+1 {
			end++
		}
		first, last := indexes[start], indexes[end-1]
		if end-start == 1 {
			fmt.Fprintf(&sb, " %s", first)
		} else {
			fmt.Fprintf(&sb, " (%d, %d:%d, %d)", first.N, first.T, last.T, first.X)
		}
		start = end
	}
	sb.WriteString(" ]")
	return sb.String()
}

// IoSpecification names one input or output of a request, and the frames given/wanted.
type IoSpecification struct {
	Name    string
	Indexes []Index

	// HasDeriv is set for an input if its derivative is wanted, and for an output if its
	// derivative will be supplied.
	HasDeriv bool
}

func (io *IoSpecification) String() string {
	return fmt.Sprintf("%s%s (has-deriv=%v)", io.Name, PrintIndexes(io.Indexes), io.HasDeriv)
}

// Request is what a computation is compiled from.
type Request struct {
	Inputs  []IoSpecification
	Outputs []IoSpecification

	// NeedModelDerivative is set when the parameter derivatives are wanted.
	NeedModelDerivative bool

	// StoreComponentStats asks the nonlinearities to accumulate activation statistics.
	StoreComponentStats bool
}

// IndexOfInput returns the position of the named input in r.Inputs, or -1.
func (r *Request) IndexOfInput(name string) int {
	for ii := range r.Inputs {
		if r.Inputs[ii].Name == name {
			return ii
		}
	}
	return -1
}

// IndexOfOutput returns the position of the named output in r.Outputs, or -1.
func (r *Request) IndexOfOutput(name string) int {
	for ii := range r.Outputs {
		if r.Outputs[ii].Name == name {
			return ii
		}
	}
	return -1
}

// NeedDerivatives returns whether any derivative is needed at all.
func (r *Request) NeedDerivatives() bool {
	if r.NeedModelDerivative {
		return true
	}
	for _, input := range r.Inputs {
		if input.HasDeriv {
			return true
		}
	}
	return false
}

func (r *Request) String() string {
	var sb strings.Builder
	for _, input := range r.Inputs {
		fmt.Fprintf(&sb, "input %s\n", &input)
	}
	for _, output := range r.Outputs {
		fmt.Fprintf(&sb, "output %s\n", &output)
	}
	fmt.Fprintf(&sb, "need-model-derivative=%v store-component-stats=%v\n",
		r.NeedModelDerivative, r.StoreComponentStats)
	return sb.String()
}

// NetworkDims is what Request.Check needs to know about a network.
type NetworkDims interface {
	// InputDim returns the dimension of the named input node, or -1 if there is none.
	InputDim(name string) int

	// OutputDim returns the dimension of the named output node, or -1 if there is none.
	OutputDim(name string) int
}

// IvectorInputName is the conventional name of the i-vector input, always given at t=0.
const IvectorInputName = "ivector"

// Check verifies that every input and output of r names an input or output of net, that
// names are not repeated, that none is empty, and that i-vector indexes are at t=0.
func (r *Request) Check(net NetworkDims) error {
	if len(r.Outputs) == 0 {
		return errors.New("computation request has no outputs")
	}
	for _, ios := range []struct {
		kind  string
		specs []IoSpecification
		dimFn func(string) int
	}{
		{"input", r.Inputs, net.InputDim},
		{"output", r.Outputs, net.OutputDim},
	} {
		seen := make(map[string]bool, len(ios.specs))
		for _, spec := range ios.specs {
			if seen[spec.Name] {
				return errors.Errorf("%s %q given more than once in the computation request", ios.kind, spec.Name)
			}
			seen[spec.Name] = true
			if dim := ios.dimFn(spec.Name); dim <= 0 {
				return errors.Errorf("computation request %s %q is not a network %s", ios.kind, spec.Name, ios.kind)
			}
			if len(spec.Indexes) == 0 {
				return errors.Errorf("computation request %s %q has no indexes", ios.kind, spec.Name)
			}
		}
	}
	if ii := r.IndexOfInput(IvectorInputName); ii != -1 {
		for _, idx := range r.Inputs[ii].Indexes {
			if idx.T != 0 {
				return errors.Errorf("input %q must have t=0, got index %s", IvectorInputName, idx)
			}
		}
	}
	return nil
}
