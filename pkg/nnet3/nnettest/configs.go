// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	"fmt"
	"math/rand/v2"
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/descriptor"
	"github.com/gomlx/nnet3/pkg/support/xslices"
)

// RandomSpliceContext returns the time offsets of a spliced input: each offset in [-5, 3] is
// included with probability 1/3. It is never empty: if nothing is drawn it returns {0}.
func RandomSpliceContext(rng *rand.Rand) []int {
	var context []int
	for offset := -5; offset < 4; offset++ {
		if rng.IntN(3) == 0 {
			context = append(context, offset)
		}
	}
	if len(context) == 0 {
		context = append(context, 0)
	}
	return context
}

// splicedInput returns the descriptor of the first affine layer input, and its dimension.
// With opts.AllowIvector, it may append an i-vector at t=0, in which case it also writes the
// "ivector" input-node definition to sb.
func splicedInput(rng *rand.Rand, opts GenerationOptions, sb *strings.Builder, context []int,
	inputDim int) (input string, dim int) {
	splice := descriptor.Splice("input", context)
	dim = inputDim * len(context)
	if opts.AllowIvector && rng.IntN(2) == 0 {
		ivectorDim := 5 + rng.IntN(10)
		fmt.Fprintf(sb, "input-node name=ivector dim=%d\n", ivectorDim)
		splice.Srcs = append(splice.Srcs, &descriptor.ReplaceIndex{
			Src: &descriptor.Node{Name: "ivector"}, Variable: descriptor.VariableT, Value: 0})
		dim += ivectorDim
	}
	return splice.String(), dim
}

// GenerateConfigSequenceSimplest generates a network with a single affine component, no
// context and no nonlinearity.
func GenerateConfigSequenceSimplest(rng *rand.Rand, opts GenerationOptions) []string {
	inputDim := opts.inputDim(rng)
	outputDim := opts.outputDim(rng)

	var sb strings.Builder
	fmt.Fprintf(&sb, "component name=affine1 type=AffineComponent input-dim=%d output-dim=%d\n", inputDim, outputDim)
	fmt.Fprintf(&sb, "input-node name=input dim=%d\n", inputDim)
	sb.WriteString("component-node name=affine1_node component=affine1 input=input\n")
	sb.WriteString("output-node name=output input=affine1_node\n")
	return []string{sb.String()}
}

// GenerateConfigSequenceSimpleContext generates a network with a single affine component over
// a spliced input, and no nonlinearity.
func GenerateConfigSequenceSimpleContext(rng *rand.Rand, opts GenerationOptions) []string {
	context := RandomSpliceContext(rng)
	inputDim := opts.inputDim(rng)
	outputDim := opts.outputDim(rng)

	var nodes strings.Builder
	fmt.Fprintf(&nodes, "input-node name=input dim=%d\n", inputDim)
	input, splicedDim := splicedInput(rng, opts, &nodes, context, inputDim)
	fmt.Fprintf(&nodes, "component-node name=affine1_node component=affine1 input=%s\n", input)
	nodes.WriteString("output-node name=output input=affine1_node\n")

	config := fmt.Sprintf("component name=affine1 type=AffineComponent input-dim=%d output-dim=%d\n",
		splicedDim, outputDim)
	return []string{config + nodes.String()}
}

// GenerateConfigSequenceSimple generates a network with a spliced input, one hidden layer with
// a ReLU, a final affine layer and, optionally, a final softmax or log-softmax.
//
// With probability 1/2 it also generates a second config that inserts a second hidden layer
// before the final affine layer, and redefines the final affine layer: as if the network had
// grown during training.
func GenerateConfigSequenceSimple(rng *rand.Rand, opts GenerationOptions) []string {
	context := RandomSpliceContext(rng)
	inputDim := opts.inputDim(rng)
	outputDim := opts.outputDim(rng)
	hiddenDim := 40 + rng.IntN(50)
	useFinalNonlinearity := opts.AllowFinalNonlinearity && rng.IntN(2) == 0
	finalNonlinearity := "SoftmaxComponent"
	if useFinalNonlinearity && rng.IntN(2) != 0 {
		finalNonlinearity = "LogSoftmaxComponent"
	}

	var nodes strings.Builder
	fmt.Fprintf(&nodes, "input-node name=input dim=%d\n", inputDim)
	input, splicedDim := splicedInput(rng, opts, &nodes, context, inputDim)
	fmt.Fprintf(&nodes, "component-node name=affine1_node component=affine1 input=%s\n", input)
	nodes.WriteString("component-node name=nonlin1 component=relu1 input=affine1_node\n")
	nodes.WriteString("component-node name=final_affine component=final_affine input=nonlin1\n")
	if useFinalNonlinearity {
		nodes.WriteString("component-node name=output_nonlin component=logsoftmax input=final_affine\n")
		nodes.WriteString("output-node name=output input=output_nonlin\n")
	} else {
		nodes.WriteString("output-node name=output input=final_affine\n")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "component name=affine1 type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
		splicedDim, hiddenDim)
	fmt.Fprintf(&sb, "component name=relu1 type=RectifiedLinearComponent dim=%d\n", hiddenDim)
	fmt.Fprintf(&sb, "component name=final_affine type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
		hiddenDim, outputDim)
	if useFinalNonlinearity {
		fmt.Fprintf(&sb, "component name=logsoftmax type=%s dim=%d\n", finalNonlinearity, outputDim)
	}
	sb.WriteString(nodes.String())
	configs := []string{sb.String()}

	if rng.IntN(2) == 0 {
		var growth strings.Builder
		fmt.Fprintf(&growth, "component name=affine2 type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
			hiddenDim, hiddenDim)
		fmt.Fprintf(&growth, "component name=relu2 type=RectifiedLinearComponent dim=%d\n", hiddenDim)
		// final_affine is regenerated, now fed by relu2.
		fmt.Fprintf(&growth, "component name=final_affine type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
			hiddenDim, outputDim)
		growth.WriteString("component-node name=affine2 component=affine2 input=nonlin1\n")
		growth.WriteString("component-node name=relu2 component=relu2 input=affine2\n")
		growth.WriteString("component-node name=final_affine component=final_affine input=relu2\n")
		configs = append(configs, growth.String())
	}
	return configs
}

// GenerateConfigSequenceRnn generates a single-layer recurrent network: the ReLU layer sums
// the spliced-input affine layer with an affine transform of its own output one frame back
// (where defined), followed by an affine layer and a log-softmax.
func GenerateConfigSequenceRnn(rng *rand.Rand, opts GenerationOptions) []string {
	context := RandomSpliceContext(rng)
	inputDim := opts.inputDim(rng)
	splicedDim := inputDim * len(context)
	outputDim := opts.outputDim(rng)
	hiddenDim := 40 + rng.IntN(50)

	var sb strings.Builder
	fmt.Fprintf(&sb, "component name=affine1 type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
		splicedDim, hiddenDim)
	fmt.Fprintf(&sb, "component name=nonlin1 type=RectifiedLinearComponent dim=%d\n", hiddenDim)
	fmt.Fprintf(&sb, "component name=recurrent_affine1 type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
		hiddenDim, hiddenDim)
	fmt.Fprintf(&sb, "component name=affine2 type=NaturalGradientAffineComponent input-dim=%d output-dim=%d\n",
		hiddenDim, outputDim)
	fmt.Fprintf(&sb, "component name=logsoftmax type=LogSoftmaxComponent dim=%d\n", outputDim)
	fmt.Fprintf(&sb, "input-node name=input dim=%d\n", inputDim)
	fmt.Fprintf(&sb, "component-node name=affine1_node component=affine1 input=%s\n", descriptor.Splice("input", context))
	sb.WriteString("component-node name=recurrent_affine1 component=recurrent_affine1 input=Offset(nonlin1, -1)\n")
	sb.WriteString("component-node name=nonlin1 component=nonlin1 input=Sum(affine1_node, IfDefined(recurrent_affine1))\n")
	sb.WriteString("component-node name=affine2 component=affine2 input=nonlin1\n")
	sb.WriteString("component-node name=output_nonlin component=logsoftmax input=affine2\n")
	sb.WriteString("output-node name=output input=output_nonlin\n")
	return []string{sb.String()}
}

// NetworkType enumerates the config generators.
type NetworkType int

const (
	NetworkSimplest NetworkType = iota
	NetworkSimpleContext
	NetworkSimple
	NetworkRnn

	// NumNetworkTypes is the number of valid NetworkType values.
	NumNetworkTypes
)

var networkTypeNames = []string{"Simplest", "SimpleContext", "Simple", "Rnn"}

func (t NetworkType) String() string {
	if t < 0 || t >= NumNetworkTypes {
		return fmt.Sprintf("NetworkType(%d)", int(t))
	}
	return networkTypeNames[t]
}

// NetworkTypeString converts a name, as given by String (case-sensitive), to a NetworkType.
func NetworkTypeString(name string) (NetworkType, error) {
	for ii, typeName := range networkTypeNames {
		if typeName == name {
			return NetworkType(ii), nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid NetworkType, valid values are %s", name,
		xslices.Join(networkTypeNames, ", "))
}

// Allowed returns whether opts enable everything the network type needs.
func (t NetworkType) Allowed(opts GenerationOptions) bool {
	switch t {
	case NetworkSimplest:
		return true
	case NetworkSimpleContext:
		return opts.AllowContext
	case NetworkSimple:
		return opts.AllowContext && opts.AllowNonlinearity
	case NetworkRnn:
		return opts.AllowRecursion && opts.AllowContext && opts.AllowNonlinearity
	}
	return false
}

// AllowedNetworkTypes returns the network types enabled by opts. It always includes
// NetworkSimplest.
func AllowedNetworkTypes(opts GenerationOptions) []NetworkType {
	types := make([]NetworkType, 0, NumNetworkTypes)
	for t := range NumNetworkTypes {
		if t.Allowed(opts) {
			types = append(types, t)
		}
	}
	return types
}

// PickNetworkType draws uniformly one of the AllowedNetworkTypes.
func PickNetworkType(rng *rand.Rand, opts GenerationOptions) NetworkType {
	types := AllowedNetworkTypes(opts)
	return types[rng.IntN(len(types))]
}

// GenerateConfigSequenceOfType generates a config sequence with the generator of the given
// network type, regardless of whether opts allow it. It panics for invalid types.
func GenerateConfigSequenceOfType(rng *rand.Rand, opts GenerationOptions, networkType NetworkType) []string {
	switch networkType {
	case NetworkSimplest:
		return GenerateConfigSequenceSimplest(rng, opts)
	case NetworkSimpleContext:
		return GenerateConfigSequenceSimpleContext(rng, opts)
	case NetworkSimple:
		return GenerateConfigSequenceSimple(rng, opts)
	case NetworkRnn:
		return GenerateConfigSequenceRnn(rng, opts)
	}
	Panicf("error generating config sequence: invalid network type %d", int(networkType))
	return nil
}

// GenerateConfigSequence generates the config sequence of a random network type allowed by opts.
func GenerateConfigSequence(rng *rand.Rand, opts GenerationOptions) []string {
	return GenerateConfigSequenceOfType(rng, opts, PickNetworkType(rng, opts))
}
