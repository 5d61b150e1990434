// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/computation"
	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/gomlx/nnet3/pkg/nnet3/features"
	"github.com/gomlx/nnet3/pkg/nnet3/nnet"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// componentLines maps component names to their config lines.
func componentLines(t *testing.T, text string) map[string]*config.Line {
	lines, err := config.ReadLines(text)
	require.NoError(t, err)
	components := make(map[string]*config.Line)
	for _, line := range lines {
		if line.FirstToken() == "component" {
			components[must.M1(line.GetString("name"))] = line
		}
	}
	return components
}

func TestRandomSpliceContext(t *testing.T) {
	rng := NewRand(t)
	sawZeroFallback := false
	for range 1000 {
		context := RandomSpliceContext(rng)
		require.NotEmpty(t, context)
		assert.True(t, slices.IsSorted(context))
		assert.Equal(t, len(context), len(slices.Compact(slices.Clone(context))))
		for _, offset := range context {
			assert.GreaterOrEqual(t, offset, -5)
			assert.LessOrEqual(t, offset, 3)
		}
		if len(context) == 1 && context[0] == 0 {
			sawZeroFallback = true
		}
	}
	// Probability of an empty draw is (2/3)^9 ~ 2.6%, so ~26 times in 1000.
	assert.True(t, sawZeroFallback)
}

func TestGenerateConfigSequenceSimplest(t *testing.T) {
	opts := DefaultGenerationOptions()
	opts.InputDim, opts.OutputDim = 10, 100
	configs := GenerateConfigSequenceSimplest(NewRand(t), opts)
	require.Len(t, configs, 1)
	want := "component name=affine1 type=AffineComponent input-dim=10 output-dim=100\n" +
		"input-node name=input dim=10\n" +
		"component-node name=affine1_node component=affine1 input=input\n" +
		"output-node name=output input=affine1_node\n"
	assert.Equal(t, want, configs[0])

	// Random dimensions are drawn from their ranges.
	rng := NewRand(t)
	for range 100 {
		affine := componentLines(t, GenerateConfigSequenceSimplest(rng, DefaultGenerationOptions())[0])["affine1"]
		inputDim := must.M1(affine.GetInt("input-dim"))
		outputDim := must.M1(affine.GetInt("output-dim"))
		assert.True(t, inputDim >= 10 && inputDim < 30, "input-dim=%d", inputDim)
		assert.True(t, outputDim >= 100 && outputDim < 300, "output-dim=%d", outputDim)
	}
}

func TestGenerateConfigSequenceSimpleContext(t *testing.T) {
	rng := NewRand(t)
	opts := DefaultGenerationOptions()
	opts.InputDim = 13
	for range 50 {
		configs := GenerateConfigSequenceSimpleContext(rng, opts)
		require.Len(t, configs, 1)
		assert.Contains(t, configs[0], "input=Append(Offset(input, ")
		assert.NotContains(t, configs[0], "ivector")
		net := must.M1(nnet.ReadConfigs(configs, rng))
		spliced := must.M1(componentLines(t, configs[0])["affine1"].GetInt("input-dim"))
		assert.Zero(t, spliced%13)
		assert.True(t, nnet.IsSimple(net))
	}
}

func TestGenerateConfigSequenceSimple(t *testing.T) {
	rng := NewRand(t)
	var numGrowth, numFinalNonlinearity int
	for range 100 {
		configs := GenerateConfigSequenceSimple(rng, DefaultGenerationOptions())
		require.True(t, len(configs) == 1 || len(configs) == 2)
		first := componentLines(t, configs[0])
		hiddenDim := must.M1(first["relu1"].GetInt("dim"))
		assert.True(t, hiddenDim >= 40 && hiddenDim < 90)
		assert.Equal(t, hiddenDim, must.M1(first["final_affine"].GetInt("input-dim")))
		if _, found := first["logsoftmax"]; found {
			numFinalNonlinearity++
			assert.Contains(t, configs[0], "output-node name=output input=output_nonlin\n")
		}

		if len(configs) == 2 {
			numGrowth++
			second := componentLines(t, configs[1])
			assert.Equal(t, hiddenDim, must.M1(second["affine2"].GetInt("input-dim")))
			assert.Equal(t, hiddenDim, must.M1(second["relu2"].GetInt("dim")))
			assert.Equal(t, hiddenDim, must.M1(second["final_affine"].GetInt("input-dim")))
			assert.Equal(t, must.M1(first["final_affine"].GetInt("output-dim")),
				must.M1(second["final_affine"].GetInt("output-dim")))
		}

		net := must.M1(nnet.ReadConfigs(configs, rng))
		assert.True(t, nnet.IsSimple(net))
		assert.Empty(t, net.OrphanNodes())
		if len(configs) == 2 {
			assert.Equal(t, "relu2", net.GetNode("final_affine").Input.String())
		}
	}
	assert.Greater(t, numGrowth, 0)
	assert.Less(t, numGrowth, 100)
	assert.Greater(t, numFinalNonlinearity, 0)

	// Without final nonlinearity there is never a softmax.
	opts := DefaultGenerationOptions()
	opts.AllowFinalNonlinearity = false
	for range 20 {
		assert.NotContains(t, GenerateConfigSequenceSimple(rng, opts)[0], "Softmax")
	}
}

func TestGenerateConfigSequenceRnn(t *testing.T) {
	rng := NewRand(t)
	for range 20 {
		configs := GenerateConfigSequenceRnn(rng, DefaultGenerationOptions())
		require.Len(t, configs, 1)
		assert.Contains(t, configs[0], "input=Sum(affine1_node, IfDefined(recurrent_affine1))\n")
		assert.Contains(t, configs[0], "input=Offset(nonlin1, -1)\n")
		net := must.M1(nnet.ReadConfigs(configs, rng))
		assert.Equal(t, 5, net.NumComponents())
		assert.True(t, nnet.IsSimple(net))
		assert.Equal(t, must.M1(componentLines(t, configs[0])["logsoftmax"].GetInt("dim")), net.OutputDim("output"))
	}
}

func TestIvector(t *testing.T) {
	rng := NewRand(t)
	opts := DefaultGenerationOptions()
	opts.AllowIvector = true
	var numIvector int
	for range 50 {
		configs := GenerateConfigSequenceSimpleContext(rng, opts)
		net := must.M1(nnet.ReadConfigs(configs, rng))
		if net.InputDim("ivector") == -1 {
			continue
		}
		numIvector++
		assert.Contains(t, configs[0], ", ReplaceIndex(ivector, t, 0))\n")
		assert.True(t, nnet.IsSimple(net))
		request, inputs := ComputeExampleComputationRequestSimple(rng, net)
		require.NoError(t, request.Check(net))
		require.Len(t, inputs, 2)
		ivector := request.Inputs[request.IndexOfInput("ivector")]
		rows, cols := inputs[1].Dims()
		assert.Equal(t, len(ivector.Indexes), rows)
		assert.Equal(t, net.InputDim("ivector"), cols)
	}
	assert.Greater(t, numIvector, 0)
}

func TestDispatcher(t *testing.T) {
	rng := NewRand(t)
	assert.Equal(t, []NetworkType{NetworkSimplest, NetworkSimpleContext, NetworkSimple, NetworkRnn},
		AllowedNetworkTypes(DefaultGenerationOptions()))

	// Only the base case enabled: always the simplest network.
	var opts GenerationOptions
	assert.Equal(t, []NetworkType{NetworkSimplest}, AllowedNetworkTypes(opts))
	for range 100 {
		assert.Equal(t, NetworkSimplest, PickNetworkType(rng, opts))
		configs := GenerateConfigSequence(rng, opts)
		require.Len(t, configs, 1)
		assert.Contains(t, configs[0], "input=input\n")
		assert.NotContains(t, configs[0], "Append")
	}

	// Recursion alone is not enough for an RNN.
	opts.AllowRecursion = true
	assert.Equal(t, []NetworkType{NetworkSimplest}, AllowedNetworkTypes(opts))
	opts.AllowContext = true
	assert.Equal(t, []NetworkType{NetworkSimplest, NetworkSimpleContext}, AllowedNetworkTypes(opts))

	counts := make(map[NetworkType]int)
	for range 400 {
		counts[PickNetworkType(rng, DefaultGenerationOptions())]++
	}
	for networkType := range NumNetworkTypes {
		assert.Greater(t, counts[networkType], 50, networkType.String())
	}

	assert.Error(t, exceptions.TryCatch[error](func() { GenerateConfigSequenceOfType(rng, opts, NumNetworkTypes) }))
	assert.Error(t, exceptions.TryCatch[error](func() { GenerateConfigSequenceOfType(rng, opts, -1) }))

	for networkType := range NumNetworkTypes {
		parsed, err := NetworkTypeString(networkType.String())
		require.NoError(t, err)
		assert.Equal(t, networkType, parsed)
	}
	_, err := NetworkTypeString("Lstm")
	assert.Error(t, err)
	assert.Equal(t, "NetworkType(7)", NetworkType(7).String())
}

func TestGenerateConfigSequence(t *testing.T) {
	rng := NewRand(t)
	opts := DefaultGenerationOptions()
	opts.AllowIvector = true
	for range 100 {
		configs := GenerateConfigSequence(rng, opts)
		net, err := nnet.ReadConfigs(configs, rng)
		require.NoErrorf(t, err, "configs:\n%s", strings.Join(configs, "\n---\n"))
		require.True(t, nnet.IsSimple(net))
		assert.Empty(t, net.OrphanNodes())
		assert.Empty(t, net.OrphanComponents())
	}
}

func TestGenerateRandomSimpleComponent(t *testing.T) {
	rng := NewRand(t)
	seen := make(map[string]bool)
	for range 500 {
		typeName, params := GenerateRandomComponentConfig(rng)
		seen[typeName] = true
		line := must.M1(config.ParseLine(params))
		if typeName == "PnormComponent" {
			inputDim, outputDim := must.M1(line.GetInt("input-dim")), must.M1(line.GetInt("output-dim"))
			assert.Zero(t, inputDim%outputDim)
		}
		if typeName == "SumGroupComponent" {
			for _, size := range must.M1(line.GetIntList("sizes")) {
				assert.True(t, size >= 1 && size <= 5)
			}
		}

		comp := GenerateRandomSimpleComponent(rng)
		assert.Greater(t, comp.InputDim(), 0)
		assert.Greater(t, comp.OutputDim(), 0)
		out := comp.Propagate(RandnDense(rng, 2, comp.InputDim()))
		rows, cols := out.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, comp.OutputDim(), cols)
	}
	assert.Len(t, seen, 14)
}

func timeRange(indexes []computation.Index) (minT, maxT int) {
	minT, maxT = math.MaxInt, math.MinInt
	for _, idx := range indexes {
		minT, maxT = min(minT, idx.T), max(maxT, idx.T)
	}
	return
}

func TestComputeExampleComputationRequestSimple(t *testing.T) {
	rng := NewRand(t)
	for range 100 {
		net := must.M1(nnet.ReadConfigs(GenerateConfigSequence(rng, DefaultGenerationOptions()), rng))
		left, right := must.M2(nnet.ComputeSimpleContext(net))
		request, inputs := ComputeExampleComputationRequestSimple(rng, net)
		require.NoError(t, request.Check(net))
		require.Len(t, request.Outputs, 1)
		require.Len(t, request.Inputs, 1)
		require.Len(t, inputs, 1)

		input, output := request.Inputs[0], request.Outputs[0]
		rows, cols := inputs[0].Dims()
		assert.Equal(t, len(input.Indexes), rows)
		assert.Equal(t, net.InputDim("input"), cols)

		// Inputs cover the context of every output, for every sequence.
		inMin, inMax := timeRange(input.Indexes)
		outMin, outMax := timeRange(output.Indexes)
		assert.LessOrEqual(t, inMin, outMin-left)
		assert.GreaterOrEqual(t, inMax, outMax+right)
		assert.LessOrEqual(t, outMax-outMin+1, 10)
		assert.Equal(t, input.Indexes[0].N, output.Indexes[0].N)
		assert.Contains(t, []int{0, 1}, input.Indexes[0].N)
		if input.HasDeriv || request.NeedModelDerivative {
			assert.True(t, output.HasDeriv)
		}
	}

	// A network without "input" is not simple.
	net := nnet.New()
	require.NoError(t, net.ReadConfig("input-node name=features dim=3\noutput-node name=output input=features", rng))
	assert.Error(t, exceptions.TryCatch[error](func() { ComputeExampleComputationRequestSimple(rng, net) }))
}

func TestGenerateSimpleNnetTrainingExample(t *testing.T) {
	rng := NewRand(t)
	e := GenerateSimpleNnetTrainingExample(rng, 3, 2, 2, 50, 20, 10)
	require.Len(t, e.IO, 3)

	input := e.Find("input")
	require.NotNil(t, input)
	rows, cols := input.Features.Dims()
	assert.Equal(t, 7, rows)
	assert.Equal(t, 20, cols)
	tBegin := input.Indexes[0].T
	assert.True(t, tBegin >= 0 && tBegin <= 2)

	ivector := e.Find("ivector")
	require.NotNil(t, ivector)
	rows, cols = ivector.Features.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 10, cols)
	assert.Equal(t, []computation.Index{{N: 0, T: 0}}, ivector.Indexes)

	output := e.Find("output")
	require.NotNil(t, output)
	assert.Equal(t, computation.Range(0, tBegin+2, tBegin+5), output.Indexes)
	require.Equal(t, features.SparseMatrix, output.Features.Type())
	sparse := output.Features.Sparse()
	assert.Len(t, sparse.Rows, 3)
	assert.Equal(t, 50, sparse.NumCols)

	// No i-vector.
	e = GenerateSimpleNnetTrainingExample(rng, 1, 0, 0, 5, 3, 0)
	assert.Len(t, e.IO, 2)
	assert.Nil(t, e.Find("ivector"))

	assert.Error(t, exceptions.TryCatch[error](func() { GenerateSimpleNnetTrainingExample(rng, 0, 2, 2, 50, 20, 10) }))
	assert.Error(t, exceptions.TryCatch[error](func() { GenerateSimpleNnetTrainingExample(rng, 3, -1, 2, 50, 20, 10) }))
	assert.Error(t, exceptions.TryCatch[error](func() { GenerateSimpleNnetTrainingExample(rng, 3, 2, 2, 0, 20, 10) }))
}

func TestSupervisionProbabilities(t *testing.T) {
	rng := NewRand(t)
	for range 200 {
		numFrames := 1 + rng.IntN(10)
		outputDim := 1 + rng.IntN(20)
		e := GenerateSimpleNnetTrainingExample(rng, numFrames, rng.IntN(4), rng.IntN(4), outputDim, 1+rng.IntN(5), rng.IntN(3))
		sparse := e.Find("output").Features.Sparse()
		require.Len(t, sparse.Rows, numFrames)
		for _, labels := range sparse.Rows {
			assert.True(t, len(labels) >= 1 && len(labels) <= 3)
			sum := 0.0
			for _, label := range labels {
				assert.True(t, label.Col >= 0 && label.Col < outputDim, "class %d out of range", label.Col)
				assert.GreaterOrEqual(t, label.Value, 0.0)
				sum += label.Value
			}
			assert.InDelta(t, 1.0, sum, 1e-12)
		}
	}
}

func TestExampleApproxEqual(t *testing.T) {
	rng := NewRand(t)
	for range 50 {
		e := GenerateSimpleNnetTrainingExample(rng, 1+rng.IntN(5), rng.IntN(3), rng.IntN(3), 10, 8, rng.IntN(4))
		assert.True(t, ExampleApproxEqual(e, e, 0))
		assert.True(t, ExampleApproxEqual(e, e.Copy(), 0))

		// Compression round trip is within the compression error bound.
		for _, method := range []features.CompressionMethod{features.CompressTwoByte, features.CompressOneByte,
			features.CompressFloat16} {
			uncompressed := e.Copy()
			for _, io := range uncompressed.IO {
				if io.Features.Type() == features.CompressedMatrix {
					io.Features = features.FromDense(io.Features.Dense())
				}
			}
			compressed := uncompressed.Copy()
			compressed.Compress(method)
			maxError := 0.0
			for _, io := range compressed.IO {
				if c := io.Features.Compressed(); c != nil {
					maxError = max(maxError, c.MaxError())
				}
			}
			assert.True(t, ExampleApproxEqual(uncompressed, compressed, maxError), "method=%s", method)
		}
	}

	e1 := GenerateSimpleNnetTrainingExample(rng, 3, 1, 1, 10, 8, 4)
	e2 := e1.Copy()
	e2.IO = e2.IO[:2]
	assert.False(t, ExampleApproxEqual(e1, e2, 1e-3))

	e2 = e1.Copy()
	e2.IO[0].Name = "other"
	assert.False(t, ExampleApproxEqual(e1, e2, 1e-3))

	e2 = e1.Copy()
	e2.IO[0].Indexes[1].T++
	assert.False(t, ExampleApproxEqual(e1, e2, 1e-3))

	e2 = e1.Copy()
	e2.Find("ivector").Features = features.FromDense(RandnDense(rng, 1, 4))
	assert.False(t, ExampleApproxEqual(e1, e2, 1e-3))
}

func TestNnetParametersAreIdentical(t *testing.T) {
	rng := NewRand(t)
	for range 20 {
		net := must.M1(nnet.ReadConfigs(GenerateConfigSequence(rng, DefaultGenerationOptions()), rng))
		assert.True(t, NnetParametersAreIdentical(net, net, DefaultParameterThreshold))
		copied := net.Copy()
		assert.True(t, NnetParametersAreIdentical(net, copied, DefaultParameterThreshold))

		copied.PerturbParameters(1.0, rng)
		assert.False(t, NnetParametersAreIdentical(net, copied, DefaultParameterThreshold))

		// Scaling changes the dot products too.
		scaled := net.Copy()
		scaled.ScaleParameters(2)
		assert.False(t, NnetParametersAreIdentical(net, scaled, DefaultParameterThreshold))
	}

	net1 := must.M1(nnet.ReadConfigs(GenerateConfigSequenceSimplest(rng, DefaultGenerationOptions()), rng))
	net2 := must.M1(nnet.ReadConfigs(GenerateConfigSequenceRnn(rng, DefaultGenerationOptions()), rng))
	assert.Error(t, exceptions.TryCatch[error](func() { NnetParametersAreIdentical(net1, net2, DefaultParameterThreshold) }))

	// Same number of components, different types.
	net3 := nnet.New()
	require.NoError(t, net3.ReadConfig(`
component name=relu type=RectifiedLinearComponent dim=10
input-node name=input dim=10
component-node name=relu component=relu input=input
output-node name=output input=relu`, rng))
	assert.Error(t, exceptions.TryCatch[error](func() { NnetParametersAreIdentical(net1, net3, DefaultParameterThreshold) }))
}

func TestNewRand(t *testing.T) {
	t.Setenv(SeedEnvVar, "1234")
	a, b := NewRand(t), NewRand(t)
	assert.Equal(t, a.Uint64(), b.Uint64())
	assert.Equal(t, NewRandWithSeed(1234).Uint64(), NewRand(t).Uint64())
}
