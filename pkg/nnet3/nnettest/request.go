// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	"math/rand/v2"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/computation"
	"github.com/gomlx/nnet3/pkg/nnet3/nnet"
	"gonum.org/v1/gonum/mat"
)

// RandnDense returns a rows x cols matrix with values drawn from the standard normal
// distribution.
func RandnDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for ii := range data {
		data[ii] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

// ComputeExampleComputationRequestSimple creates a random computation request for a simple
// network (see nnet.IsSimple), along with random values for its inputs, in the order of
// request.Inputs.
//
// It asks for 1 to 10 output frames, starting at t in [0, 10), in 1 to 10 sequences (numbered
// from 0 or from 1). The input frames cover the network context plus 0 to 2 extra frames on
// each side. If the network has an "ivector" input, it's given at t=0 for each sequence.
// Derivatives and statistics are requested at random.
//
// It panics if the network is not simple.
func ComputeExampleComputationRequestSimple(rng *rand.Rand, net *nnet.Nnet) (*computation.Request, []*mat.Dense) {
	if !nnet.IsSimple(net) {
		Panicf("ComputeExampleComputationRequestSimple() requires a simple network")
	}
	leftContext, rightContext, err := nnet.ComputeSimpleContext(net)
	if err != nil {
		Panicf("ComputeExampleComputationRequestSimple(): %+v", err)
	}

	numOutputFrames := 1 + rng.IntN(10)
	outputStartFrame := rng.IntN(10)
	numExamples := 1 + rng.IntN(10)
	outputEndFrame := outputStartFrame + numOutputFrames
	inputStartFrame := outputStartFrame - leftContext - rng.IntN(3)
	inputEndFrame := outputEndFrame + rightContext + rng.IntN(3)
	nOffset := rng.IntN(2)
	needDeriv := rng.IntN(2) == 0

	var inputIndexes, ivectorIndexes, outputIndexes []computation.Index
	for n := nOffset; n < nOffset+numExamples; n++ {
		inputIndexes = append(inputIndexes, computation.Range(n, inputStartFrame, inputEndFrame)...)
		outputIndexes = append(outputIndexes, computation.Range(n, outputStartFrame, outputEndFrame)...)
		ivectorIndexes = append(ivectorIndexes, computation.Index{N: n, T: 0})
	}

	request := &computation.Request{}
	request.Outputs = append(request.Outputs, computation.IoSpecification{
		Name:     nnet.OutputName,
		Indexes:  outputIndexes,
		HasDeriv: needDeriv || rng.IntN(3) == 0,
	})
	request.Inputs = append(request.Inputs, computation.IoSpecification{
		Name:     nnet.InputName,
		Indexes:  inputIndexes,
		HasDeriv: needDeriv && rng.IntN(2) == 0,
	})
	inputDim := net.InputDim(nnet.InputName)
	if inputDim <= 0 {
		Panicf("ComputeExampleComputationRequestSimple(): network has no %q input", nnet.InputName)
	}
	inputs := []*mat.Dense{RandnDense(rng, (inputEndFrame-inputStartFrame)*numExamples, inputDim)}

	if ivectorDim := net.InputDim(nnet.IvectorName); ivectorDim != -1 {
		request.Inputs = append(request.Inputs, computation.IoSpecification{
			Name:    nnet.IvectorName,
			Indexes: ivectorIndexes,
		})
		inputs = append(inputs, RandnDense(rng, numExamples, ivectorDim))
		request.Inputs[len(request.Inputs)-1].HasDeriv = needDeriv && rng.IntN(2) == 0
	}
	if rng.IntN(2) == 0 {
		request.NeedModelDerivative = needDeriv
	}
	if rng.IntN(2) == 0 {
		request.StoreComponentStats = true
	}
	return request, inputs
}
