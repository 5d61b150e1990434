// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	"math/rand/v2"
	"slices"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/egs"
	"github.com/gomlx/nnet3/pkg/nnet3/nnet"
	"gonum.org/v1/gonum/mat"
)

// GenerateSimpleNnetTrainingExample creates a random training example for a simple network
// with the given context and dimensions:
//
//   - "input": leftContext+numSupervisedFrames+rightContext frames of inputDim random features,
//     starting at a random t in [0, 2], compressed with probability 1/2.
//   - "ivector": only if ivectorDim > 0, one frame at t=0, compressed with probability 1/2.
//   - "output": numSupervisedFrames frames of soft labels over outputDim classes, starting
//     leftContext frames after the input. Each frame has 1 to 3 labels, and its probabilities
//     add up to 1.
//
// It panics on invalid counts or dimensions.
func GenerateSimpleNnetTrainingExample(rng *rand.Rand, numSupervisedFrames, leftContext, rightContext,
	outputDim, inputDim, ivectorDim int) *egs.Example {
	if numSupervisedFrames <= 0 || leftContext < 0 || rightContext < 0 || outputDim <= 0 || inputDim <= 0 {
		Panicf("GenerateSimpleNnetTrainingExample(numSupervisedFrames=%d, leftContext=%d, rightContext=%d, "+
			"outputDim=%d, inputDim=%d): invalid arguments",
			numSupervisedFrames, leftContext, rightContext, outputDim, inputDim)
	}
	example := &egs.Example{}

	featureTBegin := randInt(rng, 0, 2)
	numFeatFrames := leftContext + rightContext + numSupervisedFrames
	input := egs.NewIo(nnet.InputName, featureTBegin, RandnDense(rng, numFeatFrames, inputDim))
	if randInt(rng, 0, 1) == 0 {
		input.Features.Compress()
	}
	example.IO = append(example.IO, input)

	if ivectorDim > 0 {
		// i-vectors are always at t=0.
		ivector := egs.NewIo(nnet.IvectorName, 0, RandnDense(rng, 1, ivectorDim))
		if randInt(rng, 0, 1) == 0 {
			ivector.Features.Compress()
		}
		example.IO = append(example.IO, ivector)
	}

	labels := make(egs.Posterior, numSupervisedFrames)
	for t := range labels {
		numLabels := randInt(rng, 1, 3)
		remainingProbMass := 1.0
		for ii := range numLabels {
			prob := remainingProbMass
			if ii+1 < numLabels {
				prob *= rng.Float64()
			}
			remainingProbMass -= prob
			labels[t] = append(labels[t], egs.LabelProb{Class: randInt(rng, 0, outputDim-1), Prob: prob})
		}
	}
	supervisionTBegin := featureTBegin + leftContext
	example.IO = append(example.IO, egs.NewIoFromPosterior(nnet.OutputName, outputDim, supervisionTBegin, labels))
	return example
}

// ExampleApproxEqual returns whether the examples have the same inputs/outputs, in the same
// order, with the same names and indexes, and with features (decompressed if needed) equal
// within delta (absolute, or relative for large values).
func ExampleApproxEqual(e1, e2 *egs.Example, delta float64) bool {
	if len(e1.IO) != len(e2.IO) {
		return false
	}
	for ii, io1 := range e1.IO {
		io2 := e2.IO[ii]
		if io1.Name != io2.Name || !slices.Equal(io1.Indexes, io2.Indexes) {
			return false
		}
		if !mat.EqualApprox(io1.Features.Dense(), io2.Features.Dense(), delta) {
			return false
		}
	}
	return true
}
