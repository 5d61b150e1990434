// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	"fmt"
	"math/rand/v2"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/component"
	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/gomlx/nnet3/pkg/support/xslices"
)

// randomComponentConfig generates the parameters of one component type.
type randomComponentConfig struct {
	typeName string
	params   func(rng *rand.Rand) string
}

func randomDimParams(maxDim int) func(rng *rand.Rand) string {
	return func(rng *rand.Rand) string { return fmt.Sprintf("dim=%d", randInt(rng, 1, maxDim)) }
}

func randomAffineParams(rng *rand.Rand) string {
	inputDim := randInt(rng, 1, 50)
	outputDim := randInt(rng, 1, 50)
	return fmt.Sprintf("input-dim=%d output-dim=%d", inputDim, outputDim)
}

// randomComponentConfigs lists the component types GenerateRandomComponentConfig draws from.
var randomComponentConfigs = []randomComponentConfig{
	{"PnormComponent", func(rng *rand.Rand) string {
		outputDim := randInt(rng, 1, 50)
		groupSize := randInt(rng, 1, 15)
		return fmt.Sprintf("input-dim=%d output-dim=%d", outputDim*groupSize, outputDim)
	}},
	{"NormalizeComponent", randomDimParams(50)},
	{"SigmoidComponent", randomDimParams(50)},
	{"TanhComponent", randomDimParams(50)},
	{"RectifiedLinearComponent", randomDimParams(50)},
	{"SoftmaxComponent", randomDimParams(50)},
	{"LogSoftmaxComponent", randomDimParams(50)},
	{"NoOpComponent", randomDimParams(50)},
	{"FixedAffineComponent", randomAffineParams},
	{"AffineComponent", randomAffineParams},
	{"NaturalGradientAffineComponent", randomAffineParams},
	{"SumGroupComponent", func(rng *rand.Rand) string {
		sizes := make([]int, randInt(rng, 1, 50))
		for ii := range sizes {
			sizes[ii] = randInt(rng, 1, 5)
		}
		return "sizes=" + xslices.Join(sizes, ",")
	}},
	{"FixedScaleComponent", randomDimParams(100)},
	{"FixedBiasComponent", randomDimParams(100)},
}

// GenerateRandomComponentConfig draws one of the 14 simple component types uniformly, and
// valid random parameters for it, e.g. ("PnormComponent", "input-dim=12 output-dim=4").
func GenerateRandomComponentConfig(rng *rand.Rand) (typeName, params string) {
	n := rng.IntN(len(randomComponentConfigs))
	generator := randomComponentConfigs[n]
	return generator.typeName, generator.params(rng)
}

// GenerateRandomSimpleComponent creates a component of a random type (see
// GenerateRandomComponentConfig), initialized with random parameters drawn from rng.
//
// It panics if the generated parameters can't be parsed or the type is unknown.
func GenerateRandomSimpleComponent(rng *rand.Rand) component.Component {
	typeName, params := GenerateRandomComponentConfig(rng)
	line, err := config.ParseLine(params)
	if err != nil {
		Panicf("bad config line %q: %+v", params, err)
	}
	comp, err := component.New(typeName)
	if err != nil {
		Panicf("invalid component type %q: %+v", typeName, err)
	}
	if err = comp.InitFromConfig(line, rng); err != nil {
		Panicf("failed to initialize %s from %q: %+v", typeName, params, err)
	}
	if line.HasUnusedValues() {
		Panicf("%s: unused values in config line %q: %s", typeName, params, line.UnusedValues())
	}
	return comp
}
