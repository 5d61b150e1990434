// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nnettest generates random networks, computation requests and training examples for
// tests, and compares networks and examples.
//
// All generators take an explicit *rand.Rand, so fixtures can be reproduced from a seed. In
// tests use NewRand, which honors $NNET3_TEST_SEED:
//
//	rng := nnettest.NewRand(t)
//	configs := nnettest.GenerateConfigSequence(rng, nnettest.DefaultGenerationOptions())
//	net := must.M1(nnet.ReadConfigs(configs, rng))
//
// Invalid arguments are programmer errors: generators panic (with exceptions.Panicf) on them.
package nnettest

import (
	"math/rand/v2"
	"os"
	"strconv"
	"testing"

	. "github.com/gomlx/exceptions"
)

// GenerationOptions select which kinds of networks the config generators may produce.
type GenerationOptions struct {
	// AllowContext enables spliced inputs (Append of Offset over several frames).
	AllowContext bool

	// AllowNonlinearity enables hidden layers with nonlinearities.
	AllowNonlinearity bool

	// AllowRecursion enables recurrent networks.
	AllowRecursion bool

	// AllowFinalNonlinearity enables a softmax or log-softmax output stage.
	AllowFinalNonlinearity bool

	// AllowIvector enables (with probability 1/2) an "ivector" input appended, at t=0, to the
	// spliced input of the non-recurrent networks with context.
	AllowIvector bool

	// InputDim and OutputDim fix the dimensions of the "input" and "output" nodes.
	// If 0 they are drawn at random.
	InputDim, OutputDim int
}

// DefaultGenerationOptions enables every kind of network, without i-vectors, and with random
// dimensions.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		AllowContext:           true,
		AllowNonlinearity:      true,
		AllowRecursion:         true,
		AllowFinalNonlinearity: true,
	}
}

func (opts GenerationOptions) inputDim(rng *rand.Rand) int {
	if opts.InputDim > 0 {
		return opts.InputDim
	}
	return 10 + rng.IntN(20)
}

func (opts GenerationOptions) outputDim(rng *rand.Rand) int {
	if opts.OutputDim > 0 {
		return opts.OutputDim
	}
	return 100 + rng.IntN(200)
}

// randInt returns a random integer in the closed interval [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi < lo {
		Panicf("randInt(%d, %d): empty interval", lo, hi)
	}
	return lo + rng.IntN(hi-lo+1)
}

// SeedEnvVar is the environment variable NewRand reads the seed from.
const SeedEnvVar = "NNET3_TEST_SEED"

// NewRand returns a random number generator for a test, seeded from $NNET3_TEST_SEED if set,
// or with a random seed otherwise. The seed is logged, so a failure can be reproduced.
func NewRand(tb testing.TB) *rand.Rand {
	tb.Helper()
	var seed uint64
	if value := os.Getenv(SeedEnvVar); value != "" {
		var err error
		seed, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			tb.Fatalf("invalid $%s=%q: %v", SeedEnvVar, value, err)
		}
	} else {
		seed = rand.Uint64()
	}
	tb.Logf("random seed: $%s=%d", SeedEnvVar, seed)
	return NewRandWithSeed(seed)
}

// NewRandWithSeed returns a random number generator deterministically seeded.
func NewRandWithSeed(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
