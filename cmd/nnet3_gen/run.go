// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/features"
	"github.com/gomlx/nnet3/pkg/nnet3/nnet"
	"github.com/gomlx/nnet3/pkg/nnet3/nnettest"
	"github.com/gomlx/nnet3/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// genConfig holds the parsed command-line configuration.
type genConfig struct {
	seed        uint64
	opts        nnettest.GenerationOptions
	types       []nnettest.NetworkType
	compression features.CompressionMethod
	threshold   float64
	perturb     float64
	outputDir   string
}

func newGenConfig() (*genConfig, error) {
	cfg := &genConfig{
		seed: *flagSeed,
		opts: nnettest.GenerationOptions{
			AllowContext:           *flagAllowContext,
			AllowNonlinearity:      *flagAllowNonlinearity,
			AllowRecursion:         *flagAllowRecursion,
			AllowFinalNonlinearity: *flagAllowFinalNonlinearity,
			AllowIvector:           settingAllowIvector,
			InputDim:               settingInputDim,
			OutputDim:              settingOutputDim,
		},
		threshold: settingThreshold,
		perturb:   *flagPerturb,
	}
	if cfg.seed == 0 {
		cfg.seed = rand.Uint64()
	}
	cfg.types = *flagTypes
	var err error
	cfg.compression, err = features.CompressionMethodString(settingCompression)
	if err != nil {
		return nil, errors.Wrap(err, "invalid setting \"compression\"")
	}
	if cfg.threshold <= 0 {
		return nil, errors.Errorf("setting \"threshold\" must be > 0, got %g", cfg.threshold)
	}
	if cfg.opts.InputDim < 0 || cfg.opts.OutputDim < 0 {
		return nil, errors.Errorf("settings \"input_dim\" and \"output_dim\" must be >= 0 (0 for random)")
	}
	return cfg, nil
}

// run generates *flagNum networks and checks each of them.
func run(cfg *genConfig) *runStats {
	fmt.Printf("Seed: %d\n", cfg.seed)
	rng := nnettest.NewRandWithSeed(cfg.seed)
	stats := newRunStats()
	pBar := commandline.NewProgressBar(*flagNum, "networks",
		func() (string, string) { return "Failures", fmt.Sprintf("%d", stats.totalFailures()) })
	for ii := range *flagNum {
		var networkType nnettest.NetworkType
		if len(cfg.types) > 0 {
			// Types given explicitly are generated regardless of the -allow_* flags.
			networkType = cfg.types[rng.IntN(len(cfg.types))]
		} else {
			networkType = nnettest.PickNetworkType(rng, cfg.opts)
		}
		result := checkOne(cfg, rng, ii, networkType)
		if result.err != nil {
			klog.Errorf("Network #%d (%s, seed=%d): %v", ii, networkType, cfg.seed, result.err)
		}
		stats.add(networkType, result)
		pBar.Add(1)
	}
	pBar.Done()
	return stats
}

// checkResult holds what was learned from one generated network.
type checkResult struct {
	err                       error
	numNodes, numParameters   int
	leftContext, rightContext int
	configBytes               int
	exampleFrames             int
}

// checkOne generates a network of the given type and runs the self-checks on it.
// Panics from the fixtures are converted to errors.
func checkOne(cfg *genConfig, rng *rand.Rand, ii int, networkType nnettest.NetworkType) (result checkResult) {
	result.err = exceptions.TryCatch[error](func() {
		configs := nnettest.GenerateConfigSequenceOfType(rng, cfg.opts, networkType)
		for jj, text := range configs {
			result.configBytes += len(text)
			if *flagPrint {
				fmt.Printf("# Network #%d (%s), config %d:\n%s\n", ii, networkType, jj, text)
			}
			if cfg.outputDir != "" {
				path := filepath.Join(cfg.outputDir, fmt.Sprintf("nnet_%d.%d.config", ii, jj))
				if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
					panic(errors.Wrapf(err, "failed to write config to %q", path))
				}
			}
		}
		net, err := nnet.ReadConfigs(configs, rng)
		if err != nil {
			panic(err)
		}
		result.numNodes = net.NumNodes()
		result.numParameters = net.NumParameters()
		if orphans := net.OrphanNodes(); len(orphans) > 0 {
			panic(errors.Errorf("orphan nodes %s", strings.Join(orphans, ", ")))
		}

		// Parameters: self-identity, and a perturbed copy must differ.
		if !nnettest.NnetParametersAreIdentical(net, net.Copy(), cfg.threshold) {
			panic(errors.New("network parameters differ from those of its copy"))
		}
		if cfg.perturb > 0 && result.numParameters > 0 {
			perturbed := net.Copy()
			perturbed.PerturbParameters(cfg.perturb, rng)
			if nnettest.NnetParametersAreIdentical(net, perturbed, cfg.threshold) {
				panic(errors.Errorf("parameters perturbed with stddev=%g still identical", cfg.perturb))
			}
		}

		if !nnet.IsSimple(net) {
			return
		}
		result.leftContext, result.rightContext, err = nnet.ComputeSimpleContext(net)
		if err != nil {
			panic(err)
		}
		request, inputs := nnettest.ComputeExampleComputationRequestSimple(rng, net)
		if err = request.Check(net); err != nil {
			panic(errors.WithMessagef(err, "invalid request %s", request))
		}
		if len(inputs) != len(request.Inputs) {
			panic(errors.Errorf("%d input matrices for %d request inputs", len(inputs), len(request.Inputs)))
		}

		if *flagEgs {
			result.exampleFrames, err = checkExample(cfg, rng, net, result.leftContext, result.rightContext)
			if err != nil {
				panic(err)
			}
		}
	})
	return
}

// checkExample synthesizes a training example for the network and checks its compression
// round trip. It returns the number of supervised frames.
func checkExample(cfg *genConfig, rng *rand.Rand, net *nnet.Nnet, leftContext, rightContext int) (int, error) {
	numSupervisedFrames := 1 + rng.IntN(8)
	ivectorDim := max(0, net.InputDim(nnet.IvectorName))
	example := nnettest.GenerateSimpleNnetTrainingExample(rng, numSupervisedFrames, leftContext, rightContext,
		net.OutputDim(nnet.OutputName), net.InputDim(nnet.InputName), ivectorDim)
	if supervision := example.Find(nnet.OutputName); supervision == nil {
		return 0, errors.Errorf("example has no %q", nnet.OutputName)
	}

	original := example.Copy()
	for _, io := range original.IO {
		if io.Features.Type() == features.CompressedMatrix {
			io.Features = features.FromDense(io.Features.Dense())
		}
	}
	compressed := original.Copy()
	compressed.Compress(cfg.compression)
	var maxError float64
	for _, io := range compressed.IO {
		if c := io.Features.Compressed(); c != nil {
			maxError = max(maxError, c.MaxError())
		}
	}
	if !nnettest.ExampleApproxEqual(original, compressed, maxError) {
		return 0, errors.Errorf("example differs from its %s compressed version beyond the error bound %g",
			cfg.compression, maxError)
	}
	return numSupervisedFrames, nil
}
