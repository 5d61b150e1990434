// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// nnet3_gen generates random nnet3 networks, computation requests and training examples,
// and runs the fixture self-checks on each of them.
//
// Example:
//
//	nnet3_gen -num=1000 -seed=42 -egs -types=Simple,Rnn -set="input_dim=40;allow_ivector=true"
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/nnet3/pkg/nnet3/nnettest"
	"github.com/gomlx/nnet3/pkg/support/fsutil"
	"github.com/gomlx/nnet3/pkg/support/xslices"
	"github.com/gomlx/nnet3/ui/commandline"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

var (
	flagNum  = flag.Int("num", 100, "Number of networks to generate.")
	flagSeed = flag.Uint64("seed", 0, "Random seed. If 0 a random seed is used (and printed).")
	flagTypes = xslices.Flag("types", nil, fmt.Sprintf("Comma-separated list of network types to draw from, "+
		"among %s. If empty, the types are the ones allowed by the -allow_* flags.", strings.Join(networkTypeNames(), ", ")),
		nnettest.NetworkTypeString)

	flagAllowContext           = flag.Bool("allow_context", true, "Allow spliced inputs.")
	flagAllowNonlinearity      = flag.Bool("allow_nonlinearity", true, "Allow hidden layers with nonlinearities.")
	flagAllowRecursion         = flag.Bool("allow_recursion", true, "Allow recurrent networks.")
	flagAllowFinalNonlinearity = flag.Bool("allow_final_nonlinearity", true, "Allow a final softmax/log-softmax.")

	flagPrint     = flag.Bool("print", false, "Print each generated config sequence.")
	flagOutputDir = flag.String("output_dir", "", "If set, config sequences are written to <output_dir>/<run-id>/.")
	flagEgs       = flag.Bool("egs", false, "Also synthesize a training example for each simple network, "+
		"and check its compression round trip.")
	flagPerturb = flag.Float64("perturb", 0.1, "Standard deviation of the parameter perturbation that must "+
		"make a copy of the network differ from the original. Set to 0 to skip that check.")
)

// Settings not worth a flag of their own.
var (
	settingInputDim, settingOutputDim int
	settingAllowIvector               bool
	settingThreshold                  = nnettest.DefaultParameterThreshold
	settingCompression                = "two_byte"

	settings = commandline.Settings{
		"input_dim":     &settingInputDim,
		"output_dim":    &settingOutputDim,
		"allow_ivector": &settingAllowIvector,
		"threshold":     &settingThreshold,
		"compression":   &settingCompression,
	}
	flagSettings = commandline.CreateSettingsFlag(settings, "")
)

func networkTypeNames() []string {
	return xslices.Map(xslices.Iota(nnettest.NetworkSimplest, int(nnettest.NumNetworkTypes)), nnettest.NetworkType.String)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'nnet3_gen -help'.", flag.Args())
		os.Exit(1)
	}
	if *flagNum <= 0 {
		klog.Errorf("-num must be > 0, got %d", *flagNum)
		os.Exit(1)
	}
	if _, err := commandline.ParseSettings(settings, *flagSettings); err != nil {
		klog.Errorf("Failed to parse -set=%q: %+v", *flagSettings, err)
		os.Exit(1)
	}
	klog.V(1).Infof("Settings:\n%s", commandline.SprintSettings(settings))

	cfg, err := newGenConfig()
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	if *flagOutputDir != "" {
		dir, err := fsutil.CreateDir(filepath.Join(*flagOutputDir, uuid.NewString()))
		if err != nil {
			klog.Errorf("%+v", err)
			os.Exit(1)
		}
		cfg.outputDir = dir
	}

	stats := run(cfg)
	stats.print()
	if cfg.outputDir != "" {
		fmt.Printf("Configs written to %s\n", cfg.outputDir)
	}
	if stats.totalFailures() > 0 {
		os.Exit(1)
	}
}
