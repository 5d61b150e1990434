// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/nnet3/pkg/nnet3/nnettest"
	"github.com/gomlx/nnet3/ui/commandline"
)

// typeStats accumulates the results of one network type.
type typeStats struct {
	count, failures                 int
	numNodes, numParameters         int
	maxLeftContext, maxRightContext int
	configBytes                     int
	exampleFrames                   int
}

type runStats struct {
	perType [nnettest.NumNetworkTypes]typeStats
}

func newRunStats() *runStats {
	return &runStats{}
}

func (s *runStats) add(networkType nnettest.NetworkType, result checkResult) {
	ts := &s.perType[networkType]
	ts.count++
	if result.err != nil {
		ts.failures++
		return
	}
	ts.numNodes += result.numNodes
	ts.numParameters += result.numParameters
	ts.maxLeftContext = max(ts.maxLeftContext, result.leftContext)
	ts.maxRightContext = max(ts.maxRightContext, result.rightContext)
	ts.configBytes += result.configBytes
	ts.exampleFrames += result.exampleFrames
}

func (s *runStats) totalFailures() (total int) {
	for _, ts := range s.perType {
		total += ts.failures
	}
	return
}

func (s *runStats) print() {
	commandline.PrintTitle("Summary")
	table := commandline.NewPlainTable(true).
		Headers("Type", "Networks", "Failures", "Mean #nodes", "# parameters", "Max context", "Configs", "Example frames")
	for t, ts := range s.perType {
		if ts.count == 0 {
			continue
		}
		meanNodes := "-"
		if succeeded := ts.count - ts.failures; succeeded > 0 {
			meanNodes = fmt.Sprintf("%.1f", float64(ts.numNodes)/float64(succeeded))
		}
		table.Row(nnettest.NetworkType(t).String(),
			humanize.Comma(int64(ts.count)),
			humanize.Comma(int64(ts.failures)),
			meanNodes,
			humanize.Comma(int64(ts.numParameters)),
			fmt.Sprintf("-%d / +%d", ts.maxLeftContext, ts.maxRightContext),
			humanize.Bytes(uint64(ts.configBytes)),
			humanize.Comma(int64(ts.exampleFrames)))
	}
	fmt.Println(table.Render())
}
