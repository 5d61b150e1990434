// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxMin(t *testing.T) {
	assert.Equal(t, 7, Max(3, 7, -1))
	assert.Equal(t, -1, Min(3, 7, -1))
	assert.Equal(t, 2.5, Max(2.5))
	assert.Equal(t, 0, Max[int]())
	assert.Equal(t, "a", Min("b", "a", "c"))
}

func TestIotaAndJoin(t *testing.T) {
	assert.Equal(t, []int{-2, -1, 0}, Iota(-2, 3))
	assert.Equal(t, "-2, -1, 0", Join(Iota(-2, 3), ", "))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
}

func TestFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	values := FlagSet(fs, "ints", []int{1}, "list of ints", strconv.Atoi)
	require.NoError(t, fs.Parse([]string{"-ints=3, 4,5"}))
	assert.Equal(t, []int{3, 4, 5}, *values)
	require.Error(t, fs.Parse([]string{"-ints=x"}))
}
