// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"testing"

	"github.com/gomlx/nnet3/pkg/support/sets"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, text := range []string{
		"input",
		"Offset(input, -1)",
		"Offset(input, 2, 1)",
		"Append(Offset(input, -5), Offset(input, 0), Offset(input, 3))",
		"Sum(affine1_node, IfDefined(recurrent_affine1))",
		"Append(input, ReplaceIndex(ivector, t, 0))",
		"IfDefined(Offset(nonlin1, -1))",
	} {
		d, err := Parse(text)
		require.NoErrorf(t, err, "text=%q", text)
		assert.Equal(t, text, d.String())
	}

	// Canonical form normalizes spacing.
	d, err := Parse("Append( Offset(input,-1) ,input )")
	require.NoError(t, err)
	assert.Equal(t, "Append(Offset(input, -1), input)", d.String())
	assert.True(t, Equal(d, MustParse("Append(Offset(input, -1), input)")))
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"Append(input",
		"Offset(input)",
		"Offset(input, x)",
		"Sum(input)",
		"IfDefined(a, b)",
		"ReplaceIndex(ivector, n, 0)",
		"Unknown(input)",
		"input extra",
		"-3",
		"input;",
	} {
		_, err := Parse(text)
		assert.Errorf(t, err, "text=%q", text)
	}
}

func TestDim(t *testing.T) {
	dims := map[string]int{"input": 10, "ivector": 4, "affine1": 7, "recurrent": 7, "other": 3}
	dimFn := func(name string) (int, error) {
		dim, found := dims[name]
		if !found {
			return 0, errors.Errorf("unknown node %q", name)
		}
		return dim, nil
	}

	dim, err := MustParse("Append(Offset(input, -1), input, ReplaceIndex(ivector, t, 0))").Dim(dimFn)
	require.NoError(t, err)
	assert.Equal(t, 24, dim)

	dim, err = MustParse("Sum(affine1, IfDefined(recurrent))").Dim(dimFn)
	require.NoError(t, err)
	assert.Equal(t, 7, dim)

	_, err = MustParse("Sum(affine1, other)").Dim(dimFn)
	assert.Error(t, err)
	_, err = MustParse("Offset(missing, 1)").Dim(dimFn)
	assert.Error(t, err)
}

func TestNodeNames(t *testing.T) {
	d := MustParse("Append(Sum(affine1_node, IfDefined(recurrent_affine1)), Offset(input, 2))")
	assert.True(t, sets.MakeWith("affine1_node", "recurrent_affine1", "input").Equal(NodeNames(d)))
	assert.True(t, sets.MakeWith("affine1_node", "input").Equal(RequiredNodeNames(d)))
}

func TestSplice(t *testing.T) {
	assert.Equal(t, "Append(Offset(input, -2), Offset(input, 0), Offset(input, 3))",
		Splice("input", []int{-2, 0, 3}).String())
	assert.Equal(t, "Append(Offset(input, 0))", Splice("input", []int{0}).String())
}
