// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package computation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNet struct {
	inputs, outputs map[string]int
}

func dimOr(dims map[string]int, name string) int {
	if dim, found := dims[name]; found {
		return dim
	}
	return -1
}

func (f fakeNet) InputDim(name string) int  { return dimOr(f.inputs, name) }
func (f fakeNet) OutputDim(name string) int { return dimOr(f.outputs, name) }

func TestIndex(t *testing.T) {
	assert.Equal(t, "(1, -2, 0)", Index{N: 1, T: -2}.String())
	assert.True(t, Index{N: 0, T: 5}.Less(Index{N: 1, T: 0}))
	assert.True(t, Index{N: 1, T: 0}.Less(Index{N: 1, T: 1}))
	assert.False(t, Index{N: 1, T: 1}.Less(Index{N: 1, T: 1}))
	assert.Len(t, Range(0, 3, 3), 0)
	assert.Equal(t, []Index{{N: 2, T: -1}, {N: 2, T: 0}}, Range(2, -1, 1))

	indexes := append(Range(0, 0, 4), Index{N: 1, T: 7})
	assert.Equal(t, "[ (0, 0:3, 0) (1, 7, 0) ]", PrintIndexes(indexes))
	assert.Equal(t, "[ ]", PrintIndexes(nil))
}

func TestRequest(t *testing.T) {
	net := fakeNet{
		inputs:  map[string]int{"input": 10, "ivector": 5},
		outputs: map[string]int{"output": 3},
	}
	r := &Request{
		Inputs: []IoSpecification{
			{Name: "input", Indexes: Range(0, -2, 5)},
			{Name: "ivector", Indexes: []Index{{N: 0, T: 0}}},
		},
		Outputs: []IoSpecification{{Name: "output", Indexes: Range(0, 0, 3), HasDeriv: true}},
	}
	require.NoError(t, r.Check(net))
	assert.Equal(t, 1, r.IndexOfInput("ivector"))
	assert.Equal(t, -1, r.IndexOfInput("output"))
	assert.Equal(t, 0, r.IndexOfOutput("output"))
	assert.False(t, r.NeedDerivatives())
	assert.Contains(t, r.String(), "output output[ (0, 0:2, 0) ] (has-deriv=true)")

	r.NeedModelDerivative = true
	assert.True(t, r.NeedDerivatives())

	r.Inputs[1].Indexes[0].T = 1
	assert.Error(t, r.Check(net))
	r.Inputs[1].Indexes[0].T = 0

	r.Outputs = append(r.Outputs, IoSpecification{Name: "output", Indexes: Range(0, 0, 1)})
	assert.Error(t, r.Check(net))
	r.Outputs = r.Outputs[:1]

	r.Inputs = append(r.Inputs, IoSpecification{Name: "unknown", Indexes: Range(0, 0, 1)})
	assert.Error(t, r.Check(net))
	r.Inputs = r.Inputs[:2]

	r.Inputs[0].Indexes = nil
	assert.Error(t, r.Check(net))

	assert.Error(t, (&Request{}).Check(net))
}
