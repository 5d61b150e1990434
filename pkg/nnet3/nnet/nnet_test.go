// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnet

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRng() *rand.Rand { return rand.New(rand.NewPCG(17, 3)) }

const simplestConfig = `
component name=affine1 type=AffineComponent input-dim=10 output-dim=100
input-node name=input dim=10
component-node name=affine1_node component=affine1 input=input
output-node name=output input=affine1_node
`

const rnnConfig = `
component name=affine1 type=NaturalGradientAffineComponent input-dim=20 output-dim=40
component name=nonlin1 type=RectifiedLinearComponent dim=40
component name=recurrent_affine1 type=NaturalGradientAffineComponent input-dim=40 output-dim=40
component name=affine2 type=NaturalGradientAffineComponent input-dim=40 output-dim=120
component name=logsoftmax type=LogSoftmaxComponent dim=120
input-node name=input dim=10
component-node name=affine1_node component=affine1 input=Append(Offset(input, -3), Offset(input, 2))
component-node name=recurrent_affine1 component=recurrent_affine1 input=Offset(nonlin1, -1)
component-node name=nonlin1 component=nonlin1 input=Sum(affine1_node, IfDefined(recurrent_affine1))
component-node name=affine2 component=affine2 input=nonlin1
component-node name=output_nonlin component=logsoftmax input=affine2
output-node name=output input=output_nonlin
`

func TestReadSimplest(t *testing.T) {
	n := New()
	require.NoError(t, n.ReadConfig(simplestConfig, newRng()))
	assert.Equal(t, 1, n.NumComponents())
	assert.Equal(t, "affine1", n.GetComponentName(0))
	assert.Equal(t, 0, n.GetComponentIndex("affine1"))
	assert.Equal(t, -1, n.GetComponentIndex("affine2"))
	assert.Equal(t, "AffineComponent", n.GetComponent(0).Type())
	assert.Equal(t, 3, n.NumNodes())
	assert.Equal(t, []string{"input", "affine1_node", "output"}, n.NodeNames())
	assert.Equal(t, []string{"input"}, n.InputNames())
	assert.Equal(t, []string{"output"}, n.OutputNames())
	assert.Equal(t, 10, n.InputDim("input"))
	assert.Equal(t, -1, n.InputDim("ivector"))
	assert.Equal(t, -1, n.InputDim("output"))
	assert.Equal(t, 100, n.OutputDim("output"))
	assert.True(t, n.IsInput("input"))
	assert.True(t, n.IsOutput("output"))
	assert.False(t, n.IsOutput("affine1_node"))
	assert.Equal(t, 11*100, n.NumParameters())
	assert.Empty(t, n.OrphanNodes())
	assert.Empty(t, n.OrphanComponents())
	assert.Contains(t, n.Info(), "num-parameters=1100")
	assert.Contains(t, n.Config(), "output-node name=output input=affine1_node objective=linear")

	assert.True(t, IsSimple(n))
	left, right := must.M2(ComputeSimpleContext(n))
	assert.Equal(t, 0, left)
	assert.Equal(t, 0, right)

	assert.Error(t, exceptions.TryCatch[error](func() { n.GetComponent(1) }))
}

func TestReadRnn(t *testing.T) {
	n := New()
	require.NoError(t, n.ReadConfig(rnnConfig, newRng()))
	assert.Equal(t, 5, n.NumComponents())
	assert.Equal(t, 120, n.OutputDim("output"))
	assert.True(t, IsSimple(n))
	left, right := must.M2(ComputeSimpleContext(n))
	assert.Equal(t, 3, left)
	assert.Equal(t, 2, right)
}

func TestReadGrowth(t *testing.T) {
	first := `
component name=affine1 type=NaturalGradientAffineComponent input-dim=10 output-dim=50
component name=relu1 type=RectifiedLinearComponent dim=50
component name=final_affine type=NaturalGradientAffineComponent input-dim=50 output-dim=200
input-node name=input dim=10
component-node name=affine1_node component=affine1 input=Append(Offset(input, 0))
component-node name=nonlin1 component=relu1 input=affine1_node
component-node name=final_affine component=final_affine input=nonlin1
output-node name=output input=final_affine
`
	second := `
component name=affine2 type=NaturalGradientAffineComponent input-dim=50 output-dim=50
component name=relu2 type=RectifiedLinearComponent dim=50
component name=final_affine type=NaturalGradientAffineComponent input-dim=50 output-dim=200
component-node name=affine2 component=affine2 input=nonlin1
component-node name=relu2 component=relu2 input=affine2
component-node name=final_affine component=final_affine input=relu2
`
	n, err := ReadConfigs([]string{first, second}, newRng())
	require.NoError(t, err)
	assert.Equal(t, 5, n.NumComponents())
	assert.Equal(t, 2, n.GetComponentIndex("final_affine"))
	assert.Equal(t, 7, n.NumNodes())
	assert.Equal(t, "relu2", n.GetNode("final_affine").Input.String())
	assert.Empty(t, n.OrphanNodes())
	assert.True(t, IsSimple(n))
}

func TestReadErrors(t *testing.T) {
	for _, text := range []string{
		// Dimension mismatch.
		`component name=a type=AffineComponent input-dim=5 output-dim=3
input-node name=input dim=10
component-node name=a component=a input=input
output-node name=output input=a`,
		// Undefined component.
		`input-node name=input dim=10
component-node name=a component=a input=input
output-node name=output input=a`,
		// Undefined node.
		`input-node name=input dim=10
output-node name=output input=b`,
		// Output node used as input.
		`input-node name=input dim=10
output-node name=output input=input
output-node name=output2 input=output`,
		// Unguarded cycle.
		`component name=a type=RectifiedLinearComponent dim=10
input-node name=input dim=10
component-node name=a component=a input=Sum(input, b)
component-node name=b component=a input=Offset(a, -1)
output-node name=output input=a`,
		// Node redefined with another kind.
		`input-node name=input dim=10
output-node name=input input=input`,
		// Unknown line type and unused keys.
		`weird-node name=input dim=10`,
		`input-node name=input dim=10 foo=bar
output-node name=output input=input`,
		// Invalid values.
		`input-node name=input dim=0
output-node name=output input=input`,
		`input-node name=1input dim=3`,
		`input-node name=input dim=3
output-node name=output input=input objective=cubic`,
		// No outputs.
		`input-node name=input dim=3`,
	} {
		assert.Errorf(t, New().ReadConfig(text, newRng()), "config:\n%s", text)
	}
}

func TestCopyAndParameters(t *testing.T) {
	n := New()
	require.NoError(t, n.ReadConfig(rnnConfig, newRng()))
	n2 := n.Copy()
	assert.Equal(t, n.NumParameters(), n2.NumParameters())
	assert.Equal(t, n.Config(), n2.Config())

	// Modifying the copy leaves the original unchanged.
	n2.ScaleParameters(0)
	n2.PerturbParameters(0.1, newRng())
	assert.NotSame(t, n.GetComponent(0), n2.GetComponent(0))
	require.NoError(t, n2.ReadConfig(`input-node name=ivector dim=5`+"\n"+`output-node name=output2 input=ivector`, newRng()))
	assert.Equal(t, -1, n.InputDim("ivector"))
	assert.Equal(t, 5, n2.InputDim("ivector"))
	assert.Equal(t, []string{"output", "output2"}, n2.OutputNames())
	assert.True(t, IsSimple(n2))
}

func TestNotSimple(t *testing.T) {
	n := New()
	require.NoError(t, n.ReadConfig(`
input-node name=features dim=3
output-node name=output input=features`, newRng()))
	assert.False(t, IsSimple(n))
	_, _, err := ComputeSimpleContext(n)
	assert.Error(t, err)

	n = New()
	require.NoError(t, n.ReadConfig(`
input-node name=input dim=3
input-node name=ivector dim=2
input-node name=extra dim=2
output-node name=output input=Append(input, ReplaceIndex(ivector, t, 0))
output-node name=output2 input=extra`, newRng()))
	assert.False(t, IsSimple(n), "extra input")
	left, right := must.M2(ComputeSimpleContext(n))
	assert.Equal(t, 0, left)
	assert.Equal(t, 0, right)
	assert.Equal(t, 5, n.OutputDim("output"))
	assert.Empty(t, n.OrphanNodes())

	n = New()
	require.NoError(t, n.ReadConfig(`
input-node name=input dim=3
input-node name=ivector dim=2
output-node name=output input=ivector`, newRng()))
	assert.False(t, IsSimple(n), "output doesn't depend on input")
	assert.Equal(t, []string{"input"}, n.OrphanNodes())
}
