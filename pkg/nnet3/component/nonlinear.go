// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// checkInput panics if in doesn't have c.InputDim() columns.
func checkInput(c Component, in *mat.Dense) {
	_, cols := in.Dims()
	if cols != c.InputDim() {
		Panicf("%s.Propagate(): input has %d columns, expected input-dim=%d", c.Type(), cols, c.InputDim())
	}
}

type elementwiseType int

const (
	typeSigmoid elementwiseType = iota
	typeTanh
	typeRectifiedLinear
	typeNoOp
)

var elementwiseTypeNames = map[elementwiseType]string{
	typeSigmoid:         "SigmoidComponent",
	typeTanh:            "TanhComponent",
	typeRectifiedLinear: "RectifiedLinearComponent",
	typeNoOp:            "NoOpComponent",
}

// Elementwise implements the components that apply a scalar function to every element:
// SigmoidComponent, TanhComponent, RectifiedLinearComponent and NoOpComponent.
//
// Config: dim=<int>.
type Elementwise struct {
	kind elementwiseType
	dim  int
}

func newElementwise(kind elementwiseType) *Elementwise { return &Elementwise{kind: kind} }

func (c *Elementwise) Type() string   { return elementwiseTypeNames[c.kind] }
func (c *Elementwise) InputDim() int  { return c.dim }
func (c *Elementwise) OutputDim() int { return c.dim }

func (c *Elementwise) Properties() Properties {
	if c.kind == typeNoOp {
		return PropSimple | PropLinearInInput | PropPropagateInPlace
	}
	return PropSimple | PropBackpropNeedsOutput | PropPropagateInPlace | PropStoresStats
}

func (c *Elementwise) InitFromConfig(line *config.Line, _ *rand.Rand) (err error) {
	c.dim, err = getPositiveInt(line, "dim")
	return
}

func (c *Elementwise) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	var fn func(x float64) float64
	switch c.kind {
	case typeSigmoid:
		fn = func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }
	case typeTanh:
		fn = math.Tanh
	case typeRectifiedLinear:
		fn = func(x float64) float64 { return math.Max(x, 0) }
	default:
		fn = func(x float64) float64 { return x }
	}
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, in)
	return &out
}

func (c *Elementwise) Copy() Component {
	c2 := *c
	return &c2
}

func (c *Elementwise) Info() string { return fmt.Sprintf("type=%s, dim=%d", c.Type(), c.dim) }

// Softmax implements SoftmaxComponent and LogSoftmaxComponent, applied to each frame (row).
//
// Config: dim=<int>.
type Softmax struct {
	dim int
	log bool
}

func (c *Softmax) Type() string {
	if c.log {
		return "LogSoftmaxComponent"
	}
	return "SoftmaxComponent"
}

func (c *Softmax) InputDim() int  { return c.dim }
func (c *Softmax) OutputDim() int { return c.dim }

func (c *Softmax) Properties() Properties {
	return PropSimple | PropBackpropNeedsOutput | PropStoresStats
}

func (c *Softmax) InitFromConfig(line *config.Line, _ *rand.Rand) (err error) {
	c.dim, err = getPositiveInt(line, "dim")
	return
}

func (c *Softmax) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	out := mat.DenseCopyOf(in)
	rows, _ := out.Dims()
	for row := range rows {
		values := out.RawRowView(row)
		logSum := floats.LogSumExp(values)
		for ii, v := range values {
			if c.log {
				values[ii] = v - logSum
			} else {
				values[ii] = math.Exp(v - logSum)
			}
		}
	}
	return out
}

func (c *Softmax) Copy() Component {
	c2 := *c
	return &c2
}

func (c *Softmax) Info() string { return fmt.Sprintf("type=%s, dim=%d", c.Type(), c.dim) }

// squaredNormFloor keeps Normalize from dividing by zero.
const squaredNormFloor = 1.3552527156068805e-20 // 2^-66

// Normalize scales each frame so its root-mean-square value is target-rms. With
// add-log-stddev=true it appends one column with the log of the original RMS.
//
// Config: dim=<int> [target-rms=1.0] [add-log-stddev=false].
type Normalize struct {
	dim          int
	targetRMS    float64
	addLogStddev bool
}

func (c *Normalize) Type() string  { return "NormalizeComponent" }
func (c *Normalize) InputDim() int { return c.dim }

func (c *Normalize) OutputDim() int {
	if c.addLogStddev {
		return c.dim + 1
	}
	return c.dim
}

func (c *Normalize) Properties() Properties {
	if c.addLogStddev {
		return PropSimple | PropBackpropNeedsInput
	}
	return PropSimple | PropBackpropNeedsInput | PropPropagateInPlace
}

func (c *Normalize) InitFromConfig(line *config.Line, _ *rand.Rand) (err error) {
	if c.dim, err = getPositiveInt(line, "dim"); err != nil {
		return
	}
	if c.targetRMS, err = line.GetFloatOr("target-rms", 1.0); err != nil {
		return
	}
	if c.targetRMS <= 0 {
		return errors.Errorf("target-rms must be positive, got %g", c.targetRMS)
	}
	c.addLogStddev, err = line.GetBoolOr("add-log-stddev", false)
	return
}

func (c *Normalize) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	rows, _ := in.Dims()
	out := mat.NewDense(rows, c.OutputDim(), nil)
	for row := range rows {
		x := in.RawRowView(row)
		squaredNorm := math.Max(floats.Dot(x, x)/float64(c.dim), squaredNormFloor)
		rms := math.Sqrt(squaredNorm)
		y := out.RawRowView(row)
		for ii, v := range x {
			y[ii] = v * c.targetRMS / rms
		}
		if c.addLogStddev {
			y[c.dim] = math.Log(rms)
		}
	}
	return out
}

func (c *Normalize) Copy() Component {
	c2 := *c
	return &c2
}

func (c *Normalize) Info() string {
	return fmt.Sprintf("type=%s, dim=%d, target-rms=%g, add-log-stddev=%v",
		c.Type(), c.dim, c.targetRMS, c.addLogStddev)
}
