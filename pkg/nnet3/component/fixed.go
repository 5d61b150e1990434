// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package component

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Pnorm implements PnormComponent: the input is split in output-dim groups of consecutive
// elements, and each output is the 2-norm of its group.
//
// Config: input-dim=<int> output-dim=<int>, with input-dim a multiple of output-dim.
type Pnorm struct {
	inputDim, outputDim int
}

func (c *Pnorm) Type() string   { return "PnormComponent" }
func (c *Pnorm) InputDim() int  { return c.inputDim }
func (c *Pnorm) OutputDim() int { return c.outputDim }

func (c *Pnorm) Properties() Properties {
	return PropSimple | PropBackpropNeedsInput | PropBackpropNeedsOutput
}

// GroupSize returns the number of inputs pooled into each output.
func (c *Pnorm) GroupSize() int { return c.inputDim / c.outputDim }

func (c *Pnorm) InitFromConfig(line *config.Line, _ *rand.Rand) (err error) {
	if c.inputDim, err = getPositiveInt(line, "input-dim"); err != nil {
		return
	}
	if c.outputDim, err = getPositiveInt(line, "output-dim"); err != nil {
		return
	}
	if c.inputDim%c.outputDim != 0 {
		return errors.Errorf("input-dim=%d must be a multiple of output-dim=%d", c.inputDim, c.outputDim)
	}
	return nil
}

func (c *Pnorm) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	rows, _ := in.Dims()
	groupSize := c.GroupSize()
	out := mat.NewDense(rows, c.outputDim, nil)
	for row := range rows {
		x := in.RawRowView(row)
		y := out.RawRowView(row)
		for group := range y {
			y[group] = floats.Norm(x[group*groupSize:(group+1)*groupSize], 2)
		}
	}
	return out
}

func (c *Pnorm) Copy() Component {
	c2 := *c
	return &c2
}

func (c *Pnorm) Info() string {
	return fmt.Sprintf("type=%s, input-dim=%d, output-dim=%d", c.Type(), c.inputDim, c.outputDim)
}

// SumGroup implements SumGroupComponent: each output is the sum of a group of consecutive
// inputs, with the group sizes given in the config.
//
// Config: sizes=<int>,<int>,... (all positive).
type SumGroup struct {
	sizes []int
}

func (c *SumGroup) Type() string { return "SumGroupComponent" }

func (c *SumGroup) InputDim() int {
	total := 0
	for _, size := range c.sizes {
		total += size
	}
	return total
}

func (c *SumGroup) OutputDim() int { return len(c.sizes) }

func (c *SumGroup) Properties() Properties { return PropSimple | PropLinearInInput }

// Sizes returns the sizes of the groups.
func (c *SumGroup) Sizes() []int { return append([]int(nil), c.sizes...) }

func (c *SumGroup) InitFromConfig(line *config.Line, _ *rand.Rand) (err error) {
	if c.sizes, err = line.GetIntList("sizes"); err != nil {
		return
	}
	for ii, size := range c.sizes {
		if size <= 0 {
			return errors.Errorf("sizes[%d]=%d must be positive", ii, size)
		}
	}
	return nil
}

func (c *SumGroup) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	rows, _ := in.Dims()
	out := mat.NewDense(rows, c.OutputDim(), nil)
	for row := range rows {
		x := in.RawRowView(row)
		y := out.RawRowView(row)
		start := 0
		for group, size := range c.sizes {
			y[group] = floats.Sum(x[start : start+size])
			start += size
		}
	}
	return out
}

func (c *SumGroup) Copy() Component {
	return &SumGroup{sizes: c.Sizes()}
}

func (c *SumGroup) Info() string {
	return fmt.Sprintf("type=%s, input-dim=%d, output-dim=%d", c.Type(), c.InputDim(), c.OutputDim())
}

// FixedScale implements FixedScaleComponent: multiplies each column by a fixed scale.
//
// Config: dim=<int> [scale=1.0].
type FixedScale struct {
	scales []float64
}

func (c *FixedScale) Type() string   { return "FixedScaleComponent" }
func (c *FixedScale) InputDim() int  { return len(c.scales) }
func (c *FixedScale) OutputDim() int { return len(c.scales) }

func (c *FixedScale) Properties() Properties {
	return PropSimple | PropLinearInInput | PropPropagateInPlace
}

func (c *FixedScale) InitFromConfig(line *config.Line, _ *rand.Rand) error {
	dim, err := getPositiveInt(line, "dim")
	if err != nil {
		return err
	}
	scale, err := line.GetFloatOr("scale", 1.0)
	if err != nil {
		return err
	}
	c.scales = make([]float64, dim)
	for ii := range c.scales {
		c.scales[ii] = scale
	}
	return nil
}

func (c *FixedScale) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	out := mat.DenseCopyOf(in)
	rows, _ := out.Dims()
	for row := range rows {
		floats.Mul(out.RawRowView(row), c.scales)
	}
	return out
}

func (c *FixedScale) Copy() Component {
	return &FixedScale{scales: append([]float64(nil), c.scales...)}
}

func (c *FixedScale) Info() string {
	return fmt.Sprintf("type=%s, dim=%d, scales-mean=%g", c.Type(), len(c.scales), mean(c.scales))
}

// FixedBias implements FixedBiasComponent: adds a fixed random bias to each frame.
//
// Config: dim=<int> [bias-stddev=1.0].
type FixedBias struct {
	bias []float64
}

func (c *FixedBias) Type() string   { return "FixedBiasComponent" }
func (c *FixedBias) InputDim() int  { return len(c.bias) }
func (c *FixedBias) OutputDim() int { return len(c.bias) }

func (c *FixedBias) Properties() Properties { return PropSimple | PropPropagateInPlace }

func (c *FixedBias) InitFromConfig(line *config.Line, rng *rand.Rand) error {
	dim, err := getPositiveInt(line, "dim")
	if err != nil {
		return err
	}
	stddev, err := line.GetFloatOr("bias-stddev", 1.0)
	if err != nil {
		return err
	}
	c.bias = randomSlice(dim, stddev, rng)
	return nil
}

func (c *FixedBias) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	out := mat.DenseCopyOf(in)
	rows, _ := out.Dims()
	for row := range rows {
		floats.Add(out.RawRowView(row), c.bias)
	}
	return out
}

func (c *FixedBias) Copy() Component {
	return &FixedBias{bias: append([]float64(nil), c.bias...)}
}

func (c *FixedBias) Info() string {
	return fmt.Sprintf("type=%s, dim=%d, bias-rms=%g", c.Type(), len(c.bias),
		math.Sqrt(floats.Dot(c.bias, c.bias)/float64(len(c.bias))))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}
