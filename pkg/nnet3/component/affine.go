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

// DefaultLearningRate is used by updatable components when no learning-rate is configured.
const DefaultLearningRate = 0.001

// affineParams is implemented by the components holding a linear transform plus bias.
type affineParams interface {
	params() (linear *mat.Dense, bias *mat.VecDense)
}

// initAffine reads input-dim, output-dim, param-stddev and bias-stddev from line and draws
// linear ~ N(0, param-stddev²) with shape [output-dim, input-dim] and bias ~ N(0, bias-stddev²).
func initAffine(line *config.Line, rng *rand.Rand) (linear *mat.Dense, bias *mat.VecDense, err error) {
	inputDim, err := getPositiveInt(line, "input-dim")
	if err != nil {
		return
	}
	outputDim, err := getPositiveInt(line, "output-dim")
	if err != nil {
		return
	}
	paramStddev, err := line.GetFloatOr("param-stddev", 1.0/math.Sqrt(float64(inputDim)))
	if err != nil {
		return
	}
	biasStddev, err := line.GetFloatOr("bias-stddev", 1.0)
	if err != nil {
		return
	}
	if paramStddev < 0 || biasStddev < 0 {
		err = errors.Errorf("param-stddev (%g) and bias-stddev (%g) must be non-negative", paramStddev, biasStddev)
		return
	}
	linear = randomDense(outputDim, inputDim, paramStddev, rng)
	bias = mat.NewVecDense(outputDim, randomSlice(outputDim, biasStddev, rng))
	return
}

func randomSlice(size int, stddev float64, rng *rand.Rand) []float64 {
	values := make([]float64, size)
	for ii := range values {
		values[ii] = rng.NormFloat64() * stddev
	}
	return values
}

func randomDense(rows, cols int, stddev float64, rng *rand.Rand) *mat.Dense {
	return mat.NewDense(rows, cols, randomSlice(rows*cols, stddev, rng))
}

// propagateAffine returns in * linearᵀ + bias, with bias added to every row.
func propagateAffine(in *mat.Dense, linear *mat.Dense, bias *mat.VecDense) *mat.Dense {
	var out mat.Dense
	out.Mul(in, linear.T())
	rows, _ := out.Dims()
	biasValues := bias.RawVector().Data
	for row := range rows {
		floats.Add(out.RawRowView(row), biasValues)
	}
	return &out
}

// denseDot returns the sum of the element-wise products of a and b.
func denseDot(a, b *mat.Dense) float64 {
	rows, _ := a.Dims()
	var sum float64
	for row := range rows {
		sum += floats.Dot(a.RawRowView(row), b.RawRowView(row))
	}
	return sum
}

// Affine implements AffineComponent: y = W x + b, with trainable W and b.
//
// Config: input-dim=<int> output-dim=<int> [param-stddev=1/sqrt(input-dim)] [bias-stddev=1.0]
// [learning-rate=0.001].
type Affine struct {
	linear       *mat.Dense // Shape [outputDim, inputDim].
	bias         *mat.VecDense
	learningRate float64
}

func (c *Affine) Type() string { return "AffineComponent" }

func (c *Affine) InputDim() int {
	_, cols := c.linear.Dims()
	return cols
}

func (c *Affine) OutputDim() int {
	rows, _ := c.linear.Dims()
	return rows
}

func (c *Affine) Properties() Properties {
	return PropSimple | PropUpdatable | PropLinearInParameters | PropBackpropNeedsInput
}

func (c *Affine) params() (*mat.Dense, *mat.VecDense) { return c.linear, c.bias }

// LinearParams returns the linear transform, of shape [OutputDim, InputDim]. It is not a copy.
func (c *Affine) LinearParams() *mat.Dense { return c.linear }

// BiasParams returns the bias, of size OutputDim. It is not a copy.
func (c *Affine) BiasParams() *mat.VecDense { return c.bias }

func (c *Affine) InitFromConfig(line *config.Line, rng *rand.Rand) (err error) {
	if c.learningRate, err = line.GetFloatOr("learning-rate", DefaultLearningRate); err != nil {
		return
	}
	c.linear, c.bias, err = initAffine(line, rng)
	return
}

func (c *Affine) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	return propagateAffine(in, c.linear, c.bias)
}

func (c *Affine) copyAffine() Affine {
	return Affine{
		linear:       mat.DenseCopyOf(c.linear),
		bias:         mat.VecDenseCopyOf(c.bias),
		learningRate: c.learningRate,
	}
}

func (c *Affine) Copy() Component {
	c2 := c.copyAffine()
	return &c2
}

func (c *Affine) Info() string {
	return fmt.Sprintf("type=%s, input-dim=%d, output-dim=%d, learning-rate=%g",
		c.Type(), c.InputDim(), c.OutputDim(), c.learningRate)
}

func (c *Affine) LearningRate() float64      { return c.learningRate }
func (c *Affine) SetLearningRate(lr float64) { c.learningRate = lr }
func (c *Affine) NumParameters() int         { return (c.InputDim() + 1) * c.OutputDim() }

// otherParams returns the parameters of other, panicking if they are not compatible with c.
func (c *Affine) otherParams(other Updatable) (*mat.Dense, *mat.VecDense) {
	o, ok := other.(affineParams)
	if !ok || other.InputDim() != c.InputDim() || other.OutputDim() != c.OutputDim() {
		Panicf("%s: incompatible component %s (%dx%d) given, expected %dx%d affine",
			c.Type(), other.Type(), other.OutputDim(), other.InputDim(), c.OutputDim(), c.InputDim())
	}
	return o.params()
}

func (c *Affine) DotProduct(other Updatable) float64 {
	linear, bias := c.otherParams(other)
	return denseDot(c.linear, linear) + mat.Dot(c.bias, bias)
}

func (c *Affine) Scale(alpha float64) {
	c.linear.Scale(alpha, c.linear)
	c.bias.ScaleVec(alpha, c.bias)
}

func (c *Affine) Add(alpha float64, other Updatable) {
	linear, bias := c.otherParams(other)
	var scaled mat.Dense
	scaled.Scale(alpha, linear)
	c.linear.Add(c.linear, &scaled)
	c.bias.AddScaledVec(c.bias, alpha, bias)
}

func (c *Affine) PerturbParams(stddev float64, rng *rand.Rand) {
	c.linear.Add(c.linear, randomDense(c.OutputDim(), c.InputDim(), stddev, rng))
	c.bias.AddVec(c.bias, mat.NewVecDense(c.OutputDim(), randomSlice(c.OutputDim(), stddev, rng)))
}

// NaturalGradientAffine implements NaturalGradientAffineComponent. Its forward computation is
// the same as Affine; it adds the configuration of the natural-gradient preconditioner used
// when training.
//
// Config: the Affine keys plus [rank-in=20] [rank-out=80] [update-period=4]
// [num-samples-history=2000] [alpha=4.0] [max-change-per-sample=0.075].
type NaturalGradientAffine struct {
	Affine

	rankIn, rankOut, updatePeriod int
	numSamplesHistory             float64
	alpha                         float64
	maxChangePerSample            float64
}

func (c *NaturalGradientAffine) Type() string { return "NaturalGradientAffineComponent" }

func (c *NaturalGradientAffine) InitFromConfig(line *config.Line, rng *rand.Rand) (err error) {
	if err = c.Affine.InitFromConfig(line, rng); err != nil {
		return
	}
	for _, intParam := range []struct {
		key          string
		value        *int
		defaultValue int
	}{
		{"rank-in", &c.rankIn, 20},
		{"rank-out", &c.rankOut, 80},
		{"update-period", &c.updatePeriod, 4},
	} {
		if *intParam.value, err = line.GetIntOr(intParam.key, intParam.defaultValue); err != nil {
			return
		}
		if *intParam.value <= 0 {
			return errors.Errorf("%q must be positive, got %d", intParam.key, *intParam.value)
		}
	}
	if c.numSamplesHistory, err = line.GetFloatOr("num-samples-history", 2000.0); err != nil {
		return
	}
	if c.alpha, err = line.GetFloatOr("alpha", 4.0); err != nil {
		return
	}
	c.maxChangePerSample, err = line.GetFloatOr("max-change-per-sample", 0.075)
	return
}

func (c *NaturalGradientAffine) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	return propagateAffine(in, c.linear, c.bias)
}

func (c *NaturalGradientAffine) Copy() Component {
	c2 := *c
	c2.Affine = c.copyAffine()
	return &c2
}

func (c *NaturalGradientAffine) Info() string {
	return fmt.Sprintf("type=%s, input-dim=%d, output-dim=%d, learning-rate=%g, rank-in=%d, rank-out=%d, "+
		"update-period=%d, num-samples-history=%g, alpha=%g, max-change-per-sample=%g",
		c.Type(), c.InputDim(), c.OutputDim(), c.learningRate, c.rankIn, c.rankOut,
		c.updatePeriod, c.numSamplesHistory, c.alpha, c.maxChangePerSample)
}

// FixedAffine implements FixedAffineComponent: an affine transform that is not trained.
//
// Config: input-dim=<int> output-dim=<int> [param-stddev=1/sqrt(input-dim)] [bias-stddev=1.0].
type FixedAffine struct {
	linear *mat.Dense
	bias   *mat.VecDense
}

func (c *FixedAffine) Type() string { return "FixedAffineComponent" }

func (c *FixedAffine) InputDim() int {
	_, cols := c.linear.Dims()
	return cols
}

func (c *FixedAffine) OutputDim() int {
	rows, _ := c.linear.Dims()
	return rows
}

func (c *FixedAffine) Properties() Properties { return PropSimple | PropLinearInInput }

func (c *FixedAffine) InitFromConfig(line *config.Line, rng *rand.Rand) (err error) {
	c.linear, c.bias, err = initAffine(line, rng)
	return
}

func (c *FixedAffine) Propagate(in *mat.Dense) *mat.Dense {
	checkInput(c, in)
	return propagateAffine(in, c.linear, c.bias)
}

func (c *FixedAffine) Copy() Component {
	return &FixedAffine{linear: mat.DenseCopyOf(c.linear), bias: mat.VecDenseCopyOf(c.bias)}
}

func (c *FixedAffine) Info() string {
	return fmt.Sprintf("type=%s, input-dim=%d, output-dim=%d", c.Type(), c.InputDim(), c.OutputDim())
}
