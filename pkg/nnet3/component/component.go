// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package component defines the building blocks of a network: a Component maps a matrix of
// input frames (one row per frame) to a matrix of output frames.
//
// Components are created by type name from a registry (see New and Register), and
// initialized from a config.Line:
//
//	comp, err := component.FromConfigLine(line, rng)
//
// Components whose Properties include PropUpdatable also implement Updatable, which exposes
// their trainable parameters.
package component

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/gomlx/nnet3/pkg/nnet3/config"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Properties is a bit-set describing a component.
type Properties uint32

const (
	// PropSimple components map an input frame to the output frame with the same index.
	PropSimple Properties = 1 << iota

	// PropUpdatable components have trainable parameters and implement Updatable.
	PropUpdatable

	// PropLinearInInput components are linear (or affine) functions of their input.
	PropLinearInInput

	// PropLinearInParameters components are linear functions of their parameters.
	PropLinearInParameters

	// PropPropagateInPlace components can write their output over their input.
	PropPropagateInPlace

	// PropBackpropNeedsInput components need their input to compute derivatives.
	PropBackpropNeedsInput

	// PropBackpropNeedsOutput components need their output to compute derivatives.
	PropBackpropNeedsOutput

	// PropStoresStats components accumulate activation statistics when asked to.
	PropStoresStats
)

var propertyNames = []string{
	"Simple", "Updatable", "LinearInInput", "LinearInParameters",
	"PropagateInPlace", "BackpropNeedsInput", "BackpropNeedsOutput", "StoresStats",
}

// Has returns whether all flags in mask are set.
func (p Properties) Has(mask Properties) bool { return p&mask == mask }

// String lists the flags set, separated by "|".
func (p Properties) String() string {
	var parts []string
	for ii, name := range propertyNames {
		if p&(1<<ii) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Component is one node-level transformation of a network.
type Component interface {
	// Type returns the registered type name, e.g. "AffineComponent".
	Type() string

	Properties() Properties
	InputDim() int
	OutputDim() int

	// InitFromConfig initializes the component from the key/values of line. Random
	// parameters are drawn from rng. Keys it doesn't use are left unconsumed in line.
	InitFromConfig(line *config.Line, rng *rand.Rand) error

	// Propagate returns the output for the given input, one frame per row.
	// It panics if in doesn't have InputDim columns.
	Propagate(in *mat.Dense) *mat.Dense

	// Copy returns a deep copy.
	Copy() Component

	// Info returns a one-line human-readable description.
	Info() string
}

// Updatable is implemented by components with trainable parameters.
type Updatable interface {
	Component

	LearningRate() float64
	SetLearningRate(lr float64)

	// DotProduct returns the dot product of the parameters of the two components, seen as
	// vectors. other must be of the same type and dimensions.
	DotProduct(other Updatable) float64

	// Scale multiplies the parameters by alpha.
	Scale(alpha float64)

	// Add adds alpha times the parameters of other.
	Add(alpha float64, other Updatable)

	// NumParameters returns the number of trainable scalars.
	NumParameters() int

	// PerturbParams adds Gaussian noise of the given stddev to every parameter.
	PerturbParams(stddev float64, rng *rand.Rand)
}

// Factory creates an uninitialized component.
type Factory func() Component

var registry = map[string]Factory{
	"PnormComponent":                 func() Component { return &Pnorm{} },
	"NormalizeComponent":             func() Component { return &Normalize{} },
	"SigmoidComponent":               func() Component { return newElementwise(typeSigmoid) },
	"TanhComponent":                  func() Component { return newElementwise(typeTanh) },
	"RectifiedLinearComponent":       func() Component { return newElementwise(typeRectifiedLinear) },
	"NoOpComponent":                  func() Component { return newElementwise(typeNoOp) },
	"SoftmaxComponent":               func() Component { return &Softmax{} },
	"LogSoftmaxComponent":            func() Component { return &Softmax{log: true} },
	"FixedAffineComponent":           func() Component { return &FixedAffine{} },
	"AffineComponent":                func() Component { return &Affine{} },
	"NaturalGradientAffineComponent": func() Component { return &NaturalGradientAffine{} },
	"SumGroupComponent":              func() Component { return &SumGroup{} },
	"FixedScaleComponent":            func() Component { return &FixedScale{} },
	"FixedBiasComponent":             func() Component { return &FixedBias{} },
}

// Register a factory for a component type, replacing any previous one with the same name.
func Register(typeName string, factory Factory) {
	registry[typeName] = factory
}

// Types returns the registered type names, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	slices.Sort(types)
	return types
}

// New returns an uninitialized component of the given type.
func New(typeName string) (Component, error) {
	factory, found := registry[typeName]
	if !found {
		return nil, errors.Errorf("unknown component type %q", typeName)
	}
	return factory(), nil
}

// FromConfigLine creates a component of the type given by the "type" key (if typeName is
// empty) and initializes it from the line. It fails if any key is left unused.
func FromConfigLine(line *config.Line, rng *rand.Rand) (Component, error) {
	typeName, err := line.GetString("type")
	if err != nil {
		return nil, err
	}
	return NewFromConfigLine(typeName, line, rng)
}

// NewFromConfigLine creates a component of the given type and initializes it from the line.
// It fails if any key is left unused.
func NewFromConfigLine(typeName string, line *config.Line, rng *rand.Rand) (Component, error) {
	comp, err := New(typeName)
	if err != nil {
		return nil, err
	}
	if err = comp.InitFromConfig(line, rng); err != nil {
		return nil, errors.WithMessagef(err, "initializing %s from %q", typeName, line)
	}
	if line.HasUnusedValues() {
		return nil, errors.Errorf("%s: could not process these elements in initializer: %s",
			typeName, line.UnusedValues())
	}
	return comp, nil
}

// getPositiveInt reads a required integer key that must be > 0.
func getPositiveInt(line *config.Line, key string) (int, error) {
	value, err := line.GetInt(key)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, errors.Errorf("%q must be positive, got %d", key, value)
	}
	return value, nil
}
