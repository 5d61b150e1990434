// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nnettest

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/nnet3/pkg/nnet3/component"
	"github.com/gomlx/nnet3/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// DefaultParameterThreshold is the usual threshold for NnetParametersAreIdentical.
const DefaultParameterThreshold = 1e-5

// ComponentLister is the part of a network NnetParametersAreIdentical needs. It is
// implemented by *nnet.Nnet.
type ComponentLister interface {
	NumComponents() int
	GetComponent(c int) component.Component
	GetComponentName(c int) string
}

// NnetParametersAreIdentical returns whether the trainable parameters of every component of
// the two networks match.
//
// For each pair of updatable components u1, u2 it takes the dot products u1·u1, u1·u2, u2·u1
// and u2·u2: they match if the spread between the largest and the smallest is at most
// threshold times the largest. On the first mismatch it logs a warning and returns false.
//
// The networks must have the same number of components, with the same types: otherwise it
// panics.
func NnetParametersAreIdentical(net1, net2 ComponentLister, threshold float64) bool {
	numComponents := net1.NumComponents()
	if numComponents != net2.NumComponents() {
		Panicf("NnetParametersAreIdentical(): networks have %d and %d components", numComponents, net2.NumComponents())
	}
	for c := range numComponents {
		c1, c2 := net1.GetComponent(c), net2.GetComponent(c)
		if c1.Type() != c2.Type() {
			Panicf("NnetParametersAreIdentical(): component #%d %q has type %s in the first network and %s in the second",
				c, net1.GetComponentName(c), c1.Type(), c2.Type())
		}
		if !c1.Properties().Has(component.PropUpdatable) {
			continue
		}
		u1, ok1 := c1.(component.Updatable)
		u2, ok2 := c2.(component.Updatable)
		if !ok1 || !ok2 {
			Panicf("NnetParametersAreIdentical(): component %q (%s) is marked updatable but doesn't implement it",
				net1.GetComponentName(c), c1.Type())
		}
		prod11, prod12 := u1.DotProduct(u1), u1.DotProduct(u2)
		prod21, prod22 := u2.DotProduct(u1), u2.DotProduct(u2)
		maxProd := xslices.Max(prod11, prod12, prod21, prod22)
		minProd := xslices.Min(prod11, prod12, prod21, prod22)
		if maxProd-minProd > threshold*maxProd {
			klog.Warningf("Component %q differs in nnet1 versus nnet2: prod(11,12,21,22) = %g,%g,%g,%g",
				net1.GetComponentName(c), prod11, prod12, prod21, prod22)
			return false
		}
	}
	return true
}
