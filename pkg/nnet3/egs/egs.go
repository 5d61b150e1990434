// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package egs defines training examples: an Example is a list of named inputs and
// supervision targets (Io), each holding one row of features per computation.Index.
package egs

import (
	"math"
	"slices"

	"github.com/gomlx/nnet3/pkg/nnet3/computation"
	"github.com/gomlx/nnet3/pkg/nnet3/features"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Io is one named input or output of an Example.
type Io struct {
	Name string

	// Indexes has one entry per row of Features.
	Indexes []computation.Index

	Features *features.GeneralMatrix
}

// NewIo creates an Io of a single sequence (n=0) with frames at t = tBegin, tBegin+1, ...
// It takes ownership of m.
func NewIo(name string, tBegin int, m *mat.Dense) *Io {
	rows, _ := m.Dims()
	return &Io{
		Name:     name,
		Indexes:  computation.Range(0, tBegin, tBegin+rows),
		Features: features.FromDense(m),
	}
}

// LabelProb is one (class, probability) pair of a frame's target distribution.
type LabelProb struct {
	Class int
	Prob  float64
}

// Posterior holds a target distribution per frame.
type Posterior [][]LabelProb

// posteriorSumTolerance is how far from 1 the sum of a frame's probabilities may be.
const posteriorSumTolerance = 1e-6

// Check verifies that every class is in [0, dim), that probabilities are in [0, 1] and that
// each frame's probabilities add up to 1.
func (p Posterior) Check(dim int) error {
	for frame, labels := range p {
		if len(labels) == 0 {
			return errors.Errorf("posterior frame %d has no labels", frame)
		}
		sum := 0.0
		for _, label := range labels {
			if label.Class < 0 || label.Class >= dim {
				return errors.Errorf("posterior frame %d: class %d out of range [0, %d)", frame, label.Class, dim)
			}
			if label.Prob < 0 || label.Prob > 1 {
				return errors.Errorf("posterior frame %d: invalid probability %g for class %d", frame, label.Prob, label.Class)
			}
			sum += label.Prob
		}
		if math.Abs(sum-1) > posteriorSumTolerance {
			return errors.Errorf("posterior frame %d: probabilities add up to %g", frame, sum)
		}
	}
	return nil
}

// Sparse converts the posterior to a sparse matrix with dim columns.
func (p Posterior) Sparse(dim int) *features.Sparse {
	rows := make([][]features.Element, len(p))
	for frame, labels := range p {
		rows[frame] = make([]features.Element, len(labels))
		for ii, label := range labels {
			rows[frame][ii] = features.Element{Col: label.Class, Value: label.Prob}
		}
	}
	return &features.Sparse{NumCols: dim, Rows: rows}
}

// NewIoFromPosterior creates a supervision Io of a single sequence (n=0), with frames at
// t = tBegin, tBegin+1, ..., stored as a sparse matrix with dim columns.
func NewIoFromPosterior(name string, dim, tBegin int, posterior Posterior) *Io {
	return &Io{
		Name:     name,
		Indexes:  computation.Range(0, tBegin, tBegin+len(posterior)),
		Features: features.FromSparse(posterior.Sparse(dim)),
	}
}

// Copy returns a deep copy.
func (io *Io) Copy() *Io {
	return &Io{
		Name:     io.Name,
		Indexes:  slices.Clone(io.Indexes),
		Features: io.Features.Copy(),
	}
}

// Example is one training example.
type Example struct {
	IO []*Io
}

// Find returns the Io with the given name, or nil.
func (e *Example) Find(name string) *Io {
	for _, io := range e.IO {
		if io.Name == name {
			return io
		}
	}
	return nil
}

// Compress compresses the full-matrix features of every Io (sparse ones are unchanged).
func (e *Example) Compress(method ...features.CompressionMethod) {
	for _, io := range e.IO {
		io.Features.Compress(method...)
	}
}

// Copy returns a deep copy.
func (e *Example) Copy() *Example {
	e2 := &Example{IO: make([]*Io, len(e.IO))}
	for ii, io := range e.IO {
		e2.IO[ii] = io.Copy()
	}
	return e2
}

// NumFrames returns the number of rows of the named Io, or 0 if there is none.
func (e *Example) NumFrames(name string) int {
	io := e.Find(name)
	if io == nil {
		return 0
	}
	return len(io.Indexes)
}
