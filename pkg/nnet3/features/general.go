// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package features holds the matrix types used for the inputs and supervision of training
// examples: a GeneralMatrix is either a full (dense) matrix, a Compressed one or a Sparse one,
// and can always be converted to a dense *mat.Dense for comparison or computation.
package features

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// MatrixType tells how a GeneralMatrix is stored.
type MatrixType int

const (
	FullMatrix MatrixType = iota
	CompressedMatrix
	SparseMatrix
)

func (t MatrixType) String() string {
	switch t {
	case FullMatrix:
		return "full"
	case CompressedMatrix:
		return "compressed"
	case SparseMatrix:
		return "sparse"
	}
	return fmt.Sprintf("MatrixType(%d)", int(t))
}

// Element is one non-zero entry of a sparse row.
type Element struct {
	Col   int
	Value float64
}

// Sparse is a row-major sparse matrix. Entries of a row may repeat a column, in which case
// their values add up.
type Sparse struct {
	NumCols int
	Rows    [][]Element
}

// Dims returns the number of rows and columns.
func (s *Sparse) Dims() (rows, cols int) { return len(s.Rows), s.NumCols }

// Dense converts s to a dense matrix. It panics if an element is out of range.
func (s *Sparse) Dense() *mat.Dense {
	out := mat.NewDense(len(s.Rows), s.NumCols, nil)
	for row, elements := range s.Rows {
		for _, e := range elements {
			if e.Col < 0 || e.Col >= s.NumCols {
				Panicf("Sparse.Dense(): element (%d, %d) out of range for %d columns", row, e.Col, s.NumCols)
			}
			out.Set(row, e.Col, out.At(row, e.Col)+e.Value)
		}
	}
	return out
}

// Copy returns a deep copy.
func (s *Sparse) Copy() *Sparse {
	rows := make([][]Element, len(s.Rows))
	for ii, elements := range s.Rows {
		rows[ii] = append([]Element(nil), elements...)
	}
	return &Sparse{NumCols: s.NumCols, Rows: rows}
}

// GeneralMatrix holds one of a full, compressed or sparse matrix.
type GeneralMatrix struct {
	kind       MatrixType
	full       *mat.Dense
	compressed *Compressed
	sparse     *Sparse
}

// FromDense creates a full GeneralMatrix. It takes ownership of m.
func FromDense(m *mat.Dense) *GeneralMatrix {
	return &GeneralMatrix{kind: FullMatrix, full: m}
}

// FromSparse creates a sparse GeneralMatrix. It takes ownership of s.
func FromSparse(s *Sparse) *GeneralMatrix {
	return &GeneralMatrix{kind: SparseMatrix, sparse: s}
}

// FromCompressed creates a compressed GeneralMatrix.
func FromCompressed(c *Compressed) *GeneralMatrix {
	return &GeneralMatrix{kind: CompressedMatrix, compressed: c}
}

// Type returns how the matrix is stored.
func (g *GeneralMatrix) Type() MatrixType { return g.kind }

// Dims returns the number of rows and columns.
func (g *GeneralMatrix) Dims() (rows, cols int) {
	switch g.kind {
	case FullMatrix:
		return g.full.Dims()
	case CompressedMatrix:
		return g.compressed.Dims()
	default:
		return g.sparse.Dims()
	}
}

// Compress converts a full matrix to a compressed one, with the given method (or
// DefaultCompression). Sparse and already compressed matrices are left as they are.
func (g *GeneralMatrix) Compress(method ...CompressionMethod) {
	if g.kind != FullMatrix {
		return
	}
	m := DefaultCompression
	if len(method) > 0 {
		m = method[0]
	}
	g.compressed = Compress(g.full, m)
	g.full = nil
	g.kind = CompressedMatrix
}

// Compressed returns the compressed matrix, or nil if the matrix is not compressed.
func (g *GeneralMatrix) Compressed() *Compressed { return g.compressed }

// Sparse returns the sparse matrix, or nil if the matrix is not sparse.
func (g *GeneralMatrix) Sparse() *Sparse { return g.sparse }

// Dense returns a new dense copy of the matrix, decompressing or densifying as needed.
func (g *GeneralMatrix) Dense() *mat.Dense {
	switch g.kind {
	case FullMatrix:
		return mat.DenseCopyOf(g.full)
	case CompressedMatrix:
		return g.compressed.Decompress()
	default:
		return g.sparse.Dense()
	}
}

// Copy returns a deep copy. Compressed data, being immutable, is shared.
func (g *GeneralMatrix) Copy() *GeneralMatrix {
	g2 := &GeneralMatrix{kind: g.kind, compressed: g.compressed}
	switch g.kind {
	case FullMatrix:
		g2.full = mat.DenseCopyOf(g.full)
	case SparseMatrix:
		g2.sparse = g.sparse.Copy()
	}
	return g2
}

// String implements fmt.Stringer.
func (g *GeneralMatrix) String() string {
	rows, cols := g.Dims()
	if g.kind == CompressedMatrix {
		return fmt.Sprintf("%s(%s)[%d x %d]", g.kind, g.compressed.Method(), rows, cols)
	}
	return fmt.Sprintf("%s[%d x %d]", g.kind, rows, cols)
}
