// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package features

import (
	"fmt"
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
)

// CompressionMethod selects how a Compressed matrix stores its values.
type CompressionMethod int

const (
	// CompressTwoByte quantizes every value to 16 bits over the global [min, max] range of
	// the matrix. It is the default.
	CompressTwoByte CompressionMethod = iota

	// CompressOneByte quantizes every value to 8 bits over the [min, max] range of its column.
	CompressOneByte

	// CompressFloat16 stores values as IEEE 754 half-precision floats. Values beyond ±65504
	// overflow to ±Inf.
	CompressFloat16
)

// DefaultCompression is used by GeneralMatrix.Compress when no method is given.
const DefaultCompression = CompressTwoByte

var compressionMethodNames = []string{"two_byte", "one_byte", "float16"}

func (m CompressionMethod) String() string {
	if m < 0 || int(m) >= len(compressionMethodNames) {
		return fmt.Sprintf("CompressionMethod(%d)", int(m))
	}
	return compressionMethodNames[m]
}

// CompressionMethodString converts the name of a method (as given by String) to its value.
func CompressionMethodString(name string) (CompressionMethod, error) {
	for ii, methodName := range compressionMethodNames {
		if methodName == name {
			return CompressionMethod(ii), nil
		}
	}
	return 0, fmt.Errorf("%q does not belong to CompressionMethod values %v", name, compressionMethodNames)
}

// Compressed is a lossy, compact representation of a dense matrix.
type Compressed struct {
	method     CompressionMethod
	rows, cols int

	// CompressTwoByte: one range for the whole matrix.
	// CompressOneByte: one range per column.
	minValues, ranges []float64

	data16 []uint16
	data8  []uint8
	halfs  []float16.Float16
}

// Compress creates a compressed copy of m.
func Compress(m mat.Matrix, method CompressionMethod) *Compressed {
	rows, cols := m.Dims()
	c := &Compressed{method: method, rows: rows, cols: cols}
	switch method {
	case CompressTwoByte:
		minValue, maxValue := math.Inf(1), math.Inf(-1)
		for row := range rows {
			for col := range cols {
				v := m.At(row, col)
				minValue = math.Min(minValue, v)
				maxValue = math.Max(maxValue, v)
			}
		}
		c.minValues = []float64{minValue}
		c.ranges = []float64{maxValue - minValue}
		c.data16 = make([]uint16, rows*cols)
		for row := range rows {
			for col := range cols {
				c.data16[row*cols+col] = uint16(quantize(m.At(row, col), minValue, c.ranges[0], math.MaxUint16))
			}
		}

	case CompressOneByte:
		c.minValues = make([]float64, cols)
		c.ranges = make([]float64, cols)
		c.data8 = make([]uint8, rows*cols)
		for col := range cols {
			minValue, maxValue := math.Inf(1), math.Inf(-1)
			for row := range rows {
				v := m.At(row, col)
				minValue = math.Min(minValue, v)
				maxValue = math.Max(maxValue, v)
			}
			c.minValues[col] = minValue
			c.ranges[col] = maxValue - minValue
			for row := range rows {
				c.data8[row*cols+col] = uint8(quantize(m.At(row, col), minValue, c.ranges[col], math.MaxUint8))
			}
		}

	case CompressFloat16:
		c.halfs = make([]float16.Float16, rows*cols)
		for row := range rows {
			for col := range cols {
				c.halfs[row*cols+col] = float16.Fromfloat32(float32(m.At(row, col)))
			}
		}

	default:
		Panicf("features.Compress(): unknown compression method %s", method)
	}
	return c
}

// quantize maps v in [minValue, minValue+valueRange] to an integer in [0, levels].
func quantize(v, minValue, valueRange float64, levels int) int {
	if valueRange == 0 {
		return 0
	}
	q := int(math.Round((v - minValue) / valueRange * float64(levels)))
	return max(0, min(levels, q))
}

func dequantize(q int, minValue, valueRange float64, levels int) float64 {
	return minValue + float64(q)*valueRange/float64(levels)
}

// Method used to compress.
func (c *Compressed) Method() CompressionMethod { return c.method }

// Dims returns the number of rows and columns.
func (c *Compressed) Dims() (rows, cols int) { return c.rows, c.cols }

// At returns the decompressed value at the given position.
func (c *Compressed) At(row, col int) float64 {
	pos := row*c.cols + col
	switch c.method {
	case CompressTwoByte:
		return dequantize(int(c.data16[pos]), c.minValues[0], c.ranges[0], math.MaxUint16)
	case CompressOneByte:
		return dequantize(int(c.data8[pos]), c.minValues[col], c.ranges[col], math.MaxUint8)
	default:
		return float64(c.halfs[pos].Float32())
	}
}

// Decompress returns the dense matrix represented.
func (c *Compressed) Decompress() *mat.Dense {
	out := mat.NewDense(c.rows, c.cols, nil)
	for row := range c.rows {
		for col := range c.cols {
			out.Set(row, col, c.At(row, col))
		}
	}
	return out
}

// MaxError returns an upper bound on the absolute difference between a decompressed value and
// the original one.
func (c *Compressed) MaxError() float64 {
	switch c.method {
	case CompressTwoByte:
		return c.ranges[0]/math.MaxUint16 + 1e-12*math.Abs(c.minValues[0])
	case CompressOneByte:
		maxErr := 0.0
		for col, r := range c.ranges {
			maxErr = math.Max(maxErr, r/math.MaxUint8+1e-12*math.Abs(c.minValues[col]))
		}
		return maxErr
	default:
		// Half precision has 11 significant bits; float32 rounding adds a little more.
		maxAbs := 0.0
		for _, h := range c.halfs {
			maxAbs = math.Max(maxAbs, math.Abs(float64(h.Float32())))
		}
		return maxAbs*math.Exp2(-10) + math.Exp2(-24)
	}
}

// NumBytes is the approximate memory used by the compressed data.
func (c *Compressed) NumBytes() int {
	return 2*len(c.data16) + len(c.data8) + 2*len(c.halfs) + 8*(len(c.minValues)+len(c.ranges))
}
