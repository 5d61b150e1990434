// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"flag"
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Max returns the maximum of the values given. It returns the zero value if none is given.
func Max[T constraints.Ordered](values ...T) (max T) {
	if len(values) == 0 {
		return
	}
	max = values[0]
	for _, v := range values[1:] {
		if max < v {
			max = v
		}
	}
	return
}

// Min returns the smallest of the values given. It returns the zero value if none is given.
func Min[T constraints.Ordered](values ...T) (min T) {
	if len(values) == 0 {
		return
	}
	min = values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return
}

// Iota returns a slice of incremental int values, starting with start and of length len.
// Eg: Iota(3, 2) -> []int{3, 4}
func Iota[T constraints.Integer](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Join formats each element with `%v` and joins them with sep.
func Join[T any](slice []T, sep string) string {
	parts := Map(slice, func(e T) string { return fmt.Sprintf("%v", e) })
	return strings.Join(parts, sep)
}

// Flag creates a flag for []T with the given name, description and default value.
// It takes as input a parser for an individual T value.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	return FlagSet(flag.CommandLine, name, defaultValue, usage, parserFn)
}

// FlagSet is like Flag, but registers the flag in the given flag.FlagSet.
func FlagSet[T any](fs *flag.FlagSet, name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &genericSliceFlagImpl[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	fs.Var(f, name, usage)
	return &f.parsedSlice
}

// genericSliceFlagImpl implements flag.Value for a generic type.
type genericSliceFlagImpl[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

func (f *genericSliceFlagImpl[T]) String() string {
	return Join(f.parsedSlice, ",")
}

func (f *genericSliceFlagImpl[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	f.parsedSlice = make([]T, len(parts))
	var err error
	for ii, part := range parts {
		f.parsedSlice[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
	}
	return nil
}
