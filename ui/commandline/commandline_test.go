// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSettings struct {
	x     float64
	y     int
	z     bool
	s     string
	dims  []int
	asMap Settings
}

func newTestSettings() *testSettings {
	ts := &testSettings{x: 11.0, y: 7, s: "foo"}
	ts.asMap = Settings{
		"x":    &ts.x,
		"y":    &ts.y,
		"z":    &ts.z,
		"s":    &ts.s,
		"dims": &ts.dims,
	}
	return ts
}

func TestParseSettings(t *testing.T) {
	ts := newTestSettings()
	paramsSet, err := ParseSettings(ts.asMap, "x=13;z=true;y=1_000;s=bar;dims=1, 3,7;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "z", "y", "s", "dims"}, paramsSet)
	assert.Equal(t, 13.0, ts.x)
	assert.Equal(t, 1000, ts.y)
	assert.True(t, ts.z)
	assert.Equal(t, "bar", ts.s)
	assert.Equal(t, []int{1, 3, 7}, ts.dims)

	// Errors.
	_, err = ParseSettings(ts.asMap, "unknown=1")
	require.ErrorContains(t, err, "unknown setting")
	_, err = ParseSettings(ts.asMap, "x")
	require.Error(t, err)
	_, err = ParseSettings(ts.asMap, "y=1.5")
	require.Error(t, err)
	_, err = ParseSettings(ts.asMap, "dims=1,a")
	require.Error(t, err)
	_, err = ParseSettings(ts.asMap, "file:/no/such/file/for/sure")
	require.Error(t, err)
}

func TestParseSettingsFromFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Comment\nx=0.5\n\ny=3;s=from file\n"), 0o644))
	ts := newTestSettings()
	paramsSet, err := ParseSettings(ts.asMap, "z=true;file:"+filePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y", "s"}, paramsSet)
	assert.Equal(t, 0.5, ts.x)
	assert.Equal(t, 3, ts.y)
	assert.Equal(t, "from file", ts.s)
}

func TestSprintSettings(t *testing.T) {
	ts := newTestSettings()
	lines := strings.Split(SprintSettings(ts.asMap), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "\t\"dims\": ([]int) []", lines[0])
	assert.Equal(t, "\t\"y\": (int) 7", lines[3])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23ms", FormatDuration(1234567*time.Nanosecond))
	assert.Equal(t, "2m3s", FormatDuration(2*time.Minute+3400*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "999ns", FormatDuration(999*time.Nanosecond))
}

func TestNewPlainTable(t *testing.T) {
	table := NewPlainTable(true).Headers("Type", "Count")
	table.Row("simplest", "3")
	table.Row("rnn", "12")
	rendered := table.String()
	for _, want := range []string{"Type", "Count", "simplest", "rnn", "12"} {
		assert.Contains(t, rendered, want)
	}
}
