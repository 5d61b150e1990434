// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/nnet3/pkg/support/fsutil"
	"github.com/gomlx/nnet3/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Settings maps setting names to pointers to the variables they set. Supported pointer types
// are *int, *float64, *bool, *string and *[]int. The current values of the variables are the
// defaults.
type Settings map[string]any

// ParseSettings parses text, a list of "name=value" separated by ";", and sets the
// corresponding variables. It returns the names set, in order.
//
// An entry "file:<path>" reads settings from a file, where new-lines work as ";" and
// lines starting with "#" are comments.
//
// For integer types, "_" is removed: so 1_000_000 = 1000000.
func ParseSettings(settings Settings, text string) (paramsSet []string, err error) {
	return parseSettings(settings, text, nil)
}

func parseSettings(settings Settings, text string, paramsSet []string) ([]string, error) {
	var err error
	for _, setting := range strings.Split(text, ";") {
		paramsSet, err = parseSetting(settings, strings.TrimSpace(setting), paramsSet)
		if err != nil {
			return paramsSet, err
		}
	}
	return paramsSet, nil
}

func parseSetting(settings Settings, setting string, paramsSet []string) ([]string, error) {
	if setting == "" {
		return paramsSet, nil
	}
	if filePath, found := strings.CutPrefix(setting, "file:"); found {
		filePath, err := fsutil.ExpandHome(filePath)
		if err != nil {
			return paramsSet, err
		}
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return paramsSet, errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			paramsSet, err = parseSettings(settings, line, paramsSet)
			if err != nil {
				return paramsSet, errors.WithMessagef(err, "in settings file %q", filePath)
			}
		}
		return paramsSet, nil
	}

	name, valueStr, found := strings.Cut(setting, "=")
	if !found || strings.Contains(valueStr, "=") {
		return paramsSet, errors.Errorf("can't parse setting %q: each setting requires the format \"<name>=<value>\"",
			setting)
	}
	ptr, found := settings[name]
	if !found {
		return paramsSet, errors.Errorf("unknown setting %q, known settings are %s", name,
			xslices.Join(settings.names(), ", "))
	}

	var err error
	switch v := ptr.(type) {
	case *int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), v)
	case *float64, *bool:
		err = json.Unmarshal([]byte(valueStr), v)
	case *string:
		*v = valueStr
	case *[]int:
		parts := strings.Split(valueStr, ",")
		*v = xslices.Map(parts, func(str string) int {
			var asInt int
			if newErr := json.Unmarshal([]byte(strings.ReplaceAll(strings.TrimSpace(str), "_", "")), &asInt); newErr != nil {
				err = newErr
			}
			return asInt
		})
	default:
		err = errors.Errorf("don't know how to parse setting of type %T", ptr)
	}
	if err != nil {
		return paramsSet, errors.Wrapf(err, "failed to parse value %q for setting %q", valueStr, name)
	}
	return append(paramsSet, name), nil
}

func (settings Settings) names() []string {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// value returns the current value of the named setting.
func (settings Settings) value(name string) any {
	switch v := settings[name].(type) {
	case *int:
		return *v
	case *float64:
		return *v
	case *bool:
		return *v
	case *string:
		return *v
	case *[]int:
		return *v
	}
	return nil
}

// CreateSettingsFlag creates a string flag with the given flagName (if empty it will be named
// "set"), whose usage lists the settings and their defaults. Parse its value with
// ParseSettings after flag.Parse().
func CreateSettingsFlag(settings Settings, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Settings, as a list of elements "name=value" separated by ";". ` +
			`It can also be given an entry like "file:settings_file.txt", in which case the file is read, ` +
			`with new-lines working as ";" and lines starting with "#" considered comments. ` +
			`Available settings:`,
	}
	for _, name := range settings.names() {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", name, settings.value(name)))
	}
	return flag.String(flagName, "", strings.Join(parts, "\n"))
}

// SprintSettings pretty-prints the current value of the settings, sorted by name.
func SprintSettings(settings Settings) string {
	parts := make([]string, 0, len(settings))
	for _, name := range settings.names() {
		value := settings.value(name)
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", name, value, value))
	}
	return strings.Join(parts, "\n")
}
