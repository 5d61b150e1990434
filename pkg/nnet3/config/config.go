// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config parses the line-oriented `key=value` format used to describe networks
// and components.
//
// A line is an optional first token (a word without "="), followed by `key=value` pairs:
//
//	component name=affine1 type=AffineComponent input-dim=10 output-dim=100
//
// Values may be quoted ("..." or '...'), and a value with balanced parentheses may contain
// spaces, which is how node inputs are written: `input=Append(Offset(input, -1), input)`.
// Everything after a `#` outside quotes is a comment.
//
// Getters mark the keys they read as consumed, so after initializing an object from a line one
// can check with HasUnusedValues whether some key was not understood.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned (wrapped) by the getters when the key is not present in the line.
var ErrKeyNotFound = errors.New("key not found")

type entry struct {
	value string
	used  bool
}

// Line is one parsed configuration line.
type Line struct {
	firstToken string
	keys       []string // Keys in order of appearance.
	values     map[string]*entry
}

// ParseLine parses one configuration line. An empty (or comment-only) line yields a Line
// with no first token and no values.
func ParseLine(text string) (*Line, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config line %q", text)
	}
	line := &Line{values: make(map[string]*entry)}
	for ii, token := range tokens {
		eqPos := strings.IndexByte(token, '=')
		if eqPos == -1 {
			if ii == 0 {
				line.firstToken = token
				continue
			}
			return nil, errors.Errorf("config line %q: unexpected token %q, expected key=value", text, token)
		}
		key, value := token[:eqPos], token[eqPos+1:]
		if !validKey(key) {
			return nil, errors.Errorf("config line %q: invalid key %q", text, key)
		}
		if _, found := line.values[key]; found {
			return nil, errors.Errorf("config line %q: key %q given more than once", text, key)
		}
		line.keys = append(line.keys, key)
		line.values[key] = &entry{value: unquote(value)}
	}
	return line, nil
}

// ReadLines parses every non-empty line of text. Comment-only lines are skipped.
// Errors report the 1-based line number.
func ReadLines(text string) ([]*Line, error) {
	var lines []*Line
	for lineNum, rawLine := range strings.Split(text, "\n") {
		line, err := ParseLine(rawLine)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", lineNum+1)
		}
		if line.IsEmpty() {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// tokenize splits text on white space, except inside quotes or parentheses, and drops comments.
func tokenize(text string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		depth   int
		quote   rune
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
loop:
	for _, r := range text {
		switch {
		case quote != 0:
			current.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			current.WriteRune(r)
		case r == '#':
			break loop
		case r == '(':
			depth++
			current.WriteRune(r)
		case r == ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced ')'")
			}
			current.WriteRune(r)
		case unicode.IsSpace(r) && depth == 0:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, errors.Errorf("unterminated quote %q", quote)
	}
	if depth != 0 {
		return nil, errors.New("unbalanced '('")
	}
	flush()
	return tokens, nil
}

// FirstToken returns the leading word of the line (e.g. "component"), or "" if there isn't one.
func (l *Line) FirstToken() string { return l.firstToken }

// IsEmpty returns whether the line has neither a first token nor values.
func (l *Line) IsEmpty() bool { return l.firstToken == "" && len(l.keys) == 0 }

// Has returns whether the key is present. It doesn't mark it as used.
func (l *Line) Has(key string) bool {
	_, found := l.values[key]
	return found
}

// Keys returns the keys in the order they appear in the line.
func (l *Line) Keys() []string {
	return append([]string(nil), l.keys...)
}

func (l *Line) lookup(key string) (string, error) {
	e, found := l.values[key]
	if !found {
		return "", errors.Wrapf(ErrKeyNotFound, "%q", key)
	}
	e.used = true
	return e.value, nil
}

// GetString returns the value of key.
func (l *Line) GetString(key string) (string, error) {
	return l.lookup(key)
}

// GetStringOr returns the value of key, or defaultValue if it is not present.
func (l *Line) GetStringOr(key, defaultValue string) string {
	value, err := l.lookup(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt returns the value of key parsed as an int.
func (l *Line) GetInt(key string) (int, error) {
	str, err := l.lookup(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(str)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer for %q", key)
	}
	return value, nil
}

// GetIntOr returns the value of key parsed as an int, or defaultValue if it is not present.
// A present but malformed value is still an error.
func (l *Line) GetIntOr(key string, defaultValue int) (int, error) {
	if !l.Has(key) {
		return defaultValue, nil
	}
	return l.GetInt(key)
}

// GetFloat returns the value of key parsed as a float64.
func (l *Line) GetFloat(key string) (float64, error) {
	str, err := l.lookup(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid float for %q", key)
	}
	return value, nil
}

// GetFloatOr returns the value of key parsed as a float64, or defaultValue if it is not present.
func (l *Line) GetFloatOr(key string, defaultValue float64) (float64, error) {
	if !l.Has(key) {
		return defaultValue, nil
	}
	return l.GetFloat(key)
}

// GetBool returns the value of key parsed as a bool: "true"/"false" (also "t"/"f", "1"/"0").
func (l *Line) GetBool(key string) (bool, error) {
	str, err := l.lookup(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(str)
	if err != nil {
		return false, errors.Wrapf(err, "invalid bool for %q", key)
	}
	return value, nil
}

// GetBoolOr returns the value of key parsed as a bool, or defaultValue if it is not present.
func (l *Line) GetBoolOr(key string, defaultValue bool) (bool, error) {
	if !l.Has(key) {
		return defaultValue, nil
	}
	return l.GetBool(key)
}

// GetIntList returns the value of key parsed as a comma-separated list of ints, e.g. "sizes=1,3,2".
func (l *Line) GetIntList(key string) ([]int, error) {
	str, err := l.lookup(key)
	if err != nil {
		return nil, err
	}
	if str == "" {
		return nil, errors.Errorf("empty integer list for %q", key)
	}
	parts := strings.Split(str, ",")
	values := make([]int, len(parts))
	for ii, part := range parts {
		values[ii], err = strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid element #%d of integer list %q", ii, key)
		}
	}
	return values, nil
}

// HasUnusedValues returns whether any key was never read by a getter.
func (l *Line) HasUnusedValues() bool {
	for _, e := range l.values {
		if !e.used {
			return true
		}
	}
	return false
}

// UnusedValues returns the `key=value` pairs never read, in order of appearance, joined by spaces.
func (l *Line) UnusedValues() string {
	var parts []string
	for _, key := range l.keys {
		if e := l.values[key]; !e.used {
			parts = append(parts, fmt.Sprintf("%s=%s", key, e.value))
		}
	}
	return strings.Join(parts, " ")
}

// String reconstructs the line. Values with white space outside parentheses are quoted.
func (l *Line) String() string {
	var parts []string
	if l.firstToken != "" {
		parts = append(parts, l.firstToken)
	}
	for _, key := range l.keys {
		value := l.values[key].value
		if strings.ContainsAny(value, " \t") && !strings.ContainsRune(value, '(') {
			value = strconv.Quote(value)
		}
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, " ")
}
