// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenOpen
	tokenClose
	tokenComma
	tokenEnd
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func lex(text string) ([]token, error) {
	var tokens []token
	runes := []rune(text)
	for pos := 0; pos < len(runes); {
		r := runes[pos]
		switch {
		case unicode.IsSpace(r):
			pos++
		case r == '(':
			tokens = append(tokens, token{kind: tokenOpen, value: "(", pos: pos})
			pos++
		case r == ')':
			tokens = append(tokens, token{kind: tokenClose, value: ")", pos: pos})
			pos++
		case r == ',':
			tokens = append(tokens, token{kind: tokenComma, value: ",", pos: pos})
			pos++
		case isWordRune(r) || r == '-' || r == '+':
			start := pos
			pos++
			for pos < len(runes) && isWordRune(runes[pos]) {
				pos++
			}
			tokens = append(tokens, token{kind: tokenWord, value: string(runes[start:pos]), pos: start})
		default:
			return nil, errors.Errorf("unexpected character %q at position %d", r, pos)
		}
	}
	tokens = append(tokens, token{kind: tokenEnd, pos: len(runes)})
	return tokens, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// parser is a recursive descent parser over the tokens of one expression.
type parser struct {
	text   string
	tokens []token
	pos    int
}

// Parse a descriptor expression, e.g. "Append(Offset(input, -1), input)".
func Parse(text string) (Descriptor, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing descriptor %q", text)
	}
	p := &parser{text: text, tokens: tokens}
	d, err := p.parseDescriptor()
	if err != nil {
		return nil, err
	}
	if next := p.peek(); next.kind != tokenEnd {
		return nil, p.errorf(next, "unexpected %q after the end of the expression", next.value)
	}
	return d, nil
}

// MustParse is like Parse, but panics on error. It is meant for expressions known at compile time.
func MustParse(text string) Descriptor {
	d, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return d
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEnd {
		p.pos++
	}
	return t
}

func (p *parser) errorf(at token, format string, args ...any) error {
	return errors.Wrapf(errors.Errorf(format, args...), "parsing descriptor %q at position %d", p.text, at.pos)
}

func (p *parser) expect(kind tokenKind, what string) error {
	t := p.next()
	if t.kind != kind {
		return p.errorf(t, "expected %s, got %q", what, t.value)
	}
	return nil
}

func (p *parser) parseInt() (int, error) {
	t := p.next()
	if t.kind != tokenWord {
		return 0, p.errorf(t, "expected an integer, got %q", t.value)
	}
	value, err := strconv.Atoi(t.value)
	if err != nil {
		return 0, p.errorf(t, "expected an integer, got %q", t.value)
	}
	return value, nil
}

// parseArgs parses a parenthesised, comma-separated list of descriptors.
func (p *parser) parseArgs() ([]Descriptor, error) {
	if err := p.expect(tokenOpen, "'('"); err != nil {
		return nil, err
	}
	var args []Descriptor
	for {
		d, err := p.parseDescriptor()
		if err != nil {
			return nil, err
		}
		args = append(args, d)
		t := p.next()
		switch t.kind {
		case tokenComma:
			continue
		case tokenClose:
			return args, nil
		default:
			return nil, p.errorf(t, "expected ',' or ')', got %q", t.value)
		}
	}
}

func (p *parser) parseDescriptor() (Descriptor, error) {
	t := p.next()
	if t.kind != tokenWord {
		return nil, p.errorf(t, "expected a node name or an expression, got %q", t.value)
	}
	if p.peek().kind != tokenOpen {
		if strings.HasPrefix(t.value, "-") || strings.HasPrefix(t.value, "+") || unicode.IsDigit([]rune(t.value)[0]) {
			return nil, p.errorf(t, "invalid node name %q", t.value)
		}
		return &Node{Name: t.value}, nil
	}

	switch t.value {
	case "Append", "Sum":
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if t.value == "Append" {
			return &Append{Srcs: args}, nil
		}
		if len(args) < 2 {
			return nil, p.errorf(t, "Sum requires at least 2 operands, got %d", len(args))
		}
		return &Sum{Srcs: args}, nil

	case "IfDefined":
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, p.errorf(t, "IfDefined takes 1 operand, got %d", len(args))
		}
		return &IfDefined{Src: args[0]}, nil

	case "Offset":
		_ = p.next() // '('
		src, err := p.parseDescriptor()
		if err != nil {
			return nil, err
		}
		if err = p.expect(tokenComma, "','"); err != nil {
			return nil, err
		}
		d := &Offset{Src: src}
		if d.T, err = p.parseInt(); err != nil {
			return nil, err
		}
		if p.peek().kind == tokenComma {
			p.next()
			if d.X, err = p.parseInt(); err != nil {
				return nil, err
			}
		}
		if err = p.expect(tokenClose, "')'"); err != nil {
			return nil, err
		}
		return d, nil

	case "ReplaceIndex":
		_ = p.next() // '('
		src, err := p.parseDescriptor()
		if err != nil {
			return nil, err
		}
		if err = p.expect(tokenComma, "','"); err != nil {
			return nil, err
		}
		variable := p.next()
		if variable.value != string(VariableT) && variable.value != string(VariableX) {
			return nil, p.errorf(variable, "ReplaceIndex variable must be %q or %q, got %q",
				VariableT, VariableX, variable.value)
		}
		if err = p.expect(tokenComma, "','"); err != nil {
			return nil, err
		}
		d := &ReplaceIndex{Src: src, Variable: IndexVariable(variable.value)}
		if d.Value, err = p.parseInt(); err != nil {
			return nil, err
		}
		if err = p.expect(tokenClose, "')'"); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, p.errorf(t, "unknown descriptor type %q", t.value)
}
