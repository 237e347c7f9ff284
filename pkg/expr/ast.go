// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package expr parses and evaluates "$name.path" substitution tokens.
//
// Grammar:
//
//	token   = "$" ident { "." segment }
//	ident   = letter_or_underscore { letter | digit | "_" | "-" letter_or_underscore }
//	segment = ( letter | digit | "_" ) { letter | digit | "_" | "-" letter_or_underscore }
//
// A "-" followed by a digit ends the name, so "$count-1" is "$count" then "-1".
// "$$" renders a literal "$". A "$" that does not start a token is literal.
package expr

import (
	"reflect"
	"strconv"
	"strings"
)

// Expr is a node of the substitution expression AST.
type Expr interface {
	// Eval looks the expression up in env. The boolean is false when the
	// referenced value does not exist.
	Eval(env Env) (any, bool)
	String() string
}

// Identifier references a top-level variable.
type Identifier struct {
	Name string
}

// Eval implements Expr.
func (i Identifier) Eval(env Env) (any, bool) {
	v, ok := env[i.Name]
	return v, ok
}

func (i Identifier) String() string { return "$" + i.Name }

// PathAccess reads Key from the value produced by Base. Keys index maps by
// name and slices by decimal position.
type PathAccess struct {
	Base Expr
	Key  string
}

// Eval implements Expr.
func (p PathAccess) Eval(env Env) (any, bool) {
	base, ok := p.Base.Eval(env)
	if !ok || base == nil {
		return nil, false
	}
	return lookup(base, p.Key)
}

func (p PathAccess) String() string { return p.Base.String() + "." + p.Key }

// Root returns the identifier an expression starts from.
func Root(e Expr) string {
	for {
		switch n := e.(type) {
		case Identifier:
			return n.Name
		case PathAccess:
			e = n.Base
		default:
			return ""
		}
	}
}

// Part is either literal text or an expression.
type Part struct {
	Literal string
	Expr    Expr
}

// Template is a parsed string made of literal and expression parts.
type Template struct {
	Parts []Part
}

// Single returns the expression when the template is exactly one token.
func (t Template) Single() (Expr, bool) {
	if len(t.Parts) == 1 && t.Parts[0].Expr != nil {
		return t.Parts[0].Expr, true
	}
	return nil, false
}

// HasExpr reports whether the template references any variable.
func (t Template) HasExpr() bool {
	for _, p := range t.Parts {
		if p.Expr != nil {
			return true
		}
	}
	return false
}

// Parse splits s into literal text and substitution tokens.
func Parse(s string) Template {
	var (
		parts []Part
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '$' {
			lit.WriteByte('$')
			i += 2
			continue
		}
		if i+1 >= len(s) || !isIdentStart(s[i+1]) {
			lit.WriteByte('$')
			i++
			continue
		}

		name, next := readWord(s, i+1)
		var e Expr = Identifier{Name: name}
		for next+1 < len(s) && s[next] == '.' && isSegmentStart(s[next+1]) {
			var key string
			key, next = readWord(s, next+1)
			e = PathAccess{Base: e, Key: key}
		}
		flush()
		parts = append(parts, Part{Expr: e})
		i = next
	}
	flush()
	return Template{Parts: parts}
}

func readWord(s string, start int) (string, int) {
	i := start
	for i < len(s) {
		c := s[i]
		if isWordChar(c) {
			i++
			continue
		}
		if c == '-' && i+1 < len(s) && isIdentStart(s[i+1]) {
			i++
			continue
		}
		break
	}
	return s[start:i], i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSegmentStart(c byte) bool { return isWordChar(c) }

func isWordChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func lookup(base any, key string) (any, bool) {
	switch v := base.(type) {
	case map[string]any:
		out, ok := v[key]
		return out, ok
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	}

	rv := reflect.ValueOf(base)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !out.IsValid() {
			return nil, false
		}
		return out.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}
