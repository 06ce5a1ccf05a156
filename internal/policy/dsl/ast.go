// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package dsl defines the AST types for the policy expression grammar and
// provides a parser built with participle. Expressions are small boolean/
// relational formulas over named context objects, e.g.
//
//	user.age >= 18 and group.name == "adult"
package dsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer defines the token types for the expression grammar. Multi-
// character operators (==, <=, &&) are declared before their one-character
// prefixes so the default scanner cannot split them.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?`},
	{Name: "OpEq", Pattern: `==`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpLe", Pattern: `<=`},
	{Name: "OpGe", Pattern: `>=`},
	{Name: "OpAnd", Pattern: `&&`},
	{Name: "OpOr", Pattern: `\|\|`},
	{Name: "OpLt", Pattern: `<`},
	{Name: "OpGt", Pattern: `>`},
	{Name: "OpNot", Pattern: `!`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[(),\[\]]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Expression is the root: a disjunction of conjunctions.
type Expression struct {
	Pos lexer.Position `parser:"" json:"-"`
	Or  []*Conjunction `parser:"@@ ( ('or' | OpOr) @@ )*" json:"or"`
}

// Conjunction is one or more terms joined by "and"/"&&".
type Conjunction struct {
	Pos lexer.Position `parser:"" json:"-"`
	And []*Unary       `parser:"@@ ( ('and' | OpAnd) @@ )*" json:"and"`
}

// Unary is an optionally negated term.
type Unary struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Negated bool           `parser:"@('not' | OpNot)?" json:"negated,omitempty"`
	Term    *Term          `parser:"@@" json:"term"`
}

// Term is either a parenthesized sub-expression or a comparison.
type Term struct {
	Pos        lexer.Position `parser:"" json:"-"`
	Paren      *Expression    `parser:"  '(' @@ ')'" json:"paren,omitempty"`
	Comparison *Comparison    `parser:"| @@" json:"comparison,omitempty"`
}

// Comparison is an operand, optionally related to a right-hand side. With
// no operator the operand itself must resolve to a boolean. The "in"
// operator accepts either a literal list or an attribute whose value is a
// list.
type Comparison struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Left  *Operand       `parser:"@@" json:"left"`
	Op    string         `parser:"[ @(OpEq | OpNe | OpLe | OpGe | OpLt | OpGt | 'in')" json:"op,omitempty"`
	List  *ListExpr      `parser:"  ( @@" json:"list,omitempty"`
	Right *Operand       `parser:"  | @@ ) ]" json:"right,omitempty"`
}

// Operand is a literal value or an attribute reference. Literals come
// first so "true"/"false" are not swallowed as attribute roots.
type Operand struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Literal *Literal       `parser:"  @@" json:"literal,omitempty"`
	AttrRef *AttrRef       `parser:"| @@" json:"attr_ref,omitempty"`
}

// AttrRef is a dotted path like "user.age"; the first segment names the
// context object, the rest walk its properties.
type AttrRef struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Root string         `parser:"@Ident" json:"root"`
	Path []string       `parser:"(Dot @Ident)*" json:"path,omitempty"`
}

// Literal is a string, number, or boolean constant.
type Literal struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Str    *string        `parser:"  @String" json:"str,omitempty"`
	Number *float64       `parser:"| @Number" json:"number,omitempty"`
	Bool   *string        `parser:"| @('true' | 'false')" json:"bool,omitempty"`
}

// ListExpr is a bracketed list of literals, the right side of "in".
type ListExpr struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Values []*Literal     `parser:"'[' @@ (',' @@)* ']'" json:"values"`
}

// NewParser constructs a participle parser for the expression grammar.
func NewParser() (*participle.Parser[Expression], error) {
	return participle.Build[Expression](
		participle.Lexer(exprLexer),
		participle.Unquote("String"),
	)
}
