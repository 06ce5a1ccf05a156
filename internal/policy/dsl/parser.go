// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package dsl

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"
)

// reservedWords cannot appear as attribute roots or path segments.
var reservedWords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "in": {}, "true": {}, "false": {},
}

// IsReservedWord reports whether the identifier is a grammar keyword.
func IsReservedWord(word string) bool {
	_, ok := reservedWords[word]
	return ok
}

// parser is the singleton participle parser instance.
var parser *participle.Parser[Expression]

func init() {
	var err error
	parser, err = NewParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build expression parser: %v", err))
	}
}

// Parse parses an expression string into an AST.
// Returns a descriptive error with position info on failure.
func Parse(text string) (*Expression, error) {
	expr, err := parser.ParseString("", text)
	if err != nil {
		return nil, oops.Wrapf(err, "parsing policy expression")
	}
	if err := validateExpression(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// validateExpression rejects reserved words used as attribute names.
func validateExpression(e *Expression) error {
	for _, conj := range e.Or {
		for _, unary := range conj.And {
			if err := validateTerm(unary.Term); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateTerm(t *Term) error {
	if t.Paren != nil {
		return validateExpression(t.Paren)
	}
	if t.Comparison == nil {
		return nil
	}
	for _, op := range []*Operand{t.Comparison.Left, t.Comparison.Right} {
		if op == nil || op.AttrRef == nil {
			continue
		}
		if err := validateAttrRef(op.AttrRef); err != nil {
			return err
		}
	}
	return nil
}

func validateAttrRef(ar *AttrRef) error {
	if IsReservedWord(ar.Root) {
		return fmt.Errorf("reserved word %q cannot be used as a context name", ar.Root)
	}
	for _, seg := range ar.Path {
		if IsReservedWord(seg) {
			return fmt.Errorf("reserved word %q cannot be used as an attribute name", seg)
		}
	}
	return nil
}
