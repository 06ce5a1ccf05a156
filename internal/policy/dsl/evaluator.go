// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package dsl

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrUndefinedName is returned when an expression references a context
// object or attribute that does not exist. Callers must be able to tell
// this apart from an ordinary false result.
var ErrUndefinedName = errors.New("undefined name in expression")

// ErrNotBoolean is returned when a bare operand does not resolve to a
// boolean value.
var ErrNotBoolean = errors.New("expression term is not boolean")

// Evaluate runs the expression against a context of named objects.
// Comparisons between mismatched types yield false (fail-safe); references
// to names absent from the context are errors, not false.
func Evaluate(e *Expression, ctx map[string]any) (bool, error) {
	for _, conj := range e.Or {
		ok, err := evalConjunction(conj, ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evalConjunction(c *Conjunction, ctx map[string]any) (bool, error) {
	for _, unary := range c.And {
		ok, err := evalUnary(unary, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalUnary(u *Unary, ctx map[string]any) (bool, error) {
	ok, err := evalTerm(u.Term, ctx)
	if err != nil {
		return false, err
	}
	if u.Negated {
		return !ok, nil
	}
	return ok, nil
}

func evalTerm(t *Term, ctx map[string]any) (bool, error) {
	if t.Paren != nil {
		return Evaluate(t.Paren, ctx)
	}
	return evalComparison(t.Comparison, ctx)
}

func evalComparison(cmp *Comparison, ctx map[string]any) (bool, error) {
	left, err := resolveOperand(cmp.Left, ctx)
	if err != nil {
		return false, err
	}

	// Bare operand: must itself be a boolean.
	if cmp.Op == "" {
		b, ok := left.(bool)
		if !ok {
			return false, fmt.Errorf("%w: %T", ErrNotBoolean, left)
		}
		return b, nil
	}

	if cmp.Op == "in" {
		return evalIn(left, cmp, ctx)
	}

	right, err := resolveOperand(cmp.Right, ctx)
	if err != nil {
		return false, err
	}
	return compareValues(left, right, cmp.Op), nil
}

// evalIn checks membership of left in either a literal list or an
// attribute that resolves to a slice.
func evalIn(left any, cmp *Comparison, ctx map[string]any) (bool, error) {
	if cmp.List != nil {
		for _, lit := range cmp.List.Values {
			if compareValues(left, literalValue(lit), "==") {
				return true, nil
			}
		}
		return false, nil
	}

	right, err := resolveOperand(cmp.Right, ctx)
	if err != nil {
		return false, err
	}

	rv := reflect.ValueOf(right)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, nil
	}
	for i := 0; i < rv.Len(); i++ {
		if compareValues(left, rv.Index(i).Interface(), "==") {
			return true, nil
		}
	}
	return false, nil
}

// compareValues applies op with numeric coercion; mismatched types yield
// false for every operator.
func compareValues(left, right any, op string) bool {
	lNum, lIsNum := toFloat64(left)
	rNum, rIsNum := toFloat64(right)
	if lIsNum && rIsNum {
		return compareNumbers(lNum, rNum, op)
	}

	lStr, lIsStr := left.(string)
	rStr, rIsStr := right.(string)
	if lIsStr && rIsStr {
		return compareStrings(lStr, rStr, op)
	}

	lBool, lIsBool := left.(bool)
	rBool, rIsBool := right.(bool)
	if lIsBool && rIsBool {
		return compareBools(lBool, rBool, op)
	}

	return false
}

func compareNumbers(l, r float64, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

func compareStrings(l, r, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

func compareBools(l, r bool, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	default:
		return false
	}
}

// resolveOperand resolves an operand to a Go value.
func resolveOperand(op *Operand, ctx map[string]any) (any, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: missing operand", ErrUndefinedName)
	}
	if op.Literal != nil {
		return literalValue(op.Literal), nil
	}
	return resolveAttrRef(op.AttrRef, ctx)
}

// resolveAttrRef looks up the root object in the context and walks the
// dotted path through maps and exported struct fields.
func resolveAttrRef(ar *AttrRef, ctx map[string]any) (any, error) {
	obj, ok := ctx[strings.ToLower(ar.Root)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUndefinedName, ar.Root)
	}

	current := obj
	for _, seg := range ar.Path {
		next, ok := property(current, seg)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no attribute %q", ErrUndefinedName, ar.Root, seg)
		}
		current = next
	}
	return current, nil
}

// property reads one named attribute from a map or struct value.
func property(obj any, name string) (any, bool) {
	switch m := obj.(type) {
	case map[string]any:
		v, ok := m[name]
		return v, ok
	case map[string]string:
		v, ok := m[name]
		return v, ok
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, name) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func literalValue(l *Literal) any {
	switch {
	case l.Str != nil:
		return *l.Str
	case l.Number != nil:
		return *l.Number
	case l.Bool != nil:
		return *l.Bool == "true"
	default:
		return nil
	}
}

// toFloat64 attempts to convert a value to float64, handling all Go
// numeric types that may appear in context objects.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
