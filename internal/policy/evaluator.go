// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package policy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/policy/dsl"
)

// Func is an in-process callable policy. Registered functions take
// precedence by name over persisted expressions.
type Func func(ctx map[string]any) bool

// Evaluator resolves named policies against runtime context objects.
type Evaluator struct {
	store Store

	mu    sync.RWMutex
	funcs map[string]Func
}

// NewEvaluator creates an Evaluator over the given store. The store may be
// nil when only callable policies are used.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{
		store: store,
		funcs: make(map[string]Func),
	}
}

// RegisterFunc registers a callable policy under a name. A callable
// shadows any persisted expression with the same name.
func (e *Evaluator) RegisterFunc(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// Evaluate resolves the named policy and runs it against the data.
//
// Data may be a single tagged object, a map of name→object, or a list of
// objects auto-tagged by their lower-cased type name (with a conventional
// "Model" suffix stripped).
func (e *Evaluator) Evaluate(ctx context.Context, name string, data any) (bool, error) {
	evalCtx := BuildContext(data)

	e.mu.RLock()
	fn, ok := e.funcs[name]
	e.mu.RUnlock()
	if ok {
		return fn(evalCtx), nil
	}

	if e.store == nil {
		return false, oops.Code("POLICY_NOT_FOUND").
			With("name", name).
			Wrap(ErrNotFound)
	}

	p, err := e.store.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, oops.Code("POLICY_NOT_FOUND").
				With("name", name).
				Wrap(ErrNotFound)
		}
		return false, oops.Code("POLICY_LOAD_FAILED").
			With("name", name).
			Wrap(err)
	}

	return e.EvaluateExpression(p.Expression, evalCtx)
}

// EvaluateExpression parses and runs a raw expression against an already
// built context. Parse failures, undefined names, and non-boolean results
// all surface as ErrInvalidExpression.
func (e *Evaluator) EvaluateExpression(expression string, evalCtx map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, oops.Code("POLICY_INVALID_EXPRESSION").
			Wrap(ErrInvalidExpression)
	}

	ast, err := dsl.Parse(expression)
	if err != nil {
		return false, oops.Code("POLICY_INVALID_EXPRESSION").
			With("expression", expression).
			Wrap(errors.Join(ErrInvalidExpression, err))
	}

	result, err := dsl.Evaluate(ast, evalCtx)
	if err != nil {
		if errors.Is(err, dsl.ErrUndefinedName) || errors.Is(err, dsl.ErrNotBoolean) {
			return false, oops.Code("POLICY_INVALID_EXPRESSION").
				With("expression", expression).
				Wrap(errors.Join(ErrInvalidExpression, err))
		}
		return false, err
	}
	return result, nil
}

// BuildContext normalizes evaluation input into a name→object map.
// Map keys are lower-cased; slice elements and single objects are tagged
// by type name.
func BuildContext(data any) map[string]any {
	evalCtx := make(map[string]any)

	switch d := data.(type) {
	case nil:
		return evalCtx
	case map[string]any:
		for k, v := range d {
			evalCtx[strings.ToLower(k)] = v
		}
	default:
		// Any slice kind counts as a list of objects, so a typed slice
		// like []UserModel tags its elements the same way []any does.
		rv := reflect.ValueOf(data)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				item := rv.Index(i).Interface()
				evalCtx[typeTag(item)] = item
			}
			return evalCtx
		}
		evalCtx[typeTag(data)] = data
	}
	return evalCtx
}

// typeTag derives a context name from a value's type: the bare type name,
// lower-cased, with a trailing "Model" stripped.
func typeTag(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	name := strings.TrimSuffix(t.Name(), "Model")
	return strings.ToLower(name)
}
