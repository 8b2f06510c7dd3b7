// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracejit/pkg/core/tensors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Wrap returns a function with the same signature as fn, whose calls go through a new Controller.
//
// If the last result of F is an error, JIT errors are returned there. Otherwise, they are raised
// as panics.
//
// Example:
//
//	add := jit.Wrap(engine, func(a, b *tensors.Tensor) *tensors.Tensor { return tensors.Add(a, b) })
//	c := add(a, b)
//
// It panics if fn is not a function.
func Wrap[F any](engine *tensors.Engine, fn F) F {
	wrapped, _ := WrapController(engine, fn)
	return wrapped
}

// WrapController is like Wrap, but it also returns the Controller used.
func WrapController[F any](engine *tensors.Engine, fn F) (F, *Controller) {
	var c *Controller
	wrapped := wrapWith(fn, func(jitFn Func) func(args ...any) ([]any, error) {
		c = New(engine, jitFn).SetName("jit:" + funcName(fn))
		return c.Call
	})
	return wrapped, c
}

// WrapSpecialized is like Wrap, but calls go through a Specialized controller, which is also returned.
func WrapSpecialized[F any](engine *tensors.Engine, fn F) (F, *Specialized) {
	var s *Specialized
	wrapped := wrapWith(fn, func(jitFn Func) func(args ...any) ([]any, error) {
		s = NewSpecialized(engine, jitFn).SetName("specialized:" + funcName(fn))
		return s.Call
	})
	return wrapped, s
}

// wrapWith converts fn to a Func, passes it to newCaller, and returns a function of type F that
// goes through the returned caller.
func wrapWith[F any](fn F, newCaller func(jitFn Func) func(args ...any) ([]any, error)) F {
	fnV := reflect.ValueOf(fn)
	if fnV.Kind() != reflect.Func || fnV.IsNil() {
		exceptions.Panicf("jit.Wrap requires a function, got %T", fn)
	}
	fnT := fnV.Type()
	numOut := fnT.NumOut()
	returnsError := numOut > 0 && fnT.Out(numOut-1) == errorType
	numResults := numOut
	if returnsError {
		numResults--
	}

	// jitFn converts the classified arguments back to fn's parameter types.
	jitFn := func(args ...any) ([]any, error) {
		in := make([]reflect.Value, len(args))
		for ii, arg := range args {
			in[ii] = toValue(arg, paramType(fnT, ii))
		}
		out := fnV.Call(in)
		if returnsError {
			if errV := out[numOut-1]; !errV.IsNil() {
				return nil, errV.Interface().(error)
			}
		}
		results := make([]any, numResults)
		for ii := range numResults {
			results[ii] = out[ii].Interface()
		}
		return results, nil
	}
	call := newCaller(jitFn)

	wrapped := reflect.MakeFunc(fnT, func(in []reflect.Value) []reflect.Value {
		args := make([]any, 0, len(in))
		for ii, v := range in {
			if fnT.IsVariadic() && ii == len(in)-1 {
				// Variadic arguments are passed individually, so each tensor is tracked.
				for jj := range v.Len() {
					args = append(args, v.Index(jj).Interface())
				}
				continue
			}
			args = append(args, v.Interface())
		}
		results, err := call(args...)
		out := make([]reflect.Value, numOut)
		if err != nil {
			if !returnsError {
				panic(err)
			}
			for ii := range numResults {
				out[ii] = reflect.Zero(fnT.Out(ii))
			}
			errV := reflect.New(errorType).Elem()
			errV.Set(reflect.ValueOf(err))
			out[numOut-1] = errV
			return out
		}
		for ii := range numResults {
			out[ii] = toValue(results[ii], fnT.Out(ii))
		}
		if returnsError {
			out[numOut-1] = reflect.Zero(errorType)
		}
		return out
	})
	return wrapped.Interface().(F)
}

// paramType returns the type of the ii-th argument passed to a function of type fnT, taking
// variadic arguments into account.
func paramType(fnT reflect.Type, ii int) reflect.Type {
	numIn := fnT.NumIn()
	if fnT.IsVariadic() && ii >= numIn-1 {
		return fnT.In(numIn - 1).Elem()
	}
	if ii >= numIn {
		exceptions.Panicf("function of type %s called with too many arguments (%d)", fnT, ii+1)
	}
	return fnT.In(ii)
}

// toValue converts x to a reflect.Value of type t.
func toValue(x any, t reflect.Type) reflect.Value {
	if x == nil {
		return reflect.Zero(t)
	}
	v := reflect.ValueOf(x)
	if v.Type() == t {
		return v
	}
	if t.Kind() == reflect.Interface {
		converted := reflect.New(t).Elem()
		converted.Set(v)
		return converted
	}
	return v.Convert(t)
}
