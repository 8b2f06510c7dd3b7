// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Caller is implemented by Controller and Specialized.
type Caller interface {
	Call(args ...any) ([]any, error)
	Finalize()
}

var (
	_ Caller = (*Controller)(nil)
	_ Caller = (*Specialized)(nil)
)

// MethodFunc is the signature of methods JIT-ed by Method: fn gets the receiver and the arguments of the call.
type MethodFunc[T any] func(recv *T, args ...any) ([]any, error)

// Method JIT-compiles a method: it keeps one independent Caller (a Controller, or a Specialized
// controller) per receiver, so each receiver captures its own graph with its own frozen state.
//
// Receivers are held weakly: once a receiver is garbage collected its Caller is finalized and dropped.
//
// Example:
//
//	type Model struct{ weights *tensors.Tensor }
//
//	var modelApply = jit.NewMethod(engine, func(m *Model, args ...any) ([]any, error) {
//		return []any{tensors.Mul(m.weights, args[0].(*tensors.Tensor))}, nil
//	})
//
//	results, err := modelApply.Call(model, x)
type Method[T any] struct {
	engine      *tensors.Engine
	fn          MethodFunc[T]
	name        string
	specialized bool

	// mu protects callers, which is also modified by the receivers' cleanup functions.
	mu      sync.Mutex
	callers map[weak.Pointer[T]]Caller
	count   int
}

// NewMethod creates a Method that uses one Controller per receiver.
func NewMethod[T any](engine *tensors.Engine, fn MethodFunc[T]) *Method[T] {
	return newMethod(engine, fn, false)
}

// NewSpecializedMethod creates a Method that uses one Specialized controller per receiver.
func NewSpecializedMethod[T any](engine *tensors.Engine, fn MethodFunc[T]) *Method[T] {
	return newMethod(engine, fn, true)
}

func newMethod[T any](engine *tensors.Engine, fn MethodFunc[T], specialized bool) *Method[T] {
	var recv T
	return &Method[T]{
		engine:      engine,
		fn:          fn,
		name:        fmt.Sprintf("method:%s.%s", reflect.TypeOf(recv), funcName(fn)),
		specialized: specialized,
		callers:     make(map[weak.Pointer[T]]Caller),
	}
}

// SetName sets the prefix of the names of the per-receiver controllers.
// It returns a reference to itself so calls can be cascaded.
func (m *Method[T]) SetName(name string) *Method[T] {
	m.name = name
	return m
}

// Name of the method.
func (m *Method[T]) Name() string { return m.name }

// Bind returns the Caller for the given receiver, creating it on first use.
//
// The Caller only holds the receiver weakly. Calling it after the receiver has been garbage
// collected returns an error.
func (m *Method[T]) Bind(recv *T) Caller {
	if recv == nil {
		exceptions.Panicf("jit %q: Bind called with a nil receiver", m.name)
	}
	wp := weak.Make(recv)
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller, found := m.callers[wp]; found {
		return caller
	}

	bound := func(args ...any) ([]any, error) {
		r := wp.Value()
		if r == nil {
			return nil, errors.Errorf("jit %q: receiver has been garbage collected", m.name)
		}
		return m.fn(r, args...)
	}
	name := fmt.Sprintf("%s@%d", m.name, m.count)
	m.count++
	var caller Caller
	if m.specialized {
		caller = NewSpecialized(m.engine, bound).SetName(name)
	} else {
		caller = New(m.engine, bound).SetName(name)
	}
	m.callers[wp] = caller
	runtime.AddCleanup(recv, m.dropReceiver, wp)
	klog.V(1).Infof("jit %q: new receiver bound as %q", m.name, name)
	return caller
}

// dropReceiver is called once the receiver is garbage collected.
func (m *Method[T]) dropReceiver(wp weak.Pointer[T]) {
	m.mu.Lock()
	caller, found := m.callers[wp]
	delete(m.callers, wp)
	m.mu.Unlock()
	if found {
		caller.Finalize()
	}
}

// Call the method for the given receiver. It is the same as m.Bind(recv).Call(args...).
func (m *Method[T]) Call(recv *T, args ...any) ([]any, error) {
	return m.Bind(recv).Call(args...)
}

// Len returns the number of receivers currently bound.
func (m *Method[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.callers)
}
