// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package jit caches the kernels executed by a tensor function, and replays them on later calls
// without running the function again.
//
// A Controller wraps a function and goes through three states:
//
//  1. StateUninitialized: the first call runs the function eagerly.
//  2. StateCollecting: the second call runs the function while recording every kernel dispatched
//     through the tensors.Engine, and freezes them into a KernelGraph.
//  3. StateCaptured: later calls don't run the function at all. They check that the arguments have
//     the same Fingerprint (number of arguments, keywords, and shapes of the tensor arguments),
//     bind the buffers of the tensor arguments and replay the KernelGraph.
//
// Only *tensors.Tensor values given directly as arguments (or as Kwargs values) are rebound on each
// replay. Everything else the function reads, non-tensor arguments, containers of tensors, tensors
// held by a receiver, is frozen with the value it had when the graph was captured.
//
// The Specialized controller keeps one Controller per Fingerprint, so it accepts calls with
// different shapes. Method builds one independent controller per receiver.
//
// Example:
//
//	add := jit.New(engine, func(args ...any) ([]any, error) {
//		a, b := args[0].(*tensors.Tensor), args[1].(*tensors.Tensor)
//		return []any{tensors.Add(a, b)}, nil
//	})
//	for range 5 {
//		results, err := add.Call(randomTensor(), randomTensor())
//		...
//	}
//
// Controllers are not safe for concurrent use.
package jit

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Func is the signature of functions JIT-ed by a Controller.
//
// Results that are *tensors.Tensor or []*tensors.Tensor are realized and, once captured, recomputed
// on every call. Any other result is frozen with the value returned by the captured call.
type Func func(args ...any) ([]any, error)

// State of a Controller. It only moves forward.
type State int

const (
	StateUninitialized State = iota
	StateCollecting
	StateCaptured
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateCollecting:
		return "Collecting"
	case StateCaptured:
		return "Captured"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Controller JIT-compiles (traces and caches) calls to a function. See package documentation.
type Controller struct {
	engine *tensors.Engine
	fn     Func
	name   string

	state       State
	fingerprint Fingerprint
	graph       *KernelGraph
	results     []resultTemplate

	numCalls, numReplays int
	isFinalized          bool
}

// resultKind tells how to rebuild each result of a captured call.
type resultKind int

const (
	resultFrozen resultKind = iota
	resultTensor
	resultTensorSlice
)

type resultTemplate struct {
	kind resultKind

	// value for resultFrozen.
	value any

	// outputs are the indices into the graph's outputs for resultTensor (one) and resultTensorSlice.
	outputs []int
}

// New creates a Controller for fn. Kernels are dispatched, recorded and replayed through engine.
func New(engine *tensors.Engine, fn Func) *Controller {
	return &Controller{
		engine: engine,
		fn:     fn,
		name:   fmt.Sprintf("jit:%s", funcName(fn)),
	}
}

// funcName returns the name of the function, for logging.
func funcName(fn any) string {
	fnV := reflect.ValueOf(fn)
	if fnV.Kind() != reflect.Func || fnV.IsNil() {
		return "<nil>"
	}
	if f := runtime.FuncForPC(fnV.Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}

// SetName sets the name of the controller, used in logs, errors and as the name of the captured graph.
// It returns a reference to itself so calls can be cascaded.
func (c *Controller) SetName(name string) *Controller {
	c.name = name
	if c.graph != nil {
		c.graph.SetName(name)
	}
	return c
}

// Name of the controller.
func (c *Controller) Name() string { return c.name }

// Engine used by the controller.
func (c *Controller) Engine() *tensors.Engine { return c.engine }

// State of the controller.
func (c *Controller) State() State { return c.state }

// Fingerprint captured. Only valid in StateCaptured.
func (c *Controller) Fingerprint() Fingerprint { return c.fingerprint }

// Graph captured, or nil if not yet in StateCaptured.
func (c *Controller) Graph() *KernelGraph { return c.graph }

// NumCalls returns the number of calls, including failed ones.
func (c *Controller) NumCalls() int { return c.numCalls }

// NumReplays returns the number of calls served by replaying the captured graph.
func (c *Controller) NumReplays() int { return c.numReplays }

// Call the JIT-ed function with the given arguments.
//
// It returns ErrNoTensorArgs if there are no tensor arguments, an *AliasingError if two tensor
// arguments share a buffer, and, once captured, a *ShapeMismatchError if the arguments don't match
// the captured Fingerprint. In all these cases no kernel is dispatched.
//
// Panics raised by the function or by the tensors package are returned as errors.
func (c *Controller) Call(args ...any) (results []any, err error) {
	if c.isFinalized {
		return nil, errors.Errorf("jit %q: controller has been finalized", c.name)
	}
	c.numCalls++
	panicErr := exceptions.TryCatch[error](func() { results, err = c.call(args) })
	if panicErr != nil {
		return nil, errors.WithMessagef(panicErr, "jit %q: panic during call", c.name)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "jit %q", c.name)
	}
	return results, nil
}

func (c *Controller) call(args []any) ([]any, error) {
	parsed, err := ClassifyArgs(args)
	if err != nil {
		return nil, err
	}
	tensorArgs := parsed.TensorArgs()
	if len(tensorArgs) == 0 {
		return nil, errors.WithStack(ErrNoTensorArgs)
	}
	switch c.state {
	case StateCaptured:
		return c.replay(parsed, tensorArgs)
	case StateCollecting:
		return c.capture(parsed, tensorArgs, args)
	default:
		return c.warmup(tensorArgs, args)
	}
}

// warmup runs the function eagerly.
func (c *Controller) warmup(tensorArgs []Arg, args []any) ([]any, error) {
	if _, err := TrackBuffers(tensorArgs); err != nil {
		return nil, err
	}
	results, err := c.fn(args...)
	if err != nil {
		return nil, err
	}
	if err = realizeResults(results); err != nil {
		return nil, err
	}
	c.state = StateCollecting
	klog.V(1).Infof("jit %q: %s -> %s", c.name, StateUninitialized, c.state)
	return results, nil
}

// capture runs the function while recording the kernels it dispatches, and freezes them into a KernelGraph.
func (c *Controller) capture(parsed Args, tensorArgs []Arg, args []any) ([]any, error) {
	fingerprint := NewFingerprint(parsed)
	inputs, err := realizeTracked(tensorArgs)
	if err != nil {
		return nil, err
	}

	recorder := NewRecorder()
	results, err := func() ([]any, error) {
		stop := recorder.Start(c.engine)
		defer stop()
		results, err := c.fn(args...)
		if err != nil {
			return nil, err
		}
		return results, realizeResults(results)
	}()
	if err != nil {
		return nil, err
	}

	templates, outputs := newResultTemplates(results)
	graph, err := recorder.Freeze(c.engine, inputs, outputs)
	if err != nil {
		return nil, err
	}
	if graph.NumInvocations() == 0 {
		graph.Finalize()
		return nil, errors.WithStack(ErrEmptyTrace)
	}
	graph.SetName(c.name)

	// Results of the capturing call are copies, so they don't alias the traced buffers either.
	copies, err := readBack(c.engine, outputs)
	if err != nil {
		graph.Finalize()
		return nil, err
	}
	c.fingerprint = fingerprint
	c.graph = graph
	c.results = templates
	c.state = StateCaptured
	klog.V(1).Infof("jit %q: %s -> %s, fingerprint %s", c.name, StateCollecting, c.state, fingerprint)
	klog.V(2).Infof("jit %q: captured %s", c.name, graph)
	return c.buildResults(copies)
}

// replay checks the fingerprint, and replays the captured graph with the buffers of the new arguments.
func (c *Controller) replay(parsed Args, tensorArgs []Arg) ([]any, error) {
	fingerprint := NewFingerprint(parsed)
	if !fingerprint.Equal(c.fingerprint) {
		return nil, errors.WithStack(&ShapeMismatchError{Expected: c.fingerprint, Got: fingerprint})
	}
	inputs, err := realizeTracked(tensorArgs)
	if err != nil {
		return nil, err
	}
	outputs, err := c.graph.Replay(c.engine, inputs)
	if err != nil {
		return nil, err
	}
	c.numReplays++
	return c.buildResults(outputs)
}

// realizeResults realizes tensors returned directly or in a []*tensors.Tensor.
func realizeResults(results []any) error {
	for ii, result := range results {
		switch r := result.(type) {
		case *tensors.Tensor:
			if r == nil {
				continue
			}
			if err := r.Realize(); err != nil {
				return errors.WithMessagef(err, "realizing result #%d", ii)
			}
		case []*tensors.Tensor:
			for jj, t := range r {
				if t == nil {
					continue
				}
				if err := t.Realize(); err != nil {
					return errors.WithMessagef(err, "realizing result #%d[%d]", ii, jj)
				}
			}
		}
	}
	return nil
}

// newResultTemplates returns how to rebuild the results, and the buffers of the tensor results
// in the order they become graph outputs.
func newResultTemplates(results []any) (templates []resultTemplate, outputs []backends.Buffer) {
	templates = make([]resultTemplate, len(results))
	addOutput := func(t *tensors.Tensor) int {
		outputs = append(outputs, must.M1(t.Buffer()))
		return len(outputs) - 1
	}
	for ii, result := range results {
		switch r := result.(type) {
		case *tensors.Tensor:
			if r == nil {
				templates[ii] = resultTemplate{kind: resultFrozen, value: r}
				continue
			}
			templates[ii] = resultTemplate{kind: resultTensor, outputs: []int{addOutput(r)}}
		case []*tensors.Tensor:
			tmpl := resultTemplate{kind: resultTensorSlice, outputs: make([]int, len(r))}
			for jj, t := range r {
				if t == nil {
					tmpl.outputs[jj] = -1
					continue
				}
				tmpl.outputs[jj] = addOutput(t)
			}
			templates[ii] = tmpl
		default:
			templates[ii] = resultTemplate{kind: resultFrozen, value: result}
		}
	}
	return
}

// buildResults rebuilds the results from the templates, with new tensors for the given output buffers.
func (c *Controller) buildResults(outputs []backends.Buffer) ([]any, error) {
	outputTensors := make([]*tensors.Tensor, len(outputs))
	for ii, buf := range outputs {
		var err error
		outputTensors[ii], err = tensors.FromBuffer(c.engine, buf)
		if err != nil {
			return nil, err
		}
	}
	results := make([]any, len(c.results))
	for ii, tmpl := range c.results {
		switch tmpl.kind {
		case resultTensor:
			results[ii] = outputTensors[tmpl.outputs[0]]
		case resultTensorSlice:
			slice := make([]*tensors.Tensor, len(tmpl.outputs))
			for jj, idx := range tmpl.outputs {
				if idx >= 0 {
					slice[jj] = outputTensors[idx]
				}
			}
			results[ii] = slice
		default:
			results[ii] = tmpl.value
		}
	}
	return results, nil
}

// Finalize releases the buffers owned by the captured graph. The controller can't be used afterwards.
func (c *Controller) Finalize() {
	if c.graph != nil {
		c.graph.Finalize()
		c.graph = nil
	}
	c.results = nil
	c.isFinalized = true
}
