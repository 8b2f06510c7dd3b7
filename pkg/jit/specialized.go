// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"

	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LargeCacheWarning is the number of specialized controllers above which a warning is logged once:
// it usually means the shapes of the arguments vary more than expected.
var LargeCacheWarning = 32

// Specialized keeps one independent Controller per call Fingerprint, created on the first call
// with that fingerprint. So calls with new shapes start a new warmup/capture cycle instead of
// failing with a ShapeMismatchError.
//
// The cache only grows: there is no eviction. SetMaxCache limits its size.
//
// Not safe for concurrent use.
type Specialized struct {
	engine *tensors.Engine
	fn     Func
	name   string

	controllers  map[string]*Controller
	fingerprints []Fingerprint
	maxCacheSize int
	warned       bool
	isFinalized  bool
}

// NewSpecialized creates a Specialized controller for fn, with unlimited cache size.
func NewSpecialized(engine *tensors.Engine, fn Func) *Specialized {
	return &Specialized{
		engine:       engine,
		fn:           fn,
		name:         fmt.Sprintf("specialized:%s", funcName(fn)),
		controllers:  make(map[string]*Controller),
		maxCacheSize: -1,
	}
}

// SetName sets the name of the controller. Sub-controllers are named "<name>#<n>".
// It returns a reference to itself so calls can be cascaded.
func (s *Specialized) SetName(name string) *Specialized {
	s.name = name
	for ii, fp := range s.fingerprints {
		s.controllers[fp.Key()].SetName(fmt.Sprintf("%s#%d", name, ii))
	}
	return s
}

// Name of the controller.
func (s *Specialized) Name() string { return s.name }

// SetMaxCache sets the maximum number of fingerprints (sub-controllers) kept.
// Set it to -1 to have unlimited cache size, the default.
// It returns a reference to itself so calls can be cascaded.
func (s *Specialized) SetMaxCache(maxCacheSize int) *Specialized {
	s.maxCacheSize = maxCacheSize
	return s
}

// Len returns the number of sub-controllers.
func (s *Specialized) Len() int { return len(s.fingerprints) }

// Fingerprints returns the fingerprints seen, in the order they were first seen.
func (s *Specialized) Fingerprints() []Fingerprint { return s.fingerprints }

// Controller returns the sub-controller for the given fingerprint, or nil if there isn't one.
func (s *Specialized) Controller(fp Fingerprint) *Controller {
	return s.controllers[fp.Key()]
}

// Call the JIT-ed function, delegating to the sub-controller of the arguments' Fingerprint.
//
// It returns ErrCacheFull if a new sub-controller would exceed the maximum cache size.
func (s *Specialized) Call(args ...any) ([]any, error) {
	if s.isFinalized {
		return nil, errors.Errorf("jit %q: controller has been finalized", s.name)
	}
	parsed, err := ClassifyArgs(args)
	if err != nil {
		return nil, errors.WithMessagef(err, "jit %q", s.name)
	}
	if len(parsed.TensorArgs()) == 0 {
		return nil, errors.Wrapf(ErrNoTensorArgs, "jit %q", s.name)
	}
	fp := NewFingerprint(parsed)
	key := fp.Key()
	controller, found := s.controllers[key]
	if !found {
		if s.maxCacheSize >= 0 && len(s.fingerprints) >= s.maxCacheSize {
			return nil, errors.Wrapf(ErrCacheFull, "jit %q: max cache size %d reached, can't add %s",
				s.name, s.maxCacheSize, fp)
		}
		controller = New(s.engine, s.fn).SetName(fmt.Sprintf("%s#%d", s.name, len(s.fingerprints)))
		s.controllers[key] = controller
		s.fingerprints = append(s.fingerprints, fp)
		klog.V(1).Infof("jit %q: new specialization %s for %s", s.name, controller.Name(), fp)
		if !s.warned && len(s.fingerprints) > LargeCacheWarning {
			s.warned = true
			klog.Warningf("jit %q has more than %d specializations, are the shapes of the arguments changing on every call?",
				s.name, LargeCacheWarning)
		}
	}
	return controller.Call(args...)
}

// NumReplays returns the total number of replays over all sub-controllers.
func (s *Specialized) NumReplays() int {
	var total int
	for _, c := range s.controllers {
		total += c.NumReplays()
	}
	return total
}

// Finalize all sub-controllers. The Specialized controller can't be used afterwards.
func (s *Specialized) Finalize() {
	for _, c := range s.controllers {
		c.Finalize()
	}
	clear(s.controllers)
	s.fingerprints = nil
	s.isFinalized = true
}
