// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable CPU backend.
//
// It executes one kernel at a time against buffers kept in Go slices, and it only implements the
// dtypes and operations listed in Capabilities. Large elementwise kernels are split across a
// pool of goroutines, see the "parallelism" configuration.
package simplego

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/internal/workerspool"
	"k8s.io/klog/v2"
)

// BackendName to be used in TRACEJIT_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the default constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend.
//
// The config is a comma-separated list of options:
//
//   - "parallelism=N": maximum number of goroutines used by one kernel. 0 disables parallelism,
//     -1 makes it unlimited. Default is runtime.NumCPU().
//
// It panics for unknown options.
func New(config string) backends.Backend {
	b := newBackend()
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "parallelism":
			parallelism, err := strconv.Atoi(value)
			if err != nil {
				exceptions.Panicf("backend %q: invalid value for parallelism in %q: %v", BackendName, option, err)
			}
			b.workers.SetMaxParallelism(parallelism)
		default:
			exceptions.Panicf("backend %q: unknown configuration option %q", BackendName, option)
		}
	}
	klog.V(1).Infof("created backend %q with parallelism=%d", BackendName, b.workers.MaxParallelism())
	return b
}

func newBackend() *Backend {
	return &Backend{workers: workerspool.New()}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map

	workers     *workerspool.Pool
	isFinalized bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implement backends.Backend.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}

// NumDevices return the number of devices available for this Backend.
func (b *Backend) NumDevices() backends.DeviceNum {
	return 1
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// Parallelism returns the maximum number of goroutines used by a single kernel.
func (b *Backend) Parallelism() int {
	return b.workers.MaxParallelism()
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.isFinalized = true
	b.bufferPools.Clear()
}

// IsFinalized returns true if the backend is finalized.
func (b *Backend) IsFinalized() bool {
	return b.isFinalized
}
