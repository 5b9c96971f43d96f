// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the engine context: the GPU driver,
// the frame clock and the deferred destruction queue shared
// by every subsystem.
package ctxt

import (
	"errors"
	"strings"
	"sync"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

var (
	drv      driver.Driver
	gpu      driver.GPU
	limits   driver.Limits
	features driver.Features
)

var errNoDriver = errors.New("ctxt: driver not found")

// loadDriver attempts to load any driver whose name
// contains the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// It assumes that the drv and gpu vars hold invalid
// values and replaces both on success.
// The limits and features vars are queried from the
// new gpu.
func loadDriver(name string) error {
	drivers := driver.Drivers()
	err := errNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var u driver.GPU
		if u, err = drivers[i].Open(); err != nil {
			continue
		}
		drv = drivers[i]
		gpu = u
		limits = gpu.Limits()
		features = gpu.Features()
		return nil
	}
	return err
}

// Driver returns the driver.Driver.
func Driver() driver.Driver { return drv }

// GPU returns the driver.GPU.
func GPU() driver.GPU { return gpu }

// Limits returns GPU().Limits().
// This value is retrieved only once. It must not be
// changed by the caller.
func Limits() *driver.Limits { return &limits }

// Features returns GPU().Features().
// This value is retrieved only once. It must not be
// changed by the caller.
func Features() *driver.Features { return &features }

// Frame clock and deferred destruction.
// Frame-scoped GPU resources must not be destroyed while
// commands referencing them may still execute, so their
// release is queued here and driven by fence observation.
var (
	frameMu  sync.Mutex
	frame    uint64
	deferred []deferredDestroy
)

type deferredDestroy struct {
	frame uint64
	d     driver.Destroyer
}

// Frame returns the current frame index.
func Frame() uint64 {
	frameMu.Lock()
	defer frameMu.Unlock()
	return frame
}

// NextFrame advances the frame clock and returns the new
// frame index.
// It is called once per frame by the record thread.
func NextFrame() uint64 {
	frameMu.Lock()
	defer frameMu.Unlock()
	frame++
	return frame
}

// DeferDestroy queues d for destruction once the current
// frame's fence is observed.
// A nil d is ignored.
func DeferDestroy(d driver.Destroyer) {
	if d == nil {
		return
	}
	frameMu.Lock()
	defer frameMu.Unlock()
	deferred = append(deferred, deferredDestroy{frame, d})
}

// CompleteFrames destroys every queued resource belonging
// to frames at or below upTo.
// It must only be called after the fence of frame upTo has
// been observed.
func CompleteFrames(upTo uint64) {
	frameMu.Lock()
	var pend []deferredDestroy
	var done []deferredDestroy
	for _, x := range deferred {
		if x.frame <= upTo {
			done = append(done, x)
		} else {
			pend = append(pend, x)
		}
	}
	deferred = pend
	frameMu.Unlock()
	for _, x := range done {
		x.d.Destroy()
	}
}
