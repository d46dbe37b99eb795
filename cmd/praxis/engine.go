// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sync"

	"github.com/jllopis/praxis/pkg/tenant"
)

// engine holds the live tenant service and lets a config reload swap in a
// freshly built one mid-session. Requests always go through current(), so
// the REPL picks up a new model or provider set on the next prompt.
type engine struct {
	mu      sync.Mutex
	svc     *tenant.Service
	cleanup func()
}

func (e *engine) current() *tenant.Service {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc
}

// swap installs a new service and tears down the previous one. The old
// cleanup runs outside the lock so an in-flight current() never blocks on
// connection teardown.
func (e *engine) swap(svc *tenant.Service, cleanup func()) {
	e.mu.Lock()
	old := e.cleanup
	e.svc = svc
	e.cleanup = cleanup
	e.mu.Unlock()

	if old != nil {
		old()
	}
}

func (e *engine) close() {
	e.mu.Lock()
	cleanup := e.cleanup
	e.svc = nil
	e.cleanup = nil
	e.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}
