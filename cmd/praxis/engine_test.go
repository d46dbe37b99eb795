// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/jllopis/praxis/pkg/tenant"
)

func TestEngineSwapTearsDownPrevious(t *testing.T) {
	eng := &engine{}

	first := &tenant.Service{}
	firstClosed := 0
	eng.swap(first, func() { firstClosed++ })

	if eng.current() != first {
		t.Fatal("current() did not return the installed service")
	}

	second := &tenant.Service{}
	secondClosed := 0
	eng.swap(second, func() { secondClosed++ })

	if firstClosed != 1 {
		t.Fatalf("first cleanup ran %d times, want 1", firstClosed)
	}
	if secondClosed != 0 {
		t.Fatal("second cleanup ran during swap")
	}
	if eng.current() != second {
		t.Fatal("current() did not return the replacement service")
	}
}

func TestEngineCloseRunsCleanupOnce(t *testing.T) {
	eng := &engine{}
	closed := 0
	eng.swap(&tenant.Service{}, func() { closed++ })

	eng.close()
	eng.close()

	if closed != 1 {
		t.Fatalf("cleanup ran %d times, want 1", closed)
	}
	if eng.current() != nil {
		t.Fatal("current() not nil after close")
	}
}
