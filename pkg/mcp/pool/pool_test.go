// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/praxis/pkg/mcp"
)

func providers(names ...string) []Provider {
	out := make([]Provider, len(names))
	for i, name := range names {
		out[i] = Provider{Name: name, Transport: TransportHTTP, URL: "http://localhost/" + name}
	}
	return out
}

// blockingDialer holds connect attempts until released and counts them.
type blockingDialer struct {
	mu      sync.Mutex
	release chan struct{}
	count   int32
	err     error
}

func newBlockingDialer() *blockingDialer {
	return &blockingDialer{release: make(chan struct{})}
}

func (d *blockingDialer) dial(ctx context.Context, _ Provider) (*mcp.Client, error) {
	atomic.AddInt32(&d.count, 1)
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return &mcp.Client{}, nil
}

func TestClientsSchedulesSingleBackgroundConnect(t *testing.T) {
	dialer := newBlockingDialer()
	p := New(providers("files"), WithDialer(dialer.dial))

	// First call: nothing cached, returns empty, schedules one connect.
	if got := p.Clients(context.Background(), "acme"); len(got) != 0 {
		t.Fatalf("clients = %d, want 0 before connect completes", len(got))
	}
	// Second call while the connect is still in flight: no new attempt.
	if got := p.Clients(context.Background(), "acme"); len(got) != 0 {
		t.Fatalf("clients = %d, want 0 before connect completes", len(got))
	}
	if stats := p.Stats(); stats.InFlight != 1 {
		t.Fatalf("in flight = %d, want 1", stats.InFlight)
	}

	close(dialer.release)
	<-p.Barrier("acme")

	if got := atomic.LoadInt32(&dialer.count); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
	if got := p.Clients(context.Background(), "acme"); len(got) != 1 {
		t.Fatalf("clients = %d, want 1 after connect", len(got))
	}
}

func TestClientsNegativeCacheSuppressesRetries(t *testing.T) {
	dialer := newBlockingDialer()
	dialer.err = errors.New("refused")
	close(dialer.release)

	p := New(providers("files"), WithDialer(dialer.dial))

	p.Clients(context.Background(), "acme")
	<-p.Barrier("acme")

	if stats := p.Stats(); stats.ConnectsFailed != 1 || stats.NegativeCached != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// Inside the negative window no new connect is scheduled.
	p.Clients(context.Background(), "acme")
	<-p.Barrier("acme")
	if got := atomic.LoadInt32(&dialer.count); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
}

func TestClientsNegativeCacheExpires(t *testing.T) {
	dialer := newBlockingDialer()
	dialer.err = errors.New("refused")
	close(dialer.release)

	p := New(providers("files"),
		WithDialer(dialer.dial),
		WithNegativeTTL(time.Millisecond),
	)

	p.Clients(context.Background(), "acme")
	<-p.Barrier("acme")
	time.Sleep(5 * time.Millisecond)

	p.Clients(context.Background(), "acme")
	<-p.Barrier("acme")
	if got := atomic.LoadInt32(&dialer.count); got != 2 {
		t.Fatalf("dial count = %d, want 2 after negative TTL expiry", got)
	}
}

func TestClientsTenantsConnectIndependently(t *testing.T) {
	dialer := newBlockingDialer()
	close(dialer.release)

	p := New(providers("files"), WithDialer(dialer.dial))

	p.Clients(context.Background(), "acme")
	p.Clients(context.Background(), "globex")
	<-p.Barrier("acme")
	<-p.Barrier("globex")

	if got := p.Clients(context.Background(), "acme"); len(got) != 1 {
		t.Fatalf("acme clients = %d", len(got))
	}
	if got := p.Clients(context.Background(), "globex"); len(got) != 1 {
		t.Fatalf("globex clients = %d", len(got))
	}
	if got := atomic.LoadInt32(&dialer.count); got != 2 {
		t.Fatalf("dial count = %d, want one per tenant", got)
	}
}

func TestClientsPartialProviderFailure(t *testing.T) {
	var calls int32
	dial := func(_ context.Context, provider Provider) (*mcp.Client, error) {
		atomic.AddInt32(&calls, 1)
		if provider.Name == "broken" {
			return nil, errors.New("refused")
		}
		return &mcp.Client{}, nil
	}

	p := New(providers("files", "broken"), WithDialer(dial))

	p.Clients(context.Background(), "acme")
	<-p.Barrier("acme")

	// The working provider is cached, the failure is negative-cached.
	if got := p.Clients(context.Background(), "acme"); len(got) != 1 {
		t.Fatalf("clients = %d, want 1", len(got))
	}
	stats := p.Stats()
	if stats.NegativeCached != 1 {
		t.Fatalf("negative cached = %d, want 1", stats.NegativeCached)
	}
	// Inside the window the broken provider is not redialed.
	<-p.Barrier("acme")
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
}
