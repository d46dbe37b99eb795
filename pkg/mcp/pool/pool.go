// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool maintains per-tenant connections to capability providers.
//
// Connections are established in the background: a request that finds no
// cached clients proceeds without provider tools while the pool connects,
// and the next request benefits from the populated cache. Failures are
// negative-cached so an unreachable provider is not re-dialed on every
// request. Connect attempts for one tenant are serialized; different
// tenants connect in parallel.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/praxis/pkg/cache"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
	"github.com/jllopis/praxis/pkg/mcp"
	"github.com/jllopis/praxis/pkg/telemetry"
)

const (
	// DefaultPositiveTTL is how long a connected client stays cached.
	DefaultPositiveTTL = 10 * time.Minute
	// DefaultNegativeTTL is how long a tenant's connect failure suppresses
	// new attempts.
	DefaultNegativeTTL = 5 * time.Minute
	// DefaultConnectTimeout bounds one background connect attempt across
	// all of a tenant's missing providers.
	DefaultConnectTimeout = 15 * time.Second
)

// Transport selects how a provider is reached.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Provider describes one capability provider every tenant may connect to.
type Provider struct {
	Name      string    `json:"name" yaml:"name"`
	Transport Transport `json:"transport" yaml:"transport"`
	// Command and Args apply to stdio providers.
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	// URL applies to http providers.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Dialer opens one provider connection. Overridable in tests.
type Dialer func(ctx context.Context, provider Provider) (*mcp.Client, error)

// Option configures a Pool.
type Option func(*Pool)

// WithPositiveTTL sets the connected-client cache TTL.
func WithPositiveTTL(ttl time.Duration) Option {
	return func(p *Pool) { p.positive = cache.New[string, *mcp.Client](ttl) }
}

// WithNegativeTTL sets the failure cache TTL.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(p *Pool) { p.negative = cache.New[string, time.Time](ttl) }
}

// WithConnectTimeout bounds each background connect attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// WithDialer replaces the connection function.
func WithDialer(dial Dialer) Option {
	return func(p *Pool) { p.dial = dial }
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	CachedClients   int
	NegativeCached  int
	InFlight        int
	ConnectsStarted int64
	ConnectsFailed  int64
}

// Pool shares capability-provider connections across requests, keyed by
// tenant.
type Pool struct {
	providers      []Provider
	positive       *cache.Cache[string, *mcp.Client]
	negative       *cache.Cache[string, time.Time]
	connectTimeout time.Duration
	dial           Dialer
	tracer         trace.Tracer

	mu       sync.Mutex
	inflight map[string]chan struct{}
	dialed   []*mcp.Client

	connectsStarted atomic.Int64
	connectsFailed  atomic.Int64
}

// New builds a pool over the configured providers.
func New(providers []Provider, opts ...Option) *Pool {
	p := &Pool{
		providers:      providers,
		positive:       cache.New[string, *mcp.Client](DefaultPositiveTTL),
		negative:       cache.New[string, time.Time](DefaultNegativeTTL),
		connectTimeout: DefaultConnectTimeout,
		dial:           dialProvider,
		tracer:         otel.Tracer("praxis/mcp/pool"),
		inflight:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clients returns the tenant's cached provider clients without blocking.
// When providers are missing and the tenant is outside its negative-cache
// window, exactly one background connect is scheduled; the current request
// proceeds with whatever is already connected.
func (p *Pool) Clients(ctx context.Context, tenant string) []*mcp.Client {
	var out []*mcp.Client
	missing := false
	for _, provider := range p.providers {
		if client, ok := p.positive.Get(clientKey(tenant, provider.Name)); ok {
			out = append(out, client)
		} else {
			missing = true
		}
	}
	if !missing {
		return out
	}
	if _, failed := p.negative.Get(tenant); failed {
		// Recent failure for this tenant; do not hammer the provider.
		return out
	}

	p.mu.Lock()
	if _, busy := p.inflight[tenant]; !busy {
		done := make(chan struct{})
		p.inflight[tenant] = done
		p.connectsStarted.Add(1)
		go p.connectTenant(tenant, done)
	}
	p.mu.Unlock()
	return out
}

// Barrier returns a channel closed when the tenant's in-flight connect
// finishes. With no connect in flight the channel is already closed.
func (p *Pool) Barrier(tenant string) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done, ok := p.inflight[tenant]; ok {
		return done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Stats reports current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inflight := len(p.inflight)
	p.mu.Unlock()
	return Stats{
		CachedClients:   p.positive.Len(),
		NegativeCached:  p.negative.Len(),
		InFlight:        inflight,
		ConnectsStarted: p.connectsStarted.Load(),
		ConnectsFailed:  p.connectsFailed.Load(),
	}
}

// Close closes every connection the pool ever opened.
func (p *Pool) Close() {
	p.mu.Lock()
	dialed := p.dialed
	p.dialed = nil
	p.mu.Unlock()
	for _, client := range dialed {
		_ = client.Close()
	}
}

// connectTenant dials every provider the tenant is missing. Runs detached
// from the triggering request with its own timeout.
func (p *Pool) connectTenant(tenant string, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, tenant)
		p.mu.Unlock()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout)
	defer cancel()
	log := slog.Default()

	failed := false
	for _, provider := range p.providers {
		if _, ok := p.positive.Get(clientKey(tenant, provider.Name)); ok {
			continue
		}
		dialCtx, span := p.tracer.Start(ctx, "Pool.Connect", trace.WithAttributes(
			telemetry.Tenant(tenant),
			attribute.String(telemetry.AttrProviderName, provider.Name),
		))
		client, err := p.dial(dialCtx, provider)
		if err != nil {
			connErr := praxiserrors.New(praxiserrors.CodeCapabilityConnection,
				"provider connect failed", err).WithContext("provider", provider.Name)
			span.RecordError(connErr)
			span.End()
			failed = true
			log.Warn("pool.connect.failed",
				slog.String("tenant", tenant),
				slog.String("provider", provider.Name),
				slog.Any("error", connErr),
			)
			continue
		}
		span.End()
		p.positive.Set(clientKey(tenant, provider.Name), client)
		p.mu.Lock()
		p.dialed = append(p.dialed, client)
		p.mu.Unlock()
		log.Info("pool.connect.established",
			slog.String("tenant", tenant),
			slog.String("provider", provider.Name),
		)
	}

	if failed {
		p.connectsFailed.Add(1)
		p.negative.Set(tenant, time.Now())
	}
}

func clientKey(tenant, provider string) string {
	return tenant + "/" + provider
}

func dialProvider(ctx context.Context, provider Provider) (*mcp.Client, error) {
	switch provider.Transport {
	case TransportHTTP:
		return mcp.NewStreamableHTTPClient(provider.URL)
	default:
		return mcp.NewStdioClient(provider.Command, provider.Args)
	}
}
