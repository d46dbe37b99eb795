// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp wraps capability providers speaking the Model Context
// Protocol: connection setup over stdio or streamable HTTP, tool discovery
// with a short cache, and retried tool calls.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	praxiserrors "github.com/jllopis/praxis/pkg/errors"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetries      = 2
	defaultBackoff      = 200 * time.Millisecond
	defaultDiscoveryTTL = 30 * time.Second

	clientName    = "praxis-client"
	clientVersion = "0.1.0"
)

// Option customizes client behavior.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and initial backoff. Backoff doubles
// per attempt.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithDiscoveryTTL sets the tool discovery cache TTL. Zero disables the
// cache.
func WithDiscoveryTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl >= 0 {
			c.discoveryTTL = ttl
		}
	}
}

// Client wraps a raw MCP connection with timeouts, retries, and tool
// discovery caching.
type Client struct {
	conn         client.MCPClient
	timeout      time.Duration
	maxRetries   int
	backoff      time.Duration
	discoveryTTL time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an already-connected MCP client.
func NewClient(conn client.MCPClient, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		timeout:      defaultTimeout,
		maxRetries:   defaultRetries,
		backoff:      defaultBackoff,
		discoveryTTL: defaultDiscoveryTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStdioClient starts a provider subprocess and connects over stdio.
func NewStdioClient(command string, args []string, opts ...Option) (*Client, error) {
	conn, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, err
	}
	if err := conn.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// NewStreamableHTTPClient connects to a provider over streamable HTTP.
func NewStreamableHTTPClient(baseURL string, opts ...Option) (*Client, error) {
	conn, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, err
	}
	if err := conn.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

func initialize(conn client.MCPClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	_, err := conn.Initialize(ctx, req)
	return err
}

// ListTools returns the provider's tool listing, served from the discovery
// cache while it is fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	res, err := retry(ctx, c, "tools/list", func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.conn.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(res.Tools)
	return res.Tools, nil
}

// CallTool executes a tool on the provider.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return retry(ctx, c, "tools/call", func(ctx context.Context) (*mcp.CallToolResult, error) {
		return c.conn.CallTool(ctx, req)
	})
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.discoveryTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.discoveryTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.discoveryTTL)
}

// retry runs op with the client's timeout, backing off exponentially
// between attempts. Context cancellation is never retried.
func retry[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := c.withTimeout(ctx)
		res, err := fn(reqCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() == nil {
				// The per-request timeout fired, not the caller's
				// context: report it as a provider timeout.
				return zero, praxiserrors.New(praxiserrors.CodeTimeout,
					"provider request timed out", err).WithContext("op", op)
			}
			return zero, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		slog.Default().Warn("mcp.request.retry",
			slog.String("op", op),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()),
		)
		if err := c.sleepBackoff(ctx, i); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
