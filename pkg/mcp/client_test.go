package mcp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	praxiserrors "github.com/jllopis/praxis/pkg/errors"
)

func TestClientStreamableHTTPListAndCall(t *testing.T) {
	server := mcpserver.NewMCPServer("test-http", "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "pong"}},
		}, nil
	})

	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	defer httpServer.Close()

	client, err := NewStreamableHTTPClient(httpServer.URL)
	if err != nil {
		t.Fatalf("NewStreamableHTTPClient: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) == 0 || tools[0].Name != "ping" {
		t.Fatalf("tools = %+v", tools)
	}

	result, err := client.CallTool(context.Background(), "ping", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("result = %+v", result)
	}
}

// countingConn fails a fixed number of times before succeeding. Only
// ListTools is implemented; embedding the interface satisfies the rest.
type countingConn struct {
	client.MCPClient
	failures int32
	calls    int32
}

func (c *countingConn) ListTools(_ context.Context, _ mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= atomic.LoadInt32(&c.failures) {
		return nil, errors.New("transient")
	}
	return &mcpgo.ListToolsResult{Tools: []mcpgo.Tool{{Name: "ping"}}}, nil
}

func TestClientRetriesTransientErrors(t *testing.T) {
	conn := &countingConn{failures: 2}
	client := NewClient(conn, WithRetry(2, time.Millisecond))

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	if got := atomic.LoadInt32(&conn.calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestClientDiscoveryCache(t *testing.T) {
	conn := &countingConn{}
	client := NewClient(conn, WithDiscoveryTTL(time.Minute))

	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&conn.calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (second hit served from cache)", got)
	}
}

func TestClientRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &countingConn{failures: 100}
	client := NewClient(conn, WithRetry(5, time.Millisecond))

	_, err := client.ListTools(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// slowConn blocks until the request context expires.
type slowConn struct {
	client.MCPClient
}

func (s *slowConn) ListTools(ctx context.Context, _ mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClientTimeoutReportedAsTyped(t *testing.T) {
	client := NewClient(&slowConn{}, WithTimeout(5*time.Millisecond), WithRetry(0, time.Millisecond))

	_, err := client.ListTools(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var pe *praxiserrors.Error
	if !errors.As(err, &pe) || pe.Code != praxiserrors.CodeTimeout {
		t.Fatalf("err = %v, want TIMEOUT code", err)
	}
	// The cause stays inspectable.
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded in chain", err)
	}
}
