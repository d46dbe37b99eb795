// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/mcp/pool"
	"github.com/jllopis/praxis/pkg/skills"
	"github.com/jllopis/praxis/pkg/tools"
)

type staticPermissions map[string]map[string]bool

func (s staticPermissions) ToolPermissions(_ context.Context, tenant string) (map[string]bool, error) {
	if perms, ok := s[tenant]; ok {
		return perms, nil
	}
	return map[string]bool{}, nil
}

type staticOverlays map[string][]skills.Spec

func (s staticOverlays) SkillOverlays(_ context.Context, tenant string) ([]skills.Spec, error) {
	return s[tenant], nil
}

func sharedRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	registry.Register(tools.CurrentTime())
	registry.Register(&tools.Func{ToolName: "shell", Desc: "Run a shell command"})
	return registry
}

func TestBuildFiltersPermissions(t *testing.T) {
	registry := sharedRegistry(t)
	builder := NewBuilder(registry, skills.NewRegistry(), &llm.MockProvider{}, "test-model",
		WithPermissions(staticPermissions{
			"acme": {"shell": false},
		}),
	)

	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Registry.Get("shell"); ok {
		t.Fatal("shell should be filtered for acme")
	}
	if _, ok := svc.Registry.Get("current_time"); !ok {
		t.Fatal("current_time should survive for acme")
	}
	// The shared template is untouched.
	if _, ok := registry.Get("shell"); !ok {
		t.Fatal("shared registry was mutated")
	}
}

func TestBuildNoPermissionRowsAllowsAll(t *testing.T) {
	builder := NewBuilder(sharedRegistry(t), skills.NewRegistry(), &llm.MockProvider{}, "test-model",
		WithPermissions(staticPermissions{}),
	)

	svc, err := builder.Build(context.Background(), "globex")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(svc.Registry.Names()); got != 2 {
		t.Fatalf("tools = %d, want 2", got)
	}
}

func TestBuildAttachesProviderTools(t *testing.T) {
	server := mcpserver.NewMCPServer("capabilities", "1.0.0")
	server.AddTool(mcpgo.NewTool("lookup_order"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "order 7 shipped"}},
		}, nil
	})
	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	defer httpServer.Close()

	p := pool.New([]pool.Provider{{
		Name:      "orders",
		Transport: pool.TransportHTTP,
		URL:       httpServer.URL,
	}})
	defer p.Close()

	builder := NewBuilder(sharedRegistry(t), skills.NewRegistry(), &llm.MockProvider{}, "test-model",
		WithPool(p),
	)

	// First build triggers the background connect and sees no provider
	// tools yet.
	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Registry.Get("lookup_order"); ok {
		t.Fatal("provider tool should not be attached before connect completes")
	}

	<-p.Barrier("acme")

	svc, err = builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	tool, ok := svc.Registry.Get("lookup_order")
	if !ok {
		t.Fatal("provider tool missing after connect")
	}
	out, err := tool.Call(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "order 7 shipped" {
		t.Fatalf("output = %q", out)
	}
}

func TestBuildSkillOverlayWins(t *testing.T) {
	global, err := skills.Parse("---\nname: greeter\ndescription: Global greeting skill\n---\nSay hello to $name")
	if err != nil {
		t.Fatal(err)
	}
	overlay, err := skills.Parse("---\nname: greeter\ndescription: Tenant greeting skill\n---\nGreet $name formally")
	if err != nil {
		t.Fatal(err)
	}

	builder := NewBuilder(sharedRegistry(t), skills.NewRegistry(global), &llm.MockProvider{}, "test-model",
		WithSkillOverlays(staticOverlays{"acme": {overlay}}),
	)

	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	spec, ok := svc.Skills.Get("greeter")
	if !ok {
		t.Fatal("greeter not found")
	}
	if spec.Description != "Tenant greeting skill" {
		t.Fatalf("description = %q, want tenant overlay", spec.Description)
	}

	// A tenant without overlays sees the global skill.
	svc, err = builder.Build(context.Background(), "globex")
	if err != nil {
		t.Fatal(err)
	}
	spec, _ = svc.Skills.Get("greeter")
	if spec.Description != "Global greeting skill" {
		t.Fatalf("description = %q, want global", spec.Description)
	}
}

func TestServiceRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello World!"), 0o600); err != nil {
		t.Fatal(err)
	}
	registry := tools.NewRegistry()
	registry.Register(tools.ReadFile(dir))

	provider := llm.Script(
		// Planner reply.
		`{"description":"read then answer","steps":[
			{"id":"step-1","label":"read the file","action":"tool","tool":"read_file","args":{"path":"hello.txt"}},
			{"id":"step-2","label":"answer","action":"completion"}
		]}`,
		// Supervisor verdict for the tool step.
		`{"outcome":"success","reason":"file read"}`,
		// Completion reply.
		"The file contains: Hello World!",
	)

	builder := NewBuilder(registry, skills.NewRegistry(), provider, "test-model")
	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Run(context.Background(), core.AgentRequest{
		Tenant: "acme",
		Prompt: "what does hello.txt say?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "Hello World!") {
		t.Fatalf("text = %q", resp.Text)
	}
	if len(resp.Trace) != 2 || resp.Trace[0].Output != "Hello World!" {
		t.Fatalf("trace = %+v", resp.Trace)
	}
}

func TestServiceRunDeniedToolSkipped(t *testing.T) {
	registry := sharedRegistry(t)

	provider := llm.Script(
		`{"description":"use shell","steps":[
			{"id":"step-1","label":"run","action":"tool","tool":"shell"},
			{"id":"step-2","label":"answer","action":"completion"}
		]}`,
		// Supervisor accepts the skipped result so the run finishes.
		`{"outcome":"success","reason":"tolerated"}`,
		"done",
	)

	builder := NewBuilder(registry, skills.NewRegistry(), provider, "test-model",
		WithPermissions(staticPermissions{
			"acme": {"shell": false},
		}),
	)
	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Run(context.Background(), core.AgentRequest{Prompt: "run it"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Trace[0].Status != core.StepSkipped {
		t.Fatalf("status = %s, want skipped for policy-denied tool", resp.Trace[0].Status)
	}
	if !strings.Contains(resp.Trace[0].Reason, "PERMISSION_DENIED") {
		t.Fatalf("reason = %q", resp.Trace[0].Reason)
	}
}

func TestServiceRunRequestAllowlist(t *testing.T) {
	registry := sharedRegistry(t)

	provider := llm.Script(
		`{"description":"use shell","steps":[
			{"id":"step-1","label":"run","action":"tool","tool":"shell"},
			{"id":"step-2","label":"answer","action":"completion"}
		]}`,
		// Supervisor accepts the missing-tool result so the run finishes.
		`{"outcome":"success","reason":"tolerated"}`,
		"done",
	)

	builder := NewBuilder(registry, skills.NewRegistry(), provider, "test-model")
	svc, err := builder.Build(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Run(context.Background(), core.AgentRequest{
		Prompt:        "run it",
		ToolAllowlist: []string{"current_time"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Trace[0].Status != core.StepMissing {
		t.Fatalf("status = %s, want missing for allowlisted-out tool", resp.Trace[0].Status)
	}
}
