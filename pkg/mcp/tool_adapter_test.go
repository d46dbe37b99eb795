package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeCaller struct {
	result *mcp.CallToolResult
	err    error
	name   string
	args   map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.name = name
	f.args = args
	return f.result, f.err
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func TestToolAdapterCall(t *testing.T) {
	caller := &fakeCaller{result: textResult("42 degrees")}
	adapter, err := NewToolAdapter(mcp.Tool{
		Name:        "weather",
		Description: "Current weather",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"city": map[string]any{"type": "string"}},
			Required:   []string{"city"},
		},
	}, caller)
	if err != nil {
		t.Fatal(err)
	}

	out, err := adapter.Call(context.Background(), map[string]any{"city": "Valencia"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "42 degrees" {
		t.Fatalf("output = %q", out)
	}
	if caller.name != "weather" || caller.args["city"] != "Valencia" {
		t.Fatalf("caller saw %q %v", caller.name, caller.args)
	}
}

func TestToolAdapterMissingRequiredArg(t *testing.T) {
	adapter, err := NewToolAdapter(mcp.Tool{
		Name: "weather",
		InputSchema: mcp.ToolInputSchema{
			Type:     "object",
			Required: []string{"city"},
		},
	}, &fakeCaller{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = adapter.Call(context.Background(), map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "city") {
		t.Fatalf("err = %v, want missing field error", err)
	}
}

func TestToolAdapterErrorResult(t *testing.T) {
	caller := &fakeCaller{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "city not found"}},
	}}
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "weather"}, caller)

	_, err := adapter.Call(context.Background(), map[string]any{"city": "Atlantis"})
	if err == nil || !strings.Contains(err.Error(), "city not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestToolAdapterStructuredContent(t *testing.T) {
	caller := &fakeCaller{result: &mcp.CallToolResult{
		StructuredContent: map[string]any{"temp": 21.5, "unit": "C"},
	}}
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "weather"}, caller)

	out, err := adapter.Call(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"temp":21.5`) || !strings.Contains(out, `"unit":"C"`) {
		t.Fatalf("output = %q", out)
	}
}

func TestToolAdapterSchema(t *testing.T) {
	adapter, _ := NewToolAdapter(mcp.Tool{
		Name: "weather",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"city": map[string]any{"type": "string"}},
			Required:   []string{"city"},
		},
	}, &fakeCaller{})

	schema := adapter.Schema()
	if schema["type"] != "object" {
		t.Fatalf("schema type = %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || props["city"] == nil {
		t.Fatalf("schema properties = %v", schema["properties"])
	}
}

func TestNewToolAdapterValidation(t *testing.T) {
	if _, err := NewToolAdapter(mcp.Tool{}, &fakeCaller{}); err == nil {
		t.Fatal("expected error for empty tool name")
	}
	if _, err := NewToolAdapter(mcp.Tool{Name: "x"}, nil); err == nil {
		t.Fatal("expected error for nil caller")
	}
}
