// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/praxis/pkg/core"
)

// ToolCaller abstracts tool execution against one provider connection.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolLister abstracts tool discovery.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// ToolAdapter exposes one remote provider tool as a core.Tool.
type ToolAdapter struct {
	tool   mcp.Tool
	caller ToolCaller
}

// NewToolAdapter wraps a provider tool definition and its caller.
func NewToolAdapter(tool mcp.Tool, caller ToolCaller) (*ToolAdapter, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}
	return &ToolAdapter{tool: tool, caller: caller}, nil
}

// DiscoverTools lists every tool on a provider connection and wraps each as
// a core.Tool.
func DiscoverTools(ctx context.Context, conn interface {
	ToolCaller
	ToolLister
}) ([]core.Tool, error) {
	listed, err := conn.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Tool, 0, len(listed))
	for _, t := range listed {
		adapter, err := NewToolAdapter(t, conn)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}

func (t *ToolAdapter) Name() string        { return t.tool.Name }
func (t *ToolAdapter) Description() string { return t.tool.Description }

// Schema returns the JSON-schema parameter description of the remote tool.
func (t *ToolAdapter) Schema() map[string]any {
	if t.tool.RawInputSchema != nil {
		var decoded map[string]any
		if err := json.Unmarshal(t.tool.RawInputSchema, &decoded); err == nil {
			return decoded
		}
	}
	schema := map[string]any{"type": "object"}
	if t.tool.InputSchema.Type != "" {
		schema["type"] = t.tool.InputSchema.Type
	}
	if len(t.tool.InputSchema.Properties) > 0 {
		schema["properties"] = t.tool.InputSchema.Properties
	} else {
		schema["properties"] = map[string]any{}
	}
	if len(t.tool.InputSchema.Required) > 0 {
		schema["required"] = t.tool.InputSchema.Required
	}
	return schema
}

// Call invokes the remote tool and flattens its result to text.
func (t *ToolAdapter) Call(ctx context.Context, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateRequiredArgs(t.tool, args); err != nil {
		return "", err
	}

	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return "", err
	}
	return flattenResult(result)
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("mcp tool args: missing required field %q", key)
		}
	}
	return nil
}

// flattenResult maps a provider result to the string output the engine
// stores in step traces. Structured content becomes compact JSON.
func flattenResult(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New("mcp tool result is nil")
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if result.StructuredContent != nil {
		encoded, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("mcp tool result: %w", err)
		}
		return string(encoded), nil
	}
	return extractTextContent(result.Content), nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Tool = (*ToolAdapter)(nil)
