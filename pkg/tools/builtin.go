// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Func adapts a function into a core.Tool.
type Func struct {
	ToolName string
	Desc     string
	Params   map[string]any
	Fn       func(ctx context.Context, args map[string]any) (string, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.Desc }

func (f *Func) Schema() map[string]any {
	if f.Params != nil {
		return f.Params
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (f *Func) Call(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

// ReadFile returns a tool that reads files under root. Paths escaping root
// are rejected.
func ReadFile(root string) *Func {
	return &Func{
		ToolName: "read_file",
		Desc:     "Read the contents of a file by relative path",
		Params: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Path of the file to read"},
			},
			"required": []string{"path"},
		},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			rel, _ := args["path"].(string)
			if strings.TrimSpace(rel) == "" {
				return "", fmt.Errorf("path is required")
			}
			clean := filepath.Clean(rel)
			if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
				return "", fmt.Errorf("invalid path: %s", rel)
			}
			data, err := os.ReadFile(filepath.Join(root, clean))
			if err != nil {
				return "", fmt.Errorf("read %s: %w", rel, err)
			}
			return string(data), nil
		},
	}
}

// CurrentTime returns a tool reporting the current UTC time.
func CurrentTime() *Func {
	return &Func{
		ToolName: "current_time",
		Desc:     "Return the current date and time in UTC (RFC 3339)",
		Fn: func(_ context.Context, _ map[string]any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	}
}
