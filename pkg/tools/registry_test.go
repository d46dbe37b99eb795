// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func stub(name string) *Func {
	return &Func{
		ToolName: name,
		Desc:     name + " stub",
		Fn: func(context.Context, map[string]any) (string, error) {
			return name, nil
		},
	}
}

func TestRegisterGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stub("alpha")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Get("alpha"); !ok {
		t.Fatal("alpha not found")
	}
	if _, ok := r.Get("beta"); ok {
		t.Fatal("beta should be missing")
	}
	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil tool")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tmpl := NewRegistry()
	tmpl.Register(stub("alpha"))
	tmpl.Register(stub("beta"))

	clone := tmpl.Clone()
	clone.Remove("alpha")
	clone.Register(stub("gamma"))

	if _, ok := tmpl.Get("alpha"); !ok {
		t.Error("template lost alpha after clone mutation")
	}
	if _, ok := tmpl.Get("gamma"); ok {
		t.Error("template gained gamma from clone mutation")
	}
	if _, ok := clone.Get("alpha"); ok {
		t.Error("clone should not have alpha")
	}
}

func TestFilterByPermissions(t *testing.T) {
	tests := []struct {
		name  string
		perms map[string]bool
		want  []string
	}{
		{"empty map keeps all", map[string]bool{}, []string{"x", "y", "z"}},
		{"nil map keeps all", nil, []string{"x", "y", "z"}},
		{"explicit false removes", map[string]bool{"x": false}, []string{"y", "z"}},
		{"explicit true keeps", map[string]bool{"x": true}, []string{"x", "y", "z"}},
		{"absent names kept", map[string]bool{"y": false, "z": true}, []string{"x", "z"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(stub("x"))
			r.Register(stub("y"))
			r.Register(stub("z"))
			r.FilterByPermissions(tc.perms)
			if got := r.Names(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Names() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeniedTracksPermissionRemovals(t *testing.T) {
	r := NewRegistry()
	r.Register(stub("x"))
	r.Register(stub("y"))

	r.FilterByPermissions(map[string]bool{"x": false})
	if !r.Denied("x") {
		t.Error("x should be marked denied")
	}
	if r.Denied("y") {
		t.Error("y was never denied")
	}
	if r.Denied("ghost") {
		t.Error("unregistered names are not denied, just unknown")
	}

	// Plain removal is not a policy denial.
	r.Remove("y")
	if r.Denied("y") {
		t.Error("Remove must not mark a name denied")
	}

	// Clones carry the denied set.
	clone := r.Clone()
	if !clone.Denied("x") {
		t.Error("clone lost the denied set")
	}
}

func TestDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(stub("zeta"))
	r.Register(stub("alpha"))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}
	if defs[0].Function.Name != "alpha" || defs[1].Function.Name != "zeta" {
		t.Errorf("definitions not sorted: %s, %s", defs[0].Function.Name, defs[1].Function.Name)
	}
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello World!"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := ReadFile(dir)
	out, err := tool.Call(context.Background(), map[string]any{"path": "hello.txt"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "Hello World!" {
		t.Errorf("output = %q", out)
	}

	if _, err := tool.Call(context.Background(), map[string]any{"path": "../escape"}); err == nil {
		t.Error("expected traversal rejection")
	}
	if _, err := tool.Call(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing path")
	}
}
