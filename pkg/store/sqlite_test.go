// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"

	"github.com/jllopis/praxis/pkg/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Append(ctx, "acme", "conv-1", []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Append(ctx, "acme", "conv-1", []llm.Message{
		{Role: llm.RoleUser, Content: "how are you?"},
	})
	if err != nil {
		t.Fatal(err)
	}

	history, err := s.History(ctx, "acme", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[0].Content != "hi" || history[2].Content != "how are you?" {
		t.Fatalf("order wrong: %+v", history)
	}
	if history[1].Role != llm.RoleAssistant {
		t.Fatalf("role = %s", history[1].Role)
	}
}

func TestConversationTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.Append(ctx, "acme", "conv-1", []llm.Message{{Role: llm.RoleUser, Content: "secret"}})

	history, err := s.History(ctx, "globex", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("cross-tenant history = %d messages", len(history))
	}
}

func TestConversationToolCallsSurvive(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Append(ctx, "acme", "conv-1", []llm.Message{{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:       "call-1",
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: "read_file", Arguments: `{"path":"hello.txt"}`},
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	history, err := s.History(ctx, "acme", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || len(history[0].ToolCalls) != 1 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].ToolCalls[0].Function.Name != "read_file" {
		t.Fatalf("tool call = %+v", history[0].ToolCalls[0])
	}
}

func TestConversationClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.Append(ctx, "acme", "conv-1", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if err := s.Clear(ctx, "acme", "conv-1"); err != nil {
		t.Fatal(err)
	}
	history, _ := s.History(ctx, "acme", "conv-1")
	if len(history) != 0 {
		t.Fatalf("history after clear = %d", len(history))
	}
}

func TestToolPermissions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// No rows: empty map, meaning allow-all downstream.
	perms, err := s.ToolPermissions(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 0 {
		t.Fatalf("perms = %v, want empty", perms)
	}

	s.SetToolPermission(ctx, "acme", "read_file", true)
	s.SetToolPermission(ctx, "acme", "shell", false)
	// Update in place.
	s.SetToolPermission(ctx, "acme", "read_file", false)

	perms, err = s.ToolPermissions(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 2 {
		t.Fatalf("perms = %v", perms)
	}
	if perms["read_file"] != false || perms["shell"] != false {
		t.Fatalf("perms = %v", perms)
	}
}

func TestSkillOverlays(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	body := "---\nname: greeter\ndescription: Greets people warmly\n---\nSay hello to $name"
	if err := s.PutSkillOverlay(ctx, "acme", body); err != nil {
		t.Fatal(err)
	}

	specs, err := s.SkillOverlays(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 1 || specs[0].Name != "greeter" {
		t.Fatalf("specs = %+v", specs)
	}

	// Replacement keeps a single row per (tenant, name).
	updated := "---\nname: greeter\ndescription: Greets people louder\n---\nSHOUT hello to $name"
	if err := s.PutSkillOverlay(ctx, "acme", updated); err != nil {
		t.Fatal(err)
	}
	specs, _ = s.SkillOverlays(ctx, "acme")
	if len(specs) != 1 || specs[0].Description != "Greets people louder" {
		t.Fatalf("specs = %+v", specs)
	}

	if err := s.PutSkillOverlay(ctx, "acme", "not a skill"); err == nil {
		t.Fatal("expected parse error for invalid overlay body")
	}
}
