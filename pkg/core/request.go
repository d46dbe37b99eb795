// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package core

import "github.com/jllopis/praxis/pkg/llm"

// AgentRequest is one user request entering the engine.
type AgentRequest struct {
	Tenant         string            `json:"tenant"`
	Prompt         string            `json:"prompt"`
	ConversationID string            `json:"conversation_id,omitempty"`
	History        []llm.Message     `json:"history,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	// ToolAllowlist optionally narrows the tools visible to this request on
	// top of the tenant permissions.
	ToolAllowlist []string `json:"tool_allowlist,omitempty"`
}

// AgentResponse is the assembled result of running one request to
// completion, replan exhaustion, or abort.
type AgentResponse struct {
	Text           string         `json:"text"`
	ConversationID string         `json:"conversation_id"`
	Messages       []llm.Message  `json:"messages,omitempty"`
	Trace          []StepResult   `json:"trace"`
	Plan           *Plan          `json:"plan,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
