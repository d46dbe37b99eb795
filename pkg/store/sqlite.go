// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists tenant state in SQLite: conversation history,
// per-tenant tool permissions, and skill overlay definitions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/skills"

	_ "modernc.org/sqlite"
)

const (
	messageTable    = "messages"
	permissionTable = "tool_permissions"
	skillTable      = "skill_overlays"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing database handle and ensures the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_calls_json BLOB,
			created_at INTEGER NOT NULL
		);`, messageTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_conv ON %s(tenant, conversation_id, seq);`, messageTable, messageTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			tenant TEXT NOT NULL,
			tool TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			PRIMARY KEY(tenant, tool)
		);`, permissionTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			tenant TEXT NOT NULL,
			name TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY(tenant, name)
		);`, skillTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// History returns a conversation's messages, oldest first.
func (s *Store) History(ctx context.Context, tenant, conversationID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT role, content, tool_call_id, tool_calls_json FROM %s
		 WHERE tenant = ? AND conversation_id = ? ORDER BY seq`, messageTable),
		tenant, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var msg llm.Message
		var role string
		var toolCalls []byte
		if err := rows.Scan(&role, &msg.Content, &msg.ToolCallID, &toolCalls); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = llm.Role(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Append adds messages to the end of a conversation.
func (s *Store) Append(ctx context.Context, tenant, conversationID string, messages []llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(seq), 0) FROM %s WHERE tenant = ? AND conversation_id = ?`, messageTable),
		tenant, conversationID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	now := time.Now().Unix()
	for _, msg := range messages {
		seq++
		var toolCalls []byte
		if len(msg.ToolCalls) > 0 {
			toolCalls, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, tenant, conversation_id, seq, role, content, tool_call_id, tool_calls_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, messageTable),
			uuid.NewString(), tenant, conversationID, seq, string(msg.Role), msg.Content, msg.ToolCallID, toolCalls, now)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// Clear removes a conversation entirely.
func (s *Store) Clear(ctx context.Context, tenant, conversationID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE tenant = ? AND conversation_id = ?`, messageTable),
		tenant, conversationID)
	return err
}

// ToolPermissions returns the tenant's permission rows as a name→allowed
// map. An empty map means the tenant has no rows and gets every tool.
func (s *Store) ToolPermissions(ctx context.Context, tenant string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT tool, allowed FROM %s WHERE tenant = ?`, permissionTable), tenant)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[string]bool)
	for rows.Next() {
		var tool string
		var allowed bool
		if err := rows.Scan(&tool, &allowed); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms[tool] = allowed
	}
	return perms, rows.Err()
}

// SetToolPermission records one (tenant, tool) → allowed row.
func (s *Store) SetToolPermission(ctx context.Context, tenant, tool string, allowed bool) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (tenant, tool, allowed) VALUES (?, ?, ?)
		 ON CONFLICT(tenant, tool) DO UPDATE SET allowed = excluded.allowed`, permissionTable),
		tenant, tool, allowed)
	return err
}

// SkillOverlays returns the tenant's parsed skill overlay specs.
func (s *Store) SkillOverlays(ctx context.Context, tenant string) ([]skills.Spec, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT name, body FROM %s WHERE tenant = ? ORDER BY name`, skillTable), tenant)
	if err != nil {
		return nil, fmt.Errorf("load skill overlays: %w", err)
	}
	defer rows.Close()

	var specs []skills.Spec
	for rows.Next() {
		var name, body string
		if err := rows.Scan(&name, &body); err != nil {
			return nil, fmt.Errorf("scan skill overlay: %w", err)
		}
		spec, err := skills.Parse(body)
		if err != nil {
			return nil, fmt.Errorf("skill overlay %q: %w", name, err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// PutSkillOverlay stores (or replaces) one tenant skill overlay. The body
// must parse as a skill definition.
func (s *Store) PutSkillOverlay(ctx context.Context, tenant string, body string) error {
	spec, err := skills.Parse(body)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (tenant, name, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant, name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`, skillTable),
		tenant, spec.Name, body, time.Now().Unix())
	return err
}
