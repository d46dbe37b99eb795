package skills

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const greeterSkill = `---
name: greeter
description: Greets people by name
allowed-tools: []
---
Say hello to $name`

func TestParse(t *testing.T) {
	spec, err := Parse(greeterSkill)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if spec.Name != "greeter" {
		t.Errorf("name = %q", spec.Name)
	}
	if spec.Body != "Say hello to $name" {
		t.Errorf("body = %q", spec.Body)
	}
	if len(spec.AllowedTools) != 0 {
		t.Errorf("allowed tools = %v, want empty", spec.AllowedTools)
	}
	if spec.MaxTurns != DefaultMaxTurns {
		t.Errorf("max turns = %d, want default %d", spec.MaxTurns, DefaultMaxTurns)
	}
}

func TestParseFull(t *testing.T) {
	spec, err := Parse(`---
name: price-checker
description: Checks prices
allowed-tools:
  - fetch_price
  - fetch_price
  - read_file
model: small-model
max-turns: 4
---
Check the price of $item in $currency.`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(spec.AllowedTools, []string{"fetch_price", "read_file"}) {
		t.Errorf("allowed tools = %v (should dedupe)", spec.AllowedTools)
	}
	if spec.Model != "small-model" || spec.MaxTurns != 4 {
		t.Errorf("model = %q, max turns = %d", spec.Model, spec.MaxTurns)
	}
	if got := spec.Variables(); !reflect.DeepEqual(got, []string{"item", "currency"}) {
		t.Errorf("variables = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "just a body"},
		{"missing name", "---\ndescription: d\n---\nbody"},
		{"missing description", "---\nname: x\n---\nbody"},
		{"bad name", "---\nname: Bad Name\ndescription: d\n---\nbody"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.content); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestRender(t *testing.T) {
	spec, err := Parse(greeterSkill)
	if err != nil {
		t.Fatal(err)
	}

	out, err := spec.Render(map[string]any{"name": "Ann"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Say hello to Ann" {
		t.Errorf("Render = %q", out)
	}

	if _, err := spec.Render(map[string]any{}); err == nil {
		t.Fatal("expected missing-argument error")
	} else if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "greeter")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(greeterSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	// Directories without SKILL.md are skipped.
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadDir(root)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "greeter" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestCompositeOverlayWins(t *testing.T) {
	global := NewRegistry(
		Spec{Name: "shared", Description: "global version"},
		Spec{Name: "base", Description: "base skill"},
	)
	composite := NewComposite(global, []Spec{
		{Name: "shared", Description: "tenant version"},
		{Name: "extra", Description: "tenant only"},
	})

	if spec, ok := composite.Get("shared"); !ok || spec.Description != "tenant version" {
		t.Errorf("Get(shared) = %+v, %v; want tenant version", spec, ok)
	}
	if spec, ok := composite.Get("base"); !ok || spec.Description != "base skill" {
		t.Errorf("Get(base) = %+v, %v; want global fallback", spec, ok)
	}
	if _, ok := composite.Get("nope"); ok {
		t.Error("Get(nope) should miss")
	}
}

func TestCompositeIndexSorted(t *testing.T) {
	global := NewRegistry(
		Spec{Name: "zebra", Description: "z"},
		Spec{Name: "alpha", Description: "a"},
	)
	composite := NewComposite(global, []Spec{{Name: "mid", Description: "m"}})

	index := composite.Index()
	var names []string
	for _, spec := range index {
		names = append(names, spec.Name)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "mid", "zebra"}) {
		t.Errorf("index order = %v", names)
	}

	// Sources must not be mutated by composite reads.
	if _, ok := global.Get("mid"); ok {
		t.Error("global registry gained an overlay skill")
	}
}
