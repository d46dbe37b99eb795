// Package skills loads and renders reusable sub-agent persona templates.
// A skill is defined in a SKILL.md file: YAML frontmatter (name,
// description, allowed-tools, model, max-turns) followed by the template
// body. The allowed-tools list is a closed set; tools not declared there
// are invisible to the skill at run time.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Spec describes one skill template.
type Spec struct {
	Name         string
	Description  string
	AllowedTools []string
	Model        string
	MaxTurns     int
	Body         string
	Path         string
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024

	// DefaultMaxTurns bounds the skill tool-calling loop when the skill
	// does not declare its own budget.
	DefaultMaxTurns = 10
)

var (
	namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	varPattern  = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// LoadDir scans a directory for skill subdirectories with SKILL.md.
func LoadDir(root string) ([]Spec, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Spec
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name(), "SKILL.md")
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := LoadFile(skillPath)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

// LoadFile parses a single SKILL.md file.
func LoadFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	spec, err := Parse(string(data))
	if err != nil {
		return Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	spec.Path = path
	return spec, nil
}

// Parse parses SKILL.md content: frontmatter plus body.
func Parse(content string) (Spec, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return Spec{}, err
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return Spec{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	spec := Spec{
		Name:         strings.TrimSpace(parsed.Name),
		Description:  strings.TrimSpace(parsed.Description),
		AllowedTools: dedupe(parsed.AllowedTools),
		Model:        strings.TrimSpace(parsed.Model),
		MaxTurns:     parsed.MaxTurns,
		Body:         strings.TrimSpace(body),
	}
	if spec.MaxTurns <= 0 {
		spec.MaxTurns = DefaultMaxTurns
	}
	if err := validate(spec); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Variables returns the template variables declared in the body, in order
// of first appearance.
func (s Spec) Variables() []string {
	matches := varPattern.FindAllStringSubmatch(s.Body, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Render substitutes template variables with args. Every variable in the
// body must be present in args.
func (s Spec) Render(args map[string]any) (string, error) {
	var missing []string
	out := varPattern.ReplaceAllStringFunc(s.Body, func(match string) string {
		name := match[1:]
		value, ok := args[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return fmt.Sprint(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("skill %q: missing template arguments: %s", s.Name, strings.Join(missing, ", "))
	}
	return out, nil
}

// Allows reports whether the skill's closed tool set contains name.
func (s Spec) Allows(name string) bool {
	for _, allowed := range s.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed-tools"`
	Model        string   `yaml:"model"`
	MaxTurns     int      `yaml:"max-turns"`
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validate(spec Spec) error {
	if spec.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(spec.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(spec.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if spec.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(spec.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	return nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
