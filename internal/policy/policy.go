// Package policy maps roles to the tools they may invoke. The table is
// configuration: it is loaded from YAML or taken from Default.
//
// A role's entry lists tool names. "*" allows every tool and "!name"
// removes one tool from the allowed set. Unknown roles may invoke nothing.
//
//	roles:
//	  admin: ["*"]
//	  user: ["*", "!delete_record"]
//	  readonly: [read_records, get_table_schema]
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is an immutable role to tool mapping.
type Table struct {
	roles map[string]rule
}

type rule struct {
	all     bool
	allow   map[string]struct{}
	exclude map[string]struct{}
}

type document struct {
	Roles map[string][]string `yaml:"roles"`
}

// Default is the built-in role matrix. Raw queries are not owner-scoped, so
// only admins get execute_custom_query.
func Default() *Table {
	t, err := fromMap(map[string][]string{
		"admin":       {"*"},
		"user":        {"*", "!delete_record", "!execute_custom_query"},
		"generalUser": {"*", "!delete_record", "!execute_custom_query"},
		"readonly":    {"read_records", "get_table_schema", "read_password", "recent_searches"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a YAML policy file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("parse policy: no roles defined")
	}
	return fromMap(doc.Roles)
}

func fromMap(m map[string][]string) (*Table, error) {
	t := &Table{roles: make(map[string]rule, len(m))}
	for role, entries := range m {
		r := rule{allow: map[string]struct{}{}, exclude: map[string]struct{}{}}
		for _, e := range entries {
			e = strings.TrimSpace(e)
			switch {
			case e == "":
				return nil, fmt.Errorf("role %s: empty tool name", role)
			case e == "*":
				r.all = true
			case strings.HasPrefix(e, "!"):
				r.exclude[strings.TrimPrefix(e, "!")] = struct{}{}
			default:
				r.allow[e] = struct{}{}
			}
		}
		t.roles[role] = r
	}
	return t, nil
}

// Allowed reports whether role may invoke tool.
func (t *Table) Allowed(role, tool string) bool {
	r, ok := t.roles[role]
	if !ok {
		return false
	}
	if _, denied := r.exclude[tool]; denied {
		return false
	}
	if r.all {
		return true
	}
	_, ok = r.allow[tool]
	return ok
}

// Roles returns the configured role names, sorted.
func (t *Table) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
