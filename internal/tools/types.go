// Package tools is the tool registry: the single enforcement point through
// which direct callers, the MCP server and the orchestrator invoke database
// operations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// FieldType is the JSON type of a tool argument.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
)

// Field declares one tool argument.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Default     any
	Description string
}

// Handler executes a validated call. Returned errors are classified with
// errs.KindOf into the result.
type Handler func(ctx context.Context, call Call) (any, error)

// Definition is a registered tool. The registry keeps its own copy, so the
// caller's value can't change a tool after registration.
type Definition struct {
	Name        string
	Description string
	Fields      []Field
	Handler     Handler
}

// JSONSchema renders the argument schema. Unknown fields are rejected.
func (d Definition) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Fields))
	required := make([]any, 0, len(d.Fields))
	for _, f := range d.Fields {
		p := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if f.Default != nil {
			p["default"] = f.Default
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (d Definition) clone() Definition {
	c := d
	c.Fields = make([]Field, len(d.Fields))
	copy(c.Fields, d.Fields)
	return c
}

// Args is a validated argument mapping.
type Args map[string]any

// String returns a string argument.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer argument. Validation has already converted
// integral JSON numbers to int.
func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Object returns an object argument, or nil when absent.
func (a Args) Object(name string) map[string]any {
	m, _ := a[name].(map[string]any)
	return m
}

// Call is one tool invocation request. It is consumed once.
type Call struct {
	ID       string          `json:"id"`
	Tool     string          `json:"tool"`
	Args     Args            `json:"arguments"`
	Identity models.Identity `json:"identity"`
}

// Result is the outcome of a call. Errors are values, never panics or Go
// errors.
type Result struct {
	CallID  string    `json:"call_id"`
	Tool    string    `json:"tool"`
	Payload any       `json:"payload,omitempty"`
	IsError bool      `json:"is_error"`
	Kind    errs.Kind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Text renders the result for a model or a terminal: the JSON payload on
// success, the message plus a recovery hint on error.
func (r Result) Text() string {
	if r.IsError {
		if hint := hintFor(r.Kind); hint != "" {
			return r.Message + ". " + hint
		}
		return r.Message
	}
	data, err := json.MarshalIndent(r.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Payload)
	}
	return string(data)
}

func hintFor(k errs.Kind) string {
	switch k {
	case errs.KindValidation:
		return "Check the tool's argument schema and required fields"
	case errs.KindPolicy:
		return "This request is not permitted; use known columns and read-only statements"
	case errs.KindNotFound:
		return "Use one of the listed tools"
	case errs.KindBackend:
		return "The database may be unavailable; the caller may resubmit"
	default:
		return ""
	}
}
