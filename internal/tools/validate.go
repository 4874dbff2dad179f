package tools

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

// compile builds the validator for a definition once, at registration.
func compile(def Definition) (*jsonschema.Schema, error) {
	seen := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("tool %s: field without name", def.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("tool %s: duplicate field %s", def.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	doc, err := roundTrip(def.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", def.Name, err)
	}

	url := def.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", def.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", def.Name, err)
	}
	return sch, nil
}

// validate checks raw arguments against the compiled schema and returns
// the normalized mapping with defaults applied.
func (e *entry) validate(raw map[string]any) (Args, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	doc, err := roundTrip(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: arguments are not valid JSON: %v", errs.ErrValidation, err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrValidation, e.def.Name, err)
	}

	args := Args(doc.(map[string]any))
	for _, f := range e.def.Fields {
		v, ok := args[f.Name]
		if !ok {
			if f.Default == nil {
				continue
			}
			// Copied per call so a handler can't alter the declared default.
			if v, err = roundTrip(f.Default); err != nil {
				return nil, fmt.Errorf("%w: default for %s: %v", errs.ErrValidation, f.Name, err)
			}
			args[f.Name] = v
		}
		if f.Type == TypeInteger {
			if n, ok := v.(float64); ok && n == math.Trunc(n) {
				args[f.Name] = int(n)
			}
		}
	}
	return args, nil
}

// roundTrip normalizes v to the generic JSON representation the validator
// expects. It also detaches the result from the caller's maps.
func roundTrip(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
