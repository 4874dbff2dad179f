package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/metrics"
)

// Policy decides which roles may invoke which tools.
type Policy interface {
	Allowed(role, tool string) bool
}

type entry struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry maps tool names to validated handlers. Registration order is
// preserved for listing.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	order   []string
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewRegistry creates an empty registry. A nil policy allows every role.
func NewRegistry(policy Policy, logger *slog.Logger, mc *metrics.Collector) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*entry),
		policy:  policy,
		logger:  logger,
		metrics: mc,
	}
}

// Register adds a tool. Names are unique and the schema must compile.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("register: tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("register %s: handler is required", def.Name)
	}
	sch, err := compile(def)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("register %s: tool already registered", def.Name)
	}
	r.tools[def.Name] = &entry{def: def.clone(), schema: sch}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns every registered tool in registration order.
func (r *Registry) Definitions() []Definition {
	return r.filter(func(string) bool { return true })
}

// DefinitionsFor returns the tools role may invoke.
func (r *Registry) DefinitionsFor(role string) []Definition {
	return r.filter(func(name string) bool { return r.allowed(role, name) })
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return e.def.clone(), true
}

func (r *Registry) filter(keep func(name string) bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if keep(name) {
			out = append(out, r.tools[name].def.clone())
		}
	}
	return out
}

func (r *Registry) allowed(role, tool string) bool {
	return r.policy == nil || r.policy.Allowed(role, tool)
}

// Invoke runs one call: lookup, identity and role checks, argument
// validation, then the handler. It always returns a Result.
func (r *Registry) Invoke(ctx context.Context, call Call) Result {
	start := time.Now()
	res := r.invoke(ctx, call)
	elapsed := time.Since(start)

	r.metrics.RecordOutcome(metrics.ToolOp(call.Tool), elapsed, res.IsError)
	if res.IsError {
		r.logger.Warn("tool call failed",
			"tool", call.Tool,
			"call_id", call.ID,
			"user_id", call.Identity.UserID,
			"kind", res.Kind,
			"error", res.Message,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		r.logger.Info("tool call",
			"tool", call.Tool,
			"call_id", call.ID,
			"user_id", call.Identity.UserID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return res
}

func (r *Registry) invoke(ctx context.Context, call Call) Result {
	r.mu.RLock()
	e, ok := r.tools[call.Tool]
	r.mu.RUnlock()
	if !ok {
		return failure(call, fmt.Errorf("%w: unknown tool %q", errs.ErrNotFound, call.Tool))
	}
	if !call.Identity.Valid() {
		return failure(call, fmt.Errorf("%w: call has no acting identity", errs.ErrValidation))
	}
	if !r.allowed(call.Identity.Role, call.Tool) {
		return failure(call, fmt.Errorf("%w: role %q may not use %s", errs.ErrPolicy, call.Identity.Role, call.Tool))
	}

	args, err := e.validate(call.Args)
	if err != nil {
		return failure(call, err)
	}
	call.Args = args

	payload, err := run(ctx, e.def.Handler, call)
	if err != nil {
		return failure(call, err)
	}
	return Result{CallID: call.ID, Tool: call.Tool, Payload: payload}
}

// run calls the handler, turning a panic into a backend failure.
func run(ctx context.Context, h Handler, call Call) (payload any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: handler panic: %v", errs.ErrBackend, p)
		}
	}()
	return h(ctx, call)
}

func failure(call Call, err error) Result {
	return Result{
		CallID:  call.ID,
		Tool:    call.Tool,
		IsError: true,
		Kind:    errs.KindOf(err),
		Message: err.Error(),
	}
}
