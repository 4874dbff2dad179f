package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/metrics"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// Invoker is the tool surface the orchestrator dispatches through.
type Invoker interface {
	Invoke(ctx context.Context, call tools.Call) tools.Result
	DefinitionsFor(role string) []tools.Definition
}

// Config bounds the conversation loop.
type Config struct {
	MaxIterations   int
	MaxParallel     int
	EngineTimeout   time.Duration
	MaxHistoryTurns int
	Logger          *slog.Logger
	Metrics         *metrics.Collector
}

// Step is emitted to observers on every state change of a turn.
type Step struct {
	SessionID     string
	Turn          int
	State         State
	Iteration     int
	MaxIterations int
	// Calls is the size of the batch entering tool execution.
	Calls int
}

// Observer receives turn steps. It runs on the turn's goroutine.
type Observer func(Step)

// Orchestrator runs turns for the sessions in its store.
type Orchestrator struct {
	engine   Engine
	tools    Invoker
	sessions *Store
	machine  *statekit.MachineConfig[*turnContext]
	cfg      Config

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// New creates an orchestrator.
func New(engine Engine, invoker Invoker, sessions *Store, cfg Config) (*Orchestrator, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	machine, err := newTurnMachine()
	if err != nil {
		return nil, fmt.Errorf("build turn machine: %w", err)
	}
	return &Orchestrator{
		engine:    engine,
		tools:     invoker,
		sessions:  sessions,
		machine:   machine,
		cfg:       cfg,
		observers: make(map[int]Observer),
	}, nil
}

// Sessions returns the session store.
func (o *Orchestrator) Sessions() *Store { return o.sessions }

// StartSession opens a session for identity.
func (o *Orchestrator) StartSession(identity models.Identity) (*Session, error) {
	return o.sessions.Create(identity)
}

// Subscribe registers an observer and returns its removal func.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.obsMu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = obs
	o.obsMu.Unlock()
	return func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}
}

func (o *Orchestrator) emit(s Step) {
	o.obsMu.RLock()
	defer o.obsMu.RUnlock()
	for _, obs := range o.observers {
		obs(s)
	}
}

// boundMessage is the answer of a turn that hit the iteration cap.
func boundMessage(n int) string {
	return fmt.Sprintf("I could not finish this request within %d reasoning steps, so I stopped. "+
		"Please narrow the request and try again.", n)
}

// Send runs one turn for message on session id. The returned turn is the
// one appended to the session, whatever its status. An error accompanies
// cancelled and failed turns and rejections before the turn starts.
func (o *Orchestrator) Send(ctx context.Context, sessionID string, identity models.Identity, message string) (Turn, error) {
	sess, err := o.sessions.Get(sessionID, identity)
	if err != nil {
		return Turn{}, err
	}
	if err := sess.acquire(ctx); err != nil {
		return Turn{}, fmt.Errorf("wait for session %s: %w", sessionID, err)
	}
	defer sess.release()

	// The wait for the lock may have crossed the expiry.
	if sess.Expired(o.sessions.now()) {
		o.sessions.Remove(sessionID)
		return Turn{}, fmt.Errorf("%w: %w: %s", errs.ErrPolicy, ErrSessionExpired, sessionID)
	}

	start := time.Now()
	turn := Turn{
		Index:       sess.nextIndex(),
		UserMessage: message,
		Status:      TurnInProgress,
		StartedAt:   start,
	}
	turn, err = o.runTurn(ctx, sess, turn)
	turn.EndedAt = time.Now()
	sess.append(turn)

	o.cfg.Metrics.RecordOutcome(metrics.OpTurn, turn.EndedAt.Sub(start), turn.Status != TurnCompleted)
	o.cfg.Logger.Info("turn finished",
		"session_id", sess.ID,
		"turn", turn.Index,
		"status", turn.Status,
		"iterations", turn.Iterations,
		"duration_ms", turn.EndedAt.Sub(start).Milliseconds(),
	)
	return turn, err
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *Session, turn Turn) (Turn, error) {
	run := startTurn(o.machine)
	step := func(ev statekit.EventType, calls int) {
		state := run.send(ev)
		turn.Steps = run.trail()
		o.emit(Step{
			SessionID:     sess.ID,
			Turn:          turn.Index,
			State:         state,
			Iteration:     turn.Iterations,
			MaxIterations: o.cfg.MaxIterations,
			Calls:         calls,
		})
	}
	abort := func(status TurnStatus, err error) (Turn, error) {
		step(eventAbort, 0)
		turn.Status = status
		turn.Error = err.Error()
		return turn, err
	}

	step(eventMessage, 0)
	history := append(sess.history(o.cfg.MaxHistoryTurns), models.Message{Role: models.RoleUser, Content: turn.UserMessage})
	defs := o.tools.DefinitionsFor(sess.Identity.Role)

	for {
		if turn.Iterations == o.cfg.MaxIterations {
			turn.Answer = boundMessage(o.cfg.MaxIterations)
			turn.Status = TurnBoundExceeded
			turn.Error = errs.ErrBoundExceeded.Error()
			step(eventRespond, 0)
			o.cfg.Logger.Warn("turn hit iteration bound", "session_id", sess.ID, "turn", turn.Index, "max", o.cfg.MaxIterations)
			return turn, nil
		}
		if err := ctx.Err(); err != nil {
			return abort(TurnCancelled, fmt.Errorf("turn cancelled: %w", err))
		}

		turn.Iterations++
		reply, err := o.next(ctx, Request{Identity: sess.Identity, History: history, Tools: defs})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return abort(TurnCancelled, fmt.Errorf("turn cancelled: %w", ctxErr))
			}
			return abort(TurnFailed, err)
		}

		if len(reply.Calls) == 0 {
			turn.Answer = reply.Text
			turn.Status = TurnCompleted
			step(eventRespond, 0)
			return turn, nil
		}

		calls := withIDs(reply.Calls)
		request := models.Message{Role: models.RoleAssistant, Content: reply.Text, ToolCalls: calls}
		turn.Messages = append(turn.Messages, request)
		history = append(history, request)
		step(eventToolCalls, len(calls))

		for _, res := range o.dispatch(ctx, sess.Identity, calls) {
			msg := models.Message{
				Role:       models.RoleTool,
				Content:    res.Text(),
				ToolCallID: res.CallID,
				ToolName:   res.Tool,
				IsError:    res.IsError,
			}
			turn.Messages = append(turn.Messages, msg)
			history = append(history, msg)
		}
		if err := ctx.Err(); err != nil {
			return abort(TurnCancelled, fmt.Errorf("turn cancelled during tool execution: %w", err))
		}
		step(eventResults, 0)
	}
}

// next asks the engine for one step under the per-call timeout.
func (o *Orchestrator) next(ctx context.Context, req Request) (Reply, error) {
	if o.cfg.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.EngineTimeout)
		defer cancel()
	}
	start := time.Now()
	reply, err := o.engine.Next(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		o.cfg.Metrics.RecordOutcome(metrics.OpEngineNext, elapsed, true)
		if errors.Is(err, errs.ErrEngine) {
			return Reply{}, err
		}
		return Reply{}, fmt.Errorf("%w: %w", errs.ErrEngine, err)
	}
	o.cfg.Metrics.RecordLLMUsage(metrics.OpEngineNext, elapsed, reply.Usage.InputTokens, reply.Usage.OutputTokens)
	return reply, nil
}

// dispatch runs a batch through the registry with bounded parallelism and
// returns results in request order. A call starts once it holds a slot.
// Calls already started finish even if ctx is cancelled; calls still
// waiting for a slot are skipped.
func (o *Orchestrator) dispatch(ctx context.Context, identity models.Identity, calls []models.ToolCallRef) []tools.Result {
	results := make([]tools.Result, len(calls))
	detached := context.WithoutCancel(ctx)

	sem := semaphore.NewWeighted(int64(o.cfg.MaxParallel))
	g := new(errgroup.Group)
	for i, c := range calls {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = notExecuted(c)
			continue
		}
		if ctx.Err() != nil {
			sem.Release(1)
			results[i] = notExecuted(c)
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = o.tools.Invoke(detached, tools.Call{
				ID:       c.ID,
				Tool:     c.Name,
				Args:     c.Arguments,
				Identity: identity,
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func notExecuted(c models.ToolCallRef) tools.Result {
	return tools.Result{
		CallID:  c.ID,
		Tool:    c.Name,
		IsError: true,
		Kind:    errs.KindCancelled,
		Message: "not executed: the turn was cancelled",
	}
}

// withIDs fills in missing call ids so results can always be correlated.
func withIDs(calls []models.ToolCallRef) []models.ToolCallRef {
	out := make([]models.ToolCallRef, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.New().String()
		}
		out[i] = c
	}
	return out
}
