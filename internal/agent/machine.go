package agent

import (
	"slices"

	"github.com/felixgeelhaar/statekit"
)

// State is a turn's position in the conversation loop.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateReasoning     State = "model_reasoning"
	StateToolExecution State = "tool_execution"
	StateResponded     State = "responded"
)

const (
	eventMessage   statekit.EventType = "MESSAGE"
	eventToolCalls statekit.EventType = "TOOL_CALLS"
	eventResults   statekit.EventType = "RESULTS"
	eventRespond   statekit.EventType = "RESPOND"
	eventAbort     statekit.EventType = "ABORT"
)

// turnContext travels through the machine for one turn. The record action
// appends every state entered.
type turnContext struct {
	steps []State
}

// newTurnMachine builds the turn statechart:
//
//	awaiting_input -MESSAGE-> model_reasoning
//	model_reasoning -TOOL_CALLS-> tool_execution -RESULTS-> model_reasoning
//	model_reasoning -RESPOND-> responded
//	model_reasoning|tool_execution -ABORT-> awaiting_input
func newTurnMachine() (*statekit.MachineConfig[*turnContext], error) {
	return statekit.NewMachine[*turnContext]("turn").
		WithInitial(statekit.StateID(StateAwaitingInput)).
		WithContext(&turnContext{}).
		WithAction("record", recordStep).
		State(statekit.StateID(StateAwaitingInput)).
			On(eventMessage).Target(statekit.StateID(StateReasoning)).Do("record").
			Done().
		State(statekit.StateID(StateReasoning)).
			On(eventToolCalls).Target(statekit.StateID(StateToolExecution)).Do("record").
			On(eventRespond).Target(statekit.StateID(StateResponded)).Do("record").
			On(eventAbort).Target(statekit.StateID(StateAwaitingInput)).Do("record").
			Done().
		State(statekit.StateID(StateToolExecution)).
			On(eventResults).Target(statekit.StateID(StateReasoning)).Do("record").
			On(eventAbort).Target(statekit.StateID(StateAwaitingInput)).Do("record").
			Done().
		State(statekit.StateID(StateResponded)).
			Final().
			Done().
		Build()
}

func recordStep(ctx **turnContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if to, ok := eventTargets[event.Type]; ok {
		(*ctx).steps = append((*ctx).steps, to)
	}
}

var eventTargets = map[statekit.EventType]State{
	eventMessage:   StateReasoning,
	eventToolCalls: StateToolExecution,
	eventResults:   StateReasoning,
	eventRespond:   StateResponded,
	eventAbort:     StateAwaitingInput,
}

// turnRun drives one interpreter.
type turnRun struct {
	interp *statekit.Interpreter[*turnContext]
	ctx    *turnContext
}

func startTurn(machine *statekit.MachineConfig[*turnContext]) *turnRun {
	tc := &turnContext{}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **turnContext) {
		*c = tc
	})
	interp.Start()
	return &turnRun{interp: interp, ctx: tc}
}

func (r *turnRun) send(ev statekit.EventType) State {
	r.interp.Send(statekit.Event{Type: ev})
	return r.state()
}

func (r *turnRun) state() State {
	return State(r.interp.State().Value)
}

// trail returns the states entered so far.
func (r *turnRun) trail() []State {
	return slices.Clone(r.ctx.steps)
}
