package es

import (
	"strings"

	"robot-service/internal/logger"
)

// Child is the composition link target: a machine owned by a parent state
type Child interface {
	Name() string
	Start(how Lifecycle)
	Run(ev Event) Event
	Exit()
}

// Machine is one level of a hierarchical state machine. It owns exactly one
// current-state cell which only the transition protocol mutates.
type Machine struct {
	name       string
	definition *Definition
	current    StateID

	active bool // between Start and Exit
	ran    bool // has been started at least once, history is meaningful
	busy   bool // inside Start, Run or Exit

	byState  map[StateID][]*Transition
	wildcard []*Transition

	logger              *logger.Logger
	stateChangeCallback func(from, to StateID)
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithLogger sets the logger for the machine
func WithLogger(l *logger.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithStateChangeCallback sets a callback invoked after each state change
func WithStateChangeCallback(fn func(from, to StateID)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// OnStateChange sets a callback invoked after each state change.
// Can be called after Build() but before Start().
func (m *Machine) OnStateChange(fn func(from, to StateID)) {
	m.stateChangeCallback = fn
}

func (m *Machine) Name() string { return m.name }

// Query returns the current state. After Exit it still holds the state that
// was left, which is what a history entry resumes.
func (m *Machine) Query() StateID {
	return m.current
}

// Active reports whether the machine has been started and not exited
func (m *Machine) Active() bool {
	return m.active
}

// Path describes the active configuration, e.g. "offense/shooting/finding-shot"
func (m *Machine) Path() string {
	var b strings.Builder
	b.WriteString(string(m.current))
	st := m.definition.states[m.current]
	if st == nil || !m.active {
		return b.String()
	}
	var subs []string
	for _, child := range st.Children {
		if p, ok := child.(interface{ Path() string }); ok {
			subs = append(subs, p.Path())
		}
	}
	switch len(subs) {
	case 0:
	case 1:
		b.WriteString("/" + subs[0])
	default:
		b.WriteString("/{" + strings.Join(subs, ",") + "}")
	}
	return b.String()
}

// Start activates the machine. Entry picks the initial state (computed once,
// here, when the definition has an InitialFunc); EntryHistory resumes the
// state the machine was in when it last exited.
func (m *Machine) Start(how Lifecycle) {
	if how != Entry && how != EntryHistory {
		defect(m.name, "Start", "lifecycle must be entry or entry-history, got "+how.String())
	}
	if m.busy {
		defect(m.name, "Start", "called from inside the machine's own callback")
	}
	if m.active {
		defect(m.name, "Start", "machine already active")
	}

	history := how == EntryHistory && m.ran
	if !history {
		next := m.definition.initialState()
		if _, ok := m.definition.states[next]; !ok {
			defect(m.name, "Start", "initial state "+string(next)+" is not defined")
		}
		m.current = next
	}

	m.busy = true
	defer func() { m.busy = false }()

	m.active = true
	m.ran = true
	m.logger.Debugf("start (%s) in %s", how, m.current)
	m.enter(m.current, "", history, None)
}

// Exit runs the exit actions of the active configuration, children first,
// and deactivates the machine. The current state is kept for history.
func (m *Machine) Exit() {
	if !m.active {
		defect(m.name, "Exit", "machine is not active")
	}
	if m.busy {
		defect(m.name, "Exit", "called from inside the machine's own callback")
	}

	m.busy = true
	defer func() { m.busy = false }()

	m.logger.Debugf("exit from %s", m.current)
	m.exit(m.current, "", None)
	m.active = false
}

// Run delivers one domain event. The returned event is what this level makes
// available to its caller: the event itself, a remapped kind, or None when
// consumed.
func (m *Machine) Run(ev Event) Event {
	if !m.active {
		defect(m.name, "Run", "machine is not active (never started or already exited)")
	}
	if m.busy {
		defect(m.name, "Run", "re-entrant call")
	}
	if ev.Kind == NoEvent {
		return None
	}

	m.busy = true
	defer func() { m.busy = false }()

	state := m.definition.states[m.current]
	ctx := m.makeContext(m.current)
	ctx.Event = ev

	result := m.during(state, ctx, ev)
	if result.Kind == NoEvent {
		return result
	}

	t := m.findTransition(ctx, result)
	if t == nil {
		return result
	}
	out := t.result(result)

	if t.Internal {
		m.logger.Debugf("internal transition in %s on %s", m.current, result)
		if t.Action != nil {
			t.Action(ctx, result)
		}
		return out
	}

	from := m.current
	m.logger.Debugf("transition %s -> %s on %s", from, t.To, result)

	m.exit(from, t.To, result)
	if t.Action != nil {
		actx := m.makeContext(from)
		actx.From = from
		actx.To = t.To
		actx.Event = result
		t.Action(actx, result)
	}
	m.current = t.To
	m.enter(t.To, from, t.History, result)

	if m.stateChangeCallback != nil && (from != m.current || t.selfTransition()) {
		m.stateChangeCallback(from, m.current)
	}

	return out
}

// during runs the children in declared order, then the state's own handler
func (m *Machine) during(st *State, ctx *Context, ev Event) Event {
	result := ev
	if len(st.Children) > 0 {
		result = runChildren(st.Children, ev)
	}
	if st.During != nil && result.Kind != NoEvent {
		result = st.During(ctx, result)
	}
	return result
}

// runChildren gives every child the same event; the loop never stops early.
// The first child that consumes or remaps the event decides the result.
func runChildren(children []Child, ev Event) Event {
	result := ev
	decided := false
	for _, child := range children {
		r := child.Run(ev)
		if !decided && r != ev {
			result = r
			decided = true
		}
	}
	return result
}

// findTransition returns the first rule whose guard passes: rules of the
// current state in declaration order, then wildcard rules.
func (m *Machine) findTransition(ctx *Context, ev Event) *Transition {
	for _, t := range m.byState[m.current] {
		if t.Kind == ev.Kind && (t.Guard == nil || t.Guard(ctx, ev)) {
			return t
		}
	}
	for _, t := range m.wildcard {
		if t.Kind == ev.Kind && (t.Guard == nil || t.Guard(ctx, ev)) {
			return t
		}
	}
	return nil
}

// enter runs the state's entry action, then starts its children with the
// same lifecycle so history propagates down.
func (m *Machine) enter(id StateID, from StateID, history bool, ev Event) {
	st := m.definition.states[id]
	ctx := m.makeContext(id)
	ctx.From = from
	ctx.History = history
	ctx.Event = ev

	if st.OnEnter != nil {
		if err := st.OnEnter(ctx); err != nil {
			m.logger.Warnf("entry action failed for %s: %v", id, err)
		}
	}

	how := Entry
	if history {
		how = EntryHistory
	}
	for _, child := range st.Children {
		child.Start(how)
	}
}

// exit stops the children before the state's own exit action
func (m *Machine) exit(id StateID, to StateID, ev Event) {
	st := m.definition.states[id]
	for _, child := range st.Children {
		child.Exit()
	}

	if st.OnExit != nil {
		ctx := m.makeContext(id)
		ctx.To = to
		ctx.Event = ev
		if err := st.OnExit(ctx); err != nil {
			m.logger.Warnf("exit action failed for %s: %v", id, err)
		}
	}
}

// makeContext creates a context for callbacks
func (m *Machine) makeContext(state StateID) *Context {
	return &Context{
		Machine: m,
		State:   state,
		Event:   None,
		Logger:  m.logger,
	}
}
