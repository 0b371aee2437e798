package es

import (
	"fmt"

	"robot-service/internal/logger"
)

// Definition holds a machine's structure before building it
type Definition struct {
	states      map[StateID]*State
	order       []StateID
	transitions []Transition
	initial     StateID
	initialFunc func() StateID
}

// NewDefinition creates a new machine definition builder
func NewDefinition() *Definition {
	return &Definition{
		states:      make(map[StateID]*State),
		transitions: make([]Transition, 0),
	}
}

// State adds a state to the definition
func (d *Definition) State(id StateID, opts ...StateOption) *Definition {
	s := &State{ID: id}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := d.states[id]; !ok {
		d.order = append(d.order, id)
	}
	d.states[id] = s
	return d
}

// Transition adds a transition rule
func (d *Definition) Transition(from StateID, kind Kind, to StateID, opts ...TransitionOption) *Definition {
	t := Transition{
		From: from,
		Kind: kind,
		To:   to,
	}
	for _, opt := range opts {
		opt(&t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// Internal adds a rule that handles an event without leaving the state
func (d *Definition) Internal(from StateID, kind Kind, opts ...TransitionOption) *Definition {
	opts = append(opts, AsInternal())
	return d.Transition(from, kind, from, opts...)
}

// AnyStateTransition adds a transition that can fire from any state
func (d *Definition) AnyStateTransition(kind Kind, to StateID, opts ...TransitionOption) *Definition {
	return d.Transition(AnyState, kind, to, opts...)
}

// Initial sets the initial state
func (d *Definition) Initial(id StateID) *Definition {
	d.initial = id
	return d
}

// InitialFunc picks the entry state at Start time from accumulated flags.
// It is evaluated once per non-history Start, before the first entry action.
func (d *Definition) InitialFunc(fn func() StateID) *Definition {
	d.initialFunc = fn
	return d
}

// Validate checks the definition for errors
func (d *Definition) Validate() error {
	if len(d.states) == 0 {
		return fmt.Errorf("no states defined")
	}
	if d.initial == "" && d.initialFunc == nil {
		return fmt.Errorf("no initial state defined")
	}
	if d.initial != "" {
		if _, ok := d.states[d.initial]; !ok {
			return fmt.Errorf("initial state %q not defined", d.initial)
		}
	}

	for id, state := range d.states {
		for i, child := range state.Children {
			if child == nil {
				return fmt.Errorf("state %q child %d is nil", id, i)
			}
		}
	}

	for _, t := range d.transitions {
		if t.Kind == NoEvent {
			return fmt.Errorf("transition from %q on no-event", t.From)
		}
		if t.From != AnyState {
			if _, ok := d.states[t.From]; !ok {
				return fmt.Errorf("transition from undefined state %q", t.From)
			}
		}
		if t.Internal {
			continue
		}
		if t.To == AnyState {
			return fmt.Errorf("transition from %q on %s targets the wildcard state", t.From, t.Kind)
		}
		if _, ok := d.states[t.To]; !ok {
			return fmt.Errorf("transition to undefined state %q", t.To)
		}
	}

	return nil
}

// Build creates a Machine from the definition
func (d *Definition) Build(name string, opts ...MachineOption) (*Machine, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition for %s: %w", name, err)
	}

	m := &Machine{
		name:       name,
		definition: d,
		byState:    make(map[StateID][]*Transition),
	}
	for i := range d.transitions {
		t := &d.transitions[i]
		if t.From == AnyState {
			m.wildcard = append(m.wildcard, t)
			continue
		}
		m.byState[t.From] = append(m.byState[t.From], t)
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}

	return m, nil
}

// MustBuild is Build for package-level wiring where a bad table is a bug
func (d *Definition) MustBuild(name string, opts ...MachineOption) *Machine {
	m, err := d.Build(name, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (d *Definition) initialState() StateID {
	if d.initialFunc != nil {
		return d.initialFunc()
	}
	return d.initial
}
