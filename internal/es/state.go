package es

// StateID is a unique identifier for a state within one machine
type StateID string

// State defines one state of a machine: its entry, exit and during
// behaviour plus the child machines it owns while active.
type State struct {
	ID StateID

	OnEnter func(c *Context) error
	OnExit  func(c *Context) error

	// During sees every domain event delivered while in this state, after the
	// children have had it. Its return value is what the transition table is
	// matched against.
	During func(c *Context, ev Event) Event

	Children []Child
}

// StateOption is a functional option for configuring a State
type StateOption func(*State)

// WithOnEnter sets the entry action for the state
func WithOnEnter(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnEnter = fn
	}
}

// WithOnExit sets the exit action for the state
func WithOnExit(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnExit = fn
	}
}

// WithDuring sets the during handler for the state
func WithDuring(fn func(*Context, Event) Event) StateOption {
	return func(s *State) {
		s.During = fn
	}
}

// WithChildren attaches child machines. They are started on entry, given
// every event in the order listed, and exited before the state's own exit.
func WithChildren(children ...Child) StateOption {
	return func(s *State) {
		s.Children = append(s.Children, children...)
	}
}
