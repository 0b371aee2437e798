package es

// Transition is one row of a machine's transition table
type Transition struct {
	From StateID // Source state (or AnyState)
	Kind Kind    // Triggering event kind
	To   StateID // Target state, ignored for internal transitions

	// Internal transitions run the action only: no exit, no entry, no state
	// change. A transition with To == From and Internal unset is a
	// self-transition and runs exit then entry.
	Internal bool

	// History enters the target with EntryHistory so its children resume
	History bool

	// Consume returns NoEvent to the caller instead of the matched event
	Consume bool

	// Remap replaces the kind of the event returned to the caller
	Remap Kind

	Guard  func(c *Context, ev Event) bool // Optional: must return true to take transition
	Action func(c *Context, ev Event)      // Optional: runs between exit and entry
}

// AnyState matches any state in transition rules
const AnyState StateID = "*"

// TransitionOption is a functional option for configuring a Transition
type TransitionOption func(*Transition)

// WithGuard adds a guard condition. Several guards must all pass.
func WithGuard(fn func(*Context, Event) bool) TransitionOption {
	return func(t *Transition) {
		prev := t.Guard
		if prev == nil {
			t.Guard = fn
			return
		}
		t.Guard = func(c *Context, ev Event) bool {
			return prev(c, ev) && fn(c, ev)
		}
	}
}

// WithParam guards the transition on the event parameter, the usual way of
// ignoring timeouts from somebody else's timer.
func WithParam(param uint16) TransitionOption {
	return WithGuard(func(_ *Context, ev Event) bool {
		return ev.Param == param
	})
}

// WithAction sets an action to execute during the transition
func WithAction(fn func(*Context, Event)) TransitionOption {
	return func(t *Transition) {
		t.Action = fn
	}
}

// Consume marks the event as handled at this level
func Consume() TransitionOption {
	return func(t *Transition) {
		t.Consume = true
	}
}

// RemapTo hands a different event kind (same parameter) to the caller
func RemapTo(k Kind) TransitionOption {
	return func(t *Transition) {
		t.Remap = k
	}
}

// WithHistory enters the target state with history
func WithHistory() TransitionOption {
	return func(t *Transition) {
		t.History = true
	}
}

// AsInternal turns a rule whose target equals its source into an internal
// transition. Some tables name the current state as target but never mean
// to leave it; this keeps that choice explicit per rule.
func AsInternal() TransitionOption {
	return func(t *Transition) {
		t.Internal = true
	}
}

func (t *Transition) selfTransition() bool {
	return !t.Internal && t.From == t.To
}

// result computes the event handed back to the caller
func (t *Transition) result(ev Event) Event {
	if t.Consume {
		return None
	}
	if t.Remap != NoEvent {
		return Event{Kind: t.Remap, Param: ev.Param}
	}
	return ev
}
