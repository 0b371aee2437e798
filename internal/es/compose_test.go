package es

import (
	"reflect"
	"testing"
)

// spyChild records what a parent hands it and answers with a fixed mapping
type spyChild struct {
	name   string
	log    *[]string
	remap  map[Kind]Event
	events []Event
	active bool
}

func (s *spyChild) Name() string { return s.name }

func (s *spyChild) Start(how Lifecycle) {
	s.active = true
	*s.log = append(*s.log, s.name+".start("+how.String()+")")
}

func (s *spyChild) Run(ev Event) Event {
	s.events = append(s.events, ev)
	*s.log = append(*s.log, s.name+".run")
	if r, ok := s.remap[ev.Kind]; ok {
		return r
	}
	return ev
}

func (s *spyChild) Exit() {
	s.active = false
	*s.log = append(*s.log, s.name+".exit")
}

func TestCompositionDelegation(t *testing.T) {
	var log []string
	child := &spyChild{
		name:  "C",
		log:   &log,
		remap: map[Kind]Event{evPoke: {Kind: evRemap, Param: 9}},
	}

	var seenByParent []Event
	m := NewDefinition().
		State(stateParent,
			WithChildren(child),
			WithDuring(func(c *Context, ev Event) Event {
				seenByParent = append(seenByParent, ev)
				return ev
			}),
		).
		State(stateOther).
		Transition(stateParent, evPoke, stateOther). // must not match: child remapped
		Transition(stateParent, evRemap, stateOther, Consume()).
		Initial(stateParent).
		MustBuild("parent")

	m.Start(Entry)
	ret := m.Run(Event{Kind: evPoke, Param: 1})

	if len(child.events) != 1 || child.events[0] != (Event{Kind: evPoke, Param: 1}) {
		t.Fatalf("child did not get the original event: %v", child.events)
	}
	if !reflect.DeepEqual(seenByParent, []Event{{Kind: evRemap, Param: 9}}) {
		t.Errorf("parent during saw %v, want the remapped event", seenByParent)
	}
	if m.Query() != stateOther {
		t.Errorf("transition table not evaluated on remapped event, in %s", m.Query())
	}
	if ret != None {
		t.Errorf("expected consumed, got %s", ret)
	}
}

func TestCompositionLifecycleOrder(t *testing.T) {
	var log []string
	c1 := &spyChild{name: "C1", log: &log}
	c2 := &spyChild{name: "C2", log: &log}

	m := NewDefinition().
		State(stateParent,
			WithChildren(c1, c2),
			WithOnEnter(func(c *Context) error { log = append(log, "P.entry"); return nil }),
			WithOnExit(func(c *Context) error { log = append(log, "P.exit"); return nil }),
		).
		State(stateOther).
		Transition(stateParent, evLeave, stateOther).
		Transition(stateOther, evBack, stateParent, WithHistory()).
		Initial(stateParent).
		MustBuild("parent")

	m.Start(Entry)
	m.Run(Event{Kind: evPoke})
	m.Run(Event{Kind: evLeave})
	m.Run(Event{Kind: evBack})

	want := []string{
		"P.entry", "C1.start(entry)", "C2.start(entry)",
		"C1.run", "C2.run",
		"C1.run", "C2.run", "C1.exit", "C2.exit", "P.exit",
		"P.entry", "C1.start(entry-history)", "C2.start(entry-history)",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("lifecycle order\n got: %v\nwant: %v", log, want)
	}
}

func TestSiblingsAllRunWhenFirstConsumes(t *testing.T) {
	var log []string
	c1 := &spyChild{name: "C1", log: &log, remap: map[Kind]Event{evPoke: None}}
	c2 := &spyChild{name: "C2", log: &log, remap: map[Kind]Event{evPoke: {Kind: evRemap}}}

	m := NewDefinition().
		State(stateParent, WithChildren(c1, c2)).
		Initial(stateParent).
		MustBuild("siblings")
	m.Start(Entry)

	ret := m.Run(Event{Kind: evPoke})
	if len(c2.events) != 1 {
		t.Errorf("second child skipped after first consumed")
	}
	if ret != None {
		t.Errorf("first child's result should win, got %s", ret)
	}
}

// Real nested machines: grandparent sees a child's remapped event
func TestNestedMachinesBubbleRemappedEvent(t *testing.T) {
	var log []string
	leaf := NewDefinition().
		State(stateA, WithOnExit(func(c *Context) error { log = append(log, "leaf.exit"); return nil })).
		State(stateB).
		Transition(stateA, evPoke, stateB, RemapTo(evLeave)).
		Initial(stateA).
		MustBuild("leaf")

	mid := NewDefinition().
		State(stateParent, WithChildren(leaf),
			WithOnExit(func(c *Context) error { log = append(log, "mid.exit"); return nil })).
		Initial(stateParent).
		MustBuild("mid")

	top := NewDefinition().
		State(stateA, WithChildren(mid)).
		State(stateC).
		Transition(stateA, evLeave, stateC, Consume()).
		Initial(stateA).
		MustBuild("top")

	top.Start(Entry)
	if got := top.Path(); got != "a/parent/a" {
		t.Errorf("path = %q", got)
	}

	top.Run(Event{Kind: evPoke})
	if top.Query() != stateC {
		t.Fatalf("top did not act on the grandchild's remapped event, in %s", top.Query())
	}
	if leaf.Active() || mid.Active() {
		t.Errorf("children still active after parent left: leaf=%v mid=%v", leaf.Active(), mid.Active())
	}
	if leaf.Query() != stateB {
		t.Errorf("leaf should remember %s for history, has %s", stateB, leaf.Query())
	}
	want := []string{"leaf.exit", "mid.exit"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("exit order %v, want %v", log, want)
	}
}
