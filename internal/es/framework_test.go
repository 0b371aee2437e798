package es

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// sink is a one-state machine that records every event it is given
type sink struct {
	*Machine
	got []Event
}

func newSink(t *testing.T, name string) *sink {
	t.Helper()
	s := &sink{}
	s.Machine = NewDefinition().
		State(stateA, WithDuring(func(c *Context, ev Event) Event {
			s.got = append(s.got, ev)
			return None
		})).
		Initial(stateA).
		MustBuild(name)
	return s
}

func (s *sink) kinds(k Kind) []Event {
	var out []Event
	for _, ev := range s.got {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func newTestFramework(t *testing.T, queueSize int, names ...string) (*Framework, map[string]*sink) {
	t.Helper()
	f := New()
	sinks := make(map[string]*sink)
	for i, name := range names {
		s := newSink(t, name)
		if _, err := f.Register(name, uint8(i), queueSize, s); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		sinks[name] = s
	}
	return f, sinks
}

// drain runs passes until nothing is dispatched
func drain(f *Framework) {
	for f.Step(context.Background()) > 0 {
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := New()
	if _, err := f.Register("a", 1, 4, newSink(t, "a")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := f.Register("a", 2, 4, newSink(t, "a")); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := f.Register("b", 1, 4, newSink(t, "b")); !errors.Is(err, ErrDuplicatePrio) {
		t.Errorf("expected ErrDuplicatePrio, got %v", err)
	}
	if _, err := f.Register("c", 3, 0, newSink(t, "c")); !errors.Is(err, ErrInvalidQueueLen) {
		t.Errorf("expected ErrInvalidQueueLen, got %v", err)
	}
}

func TestInitStartsServicesAndPostsInit(t *testing.T) {
	f, sinks := newTestFramework(t, 4, "a", "b")
	if err := f.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !sinks["a"].Active() || !sinks["b"].Active() {
		t.Fatal("services not started")
	}
	drain(f)
	for name, s := range sinks {
		if len(s.kinds(Init)) != 1 {
			t.Errorf("%s got %d init events", name, len(s.kinds(Init)))
		}
	}
	if err := f.Init(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second init: expected ErrAlreadyStarted, got %v", err)
	}
}

func TestInitReportsFatalStartFailure(t *testing.T) {
	f := New()
	bad := NewDefinition().State(stateA).InitialFunc(func() StateID { return "missing" }).MustBuild("bad")
	if _, err := f.Register("bad", 0, 4, bad); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.Init(); err == nil {
		t.Error("expected init error")
	}
}

// Services are visited in ascending priority and get one event per pass
func TestStepOneEventPerServicePerPass(t *testing.T) {
	var order []string
	f := New()
	for _, reg := range []struct {
		name string
		prio uint8
	}{{"low", 9}, {"high", 1}, {"mid", 5}} {
		name := reg.name
		m := NewDefinition().
			State(stateA, WithDuring(func(c *Context, ev Event) Event {
				order = append(order, name)
				return None
			})).
			Initial(stateA).
			MustBuild(name)
		if _, err := f.Register(name, reg.prio, 8, m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Init events
	drain(f)
	order = nil

	f.Post("low", Event{Kind: evPoke})
	f.Post("low", Event{Kind: evPoke})
	f.Post("high", Event{Kind: evPoke})
	f.Post("mid", Event{Kind: evPoke})

	if n := f.Step(context.Background()); n != 3 {
		t.Fatalf("first pass dispatched %d, want 3", n)
	}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", order, want)
		}
	}
	if n := f.Step(context.Background()); n != 1 {
		t.Errorf("second pass dispatched %d, want 1", n)
	}
}

func TestQueueFIFOPerService(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := uint16(0); i < 5; i++ {
		f.Post("a", Event{Kind: evPoke, Param: i})
	}
	drain(f)
	got := sinks["a"].kinds(evPoke)
	for i, ev := range got {
		if ev.Param != uint16(i) {
			t.Fatalf("out of order delivery: %v", got)
		}
	}
}

func TestDistributionListWithFullQueue(t *testing.T) {
	f, sinks := newTestFramework(t, 1, "s1", "s2")
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Init events occupy both queues; empty s2 only
	f.Service("s2").queue.Clear()

	if f.PostToList(Event{Kind: evPoke}, "s1", "s2") {
		t.Error("PostToList should report the failed post")
	}
	if f.Post("s1", Event{Kind: evPoke}) {
		t.Error("post to full s1 should return false")
	}
	if f.Service("s1").Dropped() != 2 {
		t.Errorf("expected 2 drops on s1, got %d", f.Service("s1").Dropped())
	}
	drain(f)
	if len(sinks["s2"].kinds(evPoke)) != 1 {
		t.Errorf("s2 did not receive the event")
	}
}

func TestNamedListsAndPostToAll(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "button", "morse", "decode")
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := f.DefineList("button-listeners", "morse", "decode"); err != nil {
		t.Fatalf("define list: %v", err)
	}
	if err := f.DefineList("broken", "nobody"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}

	if !f.PostList("button-listeners", Event{Kind: evPoke, Param: 1}) {
		t.Error("list post failed")
	}
	if !f.PostToAll(Event{Kind: evBack}) {
		t.Error("post to all failed")
	}
	if f.PostList("missing", Event{Kind: evPoke}) {
		t.Error("post to unknown list should fail")
	}
	drain(f)

	if len(sinks["button"].kinds(evPoke)) != 0 {
		t.Error("button is not on the list")
	}
	for _, name := range []string{"morse", "decode"} {
		if len(sinks[name].kinds(evPoke)) != 1 {
			t.Errorf("%s missed list post", name)
		}
	}
	for name, s := range sinks {
		if len(s.kinds(evBack)) != 1 {
			t.Errorf("%s missed broadcast", name)
		}
	}
}

func TestInterruptLinesDrainedByScheduler(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	line, err := f.Interrupts().Line("limit-switch", func() {
		f.Post("a", Event{Kind: evPoke})
	})
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if _, err := f.Interrupts().Line("limit-switch", func() {}); err == nil {
		t.Error("duplicate line accepted")
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Interrupts().Raise(line)
		}()
	}
	wg.Wait()

	if f.Interrupts().Pending(line) != 3 {
		t.Fatalf("expected 3 pending, got %d", f.Interrupts().Pending(line))
	}
	drain(f)
	if len(sinks["a"].kinds(evPoke)) != 3 {
		t.Errorf("expected 3 events, got %d", len(sinks["a"].kinds(evPoke)))
	}
	if f.Interrupts().Pending(line) != 0 {
		t.Error("line not drained")
	}
}

func TestPostAsyncFromOtherGoroutine(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	done := make(chan struct{})
	go func() {
		f.PostAsync("a", Event{Kind: evPoke, Param: 42})
		close(done)
	}()
	<-done
	drain(f)
	got := sinks["a"].kinds(evPoke)
	if len(got) != 1 || got[0].Param != 42 {
		t.Errorf("async post not delivered: %v", got)
	}
}

func TestSensorsPolledEachPass(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	polls := 0
	err := f.AddSensor("a", SensorFunc(func() (Event, bool) {
		polls++
		return Event{Kind: evPoke, Param: uint16(polls)}, polls == 2
	}))
	if err != nil {
		t.Fatalf("add sensor: %v", err)
	}
	if err := f.AddSensor("nobody", SensorFunc(func() (Event, bool) { return None, false })); !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	f.Step(context.Background())
	f.Step(context.Background())
	f.Step(context.Background())
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	got := sinks["a"].kinds(evPoke)
	if len(got) != 1 || got[0].Param != 2 {
		t.Errorf("expected the second poll's event, got %v", got)
	}
}

func TestPauseHoldsEvents(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	drain(f)
	f.Pause()
	f.Post("a", Event{Kind: evPoke})
	if n := f.Step(context.Background()); n != 0 {
		t.Errorf("dispatched %d while paused", n)
	}
	f.Resume()
	drain(f)
	if len(sinks["a"].kinds(evPoke)) != 1 {
		t.Error("event lost across pause")
	}
}

func TestDispatchObserver(t *testing.T) {
	var seen []StateID
	f := New(WithDispatchObserver(func(s *Service, ev Event, before, after StateID) {
		seen = append(seen, before, after)
	}))
	m := NewDefinition().
		State(stateA).
		State(stateB).
		Transition(stateA, evGoToB, stateB).
		Initial(stateA).
		MustBuild("obs")
	if _, err := f.Register("obs", 0, 4, m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	drain(f)
	seen = nil
	f.Post("obs", Event{Kind: evGoToB})
	drain(f)
	if len(seen) != 2 || seen[0] != stateA || seen[1] != stateB {
		t.Errorf("observer saw %v", seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f, sinks := newTestFramework(t, 8, "a")
	if err := f.Timers().Bind(0, f.Service("a")); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := f.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := f.Timers().InitTimer(0, 2); err != nil {
		t.Fatalf("init timer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sinks["a"].kinds(Timeout)) != 1 {
		t.Errorf("expected the timer to fire once under Run, got %d", len(sinks["a"].kinds(Timeout)))
	}
}

func TestRunBeforeInit(t *testing.T) {
	f := New()
	if err := f.Run(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}
