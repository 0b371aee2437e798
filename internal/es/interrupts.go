package es

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// LineID identifies an interrupt line
type LineID int

type irqLine struct {
	name    string
	pending atomic.Uint32
	handler func()
}

type asyncPost struct {
	service string
	event   Event
}

// Interrupts decouples asynchronous sources (GPIO edge handlers, the tick
// goroutine, IPC listeners) from the service queues. Sources only bump an
// atomic counter or append to a locked inbox; the scheduler drains both at
// the start of every pass and does the actual enqueueing.
type Interrupts struct {
	mu     sync.Mutex
	lines  []*irqLine
	byName map[string]LineID

	inboxMu sync.Mutex
	inbox   []asyncPost

	wake chan struct{}
}

func newInterrupts() *Interrupts {
	return &Interrupts{
		byName: make(map[string]LineID),
		wake:   make(chan struct{}, 1),
	}
}

// Line registers a named line. The handler runs on the scheduler goroutine
// once per Raise. Register lines before the scheduler starts.
func (i *Interrupts) Line(name string, handler func()) (LineID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.byName[name]; ok {
		return 0, fmt.Errorf("interrupt line %q already registered", name)
	}
	id := LineID(len(i.lines))
	i.lines = append(i.lines, &irqLine{name: name, handler: handler})
	i.byName[name] = id
	return id, nil
}

// Lookup finds a line by name
func (i *Interrupts) Lookup(name string) (LineID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.byName[name]
	return id, ok
}

// Raise flags a line. Safe from any goroutine.
func (i *Interrupts) Raise(id LineID) {
	i.mu.Lock()
	if int(id) < 0 || int(id) >= len(i.lines) {
		i.mu.Unlock()
		return
	}
	line := i.lines[id]
	i.mu.Unlock()
	line.pending.Add(1)
	i.signal()
}

// Pending returns the count of raised but undrained flags on a line
func (i *Interrupts) Pending(id LineID) uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if int(id) < 0 || int(id) >= len(i.lines) {
		return 0
	}
	return i.lines[id].pending.Load()
}

func (i *Interrupts) post(service string, ev Event) {
	i.inboxMu.Lock()
	i.inbox = append(i.inbox, asyncPost{service: service, event: ev})
	i.inboxMu.Unlock()
	i.signal()
}

func (i *Interrupts) signal() {
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// drainLines runs handlers for everything raised so far. Each line's count
// is snapshotted first so a source raising continuously cannot starve the
// dispatch phase.
func (i *Interrupts) drainLines() int {
	i.mu.Lock()
	lines := i.lines
	i.mu.Unlock()

	handled := 0
	for _, line := range lines {
		pending := line.pending.Swap(0)
		for pending > 0 {
			line.handler()
			pending--
			handled++
		}
	}
	return handled
}

func (i *Interrupts) takeInbox() []asyncPost {
	i.inboxMu.Lock()
	defer i.inboxMu.Unlock()
	posts := i.inbox
	i.inbox = nil
	return posts
}
