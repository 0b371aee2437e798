package es

import (
	"fmt"
	"sync"
)

// Kind identifies the type of a domain event
type Kind uint16

// Reserved event kinds. Robot packages allocate their own kinds starting at
// FirstUserKind.
const (
	NoEvent Kind = iota
	Init
	Timeout
	Error
	FirstUserKind Kind = 16
)

// Event is an immutable (kind, parameter) pair passed between services
type Event struct {
	Kind  Kind
	Param uint16
}

// None is the value returned by Run when an event was consumed
var None = Event{Kind: NoEvent}

// Is reports whether the event has the given kind
func (e Event) Is(k Kind) bool {
	return e.Kind == k
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d)", e.Kind, e.Param)
}

// Lifecycle is a protocol pseudo-event. It is a distinct type from Event so
// it can never be posted to a queue or reach a during handler.
type Lifecycle uint8

const (
	Entry Lifecycle = iota + 1
	EntryHistory
	Exit
)

func (l Lifecycle) String() string {
	switch l {
	case Entry:
		return "entry"
	case EntryHistory:
		return "entry-history"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("lifecycle(%d)", uint8(l))
	}
}

var (
	kindMu    sync.RWMutex
	kindNames = map[Kind]string{
		NoEvent: "no-event",
		Init:    "init",
		Timeout: "timeout",
		Error:   "error",
	}
)

// RegisterKind names a domain event kind for logs and for parsing remote
// commands. Registering a reserved kind or a duplicate name panics.
func RegisterKind(k Kind, name string) Kind {
	kindMu.Lock()
	defer kindMu.Unlock()
	if k < FirstUserKind {
		panic(fmt.Sprintf("es: kind %d is reserved", k))
	}
	for other, n := range kindNames {
		if n == name && other != k {
			panic(fmt.Sprintf("es: kind name %q already registered for %d", name, other))
		}
	}
	kindNames[k] = name
	return k
}

// KindByName looks up a registered kind
func KindByName(name string) (Kind, bool) {
	kindMu.RLock()
	defer kindMu.RUnlock()
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return NoEvent, false
}

func (k Kind) String() string {
	kindMu.RLock()
	name, ok := kindNames[k]
	kindMu.RUnlock()
	if ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}
