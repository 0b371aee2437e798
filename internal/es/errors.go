package es

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull       = errors.New("queue full")
	ErrUnknownService  = errors.New("unknown service")
	ErrUnknownTimer    = errors.New("unknown timer")
	ErrZeroDuration    = errors.New("timer duration must be greater than zero")
	ErrDuplicateName   = errors.New("duplicate service name")
	ErrDuplicatePrio   = errors.New("duplicate service priority")
	ErrAlreadyStarted  = errors.New("framework already initialized")
	ErrNotInitialized  = errors.New("framework not initialized")
	ErrInvalidQueueLen = errors.New("queue size must be greater than zero")
)

// DefectError describes a programming error in the use of a machine. It is
// raised with panic, never returned.
type DefectError struct {
	Machine string
	Op      string
	Reason  string
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("es: %s on machine %q: %s", e.Op, e.Machine, e.Reason)
}

func defect(machine, op, reason string) {
	panic(&DefectError{Machine: machine, Op: op, Reason: reason})
}
