package es

import (
	"robot-service/internal/logger"
)

// Runner is the top-level machine of a service. *Machine implements it.
type Runner interface {
	Name() string
	Start(how Lifecycle)
	Run(ev Event) Event
	Query() StateID
}

// Service is a scheduled unit: one machine, a priority and an event queue.
// Lower priority numbers are dispatched first within a pass.
type Service struct {
	name     string
	priority uint8
	queue    *Queue
	machine  Runner
	logger   *logger.Logger
	dropped  uint32
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Priority() uint8 { return s.priority }
func (s *Service) Machine() Runner { return s.machine }

// Pending returns the number of queued events
func (s *Service) Pending() int {
	return s.queue.Len()
}

// Dropped returns how many posts failed on a full queue
func (s *Service) Dropped() uint32 {
	return s.dropped
}

// Post enqueues an event. It returns false, and drops the event, when the
// queue is full. Only call it from the scheduler goroutine; other goroutines
// use Framework.PostAsync or an interrupt line.
func (s *Service) Post(ev Event) bool {
	if ev.Kind == NoEvent {
		return true
	}
	if !s.queue.Push(ev) {
		s.dropped++
		s.logger.Warnf("queue full, dropping %s", ev)
		return false
	}
	return true
}

// Run hands an event straight to the machine
func (s *Service) Run(ev Event) Event {
	return s.machine.Run(ev)
}

// Query returns the machine's current state
func (s *Service) Query() StateID {
	return s.machine.Query()
}

// Path returns the active configuration when the machine can describe it
func (s *Service) Path() string {
	if p, ok := s.machine.(interface{ Path() string }); ok {
		return p.Path()
	}
	return string(s.machine.Query())
}

func (s *Service) start() {
	s.machine.Start(Entry)
}
