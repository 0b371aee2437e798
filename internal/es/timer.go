package es

import (
	"fmt"
	"time"

	"robot-service/internal/logger"
)

// NumTimers is the size of the timer bank
const NumTimers = 16

// TimerID names one of the bank's timers
type TimerID uint8

type timerEntry struct {
	service   *Service
	remaining uint32
	running   bool
}

// TimerBank is a fixed set of software timers driven by the scheduler's tick.
// Expiry posts Timeout{Param: id} to the timer's bound service.
type TimerBank struct {
	timers [NumTimers]timerEntry
	now    uint32
	period time.Duration
	logger *logger.Logger
}

func newTimerBank(period time.Duration, l *logger.Logger) *TimerBank {
	return &TimerBank{period: period, logger: l}
}

// Bind routes a timer's expiry to a service
func (b *TimerBank) Bind(id TimerID, s *Service) error {
	if int(id) >= NumTimers {
		return fmt.Errorf("timer %d: %w", id, ErrUnknownTimer)
	}
	b.timers[id].service = s
	return nil
}

// InitTimer (re)arms a timer. A pending expiry is discarded and the count
// restarts. Zero durations are rejected.
func (b *TimerBank) InitTimer(id TimerID, ticks uint32) error {
	if int(id) >= NumTimers || b.timers[id].service == nil {
		return fmt.Errorf("timer %d: %w", id, ErrUnknownTimer)
	}
	if ticks == 0 {
		return fmt.Errorf("timer %d: %w", id, ErrZeroDuration)
	}
	t := &b.timers[id]
	t.remaining = ticks
	t.running = true
	return nil
}

// StartTimer arms a timer with a wall-clock duration rounded up to ticks
func (b *TimerBank) StartTimer(id TimerID, d time.Duration) error {
	return b.InitTimer(id, b.Ticks(d))
}

// StopTimer cancels a timer. Stopping an idle timer is a no-op.
func (b *TimerBank) StopTimer(id TimerID) error {
	if int(id) >= NumTimers {
		return fmt.Errorf("timer %d: %w", id, ErrUnknownTimer)
	}
	b.timers[id].running = false
	b.timers[id].remaining = 0
	return nil
}

// IsRunning checks if a timer is armed
func (b *TimerBank) IsRunning(id TimerID) bool {
	return int(id) < NumTimers && b.timers[id].running
}

// Remaining returns the ticks left on an armed timer
func (b *TimerBank) Remaining(id TimerID) uint32 {
	if int(id) >= NumTimers || !b.timers[id].running {
		return 0
	}
	return b.timers[id].remaining
}

// Now returns the free-running tick count
func (b *TimerBank) Now() uint32 {
	return b.now
}

// Ticks converts a duration to ticks, rounding up, minimum one
func (b *TimerBank) Ticks(d time.Duration) uint32 {
	if b.period <= 0 || d <= 0 {
		return 1
	}
	n := uint32((d + b.period - 1) / b.period)
	if n == 0 {
		n = 1
	}
	return n
}

// Tick advances every armed timer by one tick
func (b *TimerBank) Tick() {
	b.now++
	for i := range b.timers {
		t := &b.timers[i]
		if !t.running {
			continue
		}
		t.remaining--
		if t.remaining > 0 {
			continue
		}
		t.running = false
		ev := Event{Kind: Timeout, Param: uint16(i)}
		if !t.service.Post(ev) {
			b.logger.Warnf("timer %d expired but %s queue is full, dropping", i, t.service.Name())
		}
	}
}
