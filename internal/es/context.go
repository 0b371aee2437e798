package es

import "robot-service/internal/logger"

// Context is passed to all state callbacks
type Context struct {
	Machine *Machine
	State   StateID // State whose callback is running
	From    StateID // Previous state on entry ("" when started by a parent)
	To      StateID // Next state on exit ("" when stopped by a parent)
	History bool    // Entry is a history re-entry
	Event   Event   // Triggering event, None during Start and Exit
	Logger  *logger.Logger
}

// CurrentState returns the machine's current state
func (c *Context) CurrentState() StateID {
	return c.Machine.Query()
}
