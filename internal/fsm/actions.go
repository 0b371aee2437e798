package fsm

import "github.com/librescoot/librefsm"

// Actions defines the interface for lifecycle state machine actions.
// RobotSystem implements this interface.
type Actions interface {
	// State entry actions
	EnterRunning(c *librefsm.Context) error
	EnterPaused(c *librefsm.Context) error
	EnterHalted(c *librefsm.Context) error

	// Guards
	HasServices(c *librefsm.Context) bool // At least one service registered

	// Transition actions
	OnInitFailed(c *librefsm.Context) error
}
