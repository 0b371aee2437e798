package fsm

import "github.com/librescoot/librefsm"

// Controller lifecycle states
const (
	StateInit    librefsm.StateID = "init"
	StateRunning librefsm.StateID = "running"
	StatePaused  librefsm.StateID = "paused"
	StateHalted  librefsm.StateID = "halted"
)

// Controller lifecycle events
const (
	// Scheduler start-up
	EvInitialized librefsm.EventID = "initialized"
	EvInitFailed  librefsm.EventID = "init-failed"

	// Remote control (from Redis)
	EvPause  librefsm.EventID = "pause"
	EvResume librefsm.EventID = "resume"
	EvStop   librefsm.EventID = "stop"

	// Scheduler loop returned on its own
	EvSchedulerExited librefsm.EventID = "scheduler-exited"
)
