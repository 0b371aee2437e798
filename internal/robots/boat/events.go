package boat

import "robot-service/internal/es"

// Boat events
var (
	PairRequest = es.RegisterKind(es.FirstUserKind+64, "pair-request")
	Command     = es.RegisterKind(es.FirstUserKind+65, "command")
)

// Error parameters posted with es.Error
const (
	BadChecksum uint16 = iota + 1
	BadFrame
)

const (
	ServiceShip = "ship"

	OutputLED = "led"

	TimerPair    es.TimerID = 0
	TimerLink    es.TimerID = 1
	TimerRecover es.TimerID = 2
)

// Ship (top level)
const (
	stateUnpaired   es.StateID = "unpaired"
	statePairing    es.StateID = "pairing"
	statePaired     es.StateID = "paired"
	stateRecovering es.StateID = "recovering"
)

// Drive
const (
	stateIdle    es.StateID = "idle"
	stateDriving es.StateID = "driving"
)

const maxSpeed = 100
