package morse

import "robot-service/internal/es"

const kindBase = es.FirstUserKind + 32

// Morse decoder events
var (
	ButtonDown   = es.RegisterKind(kindBase+0, "button-down")
	ButtonUp     = es.RegisterKind(kindBase+1, "button-up")
	DBButtonDown = es.RegisterKind(kindBase+2, "db-button-down")
	DBButtonUp   = es.RegisterKind(kindBase+3, "db-button-up")
	RisingEdge   = es.RegisterKind(kindBase+4, "rising-edge")
	FallingEdge  = es.RegisterKind(kindBase+5, "falling-edge")
	CalCompleted = es.RegisterKind(kindBase+6, "cal-completed")
	DotDetected  = es.RegisterKind(kindBase+7, "dot-detected")
	DashDetected = es.RegisterKind(kindBase+8, "dash-detected")
	EOCDetected  = es.RegisterKind(kindBase+9, "eoc-detected")
	EOWDetected  = es.RegisterKind(kindBase+10, "eow-detected")
	BadSpace     = es.RegisterKind(kindBase+11, "bad-space")
	BadPulse     = es.RegisterKind(kindBase+12, "bad-pulse")
)

// Service, list and I/O names
const (
	ServiceButton   = "button"
	ServiceElements = "morse"
	ServiceDecoder  = "decoder"

	// Debounced button edges go to both the element recogniser and the
	// decoder
	ListButton = "button-listeners"
	// Character and word boundaries go to the recogniser itself and the
	// decoder
	ListElements = "element-listeners"

	InputButton = "button"
	InputMorse  = "morse_in"
	OutputLED   = "led"

	TimerDebounce es.TimerID = 0
)

// Button debouncer states
const (
	stateDebouncing es.StateID = "debouncing"
	stateReady      es.StateID = "ready"
)

// Element recogniser states
const (
	stateCalWaitRise    es.StateID = "cal-wait-rise"
	stateCalWaitFall    es.StateID = "cal-wait-fall"
	stateEOCWaitRise    es.StateID = "eoc-wait-rise"
	stateEOCWaitFall    es.StateID = "eoc-wait-fall"
	stateDecodeWaitRise es.StateID = "decode-wait-rise"
	stateDecodeWaitFall es.StateID = "decode-wait-fall"
)

const stateDecoding es.StateID = "decoding"
