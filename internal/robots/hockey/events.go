package hockey

import "robot-service/internal/es"

// Hockey events
var (
	GameStart    = es.RegisterKind(es.FirstUserKind+0, "game-start")
	GameOver     = es.RegisterKind(es.FirstUserKind+1, "game-over")
	Attack       = es.RegisterKind(es.FirstUserKind+2, "attack")
	Defend       = es.RegisterKind(es.FirstUserKind+3, "defend")
	SwitchHit    = es.RegisterKind(es.FirstUserKind+4, "switch-hit")
	TapeLeft     = es.RegisterKind(es.FirstUserKind+5, "tape-left")
	TapeCentered = es.RegisterKind(es.FirstUserKind+6, "tape-centered")
	TapeRight    = es.RegisterKind(es.FirstUserKind+7, "tape-right")
	TapeLost     = es.RegisterKind(es.FirstUserKind+8, "tape-lost")
	ReloadDone   = es.RegisterKind(es.FirstUserKind+9, "reload-done")
	ShotDone     = es.RegisterKind(es.FirstUserKind+10, "shot-done")
)

const (
	ServicePlay = "play"

	InputLimitSwitch = "limit_switch"
	OutputShooter    = "shooter"
	OutputLED        = "led"

	// Tape sensor converter channels
	ChannelTapeLeft   = 0
	ChannelTapeCenter = 1
	ChannelTapeRight  = 2

	// Readings above this are on the tape
	TapeThreshold = 500

	TimerShot    es.TimerID = 1
	TimerDefense es.TimerID = 2
)

// Team colors
const (
	TeamRed  = "red"
	TeamBlue = "blue"
)

// Play (top level)
const (
	stateWaiting  es.StateID = "waiting"
	statePlaying  es.StateID = "playing"
	stateFinished es.StateID = "finished"
)

// Strategy
const (
	stateOffense es.StateID = "offense"
	stateDefense es.StateID = "defense"
)

// Offense
const (
	stateReload es.StateID = "reload"
	stateShoot  es.StateID = "shoot"
)

// Line follower
const (
	stateSeeking   es.StateID = "seeking"
	stateFollowing es.StateID = "following"
	stateDocked    es.StateID = "docked"
)

// Motor speeds in percent
const (
	speedCruise = 60
	speedTurn   = 30
	speedSeek   = 30
	speedBack   = -40
)
