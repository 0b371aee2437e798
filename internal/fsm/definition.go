package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the controller lifecycle definition. It supervises
// the scheduler from outside: pausing gates dispatch, halting stops it.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateInit).
		State(StateRunning,
			librefsm.WithOnEnter(actions.EnterRunning),
		).
		State(StatePaused,
			librefsm.WithOnEnter(actions.EnterPaused),
		).
		State(StateHalted,
			librefsm.WithOnEnter(actions.EnterHalted),
		).

		// From Init
		Transition(StateInit, EvInitialized, StateRunning,
			librefsm.WithGuard(actions.HasServices),
		).
		Transition(StateInit, EvInitialized, StateHalted).
		Transition(StateInit, EvInitFailed, StateHalted,
			librefsm.WithAction(actions.OnInitFailed),
		).

		// Pause and resume
		Transition(StateRunning, EvPause, StatePaused).
		Transition(StatePaused, EvResume, StateRunning).

		// Halting is final
		Transition(StateRunning, EvStop, StateHalted).
		Transition(StatePaused, EvStop, StateHalted).
		Transition(StateRunning, EvSchedulerExited, StateHalted).
		Transition(StatePaused, EvSchedulerExited, StateHalted).
		Initial(StateInit)
}
