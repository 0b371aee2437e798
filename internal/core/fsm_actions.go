package core

import (
	"context"
	"fmt"

	"github.com/librescoot/librefsm"

	"robot-service/internal/fsm"
)

// Ensure RobotSystem implements fsm.Actions
var _ fsm.Actions = (*RobotSystem)(nil)

// initFSM builds and starts the lifecycle supervisor
func (s *RobotSystem) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(s)
	machine, err := def.Build(librefsm.WithLogger(s.logger.WithTag("Lifecycle").Slog()))
	if err != nil {
		return err
	}
	s.machine = machine

	// runs inside the FSM lock, so it must not query the machine
	s.machine.OnStateChange(func(from, to librefsm.StateID) {
		s.logger.Infof("Lifecycle transition: %s -> %s", from, to)
		if err := s.redis.PublishLifecycle(string(to)); err != nil {
			s.logger.Errorf("Failed to publish lifecycle state: %v", err)
		}
	})

	if err := s.machine.Start(ctx); err != nil {
		return err
	}
	s.logger.Infof("Lifecycle state machine started")
	return nil
}

func (s *RobotSystem) EnterRunning(c *librefsm.Context) error {
	s.fw.Resume()
	return nil
}

func (s *RobotSystem) EnterPaused(c *librefsm.Context) error {
	s.fw.Pause()
	return nil
}

func (s *RobotSystem) EnterHalted(c *librefsm.Context) error {
	s.fw.Pause()
	if s.runCancel != nil {
		s.runCancel()
	}
	return s.motors.Stop()
}

func (s *RobotSystem) HasServices(c *librefsm.Context) bool {
	return s.fw != nil && len(s.fw.Services()) > 0
}

func (s *RobotSystem) OnInitFailed(c *librefsm.Context) error {
	return s.redis.ReportFaultPresent(FaultInitFailed, fmt.Sprintf("%s services failed to start", s.cfg.Robot))
}
