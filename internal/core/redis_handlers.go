package core

import (
	"fmt"

	"robot-service/internal/es"
	"robot-service/internal/fsm"
	"robot-service/internal/messaging"
)

func (s *RobotSystem) callbacks() messaging.Callbacks {
	return messaging.Callbacks{
		EventCallback:   s.handleEventRequest,
		ControlCallback: s.handleControlRequest,
		RadioCallback:   s.handleRadioFrame,
	}
}

// handleEventRequest posts a remote event. Runs on a listener goroutine.
func (s *RobotSystem) handleEventRequest(service, kind string, param uint16) error {
	k, ok := es.KindByName(kind)
	if !ok {
		return fmt.Errorf("unknown event kind: %s", kind)
	}
	if s.fw == nil || s.fw.Service(service) == nil {
		return fmt.Errorf("unknown service: %s", service)
	}
	s.logger.Infof("Remote event %s(%d) for %s", kind, param, service)
	s.fw.PostAsync(service, es.Event{Kind: k, Param: param})
	return nil
}

func (s *RobotSystem) handleControlRequest(command string) error {
	s.logger.Infof("Control request: %s", command)
	switch command {
	case "pause":
		return s.sendEvent(fsm.EvPause)
	case "resume":
		return s.sendEvent(fsm.EvResume)
	case "stop":
		return s.sendEvent(fsm.EvStop)
	default:
		return fmt.Errorf("invalid control command: %s", command)
	}
}

func (s *RobotSystem) handleRadioFrame(frame []byte) error {
	if s.radio == nil {
		return fmt.Errorf("%s robot has no radio link", s.cfg.Robot)
	}
	s.radio.Receive(frame)
	return nil
}

// offlineMessaging stands in when Redis is disabled in config
type offlineMessaging struct{}

func (offlineMessaging) SetCallbacks(messaging.Callbacks)               {}
func (offlineMessaging) Connect() error                                 { return nil }
func (offlineMessaging) StartListening() error                          { return nil }
func (offlineMessaging) Close() error                                   { return nil }
func (offlineMessaging) PublishSession(session, robot string) error     { return nil }
func (offlineMessaging) PublishLifecycle(state string) error            { return nil }
func (offlineMessaging) PublishServiceState(service, path string) error { return nil }
func (offlineMessaging) PublishMessage(text string) error               { return nil }
func (offlineMessaging) ReportFaultPresent(code int, desc string) error { return nil }
func (offlineMessaging) ReportFaultAbsent(code int) error               { return nil }
func (offlineMessaging) SendFrame(frame []byte) error                   { return nil }
