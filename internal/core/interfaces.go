package core

import (
	"robot-service/internal/es"
	"robot-service/internal/hardware"
	"robot-service/internal/messaging"
)

// MessagingClient defines the interface for Redis messaging operations needed by RobotSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// State publishing
	PublishSession(session, robot string) error
	PublishLifecycle(state string) error
	PublishServiceState(service, path string) error
	PublishMessage(text string) error

	// Faults
	ReportFaultPresent(code int, description string) error
	ReportFaultAbsent(code int) error

	// Radio link
	SendFrame(frame []byte) error
}

// HardwareIO defines the interface for digital I/O needed by RobotSystem
type HardwareIO interface {
	Initialize() error
	Cleanup()

	ReadDigitalInput(channel string) (bool, error)
	WriteDigitalOutput(channel string, value bool) error
	SetInitialValue(name string, value bool)
	RegisterInputCallback(channel string, callback hardware.InputCallback)
}

// MotorDriver drives the wheel motors
type MotorDriver interface {
	Init() error
	Drive(left, right int) error
	Stop() error
	Cleanup()
}

// Robot registers its services, timers, interrupt lines and sensors
type Robot interface {
	Name() string
	Register(fw *es.Framework) error
}

// radioReceiver takes raw frames from the radio link
type radioReceiver interface {
	Receive(frame []byte)
}
