// Package robots holds the driver interfaces the robot machines are written
// against. The Linux implementations live in internal/hardware; tests use
// the mocks in this package.
package robots

// Inputs reads the last sampled level of a digital input
type Inputs interface {
	ReadDigitalInput(channel string) (bool, error)
}

// Outputs drives digital outputs
type Outputs interface {
	WriteDigitalOutput(channel string, value bool) error
}

// Motors drives the two wheel motors. Speeds are percent, -100..100.
type Motors interface {
	Drive(left, right int) error
	Stop() error
}

// Analog reads converter channels
type Analog interface {
	ReadAnalog(channel int) (int, error)
	MultiRead(channels []int) ([]int, error)
}

// Radio sends raw frames to the paired controller
type Radio interface {
	SendFrame(frame []byte) error
}

// Drivers bundles the collaborators a robot may use. Robots ignore the
// fields they don't need.
type Drivers struct {
	Inputs  Inputs
	Outputs Outputs
	Motors  Motors
	Analog  Analog
	Radio   Radio
}

// Schedule maps a service's default priority and queue size to the values
// actually used, so deployments can override them from config
type Schedule func(name string, priority uint8, queueSize int) (uint8, int)

// DefaultSchedule keeps the defaults
func DefaultSchedule(_ string, priority uint8, queueSize int) (uint8, int) {
	return priority, queueSize
}
