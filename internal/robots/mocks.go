package robots

import (
	"fmt"
	"sync"
)

// MockInputs is a settable input bank for tests
type MockInputs struct {
	mu     sync.Mutex
	levels map[string]bool
}

func NewMockInputs() *MockInputs {
	return &MockInputs{levels: make(map[string]bool)}
}

func (m *MockInputs) Set(channel string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[channel] = value
}

func (m *MockInputs) ReadDigitalInput(channel string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[channel], nil
}

// MockOutputs records output writes
type MockOutputs struct {
	mu     sync.Mutex
	Values map[string]bool
	Writes []string
}

func NewMockOutputs() *MockOutputs {
	return &MockOutputs{Values: make(map[string]bool)}
}

func (m *MockOutputs) WriteDigitalOutput(channel string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[channel] = value
	m.Writes = append(m.Writes, fmt.Sprintf("%s=%v", channel, value))
	return nil
}

// MockMotors records the last commanded speeds
type MockMotors struct {
	Left, Right int
	Running     bool
	Commands    int
}

func (m *MockMotors) Drive(left, right int) error {
	m.Left, m.Right = left, right
	m.Running = left != 0 || right != 0
	m.Commands++
	return nil
}

func (m *MockMotors) Stop() error {
	m.Left, m.Right = 0, 0
	m.Running = false
	m.Commands++
	return nil
}

// MockAnalog returns fixed channel readings
type MockAnalog struct {
	mu         sync.Mutex
	Channels   map[int]int
	MultiReads int
}

func NewMockAnalog() *MockAnalog {
	return &MockAnalog{Channels: make(map[int]int)}
}

func (m *MockAnalog) Set(channel, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Channels[channel] = value
}

func (m *MockAnalog) ReadAnalog(channel int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Channels[channel]
	if !ok {
		return 0, fmt.Errorf("no analog channel %d", channel)
	}
	return v, nil
}

func (m *MockAnalog) MultiRead(channels []int) ([]int, error) {
	m.mu.Lock()
	m.MultiReads++
	m.mu.Unlock()
	values := make([]int, len(channels))
	for i, ch := range channels {
		v, err := m.ReadAnalog(ch)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// MockRadio records sent frames
type MockRadio struct {
	mu   sync.Mutex
	Sent [][]byte
}

func (m *MockRadio) SendFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, append([]byte(nil), frame...))
	return nil
}

// Last returns the most recent frame, or nil
func (m *MockRadio) Last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}
