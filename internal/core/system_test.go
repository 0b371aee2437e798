package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robot-service/internal/config"
	"robot-service/internal/es"
	"robot-service/internal/fsm"
	"robot-service/internal/hardware"
	"robot-service/internal/messaging"
	"robot-service/internal/robots"
	"robot-service/internal/robots/boat"
)

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks

	session   string
	robot     string
	lifecycle []string
	states    map[string]string
	history   map[string][]string
	messages  []string
	faults    []int
	cleared   []int
	frames    [][]byte
	closed    bool
}

func newMockMessagingClient() *mockMessagingClient {
	return &mockMessagingClient{
		states:  make(map[string]string),
		history: make(map[string][]string),
	}
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) Connect() error                             { return nil }
func (m *mockMessagingClient) StartListening() error                      { return nil }

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockMessagingClient) PublishSession(session, robot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session, m.robot = session, robot
	return nil
}

func (m *mockMessagingClient) PublishLifecycle(state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifecycle = append(m.lifecycle, state)
	return nil
}

func (m *mockMessagingClient) PublishServiceState(service, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[service] = path
	m.history[service] = append(m.history[service], path)
	return nil
}

func (m *mockMessagingClient) PublishMessage(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return nil
}

func (m *mockMessagingClient) ReportFaultPresent(code int, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, code)
	return nil
}

func (m *mockMessagingClient) ReportFaultAbsent(code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, code)
	return nil
}

func (m *mockMessagingClient) SendFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockMessagingClient) state(service string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[service]
}

// seen reports whether service ever published path
func (m *mockMessagingClient) seen(service, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.history[service] {
		if p == path {
			return true
		}
	}
	return false
}

// Mock HardwareIO
type mockHardwareIO struct {
	mu             sync.Mutex
	digitalOutputs map[string]bool
	digitalInputs  map[string]bool
	initialValues  map[string]bool
	inputCallbacks map[string]hardware.InputCallback
	initErr        error
	cleanedUp      bool
}

func newMockHardwareIO() *mockHardwareIO {
	return &mockHardwareIO{
		digitalOutputs: make(map[string]bool),
		digitalInputs:  make(map[string]bool),
		initialValues:  make(map[string]bool),
		inputCallbacks: make(map[string]hardware.InputCallback),
	}
}

func (m *mockHardwareIO) Initialize() error { return m.initErr }

func (m *mockHardwareIO) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
}

func (m *mockHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.digitalInputs[channel], nil
}

func (m *mockHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digitalOutputs[channel] = value
	return nil
}

func (m *mockHardwareIO) SetInitialValue(name string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialValues[name] = value
}

func (m *mockHardwareIO) RegisterInputCallback(channel string, callback hardware.InputCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputCallbacks[channel] = callback
}

func (m *mockHardwareIO) setInput(channel string, value bool) {
	m.mu.Lock()
	m.digitalInputs[channel] = value
	cb := m.inputCallbacks[channel]
	m.mu.Unlock()
	if cb != nil {
		cb(channel, value)
	}
}

// Mock MotorDriver
type mockMotors struct {
	mu          sync.Mutex
	left, right int
	stops       int
	cleanedUp   bool
}

func (m *mockMotors) Init() error { return nil }

func (m *mockMotors) Drive(left, right int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left, m.right = left, right
	return nil
}

func (m *mockMotors) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left, m.right = 0, 0
	m.stops++
	return nil
}

func (m *mockMotors) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
}

type testSystem struct {
	*RobotSystem
	redis  *mockMessagingClient
	io     *mockHardwareIO
	motors *mockMotors
}

func newTestSystem(t *testing.T, robot string) *testSystem {
	t.Helper()
	cfg := config.Default()
	cfg.Robot = robot
	ts := &testSystem{
		redis:  newMockMessagingClient(),
		io:     newMockHardwareIO(),
		motors: &mockMotors{},
	}
	ts.RobotSystem = NewRobotSystem(cfg, ts.io, ts.motors, robots.NewMockAnalog(), ts.redis, nil)
	return ts
}

func startTestSystem(t *testing.T, robot string) *testSystem {
	t.Helper()
	ts := newTestSystem(t, robot)
	if err := ts.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(ts.Shutdown)
	return ts
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRobotSystemOffline(t *testing.T) {
	s := NewRobotSystem(config.Default(), newMockHardwareIO(), &mockMotors{}, nil, nil, nil)
	if _, ok := s.redis.(offlineMessaging); !ok {
		t.Errorf("expected offline messaging, got %T", s.redis)
	}
	if s.Lifecycle() != fsm.StateInit {
		t.Errorf("lifecycle = %s before start", s.Lifecycle())
	}
}

func TestStartPublishesSessionAndStates(t *testing.T) {
	ts := startTestSystem(t, config.RobotMorse)

	if ts.Lifecycle() != fsm.StateRunning {
		t.Fatalf("lifecycle = %s, want %s", ts.Lifecycle(), fsm.StateRunning)
	}
	ts.redis.mu.Lock()
	if ts.redis.session == "" || ts.redis.session != ts.Session() || ts.redis.robot != config.RobotMorse {
		t.Errorf("session %q robot %q", ts.redis.session, ts.redis.robot)
	}
	if len(ts.redis.lifecycle) == 0 || ts.redis.lifecycle[len(ts.redis.lifecycle)-1] != string(fsm.StateRunning) {
		t.Errorf("lifecycle published %v", ts.redis.lifecycle)
	}
	ts.redis.mu.Unlock()

	for _, name := range []string{"button", "morse", "decoder"} {
		if ts.redis.state(name) == "" {
			t.Errorf("no state published for %s", name)
		}
	}

	ts.io.mu.Lock()
	_, button := ts.io.inputCallbacks["button"]
	_, limit := ts.io.inputCallbacks["limit_switch"]
	ts.io.mu.Unlock()
	if !button {
		t.Error("button input not wired to its interrupt line")
	}
	if limit {
		t.Error("input without an interrupt line was wired")
	}
}

func TestShutdown(t *testing.T) {
	ts := newTestSystem(t, config.RobotMorse)
	if err := ts.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ts.Shutdown()

	if ts.Lifecycle() != fsm.StateHalted {
		t.Errorf("lifecycle = %s after shutdown", ts.Lifecycle())
	}
	if !ts.io.cleanedUp || !ts.motors.cleanedUp || !ts.redis.closed {
		t.Error("resources not released")
	}
}

func TestStartErrors(t *testing.T) {
	ts := newTestSystem(t, config.RobotMorse)
	ts.io.initErr = errors.New("no gpiochip0")
	if err := ts.Start(context.Background()); err == nil {
		t.Error("expected hardware init error")
	}

	ts = newTestSystem(t, "drone")
	if err := ts.Start(context.Background()); err == nil {
		t.Error("expected unknown robot error")
	}
}

func TestRemoteEventRequest(t *testing.T) {
	ts := startTestSystem(t, config.RobotHockey)

	if err := ts.handleEventRequest("play", "game-start", 0); err != nil {
		t.Fatalf("handleEventRequest failed: %v", err)
	}
	eventually(t, func() bool {
		return ts.redis.seen("play", "playing/offense/shoot")
	}, "play to reach shoot")

	if err := ts.handleEventRequest("play", "warp-drive", 0); err == nil {
		t.Error("unknown kind accepted")
	}
	if err := ts.handleEventRequest("goalie", "game-start", 0); err == nil {
		t.Error("unknown service accepted")
	}
}

func TestControlPauseResume(t *testing.T) {
	ts := startTestSystem(t, config.RobotHockey)

	if err := ts.handleControlRequest("pause"); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if ts.Lifecycle() != fsm.StatePaused || !ts.Framework().Paused() {
		t.Fatalf("lifecycle %s, paused %v", ts.Lifecycle(), ts.Framework().Paused())
	}

	// held while paused, delivered on resume
	ts.handleEventRequest("play", "game-start", 0)
	time.Sleep(20 * time.Millisecond)
	if ts.redis.seen("play", "playing/offense/shoot") {
		t.Fatal("event dispatched while paused")
	}

	if err := ts.handleControlRequest("resume"); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	eventually(t, func() bool {
		return ts.redis.seen("play", "playing/offense/shoot")
	}, "held event after resume")

	if err := ts.handleControlRequest("reboot"); err == nil {
		t.Error("invalid control command accepted")
	}
}

func TestControlStopHalts(t *testing.T) {
	ts := startTestSystem(t, config.RobotHockey)

	if err := ts.handleControlRequest("stop"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if ts.Lifecycle() != fsm.StateHalted {
		t.Fatalf("lifecycle = %s", ts.Lifecycle())
	}
	select {
	case <-ts.runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler still running after stop")
	}
}

func TestInputEdgeRaisesInterrupt(t *testing.T) {
	ts := startTestSystem(t, config.RobotMorse)

	ts.io.setInput("button", true)
	eventually(t, func() bool {
		return ts.redis.seen("button", "debouncing")
	}, "button debouncer to see the press")
}

func TestRadioFrameRouting(t *testing.T) {
	ts := startTestSystem(t, config.RobotBoat)

	frame := boat.EncodeFrame(boat.Packet{API: 0x01, Source: 0x1111})
	if err := ts.handleRadioFrame(frame); err != nil {
		t.Fatalf("handleRadioFrame failed: %v", err)
	}
	eventually(t, func() bool {
		return ts.redis.seen(boat.ServiceShip, "pairing")
	}, "ship to start pairing")

	ts.redis.mu.Lock()
	acks := len(ts.redis.frames)
	ts.redis.mu.Unlock()
	if acks != 1 {
		t.Errorf("sent %d frames, want one ack", acks)
	}

	morse := startTestSystem(t, config.RobotMorse)
	if err := morse.handleRadioFrame(frame); err == nil {
		t.Error("morse robot accepted a radio frame")
	}
}

func TestQueueOverflowReportsFault(t *testing.T) {
	ts := newTestSystem(t, config.RobotMorse)
	fw := es.New()
	counter := es.NewDefinition().State("idle").Initial("idle").MustBuild("counter")
	svc, err := fw.Register("counter", 0, 1, counter)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := fw.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// Init is still queued, so this one is dropped
	fw.Post("counter", es.Event{Kind: es.Timeout})

	ts.onDispatch(svc, es.Event{Kind: es.Init}, "idle", "idle")
	// nothing new dropped but the queue still holds Init
	ts.onDispatch(svc, es.Event{Kind: es.Init}, "idle", "idle")

	// once the queue is empty the fault clears
	fw.Step(context.Background())
	ts.onDispatch(svc, es.Event{Kind: es.Init}, "idle", "idle")
	// and only once
	ts.onDispatch(svc, es.Event{Kind: es.Init}, "idle", "idle")

	close(ts.updates)
	ts.wg.Add(1)
	ts.publisher()

	if len(ts.redis.faults) != 1 || ts.redis.faults[0] != FaultQueueOverflow {
		t.Errorf("faults = %v", ts.redis.faults)
	}
	if len(ts.redis.cleared) != 1 || ts.redis.cleared[0] != FaultQueueOverflow {
		t.Errorf("cleared = %v", ts.redis.cleared)
	}
}

func TestDecodedTextPublished(t *testing.T) {
	ts := newTestSystem(t, config.RobotMorse)
	ts.onChar('S')
	ts.onChar('O')
	close(ts.updates)
	ts.wg.Add(1)
	ts.publisher()

	if len(ts.redis.messages) != 2 || ts.redis.messages[1] != "SO" {
		t.Errorf("messages = %v", ts.redis.messages)
	}
}
