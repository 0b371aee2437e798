package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"robot-service/internal/config"
	"robot-service/internal/logger"
)

// InputCallback is called from the GPIO event goroutine on every edge
type InputCallback func(channel string, value bool) error

type LinuxHardwareIO struct {
	logger         *logger.Logger
	inputs         map[string]config.Pin
	outputs        map[string]config.Pin
	chips          map[int]*gpiocdev.Chip
	lines          map[string]*gpiocdev.Line
	inputLines     map[string]*gpiocdev.Line
	levels         map[string]bool
	inputCallbacks map[string]InputCallback
	initialValues  map[string]bool
	mu             sync.RWMutex
}

func NewLinuxHardwareIO(inputs, outputs map[string]config.Pin, l *logger.Logger) *LinuxHardwareIO {
	if l == nil {
		l = logger.Nop()
	}
	return &LinuxHardwareIO{
		logger:         l.WithTag("HardwareIO"),
		inputs:         inputs,
		outputs:        outputs,
		chips:          make(map[int]*gpiocdev.Chip),
		lines:          make(map[string]*gpiocdev.Line),
		inputLines:     make(map[string]*gpiocdev.Line),
		levels:         make(map[string]bool),
		inputCallbacks: make(map[string]InputCallback),
		initialValues:  make(map[string]bool),
	}
}

func (io *LinuxHardwareIO) SetInitialValue(name string, value bool) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.initialValues[name] = value
}

func (io *LinuxHardwareIO) chip(n int) (*gpiocdev.Chip, error) {
	if c, ok := io.chips[n]; ok {
		return c, nil
	}
	c, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", n))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %d: %w", n, err)
	}
	io.chips[n] = c
	return c, nil
}

// Initialize requests every configured line. Outputs start at their initial
// value, inputs are watched on both edges.
func (io *LinuxHardwareIO) Initialize() error {
	io.logger.Infof("Initializing hardware IO")

	for name, pin := range io.outputs {
		chip, err := io.chip(pin.Chip)
		if err != nil {
			return err
		}

		io.mu.RLock()
		val := 0
		if io.initialValues[name] {
			val = 1
		}
		io.mu.RUnlock()

		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(val), gpiocdev.WithConsumer(Consumer)}
		if pin.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin.Line, opts...)
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d for %s: %w", pin.Line, name, err)
		}
		io.mu.Lock()
		io.lines[name] = line
		io.mu.Unlock()
		io.logger.Debugf("Configured DO %s: chip=%d, line=%d", name, pin.Chip, pin.Line)
	}

	for name, pin := range io.inputs {
		chip, err := io.chip(pin.Chip)
		if err != nil {
			return err
		}

		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(io.edgeHandler(name)),
			gpiocdev.WithConsumer(Consumer),
		}
		if pin.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		if pin.Debounce > 0 {
			opts = append(opts, gpiocdev.WithDebounce(pin.Debounce))
		}
		line, err := chip.RequestLine(pin.Line, opts...)
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d for %s: %w", pin.Line, name, err)
		}

		v, err := line.Value()
		if err != nil {
			io.logger.Warnf("Failed to read initial state of %s: %v", name, err)
		}
		io.mu.Lock()
		io.inputLines[name] = line
		io.levels[name] = v == 1
		io.mu.Unlock()
		io.logger.Debugf("Configured DI %s: chip=%d, line=%d, initial=%v", name, pin.Chip, pin.Line, v == 1)
	}

	return nil
}

func (io *LinuxHardwareIO) edgeHandler(name string) gpiocdev.EventHandler {
	return func(evt gpiocdev.LineEvent) {
		io.handleEdge(name, evt.Type == gpiocdev.LineEventRisingEdge)
	}
}

func (io *LinuxHardwareIO) handleEdge(channel string, value bool) {
	io.mu.Lock()
	io.levels[channel] = value
	callback, exists := io.inputCallbacks[channel]
	io.mu.Unlock()

	io.logger.Debugf("Edge on %s: %v", channel, value)
	if !exists {
		return
	}
	if err := callback(channel, value); err != nil {
		io.logger.Warnf("Error in callback for %s: %v", channel, err)
	}
}

// ReadDigitalInput returns the level seen at the last edge
func (io *LinuxHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	io.mu.RLock()
	defer io.mu.RUnlock()

	if _, ok := io.inputs[channel]; !ok {
		return false, fmt.Errorf("unknown input channel: %s", channel)
	}
	return io.levels[channel], nil
}

func (io *LinuxHardwareIO) RegisterInputCallback(channel string, callback InputCallback) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.inputCallbacks[channel] = callback
	io.logger.Debugf("Registered callback for channel: %s", channel)
}

func (io *LinuxHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	io.mu.RLock()
	line, ok := io.lines[channel]
	io.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}

	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", channel, value, err)
	}

	io.logger.Debugf("Set DO %s=%v", channel, value)
	return nil
}

func (io *LinuxHardwareIO) Cleanup() {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up hardware resources")

	for name, line := range io.inputLines {
		line.Close()
		delete(io.inputLines, name)
	}
	for name, line := range io.lines {
		line.Close()
		delete(io.lines, name)
	}
	for id, chip := range io.chips {
		chip.Close()
		delete(io.chips, id)
	}

	io.logger.Infof("Hardware cleanup complete")
}
