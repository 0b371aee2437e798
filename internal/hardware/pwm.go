package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"robot-service/internal/config"
	"robot-service/internal/logger"
)

// DirectionOutput sets the motor direction pins
type DirectionOutput interface {
	WriteDigitalOutput(channel string, value bool) error
}

type pwmChannel struct {
	path   string
	period int64 // ns
	duty   int64
}

// PwmMotors drives the two wheel motors through sysfs PWM channels, with the
// direction on a digital output per side
type PwmMotors struct {
	logger *logger.Logger
	root   string
	cfg    config.MotorConfig
	dir    DirectionOutput

	mu          sync.Mutex
	left, right *pwmChannel
}

func NewPwmMotors(cfg config.MotorConfig, dir DirectionOutput, l *logger.Logger) *PwmMotors {
	if l == nil {
		l = logger.Nop()
	}
	return &PwmMotors{
		logger: l.WithTag("Motors"),
		root:   PwmSysfsRoot,
		cfg:    cfg,
		dir:    dir,
	}
}

func writeSysfs(path, value string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_TRUNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, []byte(value)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Init exports and enables both channels with zero duty
func (m *PwmMotors) Init() error {
	if m.cfg.Disabled {
		m.logger.Infof("Motors disabled in config")
		return nil
	}
	if m.cfg.Period <= 0 {
		return fmt.Errorf("invalid PWM period %s", m.cfg.Period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.left, err = m.openChannel(m.cfg.Left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if m.right, err = m.openChannel(m.cfg.Right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	m.logger.Infof("Motors on pwmchip%d channels %d/%d, period %s", m.cfg.PwmChip, m.cfg.Left, m.cfg.Right, m.cfg.Period)
	return nil
}

func (m *PwmMotors) openChannel(n int) (*pwmChannel, error) {
	chipPath := filepath.Join(m.root, fmt.Sprintf("pwmchip%d", m.cfg.PwmChip))
	path := filepath.Join(chipPath, fmt.Sprintf("pwm%d", n))

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chipPath, "export"), strconv.Itoa(n)); err != nil {
			return nil, err
		}
	}

	c := &pwmChannel{path: path, period: m.cfg.Period.Nanoseconds()}
	// duty must never exceed the period, so clear it first
	if err := writeSysfs(filepath.Join(path, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(path, "period"), strconv.FormatInt(c.period, 10)); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(path, "enable"), "1"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *pwmChannel) setDuty(percent int) error {
	duty := c.period * int64(percent) / 100
	if duty == c.duty {
		return nil
	}
	if err := writeSysfs(filepath.Join(c.path, "duty_cycle"), strconv.FormatInt(duty, 10)); err != nil {
		return err
	}
	c.duty = duty
	return nil
}

func (m *PwmMotors) side(c *pwmChannel, dirPin string, speed int) error {
	if speed > 100 {
		speed = 100
	} else if speed < -100 {
		speed = -100
	}
	if dirPin != "" {
		if err := m.dir.WriteDigitalOutput(dirPin, speed < 0); err != nil {
			return err
		}
	}
	if speed < 0 {
		speed = -speed
	}
	return c.setDuty(speed)
}

// Drive sets both wheel speeds in percent; negative runs backwards
func (m *PwmMotors) Drive(left, right int) error {
	if m.cfg.Disabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.left == nil || m.right == nil {
		return fmt.Errorf("motors not initialized")
	}
	if err := m.side(m.left, m.cfg.LeftDir, left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := m.side(m.right, m.cfg.RightDir, right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	m.logger.Debugf("Drive %d/%d", left, right)
	return nil
}

func (m *PwmMotors) Stop() error {
	return m.Drive(0, 0)
}

func (m *PwmMotors) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range []*pwmChannel{m.left, m.right} {
		if c == nil {
			continue
		}
		if err := c.setDuty(0); err != nil {
			m.logger.Warnf("Failed to zero %s: %v", c.path, err)
		}
		if err := writeSysfs(filepath.Join(c.path, "enable"), "0"); err != nil {
			m.logger.Warnf("Failed to disable %s: %v", c.path, err)
		}
	}
	m.left, m.right = nil, nil
}
