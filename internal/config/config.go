package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Robot kinds
const (
	RobotHockey = "hockey"
	RobotMorse  = "morse"
	RobotBoat   = "boat"
)

// Pin locates a GPIO line
type Pin struct {
	Chip      int           `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low,omitempty"`
	Debounce  time.Duration `yaml:"debounce,omitempty"`
}

// ServiceConfig overrides a service's scheduling parameters
type ServiceConfig struct {
	Priority  *uint8 `yaml:"priority,omitempty"`
	QueueSize int    `yaml:"queue_size,omitempty"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MotorConfig maps the two drive motors onto sysfs PWM channels. Direction
// is set through the named digital outputs.
type MotorConfig struct {
	PwmChip  int           `yaml:"pwm_chip"`
	Left     int           `yaml:"left"`
	Right    int           `yaml:"right"`
	Period   time.Duration `yaml:"period"`
	LeftDir  string        `yaml:"left_dir,omitempty"`
	RightDir string        `yaml:"right_dir,omitempty"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

type ADCConfig struct {
	Device string `yaml:"device"`
}

type HockeyConfig struct {
	Team     string `yaml:"team"`
	MaxBalls int    `yaml:"max_balls"`
}

type MorseConfig struct {
	// Button sample period for the debouncer
	Debounce time.Duration `yaml:"debounce"`
}

type BoatConfig struct {
	Address     uint16        `yaml:"address"`
	PairTimeout time.Duration `yaml:"pair_timeout"`
	LinkTimeout time.Duration `yaml:"link_timeout"`
	RecoverTime time.Duration `yaml:"recover_time"`
}

// TracingConfig turns on dispatch spans. Spans are written as JSON to
// Output, or to stderr when it is empty.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output,omitempty"`
}

type Config struct {
	Robot      string                   `yaml:"robot"`
	TickPeriod time.Duration            `yaml:"tick_period"`
	Redis      RedisConfig              `yaml:"redis"`
	Services   map[string]ServiceConfig `yaml:"services,omitempty"`
	Inputs     map[string]Pin           `yaml:"inputs,omitempty"`
	Outputs    map[string]Pin           `yaml:"outputs,omitempty"`
	Motors     MotorConfig              `yaml:"motors"`
	ADC        ADCConfig                `yaml:"adc"`
	Hockey     HockeyConfig             `yaml:"hockey"`
	Morse      MorseConfig              `yaml:"morse"`
	Boat       BoatConfig               `yaml:"boat"`
	Tracing    TracingConfig            `yaml:"tracing"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Robot:      RobotMorse,
		TickPeriod: time.Millisecond,
		Redis: RedisConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    6379,
		},
		Services: map[string]ServiceConfig{},
		Inputs: map[string]Pin{
			"button":       {Chip: 0, Line: 17, ActiveLow: true, Debounce: 5 * time.Millisecond},
			"limit_switch": {Chip: 0, Line: 27, ActiveLow: true},
			"morse_in":     {Chip: 0, Line: 22},
		},
		Outputs: map[string]Pin{
			"left_dir":  {Chip: 0, Line: 5},
			"right_dir": {Chip: 0, Line: 6},
			"shooter":   {Chip: 0, Line: 13},
			"led":       {Chip: 0, Line: 26},
		},
		Motors: MotorConfig{
			PwmChip:  0,
			Left:     0,
			Right:    1,
			Period:   50 * time.Microsecond,
			LeftDir:  "left_dir",
			RightDir: "right_dir",
		},
		ADC: ADCConfig{Device: "iio:device0"},
		Hockey: HockeyConfig{
			Team:     "red",
			MaxBalls: 3,
		},
		Morse: MorseConfig{Debounce: 5 * time.Millisecond},
		Boat: BoatConfig{
			Address:     0x2181,
			PairTimeout: time.Second,
			LinkTimeout: 3 * time.Second,
			RecoverTime: 500 * time.Millisecond,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
// The result is not validated; callers apply their overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the runtime cannot work with
func (c *Config) Validate() error {
	switch c.Robot {
	case RobotHockey, RobotMorse, RobotBoat:
	default:
		return fmt.Errorf("unknown robot %q", c.Robot)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive, got %s", c.TickPeriod)
	}
	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		return fmt.Errorf("invalid redis port %d", c.Redis.Port)
	}
	for name, s := range c.Services {
		if s.QueueSize < 0 {
			return fmt.Errorf("service %s: negative queue_size", name)
		}
	}
	if c.Robot == RobotHockey && c.Hockey.MaxBalls <= 0 {
		return fmt.Errorf("hockey max_balls must be positive")
	}
	return nil
}

// Service returns the scheduling parameters for a service, falling back to
// the given defaults where nothing is configured
func (c *Config) Service(name string, priority uint8, queueSize int) (uint8, int) {
	s, ok := c.Services[name]
	if !ok {
		return priority, queueSize
	}
	if s.Priority != nil {
		priority = *s.Priority
	}
	if s.QueueSize > 0 {
		queueSize = s.QueueSize
	}
	return priority, queueSize
}

// RedisAddr returns host:port
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
