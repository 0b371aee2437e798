package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/librescoot/librefsm"
	"go.opentelemetry.io/otel"

	"robot-service/internal/config"
	"robot-service/internal/es"
	"robot-service/internal/fsm"
	"robot-service/internal/logger"
	"robot-service/internal/robots"
	"robot-service/internal/robots/boat"
	"robot-service/internal/robots/hockey"
	"robot-service/internal/robots/morse"
)

// Fault codes reported to Redis
const (
	FaultQueueOverflow = 1
	FaultInitFailed    = 2
)

const updateBuffer = 64

// update carries what the scheduler wants published; the publisher goroutine
// does the Redis round trips
type update struct {
	service string
	path    string
	dropped uint32
	drained bool
	message string
}

type RobotSystem struct {
	cfg     *config.Config
	logger  *logger.Logger
	io      HardwareIO
	motors  MotorDriver
	analog  robots.Analog
	redis   MessagingClient
	fw      *es.Framework
	robot   Robot
	radio   radioReceiver
	machine *librefsm.Machine
	session string

	// scheduler goroutine only
	lastPath    map[string]string
	lastDropped map[string]uint32
	overflowed  map[string]bool
	text        []rune

	updates   chan update
	runCancel context.CancelFunc
	runDone   chan struct{}
	started   bool
	wg        sync.WaitGroup
}

func NewRobotSystem(cfg *config.Config, io HardwareIO, motors MotorDriver, analog robots.Analog, redis MessagingClient, l *logger.Logger) *RobotSystem {
	if l == nil {
		l = logger.Nop()
	}
	if redis == nil {
		redis = offlineMessaging{}
	}
	return &RobotSystem{
		cfg:         cfg,
		logger:      l,
		io:          io,
		motors:      motors,
		analog:      analog,
		redis:       redis,
		lastPath:    make(map[string]string),
		lastDropped: make(map[string]uint32),
		overflowed:  make(map[string]bool),
		updates:     make(chan update, updateBuffer),
	}
}

// Session returns the id published for this boot
func (s *RobotSystem) Session() string {
	return s.session
}

// Framework exposes the scheduler, mainly for tests
func (s *RobotSystem) Framework() *es.Framework {
	return s.fw
}

// Lifecycle returns the supervisor state
func (s *RobotSystem) Lifecycle() librefsm.StateID {
	if s.machine == nil {
		return fsm.StateInit
	}
	return s.machine.CurrentState()
}

func (s *RobotSystem) Start(ctx context.Context) error {
	s.logger.Infof("Starting robot system (%s)", s.cfg.Robot)
	s.session = uuid.NewString()

	s.redis.SetCallbacks(s.callbacks())
	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if err := s.redis.PublishSession(s.session, s.cfg.Robot); err != nil {
		s.logger.Warnf("Failed to publish session: %v", err)
	}

	if err := s.io.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}
	if err := s.motors.Init(); err != nil {
		return fmt.Errorf("failed to initialize motors: %w", err)
	}

	s.fw = es.New(
		es.WithFrameworkLogger(s.logger.WithTag("ES")),
		es.WithTickPeriod(s.cfg.TickPeriod),
		es.WithTracer(otel.Tracer("robot-service")),
		es.WithDispatchObserver(s.onDispatch),
	)
	robot, err := s.newRobot()
	if err != nil {
		return err
	}
	if err := robot.Register(s.fw); err != nil {
		return fmt.Errorf("failed to register %s services: %w", robot.Name(), err)
	}
	s.robot = robot
	s.wireInputs()

	if err := s.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start lifecycle FSM: %w", err)
	}

	// events queue up until the supervisor says we are running
	s.fw.Pause()
	if err := s.fw.Init(); err != nil {
		s.sendEvent(fsm.EvInitFailed)
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	for _, svc := range s.fw.Services() {
		s.lastPath[svc.Name()] = svc.Path()
		if err := s.redis.PublishServiceState(svc.Name(), svc.Path()); err != nil {
			s.logger.Warnf("Failed to publish %s state: %v", svc.Name(), err)
		}
	}

	s.wg.Add(1)
	go s.publisher()

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	go s.runScheduler(runCtx)
	s.started = true

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	return s.sendEvent(fsm.EvInitialized)
}

func (s *RobotSystem) newRobot() (Robot, error) {
	drivers := robots.Drivers{
		Inputs:  s.io,
		Outputs: s.io,
		Motors:  s.motors,
		Analog:  s.analog,
		Radio:   s.redis,
	}
	switch s.cfg.Robot {
	case config.RobotHockey:
		return hockey.New(hockey.Config{
			Team:     s.cfg.Hockey.Team,
			MaxBalls: s.cfg.Hockey.MaxBalls,
			Schedule: s.cfg.Service,
		}, drivers, s.logger), nil
	case config.RobotMorse:
		return morse.New(morse.Config{
			Debounce: s.cfg.Morse.Debounce,
			Schedule: s.cfg.Service,
			OnChar:   s.onChar,
		}, drivers, s.logger), nil
	case config.RobotBoat:
		b := boat.New(boat.Config{
			Address:     s.cfg.Boat.Address,
			PairTimeout: s.cfg.Boat.PairTimeout,
			LinkTimeout: s.cfg.Boat.LinkTimeout,
			RecoverTime: s.cfg.Boat.RecoverTime,
			Schedule:    s.cfg.Service,
		}, drivers, s.logger)
		s.radio = b
		return b, nil
	default:
		return nil, fmt.Errorf("unknown robot %q", s.cfg.Robot)
	}
}

// wireInputs raises a robot's interrupt line on every edge of the input
// with the same name
func (s *RobotSystem) wireInputs() {
	irq := s.fw.Interrupts()
	for name := range s.cfg.Inputs {
		id, ok := irq.Lookup(name)
		if !ok {
			continue
		}
		s.io.RegisterInputCallback(name, func(channel string, value bool) error {
			irq.Raise(id)
			return nil
		})
		s.logger.Debugf("Input %s raises interrupt line %d", name, id)
	}
}

func (s *RobotSystem) runScheduler(ctx context.Context) {
	defer close(s.runDone)
	if err := s.fw.Run(ctx); err != nil {
		s.logger.Errorf("Scheduler failed: %v", err)
	}
	if ctx.Err() == nil {
		s.machine.Send(librefsm.Event{ID: fsm.EvSchedulerExited})
	}
}

// onDispatch runs on the scheduler goroutine after every event
func (s *RobotSystem) onDispatch(svc *es.Service, ev es.Event, before, after es.StateID) {
	name := svc.Name()
	path := svc.Path()
	dropped := svc.Dropped()
	// an overflow clears once the service has caught up with its queue
	drained := s.overflowed[name] && dropped == s.lastDropped[name] && svc.Pending() == 0
	if path == s.lastPath[name] && dropped == s.lastDropped[name] && !drained {
		return
	}

	u := update{service: name, dropped: dropped, drained: drained}
	switch {
	case drained:
		s.overflowed[name] = false
	case dropped != s.lastDropped[name]:
		s.overflowed[name] = true
	}
	if path != s.lastPath[name] {
		s.logger.Debugf("%s: %s -> %s on %s", name, s.lastPath[name], path, ev)
		u.path = path
	}
	s.lastPath[name] = path
	s.lastDropped[name] = dropped
	s.queueUpdate(u)
}

func (s *RobotSystem) onChar(r rune) {
	s.text = append(s.text, r)
	s.logger.Infof("Decoded %q", r)
	s.queueUpdate(update{message: string(s.text)})
}

func (s *RobotSystem) queueUpdate(u update) {
	select {
	case s.updates <- u:
	default:
		s.logger.Warnf("Publisher backlog full, dropping update for %q", u.service)
	}
}

func (s *RobotSystem) publisher() {
	defer s.wg.Done()
	reported := make(map[string]uint32)
	overflowing := make(map[string]bool)

	for u := range s.updates {
		if u.message != "" {
			if err := s.redis.PublishMessage(u.message); err != nil {
				s.logger.Warnf("Failed to publish message: %v", err)
			}
			continue
		}
		if u.path != "" {
			if err := s.redis.PublishServiceState(u.service, u.path); err != nil {
				s.logger.Warnf("Failed to publish %s state: %v", u.service, err)
			}
		}
		if u.dropped > reported[u.service] {
			desc := fmt.Sprintf("%s queue overflow, %d events dropped", u.service, u.dropped)
			if err := s.redis.ReportFaultPresent(FaultQueueOverflow, desc); err != nil {
				s.logger.Warnf("Failed to report fault: %v", err)
			}
			reported[u.service] = u.dropped
			overflowing[u.service] = true
		}
		if u.drained && overflowing[u.service] {
			delete(overflowing, u.service)
			if len(overflowing) == 0 {
				if err := s.redis.ReportFaultAbsent(FaultQueueOverflow); err != nil {
					s.logger.Warnf("Failed to clear fault: %v", err)
				}
			}
		}
	}
}

func (s *RobotSystem) sendEvent(ev librefsm.EventID) error {
	if err := s.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		s.logger.Errorf("Lifecycle event %s failed: %v", ev, err)
		return err
	}
	return nil
}

func (s *RobotSystem) Shutdown() {
	s.logger.Infof("Shutting down robot system")

	if s.machine != nil {
		s.sendEvent(fsm.EvStop)
		s.machine.Stop()
	}
	if s.started {
		s.runCancel()
		<-s.runDone
		close(s.updates)
		s.wg.Wait()
	}

	if err := s.motors.Stop(); err != nil {
		s.logger.Warnf("Failed to stop motors: %v", err)
	}
	s.motors.Cleanup()
	s.io.Cleanup()
	if err := s.redis.Close(); err != nil {
		s.logger.Warnf("Failed to close Redis client: %v", err)
	}
	s.logger.Infof("Shutdown complete")
}
