// Package boat is the radio controlled boat. The ship machine pairs with one
// controller and hands its commands to the drive machine:
//
//	ship:  unpaired -> pairing -> paired{drive} <-> recovering
//	drive: idle <-> driving
//
// Frames arrive on another goroutine through Receive. A corrupt frame while
// paired stops the boat and asks the controller to resend; the next good
// command restores the link and drives at its thrust.
package boat

import (
	"errors"
	"sync/atomic"
	"time"

	"robot-service/internal/es"
	"robot-service/internal/logger"
	"robot-service/internal/robots"
)

type Config struct {
	Address     uint16
	PairTimeout time.Duration
	LinkTimeout time.Duration
	RecoverTime time.Duration
	Schedule    robots.Schedule
}

type Robot struct {
	cfg     Config
	drivers robots.Drivers
	logger  *logger.Logger
	fw      *es.Framework

	ship  *es.Machine
	drive *es.Machine

	// written on the scheduler, read by Receive
	controller atomic.Uint32

	thrust, rudder int8
	linkErrors     int
	dropped        atomic.Uint32
}

func New(cfg Config, drivers robots.Drivers, l *logger.Logger) *Robot {
	if cfg.Schedule == nil {
		cfg.Schedule = robots.DefaultSchedule
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = time.Second
	}
	if cfg.LinkTimeout <= 0 {
		cfg.LinkTimeout = 3 * time.Second
	}
	if cfg.RecoverTime <= 0 {
		cfg.RecoverTime = 500 * time.Millisecond
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Robot{cfg: cfg, drivers: drivers, logger: l}
}

func (r *Robot) Name() string { return "boat" }

// Controller returns the paired controller address, zero when unpaired
func (r *Robot) Controller() uint16 {
	return uint16(r.controller.Load())
}

// LinkErrors returns how many corrupt frames were seen while paired
func (r *Robot) LinkErrors() int {
	return r.linkErrors
}

// Dropped returns how many frames Receive discarded without posting
func (r *Robot) Dropped() uint32 {
	return r.dropped.Load()
}

func (r *Robot) Register(fw *es.Framework) error {
	r.fw = fw
	l := r.logger.WithTag(ServiceShip)

	var err error
	if r.drive, err = r.driveDefinition().Build("drive", es.WithLogger(l)); err != nil {
		return err
	}
	if r.ship, err = r.shipDefinition().Build(ServiceShip, es.WithLogger(l)); err != nil {
		return err
	}
	r.ship.OnStateChange(func(from, to es.StateID) {
		l.Infof("Link state %s -> %s", from, to)
	})

	prio, queue := r.cfg.Schedule(ServiceShip, 1, 16)
	if _, err := fw.Register(ServiceShip, prio, queue, r.ship); err != nil {
		return err
	}
	for _, id := range []es.TimerID{TimerPair, TimerLink, TimerRecover} {
		if err := fw.BindTimer(id, ServiceShip); err != nil {
			return err
		}
	}
	return nil
}

// Receive takes one raw frame from the radio. Safe from any goroutine.
func (r *Robot) Receive(frame []byte) {
	p, err := DecodeFrame(frame)
	if err != nil {
		r.logger.Debugf("Rejected frame: %v", err)
		param := BadFrame
		if errors.Is(err, ErrBadChecksum) {
			param = BadChecksum
		}
		r.fw.PostAsync(ServiceShip, es.Event{Kind: es.Error, Param: param})
		return
	}

	if paired := r.controller.Load(); paired != 0 && uint32(p.Source) != paired {
		r.dropped.Add(1)
		return
	}

	switch p.API {
	case apiPairRequest:
		r.fw.PostAsync(ServiceShip, es.Event{Kind: PairRequest, Param: p.Source})
	case apiCommand:
		if len(p.Data) < 2 {
			r.fw.PostAsync(ServiceShip, es.Event{Kind: es.Error, Param: BadFrame})
			return
		}
		r.fw.PostAsync(ServiceShip, es.Event{
			Kind:  Command,
			Param: packCommand(int8(p.Data[0]), int8(p.Data[1])),
		})
	default:
		r.dropped.Add(1)
	}
}

func (r *Robot) reply(api byte) {
	to := r.Controller()
	frame := EncodeFrame(Packet{API: api, Source: r.cfg.Address, Data: []byte{byte(to >> 8), byte(to)}})
	if err := r.drivers.Radio.SendFrame(frame); err != nil {
		r.logger.Warnf("Failed to send frame %#02x: %v", api, err)
	}
}

func (r *Robot) store(c *es.Context, ev es.Event) {
	r.thrust, r.rudder = unpackCommand(ev.Param)
}

// resume stores the command that ends recovery and queues it again for the
// drive machine, which only starts once paired is entered
func (r *Robot) resume(c *es.Context, ev es.Event) {
	r.store(c, ev)
	if !r.fw.Post(ServiceShip, ev) {
		c.Logger.Warnf("Failed to re-post %s after recovery", ev)
	}
}

func (r *Robot) startTimer(id es.TimerID, d time.Duration) func(*es.Context) error {
	return func(c *es.Context) error {
		return r.fw.Timers().StartTimer(id, d)
	}
}

func (r *Robot) shipDefinition() *es.Definition {
	return es.NewDefinition().
		State(stateUnpaired,
			es.WithOnEnter(func(c *es.Context) error {
				r.controller.Store(0)
				return r.drivers.Outputs.WriteDigitalOutput(OutputLED, false)
			}),
		).
		State(statePairing,
			es.WithOnEnter(r.startTimer(TimerPair, r.cfg.PairTimeout)),
			es.WithOnExit(func(c *es.Context) error {
				return r.fw.Timers().StopTimer(TimerPair)
			}),
		).
		State(statePaired,
			es.WithChildren(r.drive),
			es.WithOnEnter(func(c *es.Context) error {
				if err := r.drivers.Outputs.WriteDigitalOutput(OutputLED, true); err != nil {
					return err
				}
				return r.fw.Timers().StartTimer(TimerLink, r.cfg.LinkTimeout)
			}),
			es.WithOnExit(func(c *es.Context) error {
				return r.fw.Timers().StopTimer(TimerLink)
			}),
			// every command keeps the link alive
			es.WithDuring(func(c *es.Context, ev es.Event) es.Event {
				if ev.Is(Command) {
					if err := r.fw.Timers().StartTimer(TimerLink, r.cfg.LinkTimeout); err != nil {
						c.Logger.Warnf("Failed to restart link timer: %v", err)
					}
					return es.None
				}
				return ev
			}),
		).
		State(stateRecovering,
			es.WithOnEnter(func(c *es.Context) error {
				if err := r.drivers.Motors.Stop(); err != nil {
					return err
				}
				r.reply(apiNack)
				return r.fw.Timers().StartTimer(TimerRecover, r.cfg.RecoverTime)
			}),
			es.WithOnExit(func(c *es.Context) error {
				return r.fw.Timers().StopTimer(TimerRecover)
			}),
		).
		Transition(stateUnpaired, PairRequest, statePairing,
			es.WithAction(func(c *es.Context, ev es.Event) {
				r.controller.Store(uint32(ev.Param))
				r.reply(apiAck)
			}),
			es.Consume(),
		).
		Transition(statePairing, Command, statePaired, es.WithAction(r.store), es.Consume()).
		Transition(statePairing, es.Timeout, stateUnpaired, es.WithParam(uint16(TimerPair)), es.Consume()).
		// the controller lost our ack
		Internal(statePairing, PairRequest,
			es.WithAction(func(c *es.Context, ev es.Event) { r.reply(apiAck) }),
			es.Consume(),
		).
		Transition(statePaired, es.Timeout, stateUnpaired, es.WithParam(uint16(TimerLink)), es.Consume()).
		Transition(statePaired, es.Error, stateRecovering,
			es.WithAction(func(c *es.Context, ev es.Event) {
				r.linkErrors++
				c.Logger.Warnf("Link error %d while paired", ev.Param)
			}),
			es.Consume(),
		).
		// drive resumes in its old state; the re-posted command moves it on
		Transition(stateRecovering, Command, statePaired,
			es.WithAction(r.resume),
			es.WithHistory(),
			es.Consume(),
		).
		Transition(stateRecovering, es.Timeout, stateUnpaired, es.WithParam(uint16(TimerRecover)), es.Consume()).
		Initial(stateUnpaired)
}

// The drive machine never consumes a command so the ship can see it too
func (r *Robot) driveDefinition() *es.Definition {
	stopped := func(c *es.Context, ev es.Event) bool {
		thrust, _ := unpackCommand(ev.Param)
		return thrust == 0
	}
	moving := func(c *es.Context, ev es.Event) bool { return !stopped(c, ev) }

	return es.NewDefinition().
		State(stateIdle,
			es.WithOnEnter(func(c *es.Context) error {
				return r.drivers.Motors.Stop()
			}),
		).
		State(stateDriving,
			es.WithOnEnter(func(c *es.Context) error {
				return r.apply()
			}),
			es.WithOnExit(func(c *es.Context) error {
				return r.drivers.Motors.Stop()
			}),
		).
		Transition(stateIdle, Command, stateDriving, es.WithGuard(moving), es.WithAction(r.store)).
		Transition(stateDriving, Command, stateIdle, es.WithGuard(stopped), es.WithAction(r.store)).
		Internal(stateDriving, Command,
			es.WithAction(func(c *es.Context, ev es.Event) {
				r.store(c, ev)
				if err := r.apply(); err != nil {
					c.Logger.Warnf("Failed to drive motors: %v", err)
				}
			}),
		).
		Initial(stateIdle)
}

// apply mixes thrust and rudder into wheel speeds
func (r *Robot) apply() error {
	left := clamp(int(r.thrust) + int(r.rudder))
	right := clamp(int(r.thrust) - int(r.rudder))
	return r.drivers.Motors.Drive(left, right)
}

func clamp(v int) int {
	switch {
	case v > maxSpeed:
		return maxSpeed
	case v < -maxSpeed:
		return -maxSpeed
	}
	return v
}
