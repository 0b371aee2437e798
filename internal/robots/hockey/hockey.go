// Package hockey is the puck-shooting robot. One service runs a three level
// machine:
//
//	play:     waiting -> playing{strategy} -> finished
//	strategy: offense{offense} <-> defense
//	offense:  reload{linefollow} -> shoot
//
// Which side the robot starts on, and whether it starts by shooting or by
// reloading, is decided when the machine is entered. Returning to offense
// after defending resumes where the robot left off.
package hockey

import (
	"time"

	"robot-service/internal/es"
	"robot-service/internal/logger"
	"robot-service/internal/robots"
)

type Config struct {
	Team        string
	MaxBalls    int
	ShotTime    time.Duration
	DefenseTime time.Duration
	Schedule    robots.Schedule
}

type Robot struct {
	cfg     Config
	drivers robots.Drivers
	logger  *logger.Logger
	fw      *es.Framework

	play       *es.Machine
	strategy   *es.Machine
	offense    *es.Machine
	linefollow *es.Machine

	switchLine es.LineID

	balls    int
	shots    int
	lastTape es.Kind
}

func New(cfg Config, drivers robots.Drivers, l *logger.Logger) *Robot {
	if cfg.Schedule == nil {
		cfg.Schedule = robots.DefaultSchedule
	}
	if cfg.Team == "" {
		cfg.Team = TeamRed
	}
	if cfg.MaxBalls <= 0 {
		cfg.MaxBalls = 3
	}
	if cfg.ShotTime <= 0 {
		cfg.ShotTime = 200 * time.Millisecond
	}
	if cfg.DefenseTime <= 0 {
		cfg.DefenseTime = time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Robot{
		cfg:     cfg,
		drivers: drivers,
		logger:  l,
		balls:   cfg.MaxBalls,
	}
}

func (r *Robot) Name() string { return "hockey" }

// NumBalls returns the balls left in the magazine
func (r *Robot) NumBalls() int {
	return r.balls
}

// TeamColor returns the configured team
func (r *Robot) TeamColor() string {
	return r.cfg.Team
}

// Shots returns how many shots were fired this game
func (r *Robot) Shots() int {
	return r.shots
}

// Register builds the machine tree bottom-up and wires the service, timers,
// limit switch line and tape sensor
func (r *Robot) Register(fw *es.Framework) error {
	r.fw = fw
	l := r.logger.WithTag(ServicePlay)

	var err error
	if r.linefollow, err = r.lineFollowDefinition().Build("linefollow", es.WithLogger(l)); err != nil {
		return err
	}
	if r.offense, err = r.offenseDefinition().Build("offense", es.WithLogger(l)); err != nil {
		return err
	}
	if r.strategy, err = r.strategyDefinition().Build("strategy", es.WithLogger(l)); err != nil {
		return err
	}
	if r.play, err = r.playDefinition().Build(ServicePlay, es.WithLogger(l)); err != nil {
		return err
	}
	r.play.OnStateChange(func(from, to es.StateID) {
		l.Infof("Game state %s -> %s", from, to)
	})

	prio, queue := r.cfg.Schedule(ServicePlay, 1, 16)
	if _, err := fw.Register(ServicePlay, prio, queue, r.play); err != nil {
		return err
	}
	for _, id := range []es.TimerID{TimerShot, TimerDefense} {
		if err := fw.BindTimer(id, ServicePlay); err != nil {
			return err
		}
	}

	r.switchLine, err = fw.Interrupts().Line(InputLimitSwitch, r.onLimitSwitch)
	if err != nil {
		return err
	}
	return fw.AddSensor(ServicePlay, es.SensorFunc(r.checkTape))
}

func (r *Robot) onLimitSwitch() {
	hit, err := r.drivers.Inputs.ReadDigitalInput(InputLimitSwitch)
	if err != nil {
		r.logger.Warnf("Failed to read limit switch: %v", err)
		return
	}
	if hit {
		r.fw.Post(ServicePlay, es.Event{Kind: SwitchHit})
	}
}

var tapeChannels = []int{ChannelTapeLeft, ChannelTapeCenter, ChannelTapeRight}

// checkTape reports a change in where the tape is under the sensor bar
func (r *Robot) checkTape() (es.Event, bool) {
	values, err := r.drivers.Analog.MultiRead(tapeChannels)
	if err != nil || len(values) != len(tapeChannels) {
		return es.None, false
	}
	var on [3]bool
	for i, v := range values {
		on[i] = v > TapeThreshold
	}

	var kind es.Kind
	switch {
	case on[1]:
		kind = TapeCentered
	case on[0]:
		kind = TapeLeft
	case on[2]:
		kind = TapeRight
	default:
		kind = TapeLost
	}
	if kind == r.lastTape {
		return es.None, false
	}
	r.lastTape = kind
	return es.Event{Kind: kind}, true
}

func (r *Robot) drive(left, right int) {
	if err := r.drivers.Motors.Drive(left, right); err != nil {
		r.logger.Warnf("Failed to drive motors: %v", err)
	}
}

func (r *Robot) stop(c *es.Context) error {
	return r.drivers.Motors.Stop()
}

func (r *Robot) playDefinition() *es.Definition {
	return es.NewDefinition().
		State(stateWaiting).
		State(statePlaying,
			es.WithChildren(r.strategy),
			es.WithOnEnter(func(c *es.Context) error {
				r.shots = 0
				return r.drivers.Outputs.WriteDigitalOutput(OutputLED, true)
			}),
			es.WithOnExit(func(c *es.Context) error {
				return r.drivers.Outputs.WriteDigitalOutput(OutputLED, false)
			}),
			es.WithDuring(func(c *es.Context, ev es.Event) es.Event {
				if ev.Is(ShotDone) {
					r.shots++
					c.Logger.Infof("Shot %d fired, %d balls left", r.shots, r.balls)
					return es.None
				}
				return ev
			}),
		).
		State(stateFinished, es.WithOnEnter(r.stop)).
		Transition(stateWaiting, GameStart, statePlaying, es.Consume()).
		Transition(statePlaying, GameOver, stateFinished, es.Consume()).
		Transition(stateFinished, GameStart, statePlaying, es.Consume()).
		Initial(stateWaiting)
}

func (r *Robot) strategyDefinition() *es.Definition {
	return es.NewDefinition().
		State(stateOffense, es.WithChildren(r.offense)).
		State(stateDefense,
			es.WithOnEnter(func(c *es.Context) error {
				r.drive(speedBack, speedBack)
				return r.fw.Timers().StartTimer(TimerDefense, r.cfg.DefenseTime)
			}),
			es.WithOnExit(func(c *es.Context) error {
				if err := r.fw.Timers().StopTimer(TimerDefense); err != nil {
					return err
				}
				return r.drivers.Motors.Stop()
			}),
		).
		Transition(stateOffense, Defend, stateDefense, es.Consume()).
		Transition(stateDefense, Attack, stateOffense, es.WithHistory(), es.Consume()).
		Internal(stateDefense, es.Timeout,
			es.WithParam(uint16(TimerDefense)),
			es.WithAction(func(c *es.Context, ev es.Event) { r.drive(0, 0) }),
			es.Consume(),
		).
		// face-off: red takes it
		InitialFunc(func() es.StateID {
			if r.cfg.Team == TeamRed {
				return stateOffense
			}
			return stateDefense
		})
}

func (r *Robot) offenseDefinition() *es.Definition {
	return es.NewDefinition().
		State(stateReload, es.WithChildren(r.linefollow)).
		State(stateShoot,
			es.WithOnEnter(func(c *es.Context) error {
				if err := r.drivers.Outputs.WriteDigitalOutput(OutputShooter, true); err != nil {
					return err
				}
				return r.fw.Timers().StartTimer(TimerShot, r.cfg.ShotTime)
			}),
			es.WithOnExit(func(c *es.Context) error {
				return r.drivers.Outputs.WriteDigitalOutput(OutputShooter, false)
			}),
		).
		Transition(stateReload, ReloadDone, stateShoot,
			es.WithAction(func(c *es.Context, ev es.Event) { r.balls = r.cfg.MaxBalls }),
			es.Consume(),
		).
		// fire again: exit retracts the shooter, entry fires it
		Transition(stateShoot, es.Timeout, stateShoot,
			es.WithParam(uint16(TimerShot)),
			es.WithGuard(func(c *es.Context, ev es.Event) bool { return r.balls > 1 }),
			es.WithAction(func(c *es.Context, ev es.Event) { r.balls-- }),
			es.RemapTo(ShotDone),
		).
		Transition(stateShoot, es.Timeout, stateReload,
			es.WithParam(uint16(TimerShot)),
			es.WithAction(func(c *es.Context, ev es.Event) { r.balls = 0 }),
			es.RemapTo(ShotDone),
		).
		InitialFunc(func() es.StateID {
			if r.balls > 0 {
				return stateShoot
			}
			return stateReload
		})
}

func (r *Robot) lineFollowDefinition() *es.Definition {
	steer := func(left, right int) es.TransitionOption {
		return es.WithAction(func(c *es.Context, ev es.Event) { r.drive(left, right) })
	}
	return es.NewDefinition().
		State(stateSeeking,
			es.WithOnEnter(func(c *es.Context) error {
				r.drive(speedSeek, -speedSeek)
				return nil
			}),
			es.WithOnExit(r.stop),
		).
		State(stateFollowing,
			es.WithOnEnter(func(c *es.Context) error {
				r.drive(speedCruise, speedCruise)
				return nil
			}),
			es.WithOnExit(r.stop),
		).
		State(stateDocked, es.WithOnEnter(r.stop)).
		Transition(stateSeeking, TapeCentered, stateFollowing, es.Consume()).
		Transition(stateSeeking, TapeLeft, stateFollowing, es.Consume()).
		Transition(stateSeeking, TapeRight, stateFollowing, es.Consume()).
		Transition(stateSeeking, SwitchHit, stateDocked, es.RemapTo(ReloadDone)).
		Internal(stateFollowing, TapeLeft, steer(speedTurn, speedCruise), es.Consume()).
		Internal(stateFollowing, TapeRight, steer(speedCruise, speedTurn), es.Consume()).
		Internal(stateFollowing, TapeCentered, steer(speedCruise, speedCruise), es.Consume()).
		Transition(stateFollowing, TapeLost, stateSeeking, es.Consume()).
		Transition(stateFollowing, SwitchHit, stateDocked, es.RemapTo(ReloadDone)).
		Initial(stateSeeking)
}
