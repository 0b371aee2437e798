// Package morse is the morse-code receiver: a debounced push button, an
// element recogniser that calibrates itself on a dot and a dash, and a
// decoder that turns dots and dashes into characters.
//
// The morse input is sampled by a polled sensor; the button edge arrives on
// an interrupt line. Debounced button presses are fanned out to the
// recogniser and the decoder through a distribution list.
package morse

import (
	"fmt"
	"strings"
	"time"

	"robot-service/internal/es"
	"robot-service/internal/logger"
	"robot-service/internal/robots"
)

// Config holds the receiver's tunables
type Config struct {
	Debounce time.Duration
	Schedule robots.Schedule
	// OnChar is told about every decoded character, including word spaces
	OnChar func(r rune)
}

// Robot owns the three morse services and the variables their machines
// share with their actions
type Robot struct {
	cfg     Config
	drivers robots.Drivers
	logger  *logger.Logger
	fw      *es.Framework

	button   *es.Machine
	elements *es.Machine
	decoder  *es.Machine

	buttonLine es.LineID

	// debouncer
	lastButton bool

	// element recogniser, times are tick stamps and wrap at 16 bits
	lastInput      bool
	timeOfLastRise uint16
	timeOfLastFall uint16
	firstDelta     uint16
	lengthOfDot    uint16

	// decoder
	buffer  []byte
	message strings.Builder
}

// New creates the receiver. Register wires it into a framework.
func New(cfg Config, drivers robots.Drivers, l *logger.Logger) *Robot {
	if cfg.Schedule == nil {
		cfg.Schedule = robots.DefaultSchedule
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Millisecond
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Robot{
		cfg:     cfg,
		drivers: drivers,
		logger:  l,
	}
}

func (r *Robot) Name() string { return "morse" }

// Register builds the machines and registers services, timers, lists, the
// button interrupt line and the morse input sensor
func (r *Robot) Register(fw *es.Framework) error {
	r.fw = fw

	var err error
	if r.button, err = r.buttonDefinition().Build(ServiceButton, es.WithLogger(r.logger.WithTag(ServiceButton))); err != nil {
		return err
	}
	if r.elements, err = r.elementsDefinition().Build(ServiceElements, es.WithLogger(r.logger.WithTag(ServiceElements))); err != nil {
		return err
	}
	if r.decoder, err = r.decoderDefinition().Build(ServiceDecoder, es.WithLogger(r.logger.WithTag(ServiceDecoder))); err != nil {
		return err
	}

	for _, s := range []struct {
		name  string
		prio  uint8
		queue int
		m     *es.Machine
	}{
		{ServiceButton, 1, 8, r.button},
		{ServiceElements, 2, 16, r.elements},
		{ServiceDecoder, 3, 16, r.decoder},
	} {
		prio, queue := r.cfg.Schedule(s.name, s.prio, s.queue)
		if _, err := fw.Register(s.name, prio, queue, s.m); err != nil {
			return err
		}
	}

	if err := fw.BindTimer(TimerDebounce, ServiceButton); err != nil {
		return err
	}
	if err := fw.DefineList(ListButton, ServiceElements, ServiceDecoder); err != nil {
		return err
	}
	if err := fw.DefineList(ListElements, ServiceElements, ServiceDecoder); err != nil {
		return err
	}

	r.buttonLine, err = fw.Interrupts().Line(InputButton, r.onButtonEdge)
	if err != nil {
		return err
	}
	return fw.AddSensor(ServiceElements, es.SensorFunc(r.checkMorseEdge))
}

// Message returns everything decoded so far
func (r *Robot) Message() string {
	return r.message.String()
}

// LengthOfDot returns the calibrated dot length in ticks, 0 before
// calibration
func (r *Robot) LengthOfDot() uint16 {
	return r.lengthOfDot
}

// onButtonEdge runs on the scheduler when the button line was raised
func (r *Robot) onButtonEdge() {
	pressed, err := r.drivers.Inputs.ReadDigitalInput(InputButton)
	if err != nil {
		r.logger.Warnf("Failed to read button: %v", err)
		return
	}
	kind := ButtonUp
	if pressed {
		kind = ButtonDown
	}
	r.fw.Post(ServiceButton, es.Event{Kind: kind})
}

// checkMorseEdge samples the morse input once per pass
func (r *Robot) checkMorseEdge() (es.Event, bool) {
	level, err := r.drivers.Inputs.ReadDigitalInput(InputMorse)
	if err != nil || level == r.lastInput {
		return es.None, false
	}
	r.lastInput = level
	stamp := uint16(r.fw.Timers().Now())
	if level {
		return es.Event{Kind: RisingEdge, Param: stamp}, true
	}
	return es.Event{Kind: FallingEdge, Param: stamp}, true
}

func (r *Robot) buttonDefinition() *es.Definition {
	return es.NewDefinition().
		State(stateDebouncing, es.WithOnEnter(func(c *es.Context) error {
			return r.fw.Timers().StartTimer(TimerDebounce, r.cfg.Debounce)
		})).
		State(stateReady).
		Transition(stateDebouncing, es.Timeout, stateReady,
			es.WithParam(uint16(TimerDebounce)),
			es.WithAction(r.reportSettledButton),
			es.Consume(),
		).
		Transition(stateReady, ButtonDown, stateDebouncing,
			es.WithAction(func(c *es.Context, ev es.Event) { r.reportButton(true) }),
			es.Consume(),
		).
		Transition(stateReady, ButtonUp, stateDebouncing,
			es.WithAction(func(c *es.Context, ev es.Event) { r.reportButton(false) }),
			es.Consume(),
		).
		Initial(stateDebouncing)
}

func (r *Robot) reportButton(pressed bool) {
	if pressed == r.lastButton {
		return
	}
	r.lastButton = pressed
	kind := DBButtonUp
	if pressed {
		kind = DBButtonDown
	}
	r.fw.PostList(ListButton, es.Event{Kind: kind})
}

// reportSettledButton catches a change that happened while debouncing
func (r *Robot) reportSettledButton(c *es.Context, ev es.Event) {
	pressed, err := r.drivers.Inputs.ReadDigitalInput(InputButton)
	if err != nil {
		return
	}
	r.reportButton(pressed)
}

func (r *Robot) elementsDefinition() *es.Definition {
	recalibrate := es.WithAction(func(c *es.Context, ev es.Event) {
		r.firstDelta = 0
		r.lengthOfDot = 0
	})
	recordRise := func(c *es.Context, ev es.Event) { r.timeOfLastRise = ev.Param }
	recordFall := func(c *es.Context, ev es.Event) { r.timeOfLastFall = ev.Param }

	return es.NewDefinition().
		State(stateCalWaitRise).
		State(stateCalWaitFall).
		State(stateEOCWaitRise).
		State(stateEOCWaitFall).
		State(stateDecodeWaitRise).
		State(stateDecodeWaitFall).

		// Calibration
		Transition(stateCalWaitRise, RisingEdge, stateCalWaitFall, es.WithAction(recordRise), es.Consume()).
		Transition(stateCalWaitRise, CalCompleted, stateEOCWaitRise, es.Consume()).
		Transition(stateCalWaitFall, FallingEdge, stateCalWaitRise,
			es.WithAction(func(c *es.Context, ev es.Event) {
				recordFall(c, ev)
				r.testCalibration()
			}),
			es.Consume(),
		).

		// Waiting for the first character boundary
		Transition(stateEOCWaitRise, RisingEdge, stateEOCWaitFall,
			es.WithAction(func(c *es.Context, ev es.Event) {
				recordRise(c, ev)
				r.characterizeSpace()
			}),
			es.Consume(),
		).
		Transition(stateEOCWaitRise, DBButtonDown, stateCalWaitRise, recalibrate, es.Consume()).
		Transition(stateEOCWaitFall, FallingEdge, stateEOCWaitRise, es.WithAction(recordFall), es.Consume()).
		Transition(stateEOCWaitFall, DBButtonDown, stateCalWaitRise, recalibrate, es.Consume()).
		Transition(stateEOCWaitFall, EOCDetected, stateDecodeWaitFall, es.Consume()).
		Transition(stateEOCWaitFall, EOWDetected, stateDecodeWaitFall, es.Consume()).

		// Decoding
		Transition(stateDecodeWaitRise, RisingEdge, stateDecodeWaitFall,
			es.WithAction(func(c *es.Context, ev es.Event) {
				recordRise(c, ev)
				r.characterizeSpace()
			}),
			es.Consume(),
		).
		Transition(stateDecodeWaitRise, DBButtonDown, stateCalWaitRise, recalibrate, es.Consume()).
		Transition(stateDecodeWaitRise, BadSpace, stateEOCWaitRise, es.Consume()).
		Transition(stateDecodeWaitRise, BadPulse, stateEOCWaitRise, es.Consume()).
		Transition(stateDecodeWaitFall, FallingEdge, stateDecodeWaitRise,
			es.WithAction(func(c *es.Context, ev es.Event) {
				recordFall(c, ev)
				r.characterizePulse()
			}),
			es.Consume(),
		).
		Transition(stateDecodeWaitFall, DBButtonDown, stateCalWaitRise, recalibrate, es.Consume()).
		Transition(stateDecodeWaitFall, BadSpace, stateEOCWaitRise, es.Consume()).
		Transition(stateDecodeWaitFall, BadPulse, stateEOCWaitRise, es.Consume()).
		Initial(stateCalWaitRise)
}

// near reports whether v is within a quarter of target
func near(v, target uint16) bool {
	tol := target / 4
	if tol == 0 {
		tol = 1
	}
	return v+tol >= target && v <= target+tol
}

// testCalibration looks for a dot and a dash, in either order
func (r *Robot) testCalibration() {
	second := r.timeOfLastFall - r.timeOfLastRise
	if r.firstDelta == 0 {
		r.firstDelta = second
		return
	}
	switch {
	case near(second, 3*r.firstDelta):
		r.lengthOfDot = r.firstDelta
	case near(r.firstDelta, 3*second):
		r.lengthOfDot = second
	default:
		r.firstDelta = second
		return
	}
	r.logger.Infof("Calibrated: dot is %d ticks", r.lengthOfDot)
	r.fw.Post(ServiceElements, es.Event{Kind: CalCompleted})
}

func (r *Robot) characterizeSpace() {
	dot := r.lengthOfDot
	space := r.timeOfLastRise - r.timeOfLastFall
	tol := dot / 4
	switch {
	case near(space, dot):
		// gap between elements of one character
	case near(space, 3*dot):
		r.fw.PostList(ListElements, es.Event{Kind: EOCDetected})
	case space+7*tol >= 7*dot:
		r.fw.PostList(ListElements, es.Event{Kind: EOWDetected})
	default:
		r.fw.PostList(ListElements, es.Event{Kind: BadSpace})
	}
}

func (r *Robot) characterizePulse() {
	pulse := r.timeOfLastFall - r.timeOfLastRise
	switch {
	case near(pulse, r.lengthOfDot):
		r.fw.Post(ServiceDecoder, es.Event{Kind: DotDetected})
	case near(pulse, 3*r.lengthOfDot):
		r.fw.Post(ServiceDecoder, es.Event{Kind: DashDetected})
	default:
		r.fw.PostList(ListElements, es.Event{Kind: BadPulse})
	}
}

func (r *Robot) decoderDefinition() *es.Definition {
	reset := func(c *es.Context, ev es.Event) { r.buffer = r.buffer[:0] }
	return es.NewDefinition().
		State(stateDecoding).
		Internal(stateDecoding, DotDetected, es.WithAction(func(c *es.Context, ev es.Event) { r.appendElement('.') }), es.Consume()).
		Internal(stateDecoding, DashDetected, es.WithAction(func(c *es.Context, ev es.Event) { r.appendElement('-') }), es.Consume()).
		Internal(stateDecoding, EOCDetected, es.WithAction(func(c *es.Context, ev es.Event) { r.emitCharacter() }), es.Consume()).
		Internal(stateDecoding, EOWDetected, es.WithAction(func(c *es.Context, ev es.Event) {
			r.emitCharacter()
			r.emit(' ')
		}), es.Consume()).
		Internal(stateDecoding, BadSpace, es.WithAction(reset), es.Consume()).
		Internal(stateDecoding, BadPulse, es.WithAction(reset), es.Consume()).
		Internal(stateDecoding, DBButtonDown, es.WithAction(reset), es.Consume()).
		Initial(stateDecoding)
}

const maxElements = 8

func (r *Robot) appendElement(e byte) {
	if len(r.buffer) >= maxElements {
		r.logger.Warnf("Morse buffer overflow: %s", r.buffer)
		r.buffer = r.buffer[:0]
		return
	}
	r.buffer = append(r.buffer, e)
}

func (r *Robot) emitCharacter() {
	if len(r.buffer) == 0 {
		return
	}
	ch, ok := Decode(string(r.buffer))
	if !ok {
		r.logger.Warnf("Unknown morse sequence %s", r.buffer)
		ch = '?'
	}
	r.buffer = r.buffer[:0]
	r.emit(ch)
}

func (r *Robot) emit(ch rune) {
	r.message.WriteRune(ch)
	r.logger.Infof("Decoded %q", ch)
	if r.cfg.OnChar != nil {
		r.cfg.OnChar(ch)
	}
}

// String shows the decoder state for logs
func (r *Robot) String() string {
	return fmt.Sprintf("morse{dot=%d buffer=%q message=%q}", r.lengthOfDot, r.buffer, r.message.String())
}
