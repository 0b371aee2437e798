package es

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"robot-service/internal/logger"
)

// DefaultTickPeriod matches the classic 1 ms framework tick
const DefaultTickPeriod = time.Millisecond

// DispatchObserver is told about every completed dispatch
type DispatchObserver func(s *Service, ev Event, before, after StateID)

// Framework is the cooperative scheduler. All services, queues and timers
// belong to the goroutine that calls Step or Run.
type Framework struct {
	logger *logger.Logger
	tracer trace.Tracer

	services []*Service // ascending priority
	byName   map[string]*Service

	timers   *TimerBank
	irq      *Interrupts
	tickLine LineID
	period   time.Duration

	sensors []boundSensor
	lists   map[string][]string

	observer    DispatchObserver
	initialized bool
	paused      atomic.Bool
}

// Option is a functional option for configuring a Framework
type Option func(*Framework)

// WithFrameworkLogger sets the scheduler's logger
func WithFrameworkLogger(l *logger.Logger) Option {
	return func(f *Framework) {
		f.logger = l
	}
}

// WithTracer sets the tracer used for dispatch spans
func WithTracer(t trace.Tracer) Option {
	return func(f *Framework) {
		f.tracer = t
	}
}

// WithTickPeriod sets the wall-clock length of one timer tick
func WithTickPeriod(d time.Duration) Option {
	return func(f *Framework) {
		f.period = d
	}
}

// WithDispatchObserver sets a callback run after every dispatch
func WithDispatchObserver(fn DispatchObserver) Option {
	return func(f *Framework) {
		f.observer = fn
	}
}

// New creates an empty framework
func New(opts ...Option) *Framework {
	f := &Framework{
		byName: make(map[string]*Service),
		lists:  make(map[string][]string),
		period: DefaultTickPeriod,
		irq:    newInterrupts(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer("robot-service/es")
	}
	f.timers = newTimerBank(f.period, f.logger.WithTag("timers"))
	f.tickLine, _ = f.irq.Line("tick", f.timers.Tick)
	return f
}

// Register adds a service. Names and priorities must be unique.
func (f *Framework) Register(name string, priority uint8, queueSize int, r Runner) (*Service, error) {
	if f.initialized {
		return nil, ErrAlreadyStarted
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("service %s: %w", name, ErrInvalidQueueLen)
	}
	if _, ok := f.byName[name]; ok {
		return nil, fmt.Errorf("service %s: %w", name, ErrDuplicateName)
	}
	for _, s := range f.services {
		if s.priority == priority {
			return nil, fmt.Errorf("service %s priority %d used by %s: %w", name, priority, s.name, ErrDuplicatePrio)
		}
	}

	s := &Service{
		name:     name,
		priority: priority,
		queue:    NewQueue(queueSize),
		machine:  r,
		logger:   f.logger.WithTag(name),
	}
	f.services = append(f.services, s)
	sort.SliceStable(f.services, func(i, j int) bool {
		return f.services[i].priority < f.services[j].priority
	})
	f.byName[name] = s
	f.logger.Debugf("registered service %s (priority %d, queue %d)", name, priority, queueSize)
	return s, nil
}

// Init performs each service's first Start in priority order, then posts
// Init to each so machines can do work that needs every service running.
// A panic during a start is a fatal setup failure and is returned as an
// error; the caller halts.
func (f *Framework) Init() error {
	if f.initialized {
		return ErrAlreadyStarted
	}
	if len(f.services) == 0 {
		return fmt.Errorf("no services registered")
	}

	for _, s := range f.services {
		if err := f.startService(s); err != nil {
			return err
		}
	}
	for _, s := range f.services {
		s.Post(Event{Kind: Init})
	}
	f.initialized = true
	f.logger.Infof("framework initialized with %d services", len(f.services))
	return nil
}

func (f *Framework) startService(s *Service) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("init of service %s failed: %v", s.name, r)
		}
	}()
	s.start()
	f.logger.Debugf("started %s in %s", s.name, s.Query())
	return nil
}

// Service looks up a registered service
func (f *Framework) Service(name string) *Service {
	return f.byName[name]
}

// Services returns services in dispatch order
func (f *Framework) Services() []*Service {
	out := make([]*Service, len(f.services))
	copy(out, f.services)
	return out
}

// Timers returns the timer bank
func (f *Framework) Timers() *TimerBank {
	return f.timers
}

// Interrupts returns the interrupt lines
func (f *Framework) Interrupts() *Interrupts {
	return f.irq
}

// BindTimer routes a timer's expiry to the named service
func (f *Framework) BindTimer(id TimerID, service string) error {
	s := f.byName[service]
	if s == nil {
		return fmt.Errorf("bind timer %d to %s: %w", id, service, ErrUnknownService)
	}
	return f.timers.Bind(id, s)
}

// Post enqueues an event on a named service. Scheduler goroutine only.
func (f *Framework) Post(service string, ev Event) bool {
	s := f.byName[service]
	if s == nil {
		f.logger.Warnf("post %s to unknown service %s", ev, service)
		return false
	}
	return s.Post(ev)
}

// PostAsync queues an event from any goroutine. It reaches the service's
// queue at the start of the next pass.
func (f *Framework) PostAsync(service string, ev Event) {
	f.irq.post(service, ev)
}

// Tick raises the tick line, as the tick interrupt would
func (f *Framework) Tick() {
	f.irq.Raise(f.tickLine)
}

// Pause stops dispatching. Interrupts and timers keep running and events
// accumulate in the queues. Safe from any goroutine.
func (f *Framework) Pause() {
	f.paused.Store(true)
}

// Resume re-enables dispatching
func (f *Framework) Resume() {
	f.paused.Store(false)
	f.irq.signal()
}

// Paused reports whether dispatch is gated
func (f *Framework) Paused() bool {
	return f.paused.Load()
}

// Step runs one scheduler pass: drain interrupt flags and the async inbox,
// poll sensors, then deliver at most one event to each service in priority
// order. It returns the number of events dispatched.
func (f *Framework) Step(ctx context.Context) int {
	if !f.initialized {
		panic(ErrNotInitialized)
	}

	f.irq.drainLines()
	for _, p := range f.irq.takeInbox() {
		f.Post(p.service, p.event)
	}
	f.pollSensors()

	if f.paused.Load() {
		return 0
	}

	dispatched := 0
	for _, s := range f.services {
		ev, ok := s.queue.Pop()
		if !ok {
			continue
		}
		f.dispatch(ctx, s, ev)
		dispatched++
	}
	return dispatched
}

func (f *Framework) dispatch(ctx context.Context, s *Service, ev Event) {
	before := s.Query()
	_, span := f.tracer.Start(ctx, "es.dispatch", trace.WithAttributes(
		attribute.String("es.service", s.name),
		attribute.String("es.event", ev.Kind.String()),
		attribute.Int("es.param", int(ev.Param)),
		attribute.String("es.state.before", string(before)),
	))
	ret := s.Run(ev)
	after := s.Query()
	span.SetAttributes(
		attribute.String("es.state.after", string(after)),
		attribute.String("es.result", ret.Kind.String()),
	)
	span.End()

	if ret.Kind != NoEvent {
		f.logger.Debugf("%s: %s not consumed in %s", s.name, ret, after)
	}
	if f.observer != nil {
		f.observer(s, ev, before, after)
	}
}

// Pending reports whether any service has queued events
func (f *Framework) Pending() bool {
	for _, s := range f.services {
		if s.queue.Len() > 0 {
			return true
		}
	}
	return false
}

// Run drives the scheduler until the context is cancelled. A ticker
// goroutine raises the tick line; when no work is queued the loop sleeps
// until something is raised.
func (f *Framework) Run(ctx context.Context) error {
	if !f.initialized {
		return ErrNotInitialized
	}

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.tickSource(tickCtx)

	f.logger.Infof("scheduler running (tick %s)", f.period)
	for {
		select {
		case <-ctx.Done():
			f.logger.Infof("scheduler stopped")
			return nil
		default:
		}

		f.Step(ctx)
		if f.Pending() && !f.Paused() {
			continue
		}

		select {
		case <-ctx.Done():
			f.logger.Infof("scheduler stopped")
			return nil
		case <-f.irq.wake:
		}
	}
}

func (f *Framework) tickSource(ctx context.Context) {
	ticker := time.NewTicker(f.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Tick()
		}
	}
}
