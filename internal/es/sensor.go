package es

import "fmt"

// Sensor is a polled event checker: it samples its input once per scheduler
// pass and reports an edge or threshold crossing as a domain event.
type Sensor interface {
	Poll() (Event, bool)
}

// SensorFunc adapts a function to the Sensor interface
type SensorFunc func() (Event, bool)

func (fn SensorFunc) Poll() (Event, bool) { return fn() }

type boundSensor struct {
	service *Service
	sensor  Sensor
}

// AddSensor polls the sensor every pass and posts what it reports to the
// named service
func (f *Framework) AddSensor(service string, s Sensor) error {
	svc := f.byName[service]
	if svc == nil {
		return fmt.Errorf("sensor for %s: %w", service, ErrUnknownService)
	}
	f.sensors = append(f.sensors, boundSensor{service: svc, sensor: s})
	return nil
}

func (f *Framework) pollSensors() {
	for _, b := range f.sensors {
		if ev, ok := b.sensor.Poll(); ok {
			b.service.Post(ev)
		}
	}
}
