// Package telemetry installs the OpenTelemetry tracer provider that receives
// the scheduler's dispatch spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"robot-service/internal/config"
	"robot-service/internal/logger"
)

const serviceName = "robot-service"

// ShutdownFunc flushes pending spans and releases the exporter
type ShutdownFunc func(context.Context) error

// NewTracerProvider batches spans and writes them to w as JSON
func NewTracerProvider(w io.Writer, robot string) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("robot.kind", robot),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// Setup installs the global tracer provider when tracing is enabled. With
// tracing off the global no-op provider stays and the returned func does
// nothing.
func Setup(cfg config.TracingConfig, robot string, l *logger.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var w io.Writer = os.Stderr
	var f *os.File
	if cfg.Output != "" {
		var err error
		f, err = os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		w = f
	}

	tp, err := NewTracerProvider(w, robot)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, err
	}
	otel.SetTracerProvider(tp)
	l.Infof("Tracing dispatch spans to %s", describe(cfg.Output))

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if f != nil {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

func describe(output string) string {
	if output == "" {
		return "stderr"
	}
	return output
}
