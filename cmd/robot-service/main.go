package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"robot-service/internal/config"
	"robot-service/internal/core"
	"robot-service/internal/hardware"
	"robot-service/internal/logger"
	"robot-service/internal/messaging"
	"robot-service/internal/telemetry"
)

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	configPath := flag.String("config", "/etc/robot-service/config.yaml", "Path to the YAML config file")
	robot := flag.String("robot", "", "Robot to run (hockey, morse, boat); overrides the config file")
	trace := flag.Bool("trace", false, "Write dispatch spans (overrides tracing.enabled)")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	cfg, err := config.Load(*configPath)
	if err != nil {
		l.Fatalf("Failed to load config: %v", err)
	}
	if *robot != "" {
		cfg.Robot = *robot
	}
	if *trace {
		cfg.Tracing.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		l.Fatalf("Invalid config: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, cfg.Robot, l.WithTag("Tracing"))
	if err != nil {
		l.Fatalf("Failed to set up tracing: %v", err)
	}

	l.Infof("Starting robot service (%s)...", cfg.Robot)

	io := hardware.NewLinuxHardwareIO(cfg.Inputs, cfg.Outputs, l.WithTag("IO"))
	motors := hardware.NewPwmMotors(cfg.Motors, io, l.WithTag("Motors"))
	adc := hardware.NewSysfsADC(cfg.ADC.Device)

	var redis core.MessagingClient
	if cfg.Redis.Enabled {
		redis = messaging.NewRedisClient(cfg.RedisAddr(), l.WithTag("Redis"), messaging.Callbacks{})
	} else {
		l.Warnf("Redis disabled, running offline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	system := core.NewRobotSystem(cfg, io, motors, adc, redis, l)
	if err := system.Start(ctx); err != nil {
		system.Shutdown()
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully, session %s", system.Session())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	if err := shutdownTracing(context.Background()); err != nil {
		l.Warnf("Failed to flush spans: %v", err)
	}
	l.Infof("Shutdown complete")
}
