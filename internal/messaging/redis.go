package messaging

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"robot-service/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Redis keys
const (
	EventsList  = "robot:events"
	ControlList = "robot:control"
	RadioRxList = "robot:radio:rx"
	RadioTxList = "robot:radio:tx"

	ServicesHash = "robot:services"
	RobotHash    = "robot"
	RobotChannel = "robot"
	FaultSet     = "robot:fault"
	FaultStream  = "events:faults"
)

type Callbacks struct {
	EventCallback   func(service, kind string, param uint16) error // "service:kind[:param]"
	ControlCallback func(string) error                             // "pause", "resume", "stop"
	RadioCallback   func([]byte) error                             // raw frame, hex on the wire
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, l *logger.Logger, callbacks Callbacks) *RedisClient {
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list command listeners
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(3)
	go r.listCommandListener(EventsList, r.handleEventCommand)
	go r.listCommandListener(ControlList, r.handleControlCommand)
	go r.listCommandListener(RadioRxList, r.handleRadioFrame)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// BRPOP with a short timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

// ParseEventCommand splits "service:kind" or "service:kind:param"
func ParseEventCommand(value string) (service, kind string, param uint16, err error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, fmt.Errorf("invalid event command: %q", value)
	}
	if len(parts) == 3 {
		p, err := strconv.ParseUint(parts[2], 0, 16)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid event parameter %q: %w", parts[2], err)
		}
		param = uint16(p)
	}
	return parts[0], parts[1], param, nil
}

func (r *RedisClient) handleEventCommand(value string) error {
	if r.callbacks.EventCallback == nil {
		return nil
	}
	service, kind, param, err := ParseEventCommand(value)
	if err != nil {
		return err
	}
	return r.callbacks.EventCallback(service, kind, param)
}

func (r *RedisClient) handleControlCommand(value string) error {
	if r.callbacks.ControlCallback == nil {
		return nil
	}
	switch value {
	case "pause", "resume", "stop":
		return r.callbacks.ControlCallback(value)
	default:
		r.logger.Infof("Invalid control command value: %s", value)
		return fmt.Errorf("invalid control command: %s", value)
	}
}

func (r *RedisClient) handleRadioFrame(value string) error {
	if r.callbacks.RadioCallback == nil {
		return nil
	}
	frame, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid radio frame: %w", err)
	}
	return r.callbacks.RadioCallback(frame)
}

// PublishServiceState records a service's state path and notifies watchers
func (r *RedisClient) PublishServiceState(service, path string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, ServicesHash, service, path)
	pipe.HSet(r.ctx, ServicesHash, service+":timestamp", time.Now().Format(time.RFC3339Nano))
	pipe.Publish(r.ctx, RobotChannel, service)
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish %s state: %v", service, err)
		return err
	}
	return nil
}

// PublishLifecycle publishes the controller lifecycle state
func (r *RedisClient) PublishLifecycle(state string) error {
	r.logger.Infof("Publishing lifecycle state: %s", state)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, RobotHash, "state", state)
	pipe.HSet(r.ctx, RobotHash, "state:timestamp", time.Now().Format(time.RFC3339))
	pipe.Publish(r.ctx, RobotChannel, "state")
	_, err := pipe.Exec(r.ctx)
	if err != nil {
		r.logger.Warnf("Failed to publish lifecycle state: %v", err)
	}
	return err
}

// PublishSession records which robot this boot is running and clears the
// service states left by the previous one
func (r *RedisClient) PublishSession(session, robot string) error {
	pipe := r.client.Pipeline()
	pipe.Del(r.ctx, ServicesHash)
	pipe.HSet(r.ctx, RobotHash, "session", session, "robot", robot, "started", time.Now().Format(time.RFC3339))
	pipe.Publish(r.ctx, RobotChannel, "session")
	_, err := pipe.Exec(r.ctx)
	return err
}

// PublishMessage publishes the text a robot has produced so far
func (r *RedisClient) PublishMessage(text string) error {
	return r.publishHashSet(RobotHash, "message", text, RobotChannel, "message")
}

// publishHashSet atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

// GetServiceStates returns the published state path of every service
func (r *RedisClient) GetServiceStates() (map[string]string, error) {
	all, err := r.client.HGetAll(r.ctx, ServicesHash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ServicesHash, err)
	}
	states := make(map[string]string, len(all))
	for k, v := range all {
		if !strings.HasSuffix(k, ":timestamp") {
			states[k] = v
		}
	}
	return states, nil
}

// SendFrame queues a radio frame for the transceiver daemon
func (r *RedisClient) SendFrame(frame []byte) error {
	return r.SendCommand(RadioTxList, hex.EncodeToString(frame))
}

// SendCommand pushes a command onto a Redis list
func (r *RedisClient) SendCommand(list, command string) error {
	if err := r.client.LPush(r.ctx, list, command).Err(); err != nil {
		r.logger.Warnf("Failed to send command '%s' to '%s': %v", command, list, err)
		return err
	}
	r.logger.Debugf("Sent command '%s' to '%s'", command, list)
	return nil
}

// ReportFaultPresent reports a fault as present to Redis
func (r *RedisClient) ReportFaultPresent(code int, description string) error {
	r.logger.Infof("Reporting fault present: code=%d, description=%s", code, description)

	pipe := r.client.Pipeline()
	pipe.SAdd(r.ctx, FaultSet, code)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":       "robot",
			"code":        code,
			"description": description,
			"ts":          time.Now().UnixMilli(),
		},
	})
	pipe.Publish(r.ctx, RobotChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to report fault present: %v", err)
		return err
	}
	return nil
}

// ReportFaultAbsent reports a fault as cleared
func (r *RedisClient) ReportFaultAbsent(code int) error {
	r.logger.Infof("Reporting fault absent: code=%d", code)

	pipe := r.client.Pipeline()
	pipe.SRem(r.ctx, FaultSet, code)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group": "robot",
			"code":  -code, // negative code means cleared
		},
	})
	pipe.Publish(r.ctx, RobotChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to report fault absent: %v", err)
		return err
	}
	return nil
}

// GetHashField reads a field from a Redis hash using HGET
func (r *RedisClient) GetHashField(hash, field string) (string, error) {
	value, err := r.client.HGet(r.ctx, hash, field).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get hash field %s from %s: %w", field, hash, err)
	}
	return value, nil
}

// Subscribe returns a pub/sub handle on the robot channel
func (r *RedisClient) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, RobotChannel)
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
