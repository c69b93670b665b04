package garagemqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/mqtt"
)

const (
	// minTopicParts is garage/{type}/{device}.
	minTopicParts = 3

	// commandTimeout bounds queueing plus the device call for one command.
	commandTimeout = 30 * time.Second

	// refreshTimeout bounds an out-of-band poll round.
	refreshTimeout = 30 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Controller is the accessory contract the bridge drives.
// *garage.Controller implements it.
type Controller interface {
	DoorSnapshot() garage.DoorSnapshot
	LightSnapshot() garage.LightSnapshot
	HasLight() bool
	DoorCurrentState() (garage.DoorState, error)
	LightCurrentState() (bool, error)
	OperateDoor(ctx context.Context, target garage.DoorState) error
	OperateLight(ctx context.Context, on bool) error
	Refresh(ctx context.Context)
}

// BridgeOptions configures NewBridge.
type BridgeOptions struct {
	// DeviceID is the topic segment for this door. Required.
	DeviceID string

	// Version is reported in health messages.
	Version string

	MQTTClient MQTTClient
	Controller Controller

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// QueueDepth reports the device gate backlog for health messages. Optional.
	QueueDepth func() int

	Logger Logger
}

// Bridge exposes the garage controller on MQTT.
//
// It handles:
//   - Commands on garage/command/{device}, acknowledged on garage/ack/{device}
//   - read_state and refresh requests with responses per request id
//   - Retained state on garage/state/{device}, republished on every push
//   - Retained health with the client's Last Will as the offline fallback
//
// Bridge implements garage.Notifier. Pushes only mark the state dirty; a
// publisher goroutine coalesces them, so one door transition produces one
// state message and the poll loop never waits on the broker.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	deviceID string
	mqtt     MQTTClient
	ctrl     Controller
	health   *HealthReporter

	dirty chan struct{}

	// stopping guards wg.Add against a concurrent Stop.
	stopping   bool
	dispatchMu sync.Mutex

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

var _ garage.Notifier = (*Bridge)(nil)

// NewBridge creates a bridge. Subscribe it to the controller, then Start.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		deviceID:  opts.DeviceID,
		mqtt:      opts.MQTTClient,
		ctrl:      opts.Controller,
		dirty:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		DeviceID:  opts.DeviceID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Probe:     b.healthProbe(opts.QueueDepth),
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command and request topics, publishes health and the
// current state, and starts the state publisher and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topics := mqtt.Topics{}
	for _, topic := range []string{topics.Command(b.deviceID), topics.Request(b.deviceID)} {
		if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.logInfo("subscribed", "topic", topic)
	}

	b.dispatchMu.Lock()
	b.wg.Add(1)
	b.dispatchMu.Unlock()
	go b.publishLoop()

	b.health.Start(ctx)
	b.Resync()

	b.logInfo("bridge started", "device_id", b.deviceID)
	return nil
}

// Stop cancels in-flight commands, stops reporting and publishes "stopping".
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.dispatchMu.Lock()
		b.stopping = true
		b.dispatchMu.Unlock()

		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Resync republishes health and state. Wire it to the MQTT client's
// on-connect callback so a reconnect replaces the retained Last Will.
func (b *Bridge) Resync() {
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
	b.markDirty()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) DoorCurrentStateChanged(garage.DoorState) { b.markDirty() }
func (b *Bridge) DoorTargetStateChanged(garage.DoorState) { b.markDirty() }
func (b *Bridge) ObstructionDetectedChanged(bool) { b.markDirty() }
func (b *Bridge) LightStateChanged(bool) { b.markDirty() }

func (b *Bridge) markDirty() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.dirty:
			b.publishState()
		}
	}
}

// publishState publishes the retained state snapshot.
func (b *Bridge) publishState() {
	payload, err := json.Marshal(b.buildState())
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.State(b.deviceID), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

func (b *Bridge) buildState() *StateMessage {
	door := b.ctrl.DoorSnapshot()
	_, doorErr := b.ctrl.DoorCurrentState()

	msg := &StateMessage{
		DeviceID:  b.deviceID,
		Timestamp: time.Now().UTC(),
		Door: DoorPayload{
			Current:             door.Current,
			Target:              door.Target,
			ObstructionDetected: door.ObstructionDetected,
			Stale:               garage.IsStale(doorErr),
			ReportedAt:          door.CurrentSetAt.UTC(),
		},
	}

	if b.ctrl.HasLight() {
		light := b.ctrl.LightSnapshot()
		_, lightErr := b.ctrl.LightCurrentState()
		msg.Light = &LightPayload{
			On:         light.On,
			Stale:      garage.IsStale(lightErr),
			ReportedAt: light.SetAt.UTC(),
		}
	}
	return msg
}

func (b *Bridge) healthProbe(queueDepth func() int) HealthProbe {
	return func() (string, int) {
		depth := 0
		if queueDepth != nil {
			depth = queueDepth()
		}
		if _, err := b.ctrl.DoorCurrentState(); garage.IsStale(err) {
			return "door state stale", depth
		}
		return "", depth
	}
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
// Device calls run on their own goroutine so paho's delivery is never blocked.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	switch parts[1] {
	case "command":
		b.dispatch(func() { b.handleCommand(payload) })
	case "request":
		b.dispatch(func() { b.handleRequest(payload) })
	default:
		return fmt.Errorf("unknown message type: %s", parts[1])
	}
	return nil
}

func (b *Bridge) dispatch(fn func()) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	if b.stopping {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// handleCommand executes one command and publishes its ack.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(NewAckError(cmd, b.deviceID, ErrCodeInvalidPayload, err.Error()))
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"source", cmd.Source)

	if cmd.DeviceID != "" && cmd.DeviceID != b.deviceID {
		b.publishAck(NewAckError(cmd, b.deviceID, ErrCodeWrongDevice,
			fmt.Sprintf("command for %s received by %s", cmd.DeviceID, b.deviceID)))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var err error
	switch cmd.Command {
	case CommandOpen:
		err = b.ctrl.OperateDoor(ctx, garage.DoorOpen)
	case CommandClose:
		err = b.ctrl.OperateDoor(ctx, garage.DoorClosed)
	case CommandLightOn:
		err = b.ctrl.OperateLight(ctx, true)
	case CommandLightOff:
		err = b.ctrl.OperateLight(ctx, false)
	default:
		b.publishAck(NewAckError(cmd, b.deviceID, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command)))
		return
	}

	if err != nil {
		code := ErrorCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		b.publishAck(NewAckError(cmd, b.deviceID, code, err.Error()))
		return
	}
	b.publishAck(NewAckMessage(cmd, b.deviceID))
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Ack(b.deviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
	if ack.Error != nil {
		b.logWarn("command failed",
			"command_id", ack.CommandID,
			"command", ack.Command,
			"code", ack.Error.Code,
			"message", ack.Error.Message)
	}
}

// handleRequest answers read_state and refresh requests.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	b.logInfo("received request", "request_id", req.RequestID, "action", req.Action)

	resp := ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
	}

	switch req.Action {
	case ActionReadState:
		resp.Success = true
		resp.State = b.buildState()
	case ActionRefresh:
		ctx, cancel := context.WithTimeout(b.ctx, refreshTimeout)
		b.ctrl.Refresh(ctx)
		cancel()
		resp.Success = true
		resp.State = b.buildState()
	default:
		resp.Error = &ResponseError{
			Code:    ErrCodeInvalidCommand,
			Message: fmt.Sprintf("unknown action: %s", req.Action),
		}
	}

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.Response(b.deviceID, req.RequestID), respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
