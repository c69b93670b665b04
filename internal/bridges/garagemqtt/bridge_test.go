package garagemqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/mqtt"
)

const testDevice = "garage-door"

// =============================================================================
// Mocks
// =============================================================================

type mockPublish struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type MockMQTTClient struct {
	mu        sync.Mutex
	connected bool
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{topic, payload, qos, retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

func (m *MockMQTTClient) SimulateMessage(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

// onTopic returns every payload published to topic.
func (m *MockMQTTClient) onTopic(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// waitForTopic waits until at least n messages were published to topic.
func (m *MockMQTTClient) waitForTopic(t *testing.T, topic string, n int) []mockPublish {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.onTopic(topic); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages on %s, got %d", n, topic, len(m.onTopic(topic)))
	return nil
}

type fakeController struct {
	mu        sync.Mutex
	door      garage.DoorSnapshot
	light     garage.LightSnapshot
	hasLight  bool
	stale     bool
	opErr     error
	doorOps   []garage.DoorState
	lightOps  []bool
	refreshes int
}

func newFakeController() *fakeController {
	return &fakeController{
		door:     garage.DoorSnapshot{Current: garage.DoorClosed, Target: garage.DoorClosed},
		hasLight: true,
	}
}

func (f *fakeController) DoorSnapshot() garage.DoorSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.door
}

func (f *fakeController) LightSnapshot() garage.LightSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.light
}

func (f *fakeController) HasLight() bool { return f.hasLight }

func (f *fakeController) DoorCurrentState() (garage.DoorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale {
		return f.door.Current, &garage.StalenessError{Subject: "Garage", LastKnown: f.door.Current.String()}
	}
	return f.door.Current, nil
}

func (f *fakeController) LightCurrentState() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.light.On, nil
}

func (f *fakeController) OperateDoor(_ context.Context, target garage.DoorState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doorOps = append(f.doorOps, target)
	if f.opErr != nil {
		return f.opErr
	}
	f.door.Target = target
	return nil
}

func (f *fakeController) OperateLight(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lightOps = append(f.lightOps, on)
	if f.opErr != nil {
		return f.opErr
	}
	f.light.On = on
	return nil
}

func (f *fakeController) Refresh(context.Context) {
	f.mu.Lock()
	f.refreshes++
	f.door.Current = garage.DoorOpen
	f.mu.Unlock()
}

func startBridge(t *testing.T, ctrl *fakeController) (*Bridge, *MockMQTTClient) {
	t.Helper()
	client := NewMockMQTTClient()
	b, err := NewBridge(BridgeOptions{
		DeviceID:   testDevice,
		Version:    "test",
		MQTTClient: client,
		Controller: ctrl,
		QueueDepth: func() int { return 2 },
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client
}

func decodeAck(t *testing.T, p mockPublish) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(p.payload, &ack); err != nil {
		t.Fatalf("ack is not JSON: %v", err)
	}
	return ack
}

// =============================================================================
// Construction and lifecycle
// =============================================================================

func TestNewBridge_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts BridgeOptions
		want string
	}{
		{"missing device", BridgeOptions{MQTTClient: NewMockMQTTClient(), Controller: newFakeController()}, "device id"},
		{"missing mqtt", BridgeOptions{DeviceID: testDevice, Controller: newFakeController()}, "MQTT client"},
		{"missing controller", BridgeOptions{DeviceID: testDevice, MQTTClient: NewMockMQTTClient()}, "controller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBridge(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewBridge() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestStart_SubscribesAndPublishes(t *testing.T) {
	_, client := startBridge(t, newFakeController())
	topics := mqtt.Topics{}

	client.mu.Lock()
	_, cmd := client.handlers[topics.Command(testDevice)]
	_, req := client.handlers[topics.Request(testDevice)]
	client.mu.Unlock()
	if !cmd || !req {
		t.Errorf("subscriptions: command=%t request=%t", cmd, req)
	}

	health := client.onTopic(topics.Health(testDevice))
	if len(health) < 2 {
		t.Fatalf("health messages = %d, want starting and healthy", len(health))
	}
	var first, second HealthMessage
	_ = json.Unmarshal(health[0].payload, &first)
	_ = json.Unmarshal(health[1].payload, &second)
	if first.Status != HealthStarting || second.Status != HealthHealthy {
		t.Errorf("health statuses = %s, %s", first.Status, second.Status)
	}
	if !health[1].retained || second.QueueDepth != 2 {
		t.Errorf("health retained=%t queue_depth=%d", health[1].retained, second.QueueDepth)
	}

	state := client.waitForTopic(t, topics.State(testDevice), 1)
	if !state[0].retained {
		t.Error("state message not retained")
	}
}

func TestStop_IgnoresLaterMessages(t *testing.T) {
	ctrl := newFakeController()
	b, client := startBridge(t, ctrl)
	b.Stop()

	client.SimulateMessage(t, mqtt.Topics{}.Command(testDevice), `{"id":"c1","command":"open"}`)
	time.Sleep(20 * time.Millisecond)

	if len(client.onTopic(mqtt.Topics{}.Ack(testDevice))) != 0 {
		t.Error("ack published after Stop")
	}

	health := client.onTopic(mqtt.Topics{}.Health(testDevice))
	var last HealthMessage
	_ = json.Unmarshal(health[len(health)-1].payload, &last)
	if last.Status != HealthStopping {
		t.Errorf("last health = %s, want stopping", last.Status)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		opErr      error
		wantStatus AckStatus
		wantCode   string
		wantDoor   []garage.DoorState
		wantLight  []bool
	}{
		{"open", `{"id":"c1","command":"open"}`, nil, AckAccepted, "", []garage.DoorState{garage.DoorOpen}, nil},
		{"close", `{"id":"c1","command":"close"}`, nil, AckAccepted, "", []garage.DoorState{garage.DoorClosed}, nil},
		{"light on", `{"id":"c1","command":"light_on"}`, nil, AckAccepted, "", nil, []bool{true}},
		{"light off", `{"id":"c1","command":"light_off"}`, nil, AckAccepted, "", nil, []bool{false}},
		{"device failure", `{"id":"c1","command":"open"}`, &garage.UnexpectedStatusError{Status: 500}, AckFailed, "UNEXPECTED_STATUS", []garage.DoorState{garage.DoorOpen}, nil},
		{"deadline", `{"id":"c1","command":"open"}`, context.DeadlineExceeded, AckTimeout, ErrCodeTimeout, []garage.DoorState{garage.DoorOpen}, nil},
		{"unknown command", `{"id":"c1","command":"dance"}`, nil, AckFailed, ErrCodeInvalidCommand, nil, nil},
		{"wrong device", `{"id":"c1","device_id":"shed","command":"open"}`, nil, AckFailed, ErrCodeWrongDevice, nil, nil},
		{"bad json", `{"id":`, nil, AckFailed, ErrCodeInvalidPayload, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.opErr = tt.opErr
			_, client := startBridge(t, ctrl)

			client.SimulateMessage(t, mqtt.Topics{}.Command(testDevice), tt.payload)
			acks := client.waitForTopic(t, mqtt.Topics{}.Ack(testDevice), 1)

			ack := decodeAck(t, acks[0])
			if ack.Status != tt.wantStatus {
				t.Errorf("ack status = %s, want %s", ack.Status, tt.wantStatus)
			}
			if tt.wantCode != "" && (ack.Error == nil || ack.Error.Code != tt.wantCode) {
				t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			if acks[0].retained {
				t.Error("ack must not be retained")
			}

			ctrl.mu.Lock()
			defer ctrl.mu.Unlock()
			if len(ctrl.doorOps) != len(tt.wantDoor) || len(ctrl.lightOps) != len(tt.wantLight) {
				t.Fatalf("door ops = %v, light ops = %v", ctrl.doorOps, ctrl.lightOps)
			}
			for i := range tt.wantDoor {
				if ctrl.doorOps[i] != tt.wantDoor[i] {
					t.Errorf("door op %d = %s, want %s", i, ctrl.doorOps[i], tt.wantDoor[i])
				}
			}
			for i := range tt.wantLight {
				if ctrl.lightOps[i] != tt.wantLight[i] {
					t.Errorf("light op %d = %t, want %t", i, ctrl.lightOps[i], tt.wantLight[i])
				}
			}
		})
	}
}

func TestHandleCommand_GeneratesID(t *testing.T) {
	_, client := startBridge(t, newFakeController())

	client.SimulateMessage(t, mqtt.Topics{}.Command(testDevice), `{"command":"open"}`)
	ack := decodeAck(t, client.waitForTopic(t, mqtt.Topics{}.Ack(testDevice), 1)[0])

	if len(ack.CommandID) != 36 {
		t.Errorf("generated command id = %q, want a UUID", ack.CommandID)
	}
}

func TestHandleMQTTMessage_BadTopic(t *testing.T) {
	b, _ := startBridge(t, newFakeController())

	if err := b.handleMQTTMessage("garage", nil); err == nil {
		t.Error("short topic should be rejected")
	}
	if err := b.handleMQTTMessage("garage/discovery/garage-door", nil); err == nil {
		t.Error("unknown message type should be rejected")
	}
}

// =============================================================================
// State and requests
// =============================================================================

func TestNotifications_PublishRetainedState(t *testing.T) {
	ctrl := newFakeController()
	b, client := startBridge(t, ctrl)
	stateTopic := mqtt.Topics{}.State(testDevice)
	client.waitForTopic(t, stateTopic, 1)

	ctrl.mu.Lock()
	ctrl.door = garage.DoorSnapshot{Current: garage.DoorOpening, Target: garage.DoorOpen}
	ctrl.light = garage.LightSnapshot{On: true}
	ctrl.mu.Unlock()

	b.DoorTargetStateChanged(garage.DoorOpen)
	b.DoorCurrentStateChanged(garage.DoorOpening)
	b.ObstructionDetectedChanged(false)

	var state StateMessage
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs := client.onTopic(stateTopic)
		_ = json.Unmarshal(msgs[len(msgs)-1].payload, &state)
		if state.Door.Current == garage.DoorOpening {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if state.Door.Current != garage.DoorOpening || state.Door.Target != garage.DoorOpen {
		t.Fatalf("state door = %+v", state.Door)
	}
	if state.Light == nil || !state.Light.On {
		t.Errorf("state light = %+v, want on", state.Light)
	}

	msgs := client.onTopic(stateTopic)
	if !strings.Contains(string(msgs[len(msgs)-1].payload), `"current":"opening"`) {
		t.Errorf("payload = %s, want lower-case door state names", msgs[len(msgs)-1].payload)
	}
}

func TestState_NoLight(t *testing.T) {
	ctrl := newFakeController()
	ctrl.hasLight = false
	_, client := startBridge(t, ctrl)

	msgs := client.waitForTopic(t, mqtt.Topics{}.State(testDevice), 1)
	var state StateMessage
	_ = json.Unmarshal(msgs[0].payload, &state)
	if state.Light != nil {
		t.Errorf("light = %+v, want omitted", state.Light)
	}
}

func TestState_StaleDoorDegradesHealth(t *testing.T) {
	ctrl := newFakeController()
	ctrl.stale = true
	b, client := startBridge(t, ctrl)

	msgs := client.waitForTopic(t, mqtt.Topics{}.State(testDevice), 1)
	var state StateMessage
	_ = json.Unmarshal(msgs[0].payload, &state)
	if !state.Door.Stale {
		t.Error("state door stale = false, want true")
	}

	if err := b.health.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}
	health := client.onTopic(mqtt.Topics{}.Health(testDevice))
	var last HealthMessage
	_ = json.Unmarshal(health[len(health)-1].payload, &last)
	if last.Status != HealthDegraded || last.Reason != "door state stale" {
		t.Errorf("health = %s (%s), want degraded", last.Status, last.Reason)
	}
}

func TestHandleRequest(t *testing.T) {
	tests := []struct {
		name        string
		action      string
		wantSuccess bool
		wantCurrent garage.DoorState
		wantRefresh int
	}{
		{"read_state", ActionReadState, true, garage.DoorClosed, 0},
		{"refresh", ActionRefresh, true, garage.DoorOpen, 1},
		{"unknown", "reboot", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			_, client := startBridge(t, ctrl)

			client.SimulateMessage(t, mqtt.Topics{}.Request(testDevice),
				`{"request_id":"req-1","action":"`+tt.action+`"}`)
			msgs := client.waitForTopic(t, mqtt.Topics{}.Response(testDevice, "req-1"), 1)

			var resp ResponseMessage
			if err := json.Unmarshal(msgs[0].payload, &resp); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Fatalf("success = %t, want %t (error %+v)", resp.Success, tt.wantSuccess, resp.Error)
			}
			if tt.wantSuccess && resp.State.Door.Current != tt.wantCurrent {
				t.Errorf("current = %s, want %s", resp.State.Door.Current, tt.wantCurrent)
			}
			if !tt.wantSuccess && (resp.Error == nil || resp.Error.Code != ErrCodeInvalidCommand) {
				t.Errorf("error = %+v, want INVALID_COMMAND", resp.Error)
			}

			ctrl.mu.Lock()
			defer ctrl.mu.Unlock()
			if ctrl.refreshes != tt.wantRefresh {
				t.Errorf("refreshes = %d, want %d", ctrl.refreshes, tt.wantRefresh)
			}
		})
	}
}

func TestResync_RepublishesHealth(t *testing.T) {
	b, client := startBridge(t, newFakeController())
	before := len(client.onTopic(mqtt.Topics{}.Health(testDevice)))

	b.Resync()

	if got := len(client.onTopic(mqtt.Topics{}.Health(testDevice))); got != before+1 {
		t.Errorf("health messages = %d, want %d", got, before+1)
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(&garage.TransportError{Err: errors.New("refused")}); got != "TRANSPORT" {
		t.Errorf("ErrorCode(transport) = %q", got)
	}
	if got := ErrorCode(garage.ErrNoLight); got != "NO_LIGHT" {
		t.Errorf("ErrorCode(no light) = %q", got)
	}
}
