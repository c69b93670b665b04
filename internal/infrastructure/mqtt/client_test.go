package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for unit tests.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "garage-bridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
		DeviceID: "garage-door",
	}
}

// =============================================================================
// Fake paho client
// =============================================================================

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return &fakeToken{} }

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: body})
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates the broker routing a message to a subscription.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) lastPublished() (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return published{}, false
	}
	return f.published[len(f.published)-1], true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// connectedClient returns a Client wired to a fake paho client.
func connectedClient() (*Client, *fakePaho) {
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake
	c.connected = true
	return c, fake
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "garage", Password: "pw"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "garage-bridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "garage" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Errorf("AutoReconnect=%t CleanSession=%t, want both", opts.AutoReconnect, opts.CleanSession)
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS 1.2 minimum not configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)

	if !opts.WillEnabled || opts.WillTopic != "garage/health/garage-door" {
		t.Fatalf("will = %t %q", opts.WillEnabled, opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%t qos=%d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}

	var status connectionStatus
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if status.Status != "offline" || status.Reason != reasonUnexpected || status.DeviceID != "garage-door" {
		t.Errorf("will payload = %+v", status)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	c, fake := connectedClient()

	if err := c.Publish("garage/state/garage-door", []byte(`{"current":"open"}`), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, ok := fake.lastPublished()
	if !ok || got.topic != "garage/state/garage-door" || !got.retained || got.qos != 1 {
		t.Errorf("published = %+v", got)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"qos too high", "garage/state/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "garage/state/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient()
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, fake := connectedClient()
	fake.Disconnect(0)

	if err := c.Publish("garage/state/x", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	c, fake := connectedClient()

	received := make(chan string, 1)
	err := c.Subscribe("garage/command/garage-door", 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, ok := c.subscriptions["garage/command/garage-door"]; !ok || len(c.subscriptions) != 1 {
		t.Error("subscription not tracked")
	}

	fake.deliver("garage/command/garage-door", []byte(`{"command":"open"}`))

	select {
	case msg := <-received:
		if msg != `{"command":"open"}` {
			t.Errorf("payload = %q", msg)
		}
	default:
		t.Fatal("handler not called")
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("garage/command/x", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("garage/command/x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestSubscribe_BrokerErrorUntracks(t *testing.T) {
	c, fake := connectedClient()
	fake.subscribeErr = errors.New("not authorised")

	err := c.Subscribe("garage/command/x", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscription still tracked")
	}
}

func TestHandlerErrorAndPanicAreLogged(t *testing.T) {
	c, fake := connectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("garage/command/err", 1, func(string, []byte) error { return errors.New("bad payload") })
	_ = c.Subscribe("garage/command/panic", 1, func(string, []byte) error { panic("boom") })

	fake.deliver("garage/command/err", nil)
	fake.deliver("garage/command/panic", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}

func TestHandleConnect_RestoresSubscriptions(t *testing.T) {
	c, fake := connectedClient()
	_ = c.Subscribe("garage/command/garage-door", 1, func(string, []byte) error { return nil })

	// Simulate the broker forgetting subscriptions across a reconnect.
	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()

	called := false
	c.SetOnConnect(func() { called = true })
	c.handleConnect()

	fake.mu.Lock()
	_, restored := fake.handlers["garage/command/garage-door"]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored on reconnect")
	}
	if !called {
		t.Error("OnConnect callback not invoked")
	}
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := connectedClient()

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })
	c.handleDisconnect(errors.New("network down"))

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if gotErr == nil || gotErr.Error() != "network down" {
		t.Errorf("OnDisconnect error = %v", gotErr)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestClose_PublishesGracefulOffline(t *testing.T) {
	c, fake := connectedClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, ok := fake.lastPublished()
	if !ok || got.topic != "garage/health/garage-door" || !got.retained {
		t.Fatalf("published = %+v, want retained health", got)
	}
	if !strings.Contains(string(got.payload), reasonShutdown) {
		t.Errorf("payload = %s, want %s", got.payload, reasonShutdown)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Error("client still connected after Close")
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	fake.Disconnect(0)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v", err)
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got  string
		want string
	}{
		{topics.Command("garage-door"), "garage/command/garage-door"},
		{topics.Ack("garage-door"), "garage/ack/garage-door"},
		{topics.State("garage-door"), "garage/state/garage-door"},
		{topics.Request("garage-door"), "garage/request/garage-door"},
		{topics.Response("garage-door", "req-1"), "garage/response/garage-door/req-1"},
		{topics.Health("garage-door"), "garage/health/garage-door"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}
