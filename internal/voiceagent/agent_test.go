package voiceagent

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/hal"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/iot"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/protocol"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

const (
	waitTimeout = 2 * time.Second
	testMAC     = "02:00:5e:10:00:01"
	// first handle the mock BLE controller hands out
	credentialHandle = 0x10
)

type recordingReporter struct {
	mu     sync.Mutex
	states []core.DeviceState
	things []json.RawMessage
	boards []core.Board
}

func (r *recordingReporter) ReportState(_ context.Context, s core.DeviceState, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	return nil
}

func (r *recordingReporter) ReportThings(_ context.Context, states json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.things = append(r.things, states)
	return nil
}

func (r *recordingReporter) ReportBoard(_ context.Context, b core.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
	return nil
}

func (r *recordingReporter) stateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// backend is a websocket server standing in for the voice backend.
type backend struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	headers chan http.Header
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{conns: make(chan *websocket.Conn, 4), headers: make(chan http.Header, 4)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.headers <- r.Header.Clone()
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- c
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *backend) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(waitTimeout):
		t.Fatal("backend saw no connection")
		return nil
	}
}

func readMessage(t *testing.T, c *websocket.Conn) protocol.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("backend read: %v", err)
	}
	var m protocol.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("backend got invalid JSON %q: %v", data, err)
	}
	return m
}

type fixture struct {
	agent    *Agent
	wifi     *hal.MockWiFi
	ble      *hal.MockBLE
	settings *store.Settings
	reporter *recordingReporter
	clock    *testingclock.FakeClock
	reboots  int
}

func testConfig(sessionURL string) *Config {
	cfg := &Config{
		HttpOptions:         options.NewHttpOptions(),
		MqttOptions:         options.NewMqttOptions(),
		SessionOptions:      options.NewSessionOptions(),
		NetworkOptions:      options.NewNetworkOptions(),
		ProvisioningOptions: options.NewProvisioningOptions(),
		StoreOptions:        options.NewStoreOptions(),
		HALOptions:          options.NewHALOptions(),
	}
	cfg.HttpOptions.Addr = ""
	cfg.StoreOptions.Driver = options.StoreDriverMemory
	cfg.SessionOptions.URL = sessionURL
	cfg.SessionOptions.HandshakeTimeout = waitTimeout
	cfg.NetworkOptions.ConnectAttempts = 1
	cfg.NetworkOptions.RetryInterval = time.Millisecond
	cfg.NetworkOptions.AssociateTimeout = 100 * time.Millisecond
	cfg.NetworkOptions.PollInterval = 5 * time.Millisecond
	return cfg
}

func testPlatform(t *testing.T, networks map[string]string) (*Platform, *hal.MockWiFi, *hal.MockBLE, *recordingReporter) {
	t.Helper()
	mac, err := net.ParseMAC(testMAC)
	if err != nil {
		t.Fatal(err)
	}
	wifi := hal.NewMockWiFi(mac, networks)
	ble := hal.NewMockBLE()
	reporter := &recordingReporter{}
	settings := store.NewSettings(store.NewMemory())

	identity, err := resolveIdentity(context.Background(), settings, wifi)
	if err != nil {
		t.Fatalf("resolveIdentity() error = %v", err)
	}
	return &Platform{
		Settings: settings,
		Drivers:  &hal.Drivers{WiFi: wifi, BLE: ble, Board: core.Board{BoardName: "test", ChipModel: "mock"}},
		Identity: identity,
		Reporter: reporter,
	}, wifi, ble, reporter
}

func newFixture(t *testing.T, networks map[string]string, cfg *Config) *fixture {
	t.Helper()
	p, wifi, ble, reporter := testPlatform(t, networks)
	f := &fixture{
		wifi:     wifi,
		ble:      ble,
		settings: p.Settings,
		reporter: reporter,
		clock:    testingclock.NewFakeClock(time.Now()),
	}
	f.agent = NewAgent(p, cfg, func() { f.reboots++ }, WithAgentClock(f.clock))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		f.agent.shutdown()
	})
	f.agent.ctx = ctx
	return f
}

// drain plays the scheduler goroutine until the queue is empty.
func (f *fixture) drain() {
	for f.agent.scheduler.RunOnce() > 0 {
	}
}

// eventually drains the queue until cond holds.
func (f *fixture) eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		f.drain()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) emit(t *testing.T, ev core.BLEEvent) {
	t.Helper()
	if !f.ble.Emit(ev) {
		t.Fatalf("event %T not delivered", ev)
	}
	f.agent.scheduler.RunOnce()
}

func TestProvisioningEndToEnd(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t, map[string]string{"Home": "pw"}, testConfig(b.url()))
	a := f.agent

	a.bootstrap(a.ctx)
	if _, on := f.ble.Advertising(); !on {
		t.Fatal("device is not advertising without stored credentials")
	}

	f.emit(t, core.CentralConnected{Conn: 1})
	f.emit(t, core.CharacteristicWritten{Conn: 1, Handle: credentialHandle, Value: []byte(`{"user_id":"u1","ss`)})
	f.emit(t, core.CharacteristicWritten{Conn: 1, Handle: credentialHandle, Value: []byte(`id":"Home","password":"pw"}`)})

	if !f.wifi.IsConnected() {
		t.Fatal("wifi not associated after credential")
	}
	if f.ble.IsActive() {
		t.Error("BLE radio still powered after provisioning")
	}

	// The done callback queued the rest of the boot.
	f.drain()
	if got := a.State(); got != core.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}

	conn := b.accept(t)
	h := <-b.headers
	if got := h.Get("Device-Id"); got != testMAC {
		t.Errorf("Device-Id = %q", got)
	}
	if got := h.Get("Client-Id"); got != core.DeviceUUID(a.platform.Identity.MAC) {
		t.Errorf("Client-Id = %q", got)
	}
	if got := readMessage(t, conn); got.Type != protocol.TypeHello {
		t.Fatalf("first message = %+v, want hello", got)
	}

	for _, want := range []string{"Speaker", "System"} {
		m := readMessage(t, conn)
		if m.Type != protocol.TypeIoT || len(m.Descriptors) != 1 || m.Descriptors[0].Name != want {
			t.Fatalf("descriptor message = %+v, want %s", m, want)
		}
	}
	m := readMessage(t, conn)
	if len(m.States) != 2 || len(m.Descriptors) != 0 {
		t.Fatalf("state message = %+v, want two full states", m)
	}

	creds, err := f.settings.WiFiList(context.Background())
	if err != nil || len(creds) != 1 || creds[0].SSID != "Home" {
		t.Errorf("WiFiList() = %v, %v", creds, err)
	}
}

func TestBootstrapWithStoredCredential(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t, map[string]string{"Home": "pw"}, testConfig(b.url()))
	if err := f.settings.AddWiFi(context.Background(), store.Credential{SSID: "Home", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	f.agent.bootstrap(f.agent.ctx)

	if f.ble.IsActive() {
		t.Error("provisioning started although a stored credential works")
	}
	if got := f.agent.State(); got != core.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	b.accept(t)
	if !f.agent.Status().SessionOpen {
		t.Error("session not open after boot")
	}
	if len(f.reporter.boards) != 1 || f.reporter.boards[0].UUID == "" {
		t.Errorf("board reports = %+v", f.reporter.boards)
	}
}

func TestNetworkLossFallsBackToProvisioning(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t, map[string]string{"Home": "pw"}, testConfig(b.url()))
	a := f.agent
	if err := f.settings.AddWiFi(context.Background(), store.Credential{SSID: "Home", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	a.bootstrap(a.ctx)
	b.accept(t)
	f.drain()
	if got := a.State(); got != core.StateIdle {
		t.Fatalf("state after boot = %s, want idle", got)
	}

	f.wifi.RemoveNetwork("Home")
	f.wifi.Drop()
	a.onNetworkLost()

	if _, on := f.ble.Advertising(); !on {
		t.Fatal("not advertising after the stored network vanished")
	}

	// The closed session is reported on later ticks; none of them may mark the device ready.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.drain()
		if s := a.Status(); s.Ready || s.State != string(core.StateStarting) {
			t.Fatalf("Status() = %+v while provisioning", s)
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := a.Status()
	if s.SessionOpen || s.Network {
		t.Errorf("Status() = %+v, want no session and no network", s)
	}
}

func TestBootstrapFollowsVersionCheck(t *testing.T) {
	b := newBackend(t)

	var mu sync.Mutex
	var activated []string
	ota := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"code":200,"data":{"version":"1.1","SERVE_URL":"` + b.url() + `"}}`))
		case http.MethodPost:
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			activated = append(activated, req["userid"])
			mu.Unlock()
			_, _ = w.Write([]byte(`{"code":"200","data":{"active":true}}`))
		}
	}))
	t.Cleanup(ota.Close)

	cfg := testConfig("ws://127.0.0.1:1/unused")
	cfg.SessionOptions.VersionURL = ota.URL + "/version"
	cfg.SessionOptions.ActivateURL = ota.URL + "/activate"
	f := newFixture(t, map[string]string{"Home": "pw"}, cfg)

	ctx := context.Background()
	_ = f.settings.AddWiFi(ctx, store.Credential{SSID: "Home", Password: "pw"})
	_ = f.settings.SetString(ctx, store.KeyUserID, "user-7")

	f.agent.bootstrap(f.agent.ctx)

	b.accept(t)
	if serve, _ := f.settings.ServeURL(ctx); serve != b.url() {
		t.Errorf("SERVE_URL = %q", serve)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(activated) != 1 || activated[0] != "user-7" {
		t.Errorf("activation calls = %v", activated)
	}
	if ok, _ := f.settings.Activated(ctx); !ok {
		t.Error("ACTIVATED not persisted")
	}
}

func TestBootstrapWithoutProvisioning(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/unused")
	p, _, _, _ := testPlatform(t, nil)
	p.Drivers.BLE = nil

	a := NewAgent(p, cfg, func() {}, WithAgentClock(testingclock.NewFakeClock(time.Now())))
	a.bootstrap(context.Background())

	if got := a.State(); got != core.StateError {
		t.Errorf("state = %s, want error", got)
	}
}

func TestCommandsContinueAfterFailure(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))

	f.agent.handleMessage(protocol.Message{
		Type: protocol.TypeIoT,
		Commands: []iot.Command{
			{Name: "Lamp", Method: "TurnOn"},
			{Name: "Speaker", Method: "SetVolume", Parameters: map[string]any{"volume": 250.0}},
			{Name: "Speaker", Method: "SetVolume", Parameters: map[string]any{"volume": 30.0}},
		},
	})

	if got := f.agent.speaker.Volume(); got != 30 {
		t.Errorf("volume = %d, want 30", got)
	}
	if len(f.reporter.things) != 1 {
		t.Fatalf("capability reports = %d, want 1", len(f.reporter.things))
	}

	// Nothing changed since: no further push.
	f.agent.UpdateIoTStates()
	if len(f.reporter.things) != 1 {
		t.Errorf("unchanged states reported again")
	}
}

func TestHandleRemoteCommands(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))

	f.agent.HandleRemoteCommands([]json.RawMessage{
		json.RawMessage(`{"name":"Speaker","method":"SetVolume","parameters":{"volume":10}}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"method":"SetVolume"}`),
	})
	if got := f.agent.speaker.Volume(); got != defaultVolume {
		t.Fatalf("command ran off the scheduler, volume = %d", got)
	}

	f.drain()
	if got := f.agent.speaker.Volume(); got != 10 {
		t.Errorf("volume = %d, want 10", got)
	}
}

func TestTTSMovesDeviceState(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))
	a := f.agent
	a.setDeviceState(core.StateIdle)

	steps := []struct {
		state string
		want  core.DeviceState
	}{
		{protocol.StateStart, core.StateSpeaking},
		{protocol.StateStop, core.StateIdle},
		{protocol.StateStop, core.StateIdle},
	}
	for _, s := range steps {
		a.handleMessage(protocol.Message{Type: protocol.TypeTTS, State: s.state})
		if got := a.State(); got != s.want {
			t.Errorf("after tts %s: state = %s, want %s", s.state, got, s.want)
		}
	}
}

func TestSetDeviceStateReportsChangesOnly(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))

	f.agent.setDeviceState(core.StateIdle)
	f.agent.setDeviceState(core.StateIdle)
	f.agent.setDeviceState(core.StateListening)

	if got := f.reporter.stateCount(); got != 2 {
		t.Errorf("state reports = %d, want 2", got)
	}
}

func TestToggleChat(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t, nil, testConfig(b.url()))
	a := f.agent
	a.setDeviceState(core.StateIdle)

	a.ToggleChat()
	conn := b.accept(t)
	if got := readMessage(t, conn); got.Type != protocol.TypeHello {
		t.Fatalf("first message = %+v", got)
	}

	tests := []struct {
		name   string
		before core.DeviceState
		check  func(protocol.Message) bool
		after  core.DeviceState
	}{
		{
			name:  "idle starts listening",
			check: func(m protocol.Message) bool { return m.Type == protocol.TypeListen && m.State == protocol.StateStart && m.Mode == protocol.ModeAuto },
			after: core.StateListening,
		},
		{
			name:   "listening stops",
			before: core.StateListening,
			check:  func(m protocol.Message) bool { return m.Type == protocol.TypeListen && m.State == protocol.StateStop },
			after:  core.StateIdle,
		},
		{
			name:   "speaking aborts",
			before: core.StateSpeaking,
			check:  func(m protocol.Message) bool { return m.Type == protocol.TypeAbort && m.Reason == "none" },
			after:  core.StateIdle,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if i > 0 {
				a.setDeviceState(tt.before)
				a.ToggleChat()
			}
			if m := readMessage(t, conn); !tt.check(m) {
				t.Errorf("sent %+v", m)
			}
			if got := a.State(); got != tt.after {
				t.Errorf("state = %s, want %s", got, tt.after)
			}
		})
	}
}

func TestLivenessClosesIdleChannel(t *testing.T) {
	b := newBackend(t)
	f := newFixture(t, nil, testConfig(b.url()))
	a := f.agent

	if err := a.openSession(a.ctx); err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	b.accept(t)
	a.setDeviceState(core.StateListening)

	a.checkLiveness()
	if !a.protocol.IsAudioChannelOpened() {
		t.Fatal("fresh channel closed by liveness check")
	}

	f.clock.Step(a.cfg.SessionOptions.IdleTimeout)
	a.checkLiveness()
	if a.protocol.IsAudioChannelOpened() {
		t.Fatal("idle channel still open")
	}
	f.eventually(t, "idle state after close", func() bool { return a.State() == core.StateIdle })
}

func TestClockLoopSchedulesLiveness(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))
	a := f.agent

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runClock(ctx) }()

	for i := 0; i < heartbeatEvery; i++ {
		deadline := time.Now().Add(waitTimeout)
		for !f.clock.HasWaiters() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		f.clock.Step(tickInterval)
		want := int64(i + 1)
		for a.Ticks() < want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runClock() error = %v", err)
	}

	if got := a.Ticks(); got != heartbeatEvery {
		t.Errorf("ticks = %d, want %d", got, heartbeatEvery)
	}
	if got := a.scheduler.Pending(); got != 1 {
		t.Errorf("pending tasks after heartbeat = %d, want 1", got)
	}
}

func TestSystemCapability(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))
	ctx := context.Background()
	_ = f.settings.MarkActivated(ctx, "user-7")

	if err := f.agent.registry.Invoke(iot.Command{Name: "System", Method: "Reboot"}); err != nil {
		t.Fatalf("Reboot error = %v", err)
	}
	if f.reboots != 1 {
		t.Errorf("reboots = %d, want 1", f.reboots)
	}

	if err := f.agent.registry.Invoke(iot.Command{Name: "System", Method: "FactoryReset"}); err != nil {
		t.Fatalf("FactoryReset error = %v", err)
	}
	if f.reboots != 2 {
		t.Errorf("reboots = %d, want 2", f.reboots)
	}
	if user, _ := f.settings.UserID(ctx); user != "" {
		t.Errorf("USER_ID = %q after factory reset", user)
	}
	if ok, _ := f.settings.Activated(ctx); ok {
		t.Error("still activated after factory reset")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil, testConfig("ws://127.0.0.1:1/unused"))
	f.agent.setDeviceState(core.StateIdle)

	s := f.agent.Status()
	if s.DeviceID != "02005e100001" || s.State != "idle" || !s.Ready {
		t.Errorf("Status() = %+v", s)
	}
	if s.SessionOpen || s.Network {
		t.Errorf("Status() = %+v, want no session and no network", s)
	}
	if strings.Join(s.Things, ",") != "Speaker,System" {
		t.Errorf("things = %v", s.Things)
	}
}
