package hal

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

// ErrRadioOff is returned when a driver is used before Active(true).
var ErrRadioOff = errors.New("radio is not active")

// MockWiFi simulates a station radio that can see a fixed set of access points.
type MockWiFi struct {
	mu        sync.Mutex
	mac       net.HardwareAddr
	networks  map[string]string
	active    bool
	connected bool
	ssid      string
	powerSave bool
	attempts  int
}

var _ core.WiFi = (*MockWiFi)(nil)

// NewMockWiFi returns a radio that associates with any ssid in networks
// when given the matching password.
func NewMockWiFi(mac net.HardwareAddr, networks map[string]string) *MockWiFi {
	n := make(map[string]string, len(networks))
	for k, v := range networks {
		n[k] = v
	}
	return &MockWiFi{mac: mac, networks: n}
}

func (w *MockWiFi) Active(enable bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = enable
	if !enable {
		w.connected = false
		w.ssid = ""
	}
	return nil
}

func (w *MockWiFi) Connect(ssid, password string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return ErrRadioOff
	}
	w.attempts++
	pw, ok := w.networks[ssid]
	w.connected = ok && pw == password
	if w.connected {
		w.ssid = ssid
	}
	log.Debug("[HAL-Mock] association requested", "ssid", ssid, "connected", w.connected)
	return nil
}

func (w *MockWiFi) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.ssid = ""
	return nil
}

func (w *MockWiFi) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *MockWiFi) SetPowerSave(enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return ErrRadioOff
	}
	w.powerSave = enabled
	return nil
}

func (w *MockWiFi) PowerSave() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.powerSave
}

func (w *MockWiFi) MAC() (net.HardwareAddr, error) {
	return w.mac, nil
}

func (w *MockWiFi) Info() core.LinkInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return core.LinkInfo{}
	}
	return core.LinkInfo{SSID: w.ssid, IP: "192.168.4.2", RSSI: -52}
}

// AddNetwork makes an access point visible.
func (w *MockWiFi) AddNetwork(ssid, password string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.networks[ssid] = password
}

// RemoveNetwork makes an access point disappear. A link to it stays up until Drop.
func (w *MockWiFi) RemoveNetwork(ssid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.networks, ssid)
}

// Drop simulates losing the link.
func (w *MockWiFi) Drop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// Attempts returns how many association requests were issued.
func (w *MockWiFi) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// MockBLE simulates a peripheral-role controller. Events are injected with Emit.
type MockBLE struct {
	mu       sync.Mutex
	active   bool
	handler  func(core.BLEEvent)
	chars    map[uint16][2]uint16
	next     uint16
	payload  []byte
	interval time.Duration
}

var _ core.BLE = (*MockBLE)(nil)

func NewMockBLE() *MockBLE {
	return &MockBLE{chars: make(map[uint16][2]uint16), next: 0x10}
}

func (b *MockBLE) Active(enable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = enable
	if !enable {
		b.interval = 0
		b.payload = nil
		b.chars = make(map[uint16][2]uint16)
	}
	return nil
}

func (b *MockBLE) RegisterCharacteristic(service, characteristic uint16) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return 0, ErrRadioOff
	}
	h := b.next
	b.next++
	b.chars[h] = [2]uint16{service, characteristic}
	return h, nil
}

func (b *MockBLE) Advertise(interval time.Duration, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return ErrRadioOff
	}
	b.interval = interval
	if interval <= 0 {
		b.interval = 0
		b.payload = nil
		return nil
	}
	b.payload = append([]byte(nil), payload...)
	return nil
}

func (b *MockBLE) SetEventHandler(fn func(core.BLEEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = fn
}

// Emit delivers ev to the installed handler as the radio interrupt would.
// It reports whether a handler received it.
func (b *MockBLE) Emit(ev core.BLEEvent) bool {
	b.mu.Lock()
	h := b.handler
	active := b.active
	b.mu.Unlock()

	if h == nil || !active {
		return false
	}
	h(ev)
	return true
}

// Advertising returns the current advertising payload and whether advertising is on.
func (b *MockBLE) Advertising() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payload, b.interval > 0
}

// IsActive reports whether the controller is powered.
func (b *MockBLE) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}
