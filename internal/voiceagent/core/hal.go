package core

import (
	"net"
	"time"
)

// LinkInfo describes the current station link.
type LinkInfo struct {
	SSID string `json:"ssid"`
	IP   string `json:"ip"`
	RSSI int    `json:"rssi"`
}

// WiFi is the station-mode radio driver.
type WiFi interface {
	// Active powers the radio up or down.
	Active(enable bool) error

	// Connect starts associating with the access point. It returns once the
	// request has been issued; completion is observed through IsConnected.
	// An error means the driver itself failed.
	Connect(ssid, password string) error

	// Disconnect drops the current association.
	Disconnect() error

	// IsConnected reports whether the station holds a usable link.
	IsConnected() bool

	// SetPowerSave toggles radio power saving.
	SetPowerSave(enabled bool) error

	// MAC returns the station MAC address, the stable identity of the device.
	MAC() (net.HardwareAddr, error)

	// Info returns details of the current link. Fields are empty when disconnected.
	Info() LinkInfo
}

// BLE is the peripheral-role Bluetooth LE driver.
type BLE interface {
	// Active powers the controller up or down. Deactivating drops every central.
	Active(enable bool) error

	// RegisterCharacteristic exposes a single read/write characteristic under
	// the given service and returns its attribute handle.
	RegisterCharacteristic(service, characteristic uint16) (uint16, error)

	// Advertise starts advertising payload every interval. A zero interval stops advertising.
	Advertise(interval time.Duration, payload []byte) error

	// SetEventHandler installs the receiver of driver events. Passing nil removes it.
	// The handler runs on the driver's context and must not block.
	SetEventHandler(fn func(BLEEvent))
}

// BLEEvent is one of CentralConnected, CentralDisconnected or CharacteristicWritten.
// Drivers decode raw interrupt data into these values once.
type BLEEvent interface {
	bleEvent()
}

// CentralConnected reports a new central connection.
type CentralConnected struct {
	Conn uint16
}

// CentralDisconnected reports a lost central connection.
type CentralDisconnected struct {
	Conn uint16
}

// CharacteristicWritten carries bytes a central wrote to a characteristic.
type CharacteristicWritten struct {
	Conn   uint16
	Handle uint16
	Value  []byte
}

func (CentralConnected) bleEvent()      {}
func (CentralDisconnected) bleEvent()   {}
func (CharacteristicWritten) bleEvent() {}

// Board describes the hardware the agent runs on.
type Board struct {
	UUID      string `json:"uuid"`
	BoardName string `json:"board_name"`
	ChipModel string `json:"chip_model"`
	LinkInfo
}
