package core

import (
	"fmt"
	"net"
	"strings"
)

// MACHex returns the lowercase hex form of mac without separators.
func MACHex(mac net.HardwareAddr) string {
	return fmt.Sprintf("%x", []byte(mac))
}

// DeviceUUID derives a stable UUID-shaped identity from the MAC address.
// The hex digits are repeated until 32 are available and split 8-4-4-4-12.
func DeviceUUID(mac net.HardwareAddr) string {
	h := MACHex(mac)
	if h == "" {
		return ""
	}
	for len(h) < 32 {
		h += h
	}
	h = h[:32]
	return strings.Join([]string{h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]}, "-")
}

// SessionID returns the session identifier bound to the device for the
// lifetime of the process.
func SessionID(mac net.HardwareAddr) string {
	return "session-" + MACHex(mac)
}
