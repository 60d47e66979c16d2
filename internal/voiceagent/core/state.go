package core

// DeviceState is the coarse lifecycle state of the device.
type DeviceState string

const (
	StateUnknown   DeviceState = "unknown"
	StateStarting  DeviceState = "starting"
	StateIdle      DeviceState = "idle"
	StateListening DeviceState = "listening"
	StateSpeaking  DeviceState = "speaking"
	StateError     DeviceState = "error"
)

// States lists every DeviceState in declaration order.
var States = []DeviceState{
	StateUnknown,
	StateStarting,
	StateIdle,
	StateListening,
	StateSpeaking,
	StateError,
}

func (s DeviceState) String() string {
	return string(s)
}

// Ready reports whether the device finished starting and can serve a session.
func (s DeviceState) Ready() bool {
	switch s {
	case StateIdle, StateListening, StateSpeaking:
		return true
	default:
		return false
	}
}

// StateNames returns States as strings.
func StateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return names
}
