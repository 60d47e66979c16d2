package iot

// SystemHooks connects the "System" capability to the agent.
type SystemHooks struct {
	State        func() string
	Activated    func() bool
	Reboot       func() error
	FactoryReset func() error
}

// NewSystem returns the "System" capability.
func NewSystem(h SystemHooks) *Thing {
	return NewThing("System", "Device lifecycle control").
		AddProperty("state", "Current device state", func() any { return h.State() }).
		AddProperty("activated", "Whether the device is bound to a user", func() any { return h.Activated() }).
		AddMethod("Reboot", "Restart the agent", nil, func(map[string]any) error {
			return h.Reboot()
		}).
		AddMethod("FactoryReset", "Forget the bound user and restart", nil, func(map[string]any) error {
			return h.FactoryReset()
		})
}
