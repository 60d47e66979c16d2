package network

import (
	"context"
)

// Controller brings the device onto a network and watches the link.
type Controller interface {
	// StartNetwork connects with the first stored credential that works.
	// It returns false, without error, when none does.
	StartNetwork(ctx context.Context) (bool, error)

	// Connect associates with one network. Expected failures such as a wrong
	// password return false; errors are reserved for driver faults.
	Connect(ctx context.Context, ssid, password string) (bool, error)

	IsConnected() bool

	SetPowerSave(enabled bool) error

	// OnDisconnect installs the callback fired once when a monitored link drops.
	// It runs on the monitor goroutine.
	OnDisconnect(fn func())

	// Stop ends link monitoring.
	Stop()
}

// Provisioner obtains credentials out of band when no stored network works.
type Provisioner interface {
	// Provision starts the out-of-band flow and returns immediately.
	// done runs once the device has been connected through it.
	Provision(ctx context.Context, done func()) error

	// Close aborts a running flow and releases the radio.
	Close() error
}

// ProvisioningCapable is implemented by controllers that can fall back to a Provisioner.
type ProvisioningCapable interface {
	Provisioner() Provisioner
}

type provisioningController struct {
	Controller
	provisioner Provisioner
}

var _ ProvisioningCapable = (*provisioningController)(nil)

// WithProvisioner returns c extended with the ProvisioningCapable capability.
func WithProvisioner(c Controller, p Provisioner) Controller {
	return &provisioningController{Controller: c, provisioner: p}
}

func (c *provisioningController) Provisioner() Provisioner {
	return c.provisioner
}
