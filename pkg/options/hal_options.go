package options

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HALOptions)(nil)

const (
	HALDriverMock  = "mock"
	HALDriverLinux = "linux"
)

// HALOptions selects the radio drivers.
type HALOptions struct {
	Driver    string `json:"driver" mapstructure:"driver"`
	Interface string `json:"interface" mapstructure:"interface"`
	MAC       string `json:"mac" mapstructure:"mac"`
	BoardName string `json:"board-name" mapstructure:"board-name"`

	// MockNetworks lists the access points visible to the mock driver as ssid=password.
	MockNetworks []string `json:"mock-networks" mapstructure:"mock-networks"`
}

// NewHALOptions creates a HALOptions object with default parameters.
func NewHALOptions() *HALOptions {
	return &HALOptions{
		Driver:    HALDriverMock,
		Interface: "wlan0",
		BoardName: "voicepeer-devkit",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HALOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Driver != HALDriverMock && o.Driver != HALDriverLinux {
		errs = append(errs, fmt.Errorf("unknown hal.driver %q", o.Driver))
	}
	if o.MAC != "" {
		if _, err := net.ParseMAC(o.MAC); err != nil {
			errs = append(errs, fmt.Errorf("invalid hal.mac: %w", err))
		}
	}
	for _, n := range o.MockNetworks {
		if !strings.Contains(n, "=") {
			errs = append(errs, fmt.Errorf("hal.mock-networks entry %q must be ssid=password", n))
		}
	}
	return errs
}

// AddFlags adds flags for HALOptions to the specified FlagSet.
func (o *HALOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "hal.driver", o.Driver, "Radio driver: 'mock' or 'linux' (NetworkManager).")
	fs.StringVar(&o.Interface, "hal.interface", o.Interface, "Wireless interface used by the linux driver.")
	fs.StringVar(&o.MAC, "hal.mac", o.MAC, "Override the station MAC address (identity of the device).")
	fs.StringVar(&o.BoardName, "hal.board-name", o.BoardName, "Board name reported in the board description.")
	fs.StringSliceVar(&o.MockNetworks, "hal.mock-networks", o.MockNetworks, "Access points visible to the mock driver, as ssid=password.")
}
