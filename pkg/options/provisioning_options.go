package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ProvisioningOptions)(nil)

// ProvisioningOptions configures the BLE credential provisioning service.
type ProvisioningOptions struct {
	ServiceUUID        uint16        `json:"service-uuid" mapstructure:"service-uuid"`
	CharacteristicUUID uint16        `json:"characteristic-uuid" mapstructure:"characteristic-uuid"`
	AdvertiseInterval  time.Duration `json:"advertise-interval" mapstructure:"advertise-interval"`
	MaxPayload         int           `json:"max-payload" mapstructure:"max-payload"`
}

// NewProvisioningOptions creates a ProvisioningOptions object with default parameters.
func NewProvisioningOptions() *ProvisioningOptions {
	return &ProvisioningOptions{
		ServiceUUID:        0x1800,
		CharacteristicUUID: 0x2A00,
		AdvertiseInterval:  100 * time.Millisecond,
		MaxPayload:         512,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ProvisioningOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.AdvertiseInterval <= 0 {
		errs = append(errs, fmt.Errorf("provisioning.advertise-interval must be positive"))
	}
	if o.MaxPayload < 64 {
		errs = append(errs, fmt.Errorf("provisioning.max-payload must be at least 64 bytes"))
	}
	return errs
}

// AddFlags adds flags for ProvisioningOptions to the specified FlagSet.
func (o *ProvisioningOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Uint16Var(&o.ServiceUUID, "provisioning.service-uuid", o.ServiceUUID, "16-bit UUID of the provisioning GATT service.")
	fs.Uint16Var(&o.CharacteristicUUID, "provisioning.characteristic-uuid", o.CharacteristicUUID, "16-bit UUID of the credential characteristic.")
	fs.DurationVar(&o.AdvertiseInterval, "provisioning.advertise-interval", o.AdvertiseInterval, "BLE advertising interval.")
	fs.IntVar(&o.MaxPayload, "provisioning.max-payload", o.MaxPayload, "Largest credential payload kept while reassembling writes.")
}
