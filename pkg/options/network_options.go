package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NetworkOptions)(nil)

// NetworkOptions controls how the Wi-Fi controller associates and watches the link.
type NetworkOptions struct {
	ConnectAttempts  int           `json:"connect-attempts" mapstructure:"connect-attempts"`
	RetryInterval    time.Duration `json:"retry-interval" mapstructure:"retry-interval"`
	AssociateTimeout time.Duration `json:"associate-timeout" mapstructure:"associate-timeout"`
	PollInterval     time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
	MonitorInterval  time.Duration `json:"monitor-interval" mapstructure:"monitor-interval"`
	PowerSave        bool          `json:"power-save" mapstructure:"power-save"`
}

// NewNetworkOptions creates a NetworkOptions object with default parameters.
func NewNetworkOptions() *NetworkOptions {
	return &NetworkOptions{
		ConnectAttempts:  3,
		RetryInterval:    time.Second,
		AssociateTimeout: 10 * time.Second,
		PollInterval:     500 * time.Millisecond,
		MonitorInterval:  5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *NetworkOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("network.connect-attempts must be at least 1"))
	}
	if o.PollInterval <= 0 || o.MonitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("network poll and monitor intervals must be positive"))
	}
	if o.AssociateTimeout < o.PollInterval {
		errs = append(errs, fmt.Errorf("network.associate-timeout must not be shorter than network.poll-interval"))
	}
	return errs
}

// AddFlags adds flags for NetworkOptions to the specified FlagSet.
func (o *NetworkOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ConnectAttempts, "network.connect-attempts", o.ConnectAttempts, "Association attempts per credential.")
	fs.DurationVar(&o.RetryInterval, "network.retry-interval", o.RetryInterval, "Pause between association attempts.")
	fs.DurationVar(&o.AssociateTimeout, "network.associate-timeout", o.AssociateTimeout, "How long a single attempt waits for the link to come up.")
	fs.DurationVar(&o.PollInterval, "network.poll-interval", o.PollInterval, "Link status poll interval while associating.")
	fs.DurationVar(&o.MonitorInterval, "network.monitor-interval", o.MonitorInterval, "Link status poll interval while connected.")
	fs.BoolVar(&o.PowerSave, "network.power-save", o.PowerSave, "Enable radio power saving once connected.")
}
