package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// StoreOptions selects the persistent settings backend.
type StoreOptions struct {
	Driver      string `json:"driver" mapstructure:"driver"`
	Path        string `json:"path" mapstructure:"path"`
	BusyTimeout int    `json:"busy-timeout" mapstructure:"busy-timeout"`
}

// NewStoreOptions creates a StoreOptions object with default parameters.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Driver:      StoreDriverSQLite,
		Path:        "/var/lib/voicepeer/settings.db",
		BusyTimeout: 5,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case StoreDriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", o.Driver))
	}
	return errs
}

// AddFlags adds flags for StoreOptions to the specified FlagSet.
func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "store.driver", o.Driver, "Settings backend: 'sqlite' or 'memory'.")
	fs.StringVar(&o.Path, "store.path", o.Path, "Path of the sqlite settings database.")
	fs.IntVar(&o.BusyTimeout, "store.busy-timeout", o.BusyTimeout, "Seconds to wait for a locked database.")
}
