package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items related to the local status server.
type HttpOptions struct {
	// Addr with server address. An empty address disables the server.
	Addr string `json:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds the graceful shutdown of the server.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Addr:            "127.0.0.1:8088",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil || o.Addr == "" {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the status server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the local status server (health, readiness, metrics). Empty disables it.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout of the status server.")
}
