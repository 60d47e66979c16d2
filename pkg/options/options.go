package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group that can be bound to a
// flag set and validated after parsing.
type IOptions interface {
	// Validate returns every problem found in the option values.
	Validate() []error

	// AddFlags binds the option fields to the given flag set.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a usable port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not in a valid format (ip:port): %w", addr, err)
	}
	if host != "" && net.ParseIP(host) == nil && host != "localhost" {
		return fmt.Errorf("%q is not a valid IP address", host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port number", port)
	}
	return nil
}
