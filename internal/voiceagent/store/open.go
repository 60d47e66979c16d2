package store

import (
	"fmt"

	"github.com/autopeer-io/voicepeer/pkg/options"
)

// Open returns the backend selected by opts.
func Open(opts *options.StoreOptions) (Store, error) {
	switch opts.Driver {
	case options.StoreDriverMemory:
		return NewMemory(), nil
	case options.StoreDriverSQLite:
		return OpenSQLite(SQLiteConfig{Path: opts.Path, BusyTimeout: opts.BusyTimeout})
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
