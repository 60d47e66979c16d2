package hal

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// defaultMockMAC is a locally administered address used when nothing else is configured.
const defaultMockMAC = "02:00:5e:10:00:01"

// Drivers bundles the radios of one device.
type Drivers struct {
	WiFi  core.WiFi
	BLE   core.BLE
	Board core.Board
}

// New builds the drivers selected by opts.
func New(opts *options.HALOptions) (*Drivers, error) {
	switch opts.Driver {
	case options.HALDriverMock:
		mac, err := mockMAC(opts.MAC)
		if err != nil {
			return nil, err
		}
		networks, err := ParseNetworks(opts.MockNetworks)
		if err != nil {
			return nil, err
		}
		return &Drivers{
			WiFi:  NewMockWiFi(mac, networks),
			BLE:   NewMockBLE(),
			Board: core.Board{BoardName: opts.BoardName, ChipModel: "mock"},
		}, nil

	case options.HALDriverLinux:
		wifi, err := newLinuxWiFi(opts.Interface, opts.MAC)
		if err != nil {
			return nil, err
		}
		log.Warn("No BLE peripheral driver on this platform, credentials must be seeded or added with 'store add-wifi'")
		return &Drivers{
			WiFi:  wifi,
			Board: core.Board{BoardName: opts.BoardName, ChipModel: chipModel()},
		}, nil

	default:
		return nil, fmt.Errorf("unknown hal driver %q", opts.Driver)
	}
}

// ParseNetworks decodes ssid=password pairs.
func ParseNetworks(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		ssid, pw, ok := strings.Cut(p, "=")
		if !ok || ssid == "" {
			return nil, fmt.Errorf("invalid network %q, want ssid=password", p)
		}
		out[ssid] = pw
	}
	return out, nil
}

func mockMAC(override string) (net.HardwareAddr, error) {
	if override == "" {
		override = os.Getenv("CPEER_DEVICE_MAC")
	}
	if override == "" {
		override = defaultMockMAC
	}
	mac, err := net.ParseMAC(override)
	if err != nil {
		return nil, fmt.Errorf("invalid device mac %q: %w", override, err)
	}
	return mac, nil
}

// chipModel reads the SoC model the kernel reports, if any.
func chipModel() string {
	for _, p := range []string{"/proc/device-tree/model", "/sys/class/dmi/id/product_name"} {
		if data, err := os.ReadFile(p); err == nil {
			if m := strings.Trim(strings.TrimSpace(string(data)), "\x00"); m != "" {
				return m
			}
		}
	}
	return "unknown"
}
