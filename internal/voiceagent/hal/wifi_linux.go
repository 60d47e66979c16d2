//go:build linux

package hal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

const commandTimeout = 30 * time.Second

// nmcli exit status for a failed activation (wrong password, AP out of range).
const nmcliActivationFailed = 4

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LinuxWiFi drives a station interface through NetworkManager.
type LinuxWiFi struct {
	iface string
	mac   net.HardwareAddr
	run   runner
}

var _ core.WiFi = (*LinuxWiFi)(nil)

func newLinuxWiFi(iface, macOverride string) (*LinuxWiFi, error) {
	w := &LinuxWiFi{iface: iface, run: execRunner}

	addr := macOverride
	if addr == "" {
		data, err := os.ReadFile(filepath.Join("/sys/class/net", iface, "address"))
		if err != nil {
			return nil, fmt.Errorf("reading mac of %s: %w", iface, err)
		}
		addr = strings.TrimSpace(string(data))
	}
	mac, err := net.ParseMAC(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid mac %q: %w", addr, err)
	}
	w.mac = mac
	return w, nil
}

func (w *LinuxWiFi) nmcli(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return w.run(ctx, "nmcli", args...)
}

func (w *LinuxWiFi) Active(enable bool) error {
	state := "off"
	if enable {
		state = "on"
	}
	if _, err := w.nmcli("radio", "wifi", state); err != nil {
		return fmt.Errorf("nmcli radio wifi %s: %w", state, err)
	}
	return nil
}

func (w *LinuxWiFi) Connect(ssid, password string) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", w.iface)

	_, err := w.nmcli(args...)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == nmcliActivationFailed {
		log.Debug("nmcli rejected the association", "ssid", ssid)
		return nil
	}
	if err != nil {
		return fmt.Errorf("nmcli connect %q: %w", ssid, err)
	}
	return nil
}

func (w *LinuxWiFi) Disconnect() error {
	if _, err := w.nmcli("device", "disconnect", w.iface); err != nil {
		return fmt.Errorf("nmcli disconnect: %w", err)
	}
	return nil
}

func (w *LinuxWiFi) IsConnected() bool {
	out, err := w.nmcli("-t", "-f", "DEVICE,STATE", "device")
	if err != nil {
		log.Error(err, "Failed to query device state", "iface", w.iface)
		return false
	}
	return deviceState(string(out), w.iface) == "connected"
}

func (w *LinuxWiFi) SetPowerSave(enabled bool) error {
	mode := "off"
	if enabled {
		mode = "on"
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := w.run(ctx, "iw", "dev", w.iface, "set", "power_save", mode); err != nil {
		return fmt.Errorf("iw power_save %s: %w", mode, err)
	}
	return nil
}

func (w *LinuxWiFi) MAC() (net.HardwareAddr, error) {
	return w.mac, nil
}

func (w *LinuxWiFi) Info() core.LinkInfo {
	var info core.LinkInfo

	if out, err := w.nmcli("-t", "-f", "ACTIVE,SSID,SIGNAL", "device", "wifi", "list", "ifname", w.iface); err == nil {
		info.SSID, info.RSSI = activeNetwork(string(out))
	}
	if out, err := w.nmcli("-t", "-g", "IP4.ADDRESS", "device", "show", w.iface); err == nil {
		ip, _, _ := strings.Cut(strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0]), "/")
		info.IP = ip
	}
	return info
}

// deviceState picks the STATE column for iface out of `nmcli -t -f DEVICE,STATE device`.
func deviceState(out, iface string) string {
	for _, line := range strings.Split(out, "\n") {
		dev, state, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && dev == iface {
			return state
		}
	}
	return ""
}

// activeNetwork parses `nmcli -t -f ACTIVE,SSID,SIGNAL device wifi list`.
// nmcli reports signal as a 0-100 quality which is mapped onto dBm.
func activeNetwork(out string) (string, int) {
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) != 3 || fields[0] != "yes" {
			continue
		}
		quality, err := strconv.Atoi(fields[2])
		if err != nil {
			return fields[1], 0
		}
		return fields[1], quality/2 - 100
	}
	return "", 0
}

// splitTerse splits a terse nmcli line on unescaped colons.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case line[i] == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(fields, cur.String())
}
