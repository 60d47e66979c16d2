//go:build !linux

package hal

import (
	"errors"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
)

func newLinuxWiFi(string, string) (core.WiFi, error) {
	return nil, errors.New("the linux wifi driver is only available on linux")
}
