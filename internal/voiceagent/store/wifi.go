package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredential is returned for credentials the list encoding cannot hold.
var ErrInvalidCredential = errors.New("invalid wifi credential")

const (
	entrySep = ";"
	fieldSep = ","
)

// Credential is a stored Wi-Fi network.
type Credential struct {
	SSID     string `json:"ssid" yaml:"ssid"`
	Password string `json:"password" yaml:"password"`
}

// Validate rejects credentials that would corrupt the ssid,password;... encoding.
func (c Credential) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("%w: empty ssid", ErrInvalidCredential)
	}
	if strings.ContainsAny(c.SSID, entrySep+fieldSep) {
		return fmt.Errorf("%w: ssid %q contains %q or %q", ErrInvalidCredential, c.SSID, entrySep, fieldSep)
	}
	if strings.Contains(c.Password, entrySep) {
		return fmt.Errorf("%w: password for %q contains %q", ErrInvalidCredential, c.SSID, entrySep)
	}
	return nil
}

// ParseWiFiList decodes "ssid,password;ssid2,password2". Entries without a
// separator or with an empty ssid are skipped. A repeated ssid keeps its
// first position and its last password.
func ParseWiFiList(s string) []Credential {
	var out []Credential
	for _, entry := range strings.Split(s, entrySep) {
		ssid, password, ok := strings.Cut(entry, fieldSep)
		if !ok || ssid == "" {
			continue
		}
		out = upsert(out, Credential{SSID: ssid, Password: password})
	}
	return out
}

// FormatWiFiList is the inverse of ParseWiFiList.
func FormatWiFiList(creds []Credential) string {
	parts := make([]string, 0, len(creds))
	for _, c := range creds {
		parts = append(parts, c.SSID+fieldSep+c.Password)
	}
	return strings.Join(parts, entrySep)
}

func upsert(creds []Credential, c Credential) []Credential {
	for i := range creds {
		if creds[i].SSID == c.SSID {
			creds[i].Password = c.Password
			return creds
		}
	}
	return append(creds, c)
}

func remove(creds []Credential, ssid string) ([]Credential, bool) {
	for i := range creds {
		if creds[i].SSID == ssid {
			return append(creds[:i], creds[i+1:]...), true
		}
	}
	return creds, false
}
