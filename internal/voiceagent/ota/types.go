package ota

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Code is the application status code in a response body. Servers send it
// either as a number or as a numeric string.
type Code int

const CodeOK Code = 200

func (c *Code) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Code(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("code must be a number or a string: %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("code %q is not numeric", s)
	}
	*c = Code(n)
	return nil
}

type response[T any] struct {
	Code Code `json:"code"`
	Data T    `json:"data"`
}

// VersionInfo is the payload of the version check.
type VersionInfo struct {
	Version    string `json:"version"`
	ServeURL   string `json:"SERVE_URL,omitempty"`
	ActiveURL  string `json:"ACTIVE_URL,omitempty"`
	VersionURL string `json:"VERSION_URL,omitempty"`
}

type activationRequest struct {
	UUID   string `json:"uuid"`
	UserID string `json:"userid"`
}

// Activation is the payload of the activation call.
type Activation struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}
