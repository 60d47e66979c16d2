package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Seed is a factory provisioning file applied before first boot.
//
//	device_id: 0c8b95a1-b2c3-0c8b-95a1-b2c30c8b95a1
//	serve_url: wss://voice.example.com/v1/
//	version_url: https://voice.example.com/ota/
//	wifi:
//	  - ssid: lab
//	    password: secret
type Seed struct {
	DeviceID   string       `yaml:"device_id"`
	ServeURL   string       `yaml:"serve_url"`
	ActiveURL  string       `yaml:"active_url"`
	VersionURL string       `yaml:"version_url"`
	WiFi       []Credential `yaml:"wifi"`
}

// LoadSeed decodes a seed document. Unknown fields are rejected.
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	for _, c := range seed.WiFi {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &seed, nil
}

// Apply writes every non-empty field of the seed.
func (seed *Seed) Apply(ctx context.Context, s *Settings) error {
	for key, value := range map[string]string{
		KeyDeviceID:   seed.DeviceID,
		KeyServeURL:   seed.ServeURL,
		KeyActiveURL:  seed.ActiveURL,
		KeyVersionURL: seed.VersionURL,
	} {
		if value == "" {
			continue
		}
		if err := s.SetString(ctx, key, value); err != nil {
			return err
		}
	}
	for _, c := range seed.WiFi {
		if err := s.AddWiFi(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
