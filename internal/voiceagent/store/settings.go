package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Settings gives typed access to the keys the device persists.
type Settings struct {
	store Store

	// wifiMu serializes read-modify-write cycles on WIFI_LIST.
	wifiMu sync.Mutex
}

func NewSettings(s Store) *Settings {
	return &Settings{store: s}
}

// Store returns the underlying key/value store.
func (s *Settings) Store() Store {
	return s.store
}

// String returns the string at key, or "" when it was never set.
func (s *Settings) String(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (s *Settings) SetString(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, key, StringValue(value))
}

// Bool returns the bool at key, or false when it was never set.
func (s *Settings) Bool(ctx context.Context, key string) (bool, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Bool()
}

func (s *Settings) SetBool(ctx context.Context, key string, value bool) error {
	return s.store.Set(ctx, key, BoolValue(value))
}

func (s *Settings) DeviceID(ctx context.Context) (string, error) {
	return s.String(ctx, KeyDeviceID)
}

func (s *Settings) ServeURL(ctx context.Context) (string, error) {
	return s.String(ctx, KeyServeURL)
}

func (s *Settings) UserID(ctx context.Context) (string, error) {
	return s.String(ctx, KeyUserID)
}

func (s *Settings) Activated(ctx context.Context) (bool, error) {
	return s.Bool(ctx, KeyActivated)
}

// MarkActivated records a successful activation for userID.
func (s *Settings) MarkActivated(ctx context.Context, userID string) error {
	if err := s.SetString(ctx, KeyUserID, userID); err != nil {
		return err
	}
	return s.SetBool(ctx, KeyActivated, true)
}

// FactoryReset forgets the bound user. Network credentials are kept.
func (s *Settings) FactoryReset(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyUserID); err != nil {
		return err
	}
	return s.SetBool(ctx, KeyActivated, false)
}

// WiFiList returns the stored credentials in insertion order.
func (s *Settings) WiFiList(ctx context.Context) ([]Credential, error) {
	raw, err := s.String(ctx, KeyWiFiList)
	if err != nil {
		return nil, err
	}
	return ParseWiFiList(raw), nil
}

// AddWiFi stores a credential. An existing ssid keeps its position and gets the new password.
func (s *Settings) AddWiFi(ctx context.Context, c Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.wifiMu.Lock()
	defer s.wifiMu.Unlock()

	creds, err := s.WiFiList(ctx)
	if err != nil {
		return err
	}
	return s.SetString(ctx, KeyWiFiList, FormatWiFiList(upsert(creds, c)))
}

// RemoveWiFi deletes the credential for ssid. It reports whether one existed.
func (s *Settings) RemoveWiFi(ctx context.Context, ssid string) (bool, error) {
	s.wifiMu.Lock()
	defer s.wifiMu.Unlock()

	creds, err := s.WiFiList(ctx)
	if err != nil {
		return false, err
	}
	creds, removed := remove(creds, ssid)
	if !removed {
		return false, nil
	}
	if err := s.SetString(ctx, KeyWiFiList, FormatWiFiList(creds)); err != nil {
		return false, fmt.Errorf("removing %q: %w", ssid, err)
	}
	return true, nil
}
