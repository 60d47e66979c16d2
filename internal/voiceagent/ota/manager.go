package ota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

const maxBodySize = 64 << 10

var (
	// ErrNoEndpoint is returned when neither the store nor the options name a URL.
	ErrNoEndpoint = errors.New("endpoint not configured")

	// ErrUnexpectedCode is returned when the body carries a code other than 200.
	ErrUnexpectedCode = errors.New("unexpected response code")
)

// Manager talks to the backend's version and activation endpoints. URLs
// stored on the device take precedence over the configured ones.
type Manager struct {
	settings *store.Settings
	uuid     string
	opts     *options.SessionOptions
	client   *http.Client
	logger   log.Logger
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

func NewManager(settings *store.Settings, uuid string, opts *options.SessionOptions, o ...Option) *Manager {
	m := &Manager{
		settings: settings,
		uuid:     uuid,
		opts:     opts,
		client:   &http.Client{Timeout: opts.HTTPTimeout},
		logger:   log.WithName("ota"),
	}
	for _, opt := range o {
		opt(m)
	}
	return m
}

// CheckVersion fetches the server version. When it differs from the stored
// one, the returned URLs and the version are persisted and true is returned.
func (m *Manager) CheckVersion(ctx context.Context) (bool, error) {
	endpoint, err := m.endpoint(ctx, store.KeyVersionURL, m.opts.VersionURL)
	if err != nil {
		return false, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return false, fmt.Errorf("parsing version url: %w", err)
	}
	q := u.Query()
	q.Set("uuid", m.uuid)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}

	var resp response[VersionInfo]
	if err := m.do(req, "version", &resp); err != nil {
		return false, err
	}
	info := resp.Data

	current, err := m.settings.String(ctx, store.KeyServerVersion)
	if err != nil {
		return false, err
	}
	if info.Version == "" || info.Version == current {
		m.logger.Debug("Server version unchanged", "version", current)
		return false, nil
	}

	updates := []struct{ key, value string }{
		{store.KeyServeURL, info.ServeURL},
		{store.KeyActiveURL, info.ActiveURL},
		{store.KeyVersionURL, info.VersionURL},
		{store.KeyServerVersion, info.Version},
	}
	for _, kv := range updates {
		if kv.value == "" {
			continue
		}
		if err := m.settings.SetString(ctx, kv.key, kv.value); err != nil {
			return false, fmt.Errorf("persisting %s: %w", kv.key, err)
		}
	}

	m.logger.Info("Server version changed", "from", current, "to", info.Version)
	return true, nil
}

// Activate binds the device to userID. On success USER_ID and ACTIVATED are persisted.
func (m *Manager) Activate(ctx context.Context, userID string) (bool, error) {
	endpoint, err := m.endpoint(ctx, store.KeyActiveURL, m.opts.ActivateURL)
	if err != nil {
		return false, err
	}

	body, err := json.Marshal(activationRequest{UUID: m.uuid, UserID: userID})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp response[Activation]
	if err := m.do(req, "activate", &resp); err != nil {
		return false, err
	}

	if !resp.Data.Active {
		m.logger.Warn("Activation refused", "user", userID, "reason", resp.Data.Reason)
		return false, nil
	}
	if err := m.settings.MarkActivated(ctx, userID); err != nil {
		return false, fmt.Errorf("persisting activation: %w", err)
	}
	m.logger.Info("Device activated", "user", userID)
	return true, nil
}

func (m *Manager) endpoint(ctx context.Context, key, fallback string) (string, error) {
	v, err := m.settings.String(ctx, key)
	if err != nil {
		return "", err
	}
	if v != "" {
		return v, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("%s: %w", key, ErrNoEndpoint)
}

func (m *Manager) do(req *http.Request, call string, out any) error {
	start := time.Now()
	resp, err := m.client.Do(req)
	metrics.HTTPRequestLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request: server returned status: %s", call, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s request: failed to read body: %w", call, err)
	}

	var envelope struct {
		Code Code `json:"code"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%s request: decoding body: %w", call, err)
	}
	if envelope.Code != CodeOK {
		return fmt.Errorf("%s request: %w %d", call, ErrUnexpectedCode, envelope.Code)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s request: decoding data: %w", call, err)
	}
	return nil
}
