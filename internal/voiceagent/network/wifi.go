package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// WiFiController is the station-mode Controller.
type WiFiController struct {
	wifi     core.WiFi
	settings *store.Settings
	opts     *options.NetworkOptions
	clock    clock.WithTicker
	logger   log.Logger

	mu           sync.Mutex
	onDisconnect func()
	monitor      *monitor
}

type monitor struct {
	cancel context.CancelFunc
}

var _ Controller = (*WiFiController)(nil)

type Option func(*WiFiController)

// WithClock replaces the clock driving link monitoring.
func WithClock(c clock.WithTicker) Option {
	return func(w *WiFiController) { w.clock = c }
}

func NewWiFiController(wifi core.WiFi, settings *store.Settings, opts *options.NetworkOptions, o ...Option) *WiFiController {
	w := &WiFiController{
		wifi:     wifi,
		settings: settings,
		opts:     opts,
		clock:    clock.RealClock{},
		logger:   log.WithName("wifi"),
	}
	for _, opt := range o {
		opt(w)
	}
	return w
}

func (w *WiFiController) StartNetwork(ctx context.Context) (bool, error) {
	if err := w.wifi.Active(true); err != nil {
		return false, fmt.Errorf("activating radio: %w", err)
	}

	if w.wifi.IsConnected() {
		w.logger.Info("Already connected", "link", w.wifi.Info())
		w.startMonitor()
		return true, nil
	}

	creds, err := w.settings.WiFiList(ctx)
	if err != nil {
		return false, fmt.Errorf("loading stored networks: %w", err)
	}
	if len(creds) == 0 {
		w.logger.Info("No stored networks")
		return false, nil
	}

	for _, c := range creds {
		ok, err := w.Connect(ctx, c.SSID, c.Password)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	w.logger.Warn("No stored network could be joined", "tried", len(creds))
	return false, nil
}

func (w *WiFiController) Connect(ctx context.Context, ssid, password string) (bool, error) {
	logger := w.logger.WithValues("ssid", ssid)

	backoff := wait.Backoff{
		Duration: w.opts.RetryInterval,
		Factor:   1,
		Steps:    w.opts.ConnectAttempts,
	}

	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		if err := w.wifi.Connect(ssid, password); err != nil {
			metrics.WiFiConnectAttempts.WithLabelValues("error").Inc()
			return false, fmt.Errorf("associating with %q: %w", ssid, err)
		}
		if w.awaitLink(ctx) {
			metrics.WiFiConnectAttempts.WithLabelValues("connected").Inc()
			return true, nil
		}
		metrics.WiFiConnectAttempts.WithLabelValues("timeout").Inc()
		logger.Info("Association attempt failed", "attempt", attempt, "of", w.opts.ConnectAttempts)
		return false, nil
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, ctx.Err()
	case wait.Interrupted(err):
		logger.Warn("Giving up on network", "attempts", attempt)
		return false, nil
	default:
		return false, err
	}

	logger.Info("Connected", "link", w.wifi.Info())

	if err := w.wifi.SetPowerSave(w.opts.PowerSave); err != nil {
		logger.Error(err, "Failed to apply power save setting")
	}
	if err := w.settings.AddWiFi(ctx, store.Credential{SSID: ssid, Password: password}); err != nil {
		if errors.Is(err, store.ErrInvalidCredential) {
			logger.Warn("Credential cannot be stored", "reason", err.Error())
		} else {
			logger.Error(err, "Failed to persist credential")
		}
	}

	w.startMonitor()
	return true, nil
}

// awaitLink polls the driver until the link is up or the association timeout expires.
func (w *WiFiController) awaitLink(ctx context.Context) bool {
	err := wait.PollUntilContextTimeout(ctx, w.opts.PollInterval, w.opts.AssociateTimeout, true,
		func(context.Context) (bool, error) {
			return w.wifi.IsConnected(), nil
		})
	return err == nil
}

func (w *WiFiController) IsConnected() bool {
	return w.wifi.IsConnected()
}

func (w *WiFiController) SetPowerSave(enabled bool) error {
	return w.wifi.SetPowerSave(enabled)
}

func (w *WiFiController) OnDisconnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDisconnect = fn
}

// Monitoring reports whether the link is being watched.
func (w *WiFiController) Monitoring() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.monitor != nil
}

func (w *WiFiController) Stop() {
	w.mu.Lock()
	m := w.monitor
	w.monitor = nil
	w.mu.Unlock()

	if m != nil {
		m.cancel()
	}
}

func (w *WiFiController) startMonitor() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.monitor != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{cancel: cancel}
	w.monitor = m

	// The ticker is created before returning so a stepped test clock always sees it.
	ticker := w.clock.NewTicker(w.opts.MonitorInterval)
	go w.watch(ctx, m, ticker)
}

func (w *WiFiController) watch(ctx context.Context, m *monitor, ticker clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if w.wifi.IsConnected() {
				continue
			}

			w.mu.Lock()
			if w.monitor != m {
				w.mu.Unlock()
				return
			}
			w.monitor = nil
			fn := w.onDisconnect
			w.mu.Unlock()
			m.cancel()

			metrics.WiFiDisconnects.Inc()
			w.logger.Warn("Link lost")
			if fn != nil {
				fn()
			}
			return
		}
	}
}
