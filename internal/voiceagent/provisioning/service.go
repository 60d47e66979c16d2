package provisioning

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/voicepeer/internal/pkg/util/fsm"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/network"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// Activator binds the device to the user who provisioned it.
type Activator interface {
	Activate(ctx context.Context, userID string) (bool, error)
}

// Service is the BLE credential provisioning flow. Radio events are never
// handled on the driver context: each one is scheduled as a task.
type Service struct {
	ble       core.BLE
	network   network.Controller
	activator Activator
	scheduler core.Scheduler
	opts      *options.ProvisioningOptions
	name      string
	logger    log.Logger

	mu     sync.Mutex
	fsm    *fsm.FSM
	ctx    context.Context
	done   func()
	handle uint16
	conns  map[uint16]struct{}
	buf    []byte
}

var _ network.Provisioner = (*Service)(nil)

// New returns a provisioning service advertising under name. activator may be nil.
func New(ble core.BLE, ctrl network.Controller, activator Activator, scheduler core.Scheduler,
	opts *options.ProvisioningOptions, name string) *Service {
	s := &Service{
		ble:       ble,
		network:   ctrl,
		activator: activator,
		scheduler: scheduler,
		opts:      opts,
		name:      name,
		logger:    log.WithName("provisioning"),
		conns:     make(map[uint16]struct{}),
	}
	s.fsm = s.newStateMachine()
	return s
}

// State returns the current state of the flow.
func (s *Service) State() string {
	return s.fsm.Current()
}

// Buffered returns the number of credential bytes waiting for more fragments.
func (s *Service) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Service) Provision(ctx context.Context, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.fsm.Current() {
	case StateIdle, StateClosed:
	default:
		return nil
	}

	s.ctx = ctx
	s.done = done
	if err := s.fsm.Event(ctx, EventAdvertise); err != nil {
		return fmt.Errorf("starting provisioning: %w", err)
	}
	return nil
}

// Close powers the radio down. It also runs after the context given to
// Provision is canceled, so the transition must not inherit that cancellation.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fsm.Can(EventClose) {
		return nil
	}
	return s.fsm.Event(context.WithoutCancel(s.context()), EventClose)
}

// onBLEEvent runs on the driver context.
func (s *Service) onBLEEvent(ev core.BLEEvent) {
	s.scheduler.Schedule(func() { s.handleEvent(ev) })
}

func (s *Service) handleEvent(ev core.BLEEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.context()
	switch e := ev.(type) {
	case core.CentralConnected:
		s.onCentralConnected(ctx, e)
	case core.CentralDisconnected:
		s.onCentralDisconnected(ctx, e)
	case core.CharacteristicWritten:
		s.onWrite(ctx, e)
	}
}

func (s *Service) onCentralConnected(ctx context.Context, e core.CentralConnected) {
	if !s.fsm.Can(EventCentralConnected) {
		return
	}
	s.conns[e.Conn] = struct{}{}
	metrics.ProvisioningEvents.WithLabelValues("central_connected").Inc()
	s.logger.Info("Central connected", "conn", e.Conn, "active", len(s.conns))

	if err := fsmutil.IgnoreNoTransition(s.fsm.Event(ctx, EventCentralConnected)); err != nil {
		s.logger.Error(err, "Transition failed", "event", EventCentralConnected)
	}
}

func (s *Service) onCentralDisconnected(ctx context.Context, e core.CentralDisconnected) {
	if _, ok := s.conns[e.Conn]; !ok {
		return
	}
	delete(s.conns, e.Conn)
	metrics.ProvisioningEvents.WithLabelValues("central_disconnected").Inc()
	s.logger.Info("Central disconnected", "conn", e.Conn, "active", len(s.conns))

	if len(s.conns) > 0 || !s.fsm.Can(EventCentralsGone) {
		return
	}
	if err := s.fsm.Event(ctx, EventCentralsGone); err != nil {
		s.logger.Error(err, "Transition failed", "event", EventCentralsGone)
	}
}

func (s *Service) onWrite(ctx context.Context, e core.CharacteristicWritten) {
	if e.Handle != s.handle || !s.fsm.Can(EventCredential) {
		return
	}

	s.buf = append(s.buf, e.Value...)
	if len(s.buf) > s.opts.MaxPayload {
		s.logger.Warn("Credential payload too large, discarding", "size", len(s.buf), "max", s.opts.MaxPayload)
		metrics.ProvisioningEvents.WithLabelValues("overflow").Inc()
		s.buf = nil
		return
	}

	cred, complete, err := parseCredential(s.buf)
	if !complete {
		s.logger.Debug("Waiting for more credential fragments", "buffered", len(s.buf))
		return
	}
	s.buf = nil
	if err != nil {
		s.logger.Error(err, "Ignoring credential payload")
		metrics.ProvisioningEvents.WithLabelValues("malformed").Inc()
		return
	}

	metrics.ProvisioningEvents.WithLabelValues("credential").Inc()
	if err := s.fsm.Event(ctx, EventCredential); err != nil {
		s.logger.Error(err, "Transition failed", "event", EventCredential)
		return
	}

	logger := s.logger.WithValues("ssid", cred.SSID)
	ok, err := s.network.Connect(ctx, cred.SSID, cred.Password)
	if err != nil || !ok {
		if err != nil {
			logger.Error(err, "Association failed")
		} else {
			logger.Warn("Could not join network with provisioned credential")
		}
		metrics.ProvisioningEvents.WithLabelValues("rejected").Inc()
		s.reopen(ctx)
		return
	}

	if err := s.fsm.Event(ctx, EventClose); err != nil {
		logger.Error(err, "Transition failed", "event", EventClose)
	}
	logger.Info("Provisioned")

	s.activate(ctx, cred.UserID)
	if s.done != nil {
		s.done()
	}
}

func (s *Service) reopen(ctx context.Context) {
	if err := s.fsm.Event(ctx, EventRejected); err != nil {
		s.logger.Error(err, "Transition failed", "event", EventRejected)
		return
	}
	if len(s.conns) == 0 {
		if err := s.fsm.Event(ctx, EventCentralsGone); err != nil {
			s.logger.Error(err, "Transition failed", "event", EventCentralsGone)
		}
	}
}

func (s *Service) activate(ctx context.Context, userID string) {
	if userID == "" || s.activator == nil {
		return
	}
	active, err := s.activator.Activate(ctx, userID)
	if err != nil {
		s.logger.Error(err, "Activation failed", "user", userID)
		return
	}
	s.logger.Info("Activation finished", "user", userID, "active", active)
}

func (s *Service) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Service) guardRadioUp(_ context.Context, _ *fsm.Event) error {
	if err := s.ble.Active(true); err != nil {
		return fmt.Errorf("activating BLE: %w", err)
	}
	handle, err := s.ble.RegisterCharacteristic(s.opts.ServiceUUID, s.opts.CharacteristicUUID)
	if err != nil {
		_ = s.ble.Active(false)
		return fmt.Errorf("registering characteristic: %w", err)
	}
	s.handle = handle
	s.buf = nil
	clear(s.conns)
	s.ble.SetEventHandler(s.onBLEEvent)
	return nil
}

func (s *Service) actionStartAdvertising(_ context.Context, _ *fsm.Event) error {
	payload := AdvertisingPayload(s.name, s.opts.ServiceUUID)
	if err := s.ble.Advertise(s.opts.AdvertiseInterval, payload); err != nil {
		s.logger.Error(err, "Failed to start advertising")
		return nil
	}
	s.logger.Info("Advertising", "name", s.name)
	return nil
}

func (s *Service) actionShutdown(_ context.Context, _ *fsm.Event) error {
	s.ble.SetEventHandler(nil)
	if err := s.ble.Advertise(0, nil); err != nil {
		s.logger.Warn("Failed to stop advertising", "err", err.Error())
	}
	if err := s.ble.Active(false); err != nil {
		s.logger.Warn("Failed to power down BLE", "err", err.Error())
	}
	s.buf = nil
	clear(s.conns)
	return nil
}

func (s *Service) recordTransition(_ context.Context, e *fsm.Event) {
	s.logger.Debug("State changed", "event", e.Event, "from", e.Src, "to", e.Dst)
}
