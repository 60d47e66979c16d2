package voiceagent

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/hal"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/iot"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/network"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/ota"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/protocol"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/provisioning"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/scheduler"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/server"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

const (
	tickInterval    = time.Second
	heartbeatEvery  = 10
	defaultVolume   = 70
	abortReasonNone = "none"
)

// Identity is how the device names itself to the backend.
type Identity struct {
	MAC      net.HardwareAddr
	DeviceID string
	UUID     string
}

// Platform is everything that outlives a single Agent.
type Platform struct {
	Settings *store.Settings
	Drivers  *hal.Drivers
	Identity Identity
	Reporter core.Reporter

	// Audio receives opaque audio frames from the backend. Nil discards them.
	Audio io.Writer
}

type AgentOption func(*Agent)

// WithAgentClock drives the scheduler, the tick loop and every timer of the agent from c.
func WithAgentClock(c clock.WithTicker) AgentOption {
	return func(a *Agent) { a.clock = c }
}

// Agent is one boot of the device. Every field below the scheduler is only
// written by tasks; concurrent readers go through the atomics.
type Agent struct {
	platform *Platform
	cfg      *Config
	reboot   func()
	clock    clock.WithTicker
	logger   log.Logger

	scheduler *scheduler.Scheduler
	network   network.Controller
	ota       *ota.Manager
	registry  *iot.Registry
	speaker   *iot.Speaker

	ctx      context.Context
	protocol *protocol.Protocol

	state   atomic.Value
	session atomic.Pointer[protocol.Protocol]
	ticks   atomic.Int64
}

// NewAgent wires a fresh agent. reboot is invoked by the System capability.
func NewAgent(p *Platform, cfg *Config, reboot func(), opts ...AgentOption) *Agent {
	a := &Agent{
		platform: p,
		cfg:      cfg,
		reboot:   reboot,
		clock:    clock.RealClock{},
		logger:   log.WithName("agent").WithValues("deviceID", p.Identity.DeviceID),
		ctx:      context.Background(),
		speaker:  iot.NewSpeaker(defaultVolume),
		registry: iot.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	a.state.Store(core.StateUnknown)

	a.scheduler = scheduler.New(scheduler.WithClock(a.clock))
	a.ota = ota.NewManager(p.Settings, p.Identity.UUID, cfg.SessionOptions)

	wifi := network.NewWiFiController(p.Drivers.WiFi, p.Settings, cfg.NetworkOptions, network.WithClock(a.clock))
	a.network = wifi
	if p.Drivers.BLE != nil {
		svc := provisioning.New(p.Drivers.BLE, wifi, a.ota, a.scheduler, cfg.ProvisioningOptions, p.Identity.DeviceID)
		a.network = network.WithProvisioner(wifi, svc)
	}
	a.network.OnDisconnect(func() { a.Schedule(a.onNetworkLost) })

	for _, t := range []*iot.Thing{a.speaker.Thing(), a.systemThing()} {
		if err := a.registry.Register(t); err != nil {
			a.logger.Error(err, "Failed to register capability", "thing", t.Name())
		}
	}
	return a
}

// Run starts the scheduler and clock loops and queues the boot sequence.
// It returns once ctx is done and the agent has released its radios.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Starting agent", "uuid", a.platform.Identity.UUID)
	a.ctx = ctx
	metrics.SetDeviceState(a.State().String(), core.StateNames())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.runClock(gctx) })
	a.Schedule(func() { a.bootstrap(ctx) })

	err := g.Wait()
	a.shutdown()
	a.logger.Info("Agent stopped")
	return err
}

// Schedule queues task for the scheduler goroutine. Safe from any goroutine.
func (a *Agent) Schedule(task core.Task) {
	a.scheduler.Schedule(task)
}

// State is the last published DeviceState.
func (a *Agent) State() core.DeviceState {
	return a.state.Load().(core.DeviceState)
}

// Ticks counts clock loop ticks since Run.
func (a *Agent) Ticks() int64 {
	return a.ticks.Load()
}

func (a *Agent) runClock(ctx context.Context) error {
	ticker := a.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			n := a.ticks.Add(1)
			metrics.ClockTicks.Set(float64(n))
			if n%heartbeatEvery == 0 {
				a.logger.Info("Heartbeat", "ticks", n, "state", a.State())
				a.Schedule(a.checkLiveness)
			}
		}
	}
}

func (a *Agent) bootstrap(ctx context.Context) {
	if err := a.platform.Reporter.ReportBoard(ctx, a.board()); err != nil {
		a.logger.Debug("Board report dropped", "err", err)
	}

	ok, err := a.network.StartNetwork(ctx)
	if err != nil {
		a.logger.Error(err, "Network bring-up failed")
	}
	if ok {
		a.afterNetwork(ctx)
		return
	}

	pc, capable := a.network.(network.ProvisioningCapable)
	if !capable {
		a.logger.Warn("No usable network and no provisioning available")
		a.setDeviceState(core.StateError)
		return
	}
	a.logger.Info("No usable network, waiting for credentials over BLE")
	err = pc.Provisioner().Provision(ctx, func() {
		a.Schedule(func() { a.afterNetwork(ctx) })
	})
	if err != nil {
		a.logger.Error(err, "Failed to start provisioning")
		a.setDeviceState(core.StateError)
	}
}

// afterNetwork runs the rest of the boot once a link is up.
func (a *Agent) afterNetwork(ctx context.Context) {
	a.setDeviceState(core.StateStarting)

	if changed, err := a.ota.CheckVersion(ctx); err != nil {
		a.logger.Warn("Version check failed", "err", err)
	} else if changed {
		a.logger.Info("Backend endpoints updated")
	}
	a.ensureActivated(ctx)

	if err := a.openSession(ctx); err != nil {
		a.logger.Error(err, "Failed to open session")
	}
	a.setDeviceState(core.StateIdle)
}

func (a *Agent) ensureActivated(ctx context.Context) {
	settings := a.platform.Settings
	userID, err := settings.UserID(ctx)
	if err != nil || userID == "" {
		return
	}
	if activated, err := settings.Activated(ctx); err != nil || activated {
		return
	}
	active, err := a.ota.Activate(ctx, userID)
	if err != nil {
		a.logger.Warn("Activation failed", "err", err)
		return
	}
	a.logger.Info("Activation finished", "active", active)
}

// openSession constructs the protocol on first use and opens the audio
// channel unless it already is.
func (a *Agent) openSession(ctx context.Context) error {
	if a.protocol == nil {
		p := protocol.New(core.SessionID(a.platform.Identity.MAC), a.cfg.SessionOptions, protocol.WithClock(a.clock))
		p.SetCallbacks(a.callbacks())
		a.protocol = p
		a.session.Store(p)
	}
	if a.protocol.IsAudioChannelOpened() {
		return nil
	}

	url, err := a.platform.Settings.ServeURL(ctx)
	if err != nil || url == "" {
		url = a.cfg.SessionOptions.URL
	}
	return a.protocol.OpenAudioChannel(ctx, url, a.sessionHeaders())
}

func (a *Agent) sessionHeaders() http.Header {
	h := http.Header{}
	if token := a.cfg.SessionOptions.AccessToken; token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	h.Set("Protocol-Version", strconv.Itoa(a.cfg.SessionOptions.ProtocolVersion))
	h.Set("Device-Id", a.platform.Identity.MAC.String())
	h.Set("Client-Id", a.platform.Identity.UUID)
	return h
}

// callbacks only hand work to the scheduler; audio goes straight to the sink.
func (a *Agent) callbacks() protocol.Callbacks {
	return protocol.Callbacks{
		OnNetworkError: func(msg string) {
			a.Schedule(func() {
				a.logger.Warn("Session error", "msg", msg)
				a.endConversation()
			})
		},
		OnAudioChannelOpened: func() { a.Schedule(a.pushCapabilities) },
		OnAudioChannelClosed: func() { a.Schedule(a.endConversation) },
		OnIncomingJSON: func(msg protocol.Message) {
			a.Schedule(func() { a.handleMessage(msg) })
		},
		OnIncomingAudio: a.writeAudio,
	}
}

// endConversation drops a listening or speaking device back to idle when the
// session goes away. Boot and error states belong to bootstrap.
func (a *Agent) endConversation() {
	switch a.State() {
	case core.StateListening, core.StateSpeaking:
		a.setDeviceState(core.StateIdle)
	}
}

func (a *Agent) writeAudio(data []byte) {
	if a.platform.Audio == nil {
		return
	}
	if _, err := a.platform.Audio.Write(data); err != nil {
		a.logger.Debug("Audio frame dropped", "err", err)
	}
}

func (a *Agent) pushCapabilities() {
	if a.protocol == nil {
		return
	}
	if err := a.protocol.SendIoTDescriptors(a.registry.Descriptors()); err != nil {
		a.logger.Warn("Failed to push descriptors", "err", err)
		return
	}
	states, _ := a.registry.States(false)
	if err := a.protocol.SendIoTStates(states); err != nil {
		a.logger.Warn("Failed to push states", "err", err)
	}
	a.reportThings(states)
}

func (a *Agent) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeIoT:
		if len(msg.Commands) > 0 {
			a.invoke(msg.Commands)
		}
	case protocol.TypeTTS:
		switch msg.State {
		case protocol.StateStart:
			a.setDeviceState(core.StateSpeaking)
		case protocol.StateStop:
			if a.State() == core.StateSpeaking {
				a.setDeviceState(core.StateIdle)
			}
		}
	case protocol.TypeSTT:
		a.logger.Info("Recognized", "text", msg.Text)
	default:
		a.logger.Debug("Ignoring message", "type", msg.Type)
	}
}

// invoke runs every command in order; a failure is logged and the batch continues.
func (a *Agent) invoke(commands []iot.Command) {
	for _, cmd := range commands {
		if err := a.registry.Invoke(cmd); err != nil {
			a.logger.Warn("Command failed", "thing", cmd.Name, "method", cmd.Method, "err", err)
		}
	}
	a.UpdateIoTStates()
}

// HandleRemoteCommands accepts commands relayed by the status mirror.
func (a *Agent) HandleRemoteCommands(raw []json.RawMessage) {
	commands := make([]iot.Command, 0, len(raw))
	for _, r := range raw {
		var cmd iot.Command
		if err := json.Unmarshal(r, &cmd); err != nil || cmd.Name == "" {
			a.logger.Warn("Dropping malformed remote command", "payload", string(r))
			continue
		}
		commands = append(commands, cmd)
	}
	if len(commands) == 0 {
		return
	}
	a.Schedule(func() { a.invoke(commands) })
}

// UpdateIoTStates pushes the capabilities whose state changed since the
// last snapshot. Must run on the scheduler.
func (a *Agent) UpdateIoTStates() {
	states, changed := a.registry.States(true)
	if !changed {
		return
	}
	if a.protocol != nil {
		if err := a.protocol.SendIoTStates(states); err != nil {
			a.logger.Warn("Failed to push states", "err", err)
		}
	}
	a.reportThings(states)
}

func (a *Agent) reportThings(states []iot.ThingState) {
	data, err := json.Marshal(states)
	if err != nil {
		return
	}
	if err := a.platform.Reporter.ReportThings(a.ctx, data); err != nil {
		a.logger.Debug("Capability report dropped", "err", err)
	}
}

// ToggleChat advances the conversation: start listening, stop listening, or
// interrupt playback. Must run on the scheduler.
func (a *Agent) ToggleChat() {
	switch s := a.State(); s {
	case core.StateIdle:
		if err := a.openSession(a.ctx); err != nil {
			a.logger.Error(err, "Cannot start listening")
			return
		}
		if err := a.protocol.SendStartListening(protocol.ModeAuto); err != nil {
			a.logger.Warn("Start listening failed", "err", err)
			return
		}
		a.setDeviceState(core.StateListening)
	case core.StateListening:
		if err := a.protocol.SendStopListening(); err != nil {
			a.logger.Warn("Stop listening failed", "err", err)
		}
		a.setDeviceState(core.StateIdle)
	case core.StateSpeaking:
		if err := a.protocol.SendAbortSpeaking(abortReasonNone); err != nil {
			a.logger.Warn("Abort failed", "err", err)
		}
		a.setDeviceState(core.StateIdle)
	default:
		a.logger.Info("Chat toggle ignored", "state", s)
	}
}

func (a *Agent) checkLiveness() {
	if a.protocol == nil || !a.protocol.IsAudioChannelOpened() {
		return
	}
	if a.protocol.IsTimeout() {
		a.logger.Warn("Session idle too long, closing audio channel")
		a.protocol.CloseAudioChannel()
	}
}

func (a *Agent) onNetworkLost() {
	a.logger.Warn("Network lost")
	if a.protocol != nil {
		a.protocol.CloseAudioChannel()
	}
	a.setDeviceState(core.StateStarting)
	a.bootstrap(a.ctx)
}

// setDeviceState publishes s. Must run on the scheduler.
func (a *Agent) setDeviceState(s core.DeviceState) {
	prev := a.State()
	if prev == s {
		return
	}
	a.state.Store(s)
	metrics.SetDeviceState(s.String(), core.StateNames())
	a.logger.Info("Device state changed", "from", prev, "to", s)

	if err := a.platform.Reporter.ReportState(a.ctx, s, a.sessionOpen()); err != nil {
		a.logger.Debug("State report dropped", "err", err)
	}
}

func (a *Agent) sessionOpen() bool {
	p := a.session.Load()
	return p != nil && p.IsAudioChannelOpened()
}

func (a *Agent) board() core.Board {
	b := a.platform.Drivers.Board
	b.UUID = a.platform.Identity.UUID
	b.LinkInfo = a.platform.Drivers.WiFi.Info()
	return b
}

func (a *Agent) systemThing() *iot.Thing {
	return iot.NewSystem(iot.SystemHooks{
		State: func() string { return a.State().String() },
		Activated: func() bool {
			ok, _ := a.platform.Settings.Activated(a.ctx)
			return ok
		},
		Reboot: func() error {
			a.reboot()
			return nil
		},
		FactoryReset: func() error {
			if err := a.platform.Settings.FactoryReset(a.ctx); err != nil {
				return err
			}
			a.reboot()
			return nil
		},
	})
}

// Status is safe to call from any goroutine.
func (a *Agent) Status() server.Status {
	s := a.State()
	return server.Status{
		DeviceID:    a.platform.Identity.DeviceID,
		State:       s.String(),
		Ready:       s.Ready(),
		SessionOpen: a.sessionOpen(),
		Network:     a.network.IsConnected(),
		Ticks:       a.ticks.Load(),
		Things:      a.registry.Names(),
	}
}

// shutdown releases radios and the session after both loops have exited.
func (a *Agent) shutdown() {
	if pc, ok := a.network.(network.ProvisioningCapable); ok {
		if err := pc.Provisioner().Close(); err != nil {
			a.logger.Debug("Provisioning close", "err", err)
		}
	}
	a.network.Stop()
	if a.protocol != nil {
		a.protocol.CloseAudioChannel()
	}
}
