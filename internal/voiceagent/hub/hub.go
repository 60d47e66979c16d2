package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/autopeer-io/voicepeer/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/voicepeer/pkg/mqtt/topic"
)

const outboxSize = 32

// ErrOutboxFull is returned when reports arrive faster than they can be published.
var ErrOutboxFull = errors.New("status outbox full")

// OnlineStatus is the presence payload, also registered as the will message.
type OnlineStatus struct {
	DeviceID string `json:"device_id"`
	Online   bool   `json:"online"`
	Reason   string `json:"reason,omitempty"`
}

// StateStatus is the retained device state payload.
type StateStatus struct {
	State   string `json:"state"`
	Session bool   `json:"session"`
}

type commandEnvelope struct {
	Type     string            `json:"type"`
	Commands []json.RawMessage `json:"commands"`
}

type outbound struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

// Hub mirrors device status to an MQTT broker and relays capability
// commands from it. Reports are queued and published by a worker so callers
// on the scheduler never wait for the broker.
type Hub struct {
	deviceID string

	mc             mqtt.Client
	topics         *mqtttopic.Builder
	publishTimeout time.Duration

	mu      sync.RWMutex
	handler core.CommandHandler

	outbox chan outbound
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

var _ core.Reporter = (*Hub)(nil)

func New(deviceID string, client mqtt.Client, topics *mqtttopic.Builder, publishTimeout time.Duration) *Hub {
	return &Hub{
		deviceID:       deviceID,
		mc:             client,
		topics:         topics,
		publishTimeout: publishTimeout,
		outbox:         make(chan outbound, outboxSize),
	}
}

// SetCommandHandler installs the receiver of remote commands. Passing nil
// drops commands until a new handler is set.
func (h *Hub) SetCommandHandler(fn core.CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

func (h *Hub) IsConnected() bool {
	return h.mc.IsConnected()
}

// Start connects to the broker, announces presence and subscribes to commands.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.mc.Start(ctx); err != nil {
		return err
	}

	if err := h.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	commandTopic := h.topics.Build(paths.Command, h.deviceID)
	if err := h.mc.Subscribe(ctx, commandTopic, 1, h.handleCommand); err != nil {
		return err
	}

	if err := h.publishJSON(ctx, paths.Online, 1, true, OnlineStatus{DeviceID: h.deviceID, Online: true}); err != nil {
		log.Error(err, "Failed to announce presence")
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.wg.Add(1)
	go h.publishLoop(workerCtx)

	log.Info("Status mirror connected", "device", h.deviceID, "root", h.topics.Root())
	return nil
}

// Stop publishes an orderly offline status and disconnects.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
		h.wg.Wait()
	}

	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if h.mc.IsConnected() {
		err := h.publishJSON(ctx, paths.Online, 1, true,
			OnlineStatus{DeviceID: h.deviceID, Online: false, Reason: "Shutdown"})
		if err != nil {
			log.Warn("Failed to publish offline status", "err", err.Error())
		}
	}
	h.mc.Disconnect(ctx)
}

func (h *Hub) ReportState(_ context.Context, state core.DeviceState, sessionOpen bool) error {
	return h.enqueue(paths.State, 1, true, StateStatus{State: state.String(), Session: sessionOpen})
}

func (h *Hub) ReportThings(_ context.Context, states json.RawMessage) error {
	return h.enqueue(paths.IoTStates, 0, true, states)
}

func (h *Hub) ReportBoard(_ context.Context, board core.Board) error {
	return h.enqueue(paths.Board, 1, true, board)
}

func (h *Hub) enqueue(segment string, qos int, retain bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := outbound{topic: h.topics.Build(segment, h.deviceID), qos: qos, retain: retain, payload: payload}
	select {
	case h.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (h *Hub) publishLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			if !h.mc.IsConnected() {
				log.Debug("Broker offline, dropping status", "topic", msg.topic)
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
			if err := h.mc.Publish(pctx, msg.topic, msg.qos, msg.retain, msg.payload); err != nil {
				log.Error(err, "Failed to publish status", "topic", msg.topic)
			}
			cancel()
		}
	}
}

func (h *Hub) publishJSON(ctx context.Context, segment string, qos int, retain bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()
	return h.mc.Publish(pctx, h.topics.Build(segment, h.deviceID), qos, retain, payload)
}

func (h *Hub) handleCommand(_ context.Context, topic string, payload []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn("Dropping malformed command", "topic", topic, "err", err.Error())
		return
	}
	if env.Type != "iot" || len(env.Commands) == 0 {
		log.Warn("Dropping unsupported command", "topic", topic, "type", env.Type)
		return
	}

	h.mu.RLock()
	fn := h.handler
	h.mu.RUnlock()

	if fn == nil {
		log.Debug("No command handler installed", "topic", topic)
		return
	}
	fn(env.Commands)
}
