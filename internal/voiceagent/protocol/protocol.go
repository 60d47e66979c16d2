package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/iot"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// Callbacks are invoked from the read loop goroutine or from the caller of
// OpenAudioChannel. They must not block.
type Callbacks struct {
	OnNetworkError       func(msg string)
	OnAudioChannelOpened func()
	OnAudioChannelClosed func()
	OnIncomingJSON       func(msg Message)
	OnIncomingAudio      func(data []byte)
}

// Protocol owns the session with the backend: one audio channel at a time
// carrying JSON control messages and opaque audio.
type Protocol struct {
	sessionID string
	opts      *options.SessionOptions
	clock     clock.PassiveClock
	logger    log.Logger

	cbMu      sync.RWMutex
	callbacks Callbacks

	mu sync.Mutex
	ch *channel

	errored       atomic.Bool
	sampleRate    atomic.Int64
	frameDuration atomic.Int64
	lastIncoming  atomic.Int64
}

type Option func(*Protocol)

// WithClock replaces the clock used for liveness.
func WithClock(c clock.PassiveClock) Option {
	return func(p *Protocol) { p.clock = c }
}

func New(sessionID string, opts *options.SessionOptions, o ...Option) *Protocol {
	p := &Protocol{
		sessionID: sessionID,
		opts:      opts,
		clock:     clock.RealClock{},
		logger:    log.WithName("protocol"),
	}
	for _, opt := range o {
		opt(p)
	}
	p.sampleRate.Store(DefaultSampleRate)
	p.frameDuration.Store(DefaultFrameDuration)
	p.touch()
	return p
}

func (p *Protocol) SessionID() string { return p.sessionID }

// SetCallbacks replaces every callback at once.
func (p *Protocol) SetCallbacks(cb Callbacks) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callbacks = cb
}

func (p *Protocol) cb() Callbacks {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()
	return p.callbacks
}

// AudioParams returns the negotiated sample rate and frame duration.
func (p *Protocol) AudioParams() (sampleRate, frameDuration int) {
	return int(p.sampleRate.Load()), int(p.frameDuration.Load())
}

// Errored reports whether the last open or send failed.
func (p *Protocol) Errored() bool { return p.errored.Load() }

// OpenAudioChannel dials the backend and performs the hello handshake.
// A channel that is already open is replaced.
func (p *Protocol) OpenAudioChannel(ctx context.Context, url string, headers http.Header) error {
	p.errored.Store(false)

	dialCtx := ctx
	if p.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, url, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return p.fail(&TransportError{Op: "dial", URL: url, Err: err})
	}

	ch := newChannel(conn, url)
	hello, err := json.Marshal(Message{Type: TypeHello, Version: p.opts.ProtocolVersion})
	if err != nil {
		ch.close()
		return p.fail(fmt.Errorf("encoding hello: %w", err))
	}
	if err := ch.write(websocket.TextMessage, hello); err != nil {
		ch.close()
		return p.fail(err)
	}

	p.mu.Lock()
	old := p.ch
	p.ch = ch
	p.mu.Unlock()
	if old != nil {
		old.close()
	}

	p.touch()
	p.logger.Info("Audio channel opened", "url", redactUserInfo(url), "session", p.sessionID)
	if fn := p.cb().OnAudioChannelOpened; fn != nil {
		fn()
	}

	// Nothing inbound is dispatched before the opened callback has run.
	go p.readLoop(ch)
	return nil
}

// CloseAudioChannel closes the channel. OnAudioChannelClosed fires once the read loop ends.
func (p *Protocol) CloseAudioChannel() {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()

	if ch != nil {
		ch.close()
	}
}

func (p *Protocol) IsAudioChannelOpened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil && !p.ch.closed.Load()
}

// IsTimeout reports whether nothing was received for the idle timeout.
func (p *Protocol) IsTimeout() bool {
	last := p.lastIncoming.Load()
	return p.clock.Now().UnixNano()-last >= int64(p.opts.IdleTimeout)
}

func (p *Protocol) touch() {
	p.lastIncoming.Store(p.clock.Now().UnixNano())
}

// SendText sends a text frame. It is a no-op while no channel is open.
func (p *Protocol) SendText(text string) error {
	return p.send(websocket.TextMessage, []byte(text), "json")
}

// SendAudio sends an opaque audio frame. It is a no-op while no channel is open.
func (p *Protocol) SendAudio(data []byte) error {
	return p.send(websocket.BinaryMessage, data, "audio")
}

func (p *Protocol) send(messageType int, data []byte, kind string) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return nil
	}

	err := ch.write(messageType, data)
	if errors.Is(err, errChannelClosed) {
		return nil
	}
	if err != nil {
		return p.fail(err)
	}
	metrics.SessionMessages.WithLabelValues("out", kind).Inc()
	return nil
}

func (p *Protocol) sendMessage(msg Message) error {
	msg.SessionID = p.sessionID
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	return p.SendText(string(data))
}

func (p *Protocol) SendAbortSpeaking(reason string) error {
	return p.sendMessage(Message{Type: TypeAbort, Reason: reason})
}

func (p *Protocol) SendStartListening(mode string) error {
	return p.sendMessage(Message{Type: TypeListen, State: StateStart, Mode: mode})
}

func (p *Protocol) SendStopListening() error {
	return p.sendMessage(Message{Type: TypeListen, State: StateStop})
}

// SendIoTDescriptors sends one message per descriptor.
func (p *Protocol) SendIoTDescriptors(descriptors []iot.Descriptor) error {
	for _, d := range descriptors {
		if err := p.sendMessage(Message{Type: TypeIoT, Update: true, Descriptors: []iot.Descriptor{d}}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Protocol) SendIoTStates(states []iot.ThingState) error {
	return p.sendMessage(Message{Type: TypeIoT, Update: true, States: states})
}

func (p *Protocol) fail(err error) error {
	p.errored.Store(true)
	p.logger.Error(err, "Session transport failed")
	if fn := p.cb().OnNetworkError; fn != nil {
		fn(err.Error())
	}
	return err
}

func (p *Protocol) readLoop(ch *channel) {
	var readErr error
	for {
		messageType, data, err := ch.read()
		if err != nil {
			readErr = err
			break
		}
		p.dispatch(messageType, data)
	}

	ch.shutdown()

	p.mu.Lock()
	current := p.ch == ch
	if current {
		p.ch = nil
	}
	p.mu.Unlock()

	if !ch.local.Load() && !isNormalClose(readErr) {
		_ = p.fail(&TransportError{Op: "receive", URL: ch.url, Err: readErr})
	}
	p.logger.Info("Audio channel closed", "session", p.sessionID)
	if fn := p.cb().OnAudioChannelClosed; fn != nil {
		fn()
	}
}

func (p *Protocol) dispatch(messageType int, data []byte) {
	if p.opts.Classification == options.ClassificationOpcode {
		if messageType == websocket.BinaryMessage {
			p.handleAudio(data)
			return
		}
		msg, err := decodeMessage(data)
		if err != nil {
			metrics.SessionMessages.WithLabelValues("in", "invalid").Inc()
			p.logger.Warn("Dropping inbound frame", "err", err.Error())
			return
		}
		p.handleMessage(msg)
		return
	}

	if !json.Valid(bytes.TrimSpace(data)) {
		p.handleAudio(data)
		return
	}
	msg, err := decodeMessage(data)
	if err != nil {
		metrics.SessionMessages.WithLabelValues("in", "invalid").Inc()
		p.logger.Warn("Dropping inbound message", "err", err.Error())
		return
	}
	p.handleMessage(msg)
}

func (p *Protocol) handleAudio(data []byte) {
	p.touch()
	metrics.SessionMessages.WithLabelValues("in", "audio").Inc()
	if fn := p.cb().OnIncomingAudio; fn != nil {
		fn(data)
	}
}

func (p *Protocol) handleMessage(msg Message) {
	p.touch()
	metrics.SessionMessages.WithLabelValues("in", "json").Inc()

	if msg.Type == TypeHello {
		if ap := msg.AudioParams; ap != nil {
			if ap.SampleRate > 0 {
				p.sampleRate.Store(int64(ap.SampleRate))
			}
			if ap.FrameDuration > 0 {
				p.frameDuration.Store(int64(ap.FrameDuration))
			}
		}
		sr, fd := p.AudioParams()
		p.logger.Info("Server hello", "sample_rate", sr, "frame_duration", fd)
		return
	}

	if fn := p.cb().OnIncomingJSON; fn != nil {
		fn(msg)
	}
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: message has no type", ErrProtocol)
	}
	return msg, nil
}
