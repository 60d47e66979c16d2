package protocol

import "github.com/autopeer-io/voicepeer/internal/voiceagent/iot"

// Message types.
const (
	TypeHello  = "hello"
	TypeAbort  = "abort"
	TypeListen = "listen"
	TypeIoT    = "iot"
	TypeTTS    = "tts"
	TypeSTT    = "stt"
)

// Values of Message.State.
const (
	StateStart = "start"
	StateStop  = "stop"
)

// Listening modes.
const (
	ModeAuto     = "auto"
	ModeManual   = "manual"
	ModeRealtime = "realtime"
)

// Defaults assumed until the server hello says otherwise.
const (
	DefaultSampleRate    = 24000
	DefaultFrameDuration = 60
)

type AudioParams struct {
	Format        string `json:"format,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	FrameDuration int    `json:"frame_duration,omitempty"`
}

// Message is the JSON control envelope exchanged with the backend.
type Message struct {
	SessionID string `json:"session_id,omitempty"`
	Type      string `json:"type"`
	Version   int    `json:"version,omitempty"`

	AudioParams *AudioParams `json:"audio_params,omitempty"`

	State  string `json:"state,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Reason string `json:"reason,omitempty"`
	Text   string `json:"text,omitempty"`

	Update      bool             `json:"update,omitempty"`
	Descriptors []iot.Descriptor `json:"descriptors,omitempty"`
	States      []iot.ThingState `json:"states,omitempty"`
	Commands    []iot.Command    `json:"commands,omitempty"`
}
