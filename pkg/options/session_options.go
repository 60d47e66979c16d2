package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SessionOptions)(nil)

const (
	ClassificationHeuristic = "heuristic"
	ClassificationOpcode    = "opcode"
)

// SessionOptions configures the backend session and the HTTP endpoints
// used for version check and activation. URLs stored on the device take
// precedence over the values given here.
type SessionOptions struct {
	URL             string `json:"url" mapstructure:"url"`
	AccessToken     string `json:"access-token" mapstructure:"access-token"`
	ProtocolVersion int    `json:"protocol-version" mapstructure:"protocol-version"`

	// Classification selects how inbound frames are split into JSON and audio.
	Classification string `json:"classification" mapstructure:"classification"`

	HandshakeTimeout time.Duration `json:"handshake-timeout" mapstructure:"handshake-timeout"`
	IdleTimeout      time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	VersionURL  string        `json:"version-url" mapstructure:"version-url"`
	ActivateURL string        `json:"activate-url" mapstructure:"activate-url"`
	HTTPTimeout time.Duration `json:"http-timeout" mapstructure:"http-timeout"`
}

// NewSessionOptions creates a SessionOptions object with default parameters.
func NewSessionOptions() *SessionOptions {
	return &SessionOptions{
		URL:              "ws://127.0.0.1:8000/xiaozhi/v1/",
		ProtocolVersion:  1,
		Classification:   ClassificationHeuristic,
		HandshakeTimeout: 10 * time.Second,
		IdleTimeout:      120 * time.Second,
		HTTPTimeout:      10 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SessionOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if o.URL != "" {
		if u, err := url.Parse(o.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("session.url %q must be a ws:// or wss:// url", o.URL))
		}
	}
	if o.Classification != ClassificationHeuristic && o.Classification != ClassificationOpcode {
		errs = append(errs, fmt.Errorf("session.classification must be %q or %q, got %q",
			ClassificationHeuristic, ClassificationOpcode, o.Classification))
	}
	if o.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.idle-timeout must be positive"))
	}
	if o.ProtocolVersion <= 0 {
		errs = append(errs, fmt.Errorf("session.protocol-version must be positive"))
	}

	return errs
}

// AddFlags adds flags for SessionOptions to the specified FlagSet.
func (o *SessionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, "session.url", o.URL, "Fallback backend websocket URL when none is stored on the device.")
	fs.StringVar(&o.AccessToken, "session.access-token", o.AccessToken, "Bearer token sent in the session handshake.")
	fs.IntVar(&o.ProtocolVersion, "session.protocol-version", o.ProtocolVersion, "Protocol version announced in the handshake and hello message.")
	fs.StringVar(&o.Classification, "session.classification", o.Classification,
		"How inbound frames are classified: 'heuristic' (decode every frame as JSON first) or 'opcode' (text frames are JSON, binary frames are audio).")
	fs.DurationVar(&o.HandshakeTimeout, "session.handshake-timeout", o.HandshakeTimeout, "Timeout of the websocket handshake.")
	fs.DurationVar(&o.IdleTimeout, "session.idle-timeout", o.IdleTimeout, "Silence after which the audio channel is considered timed out.")

	fs.StringVar(&o.VersionURL, "session.version-url", o.VersionURL, "Fallback version check endpoint.")
	fs.StringVar(&o.ActivateURL, "session.activate-url", o.ActivateURL, "Fallback activation endpoint.")
	fs.DurationVar(&o.HTTPTimeout, "session.http-timeout", o.HTTPTimeout, "Timeout of version check and activation requests.")
}
