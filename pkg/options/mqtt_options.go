package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/voicepeer/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions configures the optional status mirror. The mirror publishes
// the device state and capability snapshots to a broker and accepts
// capability commands from it. Leaving Broker empty disables it.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/{segment}/{deviceID}
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 2 * time.Second,
		SessionExpiry:  60,
		CleanStart:     true,
		TopicRoot:      "voicepeer/v1",
	}
}

// Enabled reports whether a broker has been configured.
func (o *MqttOptions) Enabled() bool {
	return o != nil && o.Broker != ""
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errors := []error{}

	u, err := url.Parse(o.Broker)
	if err != nil {
		errors = append(errors, fmt.Errorf("invalid mqtt broker url %q: %w", o.Broker, err))
	} else {
		switch u.Scheme {
		case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		default:
			errors = append(errors, fmt.Errorf("unsupported mqtt broker scheme %q", u.Scheme))
		}
	}
	if o.TopicRoot == "" {
		errors = append(errors, fmt.Errorf("mqtt.topic-root must not be empty"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "URL of the MQTT broker used to mirror device status. Empty disables the mirror.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, derived from the device identity).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.PublishTimeout, "mqtt.publish-timeout", o.PublishTimeout, "Timeout for a single status publish.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix of every status and command topic.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
