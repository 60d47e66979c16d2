package options

import (
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/voicepeer/internal/voiceagent"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// VoiceAgentOptions is the full configuration of cpeer-voice-agent. The
// mapstructure tags match the flag prefixes so a config file, CPEER_*
// variables and flags all land on the same fields.
type VoiceAgentOptions struct {
	HttpOptions         *options.HttpOptions         `json:"http" mapstructure:"http"`
	MqttOptions         *options.MqttOptions         `json:"mqtt" mapstructure:"mqtt"`
	SessionOptions      *options.SessionOptions      `json:"session" mapstructure:"session"`
	NetworkOptions      *options.NetworkOptions      `json:"network" mapstructure:"network"`
	ProvisioningOptions *options.ProvisioningOptions `json:"provisioning" mapstructure:"provisioning"`
	StoreOptions        *options.StoreOptions        `json:"store" mapstructure:"store"`
	HALOptions          *options.HALOptions          `json:"hal" mapstructure:"hal"`
	Log                 *log.Options                 `json:"log" mapstructure:"log"`
}

func NewVoiceAgentOptions() *VoiceAgentOptions {
	return &VoiceAgentOptions{
		HttpOptions:         options.NewHttpOptions(),
		MqttOptions:         options.NewMqttOptions(),
		SessionOptions:      options.NewSessionOptions(),
		NetworkOptions:      options.NewNetworkOptions(),
		ProvisioningOptions: options.NewProvisioningOptions(),
		StoreOptions:        options.NewStoreOptions(),
		HALOptions:          options.NewHALOptions(),
		Log:                 log.NewOptions(),
	}
}

func (o *VoiceAgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.SessionOptions.AddFlags(fss.FlagSet("session"))
	o.NetworkOptions.AddFlags(fss.FlagSet("network"))
	o.ProvisioningOptions.AddFlags(fss.FlagSet("provisioning"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.HALOptions.AddFlags(fss.FlagSet("hal"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete normalizes values that are matched case-sensitively later on.
func (o *VoiceAgentOptions) Complete() error {
	o.SessionOptions.Classification = strings.ToLower(strings.TrimSpace(o.SessionOptions.Classification))
	o.StoreOptions.Driver = strings.ToLower(strings.TrimSpace(o.StoreOptions.Driver))
	o.HALOptions.Driver = strings.ToLower(strings.TrimSpace(o.HALOptions.Driver))
	o.SessionOptions.URL = strings.TrimSpace(o.SessionOptions.URL)
	o.Log.Level = strings.ToLower(strings.TrimSpace(o.Log.Level))
	return nil
}

func (o *VoiceAgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.SessionOptions.Validate()...)
	errs = append(errs, o.NetworkOptions.Validate()...)
	errs = append(errs, o.ProvisioningOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.HALOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *VoiceAgentOptions) Config() (*voiceagent.Config, error) {
	return &voiceagent.Config{
		HttpOptions:         o.HttpOptions,
		MqttOptions:         o.MqttOptions,
		SessionOptions:      o.SessionOptions,
		NetworkOptions:      o.NetworkOptions,
		ProvisioningOptions: o.ProvisioningOptions,
		StoreOptions:        o.StoreOptions,
		HALOptions:          o.HALOptions,
	}, nil
}
