package options

import (
	"testing"

	"github.com/autopeer-io/voicepeer/pkg/options"
)

func TestCompleteAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*VoiceAgentOptions)
		wantErr bool
	}{
		{"defaults", func(*VoiceAgentOptions) {}, false},
		{"mixed case drivers", func(o *VoiceAgentOptions) {
			o.StoreOptions.Driver = " Memory "
			o.HALOptions.Driver = "MOCK"
			o.SessionOptions.Classification = "Opcode"
		}, false},
		{"bad broker", func(o *VoiceAgentOptions) { o.MqttOptions.Broker = "ftp://broker" }, true},
		{"bad session url", func(o *VoiceAgentOptions) { o.SessionOptions.URL = "http://backend" }, true},
		{"unknown store", func(o *VoiceAgentOptions) { o.StoreOptions.Driver = "etcd" }, true},
		{"upper case log level", func(o *VoiceAgentOptions) { o.Log.Level = "DEBUG" }, false},
		{"unknown log format", func(o *VoiceAgentOptions) { o.Log.Format = "logfmt" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewVoiceAgentOptions()
			tt.mutate(o)
			if err := o.Complete(); err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigSharesOptions(t *testing.T) {
	o := NewVoiceAgentOptions()
	o.StoreOptions.Driver = options.StoreDriverMemory

	cfg, err := o.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StoreOptions != o.StoreOptions || cfg.SessionOptions != o.SessionOptions {
		t.Error("Config() copied option groups instead of sharing them")
	}
}

func TestFlagsCoverEveryGroup(t *testing.T) {
	fss := NewVoiceAgentOptions().Flags()
	for _, name := range []string{"session.url", "network.connect-attempts", "provisioning.max-payload",
		"store.driver", "hal.driver", "http.addr", "mqtt.broker", "log.level"} {
		found := false
		for _, fs := range fss.FlagSets {
			if fs.Lookup(name) != nil {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("flag %q not registered", name)
		}
	}
}
