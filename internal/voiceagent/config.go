package voiceagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/voicepeer/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/hal"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/hub"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/voicepeer/pkg/mqtt/topic"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

type Config struct {
	HttpOptions         *options.HttpOptions
	MqttOptions         *options.MqttOptions
	SessionOptions      *options.SessionOptions
	NetworkOptions      *options.NetworkOptions
	ProvisioningOptions *options.ProvisioningOptions
	StoreOptions        *options.StoreOptions
	HALOptions          *options.HALOptions
}

// NewRuntime opens the store and drivers and resolves the device identity.
// These are the only failures that stop the process.
func (cfg *Config) NewRuntime() (*Runtime, error) {
	st, err := store.Open(cfg.StoreOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	drivers, err := hal.New(cfg.HALOptions)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to init drivers: %w", err)
	}

	settings := store.NewSettings(st)
	identity, err := resolveIdentity(context.Background(), settings, drivers.WiFi)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	platform := &Platform{
		Settings: settings,
		Drivers:  drivers,
		Identity: identity,
		Reporter: core.NopReporter{},
	}

	var h *hub.Hub
	if cfg.MqttOptions.Enabled() {
		mqttClient, topicBuilder, err := cfg.initMqttClientAndTopicBuilder(identity.DeviceID)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		h = hub.New(identity.DeviceID, mqttClient, topicBuilder, cfg.MqttOptions.PublishTimeout)
		platform.Reporter = h
	}

	return NewRuntime(cfg, platform, h), nil
}

// resolveIdentity reads DEVICE_ID, deriving and persisting it from the MAC
// on first boot.
func resolveIdentity(ctx context.Context, settings *store.Settings, wifi core.WiFi) (Identity, error) {
	mac, err := wifi.MAC()
	if err != nil {
		return Identity{}, fmt.Errorf("unable to read device mac: %w", err)
	}

	id := Identity{MAC: mac, UUID: core.DeviceUUID(mac)}
	id.DeviceID, err = settings.DeviceID(ctx)
	if err != nil {
		return Identity{}, err
	}
	if id.DeviceID == "" {
		id.DeviceID = core.MACHex(mac)
		if err := settings.SetString(ctx, store.KeyDeviceID, id.DeviceID); err != nil {
			return Identity{}, fmt.Errorf("failed to persist device id: %w", err)
		}
	}
	return id, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder(deviceID string) (mqtt.Client, *mqtttopic.Builder, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-voice-%s", deviceID)
	}

	// No timestamp in the will payload, the broker may hold it for a long time.
	offlinePayload, _ := json.Marshal(hub.OnlineStatus{
		DeviceID: deviceID,
		Online:   false,
		Reason:   "UnexpectedDisconnect",
	})

	mqttConfig.WillTopic = topicBuilder.Build(paths.Online, deviceID)
	mqttConfig.WillPayload = offlinePayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
