package app

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/voicepeer/cmd/cpeer-voice-agent/app/options"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

const (
	commandName = "cpeer-voice-agent"
	commandDesc = `The Voicepeer Voice Agent runs on the device. It joins Wi-Fi, falls back to
BLE provisioning when no stored network works, and keeps a realtime session
with the voice backend, exposing the device capabilities to it.`

	envPrefix = "CPEER"
)

func NewVoiceAgentCommand(ctx context.Context) *cobra.Command {
	opts := options.NewVoiceAgentOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Launch a Voicepeer voice agent",
		Long:         commandDesc,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd.Flags(), configFile, opts)
			if err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			log.Init(opts.Log)
			defer log.Sync() //nolint:errcheck
			klog.SetLogger(log.Std().Logr())
			watchLogLevel(v, configFile)

			return run(ctx, opts)
		},
	}

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file.")

	fs := cmd.Flags()
	namedfs := opts.Flags()
	globalflag.AddGlobalFlags(namedfs.FlagSet("global"), cmd.Name())
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	cmd.AddCommand(newStoreCommand(&configFile))
	return cmd
}

func run(ctx context.Context, opts *options.VoiceAgentOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	runtime, err := cfg.NewRuntime()
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}

	log.Info("Starting cpeer-voice-agent", "store", opts.StoreOptions.Driver, "hal", opts.HALOptions.Driver)
	return runtime.Run(ctx)
}

// loadConfig layers defaults, the config file, CPEER_* variables and
// explicitly set flags, in increasing priority, onto target.
func loadConfig(fs *pflag.FlagSet, configFile string, target any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return v, nil
}

// watchLogLevel applies log.level changes from the config file without a restart.
func watchLogLevel(v *viper.Viper, configFile string) {
	if configFile == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("log.level")
		log.SetLevel(level)
		log.Info("Configuration reloaded", "file", e.Name, "log.level", log.Level())
	})
	v.WatchConfig()
}
