package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/store"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

type storeConfig struct {
	StoreOptions *options.StoreOptions `mapstructure:"store"`
}

// newStoreCommand groups the offline maintenance commands used on the
// production line and in the field.
func newStoreCommand(configFile *string) *cobra.Command {
	cfg := &storeConfig{StoreOptions: options.NewStoreOptions()}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and edit the persistent device settings",
	}
	cfg.StoreOptions.AddFlags(cmd.PersistentFlags())

	withSettings := func(fn func(ctx context.Context, cmd *cobra.Command, args []string, s *store.Settings) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd.Flags(), *configFile, cfg); err != nil {
				return err
			}
			st, err := store.Open(cfg.StoreOptions)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			return fn(cmd.Context(), cmd, args, store.NewSettings(st))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every stored key",
			Args:  cobra.NoArgs,
			RunE: withSettings(func(ctx context.Context, cmd *cobra.Command, _ []string, s *store.Settings) error {
				return printSettings(ctx, cmd.OutOrStdout(), s)
			}),
		},
		&cobra.Command{
			Use:   "seed FILE",
			Short: "Apply a YAML factory seed file",
			Args:  cobra.ExactArgs(1),
			RunE: withSettings(func(ctx context.Context, cmd *cobra.Command, args []string, s *store.Settings) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close() //nolint:errcheck

				seed, err := store.LoadSeed(f)
				if err != nil {
					return err
				}
				if err := seed.Apply(ctx, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (%d networks)\n", args[0], len(seed.WiFi))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add-wifi SSID PASSWORD",
			Short: "Add or update a stored network",
			Args:  cobra.ExactArgs(2),
			RunE: withSettings(func(ctx context.Context, cmd *cobra.Command, args []string, s *store.Settings) error {
				return s.AddWiFi(ctx, store.Credential{SSID: args[0], Password: args[1]})
			}),
		},
		&cobra.Command{
			Use:   "remove-wifi SSID",
			Short: "Forget a stored network",
			Args:  cobra.ExactArgs(1),
			RunE: withSettings(func(ctx context.Context, cmd *cobra.Command, args []string, s *store.Settings) error {
				removed, err := s.RemoveWiFi(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("network %q is not stored", args[0])
				}
				return nil
			}),
		},
	)
	return cmd
}

func printSettings(ctx context.Context, w io.Writer, s *store.Settings) error {
	entries, err := s.Store().List(ctx)
	if err != nil {
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 64
	table.AddRow("KEY", "KIND", "VALUE")
	for _, e := range entries {
		value := e.Data
		if e.Key == store.KeyWiFiList {
			value = maskWiFiList(value)
		}
		table.AddRow(e.Key, string(e.Kind), value)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// maskWiFiList hides the passwords of a WIFI_LIST value.
func maskWiFiList(raw string) string {
	creds := store.ParseWiFiList(raw)
	ssids := make([]string, len(creds))
	for i, c := range creds {
		ssids[i] = c.SSID + ",****"
	}
	return strings.Join(ssids, ";")
}
