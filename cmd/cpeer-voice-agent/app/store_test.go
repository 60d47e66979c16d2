package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewVoiceAgentCommand(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "settings.db")
	seed := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seed, []byte("serve_url: wss://voice.example.com/v1/\nwifi:\n  - ssid: lab\n    password: secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	steps := [][]string{
		{"store", "seed", seed, "--store.path", db},
		{"store", "add-wifi", "Home", "pw", "--store.path", db},
		{"store", "remove-wifi", "lab", "--store.path", db},
	}
	for _, args := range steps {
		if _, err := execute(t, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	out, err := execute(t, "store", "list", "--store.path", db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"SERVE_URL", "wss://voice.example.com/v1/", "Home,****"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pw") || strings.Contains(out, "lab") {
		t.Errorf("list output leaks removed or secret values:\n%s", out)
	}

	if _, err := execute(t, "store", "remove-wifi", "lab", "--store.path", db); err == nil {
		t.Error("removing an unknown network succeeded")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(file, []byte("session:\n  url: ws://from-file/v1/\nstore:\n  driver: memory\nlog:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CPEER_LOG_LEVEL", "warn")

	cmd := NewVoiceAgentCommand(context.Background())
	if err := cmd.Flags().Parse([]string{"--session.url", "ws://from-flag/v1/"}); err != nil {
		t.Fatal(err)
	}

	var got struct {
		Session struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"session"`
		Store struct {
			Driver string `mapstructure:"driver"`
		} `mapstructure:"store"`
		Log struct {
			Level string `mapstructure:"level"`
		} `mapstructure:"log"`
	}
	if _, err := loadConfig(cmd.Flags(), file, &got); err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if got.Session.URL != "ws://from-flag/v1/" {
		t.Errorf("session.url = %q, flag should win", got.Session.URL)
	}
	if got.Log.Level != "warn" {
		t.Errorf("log.level = %q, env should beat the file", got.Log.Level)
	}
	if got.Store.Driver != "memory" {
		t.Errorf("store.driver = %q, file should beat the default", got.Store.Driver)
	}
}
