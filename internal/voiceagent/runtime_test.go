package voiceagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/server"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimeNotRunning(t *testing.T) {
	p, _, _, _ := testPlatform(t, nil)
	r := NewRuntime(testConfig("ws://127.0.0.1:1/unused"), p, nil)

	if _, err := r.Status(); !errors.Is(err, server.ErrNotRunning) {
		t.Errorf("Status() error = %v, want ErrNotRunning", err)
	}
	if err := r.ToggleChat(); !errors.Is(err, server.ErrNotRunning) {
		t.Errorf("ToggleChat() error = %v, want ErrNotRunning", err)
	}
}

func TestRuntimeReboot(t *testing.T) {
	p, _, ble, _ := testPlatform(t, nil)
	r := NewRuntime(testConfig("ws://127.0.0.1:1/unused"), p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, "first boot to advertise", func() bool {
		_, on := ble.Advertising()
		return r.Boots() == 1 && on
	})
	first := r.Current()
	if _, err := r.Status(); err != nil {
		t.Errorf("Status() error = %v", err)
	}

	r.Reboot()
	waitFor(t, "second boot", func() bool { return r.Boots() == 2 })
	if r.Current() == first {
		t.Error("agent not replaced on reboot")
	}
	waitFor(t, "second boot to advertise", func() bool {
		_, on := ble.Advertising()
		return on
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run() did not return after cancel")
	}
	if ble.IsActive() {
		t.Error("BLE radio left on after shutdown")
	}
}
