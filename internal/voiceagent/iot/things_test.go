package iot

import (
	"errors"
	"testing"
)

func TestSpeakerSetVolume(t *testing.T) {
	tests := []struct {
		params  map[string]any
		want    int
		wantErr bool
	}{
		{params: map[string]any{"volume": 70.0}, want: 70},
		{params: map[string]any{"volume": 33.6}, want: 34},
		{params: map[string]any{"volume": 101.0}, want: 50, wantErr: true},
		{params: map[string]any{"volume": "loud"}, want: 50, wantErr: true},
		{params: map[string]any{}, want: 50, wantErr: true},
	}

	for _, tt := range tests {
		s := NewSpeaker(50)
		err := s.Thing().Invoke("SetVolume", tt.params)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetVolume(%v) error = %v, wantErr %v", tt.params, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SetVolume(%v) error %v is not ErrInvalidArgument", tt.params, err)
		}
		if got := s.Volume(); got != tt.want {
			t.Errorf("SetVolume(%v): volume = %d, want %d", tt.params, got, tt.want)
		}
	}
}

func TestNewSpeakerClamps(t *testing.T) {
	if v := NewSpeaker(250).Volume(); v != 100 {
		t.Errorf("Volume() = %d, want 100", v)
	}
}

func TestSystem(t *testing.T) {
	var reboots, resets int
	thing := NewSystem(SystemHooks{
		State:        func() string { return "idle" },
		Activated:    func() bool { return true },
		Reboot:       func() error { reboots++; return nil },
		FactoryReset: func() error { resets++; return nil },
	})

	state := thing.State()
	if state.State["state"] != "idle" || state.State["activated"] != true {
		t.Errorf("State() = %v", state.State)
	}

	if err := thing.Invoke("Reboot", nil); err != nil || reboots != 1 {
		t.Errorf("Reboot: err=%v reboots=%d", err, reboots)
	}
	if err := thing.Invoke("FactoryReset", map[string]any{"force": true}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FactoryReset with parameter: err=%v", err)
	}
	if resets != 0 {
		t.Error("handler ran despite undeclared parameter")
	}
}
