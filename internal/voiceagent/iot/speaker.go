package iot

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Speaker exposes the output volume.
type Speaker struct {
	volume atomic.Int32
}

func NewSpeaker(volume int) *Speaker {
	s := &Speaker{}
	s.volume.Store(int32(clampVolume(volume)))
	return s
}

func (s *Speaker) Volume() int { return int(s.volume.Load()) }

func (s *Speaker) SetVolume(v int) {
	s.volume.Store(int32(clampVolume(v)))
}

// Thing returns the "Speaker" capability backed by s.
func (s *Speaker) Thing() *Thing {
	return NewThing("Speaker", "The device speaker").
		AddProperty("volume", "Current volume, 0 to 100", func() any { return s.Volume() }).
		AddMethod("SetVolume", "Set the volume",
			map[string]Parameter{"volume": {Description: "Volume between 0 and 100", Type: TypeNumber}},
			s.handleSetVolume)
}

func (s *Speaker) handleSetVolume(params map[string]any) error {
	raw, ok := params["volume"]
	if !ok {
		return fmt.Errorf("volume is required: %w", ErrInvalidArgument)
	}
	f, ok := raw.(float64)
	if !ok || math.IsNaN(f) || f < 0 || f > 100 {
		return fmt.Errorf("volume %v out of range: %w", raw, ErrInvalidArgument)
	}
	s.SetVolume(int(math.Round(f)))
	return nil
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}
