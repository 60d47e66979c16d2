package topic

import "testing"

func TestBuilder(t *testing.T) {
	tests := []struct {
		root    string
		segment string
		id      string
		want    string
	}{
		{"voicepeer/v1", "state", "dev-1", "voicepeer/v1/state/dev-1"},
		{"voicepeer/v1/", "online", "dev-1", "voicepeer/v1/online/dev-1"},
		{"lab", "iot/states", "aa", "lab/iot/states/aa"},
	}

	for _, tt := range tests {
		if got := NewBuilder(tt.root).Build(tt.segment, tt.id); got != tt.want {
			t.Errorf("Build(%q, %q) under %q = %q, want %q", tt.segment, tt.id, tt.root, got, tt.want)
		}
	}

	if got := NewBuilder("r").Wildcard("command"); got != "r/command/+" {
		t.Errorf("Wildcard = %q", got)
	}
}
