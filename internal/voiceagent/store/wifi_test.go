package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParseWiFiList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Credential
	}{
		{"empty", "", nil},
		{"single", "home,secret", []Credential{{"home", "secret"}}},
		{"two", "home,secret;lab,pw", []Credential{{"home", "secret"}, {"lab", "pw"}}},
		{"open network", "cafe,", []Credential{{"cafe", ""}}},
		{"password with comma", "home,a,b", []Credential{{"home", "a,b"}}},
		{"trailing separator", "home,secret;", []Credential{{"home", "secret"}}},
		{"malformed entry skipped", "garbage;lab,pw", []Credential{{"lab", "pw"}}},
		{"duplicate keeps first position last password", "a,1;b,2;a,3", []Credential{{"a", "3"}, {"b", "2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseWiFiList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseWiFiList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCredentialValidate(t *testing.T) {
	tests := []struct {
		c       Credential
		wantErr bool
	}{
		{Credential{"home", "secret"}, false},
		{Credential{"home", "a,b"}, false},
		{Credential{"", "x"}, true},
		{Credential{"a;b", "x"}, true},
		{Credential{"a,b", "x"}, true},
		{Credential{"home", "a;b"}, true},
	}

	for _, tt := range tests {
		err := tt.c.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.c, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Validate(%+v) error %v does not wrap ErrInvalidCredential", tt.c, err)
		}
	}
}

func TestSettingsWiFi(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(NewMemory())

	creds, err := s.WiFiList(ctx)
	if err != nil || len(creds) != 0 {
		t.Fatalf("empty WiFiList = %v, %v", creds, err)
	}

	for _, c := range []Credential{{"home", "old"}, {"lab", "pw"}, {"home", "new"}} {
		if err := s.AddWiFi(ctx, c); err != nil {
			t.Fatalf("AddWiFi(%v): %v", c, err)
		}
	}

	want := []Credential{{"home", "new"}, {"lab", "pw"}}
	if creds, _ = s.WiFiList(ctx); !reflect.DeepEqual(creds, want) {
		t.Fatalf("WiFiList = %v, want %v", creds, want)
	}
	raw, _ := s.String(ctx, KeyWiFiList)
	if raw != "home,new;lab,pw" {
		t.Errorf("WIFI_LIST = %q", raw)
	}

	if removed, err := s.RemoveWiFi(ctx, "home"); err != nil || !removed {
		t.Fatalf("RemoveWiFi(home) = %v, %v", removed, err)
	}
	if removed, _ := s.RemoveWiFi(ctx, "home"); removed {
		t.Error("second RemoveWiFi(home) reported a removal")
	}
	if creds, _ = s.WiFiList(ctx); !reflect.DeepEqual(creds, []Credential{{"lab", "pw"}}) {
		t.Errorf("WiFiList after remove = %v", creds)
	}

	if err := s.AddWiFi(ctx, Credential{"bad;ssid", "x"}); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("AddWiFi with separator: %v", err)
	}
}

func TestSettingsActivation(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(NewMemory())

	if ok, err := s.Activated(ctx); err != nil || ok {
		t.Fatalf("fresh Activated = %v, %v", ok, err)
	}
	if err := s.MarkActivated(ctx, "user-42"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Activated(ctx); !ok {
		t.Error("Activated = false after MarkActivated")
	}
	if id, _ := s.UserID(ctx); id != "user-42" {
		t.Errorf("UserID = %q", id)
	}

	if err := s.FactoryReset(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Activated(ctx); ok {
		t.Error("Activated = true after FactoryReset")
	}
	if id, _ := s.UserID(ctx); id != "" {
		t.Errorf("UserID after FactoryReset = %q", id)
	}
}
