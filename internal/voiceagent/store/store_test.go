package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/autopeer-io/voicepeer/pkg/options"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	lite, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "settings.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { lite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": lite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, KeyServeURL); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
			}

			values := map[string]Value{
				KeyServeURL:  StringValue("wss://voice.example.com/v1/"),
				KeyActivated: BoolValue(true),
				"VOLUME":     IntValue(70),
				"GAIN":       FloatValue(0.5),
				"BLOB":       BlobValue([]byte{0x00, 0xff}),
			}
			for k, v := range values {
				if err := s.Set(ctx, k, v); err != nil {
					t.Fatalf("Set(%s): %v", k, err)
				}
			}
			for k, want := range values {
				got, err := s.Get(ctx, k)
				if err != nil {
					t.Fatalf("Get(%s): %v", k, err)
				}
				if got != want {
					t.Errorf("Get(%s) = %+v, want %+v", k, got, want)
				}
			}

			if err := s.Set(ctx, "VOLUME", IntValue(30)); err != nil {
				t.Fatal(err)
			}
			v, _ := s.Get(ctx, "VOLUME")
			if n, err := v.Int(); err != nil || n != 30 {
				t.Errorf("overwritten VOLUME = %d, %v", n, err)
			}

			entries, err := s.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != len(values) {
				t.Fatalf("List returned %d entries, want %d", len(entries), len(values))
			}
			for i := 1; i < len(entries); i++ {
				if entries[i-1].Key > entries[i].Key {
					t.Errorf("List not sorted: %s before %s", entries[i-1].Key, entries[i].Key)
				}
			}

			if err := s.Delete(ctx, "BLOB"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, "BLOB"); !errors.Is(err, ErrNotFound) {
				t.Errorf("deleted key still present: %v", err)
			}

			if err := s.Set(ctx, "X", Value{Kind: "complex"}); err == nil {
				t.Error("expected unknown kind to be rejected")
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.db")

	s, err := OpenSQLite(SQLiteConfig{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, KeyDeviceID, StringValue("dev-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(SQLiteConfig{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	v, err := s.Get(ctx, KeyDeviceID)
	if err != nil || v.String() != "dev-1" {
		t.Fatalf("after reopen Get = %+v, %v", v, err)
	}
}

func TestValueKindMismatch(t *testing.T) {
	if _, err := StringValue("1").Int(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Int on string: %v", err)
	}
	if _, err := IntValue(1).Bool(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Bool on int: %v", err)
	}
	if f, err := IntValue(3).Float(); err != nil || f != 3 {
		t.Errorf("Float on int = %v, %v", f, err)
	}
	b, err := BlobValue([]byte("abc")).Blob()
	if err != nil || string(b) != "abc" {
		t.Errorf("Blob = %q, %v", b, err)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(&options.StoreOptions{Driver: options.StoreDriverMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Open(memory) = %T", s)
	}
	if _, err := Open(&options.StoreOptions{Driver: "etcd"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
