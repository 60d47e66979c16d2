package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// Keys persisted by the device.
const (
	KeyDeviceID      = "DEVICE_ID"
	KeyServeURL      = "SERVE_URL"
	KeyUserID        = "USER_ID"
	KeyActivated     = "ACTIVATED"
	KeyActiveURL     = "ACTIVE_URL"
	KeyVersionURL    = "VERSION_URL"
	KeyServerVersion = "SERV_VERSION"
	KeyWiFiList      = "WIFI_LIST"
)

var (
	// ErrNotFound is returned by Get for a key that has never been set.
	ErrNotFound = errors.New("key not found")

	// ErrKindMismatch is returned when a value is read as the wrong kind.
	ErrKindMismatch = errors.New("value kind mismatch")
)

// Kind tags the type a value was written with.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindBlob   Kind = "blob"
)

// Value is a typed scalar kept in its text encoding.
type Value struct {
	Kind Kind
	Data string
}

// Entry is a key with its value, as returned by List.
type Entry struct {
	Key string
	Value
}

// Store is a typed key/value store that survives restarts.
type Store interface {
	Get(ctx context.Context, key string) (Value, error)
	Set(ctx context.Context, key string, v Value) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

func StringValue(s string) Value { return Value{Kind: KindString, Data: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Data: strconv.FormatInt(i, 10)} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Data: strconv.FormatFloat(f, 'g', -1, 64)} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Data: strconv.FormatBool(b)} }
func BlobValue(b []byte) Value   { return Value{Kind: KindBlob, Data: base64.StdEncoding.EncodeToString(b)} }

func (v Value) String() string {
	return v.Data
}

func (v Value) Int() (int64, error) {
	if v.Kind != KindInt {
		return 0, fmt.Errorf("%w: %s is not %s", ErrKindMismatch, v.Kind, KindInt)
	}
	return strconv.ParseInt(v.Data, 10, 64)
}

func (v Value) Float() (float64, error) {
	if v.Kind != KindFloat && v.Kind != KindInt {
		return 0, fmt.Errorf("%w: %s is not %s", ErrKindMismatch, v.Kind, KindFloat)
	}
	return strconv.ParseFloat(v.Data, 64)
}

func (v Value) Bool() (bool, error) {
	if v.Kind != KindBool {
		return false, fmt.Errorf("%w: %s is not %s", ErrKindMismatch, v.Kind, KindBool)
	}
	return strconv.ParseBool(v.Data)
}

func (v Value) Blob() ([]byte, error) {
	if v.Kind != KindBlob {
		return nil, fmt.Errorf("%w: %s is not %s", ErrKindMismatch, v.Kind, KindBlob)
	}
	return base64.StdEncoding.DecodeString(v.Data)
}

func validKind(k Kind) bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindBlob:
		return true
	}
	return false
}
