package protocol

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrProtocol marks an inbound frame that decoded as JSON but is not a valid message.
var ErrProtocol = errors.New("protocol error")

// TransportError reports a failure to connect to, send on or receive from the backend.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactUserInfo(e.URL), e.Err)
	default:
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactUserInfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("redacted")
	return u.String()
}
