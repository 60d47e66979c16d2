package provisioning

import "errors"

// ErrMalformedCredential is reported for a payload that decodes as JSON
// but does not carry a usable credential.
var ErrMalformedCredential = errors.New("malformed credential payload")
