package provisioning

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// Advertising data types from the Bluetooth assigned numbers.
const (
	adTypeUUID16Complete = 0x03
	adTypeShortName      = 0x08
	adTypeCompleteName   = 0x09

	// maxAdvertisingData is the legacy advertising PDU payload limit.
	maxAdvertisingData = 31
)

// AdvertisingPayload builds legacy advertising data carrying the device name
// and the 16-bit service UUID. A name that does not fit is truncated and
// advertised as a shortened local name.
func AdvertisingPayload(name string, service uint16) []byte {
	var uuid [2]byte
	binary.LittleEndian.PutUint16(uuid[:], service)

	// two length/type headers plus the uuid
	room := maxAdvertisingData - 2 - len(uuid) - 2

	nameType := byte(adTypeCompleteName)
	if len(name) > room {
		name = name[:room]
		nameType = adTypeShortName
	}

	payload := make([]byte, 0, maxAdvertisingData)
	if name != "" {
		payload = appendAD(payload, nameType, []byte(name))
	}
	return appendAD(payload, adTypeUUID16Complete, uuid[:])
}

func appendAD(b []byte, typ byte, value []byte) []byte {
	b = append(b, byte(len(value)+1), typ)
	return append(b, value...)
}

// Credential is the payload a phone writes to the provisioning characteristic.
type Credential struct {
	UserID   string `json:"user_id"`
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// parseCredential reports complete=false while buf does not yet hold a full
// JSON document. A complete document that is not a usable credential yields
// ErrMalformedCredential.
func parseCredential(buf []byte) (cred Credential, complete bool, err error) {
	if !json.Valid(buf) {
		return Credential{}, false, nil
	}
	if err := json.Unmarshal(buf, &cred); err != nil {
		return Credential{}, true, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if strings.TrimSpace(cred.SSID) == "" {
		return Credential{}, true, fmt.Errorf("%w: ssid is empty", ErrMalformedCredential)
	}
	return cred, true, nil
}
