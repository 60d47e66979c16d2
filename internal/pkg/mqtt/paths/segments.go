package paths

// Topic segments of the status mirror. Every topic follows
// {root}/{segment}/{deviceID}.

// Upstream: Device -> Broker
const (
	// Online carries the retained presence flag, also used as the will message.
	// Payload: { "online": true/false, "reason": "..." }
	Online = "online"

	// State carries the retained device state.
	// Payload: { "state": "idle", "session": true }
	State = "state"

	// IoTStates carries the latest capability snapshot.
	// Payload: [ { "name": "Speaker", "state": { "volume": 70 } } ]
	IoTStates = "iot/states"

	// Board carries the retained board description published at start.
	Board = "board"
)

// Downstream: Broker -> Device
const (
	// Command carries capability commands in the same shape as the session.
	// Payload: { "type": "iot", "commands": [ ... ] }
	Command = "command"
)
