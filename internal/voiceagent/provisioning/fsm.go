package provisioning

import (
	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/voicepeer/internal/pkg/util/fsm"
)

const (
	StateIdle               = "idle"
	StateAdvertising        = "advertising"
	StateConnected          = "connected"
	StateCredentialReceived = "credential_received"
	StateClosed             = "closed"
)

const (
	// EventAdvertise powers the radio and starts advertising.
	EventAdvertise = "advertise"
	// EventCentralConnected records a phone joining.
	EventCentralConnected = "central_connected"
	// EventCentralsGone resumes advertising once every phone has left.
	EventCentralsGone = "centrals_gone"
	// EventCredential fires when a full credential payload was parsed.
	EventCredential = "credential"
	// EventRejected returns to waiting after a failed association.
	EventRejected = "rejected"
	// EventClose tears the service down.
	EventClose = "close"
)

func (s *Service) newStateMachine() *fsm.FSM {
	events := fsm.Events{
		{Name: EventAdvertise, Src: []string{StateIdle, StateClosed}, Dst: StateAdvertising},
		{Name: EventCentralConnected, Src: []string{StateAdvertising, StateConnected}, Dst: StateConnected},
		{Name: EventCentralsGone, Src: []string{StateConnected}, Dst: StateAdvertising},
		{Name: EventCredential, Src: []string{StateAdvertising, StateConnected}, Dst: StateCredentialReceived},
		{Name: EventRejected, Src: []string{StateCredentialReceived}, Dst: StateConnected},
		{Name: EventClose, Src: []string{StateAdvertising, StateConnected, StateCredentialReceived}, Dst: StateClosed},
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventAdvertise: fsmutil.WrapEvent(s.guardRadioUp),

		// Side effects
		"enter_" + StateAdvertising: fsmutil.WrapEvent(s.actionStartAdvertising),
		"enter_" + StateClosed:      fsmutil.WrapEvent(s.actionShutdown),
		"enter_state":               s.recordTransition,
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}
