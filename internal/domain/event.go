package domain

// EventKind discriminates inbound gateway events.
type EventKind string

const (
	// EventConnected fires when the carrier bridges the call to us.
	EventConnected EventKind = "connected"
	// EventSpeech carries a speech transcription result. Speech may be empty
	// when the caller said nothing before the gather timed out.
	EventSpeech EventKind = "speech"
	// EventStatusChanged carries a carrier call-status transition.
	EventStatusChanged EventKind = "status_changed"
)

// Event is a typed inbound telephony event, parsed from a gateway callback.
type Event struct {
	Kind       EventKind  `json:"kind"`
	CallSID    string     `json:"callSid"`
	Caller     string     `json:"caller,omitempty"`
	Speech     string     `json:"speech,omitempty"`
	CallStatus CallStatus `json:"callStatus,omitempty"`
}
