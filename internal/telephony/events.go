// Package telephony adapts the voice carrier's webhook and REST conventions
// to the engine's event and instruction types. Nothing outside this package
// knows the carrier's form field names or markup.
package telephony

import (
	"net/url"
	"strings"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// Carrier webhook form fields.
const (
	fieldCallSID      = "CallSid"
	fieldFrom         = "From"
	fieldSpeechResult = "SpeechResult"
	fieldCallStatus   = "CallStatus"
)

// ConnectedEvent parses an inbound call webhook into a connected event.
func ConnectedEvent(form url.Values) domain.Event {
	return domain.Event{
		Kind:    domain.EventConnected,
		CallSID: form.Get(fieldCallSID),
		Caller:  form.Get(fieldFrom),
	}
}

// SpeechEvent parses a gather callback. The transcription is empty when the
// caller said nothing before the gather timed out.
func SpeechEvent(form url.Values) domain.Event {
	return domain.Event{
		Kind:    domain.EventSpeech,
		CallSID: form.Get(fieldCallSID),
		Speech:  strings.TrimSpace(form.Get(fieldSpeechResult)),
	}
}

// StatusEvent parses a status callback. Carrier statuses use dashes
// ("no-answer"); ours use underscores.
func StatusEvent(form url.Values) domain.Event {
	raw := strings.ToLower(form.Get(fieldCallStatus))
	status := domain.CallStatus(strings.ReplaceAll(raw, "-", "_"))
	return domain.Event{
		Kind:       domain.EventStatusChanged,
		CallSID:    form.Get(fieldCallSID),
		CallStatus: status,
	}
}
