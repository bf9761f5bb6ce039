package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- AgentStatus tests ---

func TestAgentStatusValid(t *testing.T) {
	valid := []AgentStatus{AgentAvailable, AgentOnCall, AgentOffline, AgentUnavailable}
	for _, s := range valid {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}

	assert.False(t, AgentStatus("").Valid())
	assert.False(t, AgentStatus("busy").Valid())
	assert.False(t, AgentStatus("AVAILABLE").Valid())
}

// --- CallStatus tests ---

func TestCallStatusValid(t *testing.T) {
	valid := []CallStatus{
		CallInitiated, CallInProgress, CallTransferred,
		CallCompleted, CallFailed, CallNoAnswer, CallBusy, CallCanceled,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}

	assert.False(t, CallStatus("ringing").Valid())
	assert.False(t, CallStatus("").Valid())
}

func TestCallStatusTerminal(t *testing.T) {
	tests := []struct {
		status CallStatus
		want   bool
	}{
		{CallInitiated, false},
		{CallInProgress, false},
		{CallTransferred, false},
		{CallCompleted, true},
		{CallFailed, true},
		{CallNoAnswer, true},
		{CallBusy, true},
		{CallCanceled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

// --- Session tests ---

func TestSessionDone(t *testing.T) {
	assert.False(t, Session{Step: StepStart}.Done())
	assert.False(t, Session{Step: StepAwaitingAge}.Done())
	assert.True(t, Session{Step: StepDone}.Done())
}

// --- Instruction tests ---

func TestInstructionConstructors(t *testing.T) {
	say := Say("hello")
	assert.Equal(t, VerbSay, say.Verb)
	assert.Equal(t, "hello", say.Text)

	gather := Gather("/gather_name", "state your name")
	assert.Equal(t, VerbGather, gather.Verb)
	assert.Equal(t, "/gather_name", gather.Action)
	assert.Equal(t, "state your name", gather.Text)

	dial := Dial("+15550001111")
	assert.Equal(t, VerbDial, dial.Verb)
	assert.Equal(t, "+15550001111", dial.Number)

	assert.Equal(t, VerbRedirect, Redirect("/voice").Verb)
	assert.Equal(t, VerbHangup, Hangup().Verb)
}

func TestCallJSONShape(t *testing.T) {
	c := Call{ID: 1, CallSID: "CA123", CallerNumber: "+15551234567", Status: CallInitiated}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "CA123", m["call_sid"])
	assert.Equal(t, "initiated", m["status"])
	// nullable fields stay null until set, matching the dashboard contract
	assert.Nil(t, m["agent_id"])
	assert.Nil(t, m["end_time"])
}
