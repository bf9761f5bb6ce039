package domain

import "time"

// AgentStatus is the closed set of availability states for an agent.
type AgentStatus string

const (
	AgentAvailable   AgentStatus = "available"
	AgentOnCall      AgentStatus = "on_call"
	AgentOffline     AgentStatus = "offline"
	AgentUnavailable AgentStatus = "unavailable"
)

// Valid reports whether s is a member of the closed status set.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentAvailable, AgentOnCall, AgentOffline, AgentUnavailable:
		return true
	}
	return false
}

// Agent is a human call-taker with an availability state.
type Agent struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	PhoneNumber      string      `json:"phone_number"`
	Status           AgentStatus `json:"status"`
	LastStatusUpdate time.Time   `json:"last_status_update"`
}

// AgentClaim identifies an agent returned by a successful claim.
// Exactly one caller ever holds a claim for a given agent at a time.
type AgentClaim struct {
	AgentID     int64  `json:"agentId"`
	PhoneNumber string `json:"phoneNumber"`
}
