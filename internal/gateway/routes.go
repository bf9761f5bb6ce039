package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	// Carrier webhooks
	mux.HandleFunc("POST /voice", s.webhookGuard(s.handleVoice))
	mux.HandleFunc("POST /gather_name", s.webhookGuard(s.handleGatherName))
	mux.HandleFunc("POST /gather_age", s.webhookGuard(s.handleGatherAge))
	mux.HandleFunc("POST /status_callback", s.webhookGuard(s.handleStatusCallback))

	// Outbound call placement
	mux.HandleFunc("POST /request_call", s.requireAuth(s.handleRequestCall))

	// Admin API
	mux.HandleFunc("GET /api/agents", s.requireAuth(s.handleListAgents))
	mux.HandleFunc("PUT /api/agents/{id}/status", s.requireAuth(s.handleSetAgentStatus))
	mux.HandleFunc("GET /api/calls", s.requireAuth(s.handleListCalls))
	mux.HandleFunc("GET /api/metrics/daily_calls", s.requireAuth(s.handleDailyCalls))
	mux.HandleFunc("GET /api/metrics/avg_call_duration", s.requireAuth(s.handleAvgCallDuration))
	mux.HandleFunc("GET /api/metrics/agent_availability", s.requireAuth(s.handleAgentAvailability))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.requireAuth(s.handleWebSocket))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
