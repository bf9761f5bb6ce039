package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/soyeahso/dialdesk/internal/store"
	"github.com/soyeahso/dialdesk/internal/telephony"
)

// Webhook handlers. These always answer 200 with voice markup when the event
// was processed; the carrier treats anything else as an application error
// and plays its own failure message to the caller.

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	s.serveDialogue(w, r, telephony.ConnectedEvent(r.PostForm))
}

func (s *Server) handleGatherName(w http.ResponseWriter, r *http.Request) {
	s.serveDialogue(w, r, telephony.SpeechEvent(r.PostForm))
}

func (s *Server) handleGatherAge(w http.ResponseWriter, r *http.Request) {
	s.serveDialogue(w, r, telephony.SpeechEvent(r.PostForm))
}

func (s *Server) serveDialogue(w http.ResponseWriter, r *http.Request, ev domain.Event) {
	if ev.CallSID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	instructions, err := s.coord.HandleEvent(r.Context(), ev)
	if err != nil {
		s.log.WithCall(ev.CallSID).Error().Err(err).Msg("handling dialogue event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, err := telephony.Render(instructions)
	if err != nil {
		s.log.WithCall(ev.CallSID).Error().Err(err).Msg("rendering voice response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", telephony.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	ev := telephony.StatusEvent(r.PostForm)
	if ev.CallSID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}
	if !ev.CallStatus.Valid() {
		// Progress statuses we do not model (queued, ringing) are fine to
		// acknowledge and drop.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := s.coord.HandleEvent(r.Context(), ev); err != nil {
		s.log.WithCall(ev.CallSID).Error().Err(err).Msg("handling status callback")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Outbound call placement.

type requestCallBody struct {
	ToNumber string `json:"to_number"`
}

type requestCallResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

func (s *Server) handleRequestCall(w http.ResponseWriter, r *http.Request) {
	if s.dialer == nil {
		writeError(w, http.StatusServiceUnavailable, "outbound calling is not configured")
		return
	}

	var body requestCallBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	to := strings.TrimSpace(body.ToNumber)
	if to == "" || !strings.HasPrefix(to, "+") {
		writeError(w, http.StatusBadRequest, "to_number must be E.164 (leading +)")
		return
	}

	base := strings.TrimSuffix(s.cfg.Gateway.PublicURL, "/")
	sid, err := s.dialer.PlaceCall(r.Context(), to, base+"/voice", base+"/status_callback")
	if err != nil {
		s.log.Error().Err(err).Str("to", to).Msg("placing outbound call")
		if errors.Is(err, telephony.ErrGatewayUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "carrier temporarily unavailable")
			return
		}
		writeError(w, http.StatusBadGateway, "carrier rejected the call")
		return
	}

	if err := s.coord.RegisterOutbound(r.Context(), sid, to); err != nil {
		// The carrier call is already in flight; the first /voice callback
		// recreates the record, so answer with the SID instead of a 500.
		s.log.WithCall(sid).Error().Err(err).Msg("registering outbound call")
	}

	writeJSON(w, http.StatusCreated, requestCallResponse{
		CallSID: sid,
		Status:  string(domain.CallInitiated),
	})
}

// Admin API.

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.ledger.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing agents")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type setAgentStatusBody struct {
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (s *Server) handleSetAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var body setAgentStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agent, err := s.ledger.SetStatus(r.Context(), id, domain.AgentStatus(body.Status), body.PhoneNumber)
	switch {
	case errors.Is(err, store.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid status: "+body.Status)
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
		return
	case err != nil:
		s.log.Error().Err(err).Int64("agentId", id).Msg("setting agent status")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.hub.AgentUpdated(agent)
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.calls.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing calls")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleDailyCalls(w http.ResponseWriter, r *http.Request) {
	m, err := s.metrics.DailyCalls(r.Context(), time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("computing daily calls")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAvgCallDuration(w http.ResponseWriter, r *http.Request) {
	m, err := s.metrics.AvgCallDuration(r.Context(), time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("computing avg call duration")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAgentAvailability(w http.ResponseWriter, r *http.Request) {
	m, err := s.metrics.AgentAvailability(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("computing agent availability")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Health and feed.

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
	FeedClients    int    `json:"feed_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        s.version,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ActiveSessions: s.coord.ActiveSessions(),
		FeedClients:    s.hub.Count(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Serve(conn)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
