package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/soyeahso/dialdesk/internal/ivr"
	"github.com/soyeahso/dialdesk/internal/logging"
	"github.com/soyeahso/dialdesk/internal/routing"
	"github.com/soyeahso/dialdesk/internal/store"
)

type fakeDialer struct {
	sid    string
	err    error
	lastTo string
}

func (d *fakeDialer) PlaceCall(ctx context.Context, to, voiceURL, statusCallbackURL string) (string, error) {
	d.lastTo = to
	if d.err != nil {
		return "", d.err
	}
	return d.sid, nil
}

type testGateway struct {
	srv    *httptest.Server
	server *Server
	db     *store.DB
	ledger *store.AgentLedger
	calls  *store.CallStore
	hub    *Hub
	dialer *fakeDialer
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()
	log := logging.New(nil, "silent")

	cfg := config.Defaults()
	cfg.Gateway.PublicURL = "https://dialdesk.example.com"
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.SQL().Exec(`DELETE FROM agents`)
	require.NoError(t, err)

	ledger := store.NewAgentLedger(db)
	calls := store.NewCallStore(db)
	metrics := store.NewMetricsStore(db)
	hub := NewHub(log)
	coord := routing.New(log, ivr.New(cfg.Routing.MaxRetries), ledger, calls, hub)
	dialer := &fakeDialer{sid: "CA-out-1"}

	server := New(cfg, log, coord, ledger, calls, metrics, hub, WithDialer(dialer))
	server.startedAt = time.Now()

	mux := http.NewServeMux()
	server.registerHTTPRoutes(mux)
	srv := httptest.NewServer(withMiddleware(mux, log, cfg.Gateway.AllowedOrigins))
	t.Cleanup(srv.Close)

	return &testGateway{srv: srv, server: server, db: db, ledger: ledger, calls: calls, hub: hub, dialer: dialer}
}

func (g *testGateway) addAgent(t *testing.T, name, phone string, status domain.AgentStatus) int64 {
	t.Helper()
	res, err := g.db.SQL().Exec(
		`INSERT INTO agents (name, phone_number, status) VALUES (?, ?, ?)`,
		name, phone, string(status))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (g *testGateway) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(g.srv.URL+path, form)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestVoiceWebhook_StartsDialogue(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.postForm(t, "/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}})
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")
	assert.Contains(t, body, "state your full name")
	assert.Contains(t, body, `action="/gather_name"`)

	call, err := g.calls.GetBySID(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallInProgress, call.Status)
}

func TestVoiceWebhook_MissingCallSID(t *testing.T) {
	g := newTestGateway(t, nil)
	resp := g.postForm(t, "/voice", url.Values{"From": {"+15550100"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookDialogue_EndToEnd(t *testing.T) {
	g := newTestGateway(t, nil)
	g.addAgent(t, "Sarah Johnson", "+15551001", domain.AgentAvailable)

	resp := g.postForm(t, "/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}})
	readBody(t, resp)

	resp = g.postForm(t, "/gather_name", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Jane Doe"}})
	body := readBody(t, resp)
	assert.Contains(t, body, "Thank you, Jane Doe")
	assert.Contains(t, body, `action="/gather_age"`)

	resp = g.postForm(t, "/gather_age", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"34"}})
	body = readBody(t, resp)
	assert.Contains(t, body, "connect you to an available agent")
	assert.Contains(t, body, "<Dial>+15551001</Dial>")

	call, err := g.calls.GetBySID(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallTransferred, call.Status)
	assert.Equal(t, "Name: Jane Doe, Age: 34", call.DialogueSummary)
}

func TestStatusCallback(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.postForm(t, "/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}})
	readBody(t, resp)

	resp = g.postForm(t, "/status_callback", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	call, err := g.calls.GetBySID(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallCompleted, call.Status)
}

func TestStatusCallback_UnmodeledStatusAcknowledged(t *testing.T) {
	g := newTestGateway(t, nil)
	resp := g.postForm(t, "/status_callback", url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebhookSignatureValidation(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Telephony.AuthToken = "secret-token"
		cfg.Telephony.ValidateSignatures = true
	})

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}}

	resp := g.postForm(t, "/voice", form)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookRateLimit(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.WebhookRate = config.RateLimit{PerMinute: 1, Burst: 1}
	})

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}}
	resp := g.postForm(t, "/voice", form)
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.postForm(t, "/voice", form)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestAPIAuth(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.Auth.Token = "admin-token"
	})

	resp, err := http.Get(g.srv.URL + "/api/agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, g.srv.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer admin-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListAgents(t *testing.T) {
	g := newTestGateway(t, nil)
	g.addAgent(t, "Sarah Johnson", "+15551001", domain.AgentAvailable)
	g.addAgent(t, "Mike Chen", "+15551002", domain.AgentOffline)

	resp, err := http.Get(g.srv.URL + "/api/agents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Agents []domain.Agent `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.Len(t, payload.Agents, 2)
	assert.Equal(t, "Sarah Johnson", payload.Agents[0].Name)
}

func TestSetAgentStatus(t *testing.T) {
	g := newTestGateway(t, nil)
	id := g.addAgent(t, "Sarah Johnson", "+15551001", domain.AgentAvailable)

	body := strings.NewReader(`{"status":"offline"}`)
	req, err := http.NewRequest(http.MethodPut,
		g.srv.URL+"/api/agents/"+strconv.FormatInt(id, 10)+"/status", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agent domain.Agent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agent))
	resp.Body.Close()
	assert.Equal(t, domain.AgentOffline, agent.Status)
}

func TestSetAgentStatus_Errors(t *testing.T) {
	g := newTestGateway(t, nil)
	id := g.addAgent(t, "Sarah Johnson", "+15551001", domain.AgentAvailable)

	req, _ := http.NewRequest(http.MethodPut,
		g.srv.URL+"/api/agents/"+strconv.FormatInt(id, 10)+"/status",
		strings.NewReader(`{"status":"sleeping"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPut, g.srv.URL+"/api/agents/99999/status",
		strings.NewReader(`{"status":"offline"}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCalls(t *testing.T) {
	g := newTestGateway(t, nil)
	_, err := g.calls.Create(context.Background(), "CA1", "+15550100", time.Now().UTC())
	require.NoError(t, err)

	resp, err := http.Get(g.srv.URL + "/api/calls")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Calls []domain.Call `json:"calls"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.Len(t, payload.Calls, 1)
	assert.Equal(t, "CA1", payload.Calls[0].CallSID)
}

func TestMetricsEndpoints(t *testing.T) {
	g := newTestGateway(t, nil)

	for _, path := range []string{
		"/api/metrics/daily_calls",
		"/api/metrics/avg_call_duration",
		"/api/metrics/agent_availability",
	} {
		resp, err := http.Get(g.srv.URL + path)
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "application/json", path)
		resp.Body.Close()
	}
}

func TestRequestCall(t *testing.T) {
	g := newTestGateway(t, nil)

	resp, err := http.Post(g.srv.URL+"/request_call", "application/json",
		strings.NewReader(`{"to_number":"+15550200"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payload requestCallResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, "CA-out-1", payload.CallSID)
	assert.Equal(t, "initiated", payload.Status)
	assert.Equal(t, "+15550200", g.dialer.lastTo)

	call, err := g.calls.GetBySID(context.Background(), "CA-out-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallInitiated, call.Status)
}

func TestRequestCall_RecordFailureStillAnswersWithSID(t *testing.T) {
	g := newTestGateway(t, nil)

	// Registering the record fails, but the carrier call is already in
	// flight; the caller still gets the SID.
	require.NoError(t, g.db.Close())

	resp, err := http.Post(g.srv.URL+"/request_call", "application/json",
		strings.NewReader(`{"to_number":"+15550201"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payload requestCallResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, "CA-out-1", payload.CallSID)
}

func TestRequestCall_InvalidNumber(t *testing.T) {
	g := newTestGateway(t, nil)
	resp, err := http.Post(g.srv.URL+"/request_call", "application/json",
		strings.NewReader(`{"to_number":"5550200"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, nil)
	resp, err := http.Get(g.srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, "ok", payload.Status)
}

func TestNotFound(t *testing.T) {
	g := newTestGateway(t, nil)
	resp, err := http.Get(g.srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDashboardFeed(t *testing.T) {
	g := newTestGateway(t, nil)

	wsURL := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return g.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	agentID := int64(7)
	g.hub.CallUpdated(&domain.Call{
		ID: 1, CallSID: "CA1", AgentID: &agentID, Status: domain.CallTransferred,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "call_updated", ev.Type)
	require.NotNil(t, ev.Call)
	assert.Equal(t, "CA1", ev.Call.CallSID)
}
