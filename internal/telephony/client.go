package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/logging"
)

// ErrGatewayUnavailable is returned while the circuit breaker is open: the
// carrier has been failing and we refuse to queue more requests at it.
var ErrGatewayUnavailable = errors.New("carrier gateway unavailable")

// Status callback events we subscribe outbound calls to.
var statusCallbackEvents = []string{
	"initiated", "ringing", "answered", "completed",
	"failed", "no-answer", "busy", "canceled",
}

// Client places outbound calls through the carrier's REST API. Requests are
// rate limited and pass through a circuit breaker so a carrier outage sheds
// load quickly instead of stacking timeouts.
type Client struct {
	http       *http.Client
	log        *logging.Logger
	baseURL    string
	accountSID string
	authToken  string
	from       string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[string]
}

// NewClient builds a carrier client from telephony config.
func NewClient(cfg config.TelephonyConfig, log *logging.Logger) *Client {
	settings := gobreaker.Settings{
		Name:     "carrier",
		Interval: time.Duration(cfg.Breaker.IntervalSeconds) * time.Second,
		Timeout:  time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	perSecond := rate.Limit(float64(cfg.DialRate.PerMinute) / 60.0)
	if cfg.DialRate.PerMinute <= 0 {
		perSecond = rate.Inf
	}
	burst := cfg.DialRate.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        log,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		limiter:    rate.NewLimiter(perSecond, burst),
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

// PlaceCall dials the given number and points the call at our voice entry
// point. It returns the carrier-assigned call SID.
func (c *Client) PlaceCall(ctx context.Context, toNumber, voiceURL, statusCallbackURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("dial rate limit: %w", err)
	}

	sid, err := c.breaker.Execute(func() (string, error) {
		return c.createCall(ctx, toNumber, voiceURL, statusCallbackURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrGatewayUnavailable
		}
		return "", err
	}
	c.log.Info().Str("callSid", sid).Str("to", toNumber).Msg("outbound call placed")
	return sid, nil
}

func (c *Client) createCall(ctx context.Context, toNumber, voiceURL, statusCallbackURL string) (string, error) {
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.from)
	form.Set("Url", voiceURL)
	form.Set("StatusCallback", statusCallbackURL)
	form.Set("StatusCallbackMethod", "POST")
	for _, ev := range statusCallbackEvents {
		form.Add("StatusCallbackEvent", ev)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("carrier request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading carrier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("carrier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decoding carrier response: %w", err)
	}
	if payload.SID == "" {
		return "", fmt.Errorf("carrier response missing call sid")
	}
	return payload.SID, nil
}
