package config

// Config is the root configuration for dialdesk.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Telephony TelephonyConfig `yaml:"telephony,omitempty"`
	Routing   RoutingConfig   `yaml:"routing,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Sweeper   SweeperConfig   `yaml:"sweeper,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP server that receives carrier callbacks and
// serves the dashboard API.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "auto" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	PublicURL      string      `yaml:"publicUrl,omitempty"` // externally reachable base URL for carrier callbacks
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	WebhookRate    RateLimit   `yaml:"webhookRate,omitempty"`
}

// GatewayAuth configures bearer-token auth for the admin API and the
// dashboard event feed. Empty token disables auth (local development).
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RateLimit is a requests-per-minute limit with a burst allowance.
type RateLimit struct {
	PerMinute int `yaml:"perMinute,omitempty"`
	Burst     int `yaml:"burst,omitempty"`
}

// TelephonyConfig configures the voice-gateway carrier integration.
type TelephonyConfig struct {
	AccountSID         string        `yaml:"accountSid,omitempty"`
	AuthToken          string        `yaml:"authToken,omitempty"`
	FromNumber         string        `yaml:"fromNumber,omitempty"`
	BaseURL            string        `yaml:"baseUrl,omitempty"` // carrier REST API base
	ValidateSignatures bool          `yaml:"validateSignatures,omitempty"`
	DialRate           RateLimit     `yaml:"dialRate,omitempty"`
	Breaker            BreakerConfig `yaml:"breaker,omitempty"`
}

// BreakerConfig tunes the circuit breaker around outbound carrier calls.
type BreakerConfig struct {
	MaxFailures     uint32 `yaml:"maxFailures,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
	IntervalSeconds int    `yaml:"intervalSeconds,omitempty"`
}

// RoutingConfig tunes the interaction dialogue and session handling.
type RoutingConfig struct {
	MaxRetries         int `yaml:"maxRetries,omitempty"`         // missing-input retries per collection step
	SessionIdleMinutes int `yaml:"sessionIdleMinutes,omitempty"` // abandoned-session eviction threshold
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite file; empty uses <data>/dialdesk.db
}

// SweeperConfig controls the scheduled maintenance job.
type SweeperConfig struct {
	Enabled          *bool  `yaml:"enabled,omitempty"` // defaults to true
	Schedule         string `yaml:"schedule,omitempty"`
	StuckCallMinutes int    `yaml:"stuckCallMinutes,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}

// SweeperEnabled resolves the enabled flag with its default.
func (c SweeperConfig) SweeperEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}
