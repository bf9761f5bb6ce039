package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Telephony.AccountSID = expandEnvVars(cfg.Telephony.AccountSID)
	cfg.Telephony.AuthToken = expandEnvVars(cfg.Telephony.AuthToken)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.WebhookRate.PerMinute == 0 {
		cfg.Gateway.WebhookRate.PerMinute = 600
	}
	if cfg.Gateway.WebhookRate.Burst == 0 {
		cfg.Gateway.WebhookRate.Burst = 100
	}
	if cfg.Telephony.DialRate.PerMinute == 0 {
		cfg.Telephony.DialRate.PerMinute = 30
	}
	if cfg.Telephony.DialRate.Burst == 0 {
		cfg.Telephony.DialRate.Burst = 5
	}
	if cfg.Telephony.Breaker.MaxFailures == 0 {
		cfg.Telephony.Breaker.MaxFailures = 5
	}
	if cfg.Telephony.Breaker.TimeoutSeconds == 0 {
		cfg.Telephony.Breaker.TimeoutSeconds = 30
	}
	if cfg.Telephony.Breaker.IntervalSeconds == 0 {
		cfg.Telephony.Breaker.IntervalSeconds = 60
	}
	if cfg.Routing.MaxRetries == 0 {
		cfg.Routing.MaxRetries = 3
	}
	if cfg.Routing.SessionIdleMinutes == 0 {
		cfg.Routing.SessionIdleMinutes = 15
	}
	if cfg.Sweeper.Schedule == "" {
		cfg.Sweeper.Schedule = "@every 1m"
	}
	if cfg.Sweeper.StuckCallMinutes == 0 {
		cfg.Sweeper.StuckCallMinutes = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads DIALDESK_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DIALDESK_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("DIALDESK_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("DIALDESK_PUBLIC_URL"); v != "" {
		cfg.Gateway.PublicURL = v
	}
	if v := os.Getenv("DIALDESK_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("DIALDESK_ACCOUNT_SID"); v != "" {
		cfg.Telephony.AccountSID = v
	}
	if v := os.Getenv("DIALDESK_AUTH_TOKEN"); v != "" {
		cfg.Telephony.AuthToken = v
	}
	if v := os.Getenv("DIALDESK_FROM_NUMBER"); v != "" {
		cfg.Telephony.FromNumber = v
	}
	if v := os.Getenv("DIALDESK_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DIALDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
