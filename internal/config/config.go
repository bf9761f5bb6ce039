package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			WebhookRate: RateLimit{
				PerMinute: 600,
				Burst:     100,
			},
		},
		Telephony: TelephonyConfig{
			DialRate: RateLimit{
				PerMinute: 30,
				Burst:     5,
			},
			Breaker: BreakerConfig{
				MaxFailures:     5,
				TimeoutSeconds:  30,
				IntervalSeconds: 60,
			},
		},
		Routing: RoutingConfig{
			MaxRetries:         3,
			SessionIdleMinutes: 15,
		},
		Sweeper: SweeperConfig{
			Schedule:         "@every 1m",
			StuckCallMinutes: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
