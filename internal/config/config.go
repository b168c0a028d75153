package config

import "time"

// Config holds gateway configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// AllowedOrigin is the browser origin allowed to connect with
	// credentials.
	AllowedOrigin string `mapstructure:"allowed_origin" yaml:"allowed_origin"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// Per-(identity, event) inbound budget: EventRateLimit events in any
	// trailing EventRateWindow.
	EventRateLimit  int           `mapstructure:"event_rate_limit" yaml:"event_rate_limit"`
	EventRateWindow time.Duration `mapstructure:"event_rate_window" yaml:"event_rate_window"`

	// OutboundQueueSize bounds each connection's outbound event queue;
	// overflow drops the oldest pending event.
	OutboundQueueSize int `mapstructure:"outbound_queue_size" yaml:"outbound_queue_size"`

	// PollSessionTTL drops a long-poll session that has gone this long
	// without a poll request.
	PollSessionTTL time.Duration `mapstructure:"poll_session_ttl" yaml:"poll_session_ttl"`

	// StatusPollInterval and StatusTargets drive the service status
	// poller; an empty target map disables polling.
	StatusPollInterval time.Duration     `mapstructure:"status_poll_interval" yaml:"status_poll_interval"`
	StatusTargets      map[string]string `mapstructure:"status_targets" yaml:"status_targets"`

	// ServiceKeyHash is the bcrypt hash of the key trusted backend
	// services present on the ingress API.
	ServiceKeyHash string `mapstructure:"service_key_hash" yaml:"service_key_hash"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		AllowedOrigin:      "http://localhost:3000",
		DatabasePath:       "medianest.db",
		JWTIssuer:          "medianest",
		JWTAudience:        "medianest-gateway",
		EventRateLimit:     20,
		EventRateWindow:    10 * time.Second,
		OutboundQueueSize:  64,
		PollSessionTTL:     60 * time.Second,
		StatusPollInterval: 30 * time.Second,
	}
}
