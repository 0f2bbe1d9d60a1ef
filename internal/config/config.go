package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// IdentitySecret is the HMAC secret shared with the host application
	// that signs identity snapshot tokens.
	IdentitySecret string `mapstructure:"identity_secret" yaml:"identity_secret"`
	IdentityIssuer string `mapstructure:"identity_issuer" yaml:"identity_issuer"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	TypingTTL   time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`

	AppendRatePerSecond float64 `mapstructure:"append_rate_per_second" yaml:"append_rate_per_second"`
	AppendBurst         int     `mapstructure:"append_burst" yaml:"append_burst"`
	APIRatePerSecond    float64 `mapstructure:"api_rate_per_second" yaml:"api_rate_per_second"`
	APIRateBurst        int     `mapstructure:"api_rate_burst" yaml:"api_rate_burst"`

	// Announce emits system messages on room join and leave.
	Announce bool `mapstructure:"announce" yaml:"announce"`

	// BootstrapRooms are global rooms created at startup when missing.
	BootstrapRooms []string `mapstructure:"bootstrap_rooms" yaml:"bootstrap_rooms"`

	// FeedEnabled runs the synthetic inbound feed against the bootstrap
	// rooms; development only.
	FeedEnabled  bool          `mapstructure:"feed_enabled" yaml:"feed_enabled"`
	FeedInterval time.Duration `mapstructure:"feed_interval" yaml:"feed_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		DatabasePath:        "chatcore.db",
		IdentityIssuer:      "pixelgrid",
		LogLevel:            "info",
		TypingTTL:           3 * time.Second,
		PresenceTTL:         45 * time.Second,
		AppendRatePerSecond: 2,
		AppendBurst:         5,
		APIRatePerSecond:    20,
		APIRateBurst:        40,
		Announce:            true,
		BootstrapRooms:      []string{"global"},
		FeedInterval:        4 * time.Second,
	}
}
