// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() defaults and Load(ctx) layering file and env on top.
// - Keep koanf tags flat so env keys map one-to-one onto fields.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration for the rolloff daemon.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DieFaces is the die size used for every contest draw.
	DieFaces int `koanf:"die_faces"`

	// SolicitTimeoutMS bounds how long a remote owner may take per draw.
	SolicitTimeoutMS int `koanf:"solicit_timeout_ms"`

	// SettleDelayMS is the quiet period after an entity update before tie
	// detection runs, so a burst of updates triggers one scan.
	SettleDelayMS int `koanf:"settle_delay_ms"`

	// RankEpsilon is added to the tied rank when applying a winner.
	RankEpsilon float64 `koanf:"rank_epsilon"`

	// AutoResolve starts resolution immediately on detection. When false,
	// detected groups wait for a manual start.
	AutoResolve bool `koanf:"auto_resolve"`

	// IncludeUnowned includes entities without a remote owner in tie
	// detection.
	IncludeUnowned bool `koanf:"include_unowned"`

	// EventQueueSize bounds the observer event queue.
	EventQueueSize int `koanf:"event_queue_size"`

	// UpdateBufferSize bounds the store update notification channel.
	UpdateBufferSize int `koanf:"update_buffer_size"`

	// WSSendBuffer bounds each websocket client's outbound buffer.
	WSSendBuffer int `koanf:"ws_send_buffer"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9090",
		DieFaces:         20,
		SolicitTimeoutMS: 30_000,
		SettleDelayMS:    250,
		RankEpsilon:      0.01,
		AutoResolve:      true,
		IncludeUnowned:   true,
		EventQueueSize:   1024,
		UpdateBufferSize: 256,
		WSSendBuffer:     64,
	}
}
