package config

// Config is the full gateway configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Listen and Telegram.Secret are read once at startup; changing them in a
// running process requires a restart. Everything else (topics, policy,
// logging, journal retention) is hot-reloadable.
type Config struct {
	Listen   string         `json:"listen"`
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http,omitempty"`
	Policy   PolicyConfig   `json:"policy,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Journal  JournalConfig  `json:"journal,omitempty"`
	Debug    DebugConfig    `json:"debug,omitempty"`

	// Topics maps a topic name to its recipients and source allow-list.
	Topics map[string]TopicConfig `json:"topics"`
}

// TopicConfig defines one named notification channel.
type TopicConfig struct {
	// Recipients are Telegram chat identifiers (numeric IDs or @channel
	// names), passed to the Bot API verbatim. May be empty: the topic then
	// exists but delivery fans out to nobody.
	Recipients []string `json:"recipients"`

	// AllowList holds CIDR blocks (IPv4 or IPv6) whose members may post to
	// this topic. Empty means no address is authorized.
	AllowList []string `json:"allow_list"`
}

type TelegramConfig struct {
	// Secret is the bot token; the subsystem posts to <api_url>/bot<secret>/...
	Secret string `json:"secret"`

	// APIURL overrides the Bot API base URL. Default: https://api.telegram.org
	APIURL string `json:"api_url,omitempty"`

	// Timeout bounds each downstream call. Default "10s".
	Timeout string `json:"timeout,omitempty"`

	// RatePerSec throttles outgoing Bot API calls. 0 disables throttling.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type HTTPConfig struct {
	// MaxBodyBytes caps inbound request bodies. Default 50 MB.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// PolicyConfig resolves the reporting choices the gateway deliberately
// leaves configurable.
type PolicyConfig struct {
	// AuthFailure controls how a disallowed source address is reported:
	//   - "not_found" (default): same 404 as an unknown topic, so callers
	//     cannot probe which topics exist
	//   - "forbidden": a distinct 403
	AuthFailure string `json:"auth_failure,omitempty"`

	// DistinguishTimeouts reports 504 instead of 500 when every failed
	// delivery in a request timed out.
	DistinguishTimeouts bool `json:"distinguish_timeouts,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// JournalConfig controls the optional delivery journal.
//
// Driver values:
//   - "" or "none": disabled
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
type JournalConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// Retention is how long journal entries are kept. Default "168h".
	Retention string `json:"retention,omitempty"`

	// SweepSchedule is a cron spec (robfig/cron, @every accepted) for the
	// retention sweep. Default "@every 1h".
	SweepSchedule string `json:"sweep_schedule,omitempty"`

	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DebugConfig controls the optional pprof listener.
// Prefer binding to localhost.
type DebugConfig struct {
	PprofAddr string `json:"pprof_addr,omitempty"`
}

const (
	AuthFailureNotFound  = "not_found"
	AuthFailureForbidden = "forbidden"
)

// AuthFailureMode returns the normalized policy value.
func (p PolicyConfig) AuthFailureMode() string {
	if p.AuthFailure == AuthFailureForbidden {
		return AuthFailureForbidden
	}
	return AuthFailureNotFound
}
