package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the delivery journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one handled request and the aggregate of its fan-out.
// Keep it compact and schema-stable.
type Entry struct {
	At         time.Time `json:"at"`
	Topic      string    `json:"topic"`
	Sender     string    `json:"sender"`
	ClientAddr string    `json:"client_addr"`
	Kind       string    `json:"kind"` // "text" or "document"
	Recipients int       `json:"recipients"`
	Failed     int       `json:"failed"`
	Timeouts   int       `json:"timeouts"`
	Status     int       `json:"status"` // HTTP status returned to the caller
	TookMS     int64     `json:"took_ms"`
}
