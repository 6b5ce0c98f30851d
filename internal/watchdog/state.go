package watchdog

import (
	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

// State is the watchdog's position in the provider/availability lifecycle.
type State int

const (
	// StateDisabled means no provider is enabled (also the initial state).
	StateDisabled State = iota
	// StateEnabledUnavailable means a provider is on and availability is being polled.
	StateEnabledUnavailable
	// StateEnabledAvailable means a fix became available and was published.
	StateEnabledAvailable
	// StateStopped means the watchdog was unregistered.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabledUnavailable:
		return "enabled_unavailable"
	case StateEnabledAvailable:
		return "enabled_available"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FixSource says where the published position came from.
type FixSource string

const (
	SourceNone     FixSource = ""
	SourceDevice   FixSource = "device"
	SourceFallback FixSource = "fallback"
)

// Fix is the most recently published position and its origin. A zero Fix
// (SourceNone) means nothing has been published yet.
type Fix struct {
	Position domain.Position `json:"position"`
	Source   FixSource       `json:"source"`
}

// Published reports whether the fix was ever emitted.
func (f Fix) Published() bool { return f.Source != SourceNone }

// Snapshot is a point-in-time view of the watchdog.
type Snapshot struct {
	State    State           `json:"state"`
	Enabled  bool            `json:"enabled"`
	Position domain.Position `json:"position"`
	Fix      Fix             `json:"fix"`
}
