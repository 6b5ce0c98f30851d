package watchdog

import (
	"context"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

// ProviderState reports which location providers the device has switched on.
type ProviderState struct {
	GPS     bool `json:"gps"`
	Network bool `json:"network"`
}

// Enabled reports whether any provider is on.
func (p ProviderState) Enabled() bool { return p.GPS || p.Network }

// ProviderStatus answers the current provider flags. It is read once for
// the initial evaluation on Register.
type ProviderStatus interface {
	ProviderStates() ProviderState
}

// ProviderEvents delivers "providers changed" broadcasts together with the
// provider flags as of the broadcast. Register is called once per watchdog
// registration; notify must not block.
type ProviderEvents interface {
	Register(notify func(ProviderState)) error
	Unregister() error
}

// LocationClient queries the device's location services.
type LocationClient interface {
	// Availability reports whether the location subsystem has a usable fix.
	Availability(ctx context.Context) (bool, error)

	// LastLocation returns the last known fix, or nil when there is none.
	LastLocation(ctx context.Context) (*domain.Position, error)
}

// Platform groups the device-side collaborators of a Watchdog.
type Platform struct {
	Status ProviderStatus
	Events ProviderEvents
	Client LocationClient
}
