package domain

import "github.com/jonboulle/clockwork"

// clock is the package-level calendar source for "today" lookups.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used by ForToday. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
