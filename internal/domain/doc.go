// Package domain models the shop-side and device-side values the location
// watchdog works with: geographic positions and shop opening hours.
//
// # Positions
//
// A [Position] is a WGS-84 latitude/longitude pair. Positions are plain
// values compared by equality; there is no identity beyond the two floats.
// [Warsaw] (52.229990, 21.011572) is the stock fallback used when a device
// has never produced a fix. Callers configure the fallback explicitly; the
// watchdog never reads [Warsaw] on its own.
//
// # Opening hours
//
// Shop records carry opening hours as text, one string per day type:
//
//	"<hh.mm>-<hh.mm>"  →  e.g. "09.00-21.00"
//	a colon separator is accepted as well: "09:00-21:00"
//	surrounding whitespace is ignored: "09.00 - 21.00"
//
// A string without the "-" separator (e.g. "closed", "") means no hours were
// specified for that day type. For Saturday and Sunday that means "same as
// weekdays"; the weekday string is mandatory and its absence is
// [ErrMissingWeekdayHours].
//
// Malformed times are reported as a [*ParseError] wrapping
// [ErrInvalidTimeOfDay] rather than being replaced with the current time.
//
// "24.00" is accepted as an end time meaning end of day. A range whose end is
// before its start spans midnight, e.g. "22.00-06.00".
//
// # Today
//
// [OpenHours.ForToday] resolves against the local calendar of the package
// clock, which tests swap via [SetClock]:
//
//	Sunday:    Sunday hours if present, weekday hours otherwise
//	Saturday:  Saturday hours if present, weekday hours otherwise
//	otherwise: weekday hours
package domain
