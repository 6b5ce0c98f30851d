package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTimeOfDay is returned when a time-of-day string is not hh.mm.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")

	// ErrInvalidTimeRange is returned when a range has more than one separator.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrMissingWeekdayHours is returned when a shop has no weekday hours.
	ErrMissingWeekdayHours = errors.New("weekday hours are required")

	// ErrInvalidPosition is returned for coordinates outside WGS-84 bounds.
	ErrInvalidPosition = errors.New("invalid position")
)

// ParseError records which input failed to parse and why.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
