package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timeOfDayRe matches "hh.mm" or "hh:mm" with a one- or two-digit hour.
var timeOfDayRe = regexp.MustCompile(`^(\d{1,2})[.:](\d{2})$`)

// TimeOfDay is a wall-clock time without a date. Hour 24 with minute 0 is
// allowed and means end of day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// TimeOfDayOf returns the wall-clock time of t, truncated to the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseTimeOfDay parses "hh.mm" (or "hh:mm").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, &ParseError{Input: s, Err: ErrInvalidTimeOfDay}
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	if minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return TimeOfDay{}, &ParseError{Input: s, Err: ErrInvalidTimeOfDay}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Minutes returns the number of minutes since midnight (0..1440).
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d.%02d", t.Hour, t.Minute)
}

// TimeRange is an open/close pair for one day type.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseTimeRange parses "hh.mm-hh.mm". A string without a separator means no
// hours were specified and yields ok=false with a nil error.
func ParseTimeRange(s string) (TimeRange, bool, error) {
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		return TimeRange{}, false, nil
	case 2:
	default:
		return TimeRange{}, false, &ParseError{Input: s, Err: ErrInvalidTimeRange}
	}

	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("range start: %w", err)
	}
	end, err := ParseTimeOfDay(parts[1])
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("range end: %w", err)
	}
	return TimeRange{Start: start, End: end}, true, nil
}

// Contains reports whether t falls within the range. The end is exclusive.
// Ranges with End before Start wrap past midnight; Start equal to End is empty.
func (r TimeRange) Contains(t TimeOfDay) bool {
	s, e, m := r.Start.Minutes(), r.End.Minutes(), t.Minutes()
	if s <= e {
		return s <= m && m < e
	}
	return m >= s || m < e
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// OpenHours is a shop's weekly schedule. Saturday and Sunday are nil when
// they follow the weekday hours.
type OpenHours struct {
	WeekDay  TimeRange
	Saturday *TimeRange
	Sunday   *TimeRange
}

// NewOpenHours builds OpenHours from the textual ranges of a shop record.
// Empty or separator-less weekend strings fall back to the weekday range.
func NewOpenHours(weekDay, saturday, sunday string) (OpenHours, error) {
	wd, ok, err := ParseTimeRange(weekDay)
	if err != nil {
		return OpenHours{}, fmt.Errorf("weekday hours: %w", err)
	}
	if !ok {
		return OpenHours{}, &ParseError{Input: weekDay, Err: ErrMissingWeekdayHours}
	}

	sat, err := optionalRange(saturday)
	if err != nil {
		return OpenHours{}, fmt.Errorf("saturday hours: %w", err)
	}
	sun, err := optionalRange(sunday)
	if err != nil {
		return OpenHours{}, fmt.Errorf("sunday hours: %w", err)
	}

	return OpenHours{WeekDay: wd, Saturday: sat, Sunday: sun}, nil
}

func optionalRange(s string) (*TimeRange, error) {
	r, ok, err := ParseTimeRange(s)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// For returns the range that applies on the given weekday.
func (o OpenHours) For(day time.Weekday) TimeRange {
	switch day {
	case time.Sunday:
		if o.Sunday != nil {
			return *o.Sunday
		}
	case time.Saturday:
		if o.Saturday != nil {
			return *o.Saturday
		}
	}
	return o.WeekDay
}

// ForToday returns the range for the current local weekday.
func (o OpenHours) ForToday() TimeRange {
	return o.For(clock.Now().Weekday())
}

// IsOpenAt reports whether the shop is open at t, using the range of t's own
// weekday.
func (o OpenHours) IsOpenAt(t time.Time) bool {
	return o.For(t.Weekday()).Contains(TimeOfDayOf(t))
}
