// Command openhours resolves which opening hours of a shop apply on a day
// and, optionally, whether the shop is open at a given time.
//
// Usage:
//
//	openhours --weekday 06.00-22.00 --sunday 09.00-20.00 --day sunday --at 19:45
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

type cli struct {
	Weekday  string `required:"" help:"Monday to Friday hours, e.g. 06.00-22.00."`
	Saturday string `help:"Saturday hours; empty or 'closed' means same as weekday."`
	Sunday   string `help:"Sunday hours; empty or 'closed' means same as weekday."`
	Day      string `default:"today" enum:"today,monday,tuesday,wednesday,thursday,friday,saturday,sunday" help:"Day to resolve."`
	At       string `help:"Time of day (hh.mm or hh:mm) to check against the resolved hours."`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("openhours"),
		kong.Description("Resolve shop opening hours for a day."),
	)
	if err := run(c, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		kctx.Exit(1)
	}
}

func run(c cli, out io.Writer) error {
	hours, err := domain.NewOpenHours(c.Weekday, c.Saturday, c.Sunday)
	if err != nil {
		return err
	}

	var r domain.TimeRange
	if day, ok := weekdays[strings.ToLower(c.Day)]; ok {
		r = hours.For(day)
	} else {
		r = hours.ForToday()
	}

	if c.At == "" {
		_, err := fmt.Fprintln(out, r.String())
		return err
	}

	at, err := domain.ParseTimeOfDay(c.At)
	if err != nil {
		return fmt.Errorf("--at: %w", err)
	}
	status := "closed"
	if r.Contains(at) {
		status = "open"
	}
	_, err = fmt.Fprintf(out, "%s %s at %s\n", r.String(), status, at.String())
	return err
}
