package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

func TestRun(t *testing.T) {
	// Saturday.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 12, 0, 0, 0, time.Local)))
	t.Cleanup(func() { domain.SetClock(nil) })

	tests := []struct {
		name string
		cli  cli
		want string
	}{
		{
			name: "weekday hours apply every day",
			cli:  cli{Weekday: "09.00-17.00", Day: "sunday"},
			want: "09.00-17.00\n",
		},
		{
			name: "sunday override",
			cli:  cli{Weekday: "06.00-22.00", Sunday: "09.00-20.00", Day: "sunday"},
			want: "09.00-20.00\n",
		},
		{
			name: "closed means same as weekday",
			cli:  cli{Weekday: "06.00-22.00", Saturday: "closed", Day: "saturday"},
			want: "06.00-22.00\n",
		},
		{
			name: "today resolves from the clock",
			cli:  cli{Weekday: "06.00-22.00", Saturday: "07.00-21.00", Day: "today"},
			want: "07.00-21.00\n",
		},
		{
			name: "open at",
			cli:  cli{Weekday: "06.00-22.00", Day: "monday", At: "21:59"},
			want: "06.00-22.00 open at 21.59\n",
		},
		{
			name: "closed at end",
			cli:  cli{Weekday: "06.00-22.00", Day: "monday", At: "22.00"},
			want: "06.00-22.00 closed at 22.00\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, run(tt.cli, &out))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer

	err := run(cli{Weekday: "closed", Day: "monday"}, &out)
	assert.ErrorIs(t, err, domain.ErrMissingWeekdayHours)

	err = run(cli{Weekday: "9-17", Day: "monday"}, &out)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeOfDay)

	err = run(cli{Weekday: "09.00-17.00", Day: "monday", At: "noon"}, &out)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeOfDay)

	assert.Empty(t, out.String())
}
