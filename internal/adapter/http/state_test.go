package http_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name string
		snap watchdog.Snapshot
		want string
	}{
		{
			name: "fallback seed before any publish",
			snap: watchdog.Snapshot{Position: domain.Warsaw},
			want: `{"lat":52.22999,"lng":21.011572,"source":"none"}`,
		},
		{
			name: "device fix",
			snap: watchdog.Snapshot{
				Position: domain.At(50.5, 19.5),
				Fix:      watchdog.Fix{Position: domain.At(50.5, 19.5), Source: watchdog.SourceDevice},
			},
			want: `{"lat":50.5,"lng":19.5,"source":"device"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(nil, tt.snap), "/v1/position")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestState(t *testing.T) {
	snap := watchdog.Snapshot{
		State:    watchdog.StateEnabledAvailable,
		Enabled:  true,
		Position: domain.At(50.5, 19.5),
		Fix:      watchdog.Fix{Position: domain.At(50.5, 19.5), Source: watchdog.SourceDevice},
	}
	rec := get(t, newTestServer(nil, snap), "/v1/state")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"state":"enabled_available",
		"enabled":true,
		"position":{"lat":50.5,"lng":19.5},
		"fix":{"position":{"lat":50.5,"lng":19.5},"source":"device"}
	}`, rec.Body.String())
}
