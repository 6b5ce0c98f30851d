package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript_Default(t *testing.T) {
	steps, err := parseScript(strings.NewReader(defaultScript), "phone-7")
	require.NoError(t, err)
	require.Len(t, steps, 7)

	assert.Equal(t, "devices/phone-7/providers", steps[1].Topic)
	assert.JSONEq(t, `{"gps":true,"network":false}`, steps[1].Payload)
	assert.Equal(t, "devices/phone-7/fix", steps[3].Topic)
	assert.JSONEq(t, `{"lat":52.231958,"lng":21.006725}`, steps[3].Payload)
	assert.Equal(t, 8*time.Second, steps[6].Offset)
}

func TestParseScript_SortsByOffset(t *testing.T) {
	script := `kind,offset,available
availability,2s,true
availability,500ms,false
`
	steps, err := parseScript(strings.NewReader(script), "d")
	require.NoError(t, err)

	want := []step{
		{Offset: 500 * time.Millisecond, Topic: "devices/d/availability", Payload: `{"available":false}`},
		{Offset: 2 * time.Second, Topic: "devices/d/availability", Payload: `{"available":true}`},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScript_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"header only", "offset,kind\n", "no data rows"},
		{"bad offset", "offset,kind\nsoon,providers\n", "line 2: offset"},
		{"unknown kind", "offset,kind\n1s,battery\n", `unknown kind "battery"`},
		{"bad latitude", "offset,kind,lat,lng\n1s,fix,north,21\n", "line 2: lat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScript(strings.NewReader(tt.script), "d")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
