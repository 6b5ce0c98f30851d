package http

import (
	"net/http"

	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

// SnapshotProvider exposes the current watchdog view.
type SnapshotProvider interface {
	Snapshot() watchdog.Snapshot
}

type positionResponse struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Source string  `json:"source"`
}

func registerStateRoutes(mux *http.ServeMux, snapshots SnapshotProvider) {
	mux.HandleFunc("GET /v1/position", handlePosition(snapshots))
	mux.HandleFunc("GET /v1/state", handleState(snapshots))
}

// handlePosition serves the current position. Before any publish the
// configured fallback is reported with source "none".
func handlePosition(snapshots SnapshotProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := snapshots.Snapshot()
		source := string(snap.Fix.Source)
		if source == "" {
			source = "none"
		}
		writeJSON(w, http.StatusOK, positionResponse{
			Lat:    snap.Position.Latitude,
			Lng:    snap.Position.Longitude,
			Source: source,
		})
	}
}

func handleState(snapshots SnapshotProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, snapshots.Snapshot())
	}
}
