package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/parking-barrier/internal/control"
)

// APIStatus is the body of GET /api/status.
type APIStatus struct {
	BarrierPosition string `json:"barrier_position"`
	VehicleCount    int    `json:"vehicle_count"`
	Timestamp       string `json:"timestamp"`
}

// ControlResponse is the body of POST /api/open and POST /api/close.
type ControlResponse struct {
	Accepted bool      `json:"accepted"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Status   APIStatus `json:"status"`
}

func toAPIStatus(s control.Status) APIStatus {
	return APIStatus{
		BarrierPosition: string(s.BarrierPosition),
		VehicleCount:    s.VehicleCount,
		Timestamp:       s.Timestamp.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
