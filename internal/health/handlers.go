package health

import (
	"net/http"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
)

type status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthzHandler answers 200 {"status":"ok"} or 503 with the probe's reason.
// A nil probe is healthy.
func HealthzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ok")
}

// ReadyzHandler answers 200 {"status":"ready"} or 503 with the probe's reason.
func ReadyzHandler(p Probe) http.HandlerFunc {
	return probeHandler(p, "ready")
}

func probeHandler(p Probe, okStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				apierr.WriteJSON(r.Context(), w, http.StatusServiceUnavailable, status{Status: "unavailable", Reason: err.Error()})
				return
			}
		}
		apierr.WriteJSON(r.Context(), w, http.StatusOK, status{Status: okStatus})
	}
}
