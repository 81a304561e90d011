package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mekatrol/imperium-core/internal/update"
)

// handleListPoints returns every device and virtual point.
func (s *Server) handleListPoints(w http.ResponseWriter, _ *http.Request) {
	points := s.registry.GetAllPoints()
	writeJSON(w, http.StatusOK, map[string]any{"points": points, "count": len(points)})
}

// handleUpdatePoint applies a point update request and returns the point.
//
// Request body:
//
//	{"deviceKey": "device.alfrescolight", "pointKey": "Relay",
//	 "pointUpdateAction": "Control", "value": "1"}
func (s *Server) handleUpdatePoint(w http.ResponseWriter, r *http.Request) {
	var req update.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	p, err := s.updates.Update(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
