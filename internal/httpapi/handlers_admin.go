package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/lifeline/internal/apperr"
)

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

func (s *Server) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.DriverID == "" {
		s.writeError(w, r, apperr.Validation("driver_id is required", map[string]string{"driver_id": "required"}))
		return
	}
	trip, err := s.match.AssignDriver(r.Context(), mux.Vars(r)["id"], req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleDriverCandidates(w http.ResponseWriter, r *http.Request) {
	var radius float64
	if v := r.URL.Query().Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeError(w, r, apperr.Validation("invalid radius", map[string]string{"radius": "must be a positive number of meters"}))
			return
		}
		radius = f
	}
	candidates, err := s.match.DriverCandidates(r.Context(), mux.Vars(r)["id"], radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	type candidate struct {
		DriverID       string  `json:"driver_id"`
		Longitude      float64 `json:"longitude"`
		Latitude       float64 `json:"latitude"`
		DistanceMeters float64 `json:"distance_meters"`
	}
	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidate{
			DriverID:       c.ID,
			Longitude:      c.Loc.Longitude,
			Latitude:       c.Loc.Latitude,
			DistanceMeters: c.DistanceMeters,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
