package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/dispatch"
)

func (s *Server) handleNearbyBloodRequests(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())

	urgent := r.URL.Query().Get("urgent") == "true"
	var override float64
	if v := r.URL.Query().Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeError(w, r, apperr.Validation("invalid radius", map[string]string{"radius": "must be a positive number of meters"}))
			return
		}
		override = f
	}

	reqs, err := s.match.NearbyBloodRequests(r.Context(), id.AccountID, s.match.Radius(urgent, override))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleAcceptBloodRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	req, err := s.match.AcceptBloodRequest(r.Context(), mux.Vars(r)["id"], id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

type availabilityRequest struct {
	Available bool `json:"is_available"`
}

func (s *Server) handleDonorAvailability(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req availabilityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.SetDonorAvailability(r.Context(), id.AccountID, req.Available); err != nil {
		s.writeError(w, r, err)
		return
	}
	// keep the broadcast snapshot of a connected donor in step
	s.wsReg.UpdateIdentity(id.AccountID, func(i *dispatch.Identity) {
		i.Available = req.Available
	})
	w.WriteHeader(http.StatusNoContent)
}
