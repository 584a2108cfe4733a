package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/lifeline/internal/match"
)

func (s *Server) handleCreateBloodRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var in match.BloodRequestInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := s.match.CreateBloodRequest(r.Context(), id.AccountID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListBloodRequests(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	reqs, err := s.store.ListBloodRequestsByPatient(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleFulfillBloodRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	req, err := s.match.FulfillBloodRequest(r.Context(), mux.Vars(r)["id"], id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCancelBloodRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	req, err := s.match.CancelBloodRequest(r.Context(), mux.Vars(r)["id"], id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCreateAmbulanceRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var in match.AmbulanceRequestInput
	if !s.decode(w, r, &in) {
		return
	}
	req, err := s.match.CreateAmbulanceRequest(r.Context(), id.AccountID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListAmbulanceRequests(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	reqs, err := s.store.ListAmbulanceRequestsByPatient(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleCancelAmbulanceRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	req, err := s.match.CancelAmbulanceRequest(r.Context(), mux.Vars(r)["id"], id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}
