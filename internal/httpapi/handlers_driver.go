package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/ingest"
	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/observability"
)

func (s *Server) handleDriverTrips(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	trips, err := s.store.ListAmbulanceRequestsByDriver(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trips)
}

type tripStatusRequest struct {
	Status models.AmbulanceStatus `json:"status"`
}

func (s *Server) handleTripStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req tripStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	trip, err := s.match.UpdateAmbulanceStatus(r.Context(), mux.Vars(r)["id"], id.AccountID, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleTripLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var p models.Point
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.match.RecordLocationUpdate(r.Context(), mux.Vars(r)["id"], id.AccountID, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDriverLocation is the general availability ping: it refreshes the
// driver profile, the geo index, the WS snapshot, and feeds the Kafka
// pipeline when configured.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var p models.Point
	if !s.decode(w, r, &p) {
		return
	}
	if !p.Valid() {
		s.writeError(w, r, invalidPointErr())
		return
	}
	if err := s.store.UpdateDriverLocation(r.Context(), id.AccountID, p); err != nil {
		s.writeError(w, r, err)
		return
	}

	prof, err := s.store.GetProfile(r.Context(), id.AccountID, models.RoleDriver)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.drivers.Upsert(geo.Responder{
		ID:        id.AccountID,
		Loc:       p,
		Available: prof.Driver.Available,
	})
	s.wsReg.UpdateIdentity(id.AccountID, func(i *dispatch.Identity) {
		i.Location = p
		i.Available = prof.Driver.Available
	})
	if s.kafka != nil {
		ping := ingest.LocationPing{
			AccountID: id.AccountID,
			Role:      models.RoleDriver,
			Location:  p,
			Available: prof.Driver.Available,
			At:        time.Now(),
		}
		if err := s.kafka.PublishLocation(ping); err != nil {
			s.logger.Warn("kafka publish failed", "error", err)
		}
	}
	observability.LocationPings.Inc()
	w.WriteHeader(http.StatusNoContent)
}
