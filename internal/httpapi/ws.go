package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWS joins the authenticated caller to their private channel. The
// identity snapshot carries whatever the broadcast predicates need: blood
// group and availability for donors, availability and location for drivers.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())

	identity := dispatch.Identity{AccountID: id.AccountID, Role: id.Role}
	switch id.Role {
	case models.RoleDonor:
		prof, err := s.store.GetProfile(r.Context(), id.AccountID, models.RoleDonor)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		identity.BloodGroup = prof.Donor.BloodGroup
		identity.Available = prof.Donor.Available
		identity.Location = prof.Donor.Location
	case models.RoleDriver:
		prof, err := s.store.GetProfile(r.Context(), id.AccountID, models.RoleDriver)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		identity.Available = prof.Driver.Available
		identity.Location = prof.Driver.Location
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the failure response
		s.logger.Warn("ws upgrade failed", "account_id", id.AccountID, "error", err)
		return
	}
	s.wsReg.Join(identity, conn)
}
