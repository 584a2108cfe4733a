// Package match implements the request lifecycle: creation, proximity
// queries, the accept/assign races and ambulance status transitions. All
// races are settled by the store's conditional writes; this layer decides
// which transition to attempt and who to notify once it commits.
package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/eta"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/observability"
	"github.com/example/lifeline/internal/store"
)

type Service struct {
	Store    store.Store
	Drivers  geo.Index
	Dispatch *dispatch.Dispatcher
	ETACache *eta.Cache
	Logger   *slog.Logger

	DefaultRadiusMeters float64
	UrgentRadiusMeters  float64
	DefaultSpeedMps     float64
	CandidateLimit      int
}

type BloodRequestInput struct {
	BloodGroup models.BloodGroup `json:"blood_group"`
	Units      int               `json:"units_required"`
	Urgency    models.Urgency    `json:"urgency"`
	Location   models.Point      `json:"location"`
	Hospital   string            `json:"hospital,omitempty"`
}

type AmbulanceRequestInput struct {
	Pickup      models.Site `json:"pickup"`
	Destination models.Site `json:"destination"`
}

// Radius resolves the caller's radius selection: zero means the default,
// urgent selects the wide ring.
func (s *Service) Radius(urgent bool, override float64) float64 {
	if override > 0 {
		return override
	}
	if urgent {
		return s.UrgentRadiusMeters
	}
	return s.DefaultRadiusMeters
}

func (s *Service) CreateBloodRequest(ctx context.Context, patientID string, in BloodRequestInput) (*models.BloodRequest, error) {
	fields := map[string]string{}
	if !in.BloodGroup.Valid() {
		fields["blood_group"] = "must be a valid ABO/Rh group"
	}
	if in.Units < 1 || in.Units > 5 {
		fields["units_required"] = "must be between 1 and 5"
	}
	if !in.Urgency.Valid() {
		fields["urgency"] = "must be one of low, medium, high, critical"
	}
	if !in.Location.Valid() {
		fields["location"] = "longitude must be in [-180,180], latitude in [-90,90]"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid blood request", fields)
	}

	req := &models.BloodRequest{
		PatientID:  patientID,
		BloodGroup: in.BloodGroup,
		Units:      in.Units,
		Urgency:    in.Urgency,
		Location:   in.Location,
		Hospital:   in.Hospital,
	}
	if err := s.Store.CreateBloodRequest(ctx, req); err != nil {
		return nil, err
	}
	observability.BloodRequestsCreated.Inc()

	radius := s.DefaultRadiusMeters
	if in.Urgency == models.UrgencyHigh || in.Urgency == models.UrgencyCritical {
		radius = s.UrgentRadiusMeters
	}
	s.publishBroadcast(dispatch.EventNewBloodRequest, req, func(id dispatch.Identity) bool {
		if id.Role != models.RoleDonor || !id.Available || id.BloodGroup != req.BloodGroup {
			return false
		}
		d := geo.Haversine(req.Location.Latitude, req.Location.Longitude, id.Location.Latitude, id.Location.Longitude)
		return d <= radius
	})
	return req, nil
}

// NearbyBloodRequests resolves the donor's own blood group and location and
// returns matching pending requests inside the radius, nearest first.
func (s *Service) NearbyBloodRequests(ctx context.Context, donorID string, radiusMeters float64) ([]models.BloodRequest, error) {
	prof, err := s.Store.GetProfile(ctx, donorID, models.RoleDonor)
	if err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = s.DefaultRadiusMeters
	}
	return s.Store.NearbyPendingBloodRequests(ctx, prof.Donor.BloodGroup, prof.Donor.Location, radiusMeters)
}

// AcceptBloodRequest races on the store's conditional update. Losers see
// not_found so the winner's identity never leaks.
func (s *Service) AcceptBloodRequest(ctx context.Context, requestID, donorID string) (*models.BloodRequest, error) {
	req, err := s.Store.AcceptBloodRequest(ctx, requestID, donorID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			observability.AcceptConflicts.Inc()
		}
		return nil, err
	}
	observability.BloodRequestsMatched.Inc()
	s.publishTo(req.PatientID, dispatch.EventNotification, map[string]interface{}{
		"type":    "request_accepted",
		"request": req,
	})
	return req, nil
}

func (s *Service) FulfillBloodRequest(ctx context.Context, requestID, patientID string) (*models.BloodRequest, error) {
	req, err := s.Store.TransitionBloodRequest(ctx, requestID, patientID, models.BloodAccepted, models.BloodFulfilled)
	if err != nil {
		return nil, err
	}
	if req.DonorID != nil {
		s.publishTo(*req.DonorID, dispatch.EventNotification, map[string]interface{}{
			"type":    "request_fulfilled",
			"request": req,
		})
	}
	return req, nil
}

func (s *Service) CancelBloodRequest(ctx context.Context, requestID, patientID string) (*models.BloodRequest, error) {
	return s.Store.TransitionBloodRequest(ctx, requestID, patientID, models.BloodPending, models.BloodCancelled)
}

func (s *Service) CreateAmbulanceRequest(ctx context.Context, patientID string, in AmbulanceRequestInput) (*models.AmbulanceRequest, error) {
	fields := map[string]string{}
	if !in.Pickup.Valid() {
		fields["pickup"] = "longitude must be in [-180,180], latitude in [-90,90]"
	}
	if !in.Destination.Valid() {
		fields["destination"] = "longitude must be in [-180,180], latitude in [-90,90]"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid ambulance request", fields)
	}

	req := &models.AmbulanceRequest{
		PatientID:   patientID,
		Pickup:      in.Pickup,
		Destination: in.Destination,
	}
	if err := s.Store.CreateAmbulanceRequest(ctx, req); err != nil {
		return nil, err
	}
	s.publishBroadcast(dispatch.EventNotification, map[string]interface{}{
		"type":    "new_ambulance_request",
		"request": req,
	}, func(id dispatch.Identity) bool { return id.Role == models.RoleAdmin })
	return req, nil
}

// AssignDriver performs the atomic pending->assigned transition and stamps
// an ETA from the driver's current location to the pickup.
func (s *Service) AssignDriver(ctx context.Context, requestID, driverID string) (*models.AmbulanceRequest, error) {
	prof, err := s.Store.GetProfile(ctx, driverID, models.RoleDriver)
	if err != nil {
		return nil, err
	}

	cur, err := s.Store.GetAmbulanceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	est := s.estimateMinutes(prof.Driver.Location, cur.Pickup.Point)

	req, err := s.Store.AssignDriver(ctx, requestID, driverID, &est)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			observability.AcceptConflicts.Inc()
		}
		return nil, err
	}
	observability.TripsAssigned.Inc()
	s.publishTo(driverID, dispatch.EventNewAssignment, req)
	s.publishTo(req.PatientID, dispatch.EventNotification, map[string]interface{}{
		"type":    "driver_assigned",
		"request": req,
	})
	return req, nil
}

// driverAdvance maps each driver-reachable status to its required
// predecessor, so the store can enforce the edge in one conditional write.
var driverAdvance = map[models.AmbulanceStatus]models.AmbulanceStatus{
	models.AmbulanceInProgress: models.AmbulanceAssigned,
	models.AmbulanceCompleted:  models.AmbulanceInProgress,
}

func (s *Service) UpdateAmbulanceStatus(ctx context.Context, requestID, driverID string, next models.AmbulanceStatus) (*models.AmbulanceRequest, error) {
	if !next.Valid() {
		return nil, apperr.Validation("unknown status", map[string]string{"status": string(next)})
	}
	from, ok := driverAdvance[next]
	if !ok {
		return nil, apperr.InvalidTransition("current", string(next))
	}
	req, err := s.Store.TransitionAmbulance(ctx, requestID, driverID, from, next)
	if err != nil {
		return nil, err
	}
	s.publishTo(req.PatientID, dispatch.EventNotification, map[string]interface{}{
		"type":    "trip_status",
		"request": req,
	})
	return req, nil
}

func (s *Service) CancelAmbulanceRequest(ctx context.Context, requestID, patientID string) (*models.AmbulanceRequest, error) {
	cur, err := s.Store.GetAmbulanceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cur.PatientID != patientID {
		return nil, apperr.NotFound("ambulance request not found")
	}
	if cur.Status != models.AmbulancePending && cur.Status != models.AmbulanceAssigned {
		return nil, apperr.InvalidTransition(string(cur.Status), string(models.AmbulanceCancelled))
	}
	req, err := s.Store.CancelAmbulance(ctx, requestID, patientID, cur.Status)
	if err != nil {
		return nil, err
	}
	if req.DriverID != nil {
		s.publishTo(*req.DriverID, dispatch.EventNotification, map[string]interface{}{
			"type":    "trip_cancelled",
			"request": req,
		})
	}
	return req, nil
}

// RecordLocationUpdate appends a breadcrumb while the trip is in-progress.
// Pings arriving in any other status succeed but are not persisted; drivers
// keep pinging across status flips and failing them only causes retry noise.
func (s *Service) RecordLocationUpdate(ctx context.Context, requestID, driverID string, p models.Point) error {
	if !p.Valid() {
		return apperr.Validation("invalid point", map[string]string{"location": "longitude must be in [-180,180], latitude in [-90,90]"})
	}
	persisted, err := s.Store.AppendLocationUpdate(ctx, requestID, driverID, p, time.Now())
	if err != nil {
		return err
	}
	if persisted {
		req, err := s.Store.GetAmbulanceRequest(ctx, requestID)
		if err == nil {
			s.publishTo(req.PatientID, dispatch.EventNotification, map[string]interface{}{
				"type":       "trip_location",
				"request_id": requestID,
				"location":   p,
			})
		}
	}
	return nil
}

// DriverCandidates lists available drivers near a pending request's pickup,
// nearest first, from the shared responder index.
func (s *Service) DriverCandidates(ctx context.Context, requestID string, radiusMeters float64) ([]geo.Responder, error) {
	req, err := s.Store.GetAmbulanceRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = s.DefaultRadiusMeters
	}
	limit := s.CandidateLimit
	if limit <= 0 {
		limit = 10
	}
	return s.Drivers.Nearby(req.Pickup.Point, radiusMeters, limit), nil
}

func (s *Service) estimateMinutes(from, to models.Point) float64 {
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(from, to); ok {
			return v
		}
	}
	v := eta.EstimateMinutes(from, to, s.DefaultSpeedMps)
	if s.ETACache != nil {
		s.ETACache.Set(from, to, v)
	}
	return v
}

// publishTo and publishBroadcast run only after the triggering write has
// committed; delivery failures are logged, never surfaced to the caller.
func (s *Service) publishTo(accountID, event string, payload interface{}) {
	if err := s.Dispatch.NotifyAccount(accountID, event, payload); err != nil {
		s.Logger.Warn("notify failed", "account_id", accountID, "event", event, "error", err)
	}
}

func (s *Service) publishBroadcast(event string, payload interface{}, eligible func(dispatch.Identity) bool) {
	if err := s.Dispatch.BroadcastToEligible(event, payload, eligible); err != nil {
		s.Logger.Warn("broadcast failed", "event", event, "error", err)
	}
}
