package match

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/store"
)

type captureTransport struct {
	identities []dispatch.Identity
	sent       map[string][][]byte
}

func newCaptureTransport(ids ...dispatch.Identity) *captureTransport {
	return &captureTransport{identities: ids, sent: make(map[string][][]byte)}
}

func (c *captureTransport) Send(accountID string, data []byte) bool {
	c.sent[accountID] = append(c.sent[accountID], data)
	return true
}

func (c *captureTransport) Identities() []dispatch.Identity { return c.identities }

func (c *captureTransport) events(accountID string) []string {
	var out []string
	for _, frame := range c.sent[accountID] {
		var env struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(frame, &env); err == nil {
			out = append(out, env.Event)
		}
	}
	return out
}

func newService(t *testing.T, ids ...dispatch.Identity) (*Service, *store.MemoryStore, *captureTransport) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ct := newCaptureTransport(ids...)
	d := dispatch.NewDispatcher(logger)
	if err := d.Initialize(ct); err != nil {
		t.Fatal(err)
	}
	ms := store.NewMemoryStore()
	svc := &Service{
		Store:               ms,
		Drivers:             geo.NewMemIndex(),
		Dispatch:            d,
		Logger:              logger,
		DefaultRadiusMeters: 10_000,
		UrgentRadiusMeters:  50_000,
		DefaultSpeedMps:     8,
		CandidateLimit:      10,
	}
	return svc, ms, ct
}

func registerDriver(t *testing.T, ms *store.MemoryStore, email string, loc models.Point) *models.Account {
	t.Helper()
	acc, err := ms.Register(context.Background(), store.RegisterInput{
		Email:  email,
		Secret: "s3cret",
		Role:   models.RoleDriver,
		Profile: models.Profile{Driver: &models.DriverProfile{
			Name:          "Drew",
			LicenseNumber: "LIC-" + email,
			Vehicle:       models.Vehicle{Type: "van", Registration: "REG-" + email},
			Location:      loc,
			Available:     true,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestCreateBloodRequestValidation(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CreateBloodRequest(context.Background(), "p1", BloodRequestInput{
		BloodGroup: "C+",
		Units:      9,
		Urgency:    "whenever",
		Location:   models.Point{Longitude: 200, Latitude: 0},
	})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateBloodRequestBroadcastsToEligibleDonors(t *testing.T) {
	origin := models.Point{Longitude: 87.28, Latitude: 26.81}
	svc, _, ct := newService(t,
		dispatch.Identity{AccountID: "don-match", Role: models.RoleDonor, BloodGroup: models.OPos, Available: true, Location: models.Point{Longitude: 87.29, Latitude: 26.81}},
		dispatch.Identity{AccountID: "don-group", Role: models.RoleDonor, BloodGroup: models.ABNeg, Available: true, Location: origin},
		dispatch.Identity{AccountID: "don-busy", Role: models.RoleDonor, BloodGroup: models.OPos, Available: false, Location: origin},
		dispatch.Identity{AccountID: "don-far", Role: models.RoleDonor, BloodGroup: models.OPos, Available: true, Location: models.Point{Longitude: 89.0, Latitude: 28.0}},
		dispatch.Identity{AccountID: "drv-1", Role: models.RoleDriver, Available: true, Location: origin},
	)

	_, err := svc.CreateBloodRequest(context.Background(), "p1", BloodRequestInput{
		BloodGroup: models.OPos,
		Units:      2,
		Urgency:    models.UrgencyMedium,
		Location:   origin,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := ct.events("don-match"); len(got) != 1 || got[0] != dispatch.EventNewBloodRequest {
		t.Fatalf("expected new_blood_request for don-match, got %v", got)
	}
	for _, id := range []string{"don-group", "don-busy", "don-far", "drv-1"} {
		if len(ct.sent[id]) != 0 {
			t.Errorf("%s must not be notified", id)
		}
	}
}

func TestCriticalUrgencyWidensRadius(t *testing.T) {
	origin := models.Point{Longitude: 0, Latitude: 0}
	// ~22km out: beyond the 10km default ring, inside the 50km urgent ring
	edge := models.Point{Longitude: 0.2, Latitude: 0}
	svc, _, ct := newService(t,
		dispatch.Identity{AccountID: "don-edge", Role: models.RoleDonor, BloodGroup: models.OPos, Available: true, Location: edge},
	)

	in := BloodRequestInput{BloodGroup: models.OPos, Units: 1, Urgency: models.UrgencyLow, Location: origin}
	if _, err := svc.CreateBloodRequest(context.Background(), "p1", in); err != nil {
		t.Fatal(err)
	}
	if len(ct.sent["don-edge"]) != 0 {
		t.Fatal("low urgency must not reach past the default radius")
	}

	in.Urgency = models.UrgencyCritical
	if _, err := svc.CreateBloodRequest(context.Background(), "p1", in); err != nil {
		t.Fatal(err)
	}
	if len(ct.sent["don-edge"]) != 1 {
		t.Fatalf("critical urgency must reach the wide ring, got %d frames", len(ct.sent["don-edge"]))
	}
}

func TestAcceptNotifiesPatient(t *testing.T) {
	svc, ms, ct := newService(t)
	ctx := context.Background()
	req := &models.BloodRequest{PatientID: "p1", BloodGroup: models.OPos, Units: 1, Urgency: models.UrgencyLow, Location: models.Point{Longitude: 87.28, Latitude: 26.81}}
	if err := ms.CreateBloodRequest(ctx, req); err != nil {
		t.Fatal(err)
	}

	got, err := svc.AcceptBloodRequest(ctx, req.ID, "don-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BloodAccepted || got.DonorID == nil || *got.DonorID != "don-1" {
		t.Fatalf("got %+v", got)
	}
	if evs := ct.events("p1"); len(evs) != 1 || evs[0] != dispatch.EventNotification {
		t.Fatalf("expected patient notification, got %v", evs)
	}

	// second accept loses the race shape: not_found
	if _, err := svc.AcceptBloodRequest(ctx, req.ID, "don-2"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestFulfillRequiresAccepted(t *testing.T) {
	svc, ms, _ := newService(t)
	ctx := context.Background()
	req := &models.BloodRequest{PatientID: "p1", BloodGroup: models.OPos, Units: 1, Urgency: models.UrgencyLow, Location: models.Point{Longitude: 87.28, Latitude: 26.81}}
	if err := ms.CreateBloodRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FulfillBloodRequest(ctx, req.ID, "p1"); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

func newTrip(t *testing.T, svc *Service, patientID string) *models.AmbulanceRequest {
	t.Helper()
	req, err := svc.CreateAmbulanceRequest(context.Background(), patientID, AmbulanceRequestInput{
		Pickup:      models.Site{Point: models.Point{Longitude: 87.28, Latitude: 26.81}, Address: "Main Rd"},
		Destination: models.Site{Point: models.Point{Longitude: 87.30, Latitude: 26.83}, Address: "City Hospital"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestAssignDriverStampsETAAndNotifies(t *testing.T) {
	svc, ms, ct := newService(t)
	drv := registerDriver(t, ms, "drv@example.com", models.Point{Longitude: 87.25, Latitude: 26.80})
	trip := newTrip(t, svc, "p1")

	got, err := svc.AssignDriver(context.Background(), trip.ID, drv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.AmbulanceAssigned || got.DriverID == nil || *got.DriverID != drv.ID {
		t.Fatalf("got %+v", got)
	}
	if got.EstimatedMinutes == nil || *got.EstimatedMinutes <= 0 {
		t.Fatalf("expected positive ETA stamp, got %v", got.EstimatedMinutes)
	}
	if got.AssignedAt == nil {
		t.Fatal("expected assigned_at stamp")
	}
	if evs := ct.events(drv.ID); len(evs) != 1 || evs[0] != dispatch.EventNewAssignment {
		t.Fatalf("expected new_assignment for driver, got %v", evs)
	}
	if evs := ct.events("p1"); len(evs) != 1 || evs[0] != dispatch.EventNotification {
		t.Fatalf("expected notification for patient, got %v", evs)
	}

	// pending is gone; a second assignment loses
	if _, err := svc.AssignDriver(context.Background(), trip.ID, drv.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestUpdateAmbulanceStatusEnforcesOrder(t *testing.T) {
	svc, ms, _ := newService(t)
	drv := registerDriver(t, ms, "drv@example.com", models.Point{Longitude: 87.25, Latitude: 26.80})
	trip := newTrip(t, svc, "p1")
	ctx := context.Background()

	if _, err := svc.AssignDriver(ctx, trip.ID, drv.ID); err != nil {
		t.Fatal(err)
	}

	// assigned -> completed skips in-progress
	if _, err := svc.UpdateAmbulanceStatus(ctx, trip.ID, drv.ID, models.AmbulanceCompleted); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	// drivers cannot move a trip back to assigned
	if _, err := svc.UpdateAmbulanceStatus(ctx, trip.ID, drv.ID, models.AmbulanceAssigned); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	if _, err := svc.UpdateAmbulanceStatus(ctx, trip.ID, drv.ID, models.AmbulanceInProgress); err != nil {
		t.Fatal(err)
	}
	final, err := svc.UpdateAmbulanceStatus(ctx, trip.ID, drv.ID, models.AmbulanceCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if final.CompletedAt == nil || final.ActualMinutes == nil {
		t.Fatalf("expected completion stamps, got %+v", final)
	}
}

func TestRecordLocationIgnoredWhenNotInProgress(t *testing.T) {
	svc, ms, ct := newService(t)
	drv := registerDriver(t, ms, "drv@example.com", models.Point{Longitude: 87.25, Latitude: 26.80})
	trip := newTrip(t, svc, "p1")
	ctx := context.Background()
	ping := models.Point{Longitude: 87.29, Latitude: 26.82}

	if _, err := svc.AssignDriver(ctx, trip.ID, drv.ID); err != nil {
		t.Fatal(err)
	}
	patientFrames := len(ct.sent["p1"])

	// ping while still assigned: accepted, not persisted, no fan-out
	if err := svc.RecordLocationUpdate(ctx, trip.ID, drv.ID, ping); err != nil {
		t.Fatal(err)
	}
	cur, err := ms.GetAmbulanceRequest(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cur.LocationUpdates) != 0 {
		t.Fatalf("expected no breadcrumb, got %d", len(cur.LocationUpdates))
	}
	if len(ct.sent["p1"]) != patientFrames {
		t.Fatal("dropped ping must not notify the patient")
	}

	if _, err := svc.UpdateAmbulanceStatus(ctx, trip.ID, drv.ID, models.AmbulanceInProgress); err != nil {
		t.Fatal(err)
	}
	patientFrames = len(ct.sent["p1"])
	if err := svc.RecordLocationUpdate(ctx, trip.ID, drv.ID, ping); err != nil {
		t.Fatal(err)
	}
	cur, err = ms.GetAmbulanceRequest(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cur.LocationUpdates) != 1 {
		t.Fatalf("expected 1 breadcrumb, got %d", len(cur.LocationUpdates))
	}
	if len(ct.sent["p1"]) != patientFrames+1 {
		t.Fatal("persisted ping must notify the patient")
	}
}

func TestCancelAmbulanceOnlyBeforeInProgress(t *testing.T) {
	svc, ms, ct := newService(t)
	drv := registerDriver(t, ms, "drv@example.com", models.Point{Longitude: 87.25, Latitude: 26.80})
	ctx := context.Background()

	pending := newTrip(t, svc, "p1")
	if got, err := svc.CancelAmbulanceRequest(ctx, pending.ID, "p1"); err != nil || got.Status != models.AmbulanceCancelled {
		t.Fatalf("expected cancelled, got %+v err=%v", got, err)
	}

	assigned := newTrip(t, svc, "p1")
	if _, err := svc.AssignDriver(ctx, assigned.ID, drv.ID); err != nil {
		t.Fatal(err)
	}
	driverFrames := len(ct.sent[drv.ID])
	if _, err := svc.CancelAmbulanceRequest(ctx, assigned.ID, "p1"); err != nil {
		t.Fatal(err)
	}
	if len(ct.sent[drv.ID]) != driverFrames+1 {
		t.Fatal("cancelling an assigned trip must notify the driver")
	}

	inProgress := newTrip(t, svc, "p1")
	if _, err := svc.AssignDriver(ctx, inProgress.ID, drv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateAmbulanceStatus(ctx, inProgress.ID, drv.ID, models.AmbulanceInProgress); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelAmbulanceRequest(ctx, inProgress.ID, "p1"); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	// foreign patient never learns the trip exists
	if _, err := svc.CancelAmbulanceRequest(ctx, inProgress.ID, "someone-else"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDriverCandidatesNearestFirst(t *testing.T) {
	svc, _, _ := newService(t)
	trip := newTrip(t, svc, "p1")

	svc.Drivers.Upsert(geo.Responder{ID: "close", Loc: models.Point{Longitude: 87.29, Latitude: 26.81}, Available: true})
	svc.Drivers.Upsert(geo.Responder{ID: "closer", Loc: models.Point{Longitude: 87.281, Latitude: 26.81}, Available: true})
	svc.Drivers.Upsert(geo.Responder{ID: "busy", Loc: models.Point{Longitude: 87.28, Latitude: 26.81}, Available: false})

	got, err := svc.DriverCandidates(context.Background(), trip.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "closer" || got[1].ID != "close" {
		t.Fatalf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}
