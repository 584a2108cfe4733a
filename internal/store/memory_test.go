package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/models"
)

func donorInput(email string) RegisterInput {
	return RegisterInput{
		Email:  email,
		Secret: "s3cret",
		Role:   models.RoleDonor,
		Phone:  "555-0100",
		Profile: models.Profile{Donor: &models.DonorProfile{
			Name:       "Dana",
			Age:        30,
			BloodGroup: models.OPos,
			Location:   models.Point{Longitude: 87.28, Latitude: 26.81},
			Available:  true,
		}},
	}
}

func driverInput(email, license, registration string) RegisterInput {
	return RegisterInput{
		Email:  email,
		Secret: "s3cret",
		Role:   models.RoleDriver,
		Phone:  "555-0101",
		Profile: models.Profile{Driver: &models.DriverProfile{
			Name:          "Drew",
			LicenseNumber: license,
			Vehicle:       models.Vehicle{Type: "van", Registration: registration},
			Location:      models.Point{Longitude: 87.28, Latitude: 26.81},
			Available:     true,
		}},
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	acc, err := m.Register(ctx, donorInput("dana@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if acc.Role != models.RoleDonor || !acc.Active {
		t.Fatalf("got %+v", acc)
	}

	got, err := m.Authenticate(ctx, "dana@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != acc.ID {
		t.Fatalf("expected %s, got %s", acc.ID, got.ID)
	}

	if _, err := m.Authenticate(ctx, "dana@example.com", "wrong"); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if _, err := m.Register(ctx, donorInput("dup@example.com")); err != nil {
		t.Fatal(err)
	}
	_, err := m.Register(ctx, donorInput("dup@example.com"))
	if apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterDuplicateLicenseRollsBack(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if _, err := m.Register(ctx, driverInput("a@example.com", "LIC-1", "REG-1")); err != nil {
		t.Fatal(err)
	}
	_, err := m.Register(ctx, driverInput("b@example.com", "LIC-1", "REG-2"))
	if apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	// neither the account nor the profile may survive the failed register
	if _, err := m.Authenticate(ctx, "b@example.com", "s3cret"); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("expected account rolled back, got %v", err)
	}
}

func TestRegisterMissingRoleFields(t *testing.T) {
	m := NewMemoryStore()
	in := driverInput("c@example.com", "", "")
	in.Profile.Driver.LicenseNumber = ""
	in.Profile.Driver.Vehicle.Registration = ""
	_, err := m.Register(context.Background(), in)
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newBloodRequest(t *testing.T, m *MemoryStore, patientID string) *models.BloodRequest {
	t.Helper()
	req := &models.BloodRequest{
		PatientID:  patientID,
		BloodGroup: models.OPos,
		Units:      2,
		Urgency:    models.UrgencyCritical,
		Location:   models.Point{Longitude: 87.28, Latitude: 26.81},
	}
	if err := m.CreateBloodRequest(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	req := newBloodRequest(t, m, "patient-1")

	const n = 16
	var wg sync.WaitGroup
	winners := make(chan string, n)
	for i := 0; i < n; i++ {
		donorID := "donor-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := m.AcceptBloodRequest(ctx, req.ID, donorID); err == nil {
				winners <- *got.DonorID
			} else if apperr.CodeOf(err) != apperr.CodeNotFound {
				t.Errorf("loser saw %v, want not_found", err)
			}
		}()
	}
	wg.Wait()
	close(winners)

	var won []string
	for w := range winners {
		won = append(won, w)
	}
	if len(won) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(won))
	}

	final, err := m.GetBloodRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.BloodAccepted || final.DonorID == nil || *final.DonorID != won[0] {
		t.Fatalf("final state inconsistent: %+v", final)
	}
}

func TestNearbyPendingFilters(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	origin := models.Point{Longitude: 87.28, Latitude: 26.81}

	near := newBloodRequest(t, m, "p1") // O+ at origin-ish

	wrongGroup := &models.BloodRequest{PatientID: "p2", BloodGroup: models.ABNeg, Units: 1, Urgency: models.UrgencyLow, Location: origin}
	_ = m.CreateBloodRequest(ctx, wrongGroup)

	far := &models.BloodRequest{PatientID: "p3", BloodGroup: models.OPos, Units: 1, Urgency: models.UrgencyLow, Location: models.Point{Longitude: 88.5, Latitude: 28.0}}
	_ = m.CreateBloodRequest(ctx, far)

	accepted := newBloodRequest(t, m, "p4")
	if _, err := m.AcceptBloodRequest(ctx, accepted.ID, "d1"); err != nil {
		t.Fatal(err)
	}

	got, err := m.NearbyPendingBloodRequests(ctx, models.OPos, origin, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != near.ID {
		t.Fatalf("expected only the near pending O+ request, got %+v", got)
	}
	for _, r := range got {
		if r.Status != models.BloodPending || r.BloodGroup != models.OPos || r.DistanceMeters > 10_000 {
			t.Fatalf("filter violated: %+v", r)
		}
	}
}

func TestBloodTransitionGuards(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	req := newBloodRequest(t, m, "p1")

	// fulfill before accept is illegal
	if _, err := m.TransitionBloodRequest(ctx, req.ID, "p1", models.BloodAccepted, models.BloodFulfilled); apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	// cancel by a non-owner is not found
	if _, err := m.TransitionBloodRequest(ctx, req.ID, "someone-else", models.BloodPending, models.BloodCancelled); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := m.TransitionBloodRequest(ctx, req.ID, "p1", models.BloodPending, models.BloodCancelled); err != nil {
		t.Fatal(err)
	}
	// cancelled is terminal; accept must lose
	if _, err := m.AcceptBloodRequest(ctx, req.ID, "d1"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found after cancel, got %v", err)
	}
}

func newAmbulanceRequest(t *testing.T, m *MemoryStore, patientID string) *models.AmbulanceRequest {
	t.Helper()
	req := &models.AmbulanceRequest{
		PatientID:   patientID,
		Pickup:      models.Site{Point: models.Point{Longitude: 87.28, Latitude: 26.81}, Address: "Main Rd"},
		Destination: models.Site{Point: models.Point{Longitude: 87.30, Latitude: 26.83}, Address: "City Hospital"},
	}
	if err := m.CreateAmbulanceRequest(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	req := newAmbulanceRequest(t, m, "p1")

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		driverID := "driver-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AssignDriver(ctx, req.ID, driverID, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one assignment, got %d", wins)
	}
}

func TestAmbulanceTransitionAndBreadcrumbs(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	req := newAmbulanceRequest(t, m, "p1")

	if _, err := m.AssignDriver(ctx, req.ID, "drv-1", nil); err != nil {
		t.Fatal(err)
	}

	// a ping before in-progress is dropped without error
	persisted, err := m.AppendLocationUpdate(ctx, req.ID, "drv-1", models.Point{Longitude: 87.29, Latitude: 26.82}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if persisted {
		t.Fatal("expected ping to be dropped while assigned")
	}

	if _, err := m.TransitionAmbulance(ctx, req.ID, "drv-1", models.AmbulanceAssigned, models.AmbulanceInProgress); err != nil {
		t.Fatal(err)
	}
	persisted, err = m.AppendLocationUpdate(ctx, req.ID, "drv-1", models.Point{Longitude: 87.29, Latitude: 26.82}, time.Now())
	if err != nil || !persisted {
		t.Fatalf("expected persisted ping, got persisted=%v err=%v", persisted, err)
	}

	// only the assigned driver may advance
	if _, err := m.TransitionAmbulance(ctx, req.ID, "drv-2", models.AmbulanceInProgress, models.AmbulanceCompleted); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected not_found for foreign driver, got %v", err)
	}

	final, err := m.TransitionAmbulance(ctx, req.ID, "drv-1", models.AmbulanceInProgress, models.AmbulanceCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if final.CompletedAt == nil || final.ActualMinutes == nil {
		t.Fatalf("expected completion stamps, got %+v", final)
	}
	if len(final.LocationUpdates) != 1 {
		t.Fatalf("expected 1 breadcrumb, got %d", len(final.LocationUpdates))
	}
}
