// Package store persists accounts, profiles and requests. Both backends obey
// the same contract: state transitions are single conditional writes so
// concurrent accept/assign callers are serialized by the store itself.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/models"
)

// RegisterInput carries a plaintext secret; Register hashes it before any
// write. Profile must carry exactly the field matching Role.
type RegisterInput struct {
	Email   string
	Secret  string
	Role    models.Role
	Phone   string
	Profile models.Profile
}

type Store interface {
	Register(ctx context.Context, in RegisterInput) (*models.Account, error)
	Authenticate(ctx context.Context, email, secret string) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetProfile(ctx context.Context, accountID string, role models.Role) (models.Profile, error)
	SetDonorAvailability(ctx context.Context, accountID string, available bool) error
	UpdateDriverLocation(ctx context.Context, accountID string, p models.Point) error

	CreateBloodRequest(ctx context.Context, r *models.BloodRequest) error
	GetBloodRequest(ctx context.Context, id string) (*models.BloodRequest, error)
	ListBloodRequestsByPatient(ctx context.Context, patientID string) ([]models.BloodRequest, error)
	NearbyPendingBloodRequests(ctx context.Context, group models.BloodGroup, origin models.Point, radiusMeters float64) ([]models.BloodRequest, error)
	// AcceptBloodRequest is the atomic pending->accepted compare-and-set.
	// Exactly one concurrent caller wins; losers get not_found.
	AcceptBloodRequest(ctx context.Context, requestID, donorID string) (*models.BloodRequest, error)
	// TransitionBloodRequest moves an owner's request from->to conditionally.
	TransitionBloodRequest(ctx context.Context, requestID, patientID string, from, to models.BloodStatus) (*models.BloodRequest, error)

	CreateAmbulanceRequest(ctx context.Context, r *models.AmbulanceRequest) error
	GetAmbulanceRequest(ctx context.Context, id string) (*models.AmbulanceRequest, error)
	ListAmbulanceRequestsByDriver(ctx context.Context, driverID string) ([]models.AmbulanceRequest, error)
	ListAmbulanceRequestsByPatient(ctx context.Context, patientID string) ([]models.AmbulanceRequest, error)
	// AssignDriver is the atomic pending->assigned compare-and-set.
	AssignDriver(ctx context.Context, requestID, driverID string, estimatedMinutes *float64) (*models.AmbulanceRequest, error)
	// TransitionAmbulance conditionally advances the assigned driver's trip.
	// Completion stamps completed_at and actual_minutes.
	TransitionAmbulance(ctx context.Context, requestID, driverID string, from, to models.AmbulanceStatus) (*models.AmbulanceRequest, error)
	CancelAmbulance(ctx context.Context, requestID, patientID string, from models.AmbulanceStatus) (*models.AmbulanceRequest, error)
	// AppendLocationUpdate persists a breadcrumb only while the trip is
	// in-progress; it reports false (no error) for ignored pings.
	AppendLocationUpdate(ctx context.Context, requestID, driverID string, p models.Point, at time.Time) (bool, error)
}

// validateRegistration enforces the role-specific required fields before any
// row is written.
func validateRegistration(in RegisterInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = "required"
	}
	if in.Secret == "" {
		fields["secret"] = "required"
	}
	if !in.Role.Valid() {
		fields["role"] = "must be one of donor, patient, driver, admin"
	}
	switch in.Role {
	case models.RoleDonor:
		p := in.Profile.Donor
		if p == nil {
			fields["donor"] = "profile required"
			break
		}
		if strings.TrimSpace(p.Name) == "" {
			fields["name"] = "required"
		}
		if p.Age <= 0 {
			fields["age"] = "required"
		}
		if !p.BloodGroup.Valid() {
			fields["blood_group"] = "must be a valid ABO/Rh group"
		}
		if !p.Location.Valid() {
			fields["location"] = "longitude must be in [-180,180], latitude in [-90,90]"
		}
	case models.RolePatient:
		p := in.Profile.Patient
		if p == nil {
			fields["patient"] = "profile required"
			break
		}
		if strings.TrimSpace(p.Name) == "" {
			fields["name"] = "required"
		}
		if p.Age <= 0 {
			fields["age"] = "required"
		}
		if !p.BloodGroup.Valid() {
			fields["blood_group"] = "must be a valid ABO/Rh group"
		}
	case models.RoleDriver:
		p := in.Profile.Driver
		if p == nil {
			fields["driver"] = "profile required"
			break
		}
		if strings.TrimSpace(p.Name) == "" {
			fields["name"] = "required"
		}
		if strings.TrimSpace(p.LicenseNumber) == "" {
			fields["license_number"] = "required"
		}
		if strings.TrimSpace(p.Vehicle.Type) == "" {
			fields["vehicle.type"] = "required"
		}
		if strings.TrimSpace(p.Vehicle.Registration) == "" {
			fields["vehicle.registration"] = "required"
		}
		if !p.Location.Valid() {
			fields["current_location"] = "longitude must be in [-180,180], latitude in [-90,90]"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("registration is missing required fields", fields)
	}
	return nil
}
